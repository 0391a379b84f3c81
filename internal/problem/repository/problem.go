package repository

import (
	"context"
	"errors"
	"strconv"
	"time"

	"judgebroker/internal/common/cache"
	"judgebroker/internal/common/db"
	"judgebroker/internal/problem/model"
)

const (
	defaultProblemTTL      = 30 * time.Minute
	defaultProblemEmptyTTL = 5 * time.Minute
	problemKeyPrefix       = "problem:meta:"
)

var ErrProblemNotFound = errors.New("problem not found")

// ProblemRepository reads problem limits and maintains display statistics.
type ProblemRepository interface {
	Get(ctx context.Context, tx db.Transaction, problemID int64) (model.Problem, error)
	// LockForUpdate takes a row lock on the problem inside tx.
	LockForUpdate(ctx context.Context, tx db.Transaction, problemID int64) error
	UpdateStats(ctx context.Context, problemID, accepted, total int64) error
	ListIDs(ctx context.Context) ([]int64, error)
}

type SQLProblemRepository struct {
	db     db.Database
	loader *cache.Loader[model.Problem]
}

func NewProblemRepository(database db.Database, cacheClient cache.Cache) *SQLProblemRepository {
	return NewProblemRepositoryWithTTL(database, cacheClient, defaultProblemTTL, defaultProblemEmptyTTL)
}

func NewProblemRepositoryWithTTL(database db.Database, cacheClient cache.Cache, ttl, emptyTTL time.Duration) *SQLProblemRepository {
	if ttl <= 0 {
		ttl = defaultProblemTTL
	}
	if emptyTTL <= 0 {
		emptyTTL = defaultProblemEmptyTTL
	}
	return &SQLProblemRepository{
		db: database,
		loader: &cache.Loader[model.Problem]{
			Cache:    cacheClient,
			TTL:      ttl,
			EmptyTTL: emptyTTL,
			IsEmpty:  func(p model.Problem) bool { return p.ID == 0 },
		},
	}
}

// Get reads through the cache unless tx is set.
func (r *SQLProblemRepository) Get(ctx context.Context, tx db.Transaction, problemID int64) (model.Problem, error) {
	if tx != nil {
		return r.getFromDB(ctx, tx, problemID)
	}
	problem, err := r.loader.Load(ctx, problemKey(problemID), func(ctx context.Context) (model.Problem, error) {
		p, err := r.getFromDB(ctx, nil, problemID)
		if errors.Is(err, ErrProblemNotFound) {
			return model.Problem{}, nil
		}
		return p, err
	})
	if err != nil {
		return model.Problem{}, err
	}
	if problem.ID == 0 {
		return model.Problem{}, ErrProblemNotFound
	}
	return problem, nil
}

func (r *SQLProblemRepository) LockForUpdate(ctx context.Context, tx db.Transaction, problemID int64) error {
	var id int64
	err := db.GetQuerier(r.db, tx).QueryRow(ctx, "SELECT id FROM problem WHERE id = ? FOR UPDATE", problemID).Scan(&id)
	if db.IsNoRows(err) {
		return ErrProblemNotFound
	}
	return err
}

func (r *SQLProblemRepository) UpdateStats(ctx context.Context, problemID, accepted, total int64) error {
	query := "UPDATE problem SET accepted_submissions = ?, total_submissions = ?, updated_at = ? WHERE id = ?"
	result, err := r.db.Exec(ctx, query, accepted, total, time.Now(), problemID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	r.loader.Forget(ctx, problemKey(problemID))
	if affected == 0 {
		return ErrProblemNotFound
	}
	return nil
}

func (r *SQLProblemRepository) ListIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.Query(ctx, "SELECT id FROM problem ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *SQLProblemRepository) getFromDB(ctx context.Context, tx db.Transaction, problemID int64) (model.Problem, error) {
	query := `
		SELECT id, title, time_limit_ms, memory_limit_kb, accepted_submissions, total_submissions, updated_at
		FROM problem
		WHERE id = ?`

	var p model.Problem
	err := db.GetQuerier(r.db, tx).QueryRow(ctx, query, problemID).Scan(
		&p.ID,
		&p.Title,
		&p.TimeLimitMs,
		&p.MemoryLimitKB,
		&p.AcceptedSubmissions,
		&p.TotalSubmissions,
		&p.UpdatedAt,
	)
	if err != nil {
		if db.IsNoRows(err) {
			return model.Problem{}, ErrProblemNotFound
		}
		return model.Problem{}, err
	}
	return p, nil
}

func problemKey(problemID int64) string {
	return problemKeyPrefix + strconv.FormatInt(problemID, 10)
}
