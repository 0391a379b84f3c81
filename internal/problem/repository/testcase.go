package repository

import (
	"context"
	"errors"
	"time"

	"judgebroker/internal/common/db"
	"judgebroker/internal/problem/model"
)

var (
	ErrTestCaseNotFound      = errors.New("test case not found")
	ErrTestCaseLabelConflict = errors.New("test case label already exists")
)

// TestCaseRepository stores test cases. Every list is ordered by index, label, id.
type TestCaseRepository interface {
	ListByProblem(ctx context.Context, tx db.Transaction, problemID int64) ([]model.TestCase, error)
	ListLabels(ctx context.Context, tx db.Transaction, problemID int64) ([]string, error)
	MaxIndex(ctx context.Context, tx db.Transaction, problemID int64) (int64, error)
	Create(ctx context.Context, tx db.Transaction, tc *model.TestCase) error
	Delete(ctx context.Context, tx db.Transaction, problemID, testCaseID int64) error
}

type SQLTestCaseRepository struct {
	db db.Database
}

func NewTestCaseRepository(database db.Database) *SQLTestCaseRepository {
	return &SQLTestCaseRepository{db: database}
}

func (r *SQLTestCaseRepository) ListByProblem(ctx context.Context, tx db.Transaction, problemID int64) ([]model.TestCase, error) {
	query := `
		SELECT id, problem_id, input_data, expected_output, is_sample, points, label, idx, created_at
		FROM test_case
		WHERE problem_id = ?
		ORDER BY idx, label, id`

	rows, err := db.GetQuerier(r.db, tx).Query(ctx, query, problemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cases []model.TestCase
	for rows.Next() {
		tc, err := scanTestCase(rows)
		if err != nil {
			return nil, err
		}
		cases = append(cases, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return cases, nil
}

func (r *SQLTestCaseRepository) ListLabels(ctx context.Context, tx db.Transaction, problemID int64) ([]string, error) {
	rows, err := db.GetQuerier(r.db, tx).Query(ctx, "SELECT label FROM test_case WHERE problem_id = ?", problemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var labels []string
	for rows.Next() {
		var label string
		if err := rows.Scan(&label); err != nil {
			return nil, err
		}
		labels = append(labels, label)
	}
	return labels, rows.Err()
}

func (r *SQLTestCaseRepository) MaxIndex(ctx context.Context, tx db.Transaction, problemID int64) (int64, error) {
	var maxIndex int64
	err := db.GetQuerier(r.db, tx).
		QueryRow(ctx, "SELECT COALESCE(MAX(idx), 0) FROM test_case WHERE problem_id = ?", problemID).
		Scan(&maxIndex)
	if err != nil {
		return 0, err
	}
	return maxIndex, nil
}

// Create inserts tc and fills its ID and CreatedAt.
func (r *SQLTestCaseRepository) Create(ctx context.Context, tx db.Transaction, tc *model.TestCase) error {
	query := `
		INSERT INTO test_case (problem_id, input_data, expected_output, is_sample, points, label, idx, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	now := time.Now()
	id, err := db.InsertID(ctx, r.db, tx, query,
		tc.ProblemID,
		tc.InputData,
		tc.ExpectedOutput,
		tc.IsSample,
		tc.Points,
		tc.Label,
		tc.Index,
		now,
	)
	if err != nil {
		if _, dup := db.UniqueViolation(err); dup {
			return ErrTestCaseLabelConflict
		}
		return err
	}
	tc.ID = id
	tc.CreatedAt = now
	return nil
}

func (r *SQLTestCaseRepository) Delete(ctx context.Context, tx db.Transaction, problemID, testCaseID int64) error {
	result, err := db.GetQuerier(r.db, tx).Exec(ctx, "DELETE FROM test_case WHERE id = ? AND problem_id = ?", testCaseID, problemID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrTestCaseNotFound
	}
	return nil
}

func scanTestCase(scanner db.Scanner) (model.TestCase, error) {
	var tc model.TestCase
	err := scanner.Scan(
		&tc.ID,
		&tc.ProblemID,
		&tc.InputData,
		&tc.ExpectedOutput,
		&tc.IsSample,
		&tc.Points,
		&tc.Label,
		&tc.Index,
		&tc.CreatedAt,
	)
	return tc, err
}
