package repository

import (
	"context"
	"errors"
	"time"

	"judgebroker/internal/common/db"
	judgemodel "judgebroker/internal/judge/model"
	"judgebroker/internal/submit/model"
)

var (
	ErrSubmissionNotFound = errors.New("submission not found")
	// ErrNotActive is returned when a guarded transition finds the row already terminal.
	ErrNotActive = errors.New("submission is not active")
)

// SubmissionRepository defines submission persistence interfaces.
type SubmissionRepository interface {
	Create(ctx context.Context, tx db.Transaction, submission *model.Submission) error
	GetByID(ctx context.Context, tx db.Transaction, submissionID string) (*model.Submission, error)
	MarkRunning(ctx context.Context, submissionID string) error
	Finalize(ctx context.Context, submissionID string, final model.FinalResult) error
	AppendTestcase(ctx context.Context, row judgemodel.TestcaseResult) error
	ListTestcases(ctx context.Context, submissionID string) ([]judgemodel.TestcaseResult, error)
	ListUnfinished(ctx context.Context, limit int) ([]model.Submission, error)
	CountByProblem(ctx context.Context, problemID int64) (accepted, total int64, err error)
}

// SQLSubmissionRepository implements SubmissionRepository on database/sql.
type SQLSubmissionRepository struct {
	db db.Database
}

// NewSubmissionRepository creates a submission repository.
func NewSubmissionRepository(database db.Database) *SQLSubmissionRepository {
	return &SQLSubmissionRepository{db: database}
}

const submissionColumns = "id, user_id, problem_id, language_id, code, status, score, time_ms, memory_kb, error_message, created_at, finished_at"

// Create inserts a Queued submission.
func (r *SQLSubmissionRepository) Create(ctx context.Context, tx db.Transaction, submission *model.Submission) error {
	if submission == nil {
		return errors.New("submission is nil")
	}
	if submission.ID == "" {
		return errors.New("submissionID is required")
	}
	if submission.ProblemID <= 0 {
		return errors.New("problemID is required")
	}
	if submission.LanguageID == "" {
		return errors.New("languageID is required")
	}
	if submission.Status == "" {
		submission.Status = judgemodel.StatusQueued
	}
	if submission.CreatedAt.IsZero() {
		submission.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO submission
		(id, user_id, problem_id, language_id, code, status, score, time_ms, memory_kb, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, 0, 0, '', ?)
	`
	_, err := db.GetQuerier(r.db, tx).Exec(
		ctx,
		query,
		submission.ID,
		submission.UserID,
		submission.ProblemID,
		submission.LanguageID,
		submission.Code,
		string(submission.Status),
		submission.CreatedAt,
	)
	return err
}

// GetByID retrieves a submission by id.
func (r *SQLSubmissionRepository) GetByID(ctx context.Context, tx db.Transaction, submissionID string) (*model.Submission, error) {
	if submissionID == "" {
		return nil, errors.New("submissionID is required")
	}
	query := "SELECT " + submissionColumns + " FROM submission WHERE id = ? LIMIT 1"
	submission, err := scanSubmission(db.GetQuerier(r.db, tx).QueryRow(ctx, query, submissionID))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrSubmissionNotFound
		}
		return nil, err
	}
	return &submission, nil
}

// MarkRunning moves a Queued submission to Running.
func (r *SQLSubmissionRepository) MarkRunning(ctx context.Context, submissionID string) error {
	result, err := r.db.Exec(ctx,
		"UPDATE submission SET status = ? WHERE id = ? AND status = ?",
		string(judgemodel.StatusRunning), submissionID, string(judgemodel.StatusQueued),
	)
	if err != nil {
		return err
	}
	return expectOneRow(result)
}

// Finalize writes the terminal state. Only Queued or Running rows are updated, so a
// submission never leaves a terminal state.
func (r *SQLSubmissionRepository) Finalize(ctx context.Context, submissionID string, final model.FinalResult) error {
	if !final.Status.IsTerminal() {
		return errors.New("final status must be terminal")
	}
	if final.FinishedAt.IsZero() {
		final.FinishedAt = time.Now()
	}
	query := `
		UPDATE submission
		SET status = ?, score = ?, time_ms = ?, memory_kb = ?, error_message = ?, finished_at = ?
		WHERE id = ? AND status IN (?, ?)
	`
	result, err := r.db.Exec(ctx, query,
		string(final.Status),
		final.Score,
		final.TimeMs,
		final.MemoryKB,
		final.ErrorMessage,
		final.FinishedAt,
		submissionID,
		string(judgemodel.StatusQueued),
		string(judgemodel.StatusRunning),
	)
	if err != nil {
		return err
	}
	return expectOneRow(result)
}

// AppendTestcase inserts one per-test row. A row already stored for the same
// (submission, test case) pair is left as is.
func (r *SQLSubmissionRepository) AppendTestcase(ctx context.Context, row judgemodel.TestcaseResult) error {
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now()
	}
	query := `
		INSERT INTO submission_testcase
		(submission_id, testcase_id, problem_id, status, stdout, runtime_ms, memory_kb, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(ctx, query,
		row.SubmissionID,
		row.TestCaseID,
		row.ProblemID,
		string(row.Status),
		row.Stdout,
		row.RuntimeMs,
		row.MemoryKB,
		row.CreatedAt,
	)
	if _, dup := db.UniqueViolation(err); dup {
		return nil
	}
	return err
}

// ListTestcases returns the rows persisted so far in insertion order.
func (r *SQLSubmissionRepository) ListTestcases(ctx context.Context, submissionID string) ([]judgemodel.TestcaseResult, error) {
	query := `
		SELECT submission_id, testcase_id, problem_id, status, stdout, runtime_ms, memory_kb, created_at
		FROM submission_testcase
		WHERE submission_id = ?
		ORDER BY id`

	rows, err := r.db.Query(ctx, query, submissionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]judgemodel.TestcaseResult, 0)
	for rows.Next() {
		var (
			row    judgemodel.TestcaseResult
			status string
		)
		if err := rows.Scan(
			&row.SubmissionID,
			&row.TestCaseID,
			&row.ProblemID,
			&status,
			&row.Stdout,
			&row.RuntimeMs,
			&row.MemoryKB,
			&row.CreatedAt,
		); err != nil {
			return nil, err
		}
		row.Status = judgemodel.Status(status)
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// ListUnfinished returns submissions still Queued or Running, oldest first.
func (r *SQLSubmissionRepository) ListUnfinished(ctx context.Context, limit int) ([]model.Submission, error) {
	if limit <= 0 {
		limit = 500
	}
	query := "SELECT " + submissionColumns + " FROM submission WHERE status IN (?, ?) ORDER BY created_at LIMIT ?"
	rows, err := r.db.Query(ctx, query, string(judgemodel.StatusQueued), string(judgemodel.StatusRunning), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var submissions []model.Submission
	for rows.Next() {
		submission, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		submissions = append(submissions, submission)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return submissions, nil
}

// CountByProblem counts accepted and total submissions of a problem.
func (r *SQLSubmissionRepository) CountByProblem(ctx context.Context, problemID int64) (int64, int64, error) {
	query := `
		SELECT COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0), COUNT(*)
		FROM submission
		WHERE problem_id = ?`

	var accepted, total int64
	if err := r.db.QueryRow(ctx, query, string(judgemodel.StatusAccepted), problemID).Scan(&accepted, &total); err != nil {
		return 0, 0, err
	}
	return accepted, total, nil
}

func expectOneRow(result db.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotActive
	}
	return nil
}

func scanSubmission(scanner db.Scanner) (model.Submission, error) {
	var (
		submission model.Submission
		status     string
		finishedAt *time.Time
	)
	err := scanner.Scan(
		&submission.ID,
		&submission.UserID,
		&submission.ProblemID,
		&submission.LanguageID,
		&submission.Code,
		&status,
		&submission.Score,
		&submission.TimeMs,
		&submission.MemoryKB,
		&submission.ErrorMessage,
		&submission.CreatedAt,
		&finishedAt,
	)
	if err != nil {
		return model.Submission{}, err
	}
	submission.Status = judgemodel.Status(status)
	submission.FinishedAt = finishedAt
	return submission, nil
}
