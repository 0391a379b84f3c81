package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"judgebroker/internal/common/db"
	"judgebroker/internal/problem/model"
	"judgebroker/internal/problem/repository"
	pkgerrors "judgebroker/pkg/errors"
	"judgebroker/pkg/utils/logger"

	"go.uber.org/zap"
)

// InFlightChecker reports whether a submission for the problem is currently executing.
type InFlightChecker interface {
	InFlight(problemID int64) bool
}

// NewTestCase is the admin input for one test case.
type NewTestCase struct {
	InputData      string
	ExpectedOutput string
	IsSample       bool
	Points         int64
	Label          string
}

// TestCaseService implements the admin write path for test cases.
type TestCaseService struct {
	db       db.Database
	problems repository.ProblemRepository
	repo     repository.TestCaseRepository
	provider *TestCaseProvider
	inFlight InFlightChecker
}

func NewTestCaseService(database db.Database, problems repository.ProblemRepository, repo repository.TestCaseRepository, provider *TestCaseProvider, inFlight InFlightChecker) *TestCaseService {
	return &TestCaseService{
		db:       database,
		problems: problems,
		repo:     repo,
		provider: provider,
		inFlight: inFlight,
	}
}

// Create adds one test case after the existing ones.
func (s *TestCaseService) Create(ctx context.Context, problemID int64, input NewTestCase) (model.TestCase, error) {
	created, err := s.CreateBatch(ctx, problemID, []NewTestCase{input})
	if err != nil {
		return model.TestCase{}, err
	}
	return created[0], nil
}

// CreateBatch inserts test cases in one transaction. Indices continue after the
// current maximum in input order; an empty label defaults to the index.
func (s *TestCaseService) CreateBatch(ctx context.Context, problemID int64, inputs []NewTestCase) ([]model.TestCase, error) {
	if problemID <= 0 {
		return nil, pkgerrors.ValidationError("problem_id", "must be positive")
	}
	if len(inputs) == 0 {
		return nil, pkgerrors.ValidationError("test_cases", "must not be empty")
	}
	for _, in := range inputs {
		if in.Points < 0 {
			return nil, pkgerrors.ValidationError("points", "must not be negative")
		}
	}

	var created []model.TestCase
	err := s.db.Transaction(ctx, func(tx db.Transaction) error {
		if err := s.problems.LockForUpdate(ctx, tx, problemID); err != nil {
			return err
		}
		labels, err := s.repo.ListLabels(ctx, tx, problemID)
		if err != nil {
			return err
		}
		taken := make(map[string]struct{}, len(labels)+len(inputs))
		for _, label := range labels {
			taken[label] = struct{}{}
		}
		maxIndex, err := s.repo.MaxIndex(ctx, tx, problemID)
		if err != nil {
			return err
		}

		created = make([]model.TestCase, 0, len(inputs))
		for i, in := range inputs {
			index := maxIndex + int64(i) + 1
			label := in.Label
			if label == "" {
				label = strconv.FormatInt(index, 10)
			}
			if _, dup := taken[label]; dup {
				return pkgerrors.Newf(pkgerrors.TestCaseLabelConflict, "label %q already exists", label).
					WithDetail("label", label)
			}
			taken[label] = struct{}{}

			tc := model.TestCase{
				ProblemID:      problemID,
				InputData:      in.InputData,
				ExpectedOutput: in.ExpectedOutput,
				IsSample:       in.IsSample,
				Points:         in.Points,
				Label:          label,
				Index:          index,
			}
			if err := s.repo.Create(ctx, tx, &tc); err != nil {
				return err
			}
			created = append(created, tc)
		}
		return nil
	})
	if err != nil {
		return nil, translateWriteError(problemID, err)
	}

	s.provider.Invalidate(ctx, problemID)
	logger.Info(ctx, "test cases created", zap.Int64("problem_id", problemID), zap.Int("count", len(created)))
	return created, nil
}

// Delete removes a test case unless a submission for the problem is executing.
func (s *TestCaseService) Delete(ctx context.Context, problemID, testCaseID int64) error {
	if problemID <= 0 || testCaseID <= 0 {
		return pkgerrors.New(pkgerrors.InvalidParams)
	}
	if s.inFlight != nil && s.inFlight.InFlight(problemID) {
		return pkgerrors.New(pkgerrors.TestCaseInUse).WithDetail("problem_id", problemID)
	}
	if err := s.repo.Delete(ctx, nil, problemID, testCaseID); err != nil {
		if errors.Is(err, repository.ErrTestCaseNotFound) {
			return pkgerrors.New(pkgerrors.TestCaseNotFound).WithDetail("test_case_id", testCaseID)
		}
		return pkgerrors.Wrap(fmt.Errorf("delete test case failed: %w", err), pkgerrors.DatabaseError)
	}
	s.provider.Invalidate(ctx, problemID)
	logger.Info(ctx, "test case deleted", zap.Int64("problem_id", problemID), zap.Int64("test_case_id", testCaseID))
	return nil
}

func translateWriteError(problemID int64, err error) error {
	var coded *pkgerrors.Error
	switch {
	case errors.As(err, &coded):
		return coded
	case errors.Is(err, repository.ErrProblemNotFound):
		return pkgerrors.New(pkgerrors.ProblemNotFound).WithDetail("problem_id", problemID)
	case errors.Is(err, repository.ErrTestCaseLabelConflict):
		return pkgerrors.New(pkgerrors.TestCaseLabelConflict)
	default:
		return pkgerrors.Wrap(fmt.Errorf("create test cases failed: %w", err), pkgerrors.DatabaseError)
	}
}
