package service

import (
	"context"
	"errors"
	"fmt"

	"judgebroker/internal/problem/model"
	"judgebroker/internal/problem/repository"
	pkgerrors "judgebroker/pkg/errors"
)

// ProblemService handles problem queries for display.
type ProblemService struct {
	repo     repository.ProblemRepository
	provider *TestCaseProvider
}

// NewProblemService creates a new ProblemService.
func NewProblemService(repo repository.ProblemRepository, provider *TestCaseProvider) *ProblemService {
	return &ProblemService{repo: repo, provider: provider}
}

// ProblemDetail is a problem with its display-safe test cases.
type ProblemDetail struct {
	model.Problem
	TestCases []model.TestCaseView `json:"test_cases"`
}

// Get returns the problem, its statistics and the display view of its test cases.
// A problem without test cases is returned with an empty list.
func (s *ProblemService) Get(ctx context.Context, problemID int64) (ProblemDetail, error) {
	if problemID <= 0 {
		return ProblemDetail{}, pkgerrors.New(pkgerrors.InvalidParams)
	}

	problem, err := s.repo.Get(ctx, nil, problemID)
	if err != nil {
		if errors.Is(err, repository.ErrProblemNotFound) {
			return ProblemDetail{}, pkgerrors.New(pkgerrors.ProblemNotFound).WithDetail("problem_id", problemID)
		}
		return ProblemDetail{}, pkgerrors.Wrap(fmt.Errorf("get problem failed: %w", err), pkgerrors.DatabaseError)
	}

	views, err := s.provider.ListForDisplay(ctx, problemID)
	if err != nil && !pkgerrors.Is(err, pkgerrors.TestCaseNotFound) {
		return ProblemDetail{}, err
	}
	if views == nil {
		views = []model.TestCaseView{}
	}
	return ProblemDetail{Problem: problem, TestCases: views}, nil
}
