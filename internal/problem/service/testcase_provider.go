package service

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"judgebroker/internal/common/cache"
	"judgebroker/internal/problem/model"
	"judgebroker/internal/problem/repository"
	pkgerrors "judgebroker/pkg/errors"
)

const (
	defaultTestCaseTTL      = 10 * time.Minute
	defaultTestCaseEmptyTTL = 30 * time.Second
	testCaseKeyPrefix       = "problem:testcases:"
)

// TestCaseProvider serves the ordered test cases of a problem.
// Reads go through the cache when one is configured; concurrent loads of the same
// problem share one store query.
type TestCaseProvider struct {
	repo   repository.TestCaseRepository
	loader *cache.Loader[[]model.TestCase]
}

// ProviderOptions tunes cache TTLs.
type ProviderOptions struct {
	TTL      time.Duration
	EmptyTTL time.Duration
}

func NewTestCaseProvider(repo repository.TestCaseRepository, cacheClient cache.Cache, opts ProviderOptions) *TestCaseProvider {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = defaultTestCaseTTL
	}
	emptyTTL := opts.EmptyTTL
	if emptyTTL <= 0 {
		emptyTTL = defaultTestCaseEmptyTTL
	}
	return &TestCaseProvider{
		repo: repo,
		loader: &cache.Loader[[]model.TestCase]{
			Cache:    cacheClient,
			TTL:      ttl,
			EmptyTTL: emptyTTL,
			IsEmpty:  func(cases []model.TestCase) bool { return len(cases) == 0 },
		},
	}
}

// ListForExecution returns every test case of the problem, sample and hidden,
// ordered by index, label, id. A problem without test cases is TestCaseNotFound.
func (p *TestCaseProvider) ListForExecution(ctx context.Context, problemID int64) ([]model.TestCase, error) {
	if problemID <= 0 {
		return nil, pkgerrors.ValidationError("problem_id", "must be positive")
	}
	cases, err := p.load(ctx, problemID)
	if err != nil {
		return nil, err
	}
	if len(cases) == 0 {
		return nil, pkgerrors.Newf(pkgerrors.TestCaseNotFound, "problem %d has no test cases", problemID).
			WithDetail("problem_id", problemID)
	}
	return cases, nil
}

// ListForDisplay returns the presentation projection. Hidden cases carry no data.
func (p *TestCaseProvider) ListForDisplay(ctx context.Context, problemID int64) ([]model.TestCaseView, error) {
	if problemID <= 0 {
		return nil, pkgerrors.ValidationError("problem_id", "must be positive")
	}
	cases, err := p.load(ctx, problemID)
	if err != nil {
		return nil, err
	}
	views := make([]model.TestCaseView, 0, len(cases))
	for _, tc := range cases {
		views = append(views, tc.View())
	}
	return views, nil
}

// Invalidate drops the cached list for a problem.
func (p *TestCaseProvider) Invalidate(ctx context.Context, problemID int64) {
	p.loader.Forget(ctx, testCaseKey(problemID))
}

func (p *TestCaseProvider) load(ctx context.Context, problemID int64) ([]model.TestCase, error) {
	shared, err := p.loader.Load(ctx, testCaseKey(problemID), func(ctx context.Context) ([]model.TestCase, error) {
		return p.repo.ListByProblem(ctx, nil, problemID)
	})
	if err != nil {
		return nil, pkgerrors.Wrap(fmt.Errorf("list test cases failed: %w", err), pkgerrors.DatabaseError)
	}
	cases := make([]model.TestCase, len(shared))
	copy(cases, shared)
	SortTestCases(cases)
	return cases, nil
}

// SortTestCases orders test cases by index, then label, then id.
func SortTestCases(cases []model.TestCase) {
	sort.SliceStable(cases, func(i, j int) bool {
		a, b := cases[i], cases[j]
		if a.Index != b.Index {
			return a.Index < b.Index
		}
		if a.Label != b.Label {
			return a.Label < b.Label
		}
		return a.ID < b.ID
	})
}

func testCaseKey(problemID int64) string {
	return testCaseKeyPrefix + strconv.FormatInt(problemID, 10)
}
