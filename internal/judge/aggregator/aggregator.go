// Package aggregator folds streamed per-test results into a submission verdict.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"judgebroker/internal/judge/execution"
	"judgebroker/internal/judge/model"
	problemmodel "judgebroker/internal/problem/model"
	"judgebroker/pkg/utils/logger"

	mapset "github.com/deckarep/golang-set/v2"
	"go.uber.org/zap"
)

// ErrFinalized is returned by Accept after Finalize.
var ErrFinalized = errors.New("aggregator already finalized")

// Recorder persists test case rows. Calls for one submission are serialized.
type Recorder interface {
	AppendTestcase(ctx context.Context, row model.TestcaseResult) error
}

// Verdict is the final or running outcome of a submission.
type Verdict struct {
	Status     model.Status `json:"status"`
	Score      int64        `json:"score"`
	TimeMs     int64        `json:"time_ms"`
	MemoryKB   int64        `json:"memory_kb"`
	Total      int          `json:"total"`
	Judged     int          `json:"judged"`
	Skipped    int          `json:"skipped"`
	Violations int          `json:"violations"`
}

// Aggregator collects results for one submission. It is safe for concurrent use,
// but rows are written one at a time in arrival order.
type Aggregator struct {
	submissionID string
	problemID    int64
	cases        []problemmodel.TestCase
	recorder     Recorder

	mu         sync.Mutex
	expected   mapset.Set[int64]
	seen       mapset.Set[int64]
	statuses   map[int64]outcome
	accepted   int
	violations int
	finalized  bool
}

type outcome struct {
	status   model.Status
	timeMs   int64
	memoryKB int64
	judged   bool
}

// New creates an aggregator. cases must be in execution order.
func New(submissionID string, problemID int64, cases []problemmodel.TestCase, recorder Recorder) *Aggregator {
	expected := mapset.NewThreadUnsafeSet[int64]()
	for _, tc := range cases {
		expected.Add(tc.ID)
	}
	return &Aggregator{
		submissionID: submissionID,
		problemID:    problemID,
		cases:        cases,
		recorder:     recorder,
		expected:     expected,
		seen:         mapset.NewThreadUnsafeSet[int64](),
		statuses:     make(map[int64]outcome, len(cases)),
	}
}

// Accept records one result. A second result for the same test case, or one for a
// test case that was never sent, is a protocol violation: it is logged and ignored.
func (a *Aggregator) Accept(ctx context.Context, r execution.PerTestResult) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.finalized {
		return ErrFinalized
	}
	if !a.expected.Contains(r.TestCaseID) {
		a.violations++
		logger.Warn(ctx, "result for unknown test case ignored",
			zap.String("submission_id", a.submissionID), zap.Int64("test_case_id", r.TestCaseID))
		return nil
	}
	if !a.seen.Add(r.TestCaseID) {
		a.violations++
		logger.Warn(ctx, "duplicate test case result ignored",
			zap.String("submission_id", a.submissionID), zap.Int64("test_case_id", r.TestCaseID))
		return nil
	}

	row := model.TestcaseResult{
		SubmissionID: a.submissionID,
		TestCaseID:   r.TestCaseID,
		ProblemID:    a.problemID,
		Status:       r.Status,
		Stdout:       r.Stdout,
		RuntimeMs:    r.TimeMs,
		MemoryKB:     r.MemoryKB,
		CreatedAt:    time.Now(),
	}
	if err := a.recorder.AppendTestcase(ctx, row); err != nil {
		a.seen.Remove(r.TestCaseID)
		return fmt.Errorf("append test case result failed: %w", err)
	}
	a.statuses[r.TestCaseID] = outcome{status: r.Status, timeMs: r.TimeMs, memoryKB: r.MemoryKB, judged: true}
	a.accepted++
	return nil
}

// AddViolations counts violations detected before results reached the aggregator.
func (a *Aggregator) AddViolations(n int) {
	if n <= 0 {
		return
	}
	a.mu.Lock()
	a.violations += n
	a.mu.Unlock()
}

// Snapshot returns the running verdict over the results received so far.
// Unjudged cases are not counted as skipped until Finalize.
func (a *Aggregator) Snapshot() Verdict {
	a.mu.Lock()
	defer a.mu.Unlock()
	v := compute(a.cases, a.statuses)
	v.Violations = a.violations
	if v.Judged < v.Total {
		v.Status = model.StatusRunning
	}
	return v
}

// Finalize writes a Skipped row for every test case without a result and returns
// the final verdict. It must be called once, after the stream ended.
func (a *Aggregator) Finalize(ctx context.Context) (Verdict, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.finalized {
		return Verdict{}, ErrFinalized
	}
	for _, tc := range a.cases {
		if a.seen.Contains(tc.ID) {
			continue
		}
		row := model.TestcaseResult{
			SubmissionID: a.submissionID,
			TestCaseID:   tc.ID,
			ProblemID:    a.problemID,
			Status:       model.StatusSkipped,
			CreatedAt:    time.Now(),
		}
		if err := a.recorder.AppendTestcase(ctx, row); err != nil {
			return Verdict{}, fmt.Errorf("append skipped test case failed: %w", err)
		}
		a.seen.Add(tc.ID)
		a.statuses[tc.ID] = outcome{status: model.StatusSkipped}
	}
	a.finalized = true

	v := compute(a.cases, a.statuses)
	v.Violations = a.violations
	if a.violations > 0 && a.violations > a.accepted {
		v.Status = model.StatusSystemError
	}
	return v, nil
}

// compute walks cases in index order, so the result never depends on arrival order:
//   - any CompileError gives CompileError with score 0;
//   - all Accepted gives Accepted with the sum of points;
//   - otherwise the first failing case decides, preferring a judged failure over
//     Skipped, and the score is the points of Accepted cases.
//
// Time and memory are maxima over judged cases. Cases without an entry count as skipped.
func compute(cases []problemmodel.TestCase, outcomes map[int64]outcome) Verdict {
	v := Verdict{Total: len(cases), Status: model.StatusAccepted}
	var firstFailure model.Status
	compileError, anySkipped := false, false

	for _, tc := range cases {
		o, ok := outcomes[tc.ID]
		if !ok {
			o = outcome{status: model.StatusSkipped}
		}
		if o.judged {
			v.Judged++
			if o.timeMs > v.TimeMs {
				v.TimeMs = o.timeMs
			}
			if o.memoryKB > v.MemoryKB {
				v.MemoryKB = o.memoryKB
			}
		} else {
			v.Skipped++
		}

		switch o.status {
		case model.StatusAccepted:
			v.Score += tc.Points
		case model.StatusCompileError:
			compileError = true
		case model.StatusSkipped:
			anySkipped = true
		default:
			if firstFailure == "" {
				firstFailure = o.status
			}
		}
	}

	switch {
	case compileError:
		v.Status = model.StatusCompileError
		v.Score = 0
	case firstFailure != "":
		v.Status = firstFailure
	case anySkipped:
		v.Status = model.StatusSkipped
	}
	return v
}
