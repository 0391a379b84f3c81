package execution

import (
	"context"
	"errors"
	"io"
	"unicode/utf8"

	"judgebroker/internal/judge/model"
	pkgerrors "judgebroker/pkg/errors"
	"judgebroker/pkg/utils/logger"

	mapset "github.com/deckarep/golang-set/v2"
	"go.uber.org/zap"
)

const DefaultMaxStdoutBytes = 64 << 10

// PerTestResult is a validated result ready for aggregation.
type PerTestResult struct {
	TestCaseID int64
	Status     model.Status
	Stdout     string
	TimeMs     int64
	MemoryKB   int64
}

// Sink receives every valid result in arrival order. An error stops the run.
type Sink func(ctx context.Context, result PerTestResult) error

// Outcome summarizes one stream.
type Outcome struct {
	Received   int
	Violations int
}

// Client drives one execution stream per call. It never retries.
type Client struct {
	backend   Backend
	maxStdout int
}

func NewClient(backend Backend, maxStdoutBytes int) *Client {
	if maxStdoutBytes <= 0 {
		maxStdoutBytes = DefaultMaxStdoutBytes
	}
	return &Client{backend: backend, maxStdout: maxStdoutBytes}
}

// Run sends req and relays each valid result to sink until the stream ends.
//
// A stream that cannot be opened or breaks is ExecutionBackendUnavailable; a
// cancelled or expired ctx is ExecutionCancelled or ExecutionTimeout. A normal
// close returns a nil error even when results are missing. Results naming an
// unknown test case or carrying an unknown status are dropped and counted as
// violations.
func (c *Client) Run(ctx context.Context, req *Request, sink Sink) (Outcome, error) {
	var outcome Outcome
	if req == nil || len(req.TestCases) == 0 {
		return outcome, pkgerrors.ValidationError("test_cases", "must not be empty")
	}
	sent := mapset.NewThreadUnsafeSet[int64]()
	for _, tc := range req.TestCases {
		sent.Add(tc.ID)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := c.backend.Execute(streamCtx, req)
	if err != nil {
		if ctxErr := contextError(ctx); ctxErr != nil {
			return outcome, ctxErr
		}
		return outcome, pkgerrors.Wrapf(err, pkgerrors.ExecutionBackendUnavailable, "open execution stream failed: %v", err)
	}

	for {
		res, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return outcome, nil
		}
		if err != nil {
			if ctxErr := contextError(ctx); ctxErr != nil {
				return outcome, ctxErr
			}
			return outcome, pkgerrors.Wrapf(err, pkgerrors.ExecutionBackendUnavailable, "execution stream failed: %v", err)
		}
		outcome.Received++

		result, reason := c.validate(req.SubmissionID, sent, res)
		if reason != "" {
			outcome.Violations++
			fields := []zap.Field{zap.String("reason", reason)}
			if res != nil {
				fields = append(fields, zap.Int64("test_case_id", res.TestCaseID), zap.String("status", res.Status))
			}
			logger.Warn(ctx, "execution protocol violation", fields...)
			continue
		}
		if err := sink(ctx, result); err != nil {
			return outcome, err
		}
	}
}

func (c *Client) validate(submissionID string, sent mapset.Set[int64], res *Result) (PerTestResult, string) {
	if res == nil {
		return PerTestResult{}, "empty message"
	}
	if res.SubmissionID != "" && res.SubmissionID != submissionID {
		return PerTestResult{}, "foreign submission id"
	}
	if !sent.Contains(res.TestCaseID) {
		return PerTestResult{}, "unknown test case id"
	}
	status, ok := model.ParseVerdict(res.Status)
	if !ok {
		return PerTestResult{}, "unknown status"
	}
	if res.TimeMs < 0 || res.MemoryKB < 0 {
		return PerTestResult{}, "negative resource usage"
	}
	return PerTestResult{
		TestCaseID: res.TestCaseID,
		Status:     status,
		Stdout:     TruncateOutput(res.Stdout, c.maxStdout),
		TimeMs:     res.TimeMs,
		MemoryKB:   res.MemoryKB,
	}, ""
}

func contextError(ctx context.Context) error {
	switch ctx.Err() {
	case nil:
		return nil
	case context.DeadlineExceeded:
		return pkgerrors.New(pkgerrors.ExecutionTimeout)
	default:
		return pkgerrors.New(pkgerrors.ExecutionCancelled)
	}
}

// TruncateOutput cuts s to at most max bytes without splitting a UTF-8 sequence.
func TruncateOutput(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
