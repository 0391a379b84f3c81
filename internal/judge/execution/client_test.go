package execution

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"judgebroker/internal/judge/model"
	pkgerrors "judgebroker/pkg/errors"
)

func testRequest(ids ...int64) *Request {
	req := &Request{SubmissionID: "sub", Code: "x", TimeLimitMs: 1000, MemoryLimitKB: 1024}
	for _, id := range ids {
		req.TestCases = append(req.TestCases, TestCaseSpec{ID: id, Input: "in", ExpectedOutput: "out"})
	}
	return req
}

type collector struct {
	mu      sync.Mutex
	results []PerTestResult
	err     error
}

func (c *collector) sink(ctx context.Context, r PerTestResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.results = append(c.results, r)
	return nil
}

func scripted(script Script) *LocalBackend {
	return NewLocalBackend(ScriptedExecutor{Script: func(*Request) Script { return script }})
}

func TestClientRelaysResults(t *testing.T) {
	backend := NewLocalBackend(ScriptedExecutor{Script: AcceptAll})
	client := NewClient(backend, 0)
	var got collector

	outcome, err := client.Run(context.Background(), testRequest(1, 2, 3), got.sink)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.Received != 3 || outcome.Violations != 0 {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	if len(got.results) != 3 || got.results[2].Status != model.StatusAccepted || got.results[2].TimeMs != 30 {
		t.Fatalf("unexpected results %+v", got.results)
	}
	if reqs := backend.Requests(); len(reqs) != 1 || len(reqs[0].TestCases) != 3 {
		t.Fatalf("expected exactly one request with three test cases")
	}
}

func TestClientDropsProtocolViolations(t *testing.T) {
	backend := scripted(Script{Results: []Result{
		{TestCaseID: 1, Status: "AC"},
		{TestCaseID: 99, Status: "AC"},
		{TestCaseID: 2, Status: "Mystery"},
		{TestCaseID: 2, Status: "WA", SubmissionID: "someone-else"},
		{TestCaseID: 2, Status: "WA", TimeMs: -1},
		{TestCaseID: 2, Status: "WA"},
	}})
	client := NewClient(backend, 0)
	var got collector

	outcome, err := client.Run(context.Background(), testRequest(1, 2), got.sink)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.Received != 6 || outcome.Violations != 4 {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	if len(got.results) != 2 || got.results[1].Status != model.StatusWrongAnswer {
		t.Fatalf("unexpected relayed results %+v", got.results)
	}
}

func TestClientPartialStreamIsNotAnError(t *testing.T) {
	backend := scripted(Script{Results: []Result{{TestCaseID: 1, Status: "AC"}, {TestCaseID: 2, Status: "AC"}}})
	var got collector

	outcome, err := NewClient(backend, 0).Run(context.Background(), testRequest(1, 2, 3, 4, 5), got.sink)
	if err != nil {
		t.Fatalf("partial stream should end without error, got %v", err)
	}
	if outcome.Received != 2 {
		t.Fatalf("expected 2 received, got %d", outcome.Received)
	}
}

func TestClientFailures(t *testing.T) {
	tests := []struct {
		name     string
		backend  Backend
		ctx      func() (context.Context, context.CancelFunc)
		wantCode pkgerrors.ErrorCode
		wantRecv int
	}{
		{
			name:     "unreachable backend",
			backend:  UnreachableBackend(errors.New("connection refused")),
			wantCode: pkgerrors.ExecutionBackendUnavailable,
		},
		{
			name:     "stream error after results",
			backend:  scripted(Script{Results: []Result{{TestCaseID: 1, Status: "AC"}}, Err: errors.New("sandbox crashed")}),
			wantCode: pkgerrors.ExecutionBackendUnavailable,
			wantRecv: 1,
		},
		{
			name:    "deadline",
			backend: scripted(Script{Results: []Result{{TestCaseID: 1, Status: "AC"}}, Block: true}),
			ctx: func() (context.Context, context.CancelFunc) {
				return context.WithTimeout(context.Background(), 50*time.Millisecond)
			},
			wantCode: pkgerrors.ExecutionTimeout,
			wantRecv: 1,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx, cancel := context.Background(), context.CancelFunc(func() {})
			if tt.ctx != nil {
				ctx, cancel = tt.ctx()
			}
			defer cancel()
			var got collector

			outcome, err := NewClient(tt.backend, 0).Run(ctx, testRequest(1, 2), got.sink)
			if code := pkgerrors.GetCode(err); code != tt.wantCode {
				t.Fatalf("expected code %d, got %d (%v)", tt.wantCode, code, err)
			}
			if outcome.Received != tt.wantRecv {
				t.Fatalf("expected %d received, got %d", tt.wantRecv, outcome.Received)
			}
		})
	}
}

func TestClientCancel(t *testing.T) {
	backend := scripted(Script{Results: []Result{{TestCaseID: 1, Status: "AC"}}, Block: true})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink := func(ctx context.Context, r PerTestResult) error {
		cancel()
		return nil
	}
	_, err := NewClient(backend, 0).Run(ctx, testRequest(1, 2), sink)
	if !pkgerrors.Is(err, pkgerrors.ExecutionCancelled) {
		t.Fatalf("expected ExecutionCancelled, got %v", err)
	}
}

func TestClientStopsOnSinkError(t *testing.T) {
	backend := NewLocalBackend(ScriptedExecutor{Script: AcceptAll})
	sinkErr := errors.New("write failed")
	got := collector{err: sinkErr}

	_, err := NewClient(backend, 0).Run(context.Background(), testRequest(1, 2), got.sink)
	if !errors.Is(err, sinkErr) {
		t.Fatalf("expected sink error, got %v", err)
	}
}

func TestClientTruncatesStdout(t *testing.T) {
	backend := scripted(Script{Results: []Result{{TestCaseID: 1, Status: "AC", Stdout: "héllo"}}})
	var got collector

	if _, err := NewClient(backend, 2).Run(context.Background(), testRequest(1), got.sink); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got.results[0].Stdout != "h" {
		t.Fatalf("expected truncation at rune boundary, got %q", got.results[0].Stdout)
	}
}

func TestTruncateOutput(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"abc", 5, "abc"},
		{"abcdef", 3, "abc"},
		{"日本語", 4, "日"},
		{"日本語", 6, "日本"},
		{"abc", 0, "abc"},
	}
	for _, tt := range tests {
		if got := TruncateOutput(tt.in, tt.max); got != tt.want {
			t.Errorf("TruncateOutput(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}
