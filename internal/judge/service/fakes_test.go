package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"judgebroker/internal/common/cache"
	"judgebroker/internal/common/db"
	"judgebroker/internal/common/mq"
	"judgebroker/internal/judge/execution"
	"judgebroker/internal/judge/language"
	"judgebroker/internal/judge/model"
	"judgebroker/internal/judge/repository"
	problemmodel "judgebroker/internal/problem/model"
	problemrepo "judgebroker/internal/problem/repository"
	submitmodel "judgebroker/internal/submit/model"
	submitrepo "judgebroker/internal/submit/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeSubmissions struct {
	mu        sync.Mutex
	subs      map[string]*submitmodel.Submission
	rows      []model.TestcaseResult
	log       []string
	appendErr error
	getErr    error
}

func newFakeSubmissions(subs ...submitmodel.Submission) *fakeSubmissions {
	f := &fakeSubmissions{subs: make(map[string]*submitmodel.Submission)}
	for i := range subs {
		s := subs[i]
		if s.Status == "" {
			s.Status = model.StatusQueued
		}
		f.subs[s.ID] = &s
	}
	return f
}

func (f *fakeSubmissions) Create(_ context.Context, _ db.Transaction, s *submitmodel.Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *s
	f.subs[s.ID] = &copied
	return nil
}

func (f *fakeSubmissions) GetByID(ctx context.Context, _ db.Transaction, id string) (*submitmodel.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.getErr != nil {
		return nil, f.getErr
	}
	s, ok := f.subs[id]
	if !ok {
		return nil, submitrepo.ErrSubmissionNotFound
	}
	copied := *s
	return &copied, nil
}

func (f *fakeSubmissions) MarkRunning(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.subs[id]
	if !ok || s.Status != model.StatusQueued {
		return submitrepo.ErrNotActive
	}
	s.Status = model.StatusRunning
	return nil
}

func (f *fakeSubmissions) Finalize(_ context.Context, id string, final submitmodel.FinalResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.subs[id]
	if !ok || s.Status.IsTerminal() {
		return submitrepo.ErrNotActive
	}
	s.Apply(final)
	f.log = append(f.log, "final")
	return nil
}

func (f *fakeSubmissions) AppendTestcase(_ context.Context, row model.TestcaseResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	f.rows = append(f.rows, row)
	f.log = append(f.log, "row")
	return nil
}

func (f *fakeSubmissions) ListTestcases(_ context.Context, id string) ([]model.TestcaseResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.TestcaseResult
	for _, row := range f.rows {
		if row.SubmissionID == id {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakeSubmissions) ListUnfinished(_ context.Context, _ int) ([]submitmodel.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []submitmodel.Submission
	for _, s := range f.subs {
		if !s.Status.IsTerminal() {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeSubmissions) CountByProblem(context.Context, int64) (int64, int64, error) {
	return 0, 0, nil
}

func (f *fakeSubmissions) get(id string) submitmodel.Submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.subs[id]
}

func (f *fakeSubmissions) rowCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

func (f *fakeSubmissions) history() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.log...)
}

type fakeTestCases struct {
	cases map[int64][]problemmodel.TestCase
	panic bool
}

func (f *fakeTestCases) ListForExecution(_ context.Context, problemID int64) ([]problemmodel.TestCase, error) {
	if f.panic {
		panic("test case source exploded")
	}
	return f.cases[problemID], nil
}

type fakeProblems struct{}

func (fakeProblems) Get(_ context.Context, _ db.Transaction, problemID int64) (problemmodel.Problem, error) {
	if problemID == 404 {
		return problemmodel.Problem{}, problemrepo.ErrProblemNotFound
	}
	return problemmodel.Problem{ID: problemID, TimeLimitMs: 1000, MemoryLimitKB: 65536}, nil
}

type fakeEvents struct {
	mu     sync.Mutex
	events []model.StatusEvent
}

func (f *fakeEvents) PublishFinalStatus(_ context.Context, event model.StatusEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeEvents) all() []model.StatusEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.StatusEvent(nil), f.events...)
}

type fakeProgress struct {
	mu     sync.Mutex
	events []model.ProgressEvent
}

func (f *fakeProgress) PublishProgress(_ context.Context, event model.ProgressEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeProgress) all() []model.ProgressEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.ProgressEvent(nil), f.events...)
}

type recordingQueue struct {
	mu        sync.Mutex
	published map[string][]*mq.Message
}

func (q *recordingQueue) Publish(_ context.Context, topic string, message *mq.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.published == nil {
		q.published = make(map[string][]*mq.Message)
	}
	q.published[topic] = append(q.published[topic], message)
	return nil
}

func (q *recordingQueue) SubscribeWithOptions(context.Context, string, mq.HandlerFunc, *mq.SubscribeOptions) error {
	return nil
}

func (q *recordingQueue) Start() error { return nil }

func (q *recordingQueue) Stop() error { return nil }

func (q *recordingQueue) Ping(context.Context) error { return nil }

func (q *recordingQueue) Close() error { return nil }

func (q *recordingQueue) messages(topic string) []*mq.Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*mq.Message(nil), q.published[topic]...)
}

type harness struct {
	svc      *Service
	subs     *fakeSubmissions
	cases    *fakeTestCases
	events   *fakeEvents
	progress *fakeProgress
	status   *repository.StatusRepository
	backend  *execution.LocalBackend
}

const testProblemID = 7

func threeCases() []problemmodel.TestCase {
	return []problemmodel.TestCase{
		{ID: 101, ProblemID: testProblemID, Index: 1, Points: 10, InputData: "1", ExpectedOutput: "1"},
		{ID: 102, ProblemID: testProblemID, Index: 2, Points: 20, InputData: "2", ExpectedOutput: "4"},
		{ID: 103, ProblemID: testProblemID, Index: 3, Points: 30, InputData: "3", ExpectedOutput: "9"},
	}
}

func queued(id string) submitmodel.Submission {
	return submitmodel.Submission{ID: id, UserID: 5, ProblemID: testProblemID, LanguageID: "py3", Code: "print(input())"}
}

func newHarness(t *testing.T, backend *execution.LocalBackend, configure func(*Config), subs ...submitmodel.Submission) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := cache.NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	registry, err := language.NewRegistry([]language.Config{
		{ID: "py3", Name: "Python", SourceFileExt: "py", RunCommand: "python3 $SourceFileName"},
	})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	h := &harness{
		subs:     newFakeSubmissions(subs...),
		cases:    &fakeTestCases{cases: map[int64][]problemmodel.TestCase{testProblemID: threeCases()}},
		events:   &fakeEvents{},
		progress: &fakeProgress{},
		status:   repository.NewStatusRepository(c, time.Minute),
		backend:  backend,
	}
	cfg := Config{
		Submissions:       h.subs,
		StatusRepo:        h.status,
		TestCases:         h.cases,
		Problems:          fakeProblems{},
		Languages:         registry,
		Builder:           execution.NewBuilder(execution.Limits{}, 0),
		Client:            execution.NewClient(backend, 0),
		Events:            h.events,
		Progress:          h.progress,
		WorkerPoolSize:    2,
		QueueWait:         50 * time.Millisecond,
		SubmissionTimeout: 5 * time.Second,
	}
	if configure != nil {
		configure(&cfg)
	}
	svc, err := NewService(cfg)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Stop(ctx)
	})
	h.svc = svc
	return h
}

func scripted(fn func(req *execution.Request) execution.Script) *execution.LocalBackend {
	return execution.NewLocalBackend(execution.ScriptedExecutor{Script: fn})
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
