package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"judgebroker/internal/common/db"
	"judgebroker/internal/common/mq"
	"judgebroker/internal/judge/aggregator"
	"judgebroker/internal/judge/execution"
	"judgebroker/internal/judge/language"
	"judgebroker/internal/judge/model"
	"judgebroker/internal/judge/repository"
	problemmodel "judgebroker/internal/problem/model"
	submitmodel "judgebroker/internal/submit/model"
	submitrepo "judgebroker/internal/submit/repository"
	appErr "judgebroker/pkg/errors"
	"judgebroker/pkg/utils/logger"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
)

const (
	defaultQueueWait         = 2 * time.Second
	defaultSubmissionTimeout = 60 * time.Second
	defaultStatusTimeout     = 3 * time.Second
)

var (
	errOperatorCancel = errors.New("cancelled by operator")
	errShutdown       = errors.New("broker shutting down")
)

// TestCaseSource lists the test cases of a problem in execution order.
type TestCaseSource interface {
	ListForExecution(ctx context.Context, problemID int64) ([]problemmodel.TestCase, error)
}

// ProblemSource reads problem limits.
type ProblemSource interface {
	Get(ctx context.Context, tx db.Transaction, problemID int64) (problemmodel.Problem, error)
}

// Service runs submissions on a bounded worker pool.
type Service struct {
	submissions submitrepo.SubmissionRepository
	statusRepo  *repository.StatusRepository
	testCases   TestCaseSource
	problems    ProblemSource
	languages   *language.Registry
	builder     *execution.Builder
	client      *execution.Client
	events      repository.StatusEventPublisher
	progress    repository.ProgressPublisher

	queue         mq.MessageQueue
	retryTopic    string
	poolRetryMax  int
	poolRetryBase time.Duration
	poolRetryMaxD time.Duration

	queueWait         time.Duration
	submissionTimeout time.Duration
	statusTimeout     time.Duration
	metaTTL           time.Duration
	sem               chan struct{}

	baseCtx    context.Context
	baseCancel context.CancelCauseFunc
	wg         sync.WaitGroup

	runs     *xsync.MapOf[string, *activeRun]
	inFlight *xsync.MapOf[int64, int]

	metaMu    sync.Mutex
	metaCache map[int64]metaEntry
}

type activeRun struct {
	problemID int64
	cancel    context.CancelCauseFunc
}

// Config holds service dependencies and settings.
type Config struct {
	Submissions submitrepo.SubmissionRepository
	StatusRepo  *repository.StatusRepository
	TestCases   TestCaseSource
	Problems    ProblemSource
	Languages   *language.Registry
	Builder     *execution.Builder
	Client      *execution.Client
	// Events and Progress are optional.
	Events   repository.StatusEventPublisher
	Progress repository.ProgressPublisher

	// Queue and RetryTopic enable requeueing of dispatch messages when the pool is full.
	Queue         mq.MessageQueue
	RetryTopic    string
	PoolRetryMax  int
	PoolRetryBase time.Duration
	PoolRetryMaxD time.Duration

	WorkerPoolSize    int
	QueueWait         time.Duration
	SubmissionTimeout time.Duration
	StatusTimeout     time.Duration
	MetaTTL           time.Duration
}

// NewService creates a new judge service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Submissions == nil {
		return nil, fmt.Errorf("submission repository is required")
	}
	if cfg.StatusRepo == nil {
		return nil, fmt.Errorf("status repository is required")
	}
	if cfg.TestCases == nil {
		return nil, fmt.Errorf("test case source is required")
	}
	if cfg.Problems == nil {
		return nil, fmt.Errorf("problem source is required")
	}
	if cfg.Languages == nil {
		return nil, fmt.Errorf("language registry is required")
	}
	if cfg.Builder == nil {
		return nil, fmt.Errorf("request builder is required")
	}
	if cfg.Client == nil {
		return nil, fmt.Errorf("execution client is required")
	}
	poolSize := cfg.WorkerPoolSize
	if poolSize <= 0 {
		poolSize = 1
	}
	if cfg.QueueWait <= 0 {
		cfg.QueueWait = defaultQueueWait
	}
	if cfg.SubmissionTimeout <= 0 {
		cfg.SubmissionTimeout = defaultSubmissionTimeout
	}
	if cfg.StatusTimeout <= 0 {
		cfg.StatusTimeout = defaultStatusTimeout
	}
	baseCtx, baseCancel := context.WithCancelCause(context.Background())
	return &Service{
		submissions:       cfg.Submissions,
		statusRepo:        cfg.StatusRepo,
		testCases:         cfg.TestCases,
		problems:          cfg.Problems,
		languages:         cfg.Languages,
		builder:           cfg.Builder,
		client:            cfg.Client,
		events:            cfg.Events,
		progress:          cfg.Progress,
		queue:             cfg.Queue,
		retryTopic:        cfg.RetryTopic,
		poolRetryMax:      cfg.PoolRetryMax,
		poolRetryBase:     cfg.PoolRetryBase,
		poolRetryMaxD:     cfg.PoolRetryMaxD,
		queueWait:         cfg.QueueWait,
		submissionTimeout: cfg.SubmissionTimeout,
		statusTimeout:     cfg.StatusTimeout,
		metaTTL:           cfg.MetaTTL,
		sem:               make(chan struct{}, poolSize),
		baseCtx:           baseCtx,
		baseCancel:        baseCancel,
		runs:              xsync.NewMapOf[string, *activeRun](),
		inFlight:          xsync.NewMapOf[int64, int](),
		metaCache:         make(map[int64]metaEntry),
	}, nil
}

// Dispatch hands a queued submission to the pool and returns without waiting for the
// run. It fails with JudgeQueueFull when no worker frees up within the queue wait.
func (s *Service) Dispatch(ctx context.Context, msg model.JudgeMessage) error {
	if err := validateMessage(msg); err != nil {
		return err
	}
	if err := s.acquireSlot(ctx); err != nil {
		return err
	}
	s.start(msg)
	return nil
}

// HandleMessage processes a judge message from the dispatch topic. The run happens
// on the consumer goroutine so the queue's concurrency bounds in-flight work too.
func (s *Service) HandleMessage(ctx context.Context, msg *mq.Message) error {
	if msg == nil {
		return appErr.New(appErr.InvalidParams).WithMessage("message is nil")
	}
	var payload model.JudgeMessage
	if err := json.Unmarshal(msg.Body, &payload); err != nil {
		return appErr.Wrapf(err, appErr.InvalidParams, "decode message failed")
	}
	if err := validateMessage(payload); err != nil {
		return err
	}

	if !s.tryAcquireSlot() {
		if s.queue != nil && s.retryTopic != "" {
			return s.requeueForPoolFull(ctx, msg)
		}
		if err := s.acquireSlot(ctx); err != nil {
			return err
		}
	}
	defer s.releaseSlot()

	runCtx, done := s.register(payload)
	defer done()
	s.wg.Add(1)
	defer s.wg.Done()
	s.Run(runCtx, payload.SubmissionID)
	return nil
}

// Subscribe registers HandleMessage on topic and starts consuming.
func (s *Service) Subscribe(ctx context.Context, queue mq.MessageQueue, topic string, opts *mq.SubscribeOptions) error {
	if queue == nil {
		return fmt.Errorf("message queue is required")
	}
	if topic == "" {
		return fmt.Errorf("judge topic is required")
	}
	if err := queue.SubscribeWithOptions(ctx, topic, s.HandleMessage, opts); err != nil {
		return err
	}
	return queue.Start()
}

// Cancel aborts a running submission. It reports false when the submission is not
// running on this instance.
func (s *Service) Cancel(submissionID string) bool {
	run, ok := s.runs.Load(submissionID)
	if !ok {
		return false
	}
	run.cancel(errOperatorCancel)
	return true
}

// InFlight reports whether a submission for problemID is queued or running here.
func (s *Service) InFlight(problemID int64) bool {
	n, ok := s.inFlight.Load(problemID)
	return ok && n > 0
}

// Running returns the number of submissions currently held by the pool.
func (s *Service) Running() int {
	return s.runs.Size()
}

// PoolStats is a point-in-time view of the worker pool.
type PoolStats struct {
	Capacity int `json:"capacity"`
	Busy     int `json:"busy"`
	Running  int `json:"running"`
}

// Stats reports pool occupancy. Busy counts held slots, including runs still loading.
func (s *Service) Stats() PoolStats {
	return PoolStats{Capacity: cap(s.sem), Busy: len(s.sem), Running: s.Running()}
}

// Stop cancels every run and waits for their final writes.
func (s *Service) Stop(ctx context.Context) error {
	s.baseCancel(errShutdown)
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) start(msg model.JudgeMessage) {
	runCtx, done := s.register(msg)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.releaseSlot()
		defer done()
		s.Run(runCtx, msg.SubmissionID)
	}()
}

// register makes a run cancellable and counts it against its problem until done is called.
func (s *Service) register(msg model.JudgeMessage) (context.Context, func()) {
	runCtx, cancel := context.WithCancelCause(s.baseCtx)
	s.runs.Store(msg.SubmissionID, &activeRun{problemID: msg.ProblemID, cancel: cancel})
	s.trackProblem(msg.ProblemID, 1)
	return runCtx, func() {
		cancel(nil)
		s.runs.Delete(msg.SubmissionID)
		s.trackProblem(msg.ProblemID, -1)
	}
}

func (s *Service) trackProblem(problemID int64, delta int) {
	s.inFlight.Compute(problemID, func(old int, _ bool) (int, bool) {
		n := old + delta
		return n, n <= 0
	})
}

// Run executes one submission to a terminal state. Every failure ends in SystemError;
// a panic is recovered into SystemError as well.
func (s *Service) Run(ctx context.Context, submissionID string) {
	ctx = logger.WithSubmission(ctx, submissionID)
	submission := &submitmodel.Submission{ID: submissionID}
	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, "judge run panicked", zap.Any("panic", r), zap.Stack("stack"))
			s.failSubmission(context.WithoutCancel(ctx), submission, "internal error")
		}
	}()

	loaded, err := s.submissions.GetByID(ctx, nil, submissionID)
	if err != nil {
		if errors.Is(err, submitrepo.ErrSubmissionNotFound) {
			logger.Warn(ctx, "submission not found, skipping")
			return
		}
		logger.Error(ctx, "load submission failed", zap.Error(err))
		s.failSubmission(ctx, submission, abortReason(ctx, "load submission failed"))
		return
	}
	submission = loaded
	if submission.Status.IsTerminal() {
		logger.Info(ctx, "submission already terminal, skipping", zap.String("status", string(submission.Status)))
		return
	}
	if err := s.submissions.MarkRunning(ctx, submissionID); err != nil {
		if errors.Is(err, submitrepo.ErrNotActive) {
			// Another worker already owns it.
			logger.Warn(ctx, "submission is not queued, skipping")
			return
		}
		s.failSubmission(ctx, submission, abortReason(ctx, "mark running failed"))
		return
	}
	submission.Status = model.StatusRunning
	s.saveStatus(ctx, submission)
	logger.Info(ctx, "submission running", zap.Int64("problem_id", submission.ProblemID), zap.String("language_id", submission.LanguageID))

	runCtx, cancel := context.WithTimeout(ctx, s.submissionTimeout)
	defer cancel()

	req, cases, err := s.prepare(runCtx, submission)
	if err != nil {
		logger.Warn(ctx, "prepare execution request failed", zap.Error(err))
		s.failSubmission(ctx, submission, err.Error())
		return
	}

	agg := aggregator.New(submissionID, submission.ProblemID, cases, &progressRecorder{service: s, inner: s.submissions})
	outcome, runErr := s.client.Run(runCtx, req, agg.Accept)
	agg.AddViolations(outcome.Violations)

	finalCtx, finalCancel := context.WithTimeout(context.WithoutCancel(ctx), s.statusTimeout)
	defer finalCancel()

	verdict, err := agg.Finalize(finalCtx)
	if err != nil {
		logger.Error(ctx, "persist skipped test cases failed", zap.Error(err))
		s.failSubmission(finalCtx, submission, "persist test case results failed")
		return
	}
	final, reason := decide(verdict, runErr, context.Cause(runCtx))
	if reason != "" {
		logger.Warn(ctx, "submission ended in system error",
			zap.String("reason", reason), zap.Int("judged", verdict.Judged), zap.Int("violations", verdict.Violations), zap.Error(runErr))
	}
	s.finish(finalCtx, submission, final)
}

// abortReason names an operator cancel or a shutdown that stopped the run before it
// reached the backend, and falls back to reason otherwise.
func abortReason(ctx context.Context, reason string) string {
	switch cause := context.Cause(ctx); {
	case errors.Is(cause, errOperatorCancel), errors.Is(cause, errShutdown):
		return cause.Error()
	default:
		return reason
	}
}

// decide maps the aggregated verdict and the run error to the terminal write.
func decide(verdict aggregator.Verdict, runErr, cause error) (submitmodel.FinalResult, string) {
	final := submitmodel.FinalResult{
		Status:   verdict.Status,
		Score:    verdict.Score,
		TimeMs:   verdict.TimeMs,
		MemoryKB: verdict.MemoryKB,
	}
	fail := func(reason string) (submitmodel.FinalResult, string) {
		final.Status = model.StatusSystemError
		final.ErrorMessage = reason
		return final, reason
	}

	switch {
	case appErr.Is(runErr, appErr.ExecutionTimeout):
		return fail("execution timeout")
	case appErr.Is(runErr, appErr.ExecutionCancelled):
		if errors.Is(cause, errShutdown) {
			return fail(errShutdown.Error())
		}
		if verdict.Judged == 0 {
			return fail(errOperatorCancel.Error())
		}
	case appErr.Is(runErr, appErr.ExecutionBackendUnavailable):
		return fail(runErr.Error())
	case runErr != nil:
		return fail("persist test case results failed")
	}

	if verdict.Judged == 0 {
		return fail("execution backend returned no results")
	}
	if verdict.Status == model.StatusSystemError {
		return fail("execution backend protocol violation")
	}
	return final, ""
}

func (s *Service) prepare(ctx context.Context, submission *submitmodel.Submission) (*execution.Request, []problemmodel.TestCase, error) {
	lang, err := s.languages.Resolve(submission.LanguageID)
	if err != nil {
		return nil, nil, err
	}
	cases, err := s.testCases.ListForExecution(ctx, submission.ProblemID)
	if err != nil {
		return nil, nil, err
	}
	limits, err := s.problemLimits(ctx, submission.ProblemID)
	if err != nil {
		return nil, nil, err
	}
	req, err := s.builder.Build(execution.Source{SubmissionID: submission.ID, Code: submission.Code}, lang, cases, limits)
	if err != nil {
		return nil, nil, err
	}
	return req, cases, nil
}

func validateMessage(msg model.JudgeMessage) error {
	if msg.SubmissionID == "" || msg.ProblemID <= 0 {
		return appErr.New(appErr.InvalidParams).WithMessage("message missing required fields")
	}
	return nil
}

func (s *Service) acquireSlot(ctx context.Context) error {
	timer := time.NewTimer(s.queueWait)
	defer timer.Stop()
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return appErr.New(appErr.JudgeQueueFull).WithMessage("worker pool is full")
	}
}

func (s *Service) tryAcquireSlot() bool {
	select {
	case s.sem <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *Service) releaseSlot() {
	select {
	case <-s.sem:
	default:
	}
}
