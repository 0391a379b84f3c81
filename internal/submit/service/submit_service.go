package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"judgebroker/internal/common/cache"
	"judgebroker/internal/judge/language"
	judgemodel "judgebroker/internal/judge/model"
	judgeRepo "judgebroker/internal/judge/repository"
	problemmodel "judgebroker/internal/problem/model"
	"judgebroker/internal/submit/model"
	"judgebroker/internal/submit/repository"
	appErr "judgebroker/pkg/errors"
	"judgebroker/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	idempotencyKeyPrefix = "submit:idempotency:"
	processingMarker     = "processing"
	defaultMaxCodeBytes  = 64 << 10
)

// Dispatcher hands a queued submission to the judge pool.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg judgemodel.JudgeMessage) error
}

// Canceller aborts a submission running on this instance.
type Canceller interface {
	Cancel(submissionID string) bool
}

// TestCaseLister lists the test cases a submission would run against.
type TestCaseLister interface {
	ListForExecution(ctx context.Context, problemID int64) ([]problemmodel.TestCase, error)
}

// TimeoutConfig holds timeout settings for external calls.
type TimeoutConfig struct {
	DB       time.Duration
	Cache    time.Duration
	Dispatch time.Duration
}

// Config holds submit service dependencies and settings.
type Config struct {
	SubmissionRepo repository.SubmissionRepository
	StatusRepo     *judgeRepo.StatusRepository
	Languages      *language.Registry
	TestCases      TestCaseLister
	Dispatcher     Dispatcher
	Canceller      Canceller
	// Progress is optional; Watch polls without it.
	Progress ProgressSubscriber
	Cache    cache.Cache

	MaxCodeBytes   int
	IdempotencyTTL time.Duration
	Timeouts       TimeoutConfig
}

// SubmitService handles submission intake, queries and operator aborts.
type SubmitService struct {
	submissionRepo repository.SubmissionRepository
	statusRepo     *judgeRepo.StatusRepository
	languages      *language.Registry
	testCases      TestCaseLister
	dispatcher     Dispatcher
	canceller      Canceller
	progress       ProgressSubscriber
	cache          cache.Cache

	maxCodeBytes   int
	idempotencyTTL time.Duration
	timeouts       TimeoutConfig
}

// SubmitInput describes a submission request.
type SubmitInput struct {
	ProblemID      int64
	UserID         int64
	LanguageID     string
	Code           string
	IdempotencyKey string
}

// NewSubmitService creates a new submit service.
func NewSubmitService(cfg Config) (*SubmitService, error) {
	if cfg.SubmissionRepo == nil {
		return nil, fmt.Errorf("submission repository is required")
	}
	if cfg.StatusRepo == nil {
		return nil, fmt.Errorf("status repository is required")
	}
	if cfg.Languages == nil {
		return nil, fmt.Errorf("language registry is required")
	}
	if cfg.TestCases == nil {
		return nil, fmt.Errorf("test case lister is required")
	}
	if cfg.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if cfg.MaxCodeBytes <= 0 {
		cfg.MaxCodeBytes = defaultMaxCodeBytes
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = 10 * time.Minute
	}
	return &SubmitService{
		submissionRepo: cfg.SubmissionRepo,
		statusRepo:     cfg.StatusRepo,
		languages:      cfg.Languages,
		testCases:      cfg.TestCases,
		dispatcher:     cfg.Dispatcher,
		canceller:      cfg.Canceller,
		progress:       cfg.Progress,
		cache:          cfg.Cache,
		maxCodeBytes:   cfg.MaxCodeBytes,
		idempotencyTTL: cfg.IdempotencyTTL,
		timeouts:       cfg.Timeouts,
	}, nil
}

// Submit validates the request, stores a Queued submission and dispatches it. It
// returns as soon as the pool accepted the submission. Nothing is stored when
// validation fails.
func (s *SubmitService) Submit(ctx context.Context, input SubmitInput) (*model.Submission, error) {
	if err := s.validateInput(input); err != nil {
		return nil, err
	}
	lang, err := s.languages.Resolve(input.LanguageID)
	if err != nil {
		return nil, err
	}
	cases, err := s.testCases.ListForExecution(ctx, input.ProblemID)
	if err != nil {
		return nil, err
	}
	if len(cases) == 0 {
		return nil, appErr.New(appErr.TestCaseNotFound).WithDetail("problem_id", input.ProblemID)
	}

	acquired, existingID, err := s.acquireIdempotency(ctx, input.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if !acquired && existingID != "" {
		return s.GetStatus(ctx, existingID)
	}

	submission := &model.Submission{
		ID:         uuid.NewString(),
		UserID:     input.UserID,
		ProblemID:  input.ProblemID,
		LanguageID: lang.ID,
		Code:       input.Code,
		Status:     judgemodel.StatusQueued,
		CreatedAt:  time.Now(),
	}
	ctx = logger.WithSubmission(ctx, submission.ID)
	if err := s.createSubmission(ctx, submission); err != nil {
		s.releaseIdempotency(ctx, input.IdempotencyKey, acquired)
		return nil, err
	}
	s.saveStatus(ctx, submission)

	if err := s.dispatch(ctx, submission); err != nil {
		logger.Warn(ctx, "dispatch submission failed", zap.Error(err))
		s.failQueued(ctx, submission, err.Error())
		s.releaseIdempotency(ctx, input.IdempotencyKey, acquired)
		return nil, err
	}

	s.finalizeIdempotency(ctx, input.IdempotencyKey, submission.ID, acquired)
	logger.Info(ctx, "submission queued",
		zap.Int64("problem_id", submission.ProblemID),
		zap.Int64("user_id", submission.UserID),
		zap.String("language_id", submission.LanguageID),
	)
	return submission, nil
}

// GetStatus returns the latest snapshot, from the status cache when present.
// Snapshots served from the cache carry no source code.
func (s *SubmitService) GetStatus(ctx context.Context, submissionID string) (*model.Submission, error) {
	if submissionID == "" {
		return nil, appErr.ValidationError("submission_id", "required")
	}
	ctxCache := withTimeout(ctx, s.timeouts.Cache)
	cached, err := s.statusRepo.Get(ctxCache.ctx, submissionID)
	ctxCache.cancel()
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, judgeRepo.ErrStatusNotCached) {
		logger.Warn(ctx, "read status cache failed", zap.Error(err))
	}

	submission, err := s.loadSubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	s.saveStatus(ctx, submission)
	return submission, nil
}

// GetTestcaseResults returns the per-test rows persisted so far.
func (s *SubmitService) GetTestcaseResults(ctx context.Context, submissionID string) ([]judgemodel.TestcaseResult, error) {
	if _, err := s.GetStatus(ctx, submissionID); err != nil {
		return nil, err
	}
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	rows, err := s.submissionRepo.ListTestcases(ctxDB.ctx, submissionID)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "list test case results failed")
	}
	return rows, nil
}

// Cancel aborts a submission. A running submission stops its stream and keeps a
// partial verdict when any test case was judged; a queued one fails immediately.
func (s *SubmitService) Cancel(ctx context.Context, submissionID string) error {
	submission, err := s.loadSubmission(ctx, submissionID)
	if err != nil {
		return err
	}
	if submission.Status.IsTerminal() {
		return appErr.New(appErr.SubmissionFinalized).WithDetail("status", string(submission.Status))
	}
	ctx = logger.WithSubmission(ctx, submissionID)
	if s.canceller != nil && s.canceller.Cancel(submissionID) {
		logger.Info(ctx, "submission cancel requested")
		return nil
	}
	// Not running here: either still queued or left behind by a lost worker.
	if !s.failQueued(ctx, submission, "cancelled by operator") {
		return appErr.New(appErr.SubmissionFinalized)
	}
	return nil
}

func (s *SubmitService) validateInput(input SubmitInput) error {
	if input.ProblemID <= 0 {
		return appErr.ValidationError("problem_id", "required")
	}
	if input.UserID <= 0 {
		return appErr.ValidationError("user_id", "required")
	}
	if strings.TrimSpace(input.LanguageID) == "" {
		return appErr.ValidationError("language_id", "required")
	}
	if strings.TrimSpace(input.Code) == "" {
		return appErr.ValidationError("code", "required")
	}
	if len(input.Code) > s.maxCodeBytes {
		return appErr.Newf(appErr.CodeTooLarge, "code exceeds %d bytes", s.maxCodeBytes).
			WithDetail("max_bytes", s.maxCodeBytes)
	}
	return nil
}

func (s *SubmitService) loadSubmission(ctx context.Context, submissionID string) (*model.Submission, error) {
	if submissionID == "" {
		return nil, appErr.ValidationError("submission_id", "required")
	}
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	submission, err := s.submissionRepo.GetByID(ctxDB.ctx, nil, submissionID)
	if err != nil {
		if errors.Is(err, repository.ErrSubmissionNotFound) {
			return nil, appErr.New(appErr.SubmissionNotFound).WithDetail("submission_id", submissionID)
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "get submission failed")
	}
	return submission, nil
}

func (s *SubmitService) createSubmission(ctx context.Context, submission *model.Submission) error {
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	if err := s.submissionRepo.Create(ctxDB.ctx, nil, submission); err != nil {
		return appErr.Wrapf(err, appErr.SubmissionCreateFailed, "create submission failed")
	}
	return nil
}

func (s *SubmitService) dispatch(ctx context.Context, submission *model.Submission) error {
	ctxDispatch := withTimeout(ctx, s.timeouts.Dispatch)
	defer ctxDispatch.cancel()
	return s.dispatcher.Dispatch(ctxDispatch.ctx, judgemodel.JudgeMessage{
		SubmissionID: submission.ID,
		ProblemID:    submission.ProblemID,
		LanguageID:   submission.LanguageID,
		UserID:       submission.UserID,
		EnqueuedAt:   time.Now(),
	})
}

// failQueued writes SystemError for a submission no worker holds. It reports false
// when the submission had already reached a terminal state.
func (s *SubmitService) failQueued(ctx context.Context, submission *model.Submission, reason string) bool {
	final := model.FinalResult{
		Status:       judgemodel.StatusSystemError,
		ErrorMessage: reason,
		FinishedAt:   time.Now(),
	}
	ctxDB := withTimeout(context.WithoutCancel(ctx), s.timeouts.DB)
	defer ctxDB.cancel()
	if err := s.submissionRepo.Finalize(ctxDB.ctx, submission.ID, final); err != nil {
		if !errors.Is(err, repository.ErrNotActive) {
			logger.Error(ctx, "write system error failed", zap.Error(err))
		}
		return false
	}
	submission.Apply(final)
	s.saveStatus(ctx, submission)
	return true
}

func (s *SubmitService) saveStatus(ctx context.Context, submission *model.Submission) {
	ctxCache := withTimeout(ctx, s.timeouts.Cache)
	defer ctxCache.cancel()
	if err := s.statusRepo.Save(ctxCache.ctx, submission); err != nil {
		logger.Warn(ctx, "update status cache failed", zap.Error(err))
	}
}

func (s *SubmitService) acquireIdempotency(ctx context.Context, key string) (bool, string, error) {
	key = strings.TrimSpace(key)
	if key == "" || s.cache == nil {
		return true, "", nil
	}
	cacheKey := idempotencyKeyPrefix + key
	ctxCache := withTimeout(ctx, s.timeouts.Cache)
	defer ctxCache.cancel()

	existing, err := s.cache.Get(ctxCache.ctx, cacheKey)
	if err != nil {
		return false, "", appErr.Wrapf(err, appErr.CacheError, "read idempotency key failed")
	}
	if existing != "" && existing != processingMarker {
		return false, existing, nil
	}

	ok, err := s.cache.SetNX(ctxCache.ctx, cacheKey, processingMarker, s.idempotencyTTL)
	if err != nil {
		return false, "", appErr.Wrapf(err, appErr.CacheError, "reserve idempotency key failed")
	}
	if ok {
		return true, "", nil
	}
	existing, err = s.cache.Get(ctxCache.ctx, cacheKey)
	if err != nil {
		return false, "", appErr.Wrapf(err, appErr.CacheError, "read idempotency key failed")
	}
	if existing != "" && existing != processingMarker {
		return false, existing, nil
	}
	return false, "", appErr.New(appErr.TooManyRequests).WithMessage("request is processing")
}

func (s *SubmitService) finalizeIdempotency(ctx context.Context, key, submissionID string, acquired bool) {
	key = strings.TrimSpace(key)
	if !acquired || key == "" || s.cache == nil {
		return
	}
	ctxCache := withTimeout(ctx, s.timeouts.Cache)
	defer ctxCache.cancel()
	if err := s.cache.Set(ctxCache.ctx, idempotencyKeyPrefix+key, submissionID, s.idempotencyTTL); err != nil {
		logger.Warn(ctx, "update idempotency key failed", zap.Error(err))
	}
}

func (s *SubmitService) releaseIdempotency(ctx context.Context, key string, acquired bool) {
	key = strings.TrimSpace(key)
	if !acquired || key == "" || s.cache == nil {
		return
	}
	ctxCache := withTimeout(ctx, s.timeouts.Cache)
	defer ctxCache.cancel()
	if err := s.cache.Del(ctxCache.ctx, idempotencyKeyPrefix+key); err != nil {
		logger.Warn(ctx, "release idempotency key failed", zap.Error(err))
	}
}

type timeoutCtx struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func withTimeout(ctx context.Context, timeout time.Duration) timeoutCtx {
	if timeout <= 0 {
		return timeoutCtx{ctx: ctx, cancel: func() {}}
	}
	ctxTimeout, cancel := context.WithTimeout(ctx, timeout)
	return timeoutCtx{ctx: ctxTimeout, cancel: cancel}
}
