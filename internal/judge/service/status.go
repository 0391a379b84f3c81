package service

import (
	"context"
	"errors"
	"time"

	"judgebroker/internal/judge/model"
	submitmodel "judgebroker/internal/submit/model"
	submitrepo "judgebroker/internal/submit/repository"
	"judgebroker/pkg/utils/logger"

	"go.uber.org/zap"
)

// progressRecorder persists a test case row and then announces it.
type progressRecorder struct {
	service *Service
	inner   submitrepo.SubmissionRepository
}

func (r *progressRecorder) AppendTestcase(ctx context.Context, row model.TestcaseResult) error {
	if err := r.inner.AppendTestcase(ctx, row); err != nil {
		return err
	}
	r.service.publishProgress(ctx, model.ProgressEvent{
		SubmissionID: row.SubmissionID,
		Kind:         "testcase",
		TestCaseID:   row.TestCaseID,
		Status:       row.Status,
		TimeMs:       row.RuntimeMs,
		MemoryKB:     row.MemoryKB,
	})
	return nil
}

func (s *Service) saveStatus(ctx context.Context, submission *submitmodel.Submission) {
	ctxStatus, cancel := context.WithTimeout(ctx, s.statusTimeout)
	defer cancel()
	if err := s.statusRepo.Save(ctxStatus, submission); err != nil {
		logger.Warn(ctx, "update status cache failed", zap.Error(err))
	}
}

// failSubmission moves a submission to SystemError with reason.
func (s *Service) failSubmission(ctx context.Context, submission *submitmodel.Submission, reason string) {
	ctxFinal, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.statusTimeout)
	defer cancel()
	s.finish(ctxFinal, submission, submitmodel.FinalResult{
		Status:       model.StatusSystemError,
		ErrorMessage: reason,
	})
}

// finish performs the guarded terminal write, then refreshes the cache and emits events.
// A submission that is already terminal is left untouched.
func (s *Service) finish(ctx context.Context, submission *submitmodel.Submission, final submitmodel.FinalResult) {
	if final.FinishedAt.IsZero() {
		final.FinishedAt = time.Now()
	}
	if err := s.submissions.Finalize(ctx, submission.ID, final); err != nil {
		if errors.Is(err, submitrepo.ErrNotActive) {
			logger.Warn(ctx, "submission already terminal, final write skipped", zap.String("status", string(final.Status)))
			return
		}
		logger.Error(ctx, "write final status failed", zap.Error(err))
		return
	}
	submission.Apply(final)
	s.saveStatus(ctx, submission)
	logger.Info(ctx, "submission finished",
		zap.String("status", string(final.Status)),
		zap.Int64("score", final.Score),
		zap.Int64("time_ms", final.TimeMs),
		zap.Int64("memory_kb", final.MemoryKB),
		zap.String("error_message", final.ErrorMessage),
	)

	if s.events != nil {
		event := model.StatusEvent{
			SubmissionID: submission.ID,
			ProblemID:    submission.ProblemID,
			UserID:       submission.UserID,
			Status:       final.Status,
			Score:        final.Score,
			TimeMs:       final.TimeMs,
			MemoryKB:     final.MemoryKB,
			FinishedAt:   final.FinishedAt.Unix(),
		}
		if err := s.events.PublishFinalStatus(ctx, event); err != nil {
			logger.Warn(ctx, "publish final status failed", zap.Error(err))
		}
	}
	s.publishProgress(ctx, model.ProgressEvent{
		SubmissionID: submission.ID,
		Kind:         "final",
		Status:       final.Status,
		TimeMs:       final.TimeMs,
		MemoryKB:     final.MemoryKB,
		Score:        final.Score,
	})
}

func (s *Service) publishProgress(ctx context.Context, event model.ProgressEvent) {
	if s.progress == nil {
		return
	}
	if err := s.progress.PublishProgress(ctx, event); err != nil {
		logger.Warn(ctx, "publish progress failed", zap.Error(err))
	}
}

// Recover marks submissions left Queued or Running by a previous process as SystemError.
// It must run before the pool accepts work.
func (s *Service) Recover(ctx context.Context) (int, error) {
	stale, err := s.submissions.ListUnfinished(ctx, 0)
	if err != nil {
		return 0, err
	}
	recovered := 0
	for i := range stale {
		submission := stale[i]
		subCtx := logger.WithSubmission(ctx, submission.ID)
		s.failSubmission(subCtx, &submission, "broker restarted")
		recovered++
	}
	if recovered > 0 {
		logger.Info(ctx, "recovered unfinished submissions", zap.Int("count", recovered))
	}
	return recovered, nil
}
