package service

import (
	"context"
	"time"

	judgemodel "judgebroker/internal/judge/model"
	"judgebroker/internal/submit/model"
	"judgebroker/pkg/utils/logger"

	"go.uber.org/zap"
)

const defaultWatchInterval = time.Second

// ProgressSubscriber signals new progress for a submission.
type ProgressSubscriber interface {
	SubscribeProgress(submissionID string, fn func(judgemodel.ProgressEvent)) (func(), error)
}

// LiveUpdate is one step of a watched submission: the rows persisted since the
// previous update and the current snapshot.
type LiveUpdate struct {
	Submission *model.Submission           `json:"submission"`
	Results    []judgemodel.TestcaseResult `json:"results"`
}

// Watch calls fn with new test case rows until the submission is terminal or ctx ends.
// The store is polled every interval; progress events trigger an early poll.
func (s *SubmitService) Watch(ctx context.Context, submissionID string, interval time.Duration, fn func(LiveUpdate) error) error {
	if interval <= 0 {
		interval = defaultWatchInterval
	}
	wake := make(chan struct{}, 1)
	if s.progress != nil {
		stop, err := s.progress.SubscribeProgress(submissionID, func(judgemodel.ProgressEvent) {
			select {
			case wake <- struct{}{}:
			default:
			}
		})
		if err != nil {
			logger.Warn(ctx, "subscribe progress failed, polling only", zap.Error(err))
		} else {
			defer stop()
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sent := 0
	var lastStatus judgemodel.Status
	for {
		submission, err := s.loadSubmission(ctx, submissionID)
		if err != nil {
			return err
		}
		submission.Code = ""
		rows, err := s.submissionRepo.ListTestcases(ctx, submissionID)
		if err != nil {
			return err
		}
		if len(rows) > sent || submission.Status != lastStatus {
			update := LiveUpdate{Submission: submission, Results: rows[min(sent, len(rows)):]}
			if err := fn(update); err != nil {
				return err
			}
			sent = len(rows)
			lastStatus = submission.Status
		}
		if submission.Status.IsTerminal() {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-wake:
		}
	}
}
