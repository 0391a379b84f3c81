package service

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"judgebroker/internal/common/mq"
	"judgebroker/internal/judge/model"
	submitmodel "judgebroker/internal/submit/model"
	appErr "judgebroker/pkg/errors"
	"judgebroker/pkg/utils/logger"

	"go.uber.org/zap"
)

const poolRetryHeader = "x-pool-retry"

// requeueForPoolFull republishes a dispatch message with backoff while the pool is
// full. Once retries are exhausted the submission fails with SystemError.
func (s *Service) requeueForPoolFull(ctx context.Context, msg *mq.Message) error {
	retryCount := ParsePoolRetryCount(msg.Headers)
	if s.poolRetryMax > 0 && retryCount >= s.poolRetryMax {
		var payload model.JudgeMessage
		if err := json.Unmarshal(msg.Body, &payload); err != nil {
			return appErr.Wrapf(err, appErr.InvalidParams, "decode message failed")
		}
		logger.Warn(ctx, "worker pool retry exhausted", zap.Int("retry_count", retryCount), zap.String("submission_id", payload.SubmissionID))
		s.failSubmission(logger.WithSubmission(ctx, payload.SubmissionID), &submitmodel.Submission{
			ID:        payload.SubmissionID,
			ProblemID: payload.ProblemID,
			UserID:    payload.UserID,
		}, appErr.JudgeQueueFull.Message())
		return nil
	}

	delay := ComputePoolBackoff(retryCount, s.poolRetryBase, s.poolRetryMaxD)
	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	logger.Info(ctx, "worker pool requeue", zap.Int("retry_count", retryCount+1), zap.String("message_id", msg.ID), zap.Duration("delay", delay))
	if err := s.queue.Publish(ctx, s.retryTopic, CloneMessageForRetry(msg, retryCount+1)); err != nil {
		return appErr.Wrapf(err, appErr.MQError, "requeue judge message failed")
	}
	return nil
}

// ParsePoolRetryCount reads the pool retry header; a missing or bad value is zero.
func ParsePoolRetryCount(headers map[string]string) int {
	raw, ok := headers[poolRetryHeader]
	if !ok {
		return 0
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val < 0 {
		return 0
	}
	return val
}

func CloneMessageForRetry(msg *mq.Message, retryCount int) *mq.Message {
	out := &mq.Message{
		ID:         msg.ID,
		Body:       msg.Body,
		Headers:    make(map[string]string, len(msg.Headers)+1),
		Timestamp:  time.Now(),
		MaxRetries: msg.MaxRetries,
		Expiration: msg.Expiration,
	}
	for k, v := range msg.Headers {
		out.Headers[k] = v
	}
	out.Headers[poolRetryHeader] = strconv.Itoa(retryCount)
	return out
}

// ComputePoolBackoff doubles base per retry, capped at max.
func ComputePoolBackoff(retryCount int, base, max time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := base
	for i := 0; i < retryCount; i++ {
		if max > 0 && delay >= max {
			break
		}
		delay *= 2
	}
	if max > 0 && delay > max {
		return max
	}
	return delay
}
