package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"judgebroker/internal/common/mq"
	"judgebroker/internal/common/storage"
	"judgebroker/internal/problem/model"
	"judgebroker/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	defaultCleanupBatchSize   = 1000
	defaultCleanupListTimeout = 30 * time.Second
	defaultCleanupDeleteTTL   = 2 * time.Minute
)

// CleanupOptions controls cleanup behavior.
type CleanupOptions struct {
	Bucket        string
	KeyPrefix     string
	BatchSize     int
	ListTimeout   time.Duration
	DeleteTimeout time.Duration
}

// ArchiveJanitor removes archive objects from storage. It serves cleanup events
// from the queue and also implements ArchiveCleaner for inline use.
type ArchiveJanitor struct {
	storage       storage.ObjectStorage
	bucket        string
	keyPrefix     string
	batchSize     int
	listTimeout   time.Duration
	deleteTimeout time.Duration
}

// NewArchiveJanitor creates a janitor over obj.
func NewArchiveJanitor(obj storage.ObjectStorage, opts CleanupOptions) *ArchiveJanitor {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = defaultCleanupBatchSize
	}
	listTimeout := opts.ListTimeout
	if listTimeout <= 0 {
		listTimeout = defaultCleanupListTimeout
	}
	deleteTimeout := opts.DeleteTimeout
	if deleteTimeout <= 0 {
		deleteTimeout = defaultCleanupDeleteTTL
	}
	return &ArchiveJanitor{
		storage:       obj,
		bucket:        opts.Bucket,
		keyPrefix:     opts.KeyPrefix,
		batchSize:     batchSize,
		listTimeout:   listTimeout,
		deleteTimeout: deleteTimeout,
	}
}

// Subscribe registers the cleanup handler and starts consuming.
func (j *ArchiveJanitor) Subscribe(ctx context.Context, queue mq.MessageQueue, topic string, opts *mq.SubscribeOptions) error {
	if queue == nil {
		return errors.New("message queue is nil")
	}
	if topic == "" {
		return errors.New("cleanup topic is required")
	}
	if err := queue.SubscribeWithOptions(ctx, topic, j.HandleMessage, opts); err != nil {
		return err
	}
	return queue.Start()
}

// HandleMessage processes a cleanup event message. Malformed events are dropped.
func (j *ArchiveJanitor) HandleMessage(ctx context.Context, message *mq.Message) error {
	var event model.ArchiveCleanupEvent
	if err := json.Unmarshal(message.Body, &event); err != nil {
		logger.Warn(ctx, "parse cleanup event failed", zap.Error(err))
		return nil
	}
	if event.ProblemID <= 0 {
		logger.Warn(ctx, "cleanup event missing problem_id")
		return nil
	}
	bucket := event.Bucket
	if bucket == "" {
		bucket = j.bucket
	}
	switch event.EventType {
	case model.ArchiveCleanupIngested:
		return j.removeKey(ctx, bucket, event.ProblemID, event.ObjectKey)
	case model.ArchiveCleanupPurge:
		return j.purge(ctx, bucket, event.ProblemID)
	default:
		return nil
	}
}

// ArchiveIngested removes the staged archive right away.
func (j *ArchiveJanitor) ArchiveIngested(ctx context.Context, problemID int64, objectKey string) error {
	return j.removeKey(ctx, j.bucket, problemID, objectKey)
}

// PurgeArchives removes every archive under the problem prefix right away.
func (j *ArchiveJanitor) PurgeArchives(ctx context.Context, problemID int64) error {
	return j.purge(ctx, j.bucket, problemID)
}

func (j *ArchiveJanitor) removeKey(ctx context.Context, bucket string, problemID int64, objectKey string) error {
	if bucket == "" || objectKey == "" {
		return errors.New("cleanup bucket or object key is empty")
	}
	// Only keys under the problem's own prefix are ever removed.
	if !strings.HasPrefix(objectKey, archiveObjectPrefix(j.keyPrefix, problemID)) {
		logger.Warn(ctx, "cleanup object outside problem prefix",
			zap.Int64("problem_id", problemID), zap.String("object_key", objectKey))
		return nil
	}
	if err := j.removeBatch(ctx, bucket, []string{objectKey}); err != nil {
		return err
	}
	logger.Info(ctx, "staged archive removed", zap.Int64("problem_id", problemID), zap.String("object_key", objectKey))
	return nil
}

func (j *ArchiveJanitor) purge(ctx context.Context, bucket string, problemID int64) error {
	if bucket == "" {
		return errors.New("cleanup bucket is empty")
	}
	prefix := archiveObjectPrefix(j.keyPrefix, problemID)
	listCtx, cancel := context.WithTimeout(ctx, j.listTimeout)
	defer cancel()

	removed := 0
	batch := make([]string, 0, j.batchSize)
	for obj := range j.storage.ListObjects(listCtx, bucket, prefix) {
		if obj.Err != nil {
			return obj.Err
		}
		if obj.Key == "" {
			continue
		}
		batch = append(batch, obj.Key)
		if len(batch) >= j.batchSize {
			if err := j.removeBatch(ctx, bucket, batch); err != nil {
				return err
			}
			removed += len(batch)
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		if err := j.removeBatch(ctx, bucket, batch); err != nil {
			return err
		}
		removed += len(batch)
	}
	if err := listCtx.Err(); err != nil {
		return fmt.Errorf("list objects failed: %w", err)
	}
	logger.Info(ctx, "problem archives purged", zap.Int64("problem_id", problemID), zap.Int("removed", removed))
	return nil
}

func (j *ArchiveJanitor) removeBatch(ctx context.Context, bucket string, keys []string) error {
	delCtx, cancel := context.WithTimeout(ctx, j.deleteTimeout)
	defer cancel()
	if err := j.storage.RemoveObjects(delCtx, bucket, keys); err != nil {
		return fmt.Errorf("remove objects failed: %w", err)
	}
	return nil
}
