package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"judgebroker/internal/common/mq"
	"judgebroker/internal/problem/model"
)

// ArchiveCleaner removes archive objects once they are no longer needed.
type ArchiveCleaner interface {
	ArchiveIngested(ctx context.Context, problemID int64, objectKey string) error
	PurgeArchives(ctx context.Context, problemID int64) error
}

// ArchiveCleanupPublisher hands cleanup work to the ArchiveJanitor over the queue.
type ArchiveCleanupPublisher struct {
	queue     mq.MessageQueue
	topic     string
	bucket    string
	keyPrefix string
}

// NewArchiveCleanupPublisher creates a new cleanup event publisher.
func NewArchiveCleanupPublisher(queue mq.MessageQueue, topic, bucket, keyPrefix string) *ArchiveCleanupPublisher {
	return &ArchiveCleanupPublisher{
		queue:     queue,
		topic:     topic,
		bucket:    bucket,
		keyPrefix: keyPrefix,
	}
}

// ArchiveIngested publishes removal of a staged archive.
func (p *ArchiveCleanupPublisher) ArchiveIngested(ctx context.Context, problemID int64, objectKey string) error {
	if objectKey == "" {
		return errors.New("objectKey is required")
	}
	return p.publish(ctx, model.ArchiveCleanupEvent{
		EventType: model.ArchiveCleanupIngested,
		ProblemID: problemID,
		ObjectKey: objectKey,
	})
}

// PurgeArchives publishes removal of every archive under the problem prefix.
func (p *ArchiveCleanupPublisher) PurgeArchives(ctx context.Context, problemID int64) error {
	return p.publish(ctx, model.ArchiveCleanupEvent{
		EventType: model.ArchiveCleanupPurge,
		ProblemID: problemID,
		Prefix:    archiveObjectPrefix(p.keyPrefix, problemID),
	})
}

func (p *ArchiveCleanupPublisher) publish(ctx context.Context, event model.ArchiveCleanupEvent) error {
	if p == nil || p.queue == nil {
		return errors.New("cleanup publisher is nil")
	}
	if p.topic == "" {
		return errors.New("cleanup topic is empty")
	}
	if event.ProblemID <= 0 {
		return errors.New("problemID is required")
	}
	event.Bucket = p.bucket
	event.RequestedAt = time.Now().UTC()
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal cleanup event failed: %w", err)
	}
	message := mq.NewMessage(payload)
	message.ID = fmt.Sprintf("archive-cleanup-%d-%d", event.ProblemID, time.Now().UnixNano())
	if err := p.queue.Publish(ctx, p.topic, message); err != nil {
		return fmt.Errorf("publish cleanup event failed: %w", err)
	}
	return nil
}
