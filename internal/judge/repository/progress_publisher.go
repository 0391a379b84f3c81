package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"judgebroker/internal/judge/model"
	appErr "judgebroker/pkg/errors"

	"github.com/nats-io/nats.go"
)

// DefaultProgressSubjectPrefix is prepended to the submission id.
const DefaultProgressSubjectPrefix = "judge.progress."

// ProgressPublisher fans out per-test progress to live consumers.
type ProgressPublisher interface {
	PublishProgress(ctx context.Context, event model.ProgressEvent) error
}

// NATSProgressPublisher publishes progress events as JSON on judge.progress.<submissionId>.
type NATSProgressPublisher struct {
	conn   *nats.Conn
	prefix string
}

// NewNATSProgressPublisher creates a publisher on an established connection.
func NewNATSProgressPublisher(conn *nats.Conn, prefix string) *NATSProgressPublisher {
	if prefix == "" {
		prefix = DefaultProgressSubjectPrefix
	}
	return &NATSProgressPublisher{conn: conn, prefix: prefix}
}

// Subject returns the subject progress for submissionID is published on.
func (p *NATSProgressPublisher) Subject(submissionID string) string {
	return p.prefix + submissionID
}

func (p *NATSProgressPublisher) PublishProgress(ctx context.Context, event model.ProgressEvent) error {
	if p == nil || p.conn == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal progress event failed: %w", err)
	}
	if err := p.conn.Publish(p.Subject(event.SubmissionID), payload); err != nil {
		return appErr.Wrapf(err, appErr.MQError, "publish progress event failed")
	}
	return nil
}

// SubscribeProgress calls fn for every progress event of one submission until the
// returned stop function is called.
func (p *NATSProgressPublisher) SubscribeProgress(submissionID string, fn func(model.ProgressEvent)) (func(), error) {
	if p == nil || p.conn == nil {
		return nil, appErr.New(appErr.ServiceUnavailable).WithMessage("progress stream is not configured")
	}
	sub, err := p.conn.Subscribe(p.Subject(submissionID), func(msg *nats.Msg) {
		var event model.ProgressEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			return
		}
		fn(event)
	})
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.MQError, "subscribe progress failed")
	}
	return func() { _ = sub.Unsubscribe() }, nil
}
