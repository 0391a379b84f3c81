package service

import (
	"context"
	"encoding/json"

	"judgebroker/internal/common/mq"
	judgemodel "judgebroker/internal/judge/model"
	appErr "judgebroker/pkg/errors"
)

// MQDispatcher publishes judge messages to the dispatch topic. The broker's own
// consumer feeds them into the worker pool.
type MQDispatcher struct {
	queue mq.MessageQueue
	topic string
}

// NewMQDispatcher creates a dispatcher on topic.
func NewMQDispatcher(queue mq.MessageQueue, topic string) *MQDispatcher {
	return &MQDispatcher{queue: queue, topic: topic}
}

func (d *MQDispatcher) Dispatch(ctx context.Context, msg judgemodel.JudgeMessage) error {
	if d.queue == nil || d.topic == "" {
		return appErr.New(appErr.ServiceUnavailable).WithMessage("judge topic is not configured")
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return appErr.Wrapf(err, appErr.SubmissionCreateFailed, "encode judge message failed")
	}
	message := mq.NewMessage(body)
	message.ID = msg.SubmissionID
	if err := d.queue.Publish(ctx, d.topic, message); err != nil {
		return appErr.Wrapf(err, appErr.MQError, "publish judge message failed")
	}
	return nil
}
