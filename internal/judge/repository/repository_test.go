package repository

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"judgebroker/internal/common/cache"
	"judgebroker/internal/common/mq"
	"judgebroker/internal/judge/model"
	submitmodel "judgebroker/internal/submit/model"
	appErr "judgebroker/pkg/errors"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newStatusRepo(t *testing.T) (*StatusRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := cache.NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return NewStatusRepository(c, time.Minute), mr
}

func TestStatusRepositoryRoundTripDropsCode(t *testing.T) {
	repo, mr := newStatusRepo(t)
	ctx := context.Background()

	sub := &submitmodel.Submission{ID: "s-1", ProblemID: 3, Code: "print(1)", Status: model.StatusRunning}
	if err := repo.Save(ctx, sub); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if sub.Code == "" {
		t.Fatalf("Save must not mutate the caller's submission")
	}
	raw, err := mr.Get(statusKeyPrefix + "s-1")
	if err != nil {
		t.Fatalf("key not written: %v", err)
	}
	var stored map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		t.Fatalf("stored value is not json: %v", err)
	}
	if _, ok := stored["code"]; ok {
		t.Fatalf("code must not be cached")
	}

	got, err := repo.Get(ctx, "s-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != model.StatusRunning || got.ProblemID != 3 {
		t.Fatalf("unexpected snapshot %+v", got)
	}
}

func TestStatusRepositoryMiss(t *testing.T) {
	repo, _ := newStatusRepo(t)
	if _, err := repo.Get(context.Background(), "nope"); !errors.Is(err, ErrStatusNotCached) {
		t.Fatalf("expected ErrStatusNotCached, got %v", err)
	}
	if _, err := repo.Get(context.Background(), ""); !appErr.Is(err, appErr.ValidationFailed) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestStatusRepositoryWithoutCache(t *testing.T) {
	repo := NewStatusRepository(nil, 0)
	if err := repo.Save(context.Background(), &submitmodel.Submission{ID: "s-1"}); err != nil {
		t.Fatalf("Save without cache should be a no-op, got %v", err)
	}
	if _, err := repo.Get(context.Background(), "s-1"); !errors.Is(err, ErrStatusNotCached) {
		t.Fatalf("expected miss, got %v", err)
	}
}

type recordingQueue struct {
	mu        sync.Mutex
	published map[string][]*mq.Message
	err       error
}

func (q *recordingQueue) Publish(_ context.Context, topic string, message *mq.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
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

func TestPublishFinalStatus(t *testing.T) {
	queue := &recordingQueue{}
	pub := NewMQStatusEventPublisher(queue, "judge.status.final")
	event := model.StatusEvent{SubmissionID: "s-1", ProblemID: 7, Status: model.StatusWrongAnswer, Score: 30}

	if err := pub.PublishFinalStatus(context.Background(), event); err != nil {
		t.Fatalf("PublishFinalStatus: %v", err)
	}
	msgs := queue.published["judge.status.final"]
	if len(msgs) != 1 {
		t.Fatalf("expected one message, got %d", len(msgs))
	}
	if msgs[0].ID != "s-1" || msgs[0].Headers["problem_id"] != "7" {
		t.Fatalf("unexpected message metadata %+v", msgs[0])
	}
	var decoded model.StatusEvent
	if err := json.Unmarshal(msgs[0].Body, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded != event {
		t.Fatalf("expected %+v, got %+v", event, decoded)
	}
}

func TestPublishFinalStatusRejects(t *testing.T) {
	tests := []struct {
		name  string
		pub   *MQStatusEventPublisher
		event model.StatusEvent
		code  appErr.ErrorCode
	}{
		{
			name:  "unconfigured",
			pub:   nil,
			event: model.StatusEvent{SubmissionID: "s-1", Status: model.StatusAccepted},
			code:  appErr.ServiceUnavailable,
		},
		{
			name:  "non terminal status",
			pub:   NewMQStatusEventPublisher(&recordingQueue{}, "t"),
			event: model.StatusEvent{SubmissionID: "s-1", Status: model.StatusRunning},
			code:  appErr.ValidationFailed,
		},
		{
			name:  "queue failure",
			pub:   NewMQStatusEventPublisher(&recordingQueue{err: errors.New("broker down")}, "t"),
			event: model.StatusEvent{SubmissionID: "s-1", Status: model.StatusAccepted},
			code:  appErr.MQError,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.pub.PublishFinalStatus(context.Background(), tt.event)
			if !appErr.Is(err, tt.code) {
				t.Fatalf("expected code %d, got %v", tt.code, err)
			}
		})
	}
}

func TestProgressPublisherWithoutConnection(t *testing.T) {
	pub := NewNATSProgressPublisher(nil, "")
	if got := pub.Subject("abc"); got != "judge.progress.abc" {
		t.Fatalf("unexpected subject %q", got)
	}
	if err := pub.PublishProgress(context.Background(), model.ProgressEvent{SubmissionID: "abc"}); err != nil {
		t.Fatalf("publish without connection should be a no-op, got %v", err)
	}
	if _, err := pub.SubscribeProgress("abc", func(model.ProgressEvent) {}); !appErr.Is(err, appErr.ServiceUnavailable) {
		t.Fatalf("expected ServiceUnavailable, got %v", err)
	}
}
