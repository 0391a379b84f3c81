package service

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"judgebroker/internal/common/mq"
	"judgebroker/internal/problem/model"
	pkgerrors "judgebroker/pkg/errors"
)

type recordingQueue struct {
	mu        sync.Mutex
	published map[string][]*mq.Message
	handlers  map[string]mq.HandlerFunc
	started   int
}

func newRecordingQueue() *recordingQueue {
	return &recordingQueue{published: make(map[string][]*mq.Message), handlers: make(map[string]mq.HandlerFunc)}
}

func (q *recordingQueue) Publish(ctx context.Context, topic string, message *mq.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.published[topic] = append(q.published[topic], message)
	return nil
}

func (q *recordingQueue) SubscribeWithOptions(ctx context.Context, topic string, handler mq.HandlerFunc, opts *mq.SubscribeOptions) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[topic] = handler
	return nil
}

func (q *recordingQueue) Start() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.started++
	return nil
}

func (q *recordingQueue) Stop() error { return nil }

func (q *recordingQueue) Ping(ctx context.Context) error { return nil }

func (q *recordingQueue) Close() error { return nil }

// deliver hands every published message on topic to its subscribed handler.
func (q *recordingQueue) deliver(t *testing.T, topic string) {
	t.Helper()
	q.mu.Lock()
	handler := q.handlers[topic]
	messages := q.published[topic]
	q.published[topic] = nil
	q.mu.Unlock()
	if handler == nil {
		t.Fatalf("no handler for %s", topic)
	}
	for _, m := range messages {
		if err := handler(context.Background(), m); err != nil {
			t.Fatalf("handle: %v", err)
		}
	}
}

func putObjects(t *testing.T, store *fakeStorage, keys ...string) {
	t.Helper()
	for _, k := range keys {
		if err := store.PutObject(context.Background(), "judge", k, strings.NewReader("x"), 1, ""); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}
}

func TestArchiveJanitorPurgeKeepsOtherProblems(t *testing.T) {
	store := newFakeStorage()
	putObjects(t, store, "testcases/1/a.archive", "testcases/1/b.archive", "testcases/1/c.archive", "testcases/12/a.archive")
	janitor := NewArchiveJanitor(store, CleanupOptions{Bucket: "judge", KeyPrefix: "testcases", BatchSize: 2})

	if err := janitor.PurgeArchives(context.Background(), 1); err != nil {
		t.Fatalf("PurgeArchives: %v", err)
	}
	if store.count() != 1 || !store.has("judge", "testcases/12/a.archive") {
		t.Fatalf("expected only problem 12 archive to remain, have %d objects", store.count())
	}
	if store.removeCalls != 2 {
		t.Fatalf("expected two removal batches, got %d", store.removeCalls)
	}
}

func TestArchiveJanitorIgnoresForeignKeys(t *testing.T) {
	store := newFakeStorage()
	putObjects(t, store, "testcases/2/a.archive")
	janitor := NewArchiveJanitor(store, CleanupOptions{Bucket: "judge", KeyPrefix: "testcases"})

	if err := janitor.ArchiveIngested(context.Background(), 1, "testcases/2/a.archive"); err != nil {
		t.Fatalf("ArchiveIngested: %v", err)
	}
	if !store.has("judge", "testcases/2/a.archive") {
		t.Fatalf("object outside the problem prefix must stay")
	}
}

func TestArchiveCleanupOverQueue(t *testing.T) {
	store := newFakeStorage()
	queue := newRecordingQueue()
	janitor := NewArchiveJanitor(store, CleanupOptions{Bucket: "judge", KeyPrefix: "testcases"})
	if err := janitor.Subscribe(context.Background(), queue, "archive.cleanup", nil); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if queue.started != 1 {
		t.Fatalf("expected queue to be started")
	}

	repo := newFakeTestCaseRepo()
	svc := NewIngestService(newTestCaseService(repo, nil), store, IngestOptions{Bucket: "judge", KeyPrefix: "testcases"}).
		WithCleaner(NewArchiveCleanupPublisher(queue, "archive.cleanup", "judge", "testcases"))

	ctx := context.Background()
	data := buildZip(t, threePairsTwoStrays)
	if err := store.PutObject(ctx, "judge", "testcases/1/staged.archive", strings.NewReader(string(data)), int64(len(data)), ""); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := svc.IngestObject(ctx, 1, "testcases/1/staged.archive"); err != nil {
		t.Fatalf("IngestObject: %v", err)
	}

	var event model.ArchiveCleanupEvent
	if err := json.Unmarshal(queue.published["archive.cleanup"][0].Body, &event); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if event.EventType != model.ArchiveCleanupIngested || event.ObjectKey != "testcases/1/staged.archive" || event.Bucket != "judge" {
		t.Fatalf("unexpected event %+v", event)
	}
	if !store.has("judge", "testcases/1/staged.archive") {
		t.Fatalf("object must stay until the event is consumed")
	}
	queue.deliver(t, "archive.cleanup")
	if store.has("judge", "testcases/1/staged.archive") {
		t.Fatalf("staged archive should be removed after ingestion")
	}

	putObjects(t, store, "testcases/1/old.archive")
	if err := svc.PurgeArchives(ctx, 1); err != nil {
		t.Fatalf("PurgeArchives: %v", err)
	}
	queue.deliver(t, "archive.cleanup")
	if store.count() != 0 {
		t.Fatalf("expected every archive purged, have %d", store.count())
	}
}

func TestArchiveJanitorDropsMalformedEvents(t *testing.T) {
	janitor := NewArchiveJanitor(newFakeStorage(), CleanupOptions{Bucket: "judge"})
	if err := janitor.HandleMessage(context.Background(), mq.NewMessage([]byte("{"))); err != nil {
		t.Fatalf("malformed event should be dropped, got %v", err)
	}
	body, _ := json.Marshal(model.ArchiveCleanupEvent{EventType: model.ArchiveCleanupPurge})
	if err := janitor.HandleMessage(context.Background(), mq.NewMessage(body)); err != nil {
		t.Fatalf("event without problem should be dropped, got %v", err)
	}
}

func TestPurgeArchivesWithoutStorage(t *testing.T) {
	svc := NewIngestService(newTestCaseService(newFakeTestCaseRepo(), nil), nil, IngestOptions{})
	if err := svc.PurgeArchives(context.Background(), 1); !pkgerrors.Is(err, pkgerrors.ServiceUnavailable) {
		t.Fatalf("expected ServiceUnavailable, got %v", err)
	}
}
