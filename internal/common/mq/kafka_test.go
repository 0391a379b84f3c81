package mq

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestKafkaHeadersCarryMessageMetadata(t *testing.T) {
	msg := NewMessage([]byte(`{"submission_id":"s1"}`))
	msg.ID = "s1"
	msg.MaxRetries = 5
	msg.Expiration = 2 * time.Second
	msg.SetHeader("event", "final")

	got := decodeMessage(encodeMessage("judge.status.final", msg))
	if got.ID != "s1" || got.MaxRetries != 5 || got.Expiration != 2*time.Second {
		t.Fatalf("unexpected metadata: %+v", got)
	}
	if got.Headers["event"] != "final" {
		t.Fatalf("expected custom header, got %v", got.Headers)
	}
	if _, ok := got.Headers["x-message-id"]; ok {
		t.Fatalf("reserved header leaked into Headers")
	}
}

func TestParseCompression(t *testing.T) {
	for _, name := range []string{"", "none", "gzip", "Snappy", "lz4", "zstd"} {
		if _, err := parseCompression(name); err != nil {
			t.Fatalf("expected %q to parse: %v", name, err)
		}
	}
	if _, err := parseCompression("brotli"); err == nil {
		t.Fatalf("expected unknown codec to fail")
	}
}

func TestDeliverRetriesThenDeadLetters(t *testing.T) {
	opts := SubscribeOptions{MaxRetries: 2, RetryDelay: time.Millisecond, DeadLetterTopic: "dlq"}
	calls := 0
	handler := func(context.Context, *Message) error {
		calls++
		return errors.New("boom")
	}
	var dead *Message
	deliver(context.Background(), NewMessage(nil), handler, opts, func(_ context.Context, m *Message) error {
		dead = m
		return nil
	})
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
	if dead == nil || dead.RetryCount != 3 {
		t.Fatalf("expected dead letter after retries, got %+v", dead)
	}
}

func TestDeliverSucceedsAfterRetry(t *testing.T) {
	opts := SubscribeOptions{MaxRetries: 3, RetryDelay: time.Millisecond}
	calls := 0
	handler := func(context.Context, *Message) error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	}
	deliver(context.Background(), NewMessage(nil), handler, opts, func(context.Context, *Message) error {
		t.Fatalf("dead letter must not be used")
		return nil
	})
	if calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
}

func TestDeliverDropsExpired(t *testing.T) {
	msg := NewMessage(nil)
	msg.Timestamp = time.Now().Add(-time.Minute)
	msg.Expiration = time.Second
	deliver(context.Background(), msg, func(context.Context, *Message) error {
		t.Fatalf("expired message must not be handled")
		return nil
	}, SubscribeOptions{MaxRetries: 1}, nil)
}

func TestDeliverBacksOffUpToCap(t *testing.T) {
	opts := SubscribeOptions{MaxRetries: 3, RetryDelay: 5 * time.Millisecond, MaxRetryDelay: 8 * time.Millisecond}
	var stamps []time.Time
	handler := func(context.Context, *Message) error {
		stamps = append(stamps, time.Now())
		return errors.New("pool full")
	}
	deliver(context.Background(), NewMessage(nil), handler, opts, nil)
	if len(stamps) != 4 {
		t.Fatalf("expected 4 attempts, got %d", len(stamps))
	}
	if gap := stamps[2].Sub(stamps[1]); gap < 8*time.Millisecond {
		t.Fatalf("expected second wait to reach the cap, got %v", gap)
	}
}

func TestEncodeSkipsCallerReservedHeaders(t *testing.T) {
	msg := NewMessage(nil)
	msg.ID = "real"
	msg.SetHeader("x-message-id", "spoofed")
	got := decodeMessage(encodeMessage("t", msg))
	if got.ID != "real" {
		t.Fatalf("expected id from message, got %q", got.ID)
	}
}
