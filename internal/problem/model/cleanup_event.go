package model

import "time"

const (
	// ArchiveCleanupIngested removes one staged archive after it was ingested.
	ArchiveCleanupIngested = "testcase.archive.ingested"
	// ArchiveCleanupPurge removes every archive kept for a problem.
	ArchiveCleanupPurge = "testcase.archive.purge"
)

// ArchiveCleanupEvent asks for archive objects to be removed from object storage.
type ArchiveCleanupEvent struct {
	EventType   string    `json:"event_type"`
	ProblemID   int64     `json:"problem_id"`
	Bucket      string    `json:"bucket"`
	ObjectKey   string    `json:"object_key,omitempty"`
	Prefix      string    `json:"prefix,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}
