package model

import "time"

// TestcaseResult is one persisted per-test row of a submission. Rows are append-only.
type TestcaseResult struct {
	SubmissionID string    `json:"submission_id"`
	TestCaseID   int64     `json:"test_case_id"`
	ProblemID    int64     `json:"problem_id"`
	Status       Status    `json:"status"`
	Stdout       string    `json:"stdout"`
	RuntimeMs    int64     `json:"runtime_ms"`
	MemoryKB     int64     `json:"memory_kb"`
	CreatedAt    time.Time `json:"created_at"`
}
