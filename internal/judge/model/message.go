package model

import "time"

// JudgeMessage is the dispatch payload handed from the submit path to the judge pool.
type JudgeMessage struct {
	SubmissionID string    `json:"submission_id"`
	ProblemID    int64     `json:"problem_id"`
	LanguageID   string    `json:"language_id"`
	UserID       int64     `json:"user_id"`
	EnqueuedAt   time.Time `json:"enqueued_at"`
}

// StatusEvent is published once per submission when it reaches a terminal state.
type StatusEvent struct {
	SubmissionID string `json:"submission_id"`
	ProblemID    int64  `json:"problem_id"`
	UserID       int64  `json:"user_id"`
	Status       Status `json:"status"`
	Score        int64  `json:"score"`
	TimeMs       int64  `json:"time_ms"`
	MemoryKB     int64  `json:"memory_kb"`
	FinishedAt   int64  `json:"finished_at"`
}

// ProgressEvent is published for every persisted test case row and for the final verdict.
type ProgressEvent struct {
	SubmissionID string `json:"submission_id"`
	Kind         string `json:"kind"` // testcase, final
	TestCaseID   int64  `json:"test_case_id,omitempty"`
	Status       Status `json:"status"`
	TimeMs       int64  `json:"time_ms"`
	MemoryKB     int64  `json:"memory_kb"`
	Score        int64  `json:"score,omitempty"`
}
