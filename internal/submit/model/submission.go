package model

import (
	"time"

	judgemodel "judgebroker/internal/judge/model"
)

// Submission is one user attempt at a problem.
type Submission struct {
	ID           string            `json:"submission_id"`
	UserID       int64             `json:"user_id"`
	ProblemID    int64             `json:"problem_id"`
	LanguageID   string            `json:"language_id"`
	Code         string            `json:"code,omitempty"`
	Status       judgemodel.Status `json:"status"`
	Score        int64             `json:"score"`
	TimeMs       int64             `json:"time_ms"`
	MemoryKB     int64             `json:"memory_kb"`
	ErrorMessage string            `json:"error_message,omitempty"`
	CreatedAt    time.Time         `json:"submission_time"`
	FinishedAt   *time.Time        `json:"finished_at,omitempty"`
}

// FinalResult is the terminal write for a submission.
type FinalResult struct {
	Status       judgemodel.Status
	Score        int64
	TimeMs       int64
	MemoryKB     int64
	ErrorMessage string
	FinishedAt   time.Time
}

// Apply copies the terminal fields onto s.
func (s *Submission) Apply(final FinalResult) {
	finishedAt := final.FinishedAt
	s.Status = final.Status
	s.Score = final.Score
	s.TimeMs = final.TimeMs
	s.MemoryKB = final.MemoryKB
	s.ErrorMessage = final.ErrorMessage
	s.FinishedAt = &finishedAt
}
