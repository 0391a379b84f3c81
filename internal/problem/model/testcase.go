package model

import "time"

// TestCase is one input/expected-output pair of a problem.
// Index defines execution and display order; the execution path never mutates a test case.
type TestCase struct {
	ID             int64     `json:"test_case_id"`
	ProblemID      int64     `json:"problem_id"`
	InputData      string    `json:"input_data"`
	ExpectedOutput string    `json:"expected_output"`
	IsSample       bool      `json:"is_sample"`
	Points         int64     `json:"points"`
	Label          string    `json:"label"`
	Index          int64     `json:"index"`
	CreatedAt      time.Time `json:"created_at"`
}

// TestCaseView is the presentation-safe projection of a test case.
// InputData and ExpectedOutput are nil for hidden cases.
type TestCaseView struct {
	ID             int64   `json:"test_case_id"`
	ProblemID      int64   `json:"problem_id"`
	InputData      *string `json:"input_data"`
	ExpectedOutput *string `json:"expected_output"`
	IsSample       bool    `json:"is_sample"`
	Points         int64   `json:"points"`
	Label          string  `json:"label"`
	Index          int64   `json:"index"`
}

// View projects a test case for display, hiding data of non-sample cases.
func (tc TestCase) View() TestCaseView {
	v := TestCaseView{
		ID:        tc.ID,
		ProblemID: tc.ProblemID,
		IsSample:  tc.IsSample,
		Points:    tc.Points,
		Label:     tc.Label,
		Index:     tc.Index,
	}
	if tc.IsSample {
		input, expected := tc.InputData, tc.ExpectedOutput
		v.InputData = &input
		v.ExpectedOutput = &expected
	}
	return v
}

// Problem carries the fields of a problem the broker reads or maintains.
type Problem struct {
	ID                  int64     `json:"problem_id"`
	Title               string    `json:"title"`
	TimeLimitMs         int64     `json:"time_limit_ms"`
	MemoryLimitKB       int64     `json:"memory_limit_kb"`
	AcceptedSubmissions int64     `json:"accepted_submissions"`
	TotalSubmissions    int64     `json:"total_submissions"`
	UpdatedAt           time.Time `json:"updated_at"`
}
