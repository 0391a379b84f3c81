package model

// Status is both the submission lifecycle state and the per-test verdict.
// Submission rows move Queued -> Running -> one terminal value; test case rows
// only ever hold a verdict or Skipped.
type Status string

const (
	StatusQueued  Status = "Queued"
	StatusRunning Status = "Running"

	StatusAccepted            Status = "Accepted"
	StatusWrongAnswer         Status = "WrongAnswer"
	StatusTimeLimitExceeded   Status = "TimeLimitExceeded"
	StatusMemoryLimitExceeded Status = "MemoryLimitExceeded"
	StatusOutputLimitExceeded Status = "OutputLimitExceeded"
	StatusRuntimeError        Status = "RuntimeError"
	StatusCompileError        Status = "CompileError"

	// StatusSkipped marks a test case the backend never reported.
	StatusSkipped Status = "Skipped"

	StatusSystemError Status = "SystemError"
)

var verdicts = map[Status]struct{}{
	StatusAccepted:            {},
	StatusWrongAnswer:         {},
	StatusTimeLimitExceeded:   {},
	StatusMemoryLimitExceeded: {},
	StatusOutputLimitExceeded: {},
	StatusRuntimeError:        {},
	StatusCompileError:        {},
}

// IsVerdict reports whether s is a verdict the execution backend may report for a test case.
func (s Status) IsVerdict() bool {
	_, ok := verdicts[s]
	return ok
}

// IsCompleted reports whether s is one of the judged terminal states.
// Skipped is final only when a partial stream judged no failing case.
func (s Status) IsCompleted() bool {
	return s.IsVerdict() || s == StatusSkipped
}

// IsTerminal reports whether no further transition may leave s.
func (s Status) IsTerminal() bool {
	return s == StatusSystemError || s.IsCompleted()
}

// Phase groups a submission status for "is it done" queries.
func (s Status) Phase() string {
	switch {
	case s == StatusQueued:
		return "queued"
	case s == StatusRunning:
		return "running"
	case s == StatusSystemError:
		return "failed"
	case s.IsCompleted():
		return "completed"
	default:
		return "unknown"
	}
}

// ParseVerdict maps a backend status string to a verdict. Short codes are accepted.
func ParseVerdict(raw string) (Status, bool) {
	switch raw {
	case "AC":
		return StatusAccepted, true
	case "WA":
		return StatusWrongAnswer, true
	case "TLE":
		return StatusTimeLimitExceeded, true
	case "MLE":
		return StatusMemoryLimitExceeded, true
	case "OLE":
		return StatusOutputLimitExceeded, true
	case "RE":
		return StatusRuntimeError, true
	case "CE":
		return StatusCompileError, true
	}
	s := Status(raw)
	return s, s.IsVerdict()
}
