package execution

import (
	"strings"
	"unicode/utf8"

	executionv1 "judgebroker/api/gen/execution/v1"
)

// LanguageSpec is the language part of a request. Commands are already expanded.
type LanguageSpec struct {
	SourceFileExt  string
	BinaryFileExt  string
	CompileCommand string
	RunCommand     string
}

// TestCaseSpec is one test case sent to the backend.
type TestCaseSpec struct {
	ID             int64
	Input          string
	ExpectedOutput string
}

// Request is sent once per submission.
type Request struct {
	SubmissionID  string
	Language      LanguageSpec
	Code          string
	TimeLimitMs   int64
	MemoryLimitKB int64
	TestCases     []TestCaseSpec
}

// Result is one streamed per-test result as the backend reported it.
type Result struct {
	SubmissionID string
	TestCaseID   int64
	Status       string
	Stdout       string
	MemoryKB     int64
	TimeMs       int64
}

func requestToProto(r *Request) *executionv1.ExecuteRequest {
	cases := make([]*executionv1.TestCase, 0, len(r.TestCases))
	for _, tc := range r.TestCases {
		cases = append(cases, &executionv1.TestCase{
			Id:             tc.ID,
			Input:          tc.Input,
			ExpectedOutput: tc.ExpectedOutput,
		})
	}
	return &executionv1.ExecuteRequest{
		Id: r.SubmissionID,
		Language: &executionv1.Language{
			SourceFileExt:  r.Language.SourceFileExt,
			BinaryFileExt:  r.Language.BinaryFileExt,
			CompileCommand: r.Language.CompileCommand,
			RunCommand:     r.Language.RunCommand,
		},
		Code:            r.Code,
		TimeLimitInMs:   r.TimeLimitMs,
		MemoryLimitInKb: r.MemoryLimitKB,
		TestCases:       cases,
	}
}

func requestFromProto(pb *executionv1.ExecuteRequest) *Request {
	lang := pb.GetLanguage()
	req := &Request{
		SubmissionID: pb.GetId(),
		Language: LanguageSpec{
			SourceFileExt:  lang.GetSourceFileExt(),
			BinaryFileExt:  lang.GetBinaryFileExt(),
			CompileCommand: lang.GetCompileCommand(),
			RunCommand:     lang.GetRunCommand(),
		},
		Code:          pb.GetCode(),
		TimeLimitMs:   pb.GetTimeLimitInMs(),
		MemoryLimitKB: pb.GetMemoryLimitInKb(),
		TestCases:     make([]TestCaseSpec, 0, len(pb.GetTestCases())),
	}
	for _, tc := range pb.GetTestCases() {
		req.TestCases = append(req.TestCases, TestCaseSpec{
			ID:             tc.GetId(),
			Input:          tc.GetInput(),
			ExpectedOutput: tc.GetExpectedOutput(),
		})
	}
	return req
}

// resultToProto replaces invalid UTF-8 in stdout; proto3 strings reject it on the wire.
func resultToProto(r *Result) *executionv1.TestCaseResult {
	stdout := r.Stdout
	if !utf8.ValidString(stdout) {
		stdout = strings.ToValidUTF8(stdout, string(utf8.RuneError))
	}
	return &executionv1.TestCaseResult{
		SubmissionId:    r.SubmissionID,
		TestCaseId:      r.TestCaseID,
		Status:          r.Status,
		Stdout:          stdout,
		MemoryUsageInKb: r.MemoryKB,
		TimeUsageInMs:   r.TimeMs,
	}
}

func resultFromProto(pb *executionv1.TestCaseResult) *Result {
	return &Result{
		SubmissionID: pb.GetSubmissionId(),
		TestCaseID:   pb.GetTestCaseId(),
		Status:       pb.GetStatus(),
		Stdout:       pb.GetStdout(),
		MemoryKB:     pb.GetMemoryUsageInKb(),
		TimeMs:       pb.GetTimeUsageInMs(),
	}
}
