package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 12000-12999: Problem & test case errors
// 13000-13099: Submission errors
// 13100-13199: Judge errors
// 13200-13299: Execution backend errors
// 16000-16999: Permission errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	Unauthorized        ErrorCode = 10004
	Forbidden           ErrorCode = 10005
	TooManyRequests     ErrorCode = 10006
	ServiceUnavailable  ErrorCode = 10007
	Timeout             ErrorCode = 10008

	// Database errors (10100-10199)
	DatabaseError       ErrorCode = 10100
	RecordNotFound      ErrorCode = 10101
	RecordAlreadyExists ErrorCode = 10102
	TransactionFailed   ErrorCode = 10103

	// Cache errors (10200-10299)
	CacheError ErrorCode = 10200

	// Validation errors (10300-10399)
	ValidationFailed   ErrorCode = 10300
	InvalidFormat      ErrorCode = 10301
	InvalidValue       ErrorCode = 10302
	RequiredFieldEmpty ErrorCode = 10303

	// Storage & messaging (10400-10499)
	StorageError ErrorCode = 10400
	MQError      ErrorCode = 10401

	// Auth (11000-11099)
	TokenExpired ErrorCode = 11003
	TokenInvalid ErrorCode = 11004

	// ========== Problem Errors (12000-12999) ==========

	ProblemNotFound ErrorCode = 12000

	// Test cases (12100-12199)
	TestCaseNotFound       ErrorCode = 12100
	TestCaseUploadFailed   ErrorCode = 12101
	TestCaseInvalid        ErrorCode = 12102
	TestCaseTooLarge       ErrorCode = 12103
	TestCaseArchiveInvalid ErrorCode = 12104
	TestCaseInUse          ErrorCode = 12105
	TestCaseLabelConflict  ErrorCode = 12106

	// ========== Submission & Judge Errors (13000-13999) ==========

	// Submission (13000-13099)
	SubmissionNotFound     ErrorCode = 13000
	SubmissionCreateFailed ErrorCode = 13001
	CodeTooLarge           ErrorCode = 13002
	LanguageNotSupported   ErrorCode = 13003
	SubmissionFinalized    ErrorCode = 13004

	// Judge (13100-13199)
	JudgeQueueFull   ErrorCode = 13100
	JudgeSystemError ErrorCode = 13101

	// Execution backend (13200-13299)
	ExecutionBackendUnavailable ErrorCode = 13200
	ExecutionProtocolViolation  ErrorCode = 13201
	ExecutionStreamTerminated   ErrorCode = 13202
	ExecutionTimeout            ErrorCode = 13203
	ExecutionCancelled          ErrorCode = 13204

	// ========== Permission Errors (16000-16999) ==========

	PermissionDenied ErrorCode = 16000
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	// System & Common
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	Unauthorized:        "Unauthorized access",
	Forbidden:           "Access forbidden",
	TooManyRequests:     "Too many requests, please try again later",
	ServiceUnavailable:  "Service temporarily unavailable",
	Timeout:             "Request timeout",

	// Database
	DatabaseError:       "Database operation failed",
	RecordNotFound:      "Record not found in database",
	RecordAlreadyExists: "Record already exists",
	TransactionFailed:   "Database transaction failed",

	CacheError: "Cache operation failed",

	// Validation
	ValidationFailed:   "Validation failed",
	InvalidFormat:      "Invalid format",
	InvalidValue:       "Invalid value",
	RequiredFieldEmpty: "Required field is empty",

	StorageError: "Object storage operation failed",
	MQError:      "Message queue operation failed",

	TokenExpired: "Token has expired",
	TokenInvalid: "Invalid token",

	// Problem
	ProblemNotFound: "Problem not found",

	// Test cases
	TestCaseNotFound:       "Test case not found",
	TestCaseUploadFailed:   "Failed to upload test case",
	TestCaseInvalid:        "Invalid test case format",
	TestCaseTooLarge:       "Test case file is too large",
	TestCaseArchiveInvalid: "Archive contains no input/output pairs",
	TestCaseInUse:          "Test case is referenced by a running submission",
	TestCaseLabelConflict:  "Test case label already exists",

	// Submission
	SubmissionNotFound:     "Submission not found",
	SubmissionCreateFailed: "Failed to create submission",
	CodeTooLarge:           "Code is too large",
	LanguageNotSupported:   "Programming language not supported",
	SubmissionFinalized:    "Submission already reached a terminal state",

	// Judge
	JudgeQueueFull:   "Judge queue is full, please try again later",
	JudgeSystemError: "Judge system error",

	// Execution backend
	ExecutionBackendUnavailable: "Execution backend unavailable",
	ExecutionProtocolViolation:  "Execution backend protocol violation",
	ExecutionStreamTerminated:   "Execution stream ended before all test cases were judged",
	ExecutionTimeout:            "Execution exceeded the wall-clock limit",
	ExecutionCancelled:          "Execution cancelled",

	PermissionDenied: "Permission denied",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// HTTPStatus returns the recommended HTTP status code for the error code
func (c ErrorCode) HTTPStatus() int {
	switch {
	case c == Success:
		return 200
	case c == Unauthorized, c == TokenExpired, c == TokenInvalid:
		return 401
	case c == Forbidden, c >= 16000 && c < 16100:
		return 403
	case c == NotFound, c == RecordNotFound, c == ProblemNotFound, c == TestCaseNotFound,
		c == SubmissionNotFound, c == LanguageNotSupported:
		return 404
	case c == TestCaseInUse, c == TestCaseLabelConflict, c == SubmissionFinalized, c == RecordAlreadyExists:
		return 409
	case c == TooManyRequests:
		return 429
	case c == ServiceUnavailable, c == JudgeQueueFull, c == ExecutionBackendUnavailable:
		return 503
	case c >= 10300 && c < 10400: // Validation errors
		return 400
	case c == InvalidParams, c == CodeTooLarge, c == TestCaseInvalid, c == TestCaseTooLarge, c == TestCaseArchiveInvalid:
		return 400
	case c == Timeout, c == ExecutionTimeout:
		return 504
	default:
		return 500
	}
}
