package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 17000-17099: Test file parsing errors
// 17100-17199: Judge authentication & session errors
// 17200-17299: Submission, correlation & polling errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	// Success
	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalError      ErrorCode = 10001
	InvalidParams      ErrorCode = 10002
	NotFound           ErrorCode = 10003
	ServiceUnavailable ErrorCode = 10007
	Timeout            ErrorCode = 10008
	Canceled           ErrorCode = 10009

	// Infrastructure errors (10100-10199)
	DatabaseError ErrorCode = 10100
	CacheError    ErrorCode = 10200
	StorageError  ErrorCode = 10300
	QueueError    ErrorCode = 10400

	// ========== Test File Parsing Errors (17000-17099) ==========

	NoURL           ErrorCode = 17000
	MultipleURLs    ErrorCode = 17001
	IncludeNotFound ErrorCode = 17002
	WrongExtension  ErrorCode = 17003
	FileReadFailed  ErrorCode = 17004

	// ========== Authentication & Session Errors (17100-17199) ==========

	AuthFailed         ErrorCode = 17100
	CredentialsMissing ErrorCode = 17101
	AuthBudgetExceeded ErrorCode = 17102
	SessionExpired     ErrorCode = 17103

	// ========== Submission Errors (17200-17299) ==========

	// Judge selection (17200-17209)
	JudgeNotSupported   ErrorCode = 17200
	MalformedProblemURL ErrorCode = 17201

	// Judge transport (17210-17229)
	JudgeUnavailable   ErrorCode = 17210
	PageNotReady       ErrorCode = 17211
	SubmitFailed       ErrorCode = 17212
	SubmissionRejected ErrorCode = 17213

	// Correlation (17230-17249)
	CorrelationNotFound ErrorCode = 17230
	MarkerConflict      ErrorCode = 17231
	BindingConflict     ErrorCode = 17232

	// Polling & retry budget (17250-17269)
	PollTimeout       ErrorCode = 17250
	SubmissionTimeout ErrorCode = 17251
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	// System & Common
	Success:            "Success",
	InternalError:      "Internal error",
	InvalidParams:      "Invalid parameters",
	NotFound:           "Resource not found",
	ServiceUnavailable: "Service temporarily unavailable",
	Timeout:            "Operation timeout",
	Canceled:           "Operation canceled",

	// Infrastructure
	DatabaseError: "Database operation failed",
	CacheError:    "Cache operation failed",
	StorageError:  "Object storage operation failed",
	QueueError:    "Message queue operation failed",

	// Parsing
	NoURL:           "no problem_url tag",
	MultipleURLs:    "multiple problem_url tags",
	IncludeNotFound: "include file not found",
	WrongExtension:  "wrong test file extension",
	FileReadFailed:  "could not open test file",

	// Authentication & Session
	AuthFailed:         "judge login failed",
	CredentialsMissing: "judge credentials are not configured",
	AuthBudgetExceeded: "could not log into judge",
	SessionExpired:     "judge session expired",

	// Submission
	JudgeNotSupported:   "judge not supported",
	MalformedProblemURL: "malformed problem url",
	JudgeUnavailable:    "judge unavailable",
	PageNotReady:        "judge page not ready",
	SubmitFailed:        "submission upload failed",
	SubmissionRejected:  "judge refused the submission",
	CorrelationNotFound: "submitted solution not found in judge history",
	MarkerConflict:      "marker already in flight",
	BindingConflict:     "submission already bound to another attempt",
	PollTimeout:         "verdict polling timeout",
	SubmissionTimeout:   "submission timeout",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// transientCodes lists failures expected to clear when the same operation is retried later.
var transientCodes = map[ErrorCode]bool{
	ServiceUnavailable:  true,
	Timeout:             true,
	AuthFailed:          true,
	SessionExpired:      true,
	JudgeUnavailable:    true,
	PageNotReady:        true,
	SubmitFailed:        true,
	CorrelationNotFound: true,
	PollTimeout:         true,
}

// IsTransient reports whether the code signals a retryable failure.
func (c ErrorCode) IsTransient() bool {
	return transientCodes[c]
}

// IsParsing reports whether the code belongs to the test file parsing range.
func (c ErrorCode) IsParsing() bool {
	return c >= 17000 && c < 17100
}
