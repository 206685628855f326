package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 20000-20099: Grading setup errors
// 20100-20199: Grading execution errors
// 20200-20299: Report errors
// 20300-20399: Storage & publishing errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	// Success
	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	ServiceUnavailable  ErrorCode = 10007
	Timeout             ErrorCode = 10008

	// Validation errors (10300-10399)
	ValidationFailed   ErrorCode = 10300
	InvalidFormat      ErrorCode = 10301
	InvalidValue       ErrorCode = 10302
	RequiredFieldEmpty ErrorCode = 10303

	// ========== Grading Setup Errors (20000-20099) ==========

	ConfigInvalid     ErrorCode = 20000
	GraderLoadFailed  ErrorCode = 20001
	EnumerationFailed ErrorCode = 20002
	DuplicateWorkItem ErrorCode = 20003

	// ========== Grading Execution Errors (20100-20199) ==========

	GraderTimeout      ErrorCode = 20100
	GraderCrashed      ErrorCode = 20101
	WorkerSpawnFailed  ErrorCode = 20102
	GraderOutputBroken ErrorCode = 20103

	// ========== Report Errors (20200-20299) ==========

	ReportWriteFailed ErrorCode = 20200
	ReportReadFailed  ErrorCode = 20201

	// ========== Storage & Publishing Errors (20300-20399) ==========

	StorageError   ErrorCode = 20300
	ArchiveInvalid ErrorCode = 20301
	PublishFailed  ErrorCode = 20302
	TemplateFailed ErrorCode = 20303
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	// System & Common
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	ServiceUnavailable:  "Service temporarily unavailable",
	Timeout:             "Request timeout",

	// Validation
	ValidationFailed:   "Validation failed",
	InvalidFormat:      "Invalid format",
	InvalidValue:       "Invalid value",
	RequiredFieldEmpty: "Required field is empty",

	// Grading setup
	ConfigInvalid:     "Invalid configuration",
	GraderLoadFailed:  "Failed to load grader",
	EnumerationFailed: "Failed to enumerate submissions",
	DuplicateWorkItem: "Duplicate submission identity",

	// Grading execution
	GraderTimeout:      "Grader exceeded its time budget",
	GraderCrashed:      "Grader exited abnormally",
	WorkerSpawnFailed:  "Failed to start grader process",
	GraderOutputBroken: "Grader produced no readable grade",

	// Report
	ReportWriteFailed: "Failed to write grade report",
	ReportReadFailed:  "Failed to read grade report",

	// Storage & publishing
	StorageError:   "Object storage operation failed",
	ArchiveInvalid: "Invalid submission archive",
	PublishFailed:  "Failed to publish file",
	TemplateFailed: "Failed to render template",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// HTTPStatus maps the error code to an HTTP status for the progress API.
func (c ErrorCode) HTTPStatus() int {
	switch c {
	case Success:
		return 200
	case InvalidParams, ValidationFailed, InvalidFormat, InvalidValue, RequiredFieldEmpty:
		return 400
	case NotFound:
		return 404
	case Timeout, GraderTimeout:
		return 408
	case ServiceUnavailable:
		return 503
	default:
		return 500
	}
}

// ExitCode returns the process exit status a command should use for the error code.
func (c ErrorCode) ExitCode() int {
	switch {
	case c == Success:
		return 0
	case c >= 20000 && c < 20100: // Setup errors
		return 2
	case c >= 20200 && c < 20300: // Report errors
		return 3
	case c >= 20300 && c < 20400: // Storage errors
		return 4
	case c >= 10300 && c < 10400, c == InvalidParams:
		return 2
	default:
		return 1
	}
}
