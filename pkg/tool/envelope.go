package tool

import "fmt"

// Status values for an Envelope.
const (
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusError   = "error"
)

// ErrorCode classifies a tool failure for the model.
type ErrorCode string

const (
	CodeNotFound         ErrorCode = "NOT_FOUND"
	CodeAccessDenied     ErrorCode = "ACCESS_DENIED"
	CodePermissionDenied ErrorCode = "PERMISSION_DENIED"
	CodeInvalidParam     ErrorCode = "INVALID_PARAM"
	CodeTimeout          ErrorCode = "TIMEOUT"
	CodeInternalError    ErrorCode = "INTERNAL_ERROR"
	CodeExecutionError   ErrorCode = "EXECUTION_ERROR"
	CodeIsDirectory      ErrorCode = "IS_DIRECTORY"
	CodeBinaryFile       ErrorCode = "BINARY_FILE"
	CodeConflict         ErrorCode = "CONFLICT"
)

// Error is the structured error carried inside an error envelope.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// Stats carries execution measurements.
type Stats struct {
	TimeMS int64 `json:"time_ms"`
}

// Envelope is the uniform result of every tool invocation. Tools never
// return Go errors across the dispatch boundary; failures travel as
// error envelopes so the model can observe and react to them.
//
// Context carries out-of-band hints for the dispatcher, e.g.
// "truncation_skip" (bool) and "truncate_direction" ("head"|"tail").
type Envelope struct {
	Status  string         `json:"status"`
	Data    map[string]any `json:"data,omitempty"`
	Text    string         `json:"text,omitempty"`
	Error   *Error         `json:"error,omitempty"`
	Stats   *Stats         `json:"stats,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

// Success builds a success envelope.
func Success(text string, data map[string]any) *Envelope {
	return &Envelope{Status: StatusSuccess, Text: text, Data: data}
}

// Partial builds a partial envelope.
func Partial(text string, data map[string]any) *Envelope {
	return &Envelope{Status: StatusPartial, Text: text, Data: data}
}

// Errorf builds an error envelope with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Envelope {
	return &Envelope{
		Status: StatusError,
		Error:  &Error{Code: code, Message: fmt.Sprintf(format, args...)},
	}
}

// IsError reports whether the envelope represents a failure.
func (e *Envelope) IsError() bool { return e != nil && e.Status == StatusError }

// WithContext sets a context hint on the envelope and returns it.
func (e *Envelope) WithContext(key string, value any) *Envelope {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}
