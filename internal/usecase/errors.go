package usecase

import "fmt"

type ErrorCode string

const (
	ErrorUnauthorized     ErrorCode = "UNAUTHORIZED"
	ErrorInvalidInput     ErrorCode = "INVALID_INPUT"
	ErrorMethodNotAllowed ErrorCode = "METHOD_NOT_ALLOWED"
	ErrorUpstream         ErrorCode = "UPSTREAM_ERROR"
	ErrorInternal         ErrorCode = "INTERNAL_ERROR"
)

// Reasons are stable, machine-readable and safe to log. The handler maps some
// of them to user-facing messages.
const (
	ReasonMissingIdentity   = "missing_identity"
	ReasonUnsupportedMethod = "unsupported_method"
	ReasonMissingBody       = "missing_body"
	ReasonInvalidJSON       = "invalid_json"
	ReasonEmptyPrompt       = "empty_prompt"
	ReasonPromptTooLong     = "prompt_too_long"
	ReasonInvalidMode       = "invalid_mode"
	ReasonMissingLanguage   = "missing_target_language"
	ReasonInvalidLimit      = "invalid_limit"
	ReasonInvalidCursor     = "invalid_cursor"
	ReasonModelError        = "model_invoke_error"
	ReasonHistoryWriteError = "history_write_error"
	ReasonHistoryReadError  = "history_read_error"
	ReasonUnexpected        = "unexpected_error"
)

type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

// NewInvalidInput reports a caller mistake detected outside the service,
// e.g. while the handler decodes the request body.
func NewInvalidInput(reason string) *Error {
	return newError(ErrorInvalidInput, reason, nil)
}
