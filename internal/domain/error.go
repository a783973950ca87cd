package domain

import (
	"errors"
	"fmt"
	"strings"
)

type ErrorCode string

const (
	CodeValidation        ErrorCode = "VALIDATION"
	CodeNotFound          ErrorCode = "NOT_FOUND"
	CodeDuplicateName     ErrorCode = "DUPLICATE_NAME"
	CodeVersionConflict   ErrorCode = "VERSION_CONFLICT"
	CodeInvalidTransition ErrorCode = "INVALID_TRANSITION"
	CodeAlreadyRunning    ErrorCode = "ALREADY_RUNNING"
	CodeNotRunning        ErrorCode = "NOT_RUNNING"
	CodeStartError        ErrorCode = "START_ERROR"
	CodeStopError         ErrorCode = "STOP_ERROR"
	CodeRepository        ErrorCode = "REPOSITORY"
	CodeConfigIO          ErrorCode = "CONFIG_IO"
	CodeInternal          ErrorCode = "INTERNAL"
)

var (
	ErrNotFound          = errors.New("server not found")
	ErrVersionConflict   = errors.New("version conflict")
	ErrAlreadyRunning    = errors.New("server already running")
	ErrNotRunning        = errors.New("server not running")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrRetryExhausted    = errors.New("retry limit exhausted")
	ErrStoreClosed       = errors.New("store is closed")
	ErrTransactionsOff   = errors.New("transactions are disabled")
	ErrWatchersOff       = errors.New("watchers are disabled")
	ErrEventsOff         = errors.New("event log is disabled")
	ErrUnsupportedOS     = errors.New("unsupported platform for host config")
)

// Error is the structured error carried across component boundaries.
// Details holds the accumulated violation list for validation failures.
type Error struct {
	Code    ErrorCode
	Op      string
	Message string
	Details []string
	Cause   error
	Meta    map[string]string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if msg == "" && len(e.Details) > 0 {
		msg = strings.Join(e.Details, "; ")
	}
	if e.Op == "" {
		if msg == "" {
			return string(e.Code)
		}
		return fmt.Sprintf("%s: %s", e.Code, msg)
	}
	if msg == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Code, msg)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func E(code ErrorCode, op, msg string, cause error) *Error {
	if msg == "" && cause != nil {
		msg = cause.Error()
	}
	return &Error{
		Code:    code,
		Op:      op,
		Message: msg,
		Cause:   cause,
	}
}

// Wrap attaches op to err unless it already carries one.
func Wrap(code ErrorCode, op string, err error) *Error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		if existing.Op != "" || op == "" {
			return existing
		}
		return &Error{
			Code:    existing.Code,
			Op:      op,
			Message: existing.Message,
			Details: existing.Details,
			Cause:   existing.Cause,
			Meta:    existing.Meta,
		}
	}
	return E(code, op, "", err)
}

func CodeFrom(err error) (ErrorCode, bool) {
	if err == nil {
		return "", false
	}
	var domainErr *Error
	if errors.As(err, &domainErr) && domainErr.Code != "" {
		return domainErr.Code, true
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return CodeNotFound, true
	case errors.Is(err, ErrVersionConflict):
		return CodeVersionConflict, true
	case errors.Is(err, ErrAlreadyRunning):
		return CodeAlreadyRunning, true
	case errors.Is(err, ErrNotRunning):
		return CodeNotRunning, true
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrRetryExhausted):
		return CodeInvalidTransition, true
	case errors.Is(err, ErrStoreClosed), errors.Is(err, ErrTransactionsOff),
		errors.Is(err, ErrWatchersOff), errors.Is(err, ErrEventsOff):
		return CodeRepository, true
	case errors.Is(err, ErrUnsupportedOS):
		return CodeConfigIO, true
	default:
		return "", false
	}
}

// ErrorPayload is the wire shape surfaced at CLI/API boundaries.
type ErrorPayload struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
	Cause   string   `json:"cause,omitempty"`
}

func PayloadFrom(err error) ErrorPayload {
	if err == nil {
		return ErrorPayload{}
	}
	payload := ErrorPayload{Code: string(CodeInternal), Message: err.Error()}
	if code, ok := CodeFrom(err); ok {
		payload.Code = string(code)
	}
	var domainErr *Error
	if errors.As(err, &domainErr) {
		if domainErr.Message != "" {
			payload.Message = domainErr.Message
		}
		payload.Details = domainErr.Details
		if domainErr.Cause != nil {
			payload.Cause = domainErr.Cause.Error()
		}
	}
	return payload
}
