package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a domain error that knows its wire representation: a stable code
// for clients, a human message, and the HTTP status it maps to. The wrapped
// cause never leaves the process.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New constructs a sentinel error.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap builds an Error that carries err as its cause.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Clone copies a sentinel so call sites can override the message without
// mutating the shared value.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	out := *err
	if message != "" {
		out.Message = message
	}
	return &out
}

// FromError maps any error onto an *Error, defaulting to ErrInternal for
// errors that carry no domain typing.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

var (
	ErrInvalidCredentials = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid email or password")
	ErrInactiveAccount    = New("ACCOUNT_INACTIVE", http.StatusForbidden, "account is inactive")
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrStorage            = New("STORAGE_FAILURE", http.StatusInternalServerError, "storage commit failed")
	ErrAppendConflict     = New("APPEND_CONFLICT", http.StatusConflict, "ledger append contention, retry")
	ErrBatchAlreadyLinked = New("BATCH_ALREADY_LINKED", http.StatusConflict, "batch is already allocated to a project")
	ErrChainCorrupted     = New("CHAIN_CORRUPTED", http.StatusConflict, "ledger chain failed verification")
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)
