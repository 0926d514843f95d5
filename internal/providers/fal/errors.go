package fal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Code is the machine-readable classification of a provider failure. The
// orchestrator uses it to decide between retry and terminal failure.
type Code string

const (
	CodeAuthentication Code = "authentication_error"
	CodeQuotaExhausted Code = "quota_exhausted"
	CodeRateLimited    Code = "rate_limited"
	CodeInvalidInput   Code = "invalid_input"
	CodeNotFound       Code = "not_found"
	CodeTimeout        Code = "timeout"
	CodeUnknown        Code = "unknown_provider_error"
)

// Error is a classified provider failure.
type Error struct {
	Code       Code
	Message    string
	HTTPStatus int
}

func (e *Error) Error() string {
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("fal: %s (status %d): %s", e.Code, e.HTTPStatus, e.Message)
	}
	return fmt.Sprintf("fal: %s: %s", e.Code, e.Message)
}

func newError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the provider error code, or CodeUnknown for errors that did
// not originate from the client.
func CodeOf(err error) Code {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return CodeTimeout
	}
	return CodeUnknown
}

func classifyStatus(status int, message string) *Error {
	code := CodeUnknown
	switch {
	case status == 401:
		code = CodeAuthentication
	case status == 402:
		code = CodeQuotaExhausted
	case status == 403:
		// fal reports an exhausted balance with 403; a bad key also lands
		// here, so keep them apart by message.
		if containsAny(message, "balance", "exhausted", "credit") {
			code = CodeQuotaExhausted
		} else {
			code = CodeAuthentication
		}
	case status == 404:
		code = CodeNotFound
	case status == 429:
		code = CodeRateLimited
	case status == 400 || status == 422:
		code = CodeInvalidInput
	case status == 408 || status == 504:
		code = CodeTimeout
	}
	return &Error{Code: code, Message: message, HTTPStatus: status}
}

func containsAny(message string, needles ...string) bool {
	lower := strings.ToLower(message)
	for _, needle := range needles {
		if strings.Contains(lower, needle) {
			return true
		}
	}
	return false
}
