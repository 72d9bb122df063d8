package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Tier tells callers whether a backend costs money per call.
type Tier string

const (
	TierFree  Tier = "free"
	TierPaid  Tier = "paid"
	TierLocal Tier = "local"
)

// Generator produces free text for a prompt. Implementations must honour
// ctx cancellation and deadlines.
type Generator interface {
	Name() string
	Tier() Tier
	Generate(ctx context.Context, prompt string) (string, error)
}

// Error codes carried by *Error.
const (
	CodeTimeout        = "timeout"
	CodeCanceled       = "canceled"
	CodeRateLimited    = "rate_limited"
	CodeUpstream       = "upstream_error"
	CodeNotConfigured  = "not_configured"
	CodeEmptyResponse  = "empty_response"
	CodeRequestFailed  = "request_failed"
	CodeUnknownBackend = "unknown_backend"
)

// Error is a structured generation failure.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Timeout reports whether the failure was a deadline expiry.
func (e *Error) Timeout() bool {
	return e.Code == CodeTimeout
}

func newError(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// AsError normalises any backend error into an *Error. It returns nil for a nil error.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return newError(CodeTimeout, "generation timed out")
	}
	if errors.Is(err, context.Canceled) {
		return newError(CodeCanceled, "generation canceled")
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return newError(CodeTimeout, "generation timed out: %v", err)
	}
	return newError(CodeRequestFailed, "%v", err)
}

// unconfigured is registered in place of a backend whose API key is missing,
// so selecting it reports a structured failure instead of a nil lookup.
type unconfigured struct {
	name string
	tier Tier
}

// Unconfigured returns a Generator that always fails with CodeNotConfigured.
func Unconfigured(name string, tier Tier) Generator {
	return unconfigured{name: name, tier: tier}
}

func (u unconfigured) Name() string { return u.name }
func (u unconfigured) Tier() Tier   { return u.tier }

func (u unconfigured) Generate(context.Context, string) (string, error) {
	return "", newError(CodeNotConfigured, "%s API key not set", u.name)
}
