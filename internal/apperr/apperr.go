// Package apperr defines the error kinds surfaced by the conversation core.
// Every failure a caller can act on carries exactly one Kind; anything
// unclassified reports KindProcessingFailed.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind categorizes an error for callers.
type Kind string

const (
	KindRecursionLimit      Kind = "recursion_limit_exceeded"
	KindNotFound            Kind = "not_found"
	KindAccessDenied        Kind = "access_denied"
	KindConfiguration       Kind = "configuration_error"
	KindCorruptCredential   Kind = "corrupt_credential"
	KindInvalidCredential   Kind = "invalid_credential"
	KindRateLimited         Kind = "rate_limited"
	KindMalformedRequest    Kind = "malformed_request"
	KindProviderUnavailable Kind = "provider_unavailable"
	KindNetworkUnreachable  Kind = "network_unreachable"
	KindProviderError       Kind = "provider_error"
	KindProcessingFailed    Kind = "processing_failed"
)

// Error is a classified error.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		if e.Message == "" {
			return e.Err.Error()
		}
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a classified error.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Classify attaches kind to err. If err is already classified its kind wins.
func Classify(kind Kind, err error, message string) *Error {
	if err == nil {
		return nil
	}
	if k, ok := kindOf(err); ok {
		kind = k
	}
	return &Error{Kind: kind, Message: message, Err: err}
}

// Wrap adds context to err while preserving its kind. Unclassified errors
// become KindProcessingFailed.
func Wrap(err error, message string) *Error {
	return Classify(KindProcessingFailed, err, message)
}

// KindOf reports the kind of the first classified error in err's chain, or
// KindProcessingFailed if none is classified. A nil error has no kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if k, ok := kindOf(err); ok {
		return k
	}
	return KindProcessingFailed
}

// Message joins the messages of the classified errors in err's chain,
// outermost first, skipping unclassified causes. It returns "" when nothing
// in the chain is classified.
func Message(err error) string {
	var parts []string
	for e := err; e != nil; e = errors.Unwrap(e) {
		if ae, ok := e.(*Error); ok && ae != nil && ae.Message != "" {
			parts = append(parts, ae.Message)
		}
	}
	return strings.Join(parts, ": ")
}

// Reason returns the innermost classified message in err's chain, the text
// closest to the actual failure, or err.Error() when nothing is classified.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	reason := ""
	for e := err; e != nil; e = errors.Unwrap(e) {
		if ae, ok := e.(*Error); ok && ae != nil && ae.Message != "" {
			reason = ae.Message
		}
	}
	if reason == "" {
		return err.Error()
	}
	return reason
}

func kindOf(err error) (Kind, bool) {
	var ae *Error
	if errors.As(err, &ae) && ae != nil {
		return ae.Kind, true
	}
	return "", false
}

func is(kind Kind) func(error) bool {
	return func(err error) bool {
		k, ok := kindOf(err)
		return ok && k == kind
	}
}

// Predicates for common checks.
var (
	IsRecursionLimit      = is(KindRecursionLimit)
	IsNotFound            = is(KindNotFound)
	IsAccessDenied        = is(KindAccessDenied)
	IsConfiguration       = is(KindConfiguration)
	IsCorruptCredential   = is(KindCorruptCredential)
	IsInvalidCredential   = is(KindInvalidCredential)
	IsRateLimited         = is(KindRateLimited)
	IsMalformedRequest    = is(KindMalformedRequest)
	IsProviderUnavailable = is(KindProviderUnavailable)
	IsNetworkUnreachable  = is(KindNetworkUnreachable)
	IsProviderError       = is(KindProviderError)
)
