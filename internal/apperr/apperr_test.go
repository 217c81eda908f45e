package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_Message(t *testing.T) {
	base := errors.New("connection refused")

	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{"message only", New(KindNotFound, "agent not found: %s", "a-1"), "agent not found: a-1"},
		{"wrapped", &Error{Kind: KindNetworkUnreachable, Message: "unable to reach provider", Err: base}, "unable to reach provider: connection refused"},
		{"wrapped without message", &Error{Kind: KindProviderError, Err: base}, "connection refused"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}

	var nilErr *Error
	if nilErr.Error() != "" {
		t.Error("nil *Error should render empty")
	}
}

func TestKindOf(t *testing.T) {
	rate := New(KindRateLimited, "rate limit exceeded")

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"direct", rate, KindRateLimited},
		{"fmt wrapped", fmt.Errorf("conversation: %w", rate), KindRateLimited},
		{"unclassified", errors.New("disk full"), KindProcessingFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWrap_PreservesKind(t *testing.T) {
	inner := New(KindInvalidCredential, "invalid API key")
	wrapped := Wrap(inner, "failed to process message")

	if wrapped.Kind != KindInvalidCredential {
		t.Errorf("Kind = %q, want %q", wrapped.Kind, KindInvalidCredential)
	}
	if !errors.Is(wrapped, inner) {
		t.Error("wrapped error should unwrap to inner")
	}
	if got := wrapped.Error(); got != "failed to process message: invalid API key" {
		t.Errorf("Error() = %q", got)
	}
}

func TestWrap_UnclassifiedBecomesProcessingFailed(t *testing.T) {
	wrapped := Wrap(errors.New("boom"), "persist reply")
	if wrapped.Kind != KindProcessingFailed {
		t.Errorf("Kind = %q, want %q", wrapped.Kind, KindProcessingFailed)
	}
	if Wrap(nil, "x") != nil {
		t.Error("Wrap(nil) should be nil")
	}
}

func TestClassify(t *testing.T) {
	got := Classify(KindConfiguration, errors.New("no row"), "credential missing")
	if got.Kind != KindConfiguration {
		t.Errorf("Kind = %q, want %q", got.Kind, KindConfiguration)
	}

	already := New(KindCorruptCredential, "bad ciphertext")
	got = Classify(KindConfiguration, already, "resolve credential")
	if got.Kind != KindCorruptCredential {
		t.Errorf("existing kind should win, got %q", got.Kind)
	}
}

func TestPredicates(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(KindAccessDenied, "denied"))
	if !IsAccessDenied(err) {
		t.Error("IsAccessDenied = false, want true")
	}
	if IsNotFound(err) {
		t.Error("IsNotFound = true, want false")
	}
	if IsRateLimited(errors.New("plain")) {
		t.Error("plain errors match no predicate")
	}
	if IsProviderUnavailable(nil) {
		t.Error("nil matches no predicate")
	}
}

func TestMessage(t *testing.T) {
	inner := Classify(KindInvalidCredential, errors.New("POST https://x/chat/completions: 401"), "invalid or expired API key")
	err := fmt.Errorf("send: %w", Wrap(inner, "failed to process message"))

	if got := Message(err); got != "failed to process message: invalid or expired API key" {
		t.Errorf("Message = %q", got)
	}
	if got := Message(errors.New("db locked")); got != "" {
		t.Errorf("Message(unclassified) = %q, want empty", got)
	}
	if got := Message(nil); got != "" {
		t.Errorf("Message(nil) = %q", got)
	}
}

func TestReason(t *testing.T) {
	inner := Classify(KindRateLimited, errors.New("429 Too Many Requests"), "rate limit exceeded")
	err := Wrap(inner, "failed to process message")

	if got := Reason(err); got != "rate limit exceeded" {
		t.Errorf("Reason = %q, want innermost message", got)
	}
	if got := Reason(errors.New("disk full")); got != "disk full" {
		t.Errorf("Reason(unclassified) = %q", got)
	}
	if got := Reason(nil); got != "" {
		t.Errorf("Reason(nil) = %q", got)
	}
}
