package fault

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestKindOf_Tagged(t *testing.T) {
	t.Parallel()

	err := New(AudioEmpty, "buffer is %d bytes", 0)
	if got := KindOf(err); got != AudioEmpty {
		t.Errorf("KindOf = %q, want AudioEmpty", got)
	}
	if !Is(err, AudioEmpty) {
		t.Error("Is(err, AudioEmpty) = false")
	}
}

func TestKindOf_WrappedSurvivesFmt(t *testing.T) {
	t.Parallel()

	inner := New(ProviderRejected, "status 401")
	outer := fmt.Errorf("stt: transcribe: %w", inner)
	if got := KindOf(outer); got != ProviderRejected {
		t.Errorf("KindOf through fmt wrap = %q, want ProviderRejected", got)
	}
}

func TestWrap_PreservesExistingKind(t *testing.T) {
	t.Parallel()

	err := Wrap(ProviderUnavailable, New(ProviderTimeout, "deadline"))
	if got := KindOf(err); got != ProviderTimeout {
		t.Errorf("KindOf = %q, want the inner ProviderTimeout", got)
	}
}

func TestWrap_Nil(t *testing.T) {
	t.Parallel()

	if Wrap(ProviderRejected, nil) != nil {
		t.Error("Wrap(kind, nil) != nil")
	}
}

func TestKindOf_ContextDeadline(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("llm: complete: %w", context.DeadlineExceeded)
	if got := KindOf(err); got != ProviderTimeout {
		t.Errorf("KindOf = %q, want ProviderTimeout", got)
	}
}

func TestKindOf_Untagged(t *testing.T) {
	t.Parallel()

	if got := KindOf(errors.New("boom")); got != ProviderRejected {
		t.Errorf("KindOf(plain error) = %q, want ProviderRejected", got)
	}
}

func TestErrorString(t *testing.T) {
	t.Parallel()

	err := New(TransportStalled, "frame write blocked")
	if got := err.Error(); got != "TransportStalled: frame write blocked" {
		t.Errorf("Error() = %q", got)
	}
	bare := &Error{Kind: SessionUnknown}
	if got := bare.Error(); got != "SessionUnknown" {
		t.Errorf("Error() without cause = %q", got)
	}
}
