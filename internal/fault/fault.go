// Package fault defines the gateway's error taxonomy. Every failure that is
// surfaced to a client carries a Kind, which becomes the `kind` field of the
// corresponding wire event.
package fault

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind identifies a failure class. The string form goes on the wire verbatim.
type Kind string

const (
	// AudioUnsupported means the submitted audio format is not accepted.
	AudioUnsupported Kind = "AudioUnsupported"

	// AudioEmpty means the audio buffer is too short or carries no energy.
	AudioEmpty Kind = "AudioEmpty"

	// ProviderUnavailable means an external AI service could not be reached.
	ProviderUnavailable Kind = "ProviderUnavailable"

	// ProviderTimeout means a provider call exceeded its time budget.
	ProviderTimeout Kind = "ProviderTimeout"

	// ProviderRejected means a provider returned an error response.
	ProviderRejected Kind = "ProviderRejected"

	// TransportStalled means the outbound transport stopped accepting frames.
	TransportStalled Kind = "TransportStalled"

	// InvalidState means an inbound event is not valid in the current phase.
	InvalidState Kind = "InvalidState"

	// SessionUnknown means an event referenced a session that does not exist.
	SessionUnknown Kind = "SessionUnknown"
)

// Error pairs a Kind with an underlying cause.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New returns an Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Wrap attaches a kind to err. Returns nil if err is nil. If err already
// carries a kind, it is preserved.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return err
	}
	return &Error{Kind: kind, Err: err}
}

// KindOf extracts the Kind from err, classifying untagged errors by their
// concrete type: deadline and cancellation errors become ProviderTimeout, net
// errors become ProviderUnavailable, anything else ProviderRejected.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ProviderTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) {
		if ne.Timeout() {
			return ProviderTimeout
		}
		return ProviderUnavailable
	}
	var oe *net.OpError
	if errors.As(err, &oe) {
		return ProviderUnavailable
	}
	return ProviderRejected
}

// Is reports whether err carries the given kind, after classification.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
