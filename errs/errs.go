package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrVideoUnavailable indicates that the requested video cannot be accessed.
	ErrVideoUnavailable = errors.New("video unavailable")
	// ErrPrivate indicates that the video is private and cannot be played.
	ErrPrivate = errors.New("video is private")
	// ErrAgeRestricted indicates an age gate that could not be resolved.
	ErrAgeRestricted = errors.New("age restricted")
	// ErrNotEmbeddable indicates that the owner disabled embedded playback.
	ErrNotEmbeddable = errors.New("embedding disabled by owner")
	// ErrNoPlayableFormats indicates no usable audio formats were found.
	ErrNoPlayableFormats = errors.New("no playable formats")
	// ErrUnsupportedStream indicates a container that cannot be consumed as
	// an open-ended stream.
	ErrUnsupportedStream = errors.New("unsupported stream format")
)

// Severity classifies how unexpected a user-facing rejection is.
type Severity int

const (
	// Common rejections are routine provider policy outcomes.
	Common Severity = iota
	// Suspicious rejections hint that the provider protocol changed.
	Suspicious
)

func (s Severity) String() string {
	if s == Suspicious {
		return "suspicious"
	}
	return "common"
}

// UserError is a rejection with a human-readable reason. It distinguishes
// "this video cannot be played for a known policy reason" from protocol
// breakage via its severity.
type UserError struct {
	Reason   string
	Severity Severity
	Err      error
}

func (e *UserError) Error() string {
	return e.Reason
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError builds a UserError with an optional cause.
func NewUserError(reason string, severity Severity, cause error) *UserError {
	return &UserError{Reason: reason, Severity: severity, Err: cause}
}

// IsUserError reports whether err carries a user-facing rejection.
func IsUserError(err error) (*UserError, bool) {
	var ue *UserError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}

// ProtocolError is raised when a provider response is structurally broken:
// missing status blocks, unparseable bodies, unexpected shapes. RawContext
// carries enough of the offending payload to diagnose a protocol change.
type ProtocolError struct {
	Message    string
	RawContext string
	Err        error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// NewProtocolError builds a ProtocolError carrying raw response context.
func NewProtocolError(message, rawContext string, cause error) *ProtocolError {
	return &ProtocolError{Message: message, RawContext: rawContext, Err: cause}
}

// IsProtocolError reports whether err carries a protocol anomaly.
func IsProtocolError(err error) (*ProtocolError, bool) {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// StatusError is returned when the provider answers with an unexpected HTTP
// status code. Retry sites match on the code to recognize the transient
// rejection classes (400, 403).
type StatusError struct {
	Code    int
	Context string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d for %s", e.Code, e.Context)
}

// IsStatusCode reports whether err is a StatusError with the given code.
func IsStatusCode(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}
