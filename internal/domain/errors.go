package domain

import (
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("job not found")

// FailureKind classifies why a job (or a submit attempt) failed.
type FailureKind string

const (
	FailureUnsupportedFormat     FailureKind = "unsupported_format"
	FailureCorruptInput          FailureKind = "corrupt_input"
	FailureDecoderProcessFailure FailureKind = "decoder_process_failure"
	FailureEncodingError         FailureKind = "encoding_error"
	FailureResourceExceeded      FailureKind = "resource_exceeded"
	FailurePayloadTooLarge       FailureKind = "payload_too_large"
	FailureQueueFull             FailureKind = "queue_full"
	FailureCancelled             FailureKind = "cancelled"
)

// Failure is a classified processing error. It is stored on the job verbatim
// and reported back through the HTTP layer, never surfaced as a crash.
type Failure struct {
	Kind   FailureKind
	Detail string
}

func (f *Failure) Error() string {
	if f.Detail == "" {
		return string(f.Kind)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Detail)
}

func NewFailure(kind FailureKind, format string, args ...any) *Failure {
	return &Failure{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// AsFailure extracts a Failure from an error chain. Unclassified errors are
// reported as EncodingError so every terminal job carries a kind.
func AsFailure(err error) *Failure {
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	return &Failure{Kind: FailureEncodingError, Detail: err.Error()}
}
