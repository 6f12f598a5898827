package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNoDraft           = errors.New("no consultation draft")
	ErrCaptureActive     = errors.New("a capture is in progress")
	ErrDraftNotFound     = errors.New("consultation not found")
	ErrPrescriptionIndex = errors.New("prescription index out of range")
	ErrEmptyTranscript   = errors.New("transcript is empty")
	ErrInvalidRole       = errors.New("invalid role")
)

// MicrophoneAccessError reports that the audio device could not be acquired.
type MicrophoneAccessError struct {
	Err error
}

func (e *MicrophoneAccessError) Error() string {
	return fmt.Sprintf("microphone unavailable: %v", e.Err)
}

func (e *MicrophoneAccessError) Unwrap() error { return e.Err }

// ChannelError is a non-fatal error event raised by a transcription channel.
type ChannelError struct {
	Err error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("transcription channel: %v", e.Err)
}

func (e *ChannelError) Unwrap() error { return e.Err }

// ServiceErrorKind separates retryable quota conditions from everything else.
type ServiceErrorKind string

const (
	ServiceErrorQuota   ServiceErrorKind = "quota"
	ServiceErrorFailure ServiceErrorKind = "failure"
)

// ServiceError is returned by every external service call.
type ServiceError struct {
	Op   string
	Kind ServiceErrorKind
	Err  error
}

func (e *ServiceError) Error() string {
	if e.Kind == ServiceErrorQuota {
		return fmt.Sprintf("%s: quota exceeded: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// NewQuotaError builds a retryable service error.
func NewQuotaError(op string, err error) *ServiceError {
	return &ServiceError{Op: op, Kind: ServiceErrorQuota, Err: err}
}

// NewServiceFailure builds a non-retryable service error.
func NewServiceFailure(op string, err error) *ServiceError {
	return &ServiceError{Op: op, Kind: ServiceErrorFailure, Err: err}
}

// IsQuota reports whether err carries a quota/rate-limit service error.
func IsQuota(err error) bool {
	var svcErr *ServiceError
	return errors.As(err, &svcErr) && svcErr.Kind == ServiceErrorQuota
}

// ExportError reports a document rendering or write failure.
type ExportError struct {
	Format string
	Err    error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export %s: %v", e.Format, e.Err)
}

func (e *ExportError) Unwrap() error { return e.Err }
