// Package errors defines the pipeline's error taxonomy. Every failure a
// stage or component raises is converted to one of the Kinds below before
// it crosses a package boundary, so the orchestrator can decide how to
// react (fail the run, retry, or just observe a cancellation) without
// string-matching error messages.
package errors

import (
	"errors"
	"fmt"
)

type Kind string

const (
	ValidationFailed    Kind = "validation_failed"
	ResourceNotFound    Kind = "resource_not_found"
	ConcurrencyConflict Kind = "concurrency_conflict"
	StoreUnavailable    Kind = "store_unavailable"
	TunnelUnavailable   Kind = "tunnel_unavailable"
	RemoteServiceError  Kind = "remote_service_error"
	RemoteTimeout       Kind = "remote_timeout"
	ParseError          Kind = "parse_error"
	MediaToolError      Kind = "media_tool_error"
	StageTimeout        Kind = "stage_timeout"
	Cancelled           Kind = "cancelled"
)

// PipelineError is the concrete error type every component returns once a
// failure has been classified. Stage is empty for errors raised outside
// stage execution (e.g. inside the worker loop).
type PipelineError struct {
	Kind  Kind
	Stage string
	Msg   string
	Err   error
}

func (e *PipelineError) Error() string {
	if e.Stage != "" {
		if e.Err != nil {
			return fmt.Sprintf("%s: %s: %s: %s", e.Stage, e.Kind, e.Msg, e.Err)
		}
		return fmt.Sprintf("%s: %s: %s", e.Stage, e.Kind, e.Msg)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// New builds a PipelineError with no stage context; call WithStage once
// inside orchestration to attach it.
func New(kind Kind, msg string, cause error) *PipelineError {
	return &PipelineError{Kind: kind, Msg: msg, Err: cause}
}

func (e *PipelineError) WithStage(stage string) *PipelineError {
	cp := *e
	cp.Stage = stage
	return &cp
}

// KindOf extracts the Kind from err, defaulting to an empty Kind if err
// was never classified.
func KindOf(err error) Kind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// UnretriableError marks an ad-hoc error (outside the Kind taxonomy) as one
// the worker loop's StoreUnavailable backoff must not apply to.
type UnretriableError struct{ error }

func Unretriable(err error) error {
	return UnretriableError{err}
}

func (e UnretriableError) Unwrap() error {
	return e.error
}

// IsUnretriable reports whether err should skip the worker loop's retry
// backoff: every classified kind except StoreUnavailable is unretriable by
// definition, and an explicitly wrapped UnretriableError always is.
func IsUnretriable(err error) bool {
	if errors.As(err, &UnretriableError{}) {
		return true
	}
	k := KindOf(err)
	return k != "" && k != StoreUnavailable
}
