package types

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrDataNotFound      = errors.New("data not found")
	ErrInvalidFormat     = errors.New("invalid format")
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrUnknownPlan       = errors.New("unknown plan")
	ErrMalformedEvent    = errors.New("malformed usage event")
	ErrNoActiveSession   = errors.New("no active session")
	ErrStateFileDisabled = errors.New("state file directory not configured")
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error in field %s: %s", e.Field, e.Message)
}

func (e ValidationError) Unwrap() error {
	return ErrInvalidConfig
}

// MalformedEventError describes why an event was excluded from aggregation.
type MalformedEventError struct {
	Timestamp time.Time
	Reason    string
}

func (e *MalformedEventError) Error() string {
	return fmt.Sprintf("malformed usage event at %s: %s", e.Timestamp.Format(time.RFC3339), e.Reason)
}

func (e *MalformedEventError) Unwrap() error {
	return ErrMalformedEvent
}

type LoaderError struct {
	Path string
	Err  error
}

func (e LoaderError) Error() string {
	return fmt.Sprintf("failed to load from %s: %v", e.Path, e.Err)
}

func (e LoaderError) Unwrap() error {
	return e.Err
}

type ParseError struct {
	Path string
	Line int
	Err  error
}

func (e ParseError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("parse error in %s at line %d: %v", e.Path, e.Line, e.Err)
	}
	return fmt.Sprintf("parse error at line %d: %v", e.Line, e.Err)
}

func (e ParseError) Unwrap() error {
	return e.Err
}
