package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation       = errors.New("validation error")
	ErrNotFound         = errors.New("not found")
	ErrStillLocked      = errors.New("capsule still locked")
	ErrAlreadyUnlocking = errors.New("capsule already unlocking")
	ErrStorage          = errors.New("storage error")
	ErrEnrichment       = errors.New("enrichment error")
	ErrConflict         = errors.New("conflict")
	ErrTimeout          = errors.New("timeout")
	ErrConfiguration    = errors.New("configuration error")
)

// StageError tags a failure with the marker used for classification and the
// stage that produced it. errors.Is matches both the marker and the cause.
type StageError struct {
	Marker    error
	Stage     string
	Operation string
	Message   string
	Err       error
}

func (e *StageError) Error() string {
	detail := buildDetail(e.Stage, e.Operation, e.Message)
	if e.Err != nil {
		return fmt.Sprintf("%v: %s: %v", e.Marker, detail, e.Err)
	}
	return fmt.Sprintf("%v: %s", e.Marker, detail)
}

func (e *StageError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Marker}
	}
	return []error{e.Marker, e.Err}
}

// Wrap builds an error that includes stage context while tagging it with the
// provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	if marker == nil {
		marker = ErrStorage
	}
	return &StageError{
		Marker:    marker,
		Stage:     strings.TrimSpace(stage),
		Operation: strings.TrimSpace(operation),
		Message:   strings.TrimSpace(message),
		Err:       err,
	}
}

// StageOf returns the stage recorded on the outermost StageError in the chain.
func StageOf(err error) string {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Stage
	}
	return ""
}

// Kind maps an error onto a stable identifier used by the API and CLI.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrStillLocked):
		return "still_locked"
	case errors.Is(err, ErrAlreadyUnlocking):
		return "already_unlocking"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrEnrichment):
		return "enrichment"
	case errors.Is(err, ErrStorage):
		return "storage"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	default:
		return "internal"
	}
}

// Validation is shorthand for a validation failure without a cause.
func Validation(operation, format string, args ...any) error {
	return Wrap(ErrValidation, "", operation, fmt.Sprintf(format, args...), nil)
}

// NotFound is shorthand for a missing entity.
func NotFound(entity, id string) error {
	return Wrap(ErrNotFound, "", entity, id, nil)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
