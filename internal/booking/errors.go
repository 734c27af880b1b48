package booking

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNotFound     = errors.New("booking not found")
	ErrRoomNotFound = errors.New("room not found")
	ErrRoomInactive = errors.New("room is not active")
	ErrForbidden    = errors.New("not allowed to modify this booking")
	ErrCancelled    = errors.New("booking is cancelled")
	ErrNotPending   = errors.New("booking is not pending")
	ErrModified     = errors.New("booking changed status during the edit; reload and retry")
	// ErrStorage marks database failures. Callers may retry; the service does not.
	ErrStorage = errors.New("storage unavailable")
)

// ValidationError collects per-field problems found before any write.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = msg
	}
}

func (e *ValidationError) hasErrors() bool {
	return len(e.Fields) > 0
}

func (e *ValidationError) orNil() error {
	if e.hasErrors() {
		return e
	}
	return nil
}

// ConflictError carries every clash so the caller can report them together.
type ConflictError struct {
	Conflicts []Conflict
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("booking conflicts with %d existing occurrence(s)", len(e.Conflicts))
}

func storageError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}

// ruleField maps a recurrence error onto the request field it came from.
func ruleField(err error) string {
	switch {
	case errors.Is(err, ErrInvalidInterval), errors.Is(err, ErrSelfOverlap):
		return "end_time"
	case errors.Is(err, ErrEmptyWeekdays), errors.Is(err, ErrInvalidWeekday):
		return "custom_days"
	case errors.Is(err, ErrInvalidRepeatInterval), errors.Is(err, ErrIntervalTooLarge):
		return "repeat_interval"
	case errors.Is(err, ErrStartOutOfRange):
		return "start_time"
	case errors.Is(err, ErrInvalidCount):
		return "repeat_count"
	case errors.Is(err, ErrUntilBeforeStart), errors.Is(err, ErrBeyondHorizon):
		return "repeat_until"
	default:
		return "repeat_type"
	}
}
