package agenda

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrVersionConflict    = errors.New("agenda was modified by another user; reload and retry")
	ErrDuplicateException = errors.New("an exception already exists for this professional and date")
)

// FieldError is one rejected input field.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError reports malformed input. Nothing is persisted.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Field + ": " + f.Reason
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

func (e *ValidationError) add(field, reason string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Reason: reason})
}

func (e *ValidationError) orNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

func invalid(field, reason string) error {
	return &ValidationError{Fields: []FieldError{{Field: field, Reason: reason}}}
}

// Conflict is one weekday whose submitted window collides with an existing entry.
type Conflict struct {
	Weekday   Weekday `json:"weekday"`
	Label     string  `json:"label"`
	Requested Window  `json:"requested"`
	Existing  Window  `json:"existing"`
	EntryID   string  `json:"entry_id"`
}

// OverlapError lists every conflicting weekday of a submission at once.
type OverlapError struct {
	Conflicts []Conflict `json:"conflicts"`
}

func (e *OverlapError) Error() string {
	labels := make([]string, len(e.Conflicts))
	for i, c := range e.Conflicts {
		labels[i] = fmt.Sprintf("%s (%s overlaps %s)", c.Label, c.Requested, c.Existing)
	}
	return "overlapping schedule on " + strings.Join(labels, ", ")
}

// Weekdays returns the conflicting weekdays in submission order.
func (e *OverlapError) Weekdays() []Weekday {
	out := make([]Weekday, len(e.Conflicts))
	for i, c := range e.Conflicts {
		out[i] = c.Weekday
	}
	return out
}

// InvalidPeriodStartError is returned when a period would start before the
// computed minimum. Minimum is the earliest acceptable start.
type InvalidPeriodStartError struct {
	Requested Date `json:"requested"`
	Minimum   Date `json:"minimum_start"`
}

func (e *InvalidPeriodStartError) Error() string {
	return fmt.Sprintf("period cannot start on %s: earliest allowed start is %s", e.Requested, e.Minimum)
}

// IllegalDeletionError rejects deleting any period but the latest future one.
type IllegalDeletionError struct {
	ValidFrom Date   `json:"valid_from"`
	Reason    string `json:"reason"`
}

func (e *IllegalDeletionError) Error() string {
	return fmt.Sprintf("period starting %s cannot be deleted: %s", e.ValidFrom, e.Reason)
}

// TransactionFailure wraps a persistence failure during a multi-step mutation.
// The transaction was rolled back; prior state is unchanged.
type TransactionFailure struct {
	Op  string
	Err error
}

func (e *TransactionFailure) Error() string {
	return fmt.Sprintf("%s failed and was rolled back: %v", e.Op, e.Err)
}

func (e *TransactionFailure) Unwrap() error { return e.Err }
