package agenda

import (
	"time"

	"github.com/google/uuid"
)

const (
	MinSlotDuration = 5
	MaxSlotDuration = 480
)

// WeeklyEntry maps to the weekly_schedule_entry table: one recurring weekday
// rule stamped with its validity period. ValidTo is the last day of the period
// (inclusive); nil means the period is open.
type WeeklyEntry struct {
	ID                  uuid.UUID `json:"id"`
	ProfessionalID      uuid.UUID `json:"professional_id"`
	Weekday             Weekday   `json:"weekday"`
	StartTime           Clock     `json:"start_time"`
	EndTime             Clock     `json:"end_time"`
	SlotDurationMinutes int       `json:"slot_duration_minutes"`
	Active              bool      `json:"active"`
	ValidFrom           Date      `json:"valid_from"`
	ValidTo             *Date     `json:"valid_to"`
	VersionID           int       `json:"version_id"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// GetVersionID returns the current version.
func (e *WeeklyEntry) GetVersionID() int { return e.VersionID }

// SetVersionID sets the current version.
func (e *WeeklyEntry) SetVersionID(v int) { e.VersionID = v }

// IsPlaceholder reports whether the row only reserves a period without weekdays.
func (e *WeeklyEntry) IsPlaceholder() bool { return e.Weekday == NoFixedDays }

func (e *WeeklyEntry) Window() Window { return Window{Start: e.StartTime, End: e.EndTime} }

// Covers reports whether the entry's validity period contains d.
func (e *WeeklyEntry) Covers(d Date) bool {
	if d.Before(e.ValidFrom) {
		return false
	}
	return e.ValidTo == nil || !d.After(*e.ValidTo)
}

func (e *WeeklyEntry) clone() *WeeklyEntry {
	c := *e
	if e.ValidTo != nil {
		to := *e.ValidTo
		c.ValidTo = &to
	}
	return &c
}

// DayWindow is one weekday of a submitted weekly pattern. EntryID names the
// existing entry the window replaces when editing a single row.
type DayWindow struct {
	EntryID             *uuid.UUID `json:"entry_id,omitempty"`
	Weekday             Weekday    `json:"weekday"`
	StartTime           Clock      `json:"start_time"`
	EndTime             Clock      `json:"end_time"`
	SlotDurationMinutes int        `json:"slot_duration_minutes,omitempty"`
	Active              bool       `json:"active"`
}

func (d DayWindow) Window() Window { return Window{Start: d.StartTime, End: d.EndTime} }

// ExceptionDate maps to the exception_date table: a one-off date whose window
// overrides the weekly template.
type ExceptionDate struct {
	ID                  uuid.UUID `json:"id"`
	ProfessionalID      uuid.UUID `json:"professional_id"`
	Date                Date      `json:"date"`
	StartTime           Clock     `json:"start_time"`
	EndTime             Clock     `json:"end_time"`
	SlotDurationMinutes int       `json:"slot_duration_minutes"`
	Observations        *string   `json:"observations,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func (x *ExceptionDate) Window() Window { return Window{Start: x.StartTime, End: x.EndTime} }

// BlockPeriod maps to the block_period table: an explicit unavailability span.
type BlockPeriod struct {
	ID             uuid.UUID `json:"id"`
	ProfessionalID uuid.UUID `json:"professional_id"`
	StartAt        time.Time `json:"start_at"`
	EndAt          time.Time `json:"end_at"`
	Reason         *string   `json:"reason,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Overlaps reports whether the block intersects [start, end).
func (b *BlockPeriod) Overlaps(start, end time.Time) bool {
	return b.StartAt.Before(end) && start.Before(b.EndAt)
}

// DateRange is an inclusive range of days.
type DateRange struct {
	From Date
	To   Date
}

func (r DateRange) Contains(d Date) bool { return !d.Before(r.From) && !d.After(r.To) }
