package agenda

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// MaxResolveDays bounds ResolveRange.
const MaxResolveDays = 62

type ResolutionStatus string

const (
	Available     ResolutionStatus = "available"
	Blocked       ResolutionStatus = "blocked"
	NoPeriod      ResolutionStatus = "no_period"
	NoFixedDay    ResolutionStatus = "no_fixed_days"
	NotWorkingDay ResolutionStatus = "not_working_day"
)

type Source string

const (
	SourceWeekly    Source = "weekly"
	SourceException Source = "exception"
)

// SlotWindow is one bookable window of a resolved day.
type SlotWindow struct {
	Start               Clock `json:"start_time"`
	End                 Clock `json:"end_time"`
	SlotDurationMinutes int   `json:"slot_duration_minutes"`
}

// Availability is the effective template of one professional on one date.
// Blocks lists the blocks touching the day; when they cover every window the
// status is Blocked, otherwise they are partial and left to the booking layer.
type Availability struct {
	ProfessionalID  uuid.UUID        `json:"professional_id"`
	Date            Date             `json:"date"`
	Weekday         Weekday          `json:"weekday"`
	Status          ResolutionStatus `json:"status"`
	Source          Source           `json:"source,omitempty"`
	ExceptionID     *uuid.UUID       `json:"exception_id,omitempty"`
	PeriodValidFrom *Date            `json:"period_valid_from,omitempty"`
	Windows         []SlotWindow     `json:"windows"`
	Blocks          []*BlockPeriod   `json:"blocks,omitempty"`
}

// Resolve returns the availability of a professional on d.
func (s *Service) Resolve(ctx context.Context, professionalID uuid.UUID, d Date) (*Availability, error) {
	out, err := s.ResolveRange(ctx, professionalID, DateRange{From: d, To: d})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// ResolveRange resolves every day of r, at most MaxResolveDays.
func (s *Service) ResolveRange(ctx context.Context, professionalID uuid.UUID, r DateRange) ([]*Availability, error) {
	ctx, span := tracer.Start(ctx, "agenda.ResolveRange", trace.WithAttributes(
		attribute.String("professional.id", professionalID.String()),
		attribute.String("range.from", r.From.String()),
		attribute.String("range.to", r.To.String())))
	defer span.End()

	if professionalID == uuid.Nil {
		return nil, invalid("professional_id", "is required")
	}
	if err := validateRange(r, MaxResolveDays); err != nil {
		return nil, err
	}
	key := "resolve:" + r.From.String() + ":" + r.To.String()
	cached, gen, storable := s.cached(ctx, professionalID, key)
	if cached != nil {
		return cached, nil
	}

	// Every period is needed: a past date resolves against historical rows.
	entries, err := s.entries.ListEntries(ctx, professionalID, ListOptions{IncludeHistorical: true, Today: r.From})
	if err != nil {
		return nil, err
	}
	exceptions, err := s.overlays.ListExceptions(ctx, professionalID, r)
	if err != nil {
		return nil, err
	}
	blocks, err := s.overlays.ListBlocks(ctx, professionalID, r.From.At(0, s.loc), r.To.AddDays(1).At(0, s.loc))
	if err != nil {
		return nil, err
	}

	groups := GroupPeriods(entries, r.From)
	byDate := make(map[string]*ExceptionDate, len(exceptions))
	for _, x := range exceptions {
		byDate[x.Date.String()] = x
	}
	var out []*Availability
	for d := r.From; !d.After(r.To); d = d.AddDays(1) {
		a := resolveDay(professionalID, d, groups, byDate[d.String()], blocks, s.loc)
		if s.metrics != nil {
			s.metrics.ObserveResolution(string(a.Status))
		}
		out = append(out, a)
	}
	if storable {
		s.store(ctx, professionalID, gen, key, out)
	}
	return out, nil
}

// resolveDay applies the precedence: exception over weekly template, and blocks
// over both.
func resolveDay(professionalID uuid.UUID, d Date, groups []*PeriodGroup, x *ExceptionDate, blocks []*BlockPeriod, loc *time.Location) *Availability {
	a := &Availability{ProfessionalID: professionalID, Date: d, Weekday: d.Weekday(), Windows: []SlotWindow{}}

	dayStart, dayEnd := d.At(0, loc), d.AddDays(1).At(0, loc)
	for _, b := range blocks {
		if b.Overlaps(dayStart, dayEnd) {
			a.Blocks = append(a.Blocks, b)
		}
	}

	switch g := PeriodContaining(groups, d); {
	case x != nil:
		a.Source = SourceException
		id := x.ID
		a.ExceptionID = &id
		a.Windows = append(a.Windows, SlotWindow{Start: x.StartTime, End: x.EndTime, SlotDurationMinutes: x.SlotDurationMinutes})
	case g == nil:
		a.Status = NoPeriod
		return a
	case g.IsPlaceholder():
		a.Status = NoFixedDay
		a.PeriodValidFrom = datePtr(g.ValidFrom)
		return a
	default:
		a.Source = SourceWeekly
		a.PeriodValidFrom = datePtr(g.ValidFrom)
		for _, e := range g.ActiveEntries(d.Weekday()) {
			a.Windows = append(a.Windows, SlotWindow{Start: e.StartTime, End: e.EndTime, SlotDurationMinutes: e.SlotDurationMinutes})
		}
		if len(a.Windows) == 0 {
			a.Status = NotWorkingDay
			return a
		}
	}

	a.Status = Available
	if len(a.Blocks) > 0 && windowsCovered(d, a.Windows, a.Blocks, loc) {
		a.Status = Blocked
	}
	return a
}

// windowsCovered reports whether the union of blocks spans every window.
func windowsCovered(d Date, windows []SlotWindow, blocks []*BlockPeriod, loc *time.Location) bool {
	sorted := append([]*BlockPeriod(nil), blocks...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StartAt.Before(sorted[j].StartAt) })
	for _, w := range windows {
		cursor, end := d.At(w.Start, loc), d.At(w.End, loc)
		for _, b := range sorted {
			if !cursor.Before(end) {
				break
			}
			if b.StartAt.After(cursor) {
				break
			}
			if b.EndAt.After(cursor) {
				cursor = b.EndAt
			}
		}
		if cursor.Before(end) {
			return false
		}
	}
	return true
}

// cached returns the cached resolution on a hit. On a miss it returns the
// generation the lookup saw, which the freshly resolved value must be stored
// under; storable is false when the cache could not be read.
func (s *Service) cached(ctx context.Context, professionalID uuid.UUID, key string) (hit []*Availability, gen int64, storable bool) {
	if s.cache == nil {
		return nil, 0, false
	}
	raw, gen, ok, err := s.cache.Get(ctx, professionalID, key)
	if err != nil {
		s.logger.Warn().Err(err).Str("professional_id", professionalID.String()).Msg("availability cache read failed")
		return nil, 0, false
	}
	if !ok {
		return nil, gen, true
	}
	var out []*Availability
	if err := json.Unmarshal(raw, &out); err != nil || len(out) == 0 {
		return nil, gen, true
	}
	return out, gen, true
}

func (s *Service) store(ctx context.Context, professionalID uuid.UUID, gen int64, key string, v []*Availability) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, professionalID, gen, key, raw); err != nil {
		s.logger.Warn().Err(err).Str("professional_id", professionalID.String()).Msg("availability cache write failed")
	}
}
