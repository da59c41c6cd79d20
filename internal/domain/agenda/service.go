package agenda

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/diegoabad/front-consul-sub001/internal/domain/agenda")

type Service struct {
	entries  Repository
	overlays OverlayRepository
	cache    AvailabilityCache
	metrics  Metrics
	dir      Directory
	logger   zerolog.Logger
	loc      *time.Location

	enforceBlockWeekdays bool
}

type Option func(*Service)

func WithLogger(l zerolog.Logger) Option { return func(s *Service) { s.logger = l } }

// WithCache enables caching of resolved availability.
func WithCache(c AvailabilityCache) Option { return func(s *Service) { s.cache = c } }

func WithMetrics(m Metrics) Option { return func(s *Service) { s.metrics = m } }

// WithDirectory attaches professional display data to period listings.
func WithDirectory(d Directory) Option { return func(s *Service) { s.dir = d } }

// WithLocation sets the facility time zone used for "today" and for whole-day blocks.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithBlockWeekdayEnforcement rejects blocks that start or end on a weekday the
// professional does not currently work.
func WithBlockWeekdayEnforcement(on bool) Option {
	return func(s *Service) { s.enforceBlockWeekdays = on }
}

func NewService(entries Repository, overlays OverlayRepository, opts ...Option) *Service {
	s := &Service{
		entries:  entries,
		overlays: overlays,
		logger:   zerolog.Nop(),
		loc:      time.UTC,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Location returns the facility time zone.
func (s *Service) Location() *time.Location { return s.loc }

// Today returns the current facility-local date.
func (s *Service) Today() Date { return Today(s.loc) }

// -- Reads --

func (s *Service) ListEntries(ctx context.Context, professionalID uuid.UUID, includeHistorical bool, today Date) ([]*WeeklyEntry, error) {
	if professionalID == uuid.Nil {
		return nil, invalid("professional_id", "is required")
	}
	return s.entries.ListEntries(ctx, professionalID, ListOptions{IncludeHistorical: includeHistorical, Today: today})
}

// PeriodView is a period group decorated for display.
type PeriodView struct {
	*PeriodGroup
	Summary             string `json:"summary"`
	Placeholder         bool   `json:"no_fixed_days"`
	SlotDurationMinutes int    `json:"slot_duration_minutes"`
	Deletable           bool   `json:"deletable"`
	Editable            bool   `json:"editable"`
}

// PeriodOverview is everything a period editor needs in one read.
type PeriodOverview struct {
	Professional *ProfessionalRef `json:"professional,omitempty"`
	Periods      []*PeriodView    `json:"periods"`
	MinimumStart Date             `json:"minimum_start"`
	Version      int              `json:"version"`
}

func (s *Service) ListPeriods(ctx context.Context, professionalID uuid.UUID, today Date) (*PeriodOverview, error) {
	ctx, span := tracer.Start(ctx, "agenda.ListPeriods", trace.WithAttributes(
		attribute.String("professional.id", professionalID.String())))
	defer span.End()

	groups, pinned, err := s.snapshot(ctx, professionalID, today, nil)
	if err != nil {
		return nil, err
	}
	version := *pinned
	latest := LatestFuture(groups)
	out := &PeriodOverview{
		Periods:      make([]*PeriodView, 0, len(groups)),
		MinimumStart: MinimumStart(groups, today),
		Version:      version,
	}
	for _, g := range groups {
		out.Periods = append(out.Periods, &PeriodView{
			PeriodGroup:         g,
			Summary:             g.Summary(),
			Placeholder:         g.IsPlaceholder(),
			SlotDurationMinutes: g.SlotDurationMinutes(),
			Deletable:           g == latest,
			Editable:            g.Status == StatusFutura,
		})
	}
	if s.dir != nil {
		ref, err := s.dir.Lookup(ctx, professionalID)
		if err != nil {
			s.logger.Warn().Err(err).Str("professional_id", professionalID.String()).Msg("professional lookup failed")
		}
		out.Professional = ref
	}
	return out, nil
}

// CurrentSummary renders the weekly pattern of the vigente period.
func (s *Service) CurrentSummary(ctx context.Context, professionalID uuid.UUID, today Date) (string, error) {
	groups, err := s.loadGroups(ctx, professionalID, today)
	if err != nil {
		return "", err
	}
	if cur := CurrentPeriod(groups); cur != nil {
		return cur.Summary(), nil
	}
	return NoScheduleLabel, nil
}

func (s *Service) loadGroups(ctx context.Context, professionalID uuid.UUID, today Date) ([]*PeriodGroup, error) {
	if professionalID == uuid.Nil {
		return nil, invalid("professional_id", "is required")
	}
	if today.IsZero() {
		today = s.Today()
	}
	entries, err := s.entries.ListEntries(ctx, professionalID, ListOptions{IncludeHistorical: true, Today: today})
	if err != nil {
		return nil, err
	}
	return GroupPeriods(entries, today), nil
}

// snapshot loads the periods a mutation is planned against, together with the
// agenda version they were read at. The version is read first so a write that
// lands in between makes the changeset stale rather than silently accepted.
// When the caller supplied no expected version the read one is pinned instead,
// and Apply rejects the changeset if another writer committed meanwhile.
func (s *Service) snapshot(ctx context.Context, professionalID uuid.UUID, today Date, expected *int) ([]*PeriodGroup, *int, error) {
	if professionalID == uuid.Nil {
		return nil, nil, invalid("professional_id", "is required")
	}
	version, err := s.entries.AgendaVersion(ctx, professionalID)
	if err != nil {
		return nil, nil, err
	}
	if expected != nil && *expected != version {
		return nil, nil, ErrVersionConflict
	}
	groups, err := s.loadGroups(ctx, professionalID, today)
	if err != nil {
		return nil, nil, err
	}
	return groups, &version, nil
}

// -- Mode A: per-weekday upsert --

type UpsertWeekdaysRequest struct {
	ProfessionalID uuid.UUID   `json:"-"`
	Days           []DayWindow `json:"days"`
	// SlotDurationMinutes applies to days that carry no duration of their own.
	SlotDurationMinutes int  `json:"slot_duration_minutes,omitempty"`
	ExpectedVersion     *int `json:"expected_version,omitempty"`
}

type UpsertResult struct {
	Created int            `json:"created"`
	Updated int            `json:"updated"`
	Removed int            `json:"removed"`
	Changed bool           `json:"changed"`
	Version int            `json:"version"`
	Entries []*WeeklyEntry `json:"entries"`
}

// UpsertWeekdays edits the open period day by day. Inactive days in the request
// are ignored. A day that names an EntryID replaces that entry; otherwise an
// entry with the identical window or an inactive entry of the same weekday is
// updated in place, and a new entry is created when neither exists. Every
// collision with another active entry is reported in a single OverlapError.
func (s *Service) UpsertWeekdays(ctx context.Context, req UpsertWeekdaysRequest, today Date) (*UpsertResult, error) {
	ctx, span := tracer.Start(ctx, "agenda.UpsertWeekdays", trace.WithAttributes(
		attribute.String("professional.id", req.ProfessionalID.String())))
	defer span.End()
	started := time.Now()

	if today.IsZero() {
		today = s.Today()
	}
	groups, pinned, err := s.snapshot(ctx, req.ProfessionalID, today, req.ExpectedVersion)
	if err != nil {
		return nil, s.fail(span, "upsert_weekdays", started, err)
	}
	open := OpenPeriod(groups)

	fallback := req.SlotDurationMinutes
	if fallback == 0 && open != nil {
		fallback = open.SlotDurationMinutes()
	}
	days, err := validateDays(req.Days, fallback, true)
	if err != nil {
		return nil, s.fail(span, "upsert_weekdays", started, err)
	}
	if len(days) == 0 {
		if len(groups) == 0 {
			return nil, s.fail(span, "upsert_weekdays", started, invalid("days", "at least one active weekday is required"))
		}
		return &UpsertResult{}, nil
	}

	cs := &Changeset{ProfessionalID: req.ProfessionalID, ExpectedVersion: pinned}
	from := MinimumStart(groups, today)
	var rows []*WeeklyEntry
	if open != nil {
		from = open.ValidFrom
		rows = open.Entries
	}

	overlap := &OverlapError{}
	res := &UpsertResult{}
	claimed := map[uuid.UUID]bool{}
	for _, d := range days {
		target, err := pickReplaced(rows, d, claimed)
		if err != nil {
			return nil, s.fail(span, "upsert_weekdays", started, err)
		}
		for _, e := range rows {
			if e == target || !e.Active || e.Weekday != d.Weekday {
				continue
			}
			if e.Window().Overlaps(d.Window()) {
				overlap.Conflicts = append(overlap.Conflicts, Conflict{
					Weekday:   d.Weekday,
					Label:     d.Weekday.Label(),
					Requested: d.Window(),
					Existing:  e.Window(),
					EntryID:   e.ID.String(),
				})
			}
		}
		if target != nil {
			claimed[target.ID] = true
			if target.Active && target.Window() == d.Window() && target.SlotDurationMinutes == d.SlotDurationMinutes {
				continue
			}
			u := target.clone()
			u.StartTime, u.EndTime = d.StartTime, d.EndTime
			u.SlotDurationMinutes = d.SlotDurationMinutes
			u.Active = true
			cs.update(u)
			res.Updated++
			continue
		}
		cs.create(&WeeklyEntry{
			Weekday:             d.Weekday,
			StartTime:           d.StartTime,
			EndTime:             d.EndTime,
			SlotDurationMinutes: d.SlotDurationMinutes,
			Active:              true,
			ValidFrom:           from,
		})
		res.Created++
	}
	if len(overlap.Conflicts) > 0 {
		return nil, s.fail(span, "upsert_weekdays", started, overlap)
	}
	for _, e := range rows {
		if e.IsPlaceholder() {
			cs.remove(e)
			res.Removed++
		}
	}
	if cs.Empty() {
		return res, nil
	}

	version, err := s.apply(ctx, "upsert_weekdays", cs)
	if err != nil {
		return nil, s.fail(span, "upsert_weekdays", started, err)
	}
	res.Changed = true
	res.Version = version
	res.Entries = append(append(res.Entries, cs.Creates...), cs.Updates...)
	s.succeed("upsert_weekdays", started)
	return res, nil
}

// pickReplaced finds the existing row a Mode A day rewrites in place.
func pickReplaced(rows []*WeeklyEntry, d DayWindow, claimed map[uuid.UUID]bool) (*WeeklyEntry, error) {
	if d.EntryID != nil {
		for _, e := range rows {
			if e.ID == *d.EntryID {
				if e.Weekday != d.Weekday {
					return nil, invalid("days.entry_id", "entry belongs to a different weekday")
				}
				return e, nil
			}
		}
		return nil, invalid("days.entry_id", "entry is not part of the open period")
	}
	for _, e := range rows {
		if e.Weekday == d.Weekday && !claimed[e.ID] && e.Window() == d.Window() {
			return e, nil
		}
	}
	for _, e := range rows {
		if e.Weekday == d.Weekday && !claimed[e.ID] && !e.Active {
			return e, nil
		}
	}
	return nil, nil
}

// -- Mode B: period replacement --

type PeriodRequest struct {
	ProfessionalID      uuid.UUID   `json:"-"`
	ValidFrom           Date        `json:"valid_from"`
	SlotDurationMinutes int         `json:"slot_duration_minutes"`
	Days                []DayWindow `json:"days"`
	ExpectedVersion     *int        `json:"expected_version,omitempty"`
}

type PeriodResult struct {
	Period  *PeriodGroup `json:"period"`
	Closed  *PeriodGroup `json:"closed,omitempty"`
	Version int          `json:"version"`
}

// ReplacePeriod starts a new open-ended period on req.ValidFrom. The currently
// open period is closed the day before. An empty day list stores the period as
// "no fixed days".
func (s *Service) ReplacePeriod(ctx context.Context, req PeriodRequest, today Date) (*PeriodResult, error) {
	ctx, span := tracer.Start(ctx, "agenda.ReplacePeriod", trace.WithAttributes(
		attribute.String("professional.id", req.ProfessionalID.String()),
		attribute.String("period.valid_from", req.ValidFrom.String())))
	defer span.End()
	started := time.Now()

	if today.IsZero() {
		today = s.Today()
	}
	days, err := validatePeriodRequest(req)
	if err != nil {
		return nil, s.fail(span, "replace_period", started, err)
	}
	groups, pinned, err := s.snapshot(ctx, req.ProfessionalID, today, req.ExpectedVersion)
	if err != nil {
		return nil, s.fail(span, "replace_period", started, err)
	}
	if earliest := MinimumStart(groups, today); req.ValidFrom.Before(earliest) {
		return nil, s.fail(span, "replace_period", started, &InvalidPeriodStartError{Requested: req.ValidFrom, Minimum: earliest})
	}

	cs := &Changeset{ProfessionalID: req.ProfessionalID, ExpectedVersion: pinned}
	res := &PeriodResult{}
	if open := OpenPeriod(groups); open != nil {
		closeOn := req.ValidFrom.AddDays(-1)
		cs.closeAll(open, &closeOn)
		res.Closed = &PeriodGroup{ValidFrom: open.ValidFrom, ValidTo: &closeOn, Status: ClassifyPeriod(open.ValidFrom, &closeOn, today)}
		res.Closed.Entries = cs.Updates
	}
	cs.applyUniform(nil, req.ValidFrom, nil, days, req.SlotDurationMinutes)

	version, err := s.apply(ctx, "replace_period", cs)
	if err != nil {
		return nil, s.fail(span, "replace_period", started, err)
	}
	res.Version = version
	res.Period = &PeriodGroup{
		ValidFrom: req.ValidFrom,
		Status:    ClassifyPeriod(req.ValidFrom, nil, today),
		Entries:   cs.Creates,
	}
	s.succeed("replace_period", started)
	return res, nil
}

type EditPeriodRequest struct {
	PeriodRequest
	// PeriodStart identifies the period being edited. PeriodRequest.ValidFrom
	// is the new start; zero keeps the current one.
	PeriodStart Date `json:"-"`
}

// EditFuturePeriod rewrites a period that has not started yet. Moving its start
// keeps a chained predecessor contiguous by re-closing it the day before the
// new start.
func (s *Service) EditFuturePeriod(ctx context.Context, req EditPeriodRequest, today Date) (*PeriodResult, error) {
	ctx, span := tracer.Start(ctx, "agenda.EditFuturePeriod", trace.WithAttributes(
		attribute.String("professional.id", req.ProfessionalID.String()),
		attribute.String("period.valid_from", req.PeriodStart.String())))
	defer span.End()
	started := time.Now()

	if today.IsZero() {
		today = s.Today()
	}
	if req.ValidFrom.IsZero() {
		req.ValidFrom = req.PeriodStart
	}
	days, err := validatePeriodRequest(req.PeriodRequest)
	if err != nil {
		return nil, s.fail(span, "edit_period", started, err)
	}
	groups, pinned, err := s.snapshot(ctx, req.ProfessionalID, today, req.ExpectedVersion)
	if err != nil {
		return nil, s.fail(span, "edit_period", started, err)
	}
	target := FindPeriod(groups, req.PeriodStart)
	if target == nil {
		return nil, s.fail(span, "edit_period", started, ErrNotFound)
	}
	if target.Status != StatusFutura {
		return nil, s.fail(span, "edit_period", started, invalid("valid_from", "only periods that have not started can be edited"))
	}

	prev := predecessor(groups, target)
	chained := prev != nil && prev.ValidTo != nil && prev.ValidTo.AddDays(1).Equal(target.ValidFrom)
	earliest := today
	if prev != nil {
		earliest = MaxDate(earliest, prev.ValidFrom.AddDays(1))
		if !chained && prev.ValidTo != nil {
			earliest = MaxDate(earliest, prev.ValidTo.AddDays(1))
		}
	}
	if req.ValidFrom.Before(earliest) {
		return nil, s.fail(span, "edit_period", started, &InvalidPeriodStartError{Requested: req.ValidFrom, Minimum: earliest})
	}
	if target.ValidTo != nil && req.ValidFrom.After(*target.ValidTo) {
		return nil, s.fail(span, "edit_period", started, invalid("valid_from", "must not be after the end of the period"))
	}

	cs := &Changeset{ProfessionalID: req.ProfessionalID, ExpectedVersion: pinned}
	cs.applyUniform(target.Entries, req.ValidFrom, target.ValidTo, days, req.SlotDurationMinutes)
	res := &PeriodResult{}
	if chained && !req.ValidFrom.Equal(target.ValidFrom) {
		closeOn := req.ValidFrom.AddDays(-1)
		before := len(cs.Updates)
		cs.closeAll(prev, &closeOn)
		res.Closed = &PeriodGroup{
			ValidFrom: prev.ValidFrom,
			ValidTo:   &closeOn,
			Status:    ClassifyPeriod(prev.ValidFrom, &closeOn, today),
			Entries:   cs.Updates[before:],
		}
	}

	version, err := s.apply(ctx, "edit_period", cs)
	if err != nil {
		return nil, s.fail(span, "edit_period", started, err)
	}
	res.Version = version
	res.Period = &PeriodGroup{
		ValidFrom: req.ValidFrom,
		ValidTo:   target.ValidTo,
		Status:    ClassifyPeriod(req.ValidFrom, target.ValidTo, today),
	}
	for _, e := range append(append([]*WeeklyEntry{}, cs.Creates...), cs.Updates...) {
		if e.ValidFrom.Equal(req.ValidFrom) && sameValidTo(e.ValidTo, target.ValidTo) {
			res.Period.Entries = append(res.Period.Entries, e)
		}
	}
	s.succeed("edit_period", started)
	return res, nil
}

// DeletePeriod removes the latest future period and, when the previous period
// ended the day before it, reopens that period.
func (s *Service) DeletePeriod(ctx context.Context, professionalID uuid.UUID, periodStart Date, expectedVersion *int, today Date) (*PeriodResult, error) {
	ctx, span := tracer.Start(ctx, "agenda.DeletePeriod", trace.WithAttributes(
		attribute.String("professional.id", professionalID.String()),
		attribute.String("period.valid_from", periodStart.String())))
	defer span.End()
	started := time.Now()

	if today.IsZero() {
		today = s.Today()
	}
	groups, pinned, err := s.snapshot(ctx, professionalID, today, expectedVersion)
	if err != nil {
		return nil, s.fail(span, "delete_period", started, err)
	}
	target := FindPeriod(groups, periodStart)
	if target == nil {
		return nil, s.fail(span, "delete_period", started, ErrNotFound)
	}
	if target.Status != StatusFutura {
		return nil, s.fail(span, "delete_period", started, &IllegalDeletionError{
			ValidFrom: periodStart, Reason: fmt.Sprintf("period is %s; only future periods can be deleted", target.Status)})
	}
	if latest := LatestFuture(groups); latest != target {
		return nil, s.fail(span, "delete_period", started, &IllegalDeletionError{
			ValidFrom: periodStart, Reason: "only the most recently scheduled future period can be deleted"})
	}

	cs := &Changeset{ProfessionalID: professionalID, ExpectedVersion: pinned}
	for _, e := range target.Entries {
		cs.remove(e)
	}
	res := &PeriodResult{}
	if prev := predecessor(groups, target); prev != nil && prev.ValidTo != nil && prev.ValidTo.AddDays(1).Equal(target.ValidFrom) {
		cs.closeAll(prev, nil)
		res.Closed = &PeriodGroup{ValidFrom: prev.ValidFrom, Status: ClassifyPeriod(prev.ValidFrom, nil, today), Entries: cs.Updates}
	}

	version, err := s.apply(ctx, "delete_period", cs)
	if err != nil {
		return nil, s.fail(span, "delete_period", started, err)
	}
	res.Version = version
	s.succeed("delete_period", started)
	return res, nil
}

// DeleteEntry removes a single weekday rule. Deleting the last rule of a period
// leaves the period in place as "no fixed days".
func (s *Service) DeleteEntry(ctx context.Context, id uuid.UUID, expectedVersion *int, today Date) (int, error) {
	ctx, span := tracer.Start(ctx, "agenda.DeleteEntry", trace.WithAttributes(
		attribute.String("entry.id", id.String())))
	defer span.End()
	started := time.Now()

	if today.IsZero() {
		today = s.Today()
	}
	found, err := s.entries.GetEntry(ctx, id)
	if err != nil {
		return 0, s.fail(span, "delete_entry", started, err)
	}
	groups, pinned, err := s.snapshot(ctx, found.ProfessionalID, today, expectedVersion)
	if err != nil {
		return 0, s.fail(span, "delete_entry", started, err)
	}
	// Plan against the row as it is at the pinned version.
	group, entry := findEntry(groups, id)
	if entry == nil {
		return 0, s.fail(span, "delete_entry", started, ErrNotFound)
	}
	if group.Status == StatusHistorico {
		return 0, s.fail(span, "delete_entry", started, invalid("entry_id", "entries of past periods cannot be changed"))
	}
	if entry.IsPlaceholder() {
		return 0, s.fail(span, "delete_entry", started, invalid("entry_id", "a no-fixed-days period is removed by deleting the period"))
	}
	cs := &Changeset{ProfessionalID: entry.ProfessionalID, ExpectedVersion: pinned}
	cs.remove(entry)
	if len(group.Entries) == 1 {
		cs.create(newPlaceholder(entry.ValidFrom, entry.ValidTo, entry.SlotDurationMinutes))
	}
	version, err := s.apply(ctx, "delete_entry", cs)
	if err != nil {
		return 0, s.fail(span, "delete_entry", started, err)
	}
	s.succeed("delete_entry", started)
	return version, nil
}

// -- Validation --

// validateDays checks a submitted weekly pattern and returns its active days
// with durations filled in. Weekdays must be unique.
func validateDays(in []DayWindow, fallbackDuration int, allowEntryID bool) ([]DayWindow, error) {
	verr := &ValidationError{}
	seen := map[Weekday]bool{}
	var out []DayWindow
	for i, d := range in {
		if !d.Active {
			continue
		}
		field := fmt.Sprintf("days[%d]", i)
		if !d.Weekday.Valid() {
			verr.add(field+".weekday", "must be between 0 (Sunday) and 6 (Saturday)")
			continue
		}
		if seen[d.Weekday] {
			verr.add(field+".weekday", d.Weekday.Label()+" is submitted more than once")
			continue
		}
		seen[d.Weekday] = true
		if !d.Window().Valid() {
			verr.add(field+".end_time", "must be after start_time")
		}
		if !d.Window().WholeMinutes() {
			verr.add(field+".start_time", "must be a whole minute")
		}
		if d.SlotDurationMinutes == 0 {
			d.SlotDurationMinutes = fallbackDuration
		}
		if !validDuration(d.SlotDurationMinutes) {
			verr.add(field+".slot_duration_minutes", fmt.Sprintf("must be between %d and %d", MinSlotDuration, MaxSlotDuration))
		}
		if d.EntryID != nil && !allowEntryID {
			verr.add(field+".entry_id", "is not accepted when replacing a period")
		}
		out = append(out, d)
	}
	if err := verr.orNil(); err != nil {
		return nil, err
	}
	SortDays(out)
	return out, nil
}

func validatePeriodRequest(req PeriodRequest) ([]DayWindow, error) {
	verr := &ValidationError{}
	if req.ProfessionalID == uuid.Nil {
		verr.add("professional_id", "is required")
	}
	if req.ValidFrom.IsZero() {
		verr.add("valid_from", "is required")
	}
	if !validDuration(req.SlotDurationMinutes) {
		verr.add("slot_duration_minutes", fmt.Sprintf("must be between %d and %d", MinSlotDuration, MaxSlotDuration))
	}
	if err := verr.orNil(); err != nil {
		return nil, err
	}
	return validateDays(req.Days, req.SlotDurationMinutes, false)
}

func validDuration(m int) bool { return m >= MinSlotDuration && m <= MaxSlotDuration }

// SortDays orders windows Monday first, then by start time.
func SortDays(ds []DayWindow) {
	sort.SliceStable(ds, func(i, j int) bool {
		a, b := ds[i], ds[j]
		if a.Weekday.Rank() != b.Weekday.Rank() {
			return a.Weekday.Rank() < b.Weekday.Rank()
		}
		return a.StartTime < b.StartTime
	})
}

// -- Mutation plumbing --

func (s *Service) apply(ctx context.Context, op string, cs *Changeset) (int, error) {
	version, err := s.entries.Apply(ctx, cs)
	if err != nil {
		return 0, err
	}
	s.invalidate(ctx, cs.ProfessionalID)
	s.logger.Info().
		Str("op", op).
		Str("professional_id", cs.ProfessionalID.String()).
		Int("created", len(cs.Creates)).
		Int("updated", len(cs.Updates)).
		Int("deleted", len(cs.Deletes)).
		Int("version", version).
		Msg("agenda changed")
	return version, nil
}

func (s *Service) invalidate(ctx context.Context, professionalID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, professionalID); err != nil {
		s.logger.Warn().Err(err).Str("professional_id", professionalID.String()).Msg("availability cache invalidation failed")
	}
}

func (s *Service) fail(span trace.Span, op string, started time.Time, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	outcome := outcomeOf(err)
	if s.metrics != nil {
		s.metrics.ObserveMutation(op, outcome, time.Since(started).Seconds())
	}
	ev := s.logger.Debug()
	if outcome == "error" {
		ev = s.logger.Error()
	}
	ev.Err(err).Str("op", op).Str("outcome", outcome).Msg("agenda mutation rejected")
	return err
}

func (s *Service) succeed(op string, started time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveMutation(op, "ok", time.Since(started).Seconds())
	}
}

func outcomeOf(err error) string {
	var (
		verr *ValidationError
		oerr *OverlapError
		ierr *InvalidPeriodStartError
		derr *IllegalDeletionError
	)
	switch {
	case errors.As(err, &verr):
		return "invalid"
	case errors.As(err, &oerr):
		return "overlap"
	case errors.As(err, &ierr):
		return "invalid_start"
	case errors.As(err, &derr):
		return "illegal_deletion"
	case errors.Is(err, ErrVersionConflict):
		return "version_conflict"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrDuplicateException):
		return "duplicate"
	default:
		return "error"
	}
}
