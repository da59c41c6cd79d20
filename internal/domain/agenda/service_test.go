package agenda

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// 2026-03-02 is a Monday.
var testToday = MustParseDate("2026-03-02")

func newTestService(opts ...Option) (*Service, *memStore) {
	store := newMemStore()
	opts = append([]Option{WithLogger(zerolog.Nop())}, opts...)
	return NewService(store, store, opts...), store
}

func day(w Weekday, start, end string) DayWindow {
	return DayWindow{Weekday: w, StartTime: MustParseClock(start), EndTime: MustParseClock(end), Active: true}
}

func weekdays(start, end string, ws ...Weekday) []DayWindow {
	out := make([]DayWindow, len(ws))
	for i, w := range ws {
		out[i] = day(w, start, end)
	}
	return out
}

var monToFri = []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday}

// assertInvariants checks that periods never overlap and that no two active
// rows of one weekday cover the same instant.
func assertInvariants(t *testing.T, store *memStore, pid uuid.UUID) {
	t.Helper()
	groups := GroupPeriods(store.rows(pid), testToday)
	for i, a := range groups {
		for _, b := range groups[i+1:] {
			if rangesIntersect(a.ValidFrom, a.ValidTo, b.ValidFrom, b.ValidTo) {
				t.Fatalf("periods %s and %s overlap", a.Key(), b.Key())
			}
		}
	}
	rows := store.rows(pid)
	for i, a := range rows {
		if !a.Active || a.IsPlaceholder() {
			continue
		}
		for _, b := range rows[i+1:] {
			if !b.Active || b.IsPlaceholder() || a.Weekday != b.Weekday {
				continue
			}
			if rangesIntersect(a.ValidFrom, a.ValidTo, b.ValidFrom, b.ValidTo) && a.Window().Overlaps(b.Window()) {
				t.Fatalf("%s rows %s and %s overlap", a.Weekday, a.Window(), b.Window())
			}
		}
	}
	open := 0
	for _, g := range groups {
		if g.Open() {
			open++
		}
	}
	if open > 1 {
		t.Fatalf("%d open periods", open)
	}
}

func rangesIntersect(fromA Date, toA *Date, fromB Date, toB *Date) bool {
	aEndsBeforeB := toA != nil && toA.Before(fromB)
	bEndsBeforeA := toB != nil && toB.Before(fromA)
	return !aEndsBeforeB && !bEndsBeforeA
}

func statusCount(t *testing.T, svc *Service, pid uuid.UUID) map[PeriodStatus]int {
	t.Helper()
	ov, err := svc.ListPeriods(context.Background(), pid, testToday)
	if err != nil {
		t.Fatalf("ListPeriods: %v", err)
	}
	counts := map[PeriodStatus]int{}
	for _, p := range ov.Periods {
		counts[p.Status]++
	}
	return counts
}

// -- Mode A --

func TestUpsertWeekdays_RejectsOverlap(t *testing.T) {
	svc, store := newTestService()
	pid := uuid.New()
	mon := entry(Monday, "09:00", "13:00", "2026-01-05", "")
	store.seed(pid, mon)

	_, err := svc.UpsertWeekdays(context.Background(), UpsertWeekdaysRequest{
		ProfessionalID: pid,
		Days:           []DayWindow{day(Monday, "12:00", "15:00")},
	}, testToday)

	var oerr *OverlapError
	if !errors.As(err, &oerr) {
		t.Fatalf("expected OverlapError, got %v", err)
	}
	if ws := oerr.Weekdays(); len(ws) != 1 || ws[0] != Monday {
		t.Errorf("conflicting weekdays = %v", ws)
	}
	if oerr.Conflicts[0].Label != "Monday" || !strings.Contains(oerr.Error(), "Monday") {
		t.Errorf("conflict does not name Monday: %v", oerr)
	}
	if oerr.Conflicts[0].EntryID != mon.ID.String() {
		t.Errorf("conflict entry = %s", oerr.Conflicts[0].EntryID)
	}
	rows := store.rows(pid)
	if len(rows) != 1 || rows[0].Window() != mon.Window() || store.applies != 0 {
		t.Errorf("existing entry was altered: %+v", rows)
	}
}

func TestUpsertWeekdays_ReportsEveryConflict(t *testing.T) {
	svc, store := newTestService()
	pid := uuid.New()
	store.seed(pid,
		entry(Monday, "09:00", "13:00", "2026-01-05", ""),
		entry(Wednesday, "09:00", "13:00", "2026-01-05", ""))

	_, err := svc.UpsertWeekdays(context.Background(), UpsertWeekdaysRequest{
		ProfessionalID: pid,
		Days: []DayWindow{
			day(Friday, "09:00", "12:00"),
			day(Wednesday, "08:00", "10:00"),
			day(Monday, "12:00", "15:00"),
		},
	}, testToday)

	var oerr *OverlapError
	if !errors.As(err, &oerr) {
		t.Fatalf("expected OverlapError, got %v", err)
	}
	ws := oerr.Weekdays()
	if len(ws) != 2 || ws[0] != Monday || ws[1] != Wednesday {
		t.Errorf("conflicts = %v, want [Monday Wednesday]", ws)
	}
	if len(store.rows(pid)) != 2 {
		t.Error("nothing may be persisted when any weekday conflicts")
	}
}

func TestUpsertWeekdays_CreatesAndUpdates(t *testing.T) {
	svc, store := newTestService()
	pid := uuid.New()
	mon := entry(Monday, "09:00", "13:00", "2026-01-05", "")
	wed := entry(Wednesday, "14:00", "18:00", "2026-01-05", "")
	store.seed(pid, mon, wed)

	monDay := day(Monday, "08:00", "12:00")
	monDay.EntryID = &mon.ID
	res, err := svc.UpsertWeekdays(context.Background(), UpsertWeekdaysRequest{
		ProfessionalID: pid,
		Days:           []DayWindow{day(Tuesday, "09:00", "12:00"), monDay},
	}, testToday)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Created != 1 || res.Updated != 1 || !res.Changed || res.Version != 1 {
		t.Errorf("unexpected result %+v", res)
	}

	rows := store.rows(pid)
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	got := map[Weekday]*WeeklyEntry{}
	for _, r := range rows {
		got[r.Weekday] = r
	}
	if got[Monday].ID != mon.ID || got[Monday].Window().String() != "08:00-12:00" {
		t.Errorf("monday not updated in place: %+v", got[Monday])
	}
	if got[Tuesday].ValidFrom.String() != "2026-01-05" || got[Tuesday].ValidTo != nil {
		t.Errorf("new row not stamped with the open period: %+v", got[Tuesday])
	}
	if got[Wednesday].Window() != wed.Window() || !got[Wednesday].Active {
		t.Error("unmentioned weekday must be left untouched")
	}
	assertInvariants(t, store, pid)
}

func TestUpsertWeekdays_ReusesInactiveRow(t *testing.T) {
	svc, store := newTestService()
	pid := uuid.New()
	off := entry(Monday, "09:00", "10:00", "2026-01-05", "")
	off.Active = false
	store.seed(pid, off)

	res, err := svc.UpsertWeekdays(context.Background(), UpsertWeekdaysRequest{
		ProfessionalID: pid,
		Days:           []DayWindow{day(Monday, "09:30", "18:00")},
	}, testToday)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Updated != 1 || res.Created != 0 {
		t.Errorf("unexpected result %+v", res)
	}
	rows := store.rows(pid)
	if len(rows) != 1 || rows[0].ID != off.ID || !rows[0].Active {
		t.Errorf("inactive row not reactivated: %+v", rows)
	}
}

func TestUpsertWeekdays_EntryIDOfOtherWeekday(t *testing.T) {
	svc, store := newTestService()
	pid := uuid.New()
	mon := entry(Monday, "09:00", "13:00", "2026-01-05", "")
	store.seed(pid, mon)

	d := day(Tuesday, "09:00", "12:00")
	d.EntryID = &mon.ID
	_, err := svc.UpsertWeekdays(context.Background(), UpsertWeekdaysRequest{ProfessionalID: pid, Days: []DayWindow{d}}, testToday)
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Fields[0].Field != "days.entry_id" {
		t.Fatalf("expected entry_id validation error, got %v", err)
	}
}

func TestUpsertWeekdays_IdenticalSubmissionIsNoop(t *testing.T) {
	svc, store := newTestService()
	pid := uuid.New()
	store.seed(pid, entry(Monday, "09:00", "13:00", "2026-01-05", ""))

	res, err := svc.UpsertWeekdays(context.Background(), UpsertWeekdaysRequest{
		ProfessionalID: pid,
		Days:           []DayWindow{day(Monday, "09:00", "13:00")},
	}, testToday)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Changed || store.applies != 0 {
		t.Errorf("expected no change, got %+v (applies=%d)", res, store.applies)
	}
}

func TestUpsertWeekdays_NothingActive(t *testing.T) {
	svc, store := newTestService()
	pid := uuid.New()
	inactive := []DayWindow{{Weekday: Monday, StartTime: MustParseClock("09:00"), EndTime: MustParseClock("10:00")}}

	_, err := svc.UpsertWeekdays(context.Background(), UpsertWeekdaysRequest{ProfessionalID: pid, Days: inactive}, testToday)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for an empty agenda, got %v", err)
	}

	store.seed(pid, entry(Monday, "09:00", "13:00", "2026-01-05", ""))
	res, err := svc.UpsertWeekdays(context.Background(), UpsertWeekdaysRequest{ProfessionalID: pid, Days: inactive}, testToday)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Changed || res.Created+res.Updated != 0 {
		t.Errorf("expected a silent no-op, got %+v", res)
	}
}

func TestUpsertWeekdays_StartsPeriodWhenNoneExists(t *testing.T) {
	svc, store := newTestService()
	pid := uuid.New()

	res, err := svc.UpsertWeekdays(context.Background(), UpsertWeekdaysRequest{
		ProfessionalID:      pid,
		SlotDurationMinutes: 20,
		Days:                []DayWindow{day(Monday, "09:00", "12:00")},
	}, testToday)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rows := store.rows(pid)
	if res.Created != 1 || len(rows) != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if !rows[0].ValidFrom.Equal(testToday) || rows[0].ValidTo != nil || rows[0].SlotDurationMinutes != 20 {
		t.Errorf("unexpected row %+v", rows[0])
	}
}

func TestUpsertWeekdays_ReplacesPlaceholder(t *testing.T) {
	svc, store := newTestService()
	pid := uuid.New()
	store.seed(pid, entry(NoFixedDays, "", "", "2026-01-05", ""))

	res, err := svc.UpsertWeekdays(context.Background(), UpsertWeekdaysRequest{
		ProfessionalID: pid,
		Days:           []DayWindow{day(Thursday, "09:00", "12:00")},
	}, testToday)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Created != 1 || res.Removed != 1 {
		t.Errorf("unexpected result %+v", res)
	}
	rows := store.rows(pid)
	if len(rows) != 1 || rows[0].Weekday != Thursday || rows[0].SlotDurationMinutes != 30 {
		t.Errorf("unexpected rows %+v", rows)
	}
}

func TestUpsertWeekdays_Validation(t *testing.T) {
	svc, _ := newTestService()
	pid := uuid.New()
	tests := []struct {
		name  string
		req   UpsertWeekdaysRequest
		field string
	}{
		{"no professional", UpsertWeekdaysRequest{Days: []DayWindow{day(Monday, "09:00", "10:00")}}, "professional_id"},
		{"end before start", UpsertWeekdaysRequest{ProfessionalID: pid, SlotDurationMinutes: 30, Days: []DayWindow{day(Monday, "10:00", "09:00")}}, "days[0].end_time"},
		{"duplicate weekday", UpsertWeekdaysRequest{ProfessionalID: pid, SlotDurationMinutes: 30, Days: []DayWindow{day(Monday, "09:00", "10:00"), day(Monday, "11:00", "12:00")}}, "days[1].weekday"},
		{"sentinel weekday", UpsertWeekdaysRequest{ProfessionalID: pid, SlotDurationMinutes: 30, Days: []DayWindow{day(NoFixedDays, "09:00", "10:00")}}, "days[0].weekday"},
		{"no duration", UpsertWeekdaysRequest{ProfessionalID: pid, Days: []DayWindow{day(Monday, "09:00", "10:00")}}, "days[0].slot_duration_minutes"},
		{"seconds in window", UpsertWeekdaysRequest{ProfessionalID: pid, SlotDurationMinutes: 30, Days: []DayWindow{day(Monday, "12:00:10", "15:00")}}, "days[0].start_time"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.UpsertWeekdays(context.Background(), tt.req, testToday)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Fields[0].Field != tt.field {
				t.Errorf("field = %s, want %s", verr.Fields[0].Field, tt.field)
			}
		})
	}
}

// -- Mode B --

func TestReplacePeriod_ClosesTheOpenPeriod(t *testing.T) {
	svc, store := newTestService()
	pid := uuid.New()
	for _, w := range monToFri {
		store.seed(pid, entry(w, "09:00", "18:00", "2026-01-05", ""))
	}
	start := testToday.AddDays(7)

	res, err := svc.ReplacePeriod(context.Background(), PeriodRequest{
		ProfessionalID:      pid,
		ValidFrom:           start,
		SlotDurationMinutes: 30,
		Days:                weekdays("08:00", "14:00", monToFri...),
	}, testToday)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Closed == nil || res.Closed.ValidTo == nil || !res.Closed.ValidTo.Equal(start.AddDays(-1)) {
		t.Fatalf("old period not closed the day before: %+v", res.Closed)
	}
	if len(res.Period.Entries) != 5 || res.Period.Status != StatusFutura {
		t.Errorf("unexpected new period %+v", res.Period)
	}

	counts := statusCount(t, svc, pid)
	if counts[StatusVigente] != 1 || counts[StatusFutura] != 1 || counts[StatusHistorico] != 0 {
		t.Errorf("status counts = %v", counts)
	}
	for _, r := range store.rows(pid) {
		if r.ValidFrom.String() == "2026-01-05" && (r.ValidTo == nil || r.ValidTo.String() != "2026-03-08") {
			t.Errorf("old row not bounded: %+v", r)
		}
	}
	assertInvariants(t, store, pid)
}

func TestReplacePeriod_RejectsEarlyStart(t *testing.T) {
	svc, store := newTestService()
	pid := uuid.New()
	store.seed(pid, entry(Monday, "09:00", "18:00", "2026-01-05", ""))

	_, err := svc.ReplacePeriod(context.Background(), PeriodRequest{
		ProfessionalID: pid, ValidFrom: testToday.AddDays(-1), SlotDurationMinutes: 30,
		Days: weekdays("08:00", "14:00", Monday),
	}, testToday)
	var ierr *InvalidPeriodStartError
	if !errors.As(err, &ierr) {
		t.Fatalf("expected InvalidPeriodStartError, got %v", err)
	}
	if !ierr.Minimum.Equal(testToday) {
		t.Errorf("minimum = %s, want %s", ierr.Minimum, testToday)
	}

	future := testToday.AddDays(7)
	if _, err := svc.ReplacePeriod(context.Background(), PeriodRequest{
		ProfessionalID: pid, ValidFrom: future, SlotDurationMinutes: 30, Days: weekdays("08:00", "14:00", Monday),
	}, testToday); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = svc.ReplacePeriod(context.Background(), PeriodRequest{
		ProfessionalID: pid, ValidFrom: future, SlotDurationMinutes: 30, Days: weekdays("08:00", "14:00", Monday),
	}, testToday)
	if !errors.As(err, &ierr) || !ierr.Minimum.Equal(future.AddDays(1)) {
		t.Fatalf("expected minimum %s, got %v", future.AddDays(1), err)
	}
	assertInvariants(t, store, pid)
}

func TestReplacePeriod_PlaceholderPeriod(t *testing.T) {
	svc, store := newTestService()
	pid := uuid.New()

	_, err := svc.ReplacePeriod(context.Background(), PeriodRequest{
		ProfessionalID: pid, ValidFrom: testToday, SlotDurationMinutes: 20,
	}, testToday)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rows := store.rows(pid)
	if len(rows) != 1 || !rows[0].IsPlaceholder() || rows[0].SlotDurationMinutes != 20 {
		t.Fatalf("expected one placeholder row, got %+v", rows)
	}

	days, err := svc.ResolveRange(context.Background(), pid, DateRange{From: testToday, To: testToday.AddDays(13)})
	if err != nil {
		t.Fatalf("ResolveRange: %v", err)
	}
	for _, a := range days {
		if a.Status != NoFixedDay || len(a.Windows) != 0 {
			t.Fatalf("%s: status %s with %d windows", a.Date, a.Status, len(a.Windows))
		}
	}

	xDate := testToday.AddDays(3)
	if err := svc.CreateException(context.Background(), &ExceptionDate{
		ProfessionalID: pid, Date: xDate,
		StartTime: MustParseClock("10:00"), EndTime: MustParseClock("13:00"), SlotDurationMinutes: 15,
	}); err != nil {
		t.Fatalf("CreateException: %v", err)
	}
	a, err := svc.Resolve(context.Background(), pid, xDate)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if a.Status != Available || a.Source != SourceException || len(a.Windows) != 1 || a.Windows[0].SlotDurationMinutes != 15 {
		t.Errorf("exception inside placeholder period not resolved: %+v", a)
	}
}

func TestReplacePeriod_Validation(t *testing.T) {
	svc, _ := newTestService()
	pid := uuid.New()
	tests := []struct {
		name  string
		req   PeriodRequest
		field string
	}{
		{"missing start", PeriodRequest{ProfessionalID: pid, SlotDurationMinutes: 30}, "valid_from"},
		{"short duration", PeriodRequest{ProfessionalID: pid, ValidFrom: testToday, SlotDurationMinutes: 4}, "slot_duration_minutes"},
		{"long duration", PeriodRequest{ProfessionalID: pid, ValidFrom: testToday, SlotDurationMinutes: 481}, "slot_duration_minutes"},
		{"entry id", PeriodRequest{ProfessionalID: pid, ValidFrom: testToday, SlotDurationMinutes: 30, Days: []DayWindow{{
			EntryID: &pid, Weekday: Monday, StartTime: MustParseClock("09:00"), EndTime: MustParseClock("10:00"), Active: true,
		}}}, "days[0].entry_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ReplacePeriod(context.Background(), tt.req, testToday)
			var verr *ValidationError
			if !errors.As(err, &verr) || verr.Fields[0].Field != tt.field {
				t.Fatalf("expected %s validation error, got %v", tt.field, err)
			}
		})
	}
}

func TestReplacePeriod_VersionConflict(t *testing.T) {
	m := newMemMetrics()
	svc, store := newTestService(WithMetrics(m))
	pid := uuid.New()
	store.seed(pid, entry(Monday, "09:00", "18:00", "2026-01-05", ""))
	stale := 5

	_, err := svc.ReplacePeriod(context.Background(), PeriodRequest{
		ProfessionalID: pid, ValidFrom: testToday.AddDays(7), SlotDurationMinutes: 30,
		Days: weekdays("08:00", "14:00", Monday), ExpectedVersion: &stale,
	}, testToday)
	if !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
	if rows := store.rows(pid); len(rows) != 1 || rows[0].ValidTo != nil {
		t.Errorf("state changed on conflict: %+v", rows)
	}
	if m.mutations["replace_period/version_conflict"] != 1 {
		t.Errorf("metrics = %v", m.mutations)
	}

	current := 0
	if _, err := svc.ReplacePeriod(context.Background(), PeriodRequest{
		ProfessionalID: pid, ValidFrom: testToday.AddDays(7), SlotDurationMinutes: 30,
		Days: weekdays("08:00", "14:00", Monday), ExpectedVersion: &current,
	}, testToday); err != nil {
		t.Fatalf("matching version rejected: %v", err)
	}
}

// interleavedRepo runs a competing write the first time a mutation reads the
// agenda, so the competing commit lands between that read and the Apply.
type interleavedRepo struct {
	*memStore
	once  sync.Once
	write func()
}

func (r *interleavedRepo) ListEntries(ctx context.Context, professionalID uuid.UUID, opts ListOptions) ([]*WeeklyEntry, error) {
	rows, err := r.memStore.ListEntries(ctx, professionalID, opts)
	r.once.Do(r.write)
	return rows, err
}

func TestReplacePeriod_ConcurrentWriterWithoutExpectedVersion(t *testing.T) {
	store := newMemStore()
	pid := uuid.New()
	store.seed(pid, entry(Monday, "09:00", "18:00", "2026-01-05", ""))

	other := NewService(store, store)
	repo := &interleavedRepo{memStore: store}
	repo.write = func() {
		if _, err := other.ReplacePeriod(context.Background(), PeriodRequest{
			ProfessionalID: pid, ValidFrom: testToday.AddDays(10), SlotDurationMinutes: 30,
			Days: weekdays("10:00", "12:00", Tuesday),
		}, testToday); err != nil {
			t.Errorf("competing write: %v", err)
		}
	}
	svc := NewService(repo, store)

	_, err := svc.ReplacePeriod(context.Background(), PeriodRequest{
		ProfessionalID: pid, ValidFrom: testToday.AddDays(7), SlotDurationMinutes: 30,
		Days: weekdays("08:00", "14:00", Monday),
	}, testToday)
	if !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
	assertInvariants(t, store, pid)
	if open := OpenPeriod(GroupPeriods(store.rows(pid), testToday)); open == nil || !open.ValidFrom.Equal(testToday.AddDays(10)) {
		t.Errorf("competing period lost: %+v", open)
	}
}

func TestMutations_StaleExpectedVersionRejectedBeforePlanning(t *testing.T) {
	svc, store := newTestService()
	pid := uuid.New()
	mon := entry(Monday, "09:00", "13:00", "2026-01-05", "")
	store.seed(pid, mon)
	stale := 3

	if _, err := svc.UpsertWeekdays(context.Background(), UpsertWeekdaysRequest{
		ProfessionalID: pid, Days: weekdays("14:00", "18:00", Tuesday), ExpectedVersion: &stale,
	}, testToday); !errors.Is(err, ErrVersionConflict) {
		t.Errorf("upsert: expected ErrVersionConflict, got %v", err)
	}
	if _, err := svc.DeleteEntry(context.Background(), mon.ID, &stale, testToday); !errors.Is(err, ErrVersionConflict) {
		t.Errorf("delete entry: expected ErrVersionConflict, got %v", err)
	}
	if store.applies != 0 {
		t.Errorf("stale requests reached Apply %d times", store.applies)
	}
}

func TestReplacePeriod_FailureLeavesStateUnchanged(t *testing.T) {
	m := newMemMetrics()
	svc, store := newTestService(WithMetrics(m))
	pid := uuid.New()
	for _, w := range monToFri {
		store.seed(pid, entry(w, "09:00", "18:00", "2026-01-05", ""))
	}
	before := store.rows(pid)
	store.failApply = errDiskFull

	_, err := svc.ReplacePeriod(context.Background(), PeriodRequest{
		ProfessionalID: pid, ValidFrom: testToday.AddDays(7), SlotDurationMinutes: 30,
		Days: weekdays("08:00", "14:00", monToFri...),
	}, testToday)
	var terr *TransactionFailure
	if !errors.As(err, &terr) || !errors.Is(err, errDiskFull) {
		t.Fatalf("expected TransactionFailure wrapping the cause, got %v", err)
	}
	after := store.rows(pid)
	if len(after) != len(before) {
		t.Fatalf("rows changed: %d -> %d", len(before), len(after))
	}
	for i := range after {
		if after[i].ID != before[i].ID || after[i].ValidTo != nil {
			t.Errorf("row %d changed: %+v", i, after[i])
		}
	}
	if m.mutations["replace_period/error"] != 1 {
		t.Errorf("metrics = %v", m.mutations)
	}
	assertInvariants(t, store, pid)
}

// -- Future periods --

// chainOfPeriods seeds an open vigente period and schedules P1 on day 10 and
// P2 on day 20 through the engine.
func chainOfPeriods(t *testing.T, svc *Service, store *memStore, pid uuid.UUID) (p1, p2 Date) {
	t.Helper()
	store.seed(pid, entry(Monday, "09:00", "13:00", "2026-01-05", ""))
	p1, p2 = testToday.AddDays(10), testToday.AddDays(20)
	for _, start := range []Date{p1, p2} {
		if _, err := svc.ReplacePeriod(context.Background(), PeriodRequest{
			ProfessionalID: pid, ValidFrom: start, SlotDurationMinutes: 30,
			Days: weekdays("09:00", "12:00", Monday, Thursday),
		}, testToday); err != nil {
			t.Fatalf("schedule %s: %v", start, err)
		}
	}
	return p1, p2
}

func TestDeletePeriod_OnlyLatestFuture(t *testing.T) {
	svc, store := newTestService()
	pid := uuid.New()
	p1, p2 := chainOfPeriods(t, svc, store, pid)

	_, err := svc.DeletePeriod(context.Background(), pid, p1, nil, testToday)
	var derr *IllegalDeletionError
	if !errors.As(err, &derr) || !derr.ValidFrom.Equal(p1) {
		t.Fatalf("expected IllegalDeletionError for P1, got %v", err)
	}

	res, err := svc.DeletePeriod(context.Background(), pid, p2, nil, testToday)
	if err != nil {
		t.Fatalf("delete P2: %v", err)
	}
	if res.Closed == nil || !res.Closed.ValidFrom.Equal(p1) || res.Closed.ValidTo != nil {
		t.Errorf("P1 not reported as reopened: %+v", res.Closed)
	}
	for _, r := range store.rows(pid) {
		if r.ValidFrom.Equal(p2) {
			t.Errorf("P2 row survived: %+v", r)
		}
		if r.ValidFrom.Equal(p1) && r.ValidTo != nil {
			t.Errorf("P1 row not reopened: %+v", r)
		}
		if r.ValidFrom.String() == "2026-01-05" && (r.ValidTo == nil || !r.ValidTo.Equal(p1.AddDays(-1))) {
			t.Errorf("vigente period must stay closed before P1: %+v", r)
		}
	}
	assertInvariants(t, store, pid)
}

func TestDeletePeriod_Rejections(t *testing.T) {
	svc, store := newTestService()
	pid := uuid.New()
	store.seed(pid, entry(Monday, "09:00", "13:00", "2026-01-05", ""))

	_, err := svc.DeletePeriod(context.Background(), pid, MustParseDate("2026-01-05"), nil, testToday)
	var derr *IllegalDeletionError
	if !errors.As(err, &derr) || !strings.Contains(derr.Reason, "vigente") {
		t.Fatalf("expected IllegalDeletionError for the vigente period, got %v", err)
	}
	if _, err := svc.DeletePeriod(context.Background(), pid, MustParseDate("2026-05-01"), nil, testToday); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeletePeriod_UnchainedPredecessorStaysClosed(t *testing.T) {
	svc, store := newTestService()
	pid := uuid.New()
	store.seed(pid,
		entry(Monday, "09:00", "13:00", "2026-01-05", "2026-03-10"),
		entry(Monday, "09:00", "13:00", "2026-03-20", ""))

	if _, err := svc.DeletePeriod(context.Background(), pid, MustParseDate("2026-03-20"), nil, testToday); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rows := store.rows(pid)
	if len(rows) != 1 || rows[0].ValidTo == nil || rows[0].ValidTo.String() != "2026-03-10" {
		t.Errorf("predecessor with a gap must keep its end: %+v", rows)
	}
}

func TestEditFuturePeriod_MovesStartAndKeepsChain(t *testing.T) {
	svc, store := newTestService()
	pid := uuid.New()
	store.seed(pid, entry(Monday, "09:00", "13:00", "2026-01-05", ""))
	p1 := testToday.AddDays(10)
	if _, err := svc.ReplacePeriod(context.Background(), PeriodRequest{
		ProfessionalID: pid, ValidFrom: p1, SlotDurationMinutes: 30, Days: weekdays("09:00", "12:00", Monday),
	}, testToday); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	moved := p1.AddDays(4)
	res, err := svc.EditFuturePeriod(context.Background(), EditPeriodRequest{
		PeriodStart: p1,
		PeriodRequest: PeriodRequest{
			ProfessionalID: pid, ValidFrom: moved, SlotDurationMinutes: 40,
			Days: weekdays("10:00", "14:00", Tuesday),
		},
	}, testToday)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Closed == nil || !res.Closed.ValidTo.Equal(moved.AddDays(-1)) {
		t.Errorf("predecessor not re-closed: %+v", res.Closed)
	}
	if len(res.Period.Entries) != 1 || res.Period.Entries[0].Weekday != Tuesday {
		t.Errorf("unexpected period entries %+v", res.Period.Entries)
	}

	groups := GroupPeriods(store.rows(pid), testToday)
	if len(groups) != 2 {
		t.Fatalf("expected 2 periods, got %d", len(groups))
	}
	fut := FindPeriod(groups, moved)
	if fut == nil || len(fut.Entries) != 1 || fut.Entries[0].SlotDurationMinutes != 40 {
		t.Fatalf("edited period not stored: %+v", fut)
	}
	cur := CurrentPeriod(groups)
	if cur.ValidTo == nil || !cur.ValidTo.Equal(moved.AddDays(-1)) {
		t.Errorf("vigente end = %v", cur.ValidTo)
	}
	assertInvariants(t, store, pid)
}

func TestEditFuturePeriod_ToPlaceholder(t *testing.T) {
	svc, store := newTestService()
	pid := uuid.New()
	store.seed(pid, entry(Monday, "09:00", "13:00", "2026-03-20", ""))

	_, err := svc.EditFuturePeriod(context.Background(), EditPeriodRequest{
		PeriodStart:   MustParseDate("2026-03-20"),
		PeriodRequest: PeriodRequest{ProfessionalID: pid, SlotDurationMinutes: 30},
	}, testToday)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rows := store.rows(pid)
	if len(rows) != 1 || !rows[0].IsPlaceholder() || rows[0].ValidFrom.String() != "2026-03-20" {
		t.Errorf("expected a placeholder on the same start, got %+v", rows)
	}
}

func TestEditFuturePeriod_Rejections(t *testing.T) {
	svc, store := newTestService()
	pid := uuid.New()
	store.seed(pid,
		entry(Monday, "09:00", "13:00", "2026-01-05", "2026-03-11"),
		entry(Monday, "09:00", "13:00", "2026-03-12", ""))

	edit := func(start, newStart Date) error {
		_, err := svc.EditFuturePeriod(context.Background(), EditPeriodRequest{
			PeriodStart: start,
			PeriodRequest: PeriodRequest{ProfessionalID: pid, ValidFrom: newStart, SlotDurationMinutes: 30,
				Days: weekdays("09:00", "12:00", Monday)},
		}, testToday)
		return err
	}

	var verr *ValidationError
	if err := edit(MustParseDate("2026-01-05"), Date{}); !errors.As(err, &verr) {
		t.Errorf("editing the vigente period: expected ValidationError, got %v", err)
	}
	var ierr *InvalidPeriodStartError
	if err := edit(MustParseDate("2026-03-12"), testToday.AddDays(-1)); !errors.As(err, &ierr) || !ierr.Minimum.Equal(testToday) {
		t.Errorf("moving before today: expected minimum %s, got %v", testToday, err)
	}
	if err := edit(MustParseDate("2026-04-01"), Date{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown period: expected ErrNotFound, got %v", err)
	}
	assertInvariants(t, store, pid)
}

// -- Single entries --

func TestDeleteEntry_LastRowLeavesPlaceholder(t *testing.T) {
	svc, store := newTestService()
	pid := uuid.New()
	mon := entry(Monday, "09:00", "13:00", "2026-01-05", "")
	wed := entry(Wednesday, "09:00", "13:00", "2026-01-05", "")
	store.seed(pid, mon, wed)

	if _, err := svc.DeleteEntry(context.Background(), mon.ID, nil, testToday); err != nil {
		t.Fatalf("delete monday: %v", err)
	}
	if rows := store.rows(pid); len(rows) != 1 || rows[0].ID != wed.ID {
		t.Fatalf("unexpected rows %+v", rows)
	}

	version, err := svc.DeleteEntry(context.Background(), wed.ID, nil, testToday)
	if err != nil {
		t.Fatalf("delete wednesday: %v", err)
	}
	if version != 2 {
		t.Errorf("version = %d", version)
	}
	rows := store.rows(pid)
	if len(rows) != 1 || !rows[0].IsPlaceholder() || rows[0].ValidFrom.String() != "2026-01-05" {
		t.Errorf("expected a placeholder keeping the period, got %+v", rows)
	}
}

func TestDeleteEntry_Rejections(t *testing.T) {
	svc, store := newTestService()
	pid := uuid.New()
	old := entry(Monday, "09:00", "13:00", "2025-01-05", "2025-12-31")
	ph := entry(NoFixedDays, "", "", "2026-01-05", "")
	store.seed(pid, old, ph)

	var verr *ValidationError
	if _, err := svc.DeleteEntry(context.Background(), old.ID, nil, testToday); !errors.As(err, &verr) {
		t.Errorf("historical entry: expected ValidationError, got %v", err)
	}
	if _, err := svc.DeleteEntry(context.Background(), ph.ID, nil, testToday); !errors.As(err, &verr) {
		t.Errorf("placeholder entry: expected ValidationError, got %v", err)
	}
	if _, err := svc.DeleteEntry(context.Background(), uuid.New(), nil, testToday); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown entry: expected ErrNotFound, got %v", err)
	}
}

// -- Reads --

func TestRoundTrip_PeriodThroughResolver(t *testing.T) {
	svc, _ := newTestService()
	pid := uuid.New()
	if _, err := svc.ReplacePeriod(context.Background(), PeriodRequest{
		ProfessionalID: pid, ValidFrom: testToday, SlotDurationMinutes: 30,
		Days: weekdays("09:00", "12:00", Monday, Wednesday),
	}, testToday); err != nil {
		t.Fatalf("ReplacePeriod: %v", err)
	}

	mon, err := svc.Resolve(context.Background(), pid, testToday.AddDays(7))
	if err != nil {
		t.Fatalf("Resolve monday: %v", err)
	}
	if mon.Status != Available || len(mon.Windows) != 1 {
		t.Fatalf("monday = %+v", mon)
	}
	if w := mon.Windows[0]; w.Start.Short() != "09:00" || w.End.Short() != "12:00" || w.SlotDurationMinutes != 30 {
		t.Errorf("monday window = %+v", w)
	}

	tue, err := svc.Resolve(context.Background(), pid, testToday.AddDays(8))
	if err != nil {
		t.Fatalf("Resolve tuesday: %v", err)
	}
	if tue.Status != NotWorkingDay {
		t.Errorf("tuesday status = %s", tue.Status)
	}

	before, _ := svc.Resolve(context.Background(), pid, testToday.AddDays(-1))
	if before.Status != NoPeriod {
		t.Errorf("day before the period = %s", before.Status)
	}
}

func TestListPeriods_Overview(t *testing.T) {
	spec := "Cardiology"
	svc, store := newTestService(WithDirectory(stubDirectory{ref: &ProfessionalRef{Name: "García, Ana", Specialty: &spec}}))
	pid := uuid.New()
	p1, p2 := chainOfPeriods(t, svc, store, pid)

	ov, err := svc.ListPeriods(context.Background(), pid, testToday)
	if err != nil {
		t.Fatalf("ListPeriods: %v", err)
	}
	if ov.Professional == nil || ov.Professional.Name != "García, Ana" {
		t.Errorf("professional = %+v", ov.Professional)
	}
	if len(ov.Periods) != 3 || ov.Version != 2 {
		t.Fatalf("periods = %d version = %d", len(ov.Periods), ov.Version)
	}
	if ov.Periods[0].Status != StatusVigente || !ov.Periods[1].ValidFrom.Equal(p2) || !ov.Periods[2].ValidFrom.Equal(p1) {
		t.Errorf("unexpected order: %s %s %s", ov.Periods[0].ValidFrom, ov.Periods[1].ValidFrom, ov.Periods[2].ValidFrom)
	}
	if !ov.Periods[1].Deletable || ov.Periods[2].Deletable || ov.Periods[0].Deletable {
		t.Error("only the latest future period is deletable")
	}
	if ov.Periods[0].Editable || !ov.Periods[1].Editable || !ov.Periods[2].Editable {
		t.Error("only future periods are editable")
	}
	if ov.Periods[1].Summary != "Mon, Thu 09:00-12:00" {
		t.Errorf("summary = %q", ov.Periods[1].Summary)
	}
	if !ov.MinimumStart.Equal(p2.AddDays(1)) {
		t.Errorf("minimum start = %s", ov.MinimumStart)
	}
}

func TestListPeriods_DirectoryFailureIsNotFatal(t *testing.T) {
	svc, store := newTestService(WithDirectory(stubDirectory{err: errors.New("directory down")}))
	pid := uuid.New()
	store.seed(pid, entry(Monday, "09:00", "13:00", "2026-01-05", ""))

	ov, err := svc.ListPeriods(context.Background(), pid, testToday)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ov.Professional != nil || len(ov.Periods) != 1 {
		t.Errorf("unexpected overview %+v", ov)
	}
}

func TestCurrentSummary(t *testing.T) {
	svc, store := newTestService()
	pid := uuid.New()
	if s, _ := svc.CurrentSummary(context.Background(), pid, testToday); s != NoScheduleLabel {
		t.Errorf("empty agenda summary = %q", s)
	}
	store.seed(pid,
		entry(Wednesday, "09:00", "12:00", "2026-01-05", ""),
		entry(Monday, "09:00", "12:00", "2026-01-05", ""),
		entry(Friday, "14:00", "18:00", "2026-01-05", ""))
	s, err := svc.CurrentSummary(context.Background(), pid, testToday)
	if err != nil {
		t.Fatal(err)
	}
	if s != "Mon, Wed 09:00-12:00 | Fri 14:00-18:00" {
		t.Errorf("summary = %q", s)
	}
}

func TestListEntries_HidesHistoryByDefault(t *testing.T) {
	svc, store := newTestService()
	pid := uuid.New()
	store.seed(pid,
		entry(Monday, "09:00", "12:00", "2025-01-05", "2025-12-31"),
		entry(Monday, "09:00", "12:00", "2026-01-01", ""))

	cur, err := svc.ListEntries(context.Background(), pid, false, testToday)
	if err != nil || len(cur) != 1 {
		t.Fatalf("current entries = %d, %v", len(cur), err)
	}
	all, _ := svc.ListEntries(context.Background(), pid, true, testToday)
	if len(all) != 2 {
		t.Errorf("historical entries = %d", len(all))
	}
	if _, err := svc.ListEntries(context.Background(), uuid.Nil, false, testToday); err == nil {
		t.Error("expected error without professional")
	}
}

func TestMutations_InvalidateCacheAndRecordMetrics(t *testing.T) {
	cache, m := newMemCache(), newMemMetrics()
	svc, _ := newTestService(WithCache(cache), WithMetrics(m))
	pid := uuid.New()

	if _, err := svc.ReplacePeriod(context.Background(), PeriodRequest{
		ProfessionalID: pid, ValidFrom: testToday, SlotDurationMinutes: 30, Days: weekdays("09:00", "12:00", Monday),
	}, testToday); err != nil {
		t.Fatal(err)
	}
	if cache.invalidations[pid] != 1 {
		t.Errorf("invalidations = %d", cache.invalidations[pid])
	}
	if m.mutations["replace_period/ok"] != 1 {
		t.Errorf("metrics = %v", m.mutations)
	}

	_, err := svc.UpsertWeekdays(context.Background(), UpsertWeekdaysRequest{
		ProfessionalID: pid, Days: []DayWindow{day(Monday, "11:00", "13:00")},
	}, testToday)
	if err == nil {
		t.Fatal("expected overlap")
	}
	if cache.invalidations[pid] != 1 {
		t.Error("rejected mutation must not invalidate")
	}
	if m.mutations["upsert_weekdays/overlap"] != 1 {
		t.Errorf("metrics = %v", m.mutations)
	}
}

func TestOutcomeOf(t *testing.T) {
	tests := map[string]error{
		"invalid":          invalid("x", "y"),
		"overlap":          &OverlapError{},
		"invalid_start":    &InvalidPeriodStartError{},
		"illegal_deletion": &IllegalDeletionError{},
		"version_conflict": ErrVersionConflict,
		"not_found":        ErrNotFound,
		"duplicate":        ErrDuplicateException,
		"error":            &TransactionFailure{Op: "x", Err: errDiskFull},
	}
	for want, err := range tests {
		if got := outcomeOf(err); got != want {
			t.Errorf("outcomeOf(%v) = %s, want %s", err, got, want)
		}
	}
}
