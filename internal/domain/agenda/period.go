package agenda

import (
	"sort"

	"github.com/google/uuid"
)

// PeriodStatus classifies a validity period relative to today.
type PeriodStatus string

const (
	StatusVigente   PeriodStatus = "vigente"
	StatusFutura    PeriodStatus = "futura"
	StatusHistorico PeriodStatus = "historico"
)

// PeriodGroup is every weekly entry of one professional sharing the same
// (ValidFrom, ValidTo) bounds. It is derived, never persisted.
type PeriodGroup struct {
	ValidFrom Date           `json:"valid_from"`
	ValidTo   *Date          `json:"valid_to"`
	Status    PeriodStatus   `json:"status"`
	Entries   []*WeeklyEntry `json:"entries"`
}

// ClassifyPeriod returns the status of [from, to] as seen on today.
func ClassifyPeriod(from Date, to *Date, today Date) PeriodStatus {
	switch {
	case from.After(today):
		return StatusFutura
	case to != nil && to.Before(today):
		return StatusHistorico
	default:
		return StatusVigente
	}
}

// Key identifies the group by its bounds.
func (g *PeriodGroup) Key() string {
	to := "open"
	if g.ValidTo != nil {
		to = g.ValidTo.String()
	}
	return g.ValidFrom.String() + "|" + to
}

func (g *PeriodGroup) Open() bool { return g.ValidTo == nil }

// Contains reports whether d falls inside the period.
func (g *PeriodGroup) Contains(d Date) bool {
	if d.Before(g.ValidFrom) {
		return false
	}
	return g.ValidTo == nil || !d.After(*g.ValidTo)
}

// IsPlaceholder reports whether the period carries no weekday rules at all.
func (g *PeriodGroup) IsPlaceholder() bool {
	for _, e := range g.Entries {
		if !e.IsPlaceholder() {
			return false
		}
	}
	return true
}

// SlotDurationMinutes returns the duration shared by the period rows, preferring
// active weekday rows and falling back to the placeholder row.
func (g *PeriodGroup) SlotDurationMinutes() int {
	fallback := 0
	for _, e := range g.Entries {
		if e.IsPlaceholder() {
			fallback = e.SlotDurationMinutes
			continue
		}
		if e.Active {
			return e.SlotDurationMinutes
		}
		if fallback == 0 {
			fallback = e.SlotDurationMinutes
		}
	}
	return fallback
}

// ActiveEntries returns the active weekday rows for w, ordered by start time.
func (g *PeriodGroup) ActiveEntries(w Weekday) []*WeeklyEntry {
	var out []*WeeklyEntry
	for _, e := range g.Entries {
		if e.Active && e.Weekday == w {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime < out[j].StartTime })
	return out
}

// ActiveWeekdays returns the weekdays with at least one active row, in WeekOrder.
func (g *PeriodGroup) ActiveWeekdays() []Weekday {
	seen := map[Weekday]bool{}
	var out []Weekday
	for _, e := range g.Entries {
		if e.Active && e.Weekday.Valid() && !seen[e.Weekday] {
			seen[e.Weekday] = true
			out = append(out, e.Weekday)
		}
	}
	SortWeekdays(out)
	return out
}

// Summary renders the period's weekly pattern for display.
func (g *PeriodGroup) Summary() string { return Summarize(g.Entries) }

// GroupPeriods groups a professional's full entry history by validity bounds and
// classifies each group against today. The result lists the vigente group first
// and then the remaining groups by descending ValidFrom.
func GroupPeriods(entries []*WeeklyEntry, today Date) []*PeriodGroup {
	byKey := map[string]*PeriodGroup{}
	var groups []*PeriodGroup
	for _, e := range entries {
		g := &PeriodGroup{ValidFrom: e.ValidFrom, ValidTo: e.ValidTo}
		if existing, ok := byKey[g.Key()]; ok {
			existing.Entries = append(existing.Entries, e)
			continue
		}
		g.Status = ClassifyPeriod(e.ValidFrom, e.ValidTo, today)
		g.Entries = []*WeeklyEntry{e}
		byKey[g.Key()] = g
		groups = append(groups, g)
	}
	for _, g := range groups {
		sort.SliceStable(g.Entries, func(i, j int) bool {
			a, b := g.Entries[i], g.Entries[j]
			if a.Weekday.Rank() != b.Weekday.Rank() {
				return a.Weekday.Rank() < b.Weekday.Rank()
			}
			return a.StartTime < b.StartTime
		})
	}
	sort.SliceStable(groups, func(i, j int) bool {
		vi, vj := groups[i].Status == StatusVigente, groups[j].Status == StatusVigente
		if vi != vj {
			return vi
		}
		return groups[i].ValidFrom.After(groups[j].ValidFrom)
	})
	return groups
}

// CurrentPeriod returns the vigente group, if any.
func CurrentPeriod(groups []*PeriodGroup) *PeriodGroup {
	for _, g := range groups {
		if g.Status == StatusVigente {
			return g
		}
	}
	return nil
}

// OpenPeriod returns the group whose ValidTo is nil. When the data holds more
// than one, the latest one wins.
func OpenPeriod(groups []*PeriodGroup) *PeriodGroup {
	var open *PeriodGroup
	for _, g := range groups {
		if g.Open() && (open == nil || g.ValidFrom.After(open.ValidFrom)) {
			open = g
		}
	}
	return open
}

// LatestFuture returns the futura group with the greatest ValidFrom.
func LatestFuture(groups []*PeriodGroup) *PeriodGroup {
	var latest *PeriodGroup
	for _, g := range groups {
		if g.Status == StatusFutura && (latest == nil || g.ValidFrom.After(latest.ValidFrom)) {
			latest = g
		}
	}
	return latest
}

// FindPeriod returns the group starting on from.
func FindPeriod(groups []*PeriodGroup, from Date) *PeriodGroup {
	for _, g := range groups {
		if g.ValidFrom.Equal(from) {
			return g
		}
	}
	return nil
}

func findEntry(groups []*PeriodGroup, id uuid.UUID) (*PeriodGroup, *WeeklyEntry) {
	for _, g := range groups {
		for _, e := range g.Entries {
			if e.ID == id {
				return g, e
			}
		}
	}
	return nil, nil
}

// PeriodContaining returns the group covering d, if any.
func PeriodContaining(groups []*PeriodGroup, d Date) *PeriodGroup {
	for _, g := range groups {
		if g.Contains(d) {
			return g
		}
	}
	return nil
}

// predecessor returns the group with the greatest ValidFrom before g.
func predecessor(groups []*PeriodGroup, g *PeriodGroup) *PeriodGroup {
	var prev *PeriodGroup
	for _, o := range groups {
		if o.ValidFrom.Before(g.ValidFrom) && (prev == nil || o.ValidFrom.After(prev.ValidFrom)) {
			prev = o
		}
	}
	return prev
}

// MinimumStart is the earliest day a new period may begin: never before today,
// and strictly after the start and the end of the current period and of every
// future period. Periods are sequential and never overlap.
func MinimumStart(groups []*PeriodGroup, today Date) Date {
	min := today
	for _, g := range groups {
		if g.Status == StatusHistorico {
			continue
		}
		min = MaxDate(min, g.ValidFrom.AddDays(1))
		if g.ValidTo != nil {
			min = MaxDate(min, g.ValidTo.AddDays(1))
		}
	}
	return min
}
