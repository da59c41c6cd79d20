package agenda

import (
	"github.com/google/uuid"
)

// Changeset is the full set of row changes of one mutation. The repository
// applies it atomically: all of it or none of it.
type Changeset struct {
	ProfessionalID uuid.UUID
	// ExpectedVersion, when set, must match the stored agenda version.
	ExpectedVersion *int
	Creates         []*WeeklyEntry
	Updates         []*WeeklyEntry
	Deletes         []uuid.UUID
}

func (cs *Changeset) Empty() bool {
	return len(cs.Creates) == 0 && len(cs.Updates) == 0 && len(cs.Deletes) == 0
}

func (cs *Changeset) create(e *WeeklyEntry) {
	e.ProfessionalID = cs.ProfessionalID
	cs.Creates = append(cs.Creates, e)
}

func (cs *Changeset) update(e *WeeklyEntry) { cs.Updates = append(cs.Updates, e) }

func (cs *Changeset) remove(e *WeeklyEntry) { cs.Deletes = append(cs.Deletes, e.ID) }

// closeAll sets ValidTo on every row of g.
func (cs *Changeset) closeAll(g *PeriodGroup, to *Date) {
	for _, e := range g.Entries {
		u := e.clone()
		u.ValidTo = to
		cs.update(u)
	}
}

// applyUniform rebuilds the rows of a period so that it carries exactly one row
// per active day (or a single placeholder when days is empty), reusing existing
// rows where the weekday matches. existing may be nil for a brand new period.
func (cs *Changeset) applyUniform(existing []*WeeklyEntry, from Date, to *Date, days []DayWindow, slotDuration int) {
	byWeekday := map[Weekday][]*WeeklyEntry{}
	for _, e := range existing {
		byWeekday[e.Weekday] = append(byWeekday[e.Weekday], e)
	}
	want := map[Weekday]bool{}
	for _, d := range days {
		want[d.Weekday] = true
		dur := d.SlotDurationMinutes
		if dur == 0 {
			dur = slotDuration
		}
		rows := byWeekday[d.Weekday]
		if len(rows) == 0 {
			cs.create(&WeeklyEntry{
				Weekday:             d.Weekday,
				StartTime:           d.StartTime,
				EndTime:             d.EndTime,
				SlotDurationMinutes: dur,
				Active:              true,
				ValidFrom:           from,
				ValidTo:             to,
			})
			continue
		}
		u := rows[0].clone()
		u.StartTime, u.EndTime = d.StartTime, d.EndTime
		u.SlotDurationMinutes = dur
		u.Active = true
		u.ValidFrom, u.ValidTo = from, to
		cs.update(u)
		for _, extra := range rows[1:] {
			cs.remove(extra)
		}
	}
	for w, rows := range byWeekday {
		if w == NoFixedDays || want[w] {
			continue
		}
		for _, e := range rows {
			cs.remove(e)
		}
	}

	placeholders := byWeekday[NoFixedDays]
	if len(days) > 0 {
		for _, p := range placeholders {
			cs.remove(p)
		}
		return
	}
	if len(placeholders) == 0 {
		cs.create(newPlaceholder(from, to, slotDuration))
		return
	}
	u := placeholders[0].clone()
	u.SlotDurationMinutes = slotDuration
	u.Active = true
	u.ValidFrom, u.ValidTo = from, to
	cs.update(u)
	for _, extra := range placeholders[1:] {
		cs.remove(extra)
	}
}

func newPlaceholder(from Date, to *Date, slotDuration int) *WeeklyEntry {
	return &WeeklyEntry{
		Weekday:             NoFixedDays,
		SlotDurationMinutes: slotDuration,
		Active:              true,
		ValidFrom:           from,
		ValidTo:             to,
	}
}
