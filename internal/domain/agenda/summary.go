package agenda

import (
	"sort"
	"strings"
)

// NoScheduleLabel is rendered when a set of entries has no active weekday rows.
const NoScheduleLabel = "No schedule"

// Summarize groups the active weekday rows by identical window and renders
// e.g. "Mon, Wed 09:00-12:00 | Fri 14:00-18:00".
func Summarize(entries []*WeeklyEntry) string {
	type bucket struct {
		window Window
		days   []Weekday
	}
	byWindow := map[Window]*bucket{}
	var buckets []*bucket
	for _, e := range entries {
		if !e.Active || !e.Weekday.Valid() {
			continue
		}
		w := Window{Start: e.StartTime, End: e.EndTime}
		b, ok := byWindow[w]
		if !ok {
			b = &bucket{window: w}
			byWindow[w] = b
			buckets = append(buckets, b)
		}
		if !containsWeekday(b.days, e.Weekday) {
			b.days = append(b.days, e.Weekday)
		}
	}
	if len(buckets) == 0 {
		return NoScheduleLabel
	}
	for _, b := range buckets {
		SortWeekdays(b.days)
	}
	sort.SliceStable(buckets, func(i, j int) bool {
		ri, rj := buckets[i].days[0].Rank(), buckets[j].days[0].Rank()
		if ri != rj {
			return ri < rj
		}
		return buckets[i].window.Start < buckets[j].window.Start
	})
	parts := make([]string, 0, len(buckets))
	for _, b := range buckets {
		labels := make([]string, len(b.days))
		for i, d := range b.days {
			labels[i] = d.Short()
		}
		parts = append(parts, strings.Join(labels, ", ")+" "+b.window.String())
	}
	return strings.Join(parts, " | ")
}

func containsWeekday(ws []Weekday, w Weekday) bool {
	for _, x := range ws {
		if x == w {
			return true
		}
	}
	return false
}
