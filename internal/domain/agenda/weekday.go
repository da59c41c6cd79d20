package agenda

import (
	"fmt"
	"sort"
	"strings"
)

// Weekday uses the time.Weekday numbering (0=Sunday..6=Saturday) plus the
// NoFixedDays sentinel.
type Weekday int

const (
	Sunday Weekday = iota
	Monday
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday

	// NoFixedDays marks a placeholder row that reserves a validity period
	// without weekday rules ("only punctual dates").
	NoFixedDays Weekday = 7
)

// WeekOrder is the canonical display order, Monday first and Sunday last.
var WeekOrder = []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

var weekdayLabels = [...]string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

// Valid reports whether w is a real weekday (the sentinel is not).
func (w Weekday) Valid() bool { return w >= Sunday && w <= Saturday }

func (w Weekday) Label() string {
	if w == NoFixedDays {
		return "No fixed days"
	}
	if !w.Valid() {
		return fmt.Sprintf("Weekday(%d)", int(w))
	}
	return weekdayLabels[w]
}

func (w Weekday) Short() string {
	if !w.Valid() {
		return w.Label()
	}
	return weekdayLabels[w][:3]
}

func (w Weekday) String() string { return w.Label() }

// Rank is the position of w in WeekOrder.
func (w Weekday) Rank() int {
	if !w.Valid() {
		return len(WeekOrder)
	}
	return (int(w) + 6) % 7
}

// ParseWeekday accepts a number (0-6) or an English name / 3-letter abbreviation.
func ParseWeekday(s string) (Weekday, error) {
	s = strings.TrimSpace(s)
	if len(s) == 1 && s[0] >= '0' && s[0] <= '6' {
		return Weekday(s[0] - '0'), nil
	}
	for i, l := range weekdayLabels {
		if strings.EqualFold(s, l) || strings.EqualFold(s, l[:3]) {
			return Weekday(i), nil
		}
	}
	return 0, fmt.Errorf("invalid weekday %q", s)
}

// SortWeekdays orders ws in place by WeekOrder.
func SortWeekdays(ws []Weekday) {
	sort.Slice(ws, func(i, j int) bool { return ws[i].Rank() < ws[j].Rank() })
}
