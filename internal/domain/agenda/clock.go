package agenda

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Clock is a time of day in seconds since midnight.
type Clock int

const maxClock = Clock(24*60*60 - 1)

// NewClock builds a Clock from hour, minute and second.
func NewClock(h, m, s int) Clock { return Clock(h*3600 + m*60 + s) }

// ParseClock accepts HH:mm or HH:mm:ss.
func ParseClock(s string) (Clock, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, fmt.Errorf("invalid time %q: expected HH:mm or HH:mm:ss", s)
	}
	limits := []int{23, 59, 59}
	vals := make([]int, 3)
	for i, p := range parts {
		if len(p) != 2 {
			return 0, fmt.Errorf("invalid time %q: expected two digits per field", s)
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > limits[i] {
			return 0, fmt.Errorf("invalid time %q", s)
		}
		vals[i] = n
	}
	return NewClock(vals[0], vals[1], vals[2]), nil
}

// MustParseClock is ParseClock for constants and tests.
func MustParseClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Clock) Parts() (h, m, s int) {
	v := int(c)
	return v / 3600, (v % 3600) / 60, v % 60
}

// Minutes returns minutes since midnight, truncating seconds.
func (c Clock) Minutes() int { return int(c) / 60 }

// String renders HH:mm:ss, the persisted form.
func (c Clock) String() string {
	h, m, s := c.Parts()
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// Short renders HH:mm for display.
func (c Clock) Short() string {
	h, m, _ := c.Parts()
	return fmt.Sprintf("%02d:%02d", h, m)
}

// WholeMinute reports whether c carries no seconds. Windows are compared at
// minute resolution, so only whole-minute bounds are accepted on input.
func (c Clock) WholeMinute() bool { return c%60 == 0 }

func (c Clock) valid() bool { return c >= 0 && c <= maxClock }

func (c Clock) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Clock) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("time must be a string: %w", err)
	}
	parsed, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// NormalizeClock truncates HH:mm:ss to HH:mm for display.
func NormalizeClock(s string) (string, error) {
	c, err := ParseClock(s)
	if err != nil {
		return "", err
	}
	return c.Short(), nil
}

// ExpandClock re-expands HH:mm to HH:mm:ss before persisting.
func ExpandClock(s string) (string, error) {
	c, err := ParseClock(s)
	if err != nil {
		return "", err
	}
	return c.String(), nil
}

// Window is a half-open [Start, End) clock interval.
type Window struct {
	Start Clock `json:"start_time"`
	End   Clock `json:"end_time"`
}

func (w Window) Valid() bool { return w.Start.valid() && w.End.valid() && w.Start < w.End }

func (w Window) WholeMinutes() bool { return w.Start.WholeMinute() && w.End.WholeMinute() }

func (w Window) Overlaps(o Window) bool { return Overlaps(w.Start, w.End, o.Start, o.End) }

func (w Window) String() string { return w.Start.Short() + "-" + w.End.Short() }

// Overlaps reports whether [startA,endA) and [startB,endB) intersect, compared at
// minute resolution. Touching endpoints do not overlap.
func Overlaps(startA, endA, startB, endB Clock) bool {
	return startA.Minutes() < endB.Minutes() && startB.Minutes() < endA.Minutes()
}

// OverlapsText is Overlaps for HH:mm[:ss] strings.
func OverlapsText(startA, endA, startB, endB string) (bool, error) {
	var cs [4]Clock
	for i, s := range []string{startA, endA, startB, endB} {
		c, err := ParseClock(s)
		if err != nil {
			return false, err
		}
		cs[i] = c
	}
	return Overlaps(cs[0], cs[1], cs[2], cs[3]), nil
}
