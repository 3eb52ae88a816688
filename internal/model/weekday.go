package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Weekday numbers days Sunday-first, matching time.Weekday.
type Weekday int

const (
	Sunday Weekday = iota
	Monday
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
)

var weekdayAbbrevs = [7]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

var weekdayNames = [7]string{
	"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday",
}

// Pump schedules encode weekdays as a bitmask with Monday at bit 6.
var pumpWeekdayBits = [7]int{1, 64, 32, 16, 8, 4, 2}

func (w Weekday) Valid() bool { return w >= Sunday && w <= Saturday }

func (w Weekday) String() string {
	if !w.Valid() {
		return fmt.Sprintf("Weekday(%d)", int(w))
	}
	return weekdayAbbrevs[w]
}

// Name returns the lowercase full name used by light command payloads.
func (w Weekday) Name() string {
	if !w.Valid() {
		return ""
	}
	return weekdayNames[w]
}

// PumpBit returns the bitmask value used by doser schedule payloads.
func (w Weekday) PumpBit() int {
	if !w.Valid() {
		return 0
	}
	return pumpWeekdayBits[w]
}

// ParseWeekday accepts a day number (0-6, Sunday-first), a three-letter
// abbreviation, or a full name, case-insensitively.
func ParseWeekday(s string) (Weekday, error) {
	if n, err := strconv.Atoi(s); err == nil {
		w := Weekday(n)
		if !w.Valid() {
			return 0, fmt.Errorf("weekday number out of range: %d", n)
		}
		return w, nil
	}
	lower := strings.ToLower(strings.TrimSpace(s))
	for i, name := range weekdayNames {
		if lower == name || lower == strings.ToLower(weekdayAbbrevs[i]) {
			return Weekday(i), nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}

// MarshalJSON emits the three-letter abbreviation used by configuration
// documents ("Mon", "Tue", ...).
func (w Weekday) MarshalJSON() ([]byte, error) {
	if !w.Valid() {
		return nil, fmt.Errorf("weekday out of range: %d", int(w))
	}
	return json.Marshal(weekdayAbbrevs[w])
}

func (w *Weekday) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		parsed, perr := ParseWeekday(s)
		if perr != nil {
			return perr
		}
		*w = parsed
		return nil
	}
	var n int
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("weekday must be a name or a number: %s", b)
	}
	parsed := Weekday(n)
	if !parsed.Valid() {
		return fmt.Errorf("weekday number out of range: %d", n)
	}
	*w = parsed
	return nil
}

// WeekdayOf maps a wall-clock instant to its Weekday.
func WeekdayOf(t time.Time) Weekday { return Weekday(t.Weekday()) }
