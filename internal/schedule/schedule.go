// Package schedule classifies lighting auto programs against wall-clock
// time. Everything here is a pure function of its inputs so callers can
// evaluate any instant, and tests any scenario, without shared state.
package schedule

import (
	"fmt"
	"sort"
	"time"

	"aquadeck/internal/model"
)

type Status string

const (
	StatusCurrent  Status = "current"
	StatusNext     Status = "next"
	StatusUpcoming Status = "upcoming"
	StatusDisabled Status = "disabled"
)

const minutesPerDay = 24 * 60

// Occurrence is the next start of a program relative to the evaluation time.
// Minutes is sunrise minutes plus a whole-day offset, so occurrences on
// different days compare directly.
type Occurrence struct {
	Day       model.Weekday
	DaysAhead int
	Time      string
	Minutes   int
}

func (o Occurrence) String() string {
	switch o.DaysAhead {
	case 0:
		return fmt.Sprintf("today at %s", o.Time)
	case 1:
		return fmt.Sprintf("tomorrow at %s", o.Time)
	default:
		return fmt.Sprintf("%s at %s", o.Day, o.Time)
	}
}

// Entry is one program with its classification. Next is set for next and
// upcoming entries when an occurrence exists.
type Entry struct {
	Program model.AutoProgram
	Status  Status
	Next    *Occurrence
}

// InWindow reports whether a minutes-since-midnight instant falls inside the
// program's sunrise..sunset window. A window whose sunset is before its
// sunrise spans midnight: the instant matches if it is after sunrise or
// before sunset. Unparseable times never match.
func InWindow(p model.AutoProgram, minutes int) bool {
	sunrise, err := model.ClockMinutes(p.Sunrise)
	if err != nil {
		return false
	}
	sunset, err := model.ClockMinutes(p.Sunset)
	if err != nil {
		return false
	}
	if sunrise <= sunset {
		return sunrise <= minutes && minutes <= sunset
	}
	return minutes >= sunrise || minutes <= sunset
}

// ActiveAt reports whether the program is running at the given weekday and
// minutes-since-midnight.
func ActiveAt(p model.AutoProgram, day model.Weekday, minutes int) bool {
	if !p.Enabled {
		return false
	}
	if !containsDay(p.Days, day) {
		return false
	}
	return InWindow(p, minutes)
}

// NextOccurrence finds the program's next start: today at sunrise if the
// program runs today and has not started yet, otherwise the first matching
// weekday within the coming week. Returns false when the program's day set
// never matches.
func NextOccurrence(p model.AutoProgram, day model.Weekday, minutes int) (Occurrence, bool) {
	sunrise, err := model.ClockMinutes(p.Sunrise)
	if err != nil {
		return Occurrence{}, false
	}
	if containsDay(p.Days, day) && minutes < sunrise {
		return Occurrence{Day: day, DaysAhead: 0, Time: p.Sunrise, Minutes: sunrise}, true
	}
	for ahead := 1; ahead <= 7; ahead++ {
		check := model.Weekday((int(day) + ahead) % 7)
		if containsDay(p.Days, check) {
			return Occurrence{
				Day:       check,
				DaysAhead: ahead,
				Time:      p.Sunrise,
				Minutes:   sunrise + ahead*minutesPerDay,
			}, true
		}
	}
	return Occurrence{}, false
}

// CurrentProgram picks the single program considered active right now. When
// windows overlap the one with the latest sunrise wins; the light holds only
// one window at a time, so the most recently started program is the one the
// hardware is actually applying.
func CurrentProgram(programs []model.AutoProgram, now time.Time) (model.AutoProgram, bool) {
	day := model.WeekdayOf(now)
	minutes := now.Hour()*60 + now.Minute()

	best := -1
	bestSunrise := -1
	for i, p := range programs {
		if !ActiveAt(p, day, minutes) {
			continue
		}
		sunrise, err := model.ClockMinutes(p.Sunrise)
		if err != nil {
			continue
		}
		if sunrise > bestSunrise {
			best = i
			bestSunrise = sunrise
		}
	}
	if best < 0 {
		return model.AutoProgram{}, false
	}
	return programs[best], true
}

// SchedulesInOrder classifies every program and returns them in display
// order: active programs first, then the single nearest next start, then the
// remaining enabled programs by their next occurrence, then disabled
// programs. Ties order by label; duplicate ids are dropped after their first
// appearance.
func SchedulesInOrder(programs []model.AutoProgram, now time.Time) []Entry {
	if len(programs) == 0 {
		return nil
	}

	day := model.WeekdayOf(now)
	minutes := now.Hour()*60 + now.Minute()

	seen := make(map[string]bool, len(programs))
	var current, pending, disabled []model.AutoProgram
	for _, p := range programs {
		if seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		switch {
		case !p.Enabled:
			disabled = append(disabled, p)
		case ActiveAt(p, day, minutes):
			current = append(current, p)
		default:
			pending = append(pending, p)
		}
	}

	occurrences := make(map[string]*Occurrence, len(pending))
	for _, p := range pending {
		if occ, ok := NextOccurrence(p, day, minutes); ok {
			o := occ
			occurrences[p.ID] = &o
		}
	}

	// The nearest pending start becomes "next"; ties break on label.
	nextID := ""
	for _, p := range pending {
		occ := occurrences[p.ID]
		if occ == nil {
			continue
		}
		if nextID == "" {
			nextID = p.ID
			continue
		}
		best := occurrences[nextID]
		if occ.Minutes < best.Minutes || (occ.Minutes == best.Minutes && p.Label < labelOf(pending, nextID)) {
			nextID = p.ID
		}
	}

	sortByLabel(current)
	sort.SliceStable(pending, func(i, j int) bool {
		oi, oj := occurrences[pending[i].ID], occurrences[pending[j].ID]
		switch {
		case oi == nil && oj == nil:
			return pending[i].Label < pending[j].Label
		case oi == nil:
			return false
		case oj == nil:
			return true
		case oi.Minutes != oj.Minutes:
			return oi.Minutes < oj.Minutes
		}
		return pending[i].Label < pending[j].Label
	})
	sortByLabel(disabled)

	out := make([]Entry, 0, len(current)+len(pending)+len(disabled))
	for _, p := range current {
		out = append(out, Entry{Program: p, Status: StatusCurrent})
	}
	for _, p := range pending {
		if p.ID == nextID {
			out = append(out, Entry{Program: p, Status: StatusNext, Next: occurrences[p.ID]})
		}
	}
	for _, p := range pending {
		if p.ID == nextID {
			continue
		}
		out = append(out, Entry{Program: p, Status: StatusUpcoming, Next: occurrences[p.ID]})
	}
	for _, p := range disabled {
		out = append(out, Entry{Program: p, Status: StatusDisabled})
	}
	return out
}

func containsDay(days []model.Weekday, day model.Weekday) bool {
	for _, d := range days {
		if d == day {
			return true
		}
	}
	return false
}

func labelOf(programs []model.AutoProgram, id string) string {
	for _, p := range programs {
		if p.ID == id {
			return p.Label
		}
	}
	return ""
}

func sortByLabel(programs []model.AutoProgram) {
	sort.SliceStable(programs, func(i, j int) bool {
		return programs[i].Label < programs[j].Label
	})
}
