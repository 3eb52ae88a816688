package model

import (
	"fmt"
	"strconv"
	"strings"
)

// MaxAutoPrograms caps how many auto programs a light profile may hold,
// matching the firmware's slot limit.
const MaxAutoPrograms = 7

// AutoProgram is one recurring lighting window: on the listed days the light
// ramps up at sunrise and back down at sunset.
type AutoProgram struct {
	ID          string         `json:"id"`
	Label       string         `json:"label,omitempty"`
	Enabled     bool           `json:"enabled"`
	Days        []Weekday      `json:"days"`
	Sunrise     string         `json:"sunrise"`
	Sunset      string         `json:"sunset"`
	RampMinutes int            `json:"rampMinutes"`
	Levels      map[string]int `json:"levels"`
}

func (p *AutoProgram) Validate() error {
	if len(p.Days) == 0 {
		return fmt.Errorf("program %s: at least one day required", p.ID)
	}
	seen := make(map[Weekday]bool, len(p.Days))
	for _, d := range p.Days {
		if !d.Valid() {
			return fmt.Errorf("program %s: invalid weekday %d", p.ID, int(d))
		}
		if seen[d] {
			return fmt.Errorf("program %s: duplicate day %s", p.ID, d)
		}
		seen[d] = true
	}
	if _, err := ClockMinutes(p.Sunrise); err != nil {
		return fmt.Errorf("program %s: sunrise: %w", p.ID, err)
	}
	if _, err := ClockMinutes(p.Sunset); err != nil {
		return fmt.Errorf("program %s: sunset: %w", p.ID, err)
	}
	if p.RampMinutes < 0 {
		return fmt.Errorf("program %s: rampMinutes must not be negative", p.ID)
	}
	for channel, level := range p.Levels {
		if level < 0 || level > 100 {
			return fmt.Errorf("program %s: level for %s must be 0-100, got %d", p.ID, channel, level)
		}
	}
	return nil
}

func (p *AutoProgram) clone() AutoProgram {
	out := *p
	out.Days = append([]Weekday(nil), p.Days...)
	if p.Levels != nil {
		out.Levels = make(map[string]int, len(p.Levels))
		for k, v := range p.Levels {
			out.Levels[k] = v
		}
	}
	return out
}

// DeviceConfiguration is the configuration document served by the backend:
// naming, settings, and the auto programs of the active revision.
type DeviceConfiguration struct {
	Address       string        `json:"address"`
	Name          string        `json:"name,omitempty"`
	Timezone      string        `json:"timezone,omitempty"`
	AutoReconnect bool          `json:"autoReconnect,omitempty"`
	HeadNames     []string      `json:"headNames,omitempty"`
	Channels      []string      `json:"channels,omitempty"`
	AutoPrograms  []AutoProgram `json:"autoPrograms,omitempty"`
	Revision      int           `json:"revision,omitempty"`
	UpdatedAt     float64       `json:"updated_at,omitempty"`
}

func (c *DeviceConfiguration) Clone() *DeviceConfiguration {
	if c == nil {
		return nil
	}
	out := *c
	if c.HeadNames != nil {
		out.HeadNames = append([]string(nil), c.HeadNames...)
	}
	if c.Channels != nil {
		out.Channels = append([]string(nil), c.Channels...)
	}
	if c.AutoPrograms != nil {
		out.AutoPrograms = make([]AutoProgram, 0, len(c.AutoPrograms))
		for i := range c.AutoPrograms {
			out.AutoPrograms = append(out.AutoPrograms, c.AutoPrograms[i].clone())
		}
	}
	return &out
}

// NamingUpdate is the PATCH body for renaming a device and its doser heads.
type NamingUpdate struct {
	Name      *string  `json:"name,omitempty"`
	HeadNames []string `json:"headNames,omitempty"`
}

// SettingsUpdate is the PATCH body for settings changes kept separate from
// naming so the two can be updated independently.
type SettingsUpdate struct {
	AutoReconnect *bool         `json:"autoReconnect,omitempty"`
	Timezone      *string       `json:"timezone,omitempty"`
	AutoPrograms  []AutoProgram `json:"autoPrograms,omitempty"`
}

// ClockMinutes parses an "HH:MM" wall-clock string into minutes since
// midnight.
func ClockMinutes(s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 || len(parts[0]) != 2 || len(parts[1]) != 2 {
		return 0, fmt.Errorf("time must be HH:MM, got %q", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("time must be HH:MM, got %q", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("time must be HH:MM, got %q", s)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("time out of range: %q", s)
	}
	return hour*60 + minute, nil
}
