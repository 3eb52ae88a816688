package model

import (
	"encoding/json"
	"fmt"
	"time"
)

type CommandStatus string

const (
	CommandPending  CommandStatus = "pending"
	CommandRunning  CommandStatus = "running"
	CommandSuccess  CommandStatus = "success"
	CommandFailed   CommandStatus = "failed"
	CommandTimedOut CommandStatus = "timed_out"
	CommandCancel   CommandStatus = "cancelled"
)

// Terminal reports whether no further status transition can occur.
func (s CommandStatus) Terminal() bool {
	switch s {
	case CommandSuccess, CommandFailed, CommandTimedOut, CommandCancel:
		return true
	}
	return false
}

// Command actions accepted by the backend.
const (
	ActionTurnOn            = "turn_on"
	ActionTurnOff           = "turn_off"
	ActionSetBrightness     = "set_brightness"
	ActionEnableAutoMode    = "enable_auto_mode"
	ActionSetManualMode     = "set_manual_mode"
	ActionResetAutoSettings = "reset_auto_settings"
	ActionAddAutoSetting    = "add_auto_setting"
	ActionSetSchedule       = "set_schedule"
)

// Timeout bounds in seconds, enforced on requests that set one.
const (
	DefaultTimeoutSeconds = 10.0
	MinTimeoutSeconds     = 1.0
	MaxTimeoutSeconds     = 30.0
)

// CommandRecord is the server's authoritative record of a dispatched command.
// Timestamps are unix seconds as served by the backend.
type CommandRecord struct {
	ID          string         `json:"id"`
	Address     string         `json:"address"`
	Action      string         `json:"action"`
	Args        map[string]any `json:"args,omitempty"`
	Status      CommandStatus  `json:"status"`
	Attempts    int            `json:"attempts"`
	Result      map[string]any `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
	ErrorCode   string         `json:"error_code,omitempty"`
	CreatedAt   float64        `json:"created_at"`
	StartedAt   *float64       `json:"started_at,omitempty"`
	CompletedAt *float64       `json:"completed_at,omitempty"`
	Timeout     float64        `json:"timeout,omitempty"`
}

// CommandRequest is the body POSTed to the command endpoint. Args is typed
// per action and validated before the request may enter the queue.
type CommandRequest struct {
	ID      string      `json:"id,omitempty"`
	Action  string      `json:"action"`
	Args    CommandArgs `json:"args,omitempty"`
	Timeout float64     `json:"timeout,omitempty"`
}

// QueuedCommand is one entry in the store's dispatch queue.
type QueuedCommand struct {
	ID         string
	Address    string
	Request    CommandRequest
	QueuedAt   time.Time
	RetryCount int
}

// CommandArgs is implemented by the typed argument payloads. Actions without
// parameters carry a nil Args.
type CommandArgs interface {
	Validate() error
}

// BrightnessArgs parameterizes set_brightness.
type BrightnessArgs struct {
	Brightness int `json:"brightness"`
	Color      int `json:"color"`
}

func (a BrightnessArgs) Validate() error {
	if a.Brightness < 0 || a.Brightness > 100 {
		return fmt.Errorf("brightness must be 0-100, got %d", a.Brightness)
	}
	if a.Color < 0 || a.Color > 5 {
		return fmt.Errorf("color index must be 0-5, got %d", a.Color)
	}
	return nil
}

// AutoSettingArgs parameterizes add_auto_setting. The weekday list marshals
// as the lowercase day names the light firmware commands use.
type AutoSettingArgs struct {
	Sunrise       string        `json:"sunrise"`
	Sunset        string        `json:"sunset"`
	Brightness    int           `json:"brightness"`
	RampUpMinutes int           `json:"ramp_up_minutes"`
	Weekdays      LightWeekdays `json:"weekdays,omitempty"`
}

func (a AutoSettingArgs) Validate() error {
	if _, err := ClockMinutes(a.Sunrise); err != nil {
		return fmt.Errorf("sunrise: %w", err)
	}
	if _, err := ClockMinutes(a.Sunset); err != nil {
		return fmt.Errorf("sunset: %w", err)
	}
	if a.Brightness < 0 || a.Brightness > 100 {
		return fmt.Errorf("brightness must be 0-100, got %d", a.Brightness)
	}
	if a.RampUpMinutes < 0 {
		return fmt.Errorf("ramp_up_minutes must not be negative, got %d", a.RampUpMinutes)
	}
	for _, w := range a.Weekdays {
		if !w.Valid() {
			return fmt.Errorf("invalid weekday %d", int(w))
		}
	}
	return nil
}

// ScheduleArgs parameterizes set_schedule for one doser head.
type ScheduleArgs struct {
	HeadIndex      int          `json:"head_index"`
	VolumeTenthsML int          `json:"volume_tenths_ml"`
	Hour           int          `json:"hour"`
	Minute         int          `json:"minute"`
	Weekdays       PumpWeekdays `json:"weekdays,omitempty"`
	Confirm        bool         `json:"confirm"`
	WaitSeconds    float64      `json:"wait_seconds,omitempty"`
}

func (a ScheduleArgs) Validate() error {
	if a.HeadIndex < 0 || a.HeadIndex > 3 {
		return fmt.Errorf("head_index must be 0-3, got %d", a.HeadIndex)
	}
	if a.VolumeTenthsML < 0 || a.VolumeTenthsML > 65535 {
		return fmt.Errorf("volume_tenths_ml must be 0-65535, got %d", a.VolumeTenthsML)
	}
	if a.Hour < 0 || a.Hour > 23 {
		return fmt.Errorf("hour must be 0-23, got %d", a.Hour)
	}
	if a.Minute < 0 || a.Minute > 59 {
		return fmt.Errorf("minute must be 0-59, got %d", a.Minute)
	}
	if a.WaitSeconds != 0 && (a.WaitSeconds < 0.5 || a.WaitSeconds > 10) {
		return fmt.Errorf("wait_seconds must be 0.5-10, got %g", a.WaitSeconds)
	}
	for _, w := range a.Weekdays {
		if !w.Valid() {
			return fmt.Errorf("invalid weekday %d", int(w))
		}
	}
	return nil
}

// LightWeekdays marshals as lowercase full day names ("monday", ...).
type LightWeekdays []Weekday

func (w LightWeekdays) MarshalJSON() ([]byte, error) {
	names := make([]string, 0, len(w))
	for _, d := range w {
		if !d.Valid() {
			return nil, fmt.Errorf("invalid weekday %d", int(d))
		}
		names = append(names, d.Name())
	}
	return json.Marshal(names)
}

func (w *LightWeekdays) UnmarshalJSON(b []byte) error {
	var days []Weekday
	if err := json.Unmarshal(b, &days); err != nil {
		return err
	}
	*w = days
	return nil
}

// PumpWeekdays marshals as the doser firmware's weekday bitmask values.
type PumpWeekdays []Weekday

func (w PumpWeekdays) MarshalJSON() ([]byte, error) {
	bits := make([]int, 0, len(w))
	for _, d := range w {
		if !d.Valid() {
			return nil, fmt.Errorf("invalid weekday %d", int(d))
		}
		bits = append(bits, d.PumpBit())
	}
	return json.Marshal(bits)
}

func (w *PumpWeekdays) UnmarshalJSON(b []byte) error {
	var bits []int
	if err := json.Unmarshal(b, &bits); err != nil {
		return err
	}
	days := make([]Weekday, 0, len(bits))
	for _, bit := range bits {
		found := false
		for d := Sunday; d <= Saturday; d++ {
			if d.PumpBit() == bit {
				days = append(days, d)
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("unknown pump weekday bit %d", bit)
		}
	}
	*w = days
	return nil
}

// Validate checks the action is known, the args match the action's expected
// type and bounds, and any explicit timeout is within range. This runs at the
// queue boundary so malformed requests never reach the dispatch loop.
func (r *CommandRequest) Validate() error {
	switch r.Action {
	case ActionTurnOn, ActionTurnOff, ActionEnableAutoMode, ActionSetManualMode, ActionResetAutoSettings:
		if r.Args != nil {
			return fmt.Errorf("action %s takes no arguments", r.Action)
		}
	case ActionSetBrightness:
		if _, ok := r.Args.(BrightnessArgs); !ok {
			return fmt.Errorf("action %s requires brightness arguments", r.Action)
		}
	case ActionAddAutoSetting:
		if _, ok := r.Args.(AutoSettingArgs); !ok {
			return fmt.Errorf("action %s requires auto setting arguments", r.Action)
		}
	case ActionSetSchedule:
		if _, ok := r.Args.(ScheduleArgs); !ok {
			return fmt.Errorf("action %s requires schedule arguments", r.Action)
		}
	default:
		return fmt.Errorf("unknown action %q", r.Action)
	}
	if r.Args != nil {
		if err := r.Args.Validate(); err != nil {
			return fmt.Errorf("invalid arguments for %s: %w", r.Action, err)
		}
	}
	if r.Timeout != 0 && (r.Timeout < MinTimeoutSeconds || r.Timeout > MaxTimeoutSeconds) {
		return fmt.Errorf("timeout must be %g-%g seconds, got %g", MinTimeoutSeconds, MaxTimeoutSeconds, r.Timeout)
	}
	return nil
}

// DecodeArgs parses raw JSON arguments for a known action into the typed
// form, used when requests arrive over the wire rather than from a
// constructor.
func DecodeArgs(action string, raw json.RawMessage) (CommandArgs, error) {
	empty := len(raw) == 0 || string(raw) == "null" || string(raw) == "{}"
	switch action {
	case ActionTurnOn, ActionTurnOff, ActionEnableAutoMode, ActionSetManualMode, ActionResetAutoSettings:
		if !empty {
			return nil, fmt.Errorf("action %s takes no arguments", action)
		}
		return nil, nil
	case ActionSetBrightness:
		var a BrightnessArgs
		if err := json.Unmarshal(raw, &a); err != nil {
			return nil, fmt.Errorf("decode %s args: %w", action, err)
		}
		return a, nil
	case ActionAddAutoSetting:
		var a AutoSettingArgs
		if err := json.Unmarshal(raw, &a); err != nil {
			return nil, fmt.Errorf("decode %s args: %w", action, err)
		}
		return a, nil
	case ActionSetSchedule:
		var a ScheduleArgs
		if err := json.Unmarshal(raw, &a); err != nil {
			return nil, fmt.Errorf("decode %s args: %w", action, err)
		}
		return a, nil
	}
	return nil, fmt.Errorf("unknown action %q", action)
}

// Request constructors for each supported action.

func TurnOn() CommandRequest  { return CommandRequest{Action: ActionTurnOn} }
func TurnOff() CommandRequest { return CommandRequest{Action: ActionTurnOff} }

func SetBrightness(brightness, color int) CommandRequest {
	return CommandRequest{
		Action: ActionSetBrightness,
		Args:   BrightnessArgs{Brightness: brightness, Color: color},
	}
}

func EnableAutoMode() CommandRequest { return CommandRequest{Action: ActionEnableAutoMode} }
func SetManualMode() CommandRequest  { return CommandRequest{Action: ActionSetManualMode} }

func ResetAutoSettings() CommandRequest {
	return CommandRequest{Action: ActionResetAutoSettings}
}

func AddAutoSetting(sunrise, sunset string, brightness, rampUpMinutes int, weekdays []Weekday) CommandRequest {
	return CommandRequest{
		Action: ActionAddAutoSetting,
		Args: AutoSettingArgs{
			Sunrise:       sunrise,
			Sunset:        sunset,
			Brightness:    brightness,
			RampUpMinutes: rampUpMinutes,
			Weekdays:      weekdays,
		},
	}
}

func SetSchedule(headIndex, volumeTenthsML, hour, minute int, weekdays []Weekday) CommandRequest {
	return CommandRequest{
		Action: ActionSetSchedule,
		Args: ScheduleArgs{
			HeadIndex:      headIndex,
			VolumeTenthsML: volumeTenthsML,
			Hour:           hour,
			Minute:         minute,
			Weekdays:       weekdays,
			Confirm:        true,
			WaitSeconds:    2,
		},
	}
}
