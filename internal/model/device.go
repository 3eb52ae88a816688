package model

import "time"

type DeviceType string

const (
	DeviceDoser   DeviceType = "doser"
	DeviceLight   DeviceType = "light"
	DeviceUnknown DeviceType = "unknown"
)

// DeviceStatus is the backend's cached snapshot of one device.
type DeviceStatus struct {
	Address    string         `json:"address"`
	DeviceType DeviceType     `json:"device_type"`
	Connected  bool           `json:"connected"`
	ModelName  string         `json:"model_name,omitempty"`
	Channels   []string       `json:"channels,omitempty"`
	RawPayload string         `json:"raw_payload,omitempty"`
	Parsed     map[string]any `json:"parsed,omitempty"`
	UpdatedAt  float64        `json:"updated_at"`
}

// DeviceRecord is the store-owned view of one device: the last status
// snapshot plus the UI-facing loading and error state.
type DeviceRecord struct {
	Address       string
	Status        *DeviceStatus
	Configuration *DeviceConfiguration
	LastUpdated   time.Time
	Loading       bool
	Error         string
}

func (d *DeviceRecord) Connected() bool {
	return d.Status != nil && d.Status.Connected
}

// Clone returns a deep copy so callers can never alias store-owned memory.
func (d *DeviceRecord) Clone() *DeviceRecord {
	if d == nil {
		return nil
	}
	out := *d
	out.Status = d.Status.clone()
	out.Configuration = d.Configuration.Clone()
	return &out
}

func (s *DeviceStatus) clone() *DeviceStatus {
	if s == nil {
		return nil
	}
	out := *s
	if s.Channels != nil {
		out.Channels = append([]string(nil), s.Channels...)
	}
	if s.Parsed != nil {
		out.Parsed = make(map[string]any, len(s.Parsed))
		for k, v := range s.Parsed {
			out.Parsed[k] = v
		}
	}
	return &out
}
