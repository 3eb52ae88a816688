package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClockMinutes(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    int
		wantErr bool
	}{
		{"midnight", "00:00", 0, false},
		{"morning", "08:30", 510, false},
		{"end of day", "23:59", 1439, false},
		{"hour out of range", "24:00", 0, true},
		{"minute out of range", "12:60", 0, true},
		{"missing leading zero", "8:30", 0, true},
		{"not a time", "noon", 0, true},
		{"empty", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ClockMinutes(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseWeekday(t *testing.T) {
	tests := []struct {
		in      string
		want    Weekday
		wantErr bool
	}{
		{"Sun", Sunday, false},
		{"monday", Monday, false},
		{"WED", Wednesday, false},
		{"6", Saturday, false},
		{"0", Sunday, false},
		{"7", 0, true},
		{"Funday", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseWeekday(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWeekdayJSON(t *testing.T) {
	b, err := json.Marshal([]Weekday{Monday, Saturday})
	require.NoError(t, err)
	assert.JSONEq(t, `["Mon","Sat"]`, string(b))

	var days []Weekday
	require.NoError(t, json.Unmarshal([]byte(`["Tue", "sunday", 5]`), &days))
	assert.Equal(t, []Weekday{Tuesday, Sunday, Friday}, days)

	assert.Error(t, json.Unmarshal([]byte(`["Noday"]`), &days))
}

func TestAutoProgramValidate(t *testing.T) {
	valid := AutoProgram{
		ID:      "p1",
		Enabled: true,
		Days:    []Weekday{Monday, Tuesday},
		Sunrise: "08:00",
		Sunset:  "18:00",
		Levels:  map[string]int{"red": 80, "white": 100},
	}
	assert.NoError(t, valid.Validate())

	t.Run("no days", func(t *testing.T) {
		p := valid
		p.Days = nil
		assert.Error(t, p.Validate())
	})

	t.Run("duplicate day", func(t *testing.T) {
		p := valid
		p.Days = []Weekday{Monday, Monday}
		assert.Error(t, p.Validate())
	})

	t.Run("bad sunset", func(t *testing.T) {
		p := valid
		p.Sunset = "25:00"
		assert.Error(t, p.Validate())
	})

	t.Run("level out of range", func(t *testing.T) {
		p := valid
		p.Levels = map[string]int{"red": 101}
		assert.Error(t, p.Validate())
	})
}

func TestDeviceRecordClone(t *testing.T) {
	rec := &DeviceRecord{
		Address: "AA:BB",
		Status: &DeviceStatus{
			Address:   "AA:BB",
			Connected: true,
			Channels:  []string{"red"},
			Parsed:    map[string]any{"mode": "auto"},
		},
		Configuration: &DeviceConfiguration{
			Name: "Tank light",
			AutoPrograms: []AutoProgram{{
				ID:     "p1",
				Days:   []Weekday{Monday},
				Levels: map[string]int{"red": 50},
			}},
		},
	}

	clone := rec.Clone()
	clone.Status.Connected = false
	clone.Status.Parsed["mode"] = "manual"
	clone.Configuration.AutoPrograms[0].Levels["red"] = 0
	clone.Configuration.AutoPrograms[0].Days[0] = Friday

	assert.True(t, rec.Status.Connected)
	assert.Equal(t, "auto", rec.Status.Parsed["mode"])
	assert.Equal(t, 50, rec.Configuration.AutoPrograms[0].Levels["red"])
	assert.Equal(t, Monday, rec.Configuration.AutoPrograms[0].Days[0])

	var nilRec *DeviceRecord
	assert.Nil(t, nilRec.Clone())
}
