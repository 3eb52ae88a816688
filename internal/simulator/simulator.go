// Package simulator is an in-process stand-in for the device command
// backend. It serves the same REST surface against simulated dosers and
// lights, with scriptable failures and latency, and backs both the test
// suites and the demo mode of the daemon.
package simulator

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"aquadeck/internal/model"
)

type simDevice struct {
	status model.DeviceStatus
	conf   *model.DeviceConfiguration
}

type scriptedFailure struct {
	errorCode string
	message   string
}

type Server struct {
	mu           sync.Mutex
	devices      map[string]*simDevice
	discoverable []model.DeviceStatus
	history      map[string][]model.CommandRecord
	byID         map[string]model.CommandRecord
	failures     map[string]scriptedFailure

	latency time.Duration
	clock   func() time.Time
}

type Option func(*Server)

// WithLatency delays command execution and scans, imitating slow radio
// round trips.
func WithLatency(d time.Duration) Option {
	return func(s *Server) { s.latency = d }
}

// WithClock overrides the wall clock.
func WithClock(clock func() time.Time) Option {
	return func(s *Server) { s.clock = clock }
}

func NewServer(opts ...Option) *Server {
	s := &Server{
		devices:  make(map[string]*simDevice),
		history:  make(map[string][]model.CommandRecord),
		byID:     make(map[string]model.CommandRecord),
		failures: make(map[string]scriptedFailure),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddDevice registers a tracked device.
func (s *Server) AddDevice(status model.DeviceStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	status.UpdatedAt = unixSeconds(s.clock())
	s.devices[status.Address] = &simDevice{status: status}
}

// AddDiscoverable registers a device that scans find but nothing tracks
// until it is connected.
func (s *Server) AddDiscoverable(status model.DeviceStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discoverable = append(s.discoverable, status)
}

// ScriptFailure makes every matching command fail with the given error code
// until cleared with an empty code.
func (s *Server) ScriptFailure(address, action, errorCode, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := address + "|" + action
	if errorCode == "" {
		delete(s.failures, key)
		return
	}
	s.failures[key] = scriptedFailure{errorCode: errorCode, message: message}
}

// Router builds the HTTP routing table. Serve it with http.Server or wrap it
// in httptest.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/scan", s.handleScan).Methods(http.MethodGet)
	r.HandleFunc("/api/devices/{address}/connect", s.handleConnect).Methods(http.MethodPost)
	r.HandleFunc("/api/devices/{address}/disconnect", s.handleDisconnect).Methods(http.MethodPost)
	r.HandleFunc("/api/devices/{address}/status", s.handleRequestStatus).Methods(http.MethodPost)
	r.HandleFunc("/api/devices/{address}/commands", s.handleExecuteCommand).Methods(http.MethodPost)
	r.HandleFunc("/api/devices/{address}/commands", s.handleListCommands).Methods(http.MethodGet)
	r.HandleFunc("/api/devices/{address}/configurations", s.handleGetConfigurations).Methods(http.MethodGet)
	r.HandleFunc("/api/devices/{address}/configurations", s.handlePutConfigurations).Methods(http.MethodPut)
	r.HandleFunc("/api/devices/{address}/configurations/naming", s.handlePatchNaming).Methods(http.MethodPatch)
	r.HandleFunc("/api/devices/{address}/configurations/settings", s.handlePatchSettings).Methods(http.MethodPatch)
	return r
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	statuses := make(map[string]model.DeviceStatus, len(s.devices))
	for address, dev := range s.devices {
		statuses[address] = dev.status
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, statuses)
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	s.sleep()

	s.mu.Lock()
	found := append([]model.DeviceStatus(nil), s.discoverable...)
	for _, dev := range s.devices {
		found = append(found, dev.status)
	}
	s.mu.Unlock()

	log.Debug().Int("found", len(found)).Str("timeout", r.URL.Query().Get("timeout")).Msg("Simulated scan")
	writeJSON(w, http.StatusOK, found)
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]

	s.mu.Lock()
	dev, ok := s.devices[address]
	if !ok {
		for i, d := range s.discoverable {
			if d.Address == address {
				dev = &simDevice{status: d}
				s.devices[address] = dev
				s.discoverable = append(s.discoverable[:i], s.discoverable[i+1:]...)
				ok = true
				break
			}
		}
	}
	if !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "Device not found")
		return
	}
	dev.status.Connected = true
	dev.status.UpdatedAt = unixSeconds(s.clock())
	status := dev.status
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]

	s.mu.Lock()
	dev, ok := s.devices[address]
	if ok {
		dev.status.Connected = false
		dev.status.UpdatedAt = unixSeconds(s.clock())
	}
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "Device not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "disconnected"})
}

func (s *Server) handleRequestStatus(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]

	s.mu.Lock()
	dev, ok := s.devices[address]
	if ok {
		dev.status.UpdatedAt = unixSeconds(s.clock())
	}
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "Device not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "requested"})
}

type executeRequest struct {
	ID      string          `json:"id"`
	Action  string          `json:"action"`
	Args    json.RawMessage `json:"args"`
	Timeout float64         `json:"timeout"`
}

func (s *Server) handleExecuteCommand(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]

	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Invalid JSON payload")
		return
	}

	args, err := model.DecodeArgs(req.Action, req.Args)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if req.Timeout == 0 {
		req.Timeout = model.DefaultTimeoutSeconds
	}
	if req.Timeout < model.MinTimeoutSeconds || req.Timeout > model.MaxTimeoutSeconds {
		writeError(w, http.StatusUnprocessableEntity,
			fmt.Sprintf("timeout must be between %.0f and %.0f seconds", model.MinTimeoutSeconds, model.MaxTimeoutSeconds))
		return
	}

	// Replaying an id returns the original record without re-executing.
	if req.ID != "" {
		s.mu.Lock()
		prior, seen := s.byID[req.ID]
		s.mu.Unlock()
		if seen {
			writeJSON(w, http.StatusOK, prior)
			return
		}
	}

	s.mu.Lock()
	dev, ok := s.devices[address]
	if !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "Device not found")
		return
	}
	script, failed := s.failures[address+"|"+req.Action]
	s.mu.Unlock()

	s.sleep()

	now := s.clock()
	started := unixSeconds(now)
	rec := model.CommandRecord{
		ID:        req.ID,
		Address:   address,
		Action:    req.Action,
		Attempts:  1,
		CreatedAt: started,
		StartedAt: &started,
		Timeout:   req.Timeout,
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if args != nil {
		payload, _ := json.Marshal(args)
		json.Unmarshal(payload, &rec.Args)
	}

	completed := unixSeconds(s.clock())
	rec.CompletedAt = &completed
	if failed {
		rec.Status = model.CommandFailed
		rec.ErrorCode = script.errorCode
		rec.Error = script.message
	} else {
		rec.Status = model.CommandSuccess
		rec.Result = map[string]any{"ok": true}
		s.mu.Lock()
		applyEffect(dev, req.Action, args)
		dev.status.Connected = true
		dev.status.UpdatedAt = completed
		s.mu.Unlock()
	}

	s.mu.Lock()
	s.history[address] = append(s.history[address], rec)
	s.byID[rec.ID] = rec
	s.mu.Unlock()

	log.Debug().
		Str("address", address).
		Str("action", req.Action).
		Str("status", string(rec.Status)).
		Msg("Simulated command")
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleListCommands(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusUnprocessableEntity, "limit must be a positive integer")
			return
		}
		limit = n
	}

	s.mu.Lock()
	all := s.history[address]
	recs := make([]model.CommandRecord, 0, limit)
	for i := len(all) - 1; i >= 0 && len(recs) < limit; i-- {
		recs = append(recs, all[i])
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleGetConfigurations(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]

	s.mu.Lock()
	dev, ok := s.devices[address]
	if !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "Device not found")
		return
	}
	if dev.conf == nil {
		dev.conf = defaultConfiguration(dev.status, s.clock())
	}
	conf := dev.conf.Clone()
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, conf)
}

func (s *Server) handlePutConfigurations(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]

	var conf model.DeviceConfiguration
	if err := json.NewDecoder(r.Body).Decode(&conf); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Invalid JSON payload")
		return
	}
	for i := range conf.AutoPrograms {
		if err := conf.AutoPrograms[i].Validate(); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
	}

	s.mu.Lock()
	dev, ok := s.devices[address]
	if !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "Device not found")
		return
	}
	conf.Address = address
	if dev.conf != nil {
		conf.Revision = dev.conf.Revision + 1
	}
	conf.UpdatedAt = unixSeconds(s.clock())
	dev.conf = conf.Clone()
	stored := dev.conf.Clone()
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, stored)
}

func (s *Server) handlePatchNaming(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]

	var upd model.NamingUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Invalid JSON payload")
		return
	}

	s.mu.Lock()
	dev, ok := s.devices[address]
	if !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "Device not found")
		return
	}
	if dev.conf == nil {
		dev.conf = defaultConfiguration(dev.status, s.clock())
	}
	if upd.Name != nil {
		dev.conf.Name = *upd.Name
	}
	if upd.HeadNames != nil {
		dev.conf.HeadNames = append([]string(nil), upd.HeadNames...)
	}
	dev.conf.Revision++
	dev.conf.UpdatedAt = unixSeconds(s.clock())
	conf := dev.conf.Clone()
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, conf)
}

func (s *Server) handlePatchSettings(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]

	var upd model.SettingsUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Invalid JSON payload")
		return
	}
	for i := range upd.AutoPrograms {
		if err := upd.AutoPrograms[i].Validate(); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
	}

	s.mu.Lock()
	dev, ok := s.devices[address]
	if !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "Device not found")
		return
	}
	if dev.conf == nil {
		dev.conf = defaultConfiguration(dev.status, s.clock())
	}
	if upd.AutoReconnect != nil {
		dev.conf.AutoReconnect = *upd.AutoReconnect
	}
	if upd.Timezone != nil {
		dev.conf.Timezone = *upd.Timezone
	}
	if upd.AutoPrograms != nil {
		dev.conf.AutoPrograms = append([]model.AutoProgram(nil), upd.AutoPrograms...)
	}
	dev.conf.Revision++
	dev.conf.UpdatedAt = unixSeconds(s.clock())
	conf := dev.conf.Clone()
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, conf)
}

// applyEffect folds a successful command into the device's parsed status so
// the dashboard sees state change across refreshes.
func applyEffect(dev *simDevice, action string, args model.CommandArgs) {
	if dev.status.Parsed == nil {
		dev.status.Parsed = make(map[string]any)
	}
	switch action {
	case model.ActionTurnOn:
		dev.status.Parsed["light_on"] = true
	case model.ActionTurnOff:
		dev.status.Parsed["light_on"] = false
	case model.ActionSetBrightness:
		if a, ok := args.(model.BrightnessArgs); ok {
			dev.status.Parsed["brightness"] = a.Brightness
		}
	case model.ActionEnableAutoMode:
		dev.status.Parsed["mode"] = "auto"
	case model.ActionSetManualMode:
		dev.status.Parsed["mode"] = "manual"
	case model.ActionResetAutoSettings:
		delete(dev.status.Parsed, "mode")
	}
}

func defaultConfiguration(status model.DeviceStatus, now time.Time) *model.DeviceConfiguration {
	name := status.ModelName
	if name == "" {
		name = status.Address
	}
	return &model.DeviceConfiguration{
		Address:       status.Address,
		Name:          name,
		Timezone:      "UTC",
		AutoReconnect: true,
		Channels:      append([]string(nil), status.Channels...),
		Revision:      1,
		UpdatedAt:     unixSeconds(now),
	}
}

func (s *Server) sleep() {
	if s.latency > 0 {
		time.Sleep(s.latency)
	}
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func writeJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"detail": message})
}
