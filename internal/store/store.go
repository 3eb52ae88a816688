// Package store is the single source of truth for device state. It owns the
// device map, the command queue, and the notification list, and it is the
// only component that talks to the command backend. Consumers read snapshots
// and mutate state through the action methods only.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"aquadeck/internal/datadog"
	"aquadeck/internal/model"
)

// Backend is the slice of the command API the store drives.
type Backend interface {
	Status(ctx context.Context) (map[string]model.DeviceStatus, error)
	Scan(ctx context.Context, timeout time.Duration) ([]model.DeviceStatus, error)
	Connect(ctx context.Context, address string) (*model.DeviceStatus, error)
	Disconnect(ctx context.Context, address string) error
	RequestStatus(ctx context.Context, address string) error
	ExecuteCommand(ctx context.Context, address string, req model.CommandRequest) (*model.CommandRecord, error)
	ListCommands(ctx context.Context, address string, limit int) ([]model.CommandRecord, error)
	Configurations(ctx context.Context, address string) (*model.DeviceConfiguration, error)
	PutConfigurations(ctx context.Context, address string, conf *model.DeviceConfiguration) error
	PatchNaming(ctx context.Context, address string, upd model.NamingUpdate) error
	PatchSettings(ctx context.Context, address string, upd model.SettingsUpdate) error
}

// Journal records drained commands locally so history survives backend
// outages.
type Journal interface {
	Record(rec *model.CommandRecord) error
	History(address string, limit int) ([]model.CommandRecord, error)
}

// Notifier pushes persistent error notifications to an external channel.
type Notifier interface {
	Send(title, message string) error
}

const defaultAutoHideDelay = 5 * time.Second

type Store struct {
	backend  Backend
	journal  Journal
	notifier Notifier
	clock    func() time.Time
	genID    func() string

	autoDrain     bool
	autoHideDelay time.Duration

	mu            sync.Mutex
	devices       map[string]*model.DeviceRecord
	queue         []model.QueuedCommand
	notifications []model.Notification
	hideTimers    map[string]*time.Timer
	drainState    DrainState
	confLoaded    bool
	globalErr     string
	pollInterval  time.Duration
	poll          *PollHandle
}

type Option func(*Store)

// WithJournal records every drained command in the given journal.
func WithJournal(j Journal) Option {
	return func(s *Store) { s.journal = j }
}

// WithNotifier forwards persistent error notifications to an external
// publisher.
func WithNotifier(n Notifier) Option {
	return func(s *Store) { s.notifier = n }
}

// WithClock overrides the wall clock.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) { s.clock = clock }
}

// WithAutoHideDelay overrides how long auto-hide notifications stay visible.
func WithAutoHideDelay(d time.Duration) Option {
	return func(s *Store) { s.autoHideDelay = d }
}

// WithoutAutoDrain disables the drain goroutine kicked off by QueueCommand.
// Callers then drive the queue with ProcessQueue, which short-lived tools do
// to drain synchronously before exiting.
func WithoutAutoDrain() Option {
	return func(s *Store) { s.autoDrain = false }
}

func New(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend:       backend,
		clock:         time.Now,
		genID:         uuid.NewString,
		autoDrain:     true,
		autoHideDelay: defaultAutoHideDelay,
		devices:       make(map[string]*model.DeviceRecord),
		hideTimers:    make(map[string]*time.Timer),
		drainState:    DrainIdle,
		pollInterval:  30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetDevices replaces the device map from a bulk status fetch. Loading flags
// and cached configurations carry over so a fetch landing mid-command cannot
// mask the in-flight indicator; errors reset because the fetch proves the
// backend reachable again.
func (s *Store) SetDevices(statuses map[string]model.DeviceStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	next := make(map[string]*model.DeviceRecord, len(statuses))
	for address, status := range statuses {
		st := status
		rec := &model.DeviceRecord{
			Address:     address,
			Status:      &st,
			LastUpdated: now,
		}
		if prev, ok := s.devices[address]; ok {
			rec.Loading = prev.Loading
			rec.Configuration = prev.Configuration
		}
		next[address] = rec
	}
	s.devices = next

	connected := 0
	for _, rec := range next {
		if rec.Connected() {
			connected++
		}
	}
	datadog.Gauge("devices.tracked", float64(len(next)))
	datadog.Gauge("devices.connected", float64(connected))
}

// UpdateDevice applies a single status snapshot after a targeted action.
func (s *Store) UpdateDevice(address string, status *model.DeviceStatus) {
	if status == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := &model.DeviceRecord{
		Address:     address,
		Status:      status,
		LastUpdated: s.clock(),
	}
	if prev, ok := s.devices[address]; ok {
		rec.Loading = prev.Loading
		rec.Configuration = prev.Configuration
	}
	s.devices[address] = rec
}

// SetDeviceLoading marks or clears the in-flight indicator. Unknown
// addresses are ignored.
func (s *Store) SetDeviceLoading(address string, loading bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLoadingLocked(address, loading)
}

func (s *Store) setLoadingLocked(address string, loading bool) {
	rec, ok := s.devices[address]
	if !ok {
		return
	}
	rec.Loading = loading
	rec.LastUpdated = s.clock()
}

// SetDeviceError records a user-facing error message on the device. An empty
// message clears it. Unknown addresses are ignored.
func (s *Store) SetDeviceError(address, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setErrorLocked(address, message)
}

func (s *Store) setErrorLocked(address, message string) {
	rec, ok := s.devices[address]
	if !ok {
		return
	}
	rec.Error = message
	rec.LastUpdated = s.clock()
}

// Device returns a deep copy of one record.
func (s *Store) Device(address string) (*model.DeviceRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.devices[address]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// Devices returns deep copies of all records sorted by address.
func (s *Store) Devices() []*model.DeviceRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*model.DeviceRecord, 0, len(s.devices))
	for _, rec := range s.devices {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// GlobalError returns the message from the last failed bulk refresh, empty
// once a refresh succeeds again.
func (s *Store) GlobalError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.globalErr
}

// RefreshDevices fetches the full status map and replaces the device map.
// Failures are recorded as the global error and returned so callers can
// react as well.
func (s *Store) RefreshDevices(ctx context.Context) error {
	statuses, err := s.backend.Status(ctx)
	if err != nil {
		msg := FailureMessage(err)
		s.mu.Lock()
		s.globalErr = msg
		s.mu.Unlock()
		log.Error().Err(err).Msg("Device status refresh failed")
		return fmt.Errorf("refresh devices: %w", err)
	}

	s.SetDevices(statuses)
	s.mu.Lock()
	s.globalErr = ""
	s.mu.Unlock()
	log.Debug().Int("devices", len(statuses)).Msg("Device status refreshed")
	return nil
}

// RefreshDevice asks the backend to re-read one device, then reconciles the
// whole map rather than merging partially.
func (s *Store) RefreshDevice(ctx context.Context, address string) error {
	s.SetDeviceLoading(address, true)
	defer s.SetDeviceLoading(address, false)

	if err := s.backend.RequestStatus(ctx, address); err != nil {
		msg := FailureMessage(err)
		s.SetDeviceError(address, msg)
		log.Error().Err(err).Str("address", address).Msg("Device refresh request failed")
		return fmt.Errorf("refresh device %s: %w", address, err)
	}
	return s.RefreshDevices(ctx)
}

// ConnectDevice establishes a connection, applies the returned status, and
// reconciles the full map. Failures are recorded on the device and returned.
func (s *Store) ConnectDevice(ctx context.Context, address string) error {
	s.SetDeviceLoading(address, true)
	defer s.SetDeviceLoading(address, false)

	status, err := s.backend.Connect(ctx, address)
	if err != nil {
		msg := FailureMessage(err)
		s.SetDeviceError(address, msg)
		s.AddNotification(model.Notification{Type: model.NotifyError, Message: msg})
		log.Error().Err(err).Str("address", address).Msg("Device connect failed")
		return fmt.Errorf("connect %s: %w", address, err)
	}

	s.UpdateDevice(address, status)
	s.AddNotification(model.Notification{
		Type:     model.NotifySuccess,
		Message:  fmt.Sprintf("Connected to %s", address),
		AutoHide: true,
	})
	log.Info().Str("address", address).Msg("Device connected")
	return s.RefreshDevices(ctx)
}

// DisconnectDevice drops the backend's connection to the device.
func (s *Store) DisconnectDevice(ctx context.Context, address string) error {
	s.SetDeviceLoading(address, true)
	defer s.SetDeviceLoading(address, false)

	if err := s.backend.Disconnect(ctx, address); err != nil {
		msg := FailureMessage(err)
		s.SetDeviceError(address, msg)
		s.AddNotification(model.Notification{Type: model.NotifyError, Message: msg})
		log.Error().Err(err).Str("address", address).Msg("Device disconnect failed")
		return fmt.Errorf("disconnect %s: %w", address, err)
	}

	s.AddNotification(model.Notification{
		Type:     model.NotifyInfo,
		Message:  fmt.Sprintf("Disconnected from %s", address),
		AutoHide: true,
	})
	log.Info().Str("address", address).Msg("Device disconnected")
	return s.RefreshDevices(ctx)
}

// Scan discovers nearby devices without adding them to the tracked map.
func (s *Store) Scan(ctx context.Context, timeout time.Duration) ([]model.DeviceStatus, error) {
	devices, err := s.backend.Scan(ctx, timeout)
	if err != nil {
		msg := FailureMessage(err)
		s.mu.Lock()
		s.globalErr = msg
		s.mu.Unlock()
		log.Error().Err(err).Msg("Device scan failed")
		return nil, fmt.Errorf("scan: %w", err)
	}
	log.Info().Int("found", len(devices)).Msg("Device scan complete")
	return devices, nil
}

// Configuration returns the device's configuration document, fetching and
// caching it on first access.
func (s *Store) Configuration(ctx context.Context, address string) (*model.DeviceConfiguration, error) {
	s.mu.Lock()
	if rec, ok := s.devices[address]; ok && rec.Configuration != nil {
		conf := rec.Configuration.Clone()
		s.mu.Unlock()
		return conf, nil
	}
	s.mu.Unlock()

	conf, err := s.backend.Configurations(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("load configuration for %s: %w", address, err)
	}

	s.mu.Lock()
	if rec, ok := s.devices[address]; ok {
		rec.Configuration = conf.Clone()
	}
	s.mu.Unlock()
	return conf, nil
}

// LoadConfigurations warms the configuration cache for every tracked device.
// Individual fetch failures are logged and skipped; the cache counts as
// loaded either way so polling can begin.
func (s *Store) LoadConfigurations(ctx context.Context) {
	for _, rec := range s.Devices() {
		if rec.Configuration != nil {
			continue
		}
		if _, err := s.Configuration(ctx, rec.Address); err != nil {
			log.Warn().Err(err).Str("address", rec.Address).Msg("Could not load device configuration")
		}
	}

	s.mu.Lock()
	s.confLoaded = true
	s.mu.Unlock()
}

// ConfigurationsLoaded reports whether the initial configuration load has
// completed.
func (s *Store) ConfigurationsLoaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.confLoaded
}

// SaveConfiguration replaces the device's configuration document on the
// backend and drops the cached copy so the next read sees the saved state.
func (s *Store) SaveConfiguration(ctx context.Context, address string, conf *model.DeviceConfiguration) error {
	if err := s.backend.PutConfigurations(ctx, address, conf); err != nil {
		msg := FailureMessage(err)
		s.SetDeviceError(address, msg)
		s.AddNotification(model.Notification{Type: model.NotifyError, Message: msg})
		return fmt.Errorf("save configuration for %s: %w", address, err)
	}
	s.invalidateConfiguration(address)
	s.AddNotification(model.Notification{
		Type:     model.NotifySuccess,
		Message:  "Configuration saved",
		AutoHide: true,
	})
	return nil
}

// RenameDevice updates naming fields only.
func (s *Store) RenameDevice(ctx context.Context, address string, upd model.NamingUpdate) error {
	if err := s.backend.PatchNaming(ctx, address, upd); err != nil {
		msg := FailureMessage(err)
		s.SetDeviceError(address, msg)
		s.AddNotification(model.Notification{Type: model.NotifyError, Message: msg})
		return fmt.Errorf("rename %s: %w", address, err)
	}
	s.invalidateConfiguration(address)
	return nil
}

// UpdateDeviceSettings updates settings fields independently of naming.
func (s *Store) UpdateDeviceSettings(ctx context.Context, address string, upd model.SettingsUpdate) error {
	if err := s.backend.PatchSettings(ctx, address, upd); err != nil {
		msg := FailureMessage(err)
		s.SetDeviceError(address, msg)
		s.AddNotification(model.Notification{Type: model.NotifyError, Message: msg})
		return fmt.Errorf("update settings for %s: %w", address, err)
	}
	s.invalidateConfiguration(address)
	return nil
}

func (s *Store) invalidateConfiguration(address string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.devices[address]; ok {
		rec.Configuration = nil
		rec.LastUpdated = s.clock()
	}
}

// CommandHistory lists recent command records for a device, falling back to
// the local journal when the backend is unreachable.
func (s *Store) CommandHistory(ctx context.Context, address string, limit int) ([]model.CommandRecord, error) {
	recs, err := s.backend.ListCommands(ctx, address, limit)
	if err == nil {
		return recs, nil
	}
	if s.journal == nil {
		return nil, fmt.Errorf("list commands for %s: %w", address, err)
	}
	log.Warn().Err(err).Str("address", address).Msg("Backend history unavailable, reading local journal")
	local, jerr := s.journal.History(address, limit)
	if jerr != nil {
		return nil, fmt.Errorf("list commands for %s: %w", address, err)
	}
	return local, nil
}
