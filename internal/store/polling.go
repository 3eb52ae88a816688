package store

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"aquadeck/internal/datadog"
)

// PollHandle controls one periodic refresh task.
type PollHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Stop cancels the polling task and waits for its goroutine to exit. Calling
// Stop again, or on a nil handle, does nothing.
func (h *PollHandle) Stop() {
	if h == nil {
		return
	}
	h.once.Do(func() {
		h.cancel()
		<-h.done
	})
}

// StartPolling begins refreshing device status every interval. A task that
// is already running is stopped first, so at most one polling task exists.
// An interval of zero or less keeps the store's current interval.
func (s *Store) StartPolling(interval time.Duration) *PollHandle {
	s.mu.Lock()
	if interval <= 0 {
		interval = s.pollInterval
	}
	prev := s.poll
	s.poll = nil
	s.mu.Unlock()
	prev.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	handle := &PollHandle{cancel: cancel, done: make(chan struct{})}

	s.mu.Lock()
	s.pollInterval = interval
	s.poll = handle
	s.mu.Unlock()

	go s.pollLoop(ctx, interval, handle.done)
	log.Info().Dur("interval", interval).Msg("Status polling started")
	return handle
}

// StopPolling stops the running polling task, if any.
func (s *Store) StopPolling() {
	s.mu.Lock()
	prev := s.poll
	s.poll = nil
	s.mu.Unlock()

	if prev != nil {
		prev.Stop()
		log.Info().Msg("Status polling stopped")
	}
}

// SetPollingInterval changes the refresh interval, restarting the polling
// task when one is running.
func (s *Store) SetPollingInterval(interval time.Duration) {
	if interval <= 0 {
		return
	}
	s.mu.Lock()
	running := s.poll != nil
	s.pollInterval = interval
	s.mu.Unlock()

	if running {
		s.StartPolling(interval)
	}
}

// Polling reports whether a polling task is active.
func (s *Store) Polling() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.poll != nil
}

func (s *Store) pollLoop(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pollTick(ctx)
		}
	}
}

// pollTick refreshes device status unless the store is not ready for it yet.
// Skips are logged, never surfaced as errors, to keep startup quiet while
// the first load is still underway.
func (s *Store) pollTick(ctx context.Context) {
	s.mu.Lock()
	tracked := len(s.devices)
	loaded := s.confLoaded
	s.mu.Unlock()

	if tracked == 0 {
		log.Debug().Msg("Poll tick skipped: no devices tracked")
		datadog.Count("poll.skipped", 1, "reason:no_devices")
		return
	}
	if !loaded {
		log.Debug().Msg("Poll tick skipped: configurations not loaded")
		datadog.Count("poll.skipped", 1, "reason:configurations_pending")
		return
	}

	if err := s.RefreshDevices(ctx); err != nil {
		datadog.Count("poll.failures", 1)
		return
	}
	datadog.Count("poll.ticks", 1)
}
