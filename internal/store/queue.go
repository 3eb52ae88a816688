package store

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"aquadeck/internal/datadog"
	"aquadeck/internal/model"
)

// DrainState tracks whether a drain loop is active. At most one loop runs at
// a time; every queued command flows through that single loop so commands
// reach the backend strictly in enqueue order, one at a time, even across
// devices.
type DrainState string

const (
	DrainIdle     DrainState = "idle"
	DrainDraining DrainState = "draining"
)

const queueDepthWarning = 32

// transitionDrain is the only place drainState changes. It moves the state
// from exactly `from` to `to` and reports whether the transition happened.
func (s *Store) transitionDrain(from, to DrainState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.drainState != from {
		return false
	}
	s.drainState = to
	return true
}

// DrainState returns the current drain loop state.
func (s *Store) DrainState() DrainState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drainState
}

// QueueCommand validates the request, appends it to the queue, and kicks the
// drain loop if it is idle. It returns the command id immediately without
// waiting for completion.
func (s *Store) QueueCommand(address string, req model.CommandRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	if req.ID == "" {
		req.ID = s.genID()
	}

	s.mu.Lock()
	s.queue = append(s.queue, model.QueuedCommand{
		ID:       req.ID,
		Address:  address,
		Request:  req,
		QueuedAt: s.clock(),
	})
	depth := len(s.queue)
	auto := s.autoDrain
	s.mu.Unlock()

	datadog.Gauge("queue.depth", float64(depth))
	if depth > queueDepthWarning {
		log.Warn().Int("depth", depth).Msg("Command queue depth is high")
	}
	log.Debug().
		Str("address", address).
		Str("action", req.Action).
		Str("command_id", req.ID).
		Int("depth", depth).
		Msg("Command queued")

	if auto {
		go s.ProcessQueue(context.Background())
	}
	return req.ID, nil
}

// ProcessQueue drains the queue one command at a time. Calling it while a
// drain is already active returns immediately; the active loop picks up
// anything queued in the meantime.
func (s *Store) ProcessQueue(ctx context.Context) {
	for {
		if !s.transitionDrain(DrainIdle, DrainDraining) {
			return
		}
		s.drainQueue(ctx)
		s.transitionDrain(DrainDraining, DrainIdle)

		// A command enqueued between the last pop and the transition back
		// to idle would otherwise sit until the next enqueue.
		s.mu.Lock()
		again := len(s.queue) > 0
		s.mu.Unlock()
		if !again {
			return
		}
	}
}

func (s *Store) drainQueue(ctx context.Context) {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		cmd := s.queue[0]
		s.queue = s.queue[1:]
		depth := len(s.queue)
		s.setLoadingLocked(cmd.Address, true)
		s.mu.Unlock()

		datadog.Gauge("queue.depth", float64(depth))
		s.dispatch(ctx, cmd)
	}
}

// dispatch sends one command to the backend and folds the outcome back into
// device state, notifications, and the journal. A failure here never stops
// the drain loop.
func (s *Store) dispatch(ctx context.Context, cmd model.QueuedCommand) {
	defer s.SetDeviceLoading(cmd.Address, false)

	log.Info().
		Str("address", cmd.Address).
		Str("action", cmd.Request.Action).
		Str("command_id", cmd.ID).
		Int("retries", cmd.RetryCount).
		Msg("Dispatching command")

	started := time.Now()
	rec, err := s.backend.ExecuteCommand(ctx, cmd.Address, cmd.Request)
	datadog.Timing("command.duration", time.Since(started), "action:"+cmd.Request.Action)

	switch {
	case err != nil:
		// Transport-level failure, distinct from a failure the backend
		// reported in the record.
		log.Error().Err(err).
			Str("address", cmd.Address).
			Str("command_id", cmd.ID).
			Msg("Command dispatch failed")
		s.completeFailure(cmd, &model.CommandRecord{
			ID:      cmd.ID,
			Address: cmd.Address,
			Action:  cmd.Request.Action,
			Status:  model.CommandFailed,
			Error:   err.Error(),
		}, NetworkErrorMessage)
	case rec.Status == model.CommandSuccess:
		s.completeSuccess(ctx, cmd, rec)
	default:
		s.completeFailure(cmd, rec, UserMessage(rec))
	}
}

func (s *Store) completeSuccess(ctx context.Context, cmd model.QueuedCommand, rec *model.CommandRecord) {
	s.recordOutcome(rec)
	datadog.Count("commands.completed", 1, "status:"+string(rec.Status), "action:"+cmd.Request.Action)

	s.SetDeviceError(cmd.Address, "")
	if err := s.RefreshDevice(ctx, cmd.Address); err != nil {
		log.Warn().Err(err).Str("address", cmd.Address).Msg("Post-command refresh failed")
	}
	s.AddNotification(model.Notification{
		Type:     model.NotifySuccess,
		Message:  "Command " + cmd.Request.Action + " completed",
		AutoHide: true,
	})
	log.Info().
		Str("address", cmd.Address).
		Str("command_id", cmd.ID).
		Str("action", cmd.Request.Action).
		Msg("Command succeeded")
}

func (s *Store) completeFailure(cmd model.QueuedCommand, rec *model.CommandRecord, message string) {
	s.recordOutcome(rec)
	datadog.Count("commands.completed", 1, "status:"+string(rec.Status), "action:"+cmd.Request.Action)

	s.SetDeviceError(cmd.Address, message)
	s.AddNotification(model.Notification{
		Type:    model.NotifyError,
		Message: message,
	})
	log.Warn().
		Str("address", cmd.Address).
		Str("command_id", cmd.ID).
		Str("action", cmd.Request.Action).
		Str("status", string(rec.Status)).
		Str("error_code", rec.ErrorCode).
		Msg("Command failed")
}

func (s *Store) recordOutcome(rec *model.CommandRecord) {
	if s.journal == nil || rec == nil {
		return
	}
	if err := s.journal.Record(rec); err != nil {
		log.Warn().Err(err).Str("command_id", rec.ID).Msg("Could not journal command outcome")
	}
}

// RetryCommand re-queues a still-queued command at the back with its retry
// count bumped and a fresh enqueue time. Commands already handed to the
// drain loop are past retrying; re-enqueue those with QueueCommand instead.
func (s *Store) RetryCommand(id string) bool {
	s.mu.Lock()
	idx := s.queueIndexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	cmd := s.queue[idx]
	s.queue = append(s.queue[:idx], s.queue[idx+1:]...)
	cmd.RetryCount++
	cmd.QueuedAt = s.clock()
	s.queue = append(s.queue, cmd)
	auto := s.autoDrain
	s.mu.Unlock()

	log.Debug().Str("command_id", id).Int("retries", cmd.RetryCount).Msg("Command re-queued")
	if auto {
		go s.ProcessQueue(context.Background())
	}
	return true
}

// CancelCommand removes a command that has not been dispatched yet. Once a
// command is handed to the backend there is no way to call it back; the
// remote timeout is the only bound on it.
func (s *Store) CancelCommand(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.queueIndexLocked(id)
	if idx < 0 {
		return false
	}
	s.queue = append(s.queue[:idx], s.queue[idx+1:]...)
	log.Debug().Str("command_id", id).Msg("Command cancelled before dispatch")
	return true
}

func (s *Store) queueIndexLocked(id string) int {
	for i := range s.queue {
		if s.queue[i].ID == id {
			return i
		}
	}
	return -1
}

// PendingCommands returns a copy of the queue in dispatch order.
func (s *Store) PendingCommands() []model.QueuedCommand {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.QueuedCommand(nil), s.queue...)
}

// QueueDepth returns how many commands are waiting for dispatch.
func (s *Store) QueueDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}
