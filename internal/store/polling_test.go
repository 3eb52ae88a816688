package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aquadeck/internal/model"
)

func readyStore(t *testing.T, fb *fakeBackend) *Store {
	t.Helper()
	s := newTestStore(t, fb)
	require.NoError(t, s.RefreshDevices(context.Background()))
	s.LoadConfigurations(context.Background())
	return s
}

func TestPollingRefreshesOnTick(t *testing.T) {
	fb := newFakeBackend()
	fb.statuses["AA:11"] = model.DeviceStatus{Address: "AA:11"}
	s := readyStore(t, fb)
	baseline := fb.statusCallCount()

	handle := s.StartPolling(10 * time.Millisecond)
	defer handle.Stop()
	assert.True(t, s.Polling())

	require.Eventually(t, func() bool {
		return fb.statusCallCount() >= baseline+3
	}, 2*time.Second, 5*time.Millisecond)

	s.StopPolling()
	assert.False(t, s.Polling())

	settled := fb.statusCallCount()
	assert.Never(t, func() bool {
		return fb.statusCallCount() > settled
	}, 100*time.Millisecond, 10*time.Millisecond, "no refreshes after stop")
}

func TestPollSkipsWithoutDevices(t *testing.T) {
	fb := newFakeBackend()
	s := newTestStore(t, fb)

	handle := s.StartPolling(5 * time.Millisecond)
	defer handle.Stop()

	assert.Never(t, func() bool {
		return fb.statusCallCount() > 0
	}, 100*time.Millisecond, 10*time.Millisecond, "ticks skip while nothing is tracked")
}

func TestPollSkipsUntilConfigurationsLoaded(t *testing.T) {
	fb := newFakeBackend()
	fb.statuses["AA:11"] = model.DeviceStatus{Address: "AA:11"}
	s := newTestStore(t, fb)
	s.SetDevices(map[string]model.DeviceStatus{"AA:11": {Address: "AA:11"}})

	handle := s.StartPolling(5 * time.Millisecond)
	defer handle.Stop()

	assert.Never(t, func() bool {
		return fb.statusCallCount() > 0
	}, 100*time.Millisecond, 10*time.Millisecond, "ticks skip until configurations load")

	s.LoadConfigurations(context.Background())
	require.Eventually(t, func() bool {
		return fb.statusCallCount() > 0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestStartPollingReplacesPreviousTask(t *testing.T) {
	fb := newFakeBackend()
	fb.statuses["AA:11"] = model.DeviceStatus{Address: "AA:11"}
	s := readyStore(t, fb)

	first := s.StartPolling(5 * time.Millisecond)
	second := s.StartPolling(5 * time.Millisecond)
	require.NotSame(t, first, second)

	// Stopping the current task must leave no stray poller behind; a leaked
	// first task would keep refreshing.
	s.StopPolling()
	settled := fb.statusCallCount()
	assert.Never(t, func() bool {
		return fb.statusCallCount() > settled
	}, 100*time.Millisecond, 10*time.Millisecond)

	first.Stop()
	second.Stop()
}

func TestPollHandleStopIdempotent(t *testing.T) {
	fb := newFakeBackend()
	fb.statuses["AA:11"] = model.DeviceStatus{Address: "AA:11"}
	s := readyStore(t, fb)

	handle := s.StartPolling(10 * time.Millisecond)
	handle.Stop()
	handle.Stop()

	var none *PollHandle
	none.Stop()

	s.StopPolling()
	s.StopPolling()
}

func TestSetPollingIntervalRestartsRunningTask(t *testing.T) {
	fb := newFakeBackend()
	fb.statuses["AA:11"] = model.DeviceStatus{Address: "AA:11"}
	s := readyStore(t, fb)

	s.StartPolling(50 * time.Millisecond)
	s.SetPollingInterval(5 * time.Millisecond)
	assert.True(t, s.Polling())

	baseline := fb.statusCallCount()
	require.Eventually(t, func() bool {
		return fb.statusCallCount() >= baseline+3
	}, 2*time.Second, 5*time.Millisecond)

	s.StopPolling()
	assert.False(t, s.Polling())

	s.SetPollingInterval(5 * time.Millisecond)
	assert.False(t, s.Polling(), "changing the interval while stopped must not start polling")
}
