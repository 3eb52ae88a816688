package store

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aquadeck/internal/model"
)

type fakeNotifier struct {
	mu       sync.Mutex
	titles   []string
	messages []string
}

func (n *fakeNotifier) Send(title, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.titles = append(n.titles, title)
	n.messages = append(n.messages, message)
	return nil
}

func (n *fakeNotifier) sentMessages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.messages...)
}

func TestAddNotificationFillsIDAndTimestamp(t *testing.T) {
	s := newTestStore(t, newFakeBackend())

	id := s.AddNotification(model.Notification{Type: model.NotifyInfo, Message: "hello"})
	require.NotEmpty(t, id)

	notes := s.Notifications()
	require.Len(t, notes, 1)
	assert.Equal(t, id, notes[0].ID)
	assert.False(t, notes[0].Timestamp.IsZero())
}

func TestAutoHideNotificationExpires(t *testing.T) {
	s := newTestStore(t, newFakeBackend(), WithAutoHideDelay(20*time.Millisecond))

	s.AddNotification(model.Notification{Type: model.NotifySuccess, Message: "done", AutoHide: true})
	require.Len(t, s.Notifications(), 1)

	require.Eventually(t, func() bool {
		return len(s.Notifications()) == 0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestPersistentNotificationStays(t *testing.T) {
	s := newTestStore(t, newFakeBackend(), WithAutoHideDelay(10*time.Millisecond))

	s.AddNotification(model.Notification{Type: model.NotifyError, Message: "broken"})
	s.AddNotification(model.Notification{Type: model.NotifySuccess, Message: "done", AutoHide: true})

	require.Eventually(t, func() bool {
		return len(s.Notifications()) == 1
	}, 2*time.Second, 5*time.Millisecond)

	notes := s.Notifications()
	require.Len(t, notes, 1)
	assert.Equal(t, "broken", notes[0].Message, "errors stay until dismissed")
}

func TestRemoveNotification(t *testing.T) {
	s := newTestStore(t, newFakeBackend())

	s.RemoveNotification("no-such-id")

	id := s.AddNotification(model.Notification{Type: model.NotifyError, Message: "broken"})
	s.RemoveNotification(id)
	assert.Empty(t, s.Notifications())

	s.RemoveNotification(id)
	assert.Empty(t, s.Notifications())
}

func TestClearNotifications(t *testing.T) {
	s := newTestStore(t, newFakeBackend(), WithAutoHideDelay(10*time.Millisecond))

	s.AddNotification(model.Notification{Type: model.NotifyError, Message: "one"})
	s.AddNotification(model.Notification{Type: model.NotifySuccess, Message: "two", AutoHide: true})
	require.Len(t, s.Notifications(), 2)

	s.ClearNotifications()
	assert.Empty(t, s.Notifications())

	// Give a cancelled auto-hide timer a chance to misfire.
	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, s.Notifications())
}

func TestPersistentErrorsForwardToNotifier(t *testing.T) {
	notifier := &fakeNotifier{}
	s := newTestStore(t, newFakeBackend(), WithNotifier(notifier))

	s.AddNotification(model.Notification{Type: model.NotifySuccess, Message: "fine", AutoHide: true})
	s.AddNotification(model.Notification{Type: model.NotifyError, Message: "pump head jammed"})

	require.Eventually(t, func() bool {
		return len(notifier.sentMessages()) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"pump head jammed"}, notifier.sentMessages(),
		"only persistent errors are pushed externally")
}
