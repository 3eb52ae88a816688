package store

import (
	"time"

	"github.com/rs/zerolog/log"

	"aquadeck/internal/model"
)

// AddNotification appends a notification, filling in the id and timestamp
// when absent, and returns the id. Auto-hide notifications are removed again
// after the configured delay. Persistent error notifications are also
// forwarded to the external notifier when one is installed.
func (s *Store) AddNotification(n model.Notification) string {
	s.mu.Lock()
	if n.ID == "" {
		n.ID = s.genID()
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = s.clock()
	}
	s.notifications = append(s.notifications, n)
	if n.AutoHide {
		id := n.ID
		s.hideTimers[id] = time.AfterFunc(s.autoHideDelay, func() {
			s.RemoveNotification(id)
		})
	}
	s.mu.Unlock()

	if n.Type == model.NotifyError && !n.AutoHide && s.notifier != nil {
		go func(message string) {
			if err := s.notifier.Send("Aquadeck device error", message); err != nil {
				log.Warn().Err(err).Msg("Failed to forward error notification")
			}
		}(n.Message)
	}
	return n.ID
}

// RemoveNotification dismisses one notification. Unknown ids are ignored, so
// racing an auto-hide expiry against a manual dismissal is harmless.
func (s *Store) RemoveNotification(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if timer, ok := s.hideTimers[id]; ok {
		timer.Stop()
		delete(s.hideTimers, id)
	}
	for i := range s.notifications {
		if s.notifications[i].ID == id {
			s.notifications = append(s.notifications[:i], s.notifications[i+1:]...)
			return
		}
	}
}

// ClearNotifications dismisses everything at once.
func (s *Store) ClearNotifications() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, timer := range s.hideTimers {
		timer.Stop()
		delete(s.hideTimers, id)
	}
	s.notifications = nil
}

// Notifications returns the visible notifications in creation order.
func (s *Store) Notifications() []model.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Notification(nil), s.notifications...)
}
