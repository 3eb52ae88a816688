package model

import "time"

type NotificationType string

const (
	NotifyInfo    NotificationType = "info"
	NotifySuccess NotificationType = "success"
	NotifyWarning NotificationType = "warning"
	NotifyError   NotificationType = "error"
)

// Notification is a transient user-facing message. AutoHide notifications
// are removed automatically after a short delay; others persist until
// dismissed.
type Notification struct {
	ID        string
	Type      NotificationType
	Message   string
	Timestamp time.Time
	AutoHide  bool
}
