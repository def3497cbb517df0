package webhook

import "errors"

// Sentinel errors for job callback operations.
var (
	ErrNotificationNotFound = errors.New("job notification not found")
	ErrNotificationExists   = errors.New("job notification already exists")
)
