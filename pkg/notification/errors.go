package notification

import "errors"

// Errors returned by the notification package.
var (
	// ErrNotRegistered is returned by Notify for an unknown context id.
	ErrNotRegistered = errors.New("notification: context not registered")
)
