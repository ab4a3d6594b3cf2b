package notification

import "errors"

var (
	// ErrEndpointUnavailable indicates the endpoint could not be reached.
	ErrEndpointUnavailable = errors.New("notification endpoint unavailable")

	// ErrEndpointRejected indicates the endpoint answered with a client error.
	// Rejections are not retried.
	ErrEndpointRejected = errors.New("notification endpoint rejected event")

	// ErrNotifierClosed indicates the notifier has been closed.
	ErrNotifierClosed = errors.New("notifier is closed")

	// ErrInvalidEndpoint indicates the endpoint configuration is invalid.
	ErrInvalidEndpoint = errors.New("invalid endpoint configuration")

	// ErrSigningFailed indicates payload signing failed.
	ErrSigningFailed = errors.New("payload signing failed")
)
