package pubsub

import "errors"

// Session errors.
var (
	ErrNilDialer      = errors.New("pubsub: dialer is required")
	ErrInvalidChannel = errors.New("pubsub: channel name cannot be empty")
	ErrSessionClosed  = errors.New("pubsub: session has been shut down")
	ErrSessionFailed  = errors.New("pubsub: session gave up reconnecting")
)

// Connection errors.
var (
	ErrConnClosed       = errors.New("pubsub: connection closed")
	ErrAlreadyListening = errors.New("pubsub: connection is already listening")
	ErrBrokerClosed     = errors.New("pubsub: broker closed")
)
