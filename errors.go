package bridge

import "errors"

var (
	// ErrTransportClosed is returned by every operation issued after Close.
	ErrTransportClosed = errors.New("bridge: transport closed")

	// ErrEmptyTopic rejects publish/subscribe calls with an empty topic name.
	ErrEmptyTopic = errors.New("bridge: topic name must not be empty")

	// ErrChannelClosed is returned by channel implementations for any
	// operation on a closed channel, including a second Close.
	ErrChannelClosed = errors.New("bridge: channel closed")

	ErrConnectionFailed = errors.New("bridge: failed to open broker channel")
	ErrDeclareFailed    = errors.New("bridge: failed to declare topic")
	ErrEncodeFailed     = errors.New("bridge: failed to encode message")
	ErrDecodeFailed     = errors.New("bridge: failed to decode message")
	ErrSendFailed       = errors.New("bridge: failed to send message")
	ErrConsumeFailed    = errors.New("bridge: failed to register consumer")
	ErrCloseFailed      = errors.New("bridge: failed to close channel")

	// ErrHandlerFailed marks a subscriber handler failure. It is logged and
	// counted but never tears down the subscription and never reaches the
	// broker as a negative acknowledgment.
	ErrHandlerFailed = errors.New("bridge: message handler failed")

	// ErrLockActionFailed marks a failure of an action run under a LockMapper
	// key. The lock is released regardless.
	ErrLockActionFailed = errors.New("bridge: locked action failed")
)
