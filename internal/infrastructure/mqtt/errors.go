package mqtt

import "errors"

// Errors returned by the delegate handler.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotConnected is returned when attempting operations on a disconnected handler.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnectionFailed is returned when the session cannot be established.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrAlreadyStarted is returned when Start is called on a running handler.
	ErrAlreadyStarted = errors.New("mqtt: handler already started")

	// ErrInvalidConfig is returned by NewHandler for unusable configuration.
	ErrInvalidConfig = errors.New("mqtt: invalid handler configuration")

	// ErrPublishFailed is returned when a publish operation fails.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed is returned when a subscribe operation fails.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrUnsubscribeFailed is returned when an unsubscribe operation fails.
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrInvalidQoS is returned when an invalid QoS level is specified.
	// Valid QoS levels are 0, 1, or 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic is returned for empty topics or misplaced wildcards.
	ErrInvalidTopic = errors.New("mqtt: invalid topic")
)
