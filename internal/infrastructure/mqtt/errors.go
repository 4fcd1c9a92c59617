package mqtt

import "errors"

// Errors returned by the notification transport. Check with errors.Is.
var (
	// ErrNotConnected is returned when publishing while the broker
	// connection is down.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnectionFailed wraps the broker's reason for refusing the initial connect.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrPublishFailed wraps a notification the broker did not accept.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrInvalidQoS rejects QoS levels outside 0..2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic rejects empty topics.
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")
)
