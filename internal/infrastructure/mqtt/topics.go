package mqtt

import "fmt"

// DefaultTopicPrefix roots every topic when none is configured.
const DefaultTopicPrefix = "identity"

// Topics builds the service's MQTT topics under a configurable prefix.
//
//	topics := mqtt.NewTopics("identity")
//	topics.Notify("password_reset_requested")
//	// Returns: "identity/notify/password_reset_requested"
type Topics struct {
	prefix string
}

// NewTopics creates a builder rooted at prefix. Trailing slashes are
// ignored; an empty prefix falls back to DefaultTopicPrefix.
func NewTopics(prefix string) Topics {
	for len(prefix) > 0 && prefix[len(prefix)-1] == '/' {
		prefix = prefix[:len(prefix)-1]
	}
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// Prefix returns the root of every topic.
func (t Topics) Prefix() string {
	if t.prefix == "" {
		return DefaultTopicPrefix
	}
	return t.prefix
}

// Notify returns the topic for outbound notifications of one kind.
//
// Example: identity/notify/confirmation_requested
func (t Topics) Notify(kind string) string {
	return fmt.Sprintf("%s/notify/%s", t.Prefix(), kind)
}

// AllNotify returns a pattern matching every notification topic.
//
// Pattern: identity/notify/+
func (t Topics) AllNotify() string {
	return t.Prefix() + "/notify/+"
}

// SystemStatus returns the retained online/offline status topic.
//
// Example: identity/system/status
func (t Topics) SystemStatus() string {
	return t.Prefix() + "/system/status"
}

// AllTopics returns a pattern matching every topic of this service.
//
// Pattern: identity/#
func (t Topics) AllTopics() string {
	return t.Prefix() + "/#"
}
