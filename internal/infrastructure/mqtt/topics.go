package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is used when the configuration leaves topic_prefix empty.
const DefaultTopicPrefix = "mqttconnect/clients"

// Topics builds the topics a handler publishes on its own behalf.
//
//	topics := mqtt.Topics{Prefix: "site/clients"}
//	topics.Status("gateway-01")
//	// Returns: "site/clients/gateway-01/status"
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return strings.TrimSuffix(t.Prefix, "/")
}

// Status returns the retained online/offline topic of a client. The Last Will
// is published here too.
func (t Topics) Status(clientID string) string {
	return fmt.Sprintf("%s/%s/status", t.prefix(), clientID)
}

// All returns a filter matching every client topic under the prefix.
func (t Topics) All() string {
	return t.prefix() + "/#"
}

// ValidateTopic checks a topic name or filter.
//
// Publish topics may not contain wildcards. In filters, '#' must be the last
// level and '+' must occupy a whole level.
func ValidateTopic(topic string, filter bool) error {
	if topic == "" {
		return fmt.Errorf("%w: empty", ErrInvalidTopic)
	}

	levels := strings.Split(topic, "/")
	for i, level := range levels {
		if !strings.ContainsAny(level, "+#") {
			continue
		}
		if !filter {
			return fmt.Errorf("%w: wildcard in publish topic %q", ErrInvalidTopic, topic)
		}
		switch level {
		case "+":
		case "#":
			if i != len(levels)-1 {
				return fmt.Errorf("%w: '#' must be the last level in %q", ErrInvalidTopic, topic)
			}
		default:
			return fmt.Errorf("%w: wildcard must occupy a whole level in %q", ErrInvalidTopic, topic)
		}
	}
	return nil
}
