package mqtt

import (
	"fmt"
	"strings"

	"github.com/nerrad567/gray-logic-doorbell/internal/infrastructure/config"
)

// CommandTopics returns the topics the doorbell subscribes to, in the order
// play, volume, stop. Empty topics are skipped and duplicates collapsed.
func CommandTopics(t config.MQTTTopicsConfig) []string {
	var out []string
	seen := make(map[string]bool, 3)
	for _, topic := range []string{t.Play, t.Volume, t.Stop} {
		if topic == "" || seen[topic] {
			continue
		}
		seen[topic] = true
		out = append(out, topic)
	}
	return out
}

// validatePublishTopic rejects empty topics and topics containing wildcards.
func validatePublishTopic(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if strings.ContainsAny(topic, "+#") {
		return fmt.Errorf("%w: wildcards not allowed in publish topic %q", ErrInvalidTopic, topic)
	}
	return nil
}
