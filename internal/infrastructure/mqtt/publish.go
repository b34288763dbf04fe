package mqtt

import (
	"fmt"
)

// Maximum payload size for MQTT messages (64KB).
// Status lines are short; anything larger is a bug.
const maxPayloadSize = 64 << 10

// Publish sends a message to the specified MQTT topic.
//
// Returns ErrNotConnected unless the client is Connected. Wildcards are
// rejected because the broker would refuse them.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := validatePublishTopic(topic); err != nil {
		return err
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	return c.publish(topic, payload, qos, retained)
}

// publish sends without checking the connection state. connectOnce uses it
// for the announcement before the client counts as Connected.
func (c *Client) publish(topic string, payload []byte, qos byte, retained bool) error {
	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: %s: timeout after %v", ErrPublishFailed, topic, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, err)
	}
	return nil
}

// PublishString is a convenience method that publishes a string payload.
func (c *Client) PublishString(topic string, payload string, qos byte, retained bool) error {
	return c.Publish(topic, []byte(payload), qos, retained)
}

// Notify publishes a free-text status line with the configured QoS.
// Failures are logged, never returned: status lines are best effort.
func (c *Client) Notify(message string) {
	if err := c.PublishString(c.cfg.Topics.Status, message, byte(c.cfg.QoS), false); err != nil {
		c.logger.Warn("status publish failed",
			"topic", c.cfg.Topics.Status,
			"message", message,
			"error", err,
		)
	}
}
