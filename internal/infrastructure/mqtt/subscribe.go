package mqtt

import (
	"fmt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Message is one inbound publish waiting for Poll.
type Message struct {
	Topic   string
	Payload []byte
}

// MessageHandler is the callback signature for received messages.
//
// It is only ever called from Poll, on the goroutine that calls Poll.
// A returned error is logged and does not affect other messages.
type MessageHandler func(topic string, payload []byte) error

// SetHandler registers the handler that Poll delivers messages to.
func (c *Client) SetHandler(handler MessageHandler) {
	c.queueMu.Lock()
	c.handler = handler
	c.queueMu.Unlock()
}

// Poll delivers every queued message to the handler, oldest first, and
// returns how many were delivered. Messages that arrive while Poll runs wait
// for the next call.
func (c *Client) Poll() int {
	c.queueMu.Lock()
	batch := c.queue
	c.queue = nil
	handler := c.handler
	c.queueMu.Unlock()

	if handler == nil {
		return 0
	}
	for _, msg := range batch {
		c.deliver(handler, msg)
	}
	return len(batch)
}

// Pending returns the number of queued messages.
func (c *Client) Pending() int {
	c.queueMu.Lock()
	defer c.queueMu.Unlock()
	return len(c.queue)
}

// deliver calls handler with panic recovery.
func (c *Client) deliver(handler MessageHandler, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("MQTT handler panic recovered",
				"topic", msg.Topic,
				"panic", r,
			)
		}
	}()

	if err := handler(msg.Topic, msg.Payload); err != nil {
		c.logger.Warn("MQTT handler returned error",
			"topic", msg.Topic,
			"error", err,
		)
	}
}

// enqueue is the paho callback for every command topic.
func (c *Client) enqueue(_ pahomqtt.Client, msg pahomqtt.Message) {
	payload := make([]byte, len(msg.Payload()))
	copy(payload, msg.Payload())

	c.queueMu.Lock()
	c.queue = append(c.queue, Message{Topic: msg.Topic(), Payload: payload})
	c.queueMu.Unlock()
}

// subscribe registers one command topic with the broker and waits for SUBACK.
func (c *Client) subscribe(topic string, qos byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}

	token := c.client.Subscribe(topic, qos, c.enqueue)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: %s: timeout after %v", ErrSubscribeFailed, topic, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, topic, err)
	}
	return nil
}
