package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-doorbell/internal/infrastructure/config"
)

// ConnectionState is the client's view of the broker link.
type ConnectionState int32

const (
	// StateDisconnected means no connection and no failed attempt yet
	// (or the link was lost and nobody has tried again).
	StateDisconnected ConnectionState = iota

	// StateRetrying means the last attempt failed and the next one is due
	// after the fixed reconnect delay.
	StateRetrying

	// StateConnected means the announcement was published and every command
	// topic is subscribed.
	StateConnected
)

// String returns the state name used in logs and the health endpoint.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateRetrying:
		return "retrying"
	case StateConnected:
		return "connected"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// rcUnknown is logged when a failure carries no CONNACK return code.
const rcUnknown = -1

// Client wraps paho.mqtt.golang for the doorbell.
//
// It owns one broker link and reconnects on the caller's schedule with a
// fixed delay. Inbound messages are queued by paho's goroutines and handed
// to the registered handler only from Poll, so the handler always runs on
// the goroutine that drives the main loop.
//
// Thread Safety:
//   - EnsureConnected, TryConnect, Poll and Close are meant for the loop goroutine.
//   - State, IsConnected, Publish and Notify are safe from any goroutine.
type Client struct {
	cfg     config.MQTTConfig
	options *pahomqtt.ClientOptions
	client  pahomqtt.Client
	delay   time.Duration

	// Seams for tests.
	newClient func(*pahomqtt.ClientOptions) pahomqtt.Client
	sleep     func(ctx context.Context, d time.Duration) error

	stateMu       sync.Mutex
	state         ConnectionState
	nextAttempt   time.Time
	everConnected bool

	attempts atomic.Uint64
	connects atomic.Uint64

	queueMu sync.Mutex
	queue   []Message
	handler MessageHandler

	// Optional callbacks. onConnect and onConnectFailed run on the caller of
	// EnsureConnected/TryConnect; onDisconnect runs on a paho goroutine.
	onConnect       func(first bool)
	onConnectFailed func(err error)
	onDisconnect    func(err error)
	callbackMu      sync.RWMutex

	logger Logger
}

// Logger interface for logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// New builds a client from config. It does not connect; call
// EnsureConnected (blocking) or TryConnect (single attempt).
func New(cfg config.MQTTConfig, logger Logger) *Client {
	if logger == nil {
		logger = nopLogger{}
	}

	c := &Client{
		cfg:       cfg,
		delay:     reconnectDelay(cfg),
		newClient: pahomqtt.NewClient,
		sleep:     sleepContext,
		logger:    logger,
	}

	c.options = buildClientOptions(cfg)
	c.options.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleConnectionLost(err)
	})

	return c
}

// EnsureConnected returns once the client is connected.
//
// While disconnected it attempts a connection, and after every failure logs
// the return code and waits the fixed reconnect delay before trying again.
// There is no attempt limit. The only way out without a connection is ctx
// being cancelled, which is returned as the error.
func (c *Client) EnsureConnected(ctx context.Context) error {
	for {
		if c.IsConnected() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rc, err := c.connectOnce()
		if err == nil {
			return nil
		}

		c.logger.Warn("connect failed, retrying",
			"broker", brokerURL(c.cfg),
			"rc", rc,
			"retry_in", c.delay.String(),
			"error", err,
		)

		if err := c.sleep(ctx, c.delay); err != nil {
			return err
		}
	}
}

// TryConnect makes at most one connection attempt without blocking on the
// retry delay. It returns nil when connected, ErrRetryPending while the
// delay since the last failure has not elapsed, or the attempt's error.
func (c *Client) TryConnect(now time.Time) error {
	if c.IsConnected() {
		return nil
	}

	c.stateMu.Lock()
	pending := c.state == StateRetrying && now.Before(c.nextAttempt)
	c.stateMu.Unlock()
	if pending {
		return ErrRetryPending
	}

	rc, err := c.connectOnce()
	if err != nil {
		c.stateMu.Lock()
		c.nextAttempt = now.Add(c.delay)
		c.stateMu.Unlock()

		c.logger.Warn("connect failed, retrying",
			"broker", brokerURL(c.cfg),
			"rc", rc,
			"retry_in", c.delay.String(),
			"error", err,
		)
		return err
	}
	return nil
}

// connectOnce performs one full connection attempt: connect, announce,
// publish availability and subscribe every command topic. The client only
// becomes Connected when all of these succeed.
func (c *Client) connectOnce() (int, error) {
	c.attempts.Add(1)

	if c.client == nil {
		c.client = c.newClient(c.options)
	}

	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return rcUnknown, c.fail(fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout))
	}
	if err := token.Error(); err != nil {
		return returnCode(token), c.fail(fmt.Errorf("%w: %w", ErrConnectionFailed, err))
	}

	c.stateMu.Lock()
	first := !c.everConnected
	c.stateMu.Unlock()

	announcement := AnnounceReconnected
	if first {
		announcement = AnnounceConnected + ": " + c.cfg.Broker.Host
	}
	if err := c.publish(c.cfg.Topics.Status, []byte(announcement), byte(c.cfg.QoS), false); err != nil {
		return rcUnknown, c.abort(err)
	}

	if c.cfg.Topics.Availability != "" {
		if err := c.publish(c.cfg.Topics.Availability, []byte(PayloadOnline), byte(c.cfg.QoS), true); err != nil {
			return rcUnknown, c.abort(err)
		}
	}

	for _, topic := range CommandTopics(c.cfg.Topics) {
		if err := c.subscribe(topic, byte(c.cfg.QoS)); err != nil {
			return rcUnknown, c.abort(err)
		}
	}

	c.stateMu.Lock()
	c.state = StateConnected
	c.everConnected = true
	c.stateMu.Unlock()
	c.connects.Add(1)

	c.logger.Info("connected to MQTT broker",
		"broker", brokerURL(c.cfg),
		"client_id", c.cfg.Broker.ClientID,
		"first", first,
	)

	c.callbackMu.RLock()
	callback := c.onConnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(first)
	}

	return 0, nil
}

// fail records a failed attempt and notifies the failure callback.
func (c *Client) fail(err error) error {
	c.stateMu.Lock()
	c.state = StateRetrying
	c.stateMu.Unlock()

	c.callbackMu.RLock()
	callback := c.onConnectFailed
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}
	return err
}

// abort drops a half-established session so the next attempt starts clean.
func (c *Client) abort(err error) error {
	c.client.Disconnect(0)
	return c.fail(err)
}

// handleConnectionLost is called by paho when an established link drops.
func (c *Client) handleConnectionLost(err error) {
	c.stateMu.Lock()
	c.state = StateDisconnected
	c.stateMu.Unlock()

	c.logger.Warn("MQTT connection lost", "broker", brokerURL(c.cfg), "error", err)

	c.callbackMu.RLock()
	callback := c.onDisconnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

// returnCode extracts the CONNACK return code when paho provides one.
func returnCode(token pahomqtt.Token) int {
	if ct, ok := token.(*pahomqtt.ConnectToken); ok {
		return int(ct.ReturnCode())
	}
	return rcUnknown
}

// Close gracefully disconnects from the MQTT broker.
//
// When connected it first publishes a retained "offline" on the availability
// topic, so subscribers see a clean shutdown instead of the broker's will.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	if c.IsConnected() && c.cfg.Topics.Availability != "" {
		token := c.client.Publish(c.cfg.Topics.Availability, byte(c.cfg.QoS), true, []byte(PayloadOffline))
		token.WaitTimeout(defaultPublishTimeout)
	}

	c.client.Disconnect(defaultDisconnectQuiesce)

	c.stateMu.Lock()
	c.state = StateDisconnected
	c.stateMu.Unlock()

	return nil
}

// HealthCheck reports whether the broker link is up. It only reads the
// tracked state, so it is safe to call from outside the loop goroutine.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if c.State() != StateConnected {
		return ErrNotConnected
	}
	return nil
}

// State returns the current connection state.
func (c *Client) State() ConnectionState {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

// IsConnected reports whether the client is Connected and paho agrees.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected && c.client != nil && c.client.IsConnected()
}

// Attempts returns the number of connection attempts made so far.
func (c *Client) Attempts() uint64 {
	return c.attempts.Load()
}

// Connects returns the number of successful connections so far.
func (c *Client) Connects() uint64 {
	return c.connects.Load()
}

// ReconnectDelay returns the fixed delay between connection attempts.
func (c *Client) ReconnectDelay() time.Duration {
	return c.delay
}

// SetOnConnect sets a callback invoked after every successful connection.
// first is true only for the first connection since the client was created.
func (c *Client) SetOnConnect(callback func(first bool)) {
	c.callbackMu.Lock()
	c.onConnect = callback
	c.callbackMu.Unlock()
}

// SetOnConnectFailed sets a callback invoked after every failed attempt.
func (c *Client) SetOnConnectFailed(callback func(err error)) {
	c.callbackMu.Lock()
	c.onConnectFailed = callback
	c.callbackMu.Unlock()
}

// SetOnDisconnect sets a callback invoked when an established link drops.
// It runs on a paho goroutine.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.callbackMu.Lock()
	c.onDisconnect = callback
	c.callbackMu.Unlock()
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
