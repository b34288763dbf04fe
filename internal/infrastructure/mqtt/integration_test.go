//go:build integration

package mqtt

import (
	"context"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Integration tests against a real broker.
// These tests require a running MQTT broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -v ./internal/infrastructure/mqtt/...

func TestIntegration_ConnectAnnounceAndReceive(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.ClientID = "doorbell-int-receive"
	cfg.Topics.Play = "doorbell-int/play"
	cfg.Topics.Volume = "doorbell-int/volume"
	cfg.Topics.Stop = "doorbell-int/stop"
	cfg.Topics.Status = "doorbell-int/status"
	cfg.Topics.Availability = "doorbell-int/availability"

	client := New(cfg, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := client.EnsureConnected(ctx); err != nil {
		t.Fatalf("EnsureConnected() error = %v", err)
	}
	defer client.Close()

	got := make(chan string, 1)
	client.SetHandler(func(topic string, payload []byte) error {
		got <- topic + "=" + string(payload)
		return nil
	})

	sender := pahomqtt.NewClient(pahomqtt.NewClientOptions().
		AddBroker(brokerURL(cfg)).
		SetClientID("doorbell-int-sender"))
	if tok := sender.Connect(); !tok.WaitTimeout(5*time.Second) || tok.Error() != nil {
		t.Fatalf("sender connect: %v", tok.Error())
	}
	defer sender.Disconnect(100)

	sender.Publish(cfg.Topics.Play, 0, false, "7").WaitTimeout(5 * time.Second)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if client.Poll() > 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	select {
	case msg := <-got:
		if msg != "doorbell-int/play=7" {
			t.Errorf("received %q", msg)
		}
	default:
		t.Fatal("no message delivered through Poll")
	}
}

func TestIntegration_UnreachableBrokerRetries(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.Port = 19999
	cfg.Reconnect.Delay = 1

	client := New(cfg, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2500*time.Millisecond)
	defer cancel()

	if err := client.EnsureConnected(ctx); err == nil {
		t.Fatal("EnsureConnected() to closed port succeeded")
	}
	if client.Attempts() < 2 {
		t.Errorf("Attempts() = %d, want at least 2 within 2.5s at 1s delay", client.Attempts())
	}
	if client.State() != StateRetrying {
		t.Errorf("State() = %v, want retrying", client.State())
	}
}
