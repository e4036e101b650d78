package mqtt

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/oakdene/inky-agent/internal/infrastructure/config"
)

// testConfig returns a valid MQTT configuration for testing.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:      "127.0.0.1",
			Port:      1883,
			ClientID:  "inky-test",
			Transport: "tcp",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 5,
			MaxDelay:     60,
		},
	}
}

// =============================================================================
// Option Building Tests
// =============================================================================

func TestBrokerURL(t *testing.T) {
	tests := []struct {
		name      string
		transport string
		tls       bool
		wsPath    string
		want      string
	}{
		{name: "tcp", transport: "tcp", want: "tcp://127.0.0.1:1883"},
		{name: "tcp with tls", transport: "tcp", tls: true, want: "ssl://127.0.0.1:1883"},
		{name: "websocket", transport: "websocket", wsPath: "/mqtt", want: "ws://127.0.0.1:1883/mqtt"},
		{name: "websocket with tls", transport: "websocket", tls: true, wsPath: "/mqtt", want: "wss://127.0.0.1:1883/mqtt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Broker.Transport = tt.transport
			cfg.Broker.TLS = tt.tls
			cfg.Broker.WebsocketPath = tt.wsPath

			if got := brokerURL(cfg); got != tt.want {
				t.Errorf("brokerURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Username = "inky"
	cfg.Auth.Password = "secret"

	opts := buildClientOptions(cfg)

	if opts.ClientID != "inky-test" {
		t.Errorf("ClientID = %q, want %q", opts.ClientID, "inky-test")
	}
	if opts.Username != "inky" {
		t.Errorf("Username = %q, want %q", opts.Username, "inky")
	}
	if !opts.AutoReconnect {
		t.Error("AutoReconnect = false, want true")
	}
	if opts.MaxReconnectInterval != cfg.ReconnectMaxDelay() {
		t.Errorf("MaxReconnectInterval = %v, want %v", opts.MaxReconnectInterval, cfg.ReconnectMaxDelay())
	}
	if opts.ConnectRetryInterval != cfg.ReconnectInitialDelay() {
		t.Errorf("ConnectRetryInterval = %v, want %v", opts.ConnectRetryInterval, cfg.ReconnectInitialDelay())
	}
	if !opts.Order {
		t.Error("Order = false, want true (commands must arrive in order)")
	}
}

// =============================================================================
// Presence Payload Tests
// =============================================================================

func TestPresencePayloads(t *testing.T) {
	for _, payload := range []string{
		buildOnlinePayload("kitchen-display"),
		buildOfflinePayload("kitchen-display"),
	} {
		var decoded map[string]any
		if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
			t.Fatalf("payload is not valid JSON: %v\n%s", err, payload)
		}
		if decoded["device_id"] != "kitchen-display" {
			t.Errorf("device_id = %v, want kitchen-display", decoded["device_id"])
		}
		if decoded["status"] != "online" && decoded["status"] != "offline" {
			t.Errorf("status = %v, want online or offline", decoded["status"])
		}
	}

	if !strings.Contains(buildOfflinePayload("d"), "graceful_shutdown") {
		t.Error("offline payload should carry graceful_shutdown reason")
	}
}

// =============================================================================
// Validation Tests (no broker required)
// =============================================================================

func TestPublishValidation(t *testing.T) {
	c := &Client{subscriptions: make(map[string]subscription)}

	if err := c.Publish("", []byte("x"), 1, false); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Publish(empty topic) error = %v, want ErrInvalidTopic", err)
	}
	if err := c.Publish("inky/register", []byte("x"), 3, false); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Publish(qos 3) error = %v, want ErrInvalidQoS", err)
	}

	huge := make([]byte, maxPayloadSize+1)
	if err := c.Publish("inky/register", huge, 1, false); !errors.Is(err, ErrPublishFailed) {
		t.Errorf("Publish(oversize) error = %v, want ErrPublishFailed", err)
	}
}

func TestSubscribeValidation(t *testing.T) {
	c := &Client{subscriptions: make(map[string]subscription)}

	handler := func(string, []byte) error { return nil }

	if err := c.Subscribe("", 1, handler); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Subscribe(empty topic) error = %v, want ErrInvalidTopic", err)
	}
	if err := c.Subscribe("inky/d/command", 3, handler); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Subscribe(qos 3) error = %v, want ErrInvalidQoS", err)
	}
	if err := c.Subscribe("inky/d/command", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("Subscribe(nil handler) error = %v, want ErrSubscribeFailed", err)
	}
}

func TestCloseNil(t *testing.T) {
	client := &Client{}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v, want nil", err)
	}
}

func TestSubscriptionCount_Empty(t *testing.T) {
	c := &Client{subscriptions: make(map[string]subscription)}
	if got := c.SubscriptionCount(); got != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", got)
	}
}
