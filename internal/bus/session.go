package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oakdene/inky-agent/internal/infrastructure/config"
	"github.com/oakdene/inky-agent/internal/infrastructure/mqtt"
)

// Session constants.
const (
	// connectWaitTimeout bounds how long publish operations wait for a
	// live broker connection before failing.
	connectWaitTimeout = 30 * time.Second

	// qosAtLeastOnce is used for registrations and subscriptions.
	qosAtLeastOnce byte = 1

	// qosAtMostOnce is used for acknowledgments (fire and forget).
	qosAtMostOnce byte = 0

	// clientIDSuffixLen is the length of the random client-id suffix.
	clientIDSuffixLen = 8
)

// Client is the broker-facing surface the session needs.
// This allows mocking in tests; it is satisfied by *mqtt.Client.
type Client interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic.
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error

	// SetOnConnect registers a callback for (re)connections.
	SetOnConnect(callback func())

	// SetOnDisconnect registers a callback for lost connections.
	SetOnDisconnect(callback func(err error))

	// SetLogger wires handler error/panic logging.
	SetLogger(logger mqtt.Logger)

	// IsConnected returns true if connected to the broker.
	IsConnected() bool

	// Close disconnects gracefully.
	Close() error
}

// Logger is the logging interface for the session.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Handlers carries the inbound message callbacks.
//
// Both callbacks are invoked from the broker's delivery path in arrival
// order. They must not block for long; the dispatcher enqueues commands
// and returns.
type Handlers struct {
	// OnCommand is invoked for each decoded display command.
	OnCommand func(cmd Command)

	// OnRegistrationAck is invoked for each decoded registration
	// acknowledgment.
	OnRegistrationAck func(ack RegistrationAck)
}

// Session owns the single connection between the agent and the message
// bus: connect, subscribe, inbound routing, outbound publishing, and
// reconnection with capped exponential backoff.
//
// The connection value is owned exclusively by the session and replaced
// wholesale on reconnect; callers never hold a reference to it.
//
// Thread Safety: all methods are safe for concurrent use.
type Session struct {
	cfg      config.MQTTConfig
	topics   Topics
	handlers Handlers
	logger   Logger

	mu        sync.Mutex
	client    Client
	connected bool
	connCh    chan struct{} // closed while connected, replaced on disconnect
	closed    bool

	// connectWait, connect, and sleep are overridable for tests.
	connectWait time.Duration
	connect     func(cfg config.MQTTConfig, presence mqtt.Presence) (Client, error)
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewSession creates a bus session for the given device.
//
// If no MQTT client ID is configured, one is generated from the device
// ID with a random suffix so that two agents misconfigured with the
// same device ID do not silently steal each other's connection.
//
// Parameters:
//   - cfg: MQTT configuration from config.yaml
//   - deviceID: Device identifier used in topic names
//   - handlers: Inbound message callbacks
//   - logger: Structured logger (nil for silent operation)
//
// Returns:
//   - *Session: Session ready for Run
func NewSession(cfg config.MQTTConfig, deviceID string, handlers Handlers, logger Logger) *Session {
	if cfg.Broker.ClientID == "" {
		cfg.Broker.ClientID = fmt.Sprintf("inky-%s-%s", deviceID, uuid.NewString()[:clientIDSuffixLen])
	}
	if logger == nil {
		logger = noopLogger{}
	}

	return &Session{
		cfg:         cfg,
		topics:      Topics{DeviceID: deviceID},
		handlers:    handlers,
		logger:      logger,
		connCh:      make(chan struct{}),
		connectWait: connectWaitTimeout,
		connect: func(cfg config.MQTTConfig, presence mqtt.Presence) (Client, error) {
			return mqtt.Connect(cfg, presence)
		},
		sleep: sleepContext,
	}
}

// Run maintains the bus connection for the process lifetime.
//
// It attempts the initial connection with exponential backoff (floor
// from config, doubling, capped at the configured maximum, reset after
// every successful connect) and subscribes to the device's command and
// registration-ack topics. Once connected, link-level drops are handled
// by the underlying client's auto-reconnect; subscriptions are restored
// automatically and the session's connection gate tracks the state.
//
// Run returns only when ctx is cancelled. There is no upper bound on
// connection attempts.
//
// Returns:
//   - error: ctx.Err() after cancellation
func (s *Session) Run(ctx context.Context) error {
	delays := newBackoff(s.cfg.ReconnectInitialDelay(), s.cfg.ReconnectMaxDelay())

	for {
		client, err := s.connect(s.cfg, mqtt.Presence{
			Topic:    s.topics.Availability(),
			DeviceID: s.topics.DeviceID,
		})
		if err != nil {
			delay := delays.next()
			s.logger.Warn("broker connection failed",
				"error", err,
				"retry_in", delay.String(),
			)
			if sleepErr := s.sleep(ctx, delay); sleepErr != nil {
				return sleepErr
			}
			continue
		}

		if err := s.install(client); err != nil {
			delay := delays.next()
			s.logger.Warn("broker subscription setup failed",
				"error", err,
				"retry_in", delay.String(),
			)
			client.Close() //nolint:errcheck // Best effort before retry
			if sleepErr := s.sleep(ctx, delay); sleepErr != nil {
				return sleepErr
			}
			continue
		}

		// Successful connect resets the backoff to its floor.
		delays.reset()
		s.logger.Info("connected to broker",
			"host", s.cfg.Broker.Host,
			"port", s.cfg.Broker.Port,
			"client_id", s.cfg.Broker.ClientID,
		)

		<-ctx.Done()
		s.Close() //nolint:errcheck // Shutdown path
		return ctx.Err()
	}
}

// install adopts a freshly connected client: wires connection-state
// callbacks, subscribes to the device topics, and opens the gate.
func (s *Session) install(client Client) error {
	client.SetLogger(s.logger)
	client.SetOnConnect(func() {
		s.setConnected(true)
		s.logger.Info("broker connection established")
	})
	client.SetOnDisconnect(func(err error) {
		s.setConnected(false)
		s.logger.Warn("broker connection lost", "error", err)
	})

	if err := client.Subscribe(s.topics.Command(), qosAtLeastOnce, s.route); err != nil {
		return fmt.Errorf("subscribing to command topic: %w", err)
	}
	s.logger.Info("subscribed to command topic", "topic", s.topics.Command())

	if err := client.Subscribe(s.topics.Registered(), qosAtLeastOnce, s.route); err != nil {
		return fmt.Errorf("subscribing to registered topic: %w", err)
	}
	s.logger.Info("subscribed to registered topic", "topic", s.topics.Registered())

	s.mu.Lock()
	s.client = client
	s.mu.Unlock()
	s.setConnected(true)

	return nil
}

// route decodes an inbound frame by topic and invokes the matching
// handler. Decode failures and unrecognised topics are reported to the
// caller for logging and otherwise dropped; they never stop delivery.
func (s *Session) route(topic string, payload []byte) error {
	switch topic {
	case s.topics.Command():
		var cmd Command
		if err := json.Unmarshal(payload, &cmd); err != nil {
			return fmt.Errorf("decoding command frame: %w", err)
		}
		s.logger.Debug("received command", "action", cmd.Action, "image_id", cmd.ImageID)
		if s.handlers.OnCommand != nil {
			s.handlers.OnCommand(cmd)
		}

	case s.topics.Registered():
		var ack RegistrationAck
		if err := json.Unmarshal(payload, &ack); err != nil {
			return fmt.Errorf("decoding registration ack frame: %w", err)
		}
		s.logger.Debug("received registration ack", "status", ack.Status)
		if s.handlers.OnRegistrationAck != nil {
			s.handlers.OnRegistrationAck(ack)
		}

	default:
		return fmt.Errorf("frame on unexpected topic %q dropped", topic)
	}

	return nil
}

// PublishRegistration sends a registration request to the shared
// registration topic with at-least-once delivery.
//
// The call blocks until a broker connection exists (bounded by the
// 30 second connection wait) and then performs a single publish.
// Failures propagate to the caller, which decides whether to retry.
//
// Parameters:
//   - ctx: Context for cancellation
//   - req: Registration payload (sent unchanged on every retry)
//
// Returns:
//   - error: ErrConnectTimeout, ErrSessionClosed, or a publish failure
func (s *Session) PublishRegistration(ctx context.Context, req RegistrationRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encoding registration: %w", err)
	}

	client, err := s.awaitClient(ctx)
	if err != nil {
		return err
	}

	if err := client.Publish(s.topics.Register(), payload, qosAtLeastOnce, false); err != nil {
		return fmt.Errorf("publishing registration: %w", err)
	}

	s.logger.Info("published registration", "topic", s.topics.Register())
	return nil
}

// PublishAcknowledge sends a command acknowledgment to the device's
// status topic with at-most-once delivery (fire and forget).
//
// A delivery failure is returned for logging but must not be retried
// or escalated by the caller.
//
// Parameters:
//   - ctx: Context for cancellation
//   - ack: Acknowledgment payload
//
// Returns:
//   - error: ErrConnectTimeout, ErrSessionClosed, or a publish failure
func (s *Session) PublishAcknowledge(ctx context.Context, ack Acknowledgment) error {
	payload, err := json.Marshal(ack)
	if err != nil {
		return fmt.Errorf("encoding acknowledgment: %w", err)
	}

	client, err := s.awaitClient(ctx)
	if err != nil {
		return err
	}

	if err := client.Publish(s.topics.Status(), payload, qosAtMostOnce, false); err != nil {
		return fmt.Errorf("publishing acknowledgment: %w", err)
	}

	s.logger.Debug("published acknowledgment",
		"success", ack.Success,
		"image_id", ack.ImageID,
	)
	return nil
}

// Close marks the session disconnected and releases the broker
// connection. Safe to call multiple times.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.connected = false
	client := s.client
	s.client = nil
	s.mu.Unlock()

	if client != nil {
		return client.Close()
	}
	return nil
}

// awaitClient blocks until a connection exists, bounded by the
// configured connection wait, and returns the current client.
func (s *Session) awaitClient(ctx context.Context) (Client, error) {
	if err := s.waitConnected(ctx, s.connectWait); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.client == nil {
		return nil, ErrSessionClosed
	}
	return s.client, nil
}

// waitConnected waits for the connection gate to open.
//
// The gate is level-triggered: if the session is already connected the
// wait returns immediately, so a connection established before the
// caller started waiting is never missed.
func (s *Session) waitConnected(ctx context.Context, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return ErrSessionClosed
		}
		if s.connected {
			s.mu.Unlock()
			return nil
		}
		gate := s.connCh
		s.mu.Unlock()

		select {
		case <-gate:
			// Connection state changed; re-check.
		case <-deadline.C:
			return ErrConnectTimeout
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// setConnected updates the connection gate.
//
// Transitioning to connected closes the gate channel, releasing all
// waiters; transitioning to disconnected replaces it with a fresh one.
func (s *Session) setConnected(connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.connected == connected {
		return
	}
	s.connected = connected

	if connected {
		close(s.connCh)
	} else {
		s.connCh = make(chan struct{})
	}
}

// sleepContext sleeps for d or until ctx is cancelled.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
