package mqtt

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/eddielth/machine-bridge/config"
	"github.com/eddielth/machine-bridge/logger"
)

// State is the lifecycle state of the broker session.
type State int32

const (
	Disconnected State = iota
	Connecting
	Subscribed
	Disconnecting
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Subscribed:
		return "subscribed"
	case Disconnecting:
		return "disconnecting"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

var (
	ErrAlreadyStarted = errors.New("mqtt session already started")
	ErrNotConnected   = errors.New("mqtt session is not connected")
	ErrTimeout        = errors.New("mqtt operation timed out")
)

const (
	defaultConnectTimeout = 10 * time.Second
	subscribeTimeout      = 5 * time.Second
	publishTimeout        = 5 * time.Second
	disconnectQuiesce     = 250 // milliseconds
)

// MessageHandler is the callback function type for handling MQTT messages.
// It runs on a paho goroutine and may be called concurrently for different messages.
type MessageHandler func(topic string, payload []byte)

// Session owns the single broker connection: it connects, subscribes to the
// inbound topic, publishes on behalf of the sinks and disconnects on shutdown.
// Reconnection after a drop is left to paho's auto-reconnect.
type Session struct {
	client   paho.Client
	config   config.MQTTConfig
	clientID string
	handler  MessageHandler

	state      atomic.Int32
	subscribed atomic.Bool

	mu      sync.Mutex
	started bool
}

// NewSession builds a session with a fresh client id; it does not connect.
func NewSession(cfg config.MQTTConfig, handler MessageHandler) (*Session, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("MQTT broker address cannot be empty")
	}
	if cfg.TopicSubscribe == "" {
		return nil, fmt.Errorf("MQTT subscribe topic cannot be empty")
	}
	if handler == nil {
		return nil, fmt.Errorf("MQTT message handler cannot be nil")
	}

	s := &Session{
		config:   cfg,
		clientID: newClientID(cfg.ClientIDPrefix),
		handler:  handler,
	}
	s.client = paho.NewClient(s.clientOptions())
	return s, nil
}

func newClientID(prefix string) string {
	if prefix == "" {
		prefix = "machine-bridge"
	}
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
}

// BrokerURL renders the configured broker as a paho server URL.
func BrokerURL(cfg config.MQTTConfig) string {
	if strings.Contains(cfg.Broker, "://") {
		return cfg.Broker
	}
	scheme := "tcp"
	if cfg.UseTLS {
		scheme = "ssl"
	}
	port := cfg.Port
	if port == 0 {
		port = 1883
		if cfg.UseTLS {
			port = 8883
		}
	}
	return fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker, port)
}

func (s *Session) clientOptions() *paho.ClientOptions {
	opts := paho.NewClientOptions()
	opts.AddBroker(BrokerURL(s.config))
	opts.SetClientID(s.clientID)

	if s.config.Username != "" {
		opts.SetUsername(s.config.Username)
		opts.SetPassword(s.config.Password)
	}
	if s.config.UseTLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	if s.config.KeepAlive > 0 {
		opts.SetKeepAlive(s.config.KeepAlive)
	}
	opts.SetConnectTimeout(s.connectTimeout())

	opts.SetCleanSession(true)
	opts.SetOrderMatters(false)
	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		s.onConnectionLost(err)
	})
	opts.SetReconnectingHandler(func(_ paho.Client, _ *paho.ClientOptions) {
		s.onReconnecting()
	})
	opts.SetOnConnectHandler(func(_ paho.Client) {
		s.onConnect()
	})

	return opts
}

func (s *Session) connectTimeout() time.Duration {
	if s.config.ConnectTimeout > 0 {
		return s.config.ConnectTimeout
	}
	return defaultConnectTimeout
}

// ClientID returns the identity generated for this process.
func (s *Session) ClientID() string {
	return s.clientID
}

// State reports the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(to State) {
	from := State(s.state.Swap(int32(to)))
	if from != to {
		logger.Debug("mqtt session %s -> %s", from, to)
	}
}

// transition moves to `to` only when the current state is `from`.
func (s *Session) transition(from, to State) bool {
	if s.state.CompareAndSwap(int32(from), int32(to)) {
		logger.Debug("mqtt session %s -> %s", from, to)
		return true
	}
	return false
}

// Start connects and subscribes. Failure leaves the session Disconnected and
// is not retried here.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started || !s.transition(Disconnected, Connecting) {
		return ErrAlreadyStarted
	}

	if err := wait(ctx, s.client.Connect(), s.connectTimeout()); err != nil {
		s.client.Disconnect(0)
		s.setState(Disconnected)
		return fmt.Errorf("failed to connect to MQTT broker %s: %w", BrokerURL(s.config), err)
	}
	logger.Info("successfully connected to MQTT broker: %s (client id %s)", BrokerURL(s.config), s.clientID)

	if err := s.subscribe(ctx); err != nil {
		s.client.Disconnect(disconnectQuiesce)
		s.setState(Disconnected)
		return err
	}

	s.started = true
	s.subscribed.Store(true)
	s.setState(Subscribed)
	return nil
}

func (s *Session) subscribe(ctx context.Context) error {
	topic := s.config.TopicSubscribe
	token := s.client.Subscribe(topic, s.config.QoS, func(_ paho.Client, msg paho.Message) {
		logger.Debug("received message from topic %s", msg.Topic())
		s.handler(msg.Topic(), msg.Payload())
	})

	if err := wait(ctx, token, subscribeTimeout); err != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", topic, err)
	}

	logger.Info("successfully subscribed to topic: %s", topic)
	return nil
}

// Stop unsubscribes and disconnects. It is safe to call more than once.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.setState(Disconnecting)
	s.subscribed.Store(false)

	if s.client.IsConnectionOpen() {
		ctx, cancel := context.WithTimeout(context.Background(), subscribeTimeout)
		if err := wait(ctx, s.client.Unsubscribe(s.config.TopicSubscribe), subscribeTimeout); err != nil {
			logger.Warn("failed to unsubscribe from topic %s: %v", s.config.TopicSubscribe, err)
		}
		cancel()
	}

	s.client.Disconnect(disconnectQuiesce)
	s.started = false
	s.setState(Disconnected)
	logger.Info("disconnected from MQTT broker")
}

// Publish sends payload on topic with the configured QoS and waits for the broker.
func (s *Session) Publish(ctx context.Context, topic string, payload []byte) error {
	if !s.client.IsConnectionOpen() {
		return ErrNotConnected
	}

	if err := wait(ctx, s.client.Publish(topic, s.config.QoS, false, payload), publishTimeout); err != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, err)
	}

	logger.Debug("published %d bytes to topic %s", len(payload), topic)
	return nil
}

func (s *Session) onConnectionLost(err error) {
	if s.transition(Subscribed, Disconnected) {
		logger.Error("MQTT connection lost: %v", err)
	}
}

func (s *Session) onReconnecting() {
	if s.transition(Disconnected, Connecting) {
		logger.Info("trying to reconnect to MQTT broker...")
	}
}

// onConnect restores the subscription after paho reconnects. The initial
// connection is handled by Start.
func (s *Session) onConnect() {
	if !s.subscribed.Load() {
		return
	}

	if err := s.subscribe(context.Background()); err != nil {
		logger.Error("failed to restore subscription after reconnect: %v", err)
		return
	}

	// Stop may have begun while the subscription was in flight.
	if !s.subscribed.Load() {
		ctx, cancel := context.WithTimeout(context.Background(), subscribeTimeout)
		defer cancel()
		if err := wait(ctx, s.client.Unsubscribe(s.config.TopicSubscribe), subscribeTimeout); err != nil {
			logger.Warn("failed to drop subscription restored during stop: %v", err)
		}
		return
	}

	if s.transition(Connecting, Subscribed) || s.transition(Disconnected, Subscribed) {
		logger.Info("MQTT session restored")
	}
}

// wait blocks until the token completes, ctx is done or timeout elapses.
func wait(ctx context.Context, token paho.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrTimeout
	}
}
