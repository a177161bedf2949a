package mqtt

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/openusb/usbhubd/internal/hub"
	"github.com/openusb/usbhubd/internal/infrastructure/config"
	"github.com/openusb/usbhubd/internal/session"
)

// Logger is the minimal logging interface the client needs.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Client publishes hub state to an MQTT broker. It never subscribes.
//
// Thread Safety: all methods are safe for concurrent use. The paho
// client handles reconnection; while disconnected, publishes fail with
// ErrNotConnected and the retained topics go stale until reconnect.
type Client struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig
	qos    byte
	logger Logger

	connected bool
	connMu    sync.RWMutex
}

// Connect establishes the broker connection, configures the LWT on the
// status topic, and announces the service online.
//
// Returns:
//   - *Client: Connected client ready for publishing
//   - error: ErrConnectionFailed if the broker is unreachable within
//     the connect timeout
func Connect(cfg config.MQTTConfig, logger Logger) (*Client, error) {
	qos := byte(cfg.QoS)

	opts := buildClientOptions(cfg)
	configureLWT(opts, qos)

	c := &Client{
		cfg:    cfg,
		qos:    qos,
		logger: logger,
	}

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.setConnected(true)
		// Re-announce after every (re)connection; the LWT may have
		// flipped the retained status to offline in between.
		if err := c.Publish(StatusTopic(), []byte(payloadOnline), true); err != nil {
			c.logger.Warn("publishing online status", "error", err)
		}
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.setConnected(false)
		c.logger.Warn("mqtt connection lost", "error", err)
	})

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, connectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c.setConnected(true)
	c.logger.Info("mqtt connected", "broker", cfg.Broker.Host, "client_id", cfg.Broker.ClientID)
	return c, nil
}

// IsConnected reports the current broker connection state.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected
}

func (c *Client) setConnected(v bool) {
	c.connMu.Lock()
	c.connected = v
	c.connMu.Unlock()
}

// Publish sends a message at the configured QoS.
//
// Parameters:
//   - topic: Destination topic
//   - payload: Message body
//   - retained: Whether the broker keeps the message for new subscribers
func (c *Client) Publish(topic string, payload []byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, c.qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// changeEvent is the JSON body published on the event topic.
type changeEvent struct {
	Function  string `json:"function"`
	Channels  []int  `json:"channels"`
	State     int    `json:"state"`
	Timestamp string `json:"timestamp"`
}

// HandleChange publishes one acknowledged state change: the retained
// per-channel state topics plus a JSON event. Intended as the session
// manager's change callback; publish failures are logged, never
// propagated back to the HTTP request that caused the change.
func (c *Client) HandleChange(ev session.Event) {
	state := strconv.Itoa(int(ev.State))
	for _, ch := range ev.Channels {
		topic := ChannelTopic(ev.Function, ch)
		if err := c.Publish(topic, []byte(state), true); err != nil {
			c.logger.Warn("publishing channel state", "topic", topic, "error", err)
		}
	}

	body := changeEvent{
		Function:  ev.Function,
		Channels:  channelInts(ev.Channels),
		State:     int(ev.State),
		Timestamp: ev.Time.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}
	payload, err := json.Marshal(body)
	if err != nil {
		c.logger.Error("encoding change event", "error", err)
		return
	}
	if err := c.Publish(EventTopic(), payload, false); err != nil {
		c.logger.Warn("publishing change event", "error", err)
	}
}

// PublishStates publishes a retained snapshot of every channel's state
// for one function, used at startup to seed the retained topics.
func (c *Client) PublishStates(function string, states map[hub.Channel]hub.State) {
	for ch, st := range states {
		topic := ChannelTopic(function, ch)
		if err := c.Publish(topic, []byte(strconv.Itoa(int(st))), true); err != nil {
			c.logger.Warn("publishing channel state", "topic", topic, "error", err)
		}
	}
}

// Close announces the service offline and disconnects cleanly, which
// suppresses the LWT.
func (c *Client) Close() {
	if err := c.Publish(StatusTopic(), []byte(payloadOffline), true); err != nil {
		c.logger.Warn("publishing offline status", "error", err)
	}
	c.client.Disconnect(disconnectQuiesce)
	c.setConnected(false)
	c.logger.Info("mqtt disconnected")
}

func channelInts(channels []hub.Channel) []int {
	out := make([]int, len(channels))
	for i, ch := range channels {
		out[i] = int(ch)
	}
	return out
}
