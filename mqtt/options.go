package mqtt

import (
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultRetryInterval  = time.Minute
	defaultConnectTimeout = 10 * time.Second
	defaultPublishTimeout = 5 * time.Second
	defaultKeepAlive      = 60 * time.Second

	// disconnectQuiesce is in milliseconds, as paho expects.
	disconnectQuiesce = 250

	clientIDPrefix = "homie"
	maxQoS         = 2
)

// Options configures a Client.
type Options struct {
	// Broker is the broker URL, e.g. tcp://localhost:1883.
	Broker string
	// ClientID defaults to "homie-" followed by a random uuid.
	ClientID string
	Username string
	Password string
	// QoS is used for subscriptions.
	QoS byte

	RetryInterval  time.Duration
	ConnectTimeout time.Duration
	PublishTimeout time.Duration

	Logger  *zap.Logger
	Metrics *Metrics
}

func (o Options) withDefaults() (Options, error) {
	if o.Broker == "" {
		return o, fmt.Errorf("%w: broker is required", ErrInvalidOptions)
	}
	if o.QoS > maxQoS {
		return o, fmt.Errorf("%w: qos %d", ErrInvalidOptions, o.QoS)
	}
	if o.ClientID == "" {
		o.ClientID = clientIDPrefix + "-" + uuid.NewString()
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = defaultRetryInterval
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = defaultConnectTimeout
	}
	if o.PublishTimeout <= 0 {
		o.PublishTimeout = defaultPublishTimeout
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o, nil
}

type will struct {
	topic   string
	payload string
}

// buildClientOptions creates the paho options. Reconnection belongs to the
// monitor, so paho's own retry loops stay off.
func (c *Client) buildClientOptions(w *will) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(c.opts.Broker)
	opts.SetClientID(c.opts.ClientID)
	if c.opts.Username != "" {
		opts.SetUsername(c.opts.Username)
		opts.SetPassword(c.opts.Password)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetConnectTimeout(c.opts.ConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)
	// handlers publish and wait for tokens
	opts.SetOrderMatters(false)

	if w != nil {
		opts.SetWill(w.topic, w.payload, 1, true)
	}

	opts.SetDefaultPublishHandler(c.handleMessage)
	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnectivity(true)
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.log.Warn("connection lost", zap.Error(err))
		c.handleConnectivity(false)
	})
	return opts
}
