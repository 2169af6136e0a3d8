// Package mqtt adapts paho.mqtt.golang to the homie Connection interfaces.
//
// The adapter owns a connection monitor: Run retries the broker connection
// on a fixed interval until its context is cancelled, and Connect only asks
// the running monitor for an immediate attempt.
package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	homie "github.com/duke1swd/homieGo"
)

// Client is a homie.HostConnection backed by a paho client.
//
// All methods are safe for concurrent use. Listeners are invoked on paho's
// goroutines.
type Client struct {
	opts    Options
	log     *zap.Logger
	metrics *Metrics

	// newPaho is swapped by tests.
	newPaho func(*pahomqtt.ClientOptions) pahomqtt.Client

	// attemptMu serializes connection attempts; the paho client is only
	// replaced while it is held.
	attemptMu sync.Mutex

	mu     sync.Mutex
	client pahomqtt.Client
	will   *will
	// willChanged marks client as built with an outdated will.
	willChanged bool

	lmu           sync.RWMutex
	nextListener  uint64
	msgListeners  []msgListener
	connListeners []connListener

	running atomic.Bool
	kick    chan struct{}
}

type msgListener struct {
	id uint64
	h  homie.MessageHandler
	// retainedOnly skips live traffic.
	retainedOnly bool
}

type connListener struct {
	id uint64
	h  homie.ConnectionHandler
}

var _ homie.HostConnection = (*Client)(nil)

// New creates an unconnected client.
func New(opts Options) (*Client, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	return &Client{
		opts:    opts,
		log:     opts.Logger.With(zap.String("broker", opts.Broker), zap.String("client_id", opts.ClientID)),
		metrics: opts.Metrics,
		newPaho: pahomqtt.NewClient,
		kick:    make(chan struct{}, 1),
	}, nil
}

// SetWill sets the last will. It reaches the broker with the next
// connection; an open connection keeps the will it was made with.
func (c *Client) SetWill(topic, payload string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.will = &will{topic: topic, payload: payload}
	c.willChanged = c.client != nil
}

// IsConnected reports whether the broker connection is open.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	client := c.client
	c.mu.Unlock()
	return client != nil && client.IsConnectionOpen()
}

// Connect asks for a connection. With a running monitor it only nudges the
// monitor; without one it makes a single synchronous attempt.
func (c *Client) Connect() error {
	if c.IsConnected() {
		return nil
	}
	if c.running.Load() {
		select {
		case c.kick <- struct{}{}:
		default:
		}
		return nil
	}
	return c.attempt()
}

// Run supervises the connection until ctx is cancelled, then disconnects.
// Only one monitor may run at a time.
func (c *Client) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrMonitorRunning
	}
	defer c.running.Store(false)

	c.log.Info("connection monitor started", zap.Duration("retry_interval", c.opts.RetryInterval))
	ticker := time.NewTicker(c.opts.RetryInterval)
	defer ticker.Stop()

	for {
		if !c.IsConnected() {
			if err := c.attempt(); err != nil {
				c.log.Warn("connect attempt failed", zap.Error(err))
			}
		}

		select {
		case <-ctx.Done():
			c.Close()
			c.log.Info("connection monitor stopped")
			return nil
		case <-ticker.C:
		case <-c.kick:
		}
	}
}

func (c *Client) attempt() error {
	c.attemptMu.Lock()
	defer c.attemptMu.Unlock()
	if c.IsConnected() {
		return nil
	}

	c.mu.Lock()
	if c.client == nil || c.willChanged {
		c.client = c.newPaho(c.buildClientOptions(c.will))
		c.willChanged = false
	}
	client := c.client
	c.mu.Unlock()

	token := client.Connect()
	if !token.WaitTimeout(c.opts.ConnectTimeout) {
		c.metrics.connectAttempt(false)
		return fmt.Errorf("%w: %w after %v", ErrConnectionFailed, ErrTimeout, c.opts.ConnectTimeout)
	}
	if err := token.Error(); err != nil {
		c.metrics.connectAttempt(false)
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	c.metrics.connectAttempt(true)
	return nil
}

// Close disconnects. Listeners are told the connection is gone.
func (c *Client) Close() {
	c.mu.Lock()
	client := c.client
	c.mu.Unlock()

	if client == nil || !client.IsConnectionOpen() {
		return
	}
	client.Disconnect(disconnectQuiesce)
	c.handleConnectivity(false)
}

// Publish sends a payload and waits for the broker to acknowledge it.
func (c *Client) Publish(topic, payload string, qos byte, retained bool) bool {
	ok := c.publish(topic, payload, qos, retained)
	c.metrics.publish(ok)
	return ok
}

func (c *Client) publish(topic, payload string, qos byte, retained bool) bool {
	c.mu.Lock()
	client := c.client
	c.mu.Unlock()
	if client == nil || !client.IsConnectionOpen() {
		return false
	}

	token := client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(c.opts.PublishTimeout) {
		c.log.Debug("publish timed out", zap.String("topic", topic))
		return false
	}
	if err := token.Error(); err != nil {
		c.log.Debug("publish failed", zap.String("topic", topic), zap.Error(err))
		return false
	}
	return true
}

// Subscribe subscribes with the configured QoS. Messages go to the
// OnMessage listeners.
func (c *Client) Subscribe(topic string) bool {
	c.mu.Lock()
	client := c.client
	c.mu.Unlock()
	if client == nil || !client.IsConnectionOpen() {
		return false
	}

	token := client.Subscribe(topic, c.opts.QoS, nil)
	if !token.WaitTimeout(c.opts.PublishTimeout) {
		c.log.Debug("subscribe timed out", zap.String("topic", topic))
		return false
	}
	if err := token.Error(); err != nil {
		c.log.Debug("subscribe failed", zap.String("topic", topic), zap.Error(err))
		return false
	}
	return true
}

// OnMessage registers a listener for every inbound message.
func (c *Client) OnMessage(h homie.MessageHandler) (remove func()) {
	return c.addMessageListener(h, false)
}

// OnRetained registers a listener for messages the broker delivered from its
// retained store.
func (c *Client) OnRetained(h homie.MessageHandler) (remove func()) {
	return c.addMessageListener(h, true)
}

func (c *Client) addMessageListener(h homie.MessageHandler, retainedOnly bool) func() {
	c.lmu.Lock()
	defer c.lmu.Unlock()
	c.nextListener++
	id := c.nextListener
	c.msgListeners = append(c.msgListeners, msgListener{id: id, h: h, retainedOnly: retainedOnly})

	return func() {
		c.lmu.Lock()
		defer c.lmu.Unlock()
		for i, l := range c.msgListeners {
			if l.id == id {
				c.msgListeners = append(c.msgListeners[:i:i], c.msgListeners[i+1:]...)
				return
			}
		}
	}
}

// OnConnectionChanged registers a listener for connectivity changes.
func (c *Client) OnConnectionChanged(h homie.ConnectionHandler) (remove func()) {
	c.lmu.Lock()
	defer c.lmu.Unlock()
	c.nextListener++
	id := c.nextListener
	c.connListeners = append(c.connListeners, connListener{id: id, h: h})

	return func() {
		c.lmu.Lock()
		defer c.lmu.Unlock()
		for i, l := range c.connListeners {
			if l.id == id {
				c.connListeners = append(c.connListeners[:i:i], c.connListeners[i+1:]...)
				return
			}
		}
	}
}

func (c *Client) handleMessage(_ pahomqtt.Client, msg pahomqtt.Message) {
	c.metrics.receive()

	c.lmu.RLock()
	listeners := append([]msgListener(nil), c.msgListeners...)
	c.lmu.RUnlock()

	topic, payload := msg.Topic(), string(msg.Payload())
	for _, l := range listeners {
		if l.retainedOnly && !msg.Retained() {
			continue
		}
		c.dispatch(topic, payload, l.h)
	}
}

// dispatch calls a listener, recovering from panics so one bad handler
// cannot take down paho's router.
func (c *Client) dispatch(topic, payload string, h homie.MessageHandler) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("message handler panicked", zap.String("topic", topic), zap.Any("panic", r))
		}
	}()
	h(topic, payload)
}

func (c *Client) handleConnectivity(connected bool) {
	c.metrics.setConnected(connected)
	if connected {
		c.log.Info("connected")
	} else {
		// wake the monitor so it retries right away
		select {
		case c.kick <- struct{}{}:
		default:
		}
	}

	c.lmu.RLock()
	listeners := append([]connListener(nil), c.connListeners...)
	c.lmu.RUnlock()

	for _, l := range listeners {
		l.h(connected)
	}
}
