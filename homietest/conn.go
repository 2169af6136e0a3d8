// Package homietest provides an in-memory homie.HostConnection for tests.
package homietest

import (
	"sync"

	homie "github.com/duke1swd/homieGo"
)

// Message is a recorded publish.
type Message struct {
	Topic    string
	Payload  string
	QoS      byte
	Retained bool
}

// Conn records publishes and subscriptions. It starts disconnected; Connect
// connects synchronously and notifies the connectivity listeners. Publish and
// Subscribe fail while disconnected, as a real transport does.
type Conn struct {
	mu          sync.Mutex
	connected   bool
	connectErr  error
	connects    int
	published   []Message
	subscribed  []string
	willTopic   string
	willPayload string

	nextID   int
	onMsg    map[int]homie.MessageHandler
	onConn   map[int]homie.ConnectionHandler
	msgOrder []int
}

var _ homie.HostConnection = (*Conn)(nil)

// NewConn returns a disconnected Conn.
func NewConn() *Conn {
	return &Conn{
		onMsg:  make(map[int]homie.MessageHandler),
		onConn: make(map[int]homie.ConnectionHandler),
	}
}

// FailConnect makes every following Connect return err. Nil restores normal
// behaviour.
func (c *Conn) FailConnect(err error) {
	c.mu.Lock()
	c.connectErr = err
	c.mu.Unlock()
}

func (c *Conn) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Conn) Connect() error {
	c.mu.Lock()
	c.connects++
	err := c.connectErr
	c.mu.Unlock()
	if err != nil {
		return err
	}
	c.SetConnected(true)
	return nil
}

// Connects counts Connect calls.
func (c *Conn) Connects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connects
}

// SetConnected changes the connectivity and notifies listeners when it
// actually changed.
func (c *Conn) SetConnected(connected bool) {
	c.mu.Lock()
	if c.connected == connected {
		c.mu.Unlock()
		return
	}
	c.connected = connected
	handlers := make([]homie.ConnectionHandler, 0, len(c.onConn))
	for _, h := range c.onConn {
		handlers = append(handlers, h)
	}
	c.mu.Unlock()

	for _, h := range handlers {
		h(connected)
	}
}

func (c *Conn) Publish(topic, payload string, qos byte, retained bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return false
	}
	c.published = append(c.published, Message{Topic: topic, Payload: payload, QoS: qos, Retained: retained})
	return true
}

func (c *Conn) Subscribe(topic string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return false
	}
	c.subscribed = append(c.subscribed, topic)
	return true
}

func (c *Conn) SetWill(topic, payload string) {
	c.mu.Lock()
	c.willTopic, c.willPayload = topic, payload
	c.mu.Unlock()
}

// Will returns the last will set on the connection.
func (c *Conn) Will() (topic, payload string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.willTopic, c.willPayload
}

func (c *Conn) OnMessage(h homie.MessageHandler) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	c.onMsg[id] = h
	c.msgOrder = append(c.msgOrder, id)
	return func() {
		c.mu.Lock()
		delete(c.onMsg, id)
		c.mu.Unlock()
	}
}

func (c *Conn) OnConnectionChanged(h homie.ConnectionHandler) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	c.onConn[id] = h
	return func() {
		c.mu.Lock()
		delete(c.onConn, id)
		c.mu.Unlock()
	}
}

// Listeners counts the registered message and connectivity listeners.
func (c *Conn) Listeners() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.onMsg) + len(c.onConn)
}

// Deliver hands an inbound message to the message listeners in registration
// order.
func (c *Conn) Deliver(topic, payload string) {
	c.mu.Lock()
	var handlers []homie.MessageHandler
	for _, id := range c.msgOrder {
		if h, ok := c.onMsg[id]; ok {
			handlers = append(handlers, h)
		}
	}
	c.mu.Unlock()

	for _, h := range handlers {
		h(topic, payload)
	}
}

// Published returns the publishes recorded so far.
func (c *Conn) Published() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.published...)
}

// Topics returns the topics of the recorded publishes, in order.
func (c *Conn) Topics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	topics := make([]string, len(c.published))
	for i, m := range c.published {
		topics[i] = m.Topic
	}
	return topics
}

// Retained returns the last retained payload per topic, as a broker would
// hold it.
func (c *Conn) Retained() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]string)
	for _, m := range c.published {
		if m.Retained {
			out[m.Topic] = m.Payload
		}
	}
	return out
}

// Subscriptions returns the recorded subscriptions, in order.
func (c *Conn) Subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.subscribed...)
}

// Reset forgets recorded publishes and subscriptions.
func (c *Conn) Reset() {
	c.mu.Lock()
	c.published = nil
	c.subscribed = nil
	c.mu.Unlock()
}
