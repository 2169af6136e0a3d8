package homie

import (
	"fmt"
	"sync"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

const defaultQoS = 1

type role int

const (
	roleHost role = iota
	roleClient
)

func (r role) String() string {
	if r == roleHost {
		return "host"
	}
	return "client"
}

// device holds what Host and Client devices share: the topic-handler map,
// the subscription list, the retained cache and the transport wiring.
type device struct {
	cfg  Config
	log  *zap.Logger
	id   string
	role role

	// inbound serializes inbound dispatch, connectivity handling and Initialize.
	inbound sync.Mutex

	// pub orders retained publishes against replay, so the broker never ends
	// up with a stale cached value. Handlers are never called under it.
	pub sync.Mutex

	// mu guards everything below. It is never held across a publish.
	mu            sync.RWMutex
	name          string
	homieVersion  string
	state         DeviceState
	nodes         []*node
	properties    []*Property
	handlers      map[string][]MessageHandler
	subscriptions []string
	retained      map[string]string
	retainedOrder []string
	conn          Connection
	initialized   bool
	disposed      bool
	detach        []func()
}

func newDevice(id, name string, r role, cfg Config) (*device, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	return &device{
		cfg:      cfg,
		log:      cfg.Logger.With(zap.String("device", id), zap.Stringer("role", r)),
		id:       id,
		role:     r,
		name:     name,
		state:    StateInit,
		handlers: make(map[string][]MessageHandler),
		retained: make(map[string]string),
	}, nil
}

// ID returns the device id.
func (d *device) ID() string { return d.id }

func (d *device) Name() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.name
}

func (d *device) State() DeviceState {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

// BaseTopic returns the configured topic root.
func (d *device) BaseTopic() string { return d.cfg.BaseTopic }

// Topic returns the full topic of a device-relative path.
func (d *device) Topic(sub string) string {
	return d.cfg.BaseTopic + "/" + d.id + "/" + sub
}

// Properties returns the properties in creation order.
func (d *device) Properties() []*Property {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]*Property(nil), d.properties...)
}

// Property finds a property by its node-scoped id ("node/property").
// A missing property is a normal state during discovery, not an error.
func (d *device) Property(id string) (*Property, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return lo.Find(d.properties, func(p *Property) bool { return p.ID() == id })
}

// Nodes returns a snapshot of the node descriptors in declaration order.
func (d *device) Nodes() []NodeInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return lo.Map(d.nodes, func(n *node, _ int) NodeInfo { return n.info() })
}

func (d *device) checkNotInitialized(what string) error {
	if d.initialized {
		return fmt.Errorf("%w: %s after Initialize", ErrInvalidOperation, what)
	}
	if d.disposed {
		return fmt.Errorf("%w: %s on a disposed device", ErrInvalidOperation, what)
	}
	return nil
}

// findNode returns the node or nil. Caller holds mu.
func (d *device) findNode(id string) *node {
	n, _ := lo.Find(d.nodes, func(n *node) bool { return n.id == id })
	return n
}

// ensureNode returns the node, declaring it when missing. Caller holds mu.
func (d *device) ensureNode(id string) *node {
	if n := d.findNode(id); n != nil {
		return n
	}
	n := &node{id: id, name: id}
	d.nodes = append(d.nodes, n)
	return n
}

// addProperty registers p and reserves its slot in the node. Caller holds mu.
func (d *device) addProperty(p *Property) error {
	if _, dup := lo.Find(d.properties, func(q *Property) bool { return q.ID() == p.ID() }); dup {
		return fmt.Errorf("%w: property %s already exists", ErrInvalidConfiguration, p.ID())
	}
	n := d.ensureNode(p.meta.NodeID)
	n.properties = append(n.properties, p.meta.PropertyID)
	d.properties = append(d.properties, p)
	return nil
}

// on registers a handler for an exact topic and records the subscription.
// Caller holds mu.
func (d *device) on(topic string, h MessageHandler) {
	if _, ok := d.handlers[topic]; !ok {
		d.subscriptions = append(d.subscriptions, topic)
	}
	d.handlers[topic] = append(d.handlers[topic], h)
}

// HandleInbound dispatches a payload to every handler of the exact topic.
// Topics this device does not know are ignored; several devices may share a
// transport.
func (d *device) HandleInbound(topic, payload string) {
	d.inbound.Lock()
	defer d.inbound.Unlock()

	d.mu.RLock()
	handlers := append([]MessageHandler(nil), d.handlers[topic]...)
	d.mu.RUnlock()

	for _, h := range handlers {
		h(topic, payload)
	}
}

// publish sends a payload. Retained payloads are cached first so that a
// publish failing while disconnected is replayed on the next connect.
func (d *device) publish(topic, payload string, retained bool) bool {
	if retained {
		d.pub.Lock()
		defer d.pub.Unlock()
	}

	d.mu.Lock()
	if retained {
		if _, ok := d.retained[topic]; !ok {
			d.retainedOrder = append(d.retainedOrder, topic)
		}
		d.retained[topic] = payload
	}
	conn := d.conn
	d.mu.Unlock()

	if conn == nil {
		return false
	}
	if !conn.Publish(topic, payload, defaultQoS, retained) {
		d.log.Debug("publish failed", zap.String("topic", topic))
		return false
	}
	return true
}

// publishState sends $state. It is kept out of the retained cache so that a
// replay can always send it last.
func (d *device) publishState() {
	d.pub.Lock()
	defer d.pub.Unlock()
	d.sendState()
}

// sendState publishes $state. Caller holds pub.
func (d *device) sendState() {
	d.mu.RLock()
	state, conn := d.state, d.conn
	d.mu.RUnlock()

	if conn == nil {
		return
	}
	if !conn.Publish(d.Topic("$state"), string(state), defaultQoS, true) {
		d.log.Debug("state publish failed", zap.String("state", string(state)))
	}
}

// subscribeAll subscribes every topic that has a handler.
func (d *device) subscribeAll() {
	d.mu.RLock()
	topics := append([]string(nil), d.subscriptions...)
	conn := d.conn
	d.mu.RUnlock()

	for _, t := range topics {
		if !conn.Subscribe(t) {
			d.log.Debug("subscribe failed", zap.String("topic", t))
		}
	}
}

// replay republishes the retained cache in first-publish order, then $state.
func (d *device) replay() {
	d.pub.Lock()
	defer d.pub.Unlock()

	d.mu.RLock()
	conn := d.conn
	type entry struct{ topic, payload string }
	entries := lo.Map(d.retainedOrder, func(t string, _ int) entry { return entry{t, d.retained[t]} })
	d.mu.RUnlock()

	for _, e := range entries {
		if !conn.Publish(e.topic, e.payload, defaultQoS, true) {
			d.log.Debug("replay publish failed", zap.String("topic", e.topic))
		}
	}
	d.sendState()
}

// attach wires the device to the transport's event stream. Caller holds inbound.
func (d *device) attach(conn Connection) {
	removeMsg := conn.OnMessage(d.HandleInbound)
	removeConn := conn.OnConnectionChanged(d.handleConnectivity)

	d.mu.Lock()
	d.conn = conn
	d.initialized = true
	d.detach = append(d.detach, removeMsg, removeConn)
	d.mu.Unlock()
}

func (d *device) handleConnectivity(connected bool) {
	d.inbound.Lock()
	defer d.inbound.Unlock()

	d.mu.Lock()
	if d.disposed {
		d.mu.Unlock()
		return
	}
	if d.role == roleHost {
		switch {
		case !connected && d.state == StateReady:
			d.state = StateDisconnected
		case connected && d.state == StateDisconnected:
			d.state = StateReady
		}
	}
	d.mu.Unlock()

	if !connected {
		d.log.Info("connection lost")
		return
	}

	d.log.Info("connection regained")
	if d.role == roleHost {
		d.replay()
	}
	d.subscribeAll()
}

// connect asks the transport to connect unless it already is.
func (d *device) connect() error {
	d.mu.RLock()
	conn := d.conn
	d.mu.RUnlock()

	if conn.IsConnected() {
		return nil
	}
	if err := conn.Connect(); err != nil {
		return fmt.Errorf("connecting device %s: %w", d.id, err)
	}
	return nil
}

// Dispose detaches the device from its transport. It is idempotent and safe
// to call on a device that was never initialized.
func (d *device) Dispose() {
	d.mu.Lock()
	detach := d.detach
	d.detach = nil
	d.disposed = true
	d.mu.Unlock()

	for _, f := range detach {
		f()
	}
}
