package homie

import (
	"fmt"

	"go.uber.org/zap"
)

// StateHandler is called when a remote device reports a new $state.
type StateHandler func(state DeviceState)

// ClientDevice mirrors a remote device and sends set requests to it.
type ClientDevice struct {
	*device

	onState []StateHandler
}

// NewClientDevice creates an empty mirror of the remote device id. Properties
// are added with CreateProperty.
func NewClientDevice(id string, cfg Config) (*ClientDevice, error) {
	d, err := newDevice(id, "", roleClient, cfg)
	if err != nil {
		return nil, err
	}
	// unknown until the remote device reports it
	d.state = ""

	c := &ClientDevice{device: d}
	c.on(c.Topic("$homie"), c.handleHomie)
	c.on(c.Topic("$name"), c.handleName)
	c.on(c.Topic("$state"), c.handleState)
	return c, nil
}

// NewClientDeviceFromMetadata builds a mirror of a discovered device.
func NewClientDeviceFromMetadata(meta *DeviceMetadata, cfg Config) (*ClientDevice, error) {
	if len(meta.Nodes) == 0 {
		return nil, fmt.Errorf("%w: device %s has no nodes", ErrInvalidConfiguration, meta.ID)
	}

	c, err := NewClientDevice(meta.ID, cfg)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.name = meta.Name
	c.homieVersion = meta.HomieVersion
	if st, err := ParseDeviceState(meta.State); err == nil {
		c.state = st
	}
	for _, nm := range meta.Nodes {
		n := c.ensureNode(nm.ID)
		n.name = nm.Name
		n.nType = nm.Type
	}
	c.mu.Unlock()

	for _, nm := range meta.Nodes {
		for _, pm := range nm.Properties {
			if _, err := c.CreateProperty(*pm); err != nil {
				return nil, err
			}
		}
	}
	return c, nil
}

// CreateProperty adds a property to the mirror. The descriptor runs through
// ValidateAndFix, so integer and boolean descriptors are widened.
func (c *ClientDevice) CreateProperty(meta PropertyMetadata) (*Property, error) {
	if err := meta.validate(); err != nil {
		return nil, err
	}
	p, err := newProperty(c.device, meta)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkNotInitialized("creating property " + meta.ID()); err != nil {
		return nil, err
	}
	if err := c.addProperty(p); err != nil {
		return nil, err
	}
	// commands have no value topic to follow
	if meta.Type != Command {
		c.on(p.Topic(), p.inbound())
	}
	return p, nil
}

// HomieVersion is the convention version reported by the remote device.
func (c *ClientDevice) HomieVersion() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.homieVersion
}

// OnStateChange registers a handler for remote $state changes.
func (c *ClientDevice) OnStateChange(h StateHandler) {
	c.mu.Lock()
	c.onState = append(c.onState, h)
	c.mu.Unlock()
}

// Initialize subscribes to the device attributes and to every State and
// Parameter value topic, then connects.
func (c *ClientDevice) Initialize(conn Connection) error {
	if err := c.initialize(conn); err != nil {
		return err
	}
	return c.connect()
}

func (c *ClientDevice) initialize(conn Connection) error {
	c.inbound.Lock()
	defer c.inbound.Unlock()

	c.mu.RLock()
	err := c.checkNotInitialized("Initialize")
	c.mu.RUnlock()
	if err != nil {
		return err
	}

	c.attach(conn)
	if conn.IsConnected() {
		c.subscribeAll()
	}
	c.log.Info("client device initialized", zap.Int("properties", len(c.Properties())))
	return nil
}

func (c *ClientDevice) handleHomie(_, payload string) {
	c.mu.Lock()
	c.homieVersion = payload
	c.mu.Unlock()
}

func (c *ClientDevice) handleName(_, payload string) {
	c.mu.Lock()
	c.name = payload
	c.mu.Unlock()
}

func (c *ClientDevice) handleState(topic, payload string) {
	st, err := ParseDeviceState(payload)
	if err != nil {
		c.log.Warn("ignoring state", zap.String("topic", topic), zap.Error(err))
		return
	}

	c.mu.Lock()
	changed := c.state != st
	c.state = st
	handlers := append([]StateHandler(nil), c.onState...)
	c.mu.Unlock()

	if !changed {
		return
	}
	for _, h := range handlers {
		h(st)
	}
}
