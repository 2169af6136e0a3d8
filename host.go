package homie

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// HostDevice publishes and owns a device tree and accepts set requests.
type HostDevice struct {
	*device
}

// NewHostDevice creates a host device. The id must be a valid Homie id.
func NewHostDevice(id, name string, cfg Config) (*HostDevice, error) {
	d, err := newDevice(id, name, roleHost, cfg)
	if err != nil {
		return nil, err
	}
	return &HostDevice{device: d}, nil
}

// UpdateNodeInfo declares a node or updates its name and type.
func (h *HostDevice) UpdateNodeInfo(nodeID, name, nodeType string) error {
	if err := ValidateID(nodeID); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.checkNotInitialized("UpdateNodeInfo"); err != nil {
		return err
	}
	n := h.ensureNode(nodeID)
	n.name = name
	n.nType = nodeType
	return nil
}

// CreateTextProperty adds a string property.
func (h *HostDevice) CreateTextProperty(t PropertyType, nodeID, propertyID, name, initial string) (*Property, error) {
	return h.create(PropertyMetadata{
		NodeID:       nodeID,
		PropertyID:   propertyID,
		Name:         name,
		Type:         t,
		DataType:     DtString,
		InitialValue: initial,
	})
}

// CreateNumberProperty adds a float property rendered with the given decimal
// places.
func (h *HostDevice) CreateNumberProperty(t PropertyType, nodeID, propertyID, name string, initial float64, unit string, decimals int) (*Property, error) {
	if decimals < 0 {
		return nil, fmt.Errorf("%w: negative decimal places for %s/%s", ErrInvalidConfiguration, nodeID, propertyID)
	}
	return h.create(PropertyMetadata{
		NodeID:       nodeID,
		PropertyID:   propertyID,
		Name:         name,
		Type:         t,
		DataType:     DtFloat,
		Format:       PrecisionFormat(decimals),
		Unit:         unit,
		InitialValue: typedInitial(t, FormatFloat(initial, decimals)),
	})
}

// CreateChoiceProperty adds an enum property.
func (h *HostDevice) CreateChoiceProperty(t PropertyType, nodeID, propertyID, name string, options []string, initial string) (*Property, error) {
	return h.create(PropertyMetadata{
		NodeID:       nodeID,
		PropertyID:   propertyID,
		Name:         name,
		Type:         t,
		DataType:     DtEnum,
		Format:       strings.Join(options, ","),
		InitialValue: initial,
	})
}

// CreateColorProperty adds a color property published in the given format.
func (h *HostDevice) CreateColorProperty(t PropertyType, nodeID, propertyID, name string, format ColorFormat, initial Color) (*Property, error) {
	return h.create(PropertyMetadata{
		NodeID:       nodeID,
		PropertyID:   propertyID,
		Name:         name,
		Type:         t,
		DataType:     DtColor,
		Format:       string(format),
		InitialValue: typedInitial(t, initial.Format(format)),
	})
}

// CreateDateTimeProperty adds a datetime property.
func (h *HostDevice) CreateDateTimeProperty(t PropertyType, nodeID, propertyID, name string, initial time.Time) (*Property, error) {
	return h.create(PropertyMetadata{
		NodeID:       nodeID,
		PropertyID:   propertyID,
		Name:         name,
		Type:         t,
		DataType:     DtDateTime,
		InitialValue: typedInitial(t, FormatDateTime(initial)),
	})
}

// typedInitial drops the rendered initial value of typed command factories;
// a command never has one.
func typedInitial(t PropertyType, rendered string) string {
	if t == Command {
		return ""
	}
	return rendered
}

func (h *HostDevice) create(meta PropertyMetadata) (*Property, error) {
	if err := ValidateID(meta.NodeID); err != nil {
		return nil, err
	}
	if err := ValidateID(meta.PropertyID); err != nil {
		return nil, err
	}
	if meta.Type == Command && meta.InitialValue != "" {
		return nil, fmt.Errorf("%w: command %s cannot carry an initial value", ErrInvalidConfiguration, meta.ID())
	}
	// datetime is publishable by a host even though consumers reject it
	if meta.DataType != DtDateTime {
		if err := meta.validate(); err != nil {
			return nil, err
		}
	}

	p, err := newProperty(h.device, meta)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.checkNotInitialized("creating property " + meta.ID()); err != nil {
		return nil, err
	}
	if err := h.addProperty(p); err != nil {
		return nil, err
	}
	if meta.Type.Settable() {
		h.on(p.SetTopic(), p.inbound())
	}
	return p, nil
}

// Initialize publishes the whole tree and connects.
//
// Publication order: $state=init, every property's descriptors followed by
// its value, $homie, $name, $nodes, every node's attributes, $state=ready.
// Publishes made while the transport is down only fill the retained cache,
// which is replayed in the same order once the connection comes up.
func (h *HostDevice) Initialize(conn HostConnection) error {
	if err := h.initialize(conn); err != nil {
		return err
	}
	return h.connect()
}

func (h *HostDevice) initialize(conn HostConnection) error {
	h.inbound.Lock()
	defer h.inbound.Unlock()

	h.mu.RLock()
	err := h.checkNotInitialized("Initialize")
	h.mu.RUnlock()
	if err != nil {
		return err
	}

	conn.SetWill(h.Topic("$state"), string(StateLost))
	h.attach(conn)

	h.mu.Lock()
	h.homieVersion = Version
	h.state = StateInit
	props := append([]*Property(nil), h.properties...)
	nodes := append([]*node(nil), h.nodes...)
	h.mu.Unlock()

	h.publishState()

	for _, p := range props {
		for _, a := range p.descriptors() {
			h.publishAttr(p.Topic()+"/"+a[0], a[1])
		}
		if p.meta.Type != Command {
			h.publishAttr(p.Topic(), p.Value())
		}
	}

	h.publishAttr(h.Topic("$homie"), Version)
	h.publishAttr(h.Topic("$name"), h.Name())
	nodeIDs := make([]string, 0, len(nodes))
	for _, n := range nodes {
		nodeIDs = append(nodeIDs, n.id)
	}
	h.publishAttr(h.Topic("$nodes"), strings.Join(nodeIDs, ","))

	h.mu.RLock()
	nodeAttrs := make(map[string][][2]string, len(nodes))
	for _, n := range nodes {
		nodeAttrs[n.id] = n.attributes()
	}
	h.mu.RUnlock()
	for _, id := range nodeIDs {
		for _, a := range nodeAttrs[id] {
			h.publishAttr(h.Topic(id+"/"+a[0]), a[1])
		}
	}

	h.mu.Lock()
	h.state = StateReady
	h.mu.Unlock()
	h.publishState()

	if conn.IsConnected() {
		h.subscribeAll()
	}

	h.log.Info("host device initialized",
		zap.Int("nodes", len(nodes)),
		zap.Int("properties", len(props)),
	)
	return nil
}

// publishAttr publishes a retained attribute. Empty payloads are skipped
// since an empty retained message clears the topic.
func (h *HostDevice) publishAttr(topic, payload string) {
	if payload == "" {
		return
	}
	h.publish(topic, payload, true)
}

// SetState publishes a new $state.
func (h *HostDevice) SetState(state DeviceState) error {
	if _, err := ParseDeviceState(string(state)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}

	h.mu.Lock()
	h.state = state
	initialized := h.initialized
	h.mu.Unlock()

	if initialized {
		h.publishState()
	}
	return nil
}
