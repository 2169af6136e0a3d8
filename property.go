package homie

import (
	"fmt"
	"sync"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

// Property methods
// A property keeps its value as the wire string. Typed accessors parse and
// format on demand so the cached value and the outbound payload never drift.

// ChangeHandler is called after a new value has been stored.
type ChangeHandler func(p *Property)

// Property is a handle on a host or client property.
type Property struct {
	device *device
	meta   PropertyMetadata
	kind   PropertyKind

	mu       sync.RWMutex
	value    string
	onChange []ChangeHandler
}

func newProperty(d *device, meta PropertyMetadata) (*Property, error) {
	kind, err := kindOf(meta.DataType)
	if err != nil {
		return nil, err
	}
	p := &Property{device: d, meta: meta, kind: kind}
	if meta.Type != Command {
		p.value = meta.InitialValue
	}
	return p, nil
}

// ID is the node-scoped id, "node/property".
func (p *Property) ID() string { return p.meta.ID() }
func (p *Property) NodeID() string { return p.meta.NodeID }
func (p *Property) PropertyID() string { return p.meta.PropertyID }
func (p *Property) Name() string { return p.meta.Name }
func (p *Property) Type() PropertyType { return p.meta.Type }
func (p *Property) DataType() DataType { return p.meta.DataType }
func (p *Property) Format() string { return p.meta.Format }
func (p *Property) Unit() string { return p.meta.Unit }
func (p *Property) Kind() PropertyKind { return p.kind }
func (p *Property) Metadata() PropertyMetadata {
	m := p.meta
	m.InitialValue = p.Value()
	return m
}

// Topic is the value topic of the property.
func (p *Property) Topic() string {
	return p.device.Topic(p.meta.NodeID + "/" + p.meta.PropertyID)
}

// SetTopic is the topic on which set requests are sent.
func (p *Property) SetTopic() string {
	return p.Topic() + "/set"
}

// Value returns the raw wire value.
func (p *Property) Value() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.value
}

// OnChange registers a handler called after every accepted inbound value.
func (p *Property) OnChange(h ChangeHandler) {
	p.mu.Lock()
	p.onChange = append(p.onChange, h)
	p.mu.Unlock()
}

func (p *Property) Text() string { return p.Value() }

func (p *Property) Number() (float64, error) {
	if p.kind != KindNumber {
		return 0, p.kindError(KindNumber)
	}
	return ParseFloat(p.Value())
}

func (p *Property) Choice() string { return p.Value() }

// Options lists the allowed values of a choice property.
func (p *Property) Options() []string {
	if p.kind != KindChoice {
		return nil
	}
	return EnumOptions(p.meta.Format)
}

func (p *Property) Color() (Color, error) {
	if p.kind != KindColor {
		return Color{}, p.kindError(KindColor)
	}
	return ParseColor(p.Value(), ColorFormat(p.meta.Format))
}

func (p *Property) DateTime() (time.Time, error) {
	if p.kind != KindDateTime {
		return time.Time{}, p.kindError(KindDateTime)
	}
	return ParseDateTime(p.Value())
}

func (p *Property) SetText(s string) error {
	return p.set(KindText, s)
}

// SetNumber formats v with the precision of the property's format.
func (p *Property) SetNumber(v float64) error {
	return p.set(KindNumber, FormatFloat(v, Precision(p.meta.Format)))
}

func (p *Property) SetChoice(option string) error {
	return p.set(KindChoice, option)
}

func (p *Property) SetColor(c Color) error {
	return p.set(KindColor, c.Format(ColorFormat(p.meta.Format)))
}

func (p *Property) SetDateTime(t time.Time) error {
	return p.set(KindDateTime, FormatDateTime(t))
}

func (p *Property) kindError(want PropertyKind) error {
	return fmt.Errorf("%w: property %s is %s, not %s", ErrInvalidOperation, p.ID(), p.kind, want)
}

// set is the common path of the typed setters. Hosts publish State and
// Parameter values retained on the value topic; clients publish Parameter and
// Command intents on the set topic.
func (p *Property) set(kind PropertyKind, raw string) error {
	if kind != p.kind {
		return p.kindError(kind)
	}
	if err := validatePayload(p.kind, p.meta.Format, raw); err != nil {
		return fmt.Errorf("property %s: %w", p.ID(), err)
	}

	d := p.device
	d.mu.RLock()
	initialized := d.initialized
	d.mu.RUnlock()

	switch d.role {
	case roleHost:
		if p.meta.Type == Command {
			return fmt.Errorf("%w: host command %s has no value to set", ErrInvalidOperation, p.ID())
		}
		p.store(raw)
		if initialized {
			d.publish(p.Topic(), raw, true)
		}

	case roleClient:
		if p.meta.Type == State {
			return fmt.Errorf("%w: client state %s is read-only", ErrInvalidOperation, p.ID())
		}
		if !initialized {
			return fmt.Errorf("%w: device %s is not initialized", ErrInvalidOperation, d.id)
		}
		d.publish(p.SetTopic(), raw, false)
	}
	return nil
}

func (p *Property) store(raw string) {
	p.mu.Lock()
	p.value = raw
	p.mu.Unlock()
}

func (p *Property) notify() {
	p.mu.RLock()
	handlers := append([]ChangeHandler(nil), p.onChange...)
	p.mu.RUnlock()

	for _, h := range handlers {
		h(p)
	}
}

// inbound returns the handler for the value topic (client) or the set topic
// (host).
func (p *Property) inbound() MessageHandler {
	return func(topic, payload string) {
		if err := validatePayload(p.kind, p.meta.Format, payload); err != nil {
			p.device.log.Warn("dropping invalid payload",
				zap.String("topic", topic),
				zap.String("payload", payload),
				zap.Error(err),
			)
			return
		}

		p.store(payload)
		if p.device.role == roleHost && p.meta.Type == Parameter {
			p.device.publish(p.Topic(), payload, true)
		}
		p.notify()
	}
}

// descriptors lists the property's attribute topics in publication order.
func (p *Property) descriptors() [][2]string {
	return [][2]string{
		{"$name", p.meta.Name},
		{"$datatype", p.meta.DataType.String()},
		{"$format", p.meta.Format},
		{"$settable", FormatBool(p.meta.Type.Settable())},
		{"$retained", FormatBool(p.meta.Type.Retained())},
		{"$unit", p.meta.Unit},
	}
}

// validatePayload checks a wire value against a property kind.
func validatePayload(kind PropertyKind, format, payload string) error {
	switch kind {
	case KindText:
		return nil
	case KindNumber:
		_, err := ParseFloat(payload)
		return err
	case KindChoice:
		if !lo.Contains(EnumOptions(format), payload) {
			return fmt.Errorf("%w: %q is not one of %q", ErrInvalidValue, payload, format)
		}
		return nil
	case KindColor:
		return ValidateColorPayload(payload, ColorFormat(format))
	case KindDateTime:
		_, err := ParseDateTime(payload)
		return err
	}
	return fmt.Errorf("%w: unknown kind %s", ErrInvalidValue, kind)
}
