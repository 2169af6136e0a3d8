package homie

import (
	"fmt"
	"maps"
	"strings"

	"github.com/samber/lo"
)

var (
	deviceAttrsRequired   = []string{"$homie", "$name", "$nodes", "$state"}
	propertyAttrsRequired = []string{"$name", "$datatype", "$settable", "$retained"}
)

const trimmedWarning = "tree has been trimmed; values no longer match the live broker topics verbatim"

// ParseResult is the outcome of ParseTopicDump. Errors name dropped
// entities; Warnings name entities kept but modified or suspicious.
type ParseResult struct {
	Devices  []*DeviceMetadata
	Errors   []string
	Warnings []string
}

// ParseTopicDump rebuilds device trees from an unordered list of
// "topic:payload" lines rooted at baseTopic. Lines without a separator or
// outside the base are ignored; when a topic repeats the last payload wins.
// Devices are returned in the order their $homie line first appears.
func ParseTopicDump(baseTopic string, dump []string) *ParseResult {
	p := &dumpParser{
		base:     baseTopic,
		topics:   make(map[string]string, len(dump)),
		children: make(map[string]map[string]string),
		result:   &ParseResult{},
	}

	prefix := baseTopic + "/"
	var deviceIDs []string
	seen := make(map[string]bool)
	for _, line := range dump {
		topic, payload, ok := strings.Cut(line, ":")
		if !ok || !strings.HasPrefix(topic, prefix) {
			continue
		}
		p.topics[topic] = payload

		id, ok := strings.CutSuffix(strings.TrimPrefix(topic, prefix), "/$homie")
		if ok && !strings.Contains(id, "/") && !seen[id] {
			seen[id] = true
			deviceIDs = append(deviceIDs, id)
		}
	}

	p.indexAttributes()

	for _, id := range deviceIDs {
		if dev := p.device(id); dev != nil {
			p.result.Devices = append(p.result.Devices, dev)
		}
	}
	return p.result
}

type dumpParser struct {
	base   string
	topics map[string]string
	// children maps a parent path to its "$attr" payloads.
	children map[string]map[string]string
	result   *ParseResult
}

func (p *dumpParser) errorf(format string, args ...any) {
	p.result.Errors = append(p.result.Errors, fmt.Sprintf(format, args...))
}

func (p *dumpParser) warnf(format string, args ...any) {
	p.result.Warnings = append(p.result.Warnings, fmt.Sprintf(format, args...))
}

// indexAttributes groups every "$attr" topic under its parent path.
func (p *dumpParser) indexAttributes() {
	for topic, payload := range p.topics {
		i := strings.LastIndex(topic, "/")
		parent, name := topic[:i], topic[i+1:]
		if !strings.HasPrefix(name, "$") {
			continue
		}
		attrs, ok := p.children[parent]
		if !ok {
			attrs = make(map[string]string)
			p.children[parent] = attrs
		}
		attrs[name] = payload
	}
}

// attrs returns a copy of the "$attr" topics directly below path.
func (p *dumpParser) attrs(path string) map[string]string {
	out := maps.Clone(p.children[path])
	if out == nil {
		out = make(map[string]string)
	}
	return out
}

// uniqueIDs splits a comma list and drops repeated ids with a warning.
func (p *dumpParser) uniqueIDs(where, attr, list string) []string {
	ids := splitList(list)
	unique := lo.Uniq(ids)
	if len(unique) != len(ids) {
		p.warnf("%s: duplicate ids in %s %q ignored", where, attr, list)
	}
	return unique
}

func missing(attrs map[string]string, required []string) []string {
	return lo.Filter(required, func(name string, _ int) bool {
		_, ok := attrs[name]
		return !ok
	})
}

func (p *dumpParser) device(id string) *DeviceMetadata {
	if err := ValidateID(id); err != nil {
		p.errorf("device %s dropped: %v", id, err)
		return nil
	}

	path := p.base + "/" + id
	attrs := p.attrs(path)
	if m := missing(attrs, deviceAttrsRequired); len(m) > 0 {
		p.errorf("device %s dropped: missing %s", id, strings.Join(m, ", "))
		return nil
	}

	dev := &DeviceMetadata{
		ID:           id,
		HomieVersion: attrs["$homie"],
		Name:         attrs["$name"],
		State:        attrs["$state"],
		Attributes:   attrs,
	}

	candidates := splitList(attrs["$nodes"])
	for _, nodeID := range p.uniqueIDs("device "+id, "$nodes", attrs["$nodes"]) {
		if n := p.node(dev, nodeID); n != nil {
			dev.Nodes = append(dev.Nodes, n)
		}
	}

	if len(dev.Nodes) == 0 {
		p.errorf("device %s dropped: no valid nodes", id)
		return nil
	}
	if len(dev.Nodes) != len(candidates) {
		attrs["$nodes"] = strings.Join(lo.Map(dev.Nodes, func(n *NodeMetadata, _ int) string { return n.ID }), ",")
		p.warnf("device %s: %s", id, trimmedWarning)
	}
	return dev
}

func (p *dumpParser) node(dev *DeviceMetadata, id string) *NodeMetadata {
	if err := ValidateID(id); err != nil {
		p.errorf("device %s: node %q dropped: %v", dev.ID, id, err)
		return nil
	}

	path := p.base + "/" + dev.ID + "/" + id
	attrs := p.attrs(path)
	if _, ok := attrs["$properties"]; !ok {
		p.errorf("device %s: node %s dropped: missing $properties", dev.ID, id)
		return nil
	}

	n := &NodeMetadata{
		ID:         id,
		Name:       attrs["$name"],
		Type:       attrs["$type"],
		Attributes: attrs,
	}

	candidates := splitList(attrs["$properties"])
	for _, propertyID := range p.uniqueIDs("device "+dev.ID+": node "+id, "$properties", attrs["$properties"]) {
		if m := p.property(dev.ID, id, propertyID); m != nil {
			n.Properties = append(n.Properties, m)
		}
	}

	if len(n.Properties) == 0 {
		p.errorf("device %s: node %s dropped: no valid properties", dev.ID, id)
		return nil
	}
	if len(n.Properties) != len(candidates) {
		attrs["$properties"] = strings.Join(lo.Map(n.Properties, func(m *PropertyMetadata, _ int) string { return m.PropertyID }), ",")
		p.warnf("device %s: node %s: %s", dev.ID, id, trimmedWarning)
	}
	return n
}

func (p *dumpParser) property(deviceID, nodeID, id string) *PropertyMetadata {
	where := deviceID + "/" + nodeID + "/" + id
	if err := ValidateID(id); err != nil {
		p.errorf("property %s dropped: %v", where, err)
		return nil
	}

	path := p.base + "/" + where
	attrs := p.attrs(path)
	if m := missing(attrs, propertyAttrsRequired); len(m) > 0 {
		p.errorf("property %s dropped: missing %s", where, strings.Join(m, ", "))
		return nil
	}

	settable, err := ParseBool(attrs["$settable"])
	if err != nil {
		p.errorf("property %s dropped: $settable: %v", where, err)
		return nil
	}
	retained, err := ParseBool(attrs["$retained"])
	if err != nil {
		p.errorf("property %s dropped: $retained: %v", where, err)
		return nil
	}
	pt, err := PropertyTypeOf(settable, retained)
	if err != nil {
		p.errorf("property %s dropped: %v", where, err)
		return nil
	}
	dt, err := ParseDataType(attrs["$datatype"])
	if err != nil {
		p.errorf("property %s dropped: %v", where, err)
		return nil
	}

	if _, ok := p.topics[path+"/set"]; ok {
		p.warnf("property %s: set topic is retained", where)
	}

	m := &PropertyMetadata{
		NodeID:     nodeID,
		PropertyID: id,
		Name:       attrs["$name"],
		Type:       pt,
		DataType:   dt,
		Format:     attrs["$format"],
		Unit:       attrs["$unit"],
		// the bare value topic only; a retained /set echo is never a value
		InitialValue: p.topics[path],
	}

	errs, warnings := m.ValidateAndFix()
	for _, w := range warnings {
		p.warnf("device %s: %s", deviceID, w)
	}
	if len(errs) > 0 {
		for _, e := range errs {
			p.errorf("device %s: %s", deviceID, e)
		}
		p.errorf("property %s dropped: failed validation", where)
		return nil
	}
	return m
}
