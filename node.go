package homie

import "strings"

// Node methods

// node is virtual: a descriptor attached to a device, published as
// $name, $type and $properties under the node id.
type node struct {
	id         string
	name       string
	nType      string
	properties []string
}

// NodeInfo is a read-only view of a node.
type NodeInfo struct {
	ID         string
	Name       string
	Type       string
	Properties []string
}

func (n *node) info() NodeInfo {
	return NodeInfo{
		ID:         n.id,
		Name:       n.name,
		Type:       n.nType,
		Properties: append([]string(nil), n.properties...),
	}
}

func (n *node) attributes() [][2]string {
	return [][2]string{
		{"$name", n.name},
		{"$type", n.nType},
		{"$properties", strings.Join(n.properties, ",")},
	}
}
