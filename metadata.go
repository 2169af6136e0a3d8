package homie

import (
	"fmt"

	"github.com/samber/lo"
)

// PropertyMetadata describes one property, independent of role.
type PropertyMetadata struct {
	NodeID       string
	PropertyID   string
	Name         string
	Type         PropertyType
	DataType     DataType
	Format       string
	Unit         string
	InitialValue string
}

// ID is the node-scoped property id, "node/property".
func (m *PropertyMetadata) ID() string {
	return m.NodeID + "/" + m.PropertyID
}

// ValidateAndFix checks the descriptor against the data type rules and applies
// the legal widenings in place. The property is acceptable iff errs is empty.
func (m *PropertyMetadata) ValidateAndFix() (errs, warnings []string) {
	fail := func(format string, args ...any) {
		errs = append(errs, m.ID()+": "+fmt.Sprintf(format, args...))
	}
	warn := func(format string, args ...any) {
		warnings = append(warnings, m.ID()+": "+fmt.Sprintf(format, args...))
	}

	if err := ValidateID(m.NodeID); err != nil {
		fail("node id: %v", err)
	}
	if err := ValidateID(m.PropertyID); err != nil {
		fail("property id: %v", err)
	}

	// commands have no resting state
	checkValue := m.Type != Command
	if m.Type == Command && m.InitialValue != "" {
		warn("command carries initial value %q, cleared", m.InitialValue)
		m.InitialValue = ""
	}

	switch m.DataType {
	case DtString:

	case DtInteger:
		if checkValue {
			if !IsInteger(m.InitialValue) {
				fail("initial value %q is not an integer", m.InitialValue)
				break
			}
			if _, err := ParseFloat(m.InitialValue); err != nil {
				fail("initial value: %v", err)
				break
			}
		}
		m.DataType = DtFloat
		m.Format = PrecisionFormat(0)
		warn("integer promoted to float with format %s", m.Format)

	case DtFloat:
		if checkValue {
			if _, err := ParseFloat(m.InitialValue); err != nil {
				fail("initial value: %v", err)
			}
		}

	case DtBoolean:
		if checkValue {
			if _, err := ParseBool(m.InitialValue); err != nil {
				fail("initial value %q is not a boolean", m.InitialValue)
				break
			}
		}
		m.DataType = DtEnum
		m.Format = "false,true"
		m.Unit = ""
		warn("boolean promoted to enum with format %s", m.Format)

	case DtEnum:
		options := EnumOptions(m.Format)
		if len(options) < 2 {
			fail("enum format %q needs at least two options", m.Format)
			break
		}
		if checkValue && !lo.Contains(options, m.InitialValue) {
			fail("initial value %q is not one of %q", m.InitialValue, m.Format)
		}

	case DtColor:
		format := ColorFormat(m.Format)
		if format != ColorRGB && format != ColorHSV {
			fail("color format %q must be rgb or hsv", m.Format)
			break
		}
		if checkValue {
			if err := ValidateColorPayload(m.InitialValue, format); err != nil {
				fail("initial value: %v", err)
			}
		}

	case DtDateTime, DtDuration:
		fail("data type %s is not supported", m.DataType)

	default:
		fail("unknown data type %d", int(m.DataType))
	}

	return errs, warnings
}

// validate is the fail-fast form of ValidateAndFix used by builder calls.
func (m *PropertyMetadata) validate() error {
	if err := ValidateID(m.NodeID); err != nil {
		return err
	}
	if err := ValidateID(m.PropertyID); err != nil {
		return err
	}
	errs, _ := m.ValidateAndFix()
	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfiguration, errs[0])
	}
	return nil
}

// NodeMetadata is a node of a discovered tree.
type NodeMetadata struct {
	ID         string
	Name       string
	Type       string
	Attributes map[string]string
	Properties []*PropertyMetadata
}

// DeviceMetadata is the root of a discovered tree.
type DeviceMetadata struct {
	ID           string
	HomieVersion string
	Name         string
	State        string
	Attributes   map[string]string
	Nodes        []*NodeMetadata
}

// Property looks up a property by its node-scoped id.
func (d *DeviceMetadata) Property(id string) (*PropertyMetadata, bool) {
	for _, n := range d.Nodes {
		for _, p := range n.Properties {
			if p.ID() == id {
				return p, true
			}
		}
	}
	return nil, false
}
