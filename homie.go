package homie

import (
	"fmt"

	"go.uber.org/zap"
)

// Version of the Homie convention published in $homie.
const Version = "4.0.0"

const defaultTopicBase = "homie"

// DeviceState is the value published in $state.
type DeviceState string

const (
	StateInit         DeviceState = "init"
	StateReady        DeviceState = "ready"
	StateDisconnected DeviceState = "disconnected"
	StateSleeping     DeviceState = "sleeping"
	StateLost         DeviceState = "lost"
	StateAlert        DeviceState = "alert"
)

// ParseDeviceState converts a $state payload.
func ParseDeviceState(s string) (DeviceState, error) {
	switch st := DeviceState(s); st {
	case StateInit, StateReady, StateDisconnected, StateSleeping, StateLost, StateAlert:
		return st, nil
	}
	return "", fmt.Errorf("unknown device state %q", s)
}

// DataType is a property's $datatype.
type DataType int

// These are the data types of the v4 convention.
const (
	DtString DataType = iota
	DtInteger
	DtFloat
	DtBoolean
	DtEnum
	DtColor
	DtDateTime
	DtDuration
)

var dataTypeNames = [...]string{
	DtString:   "string",
	DtInteger:  "integer",
	DtFloat:    "float",
	DtBoolean:  "boolean",
	DtEnum:     "enum",
	DtColor:    "color",
	DtDateTime: "datetime",
	DtDuration: "duration",
}

func (t DataType) String() string {
	if t < 0 || int(t) >= len(dataTypeNames) {
		return fmt.Sprintf("DataType(%d)", int(t))
	}
	return dataTypeNames[t]
}

// ParseDataType converts a $datatype payload.
func ParseDataType(s string) (DataType, error) {
	for i, name := range dataTypeNames {
		if name == s {
			return DataType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown data type %q", s)
}

// PropertyType is derived from the $settable and $retained attributes.
type PropertyType int

const (
	// State is read-only telemetry: settable=false, retained=true.
	State PropertyType = iota
	// Parameter is a persisted, host-confirmed setting: settable=true, retained=true.
	Parameter
	// Command is a fire-and-forget action: settable=true, retained=false.
	Command
)

func (t PropertyType) String() string {
	switch t {
	case State:
		return "state"
	case Parameter:
		return "parameter"
	case Command:
		return "command"
	}
	return fmt.Sprintf("PropertyType(%d)", int(t))
}

func (t PropertyType) Settable() bool { return t != State }

func (t PropertyType) Retained() bool { return t != Command }

// PropertyTypeOf maps a settable/retained pair to its property type.
// settable=false with retained=false has no meaning and is rejected.
func PropertyTypeOf(settable, retained bool) (PropertyType, error) {
	switch {
	case !settable && retained:
		return State, nil
	case settable && retained:
		return Parameter, nil
	case settable && !retained:
		return Command, nil
	}
	return 0, fmt.Errorf("%w: a property that is neither settable nor retained", ErrInvalidConfiguration)
}

// PropertyKind is the closed set of value shapes a property handle can carry.
type PropertyKind int

const (
	KindText PropertyKind = iota
	KindNumber
	KindChoice
	KindColor
	KindDateTime
)

func (k PropertyKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindNumber:
		return "number"
	case KindChoice:
		return "choice"
	case KindColor:
		return "color"
	case KindDateTime:
		return "datetime"
	}
	return fmt.Sprintf("PropertyKind(%d)", int(k))
}

// kindOf picks the handle kind for an already validated data type.
func kindOf(t DataType) (PropertyKind, error) {
	switch t {
	case DtString:
		return KindText, nil
	case DtInteger, DtFloat:
		return KindNumber, nil
	case DtBoolean, DtEnum:
		return KindChoice, nil
	case DtColor:
		return KindColor, nil
	case DtDateTime:
		return KindDateTime, nil
	}
	return 0, fmt.Errorf("%w: data type %s is not supported", ErrInvalidConfiguration, t)
}

// Config is threaded through device construction.
type Config struct {
	// BaseTopic is the root of the topic tree. Default "homie".
	BaseTopic string
	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

func (c Config) withDefaults() Config {
	if c.BaseTopic == "" {
		c.BaseTopic = defaultTopicBase
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}
