package homie_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	homie "github.com/duke1swd/homieGo"
	"github.com/duke1swd/homieGo/homietest"
)

func parsedThermostat(t *testing.T) *homie.DeviceMetadata {
	t.Helper()
	r := homie.ParseTopicDump("homie", []string{
		"homie/thermo/$homie:4.0.0",
		"homie/thermo/$name:Thermostat",
		"homie/thermo/$state:ready",
		"homie/thermo/$nodes:general",
		"homie/thermo/general/$name:General",
		"homie/thermo/general/$type:thermostat",
		"homie/thermo/general/$properties:temperature,setpoint,reboot",
		"homie/thermo/general/temperature:18.00",
		"homie/thermo/general/temperature/$name:Temperature",
		"homie/thermo/general/temperature/$datatype:float",
		"homie/thermo/general/temperature/$format:F2",
		"homie/thermo/general/temperature/$settable:false",
		"homie/thermo/general/temperature/$retained:true",
		"homie/thermo/general/setpoint:21",
		"homie/thermo/general/setpoint/$name:Setpoint",
		"homie/thermo/general/setpoint/$datatype:integer",
		"homie/thermo/general/setpoint/$settable:true",
		"homie/thermo/general/setpoint/$retained:true",
		"homie/thermo/general/reboot/$name:Reboot",
		"homie/thermo/general/reboot/$datatype:string",
		"homie/thermo/general/reboot/$settable:true",
		"homie/thermo/general/reboot/$retained:false",
	})
	require.Empty(t, r.Errors)
	require.Len(t, r.Devices, 1)
	return r.Devices[0]
}

func TestClientFromMetadata(t *testing.T) {
	c, err := homie.NewClientDeviceFromMetadata(parsedThermostat(t), homie.Config{Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)

	assert.Equal(t, "Thermostat", c.Name())
	assert.Equal(t, "4.0.0", c.HomieVersion())
	assert.Equal(t, homie.StateReady, c.State())
	require.Len(t, c.Properties(), 3)

	setpoint, ok := c.Property("general/setpoint")
	require.True(t, ok)
	assert.Equal(t, homie.DtFloat, setpoint.DataType(), "integer widened")
	assert.Equal(t, "F0", setpoint.Format())

	missing, ok := c.Property("general/missing")
	assert.False(t, ok)
	assert.Nil(t, missing)

	nodes := c.Nodes()
	require.Len(t, nodes, 1)
	assert.Equal(t, "General", nodes[0].Name)
}

func TestClientInitializeSubscribes(t *testing.T) {
	c, err := homie.NewClientDeviceFromMetadata(parsedThermostat(t), homie.Config{})
	require.NoError(t, err)

	conn := homietest.NewConn()
	require.NoError(t, c.Initialize(conn))
	assert.Equal(t, 1, conn.Connects())

	assert.Equal(t, []string{
		"homie/thermo/$homie",
		"homie/thermo/$name",
		"homie/thermo/$state",
		"homie/thermo/general/temperature",
		"homie/thermo/general/setpoint",
	}, conn.Subscriptions())
	assert.Empty(t, conn.Published(), "clients never publish on their own")

	// resubscribe after a reconnect
	conn.SetConnected(false)
	conn.Reset()
	conn.SetConnected(true)
	assert.Len(t, conn.Subscriptions(), 5)

	assert.ErrorIs(t, c.Initialize(conn), homie.ErrInvalidOperation)
}

func TestClientMirrorsRemoteValues(t *testing.T) {
	c, err := homie.NewClientDeviceFromMetadata(parsedThermostat(t), homie.Config{})
	require.NoError(t, err)
	temp, _ := c.Property("general/temperature")

	var values []string
	temp.OnChange(func(p *homie.Property) { values = append(values, p.Value()) })
	var states []homie.DeviceState
	c.OnStateChange(func(s homie.DeviceState) { states = append(states, s) })

	conn := homietest.NewConn()
	require.NoError(t, c.Initialize(conn))

	conn.Deliver("homie/thermo/general/temperature", "19.25")
	conn.Deliver("homie/thermo/general/temperature", "warm")
	conn.Deliver("homie/thermo/$state", "ready")
	conn.Deliver("homie/thermo/$state", "disconnected")
	conn.Deliver("homie/thermo/$state", "bogus")
	conn.Deliver("homie/thermo/$name", "Hall Thermostat")
	conn.Deliver("homie/other/$name", "ignored")

	assert.Equal(t, []string{"19.25"}, values)
	v, err := temp.Number()
	require.NoError(t, err)
	assert.Equal(t, 19.25, v)

	assert.Equal(t, []homie.DeviceState{homie.StateDisconnected}, states)
	assert.Equal(t, homie.StateDisconnected, c.State())
	assert.Equal(t, "Hall Thermostat", c.Name())
}

func TestClientSetDirections(t *testing.T) {
	c, err := homie.NewClientDeviceFromMetadata(parsedThermostat(t), homie.Config{})
	require.NoError(t, err)
	temp, _ := c.Property("general/temperature")
	setpoint, _ := c.Property("general/setpoint")
	reboot, _ := c.Property("general/reboot")

	assert.ErrorIs(t, setpoint.SetNumber(22), homie.ErrInvalidOperation, "not initialized")

	conn := homietest.NewConn()
	require.NoError(t, c.Initialize(conn))

	assert.ErrorIs(t, temp.SetNumber(20), homie.ErrInvalidOperation, "state is read-only")

	require.NoError(t, setpoint.SetNumber(22))
	require.NoError(t, reboot.SetText("now"))
	assert.Equal(t, []homietest.Message{
		{Topic: "homie/thermo/general/setpoint/set", Payload: "22", QoS: 1},
		{Topic: "homie/thermo/general/reboot/set", Payload: "now", QoS: 1},
	}, conn.Published())

	// the host confirms by publishing the value
	assert.Equal(t, "21", setpoint.Value())
}

func TestClientCreateProperty(t *testing.T) {
	c, err := homie.NewClientDevice("plug", homie.Config{})
	require.NoError(t, err)
	assert.Empty(t, string(c.State()), "unknown until reported")

	p, err := c.CreateProperty(homie.PropertyMetadata{
		NodeID:       "relay",
		PropertyID:   "on",
		Name:         "On",
		Type:         homie.Parameter,
		DataType:     homie.DtBoolean,
		InitialValue: "false",
	})
	require.NoError(t, err)
	assert.Equal(t, homie.DtEnum, p.DataType())
	assert.Equal(t, homie.KindChoice, p.Kind())
	assert.Equal(t, []string{"false", "true"}, p.Options())

	_, err = c.CreateProperty(homie.PropertyMetadata{
		NodeID:     "relay",
		PropertyID: "since",
		Type:       homie.State,
		DataType:   homie.DtDateTime,
	})
	assert.ErrorIs(t, err, homie.ErrInvalidConfiguration)
}

func TestClientFromMetadataRequiresNodes(t *testing.T) {
	_, err := homie.NewClientDeviceFromMetadata(&homie.DeviceMetadata{ID: "empty"}, homie.Config{})
	assert.ErrorIs(t, err, homie.ErrInvalidConfiguration)

	_, err = homie.NewClientDeviceFromMetadata(&homie.DeviceMetadata{
		ID:    "Bad",
		Nodes: []*homie.NodeMetadata{{ID: "n1"}},
	}, homie.Config{})
	assert.ErrorIs(t, err, homie.ErrInvalidIdentifier)
}
