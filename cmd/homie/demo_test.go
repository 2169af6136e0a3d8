package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	homie "github.com/duke1swd/homieGo"
	"github.com/duke1swd/homieGo/homietest"
)

func newTestThermostat(t *testing.T) (*thermostat, *homietest.Conn) {
	t.Helper()
	th, err := newThermostat("hall", "Hall", homie.Config{Logger: zaptest.NewLogger(t)}, prometheus.NewRegistry())
	require.NoError(t, err)

	conn := homietest.NewConn()
	require.NoError(t, th.device.Initialize(conn))
	return th, conn
}

func TestThermostatPublishesTree(t *testing.T) {
	_, conn := newTestThermostat(t)

	retained := conn.Retained()
	assert.Equal(t, "general", retained["homie/hall/$nodes"])
	assert.Equal(t, "temperature,setpoint,mode,reboot", retained["homie/hall/general/$properties"])
	assert.Equal(t, "18.00", retained["homie/hall/general/temperature"])
	assert.Equal(t, "21.0", retained["homie/hall/general/setpoint"])
	assert.Equal(t, "heat", retained["homie/hall/general/mode"])
	assert.Equal(t, "off,heat,cool", retained["homie/hall/general/mode/$format"])
	assert.Equal(t, "false", retained["homie/hall/general/reboot/$retained"])

	assert.ElementsMatch(t, []string{
		"homie/hall/general/setpoint/set",
		"homie/hall/general/mode/set",
		"homie/hall/general/reboot/set",
	}, conn.Subscriptions())
}

func TestThermostatTick(t *testing.T) {
	th, conn := newTestThermostat(t)

	th.tick()
	assert.Equal(t, "18.75", conn.Retained()["homie/hall/general/temperature"])
	assert.Equal(t, 18.75, testutil.ToFloat64(th.gauge))

	conn.Deliver("homie/hall/general/mode/set", "off")
	th.tick()
	assert.Equal(t, "18.56", conn.Retained()["homie/hall/general/temperature"])

	conn.Deliver("homie/hall/general/reboot/set", "now")
	assert.Equal(t, "18.00", conn.Retained()["homie/hall/general/temperature"])
}

func TestThermostatSetpoint(t *testing.T) {
	th, conn := newTestThermostat(t)

	conn.Deliver("homie/hall/general/setpoint/set", "26")
	assert.Equal(t, "26", conn.Retained()["homie/hall/general/setpoint"])

	th.tick()
	assert.Equal(t, "20.00", conn.Retained()["homie/hall/general/temperature"])
}

func TestRenderReport(t *testing.T) {
	r := homie.ParseTopicDump("homie", []string{
		"homie/hall/$homie:4.0.0",
		"homie/hall/$name:Hall",
		"homie/hall/$state:ready",
		"homie/hall/$nodes:general",
		"homie/hall/general/$name:General",
		"homie/hall/general/$properties:temperature",
		"homie/hall/general/temperature:18.00",
		"homie/hall/general/temperature/$name:Temperature",
		"homie/hall/general/temperature/$datatype:float",
		"homie/hall/general/temperature/$settable:false",
		"homie/hall/general/temperature/$retained:true",
		"homie/broken/$homie:4.0.0",
	})

	out, err := renderReport(r)
	require.NoError(t, err)
	assert.Contains(t, out, "id: hall")
	assert.Contains(t, out, "datatype: float")
	assert.Contains(t, out, "type: state")
	assert.Contains(t, out, `value: "18.00"`)
	assert.Contains(t, out, "errors:")
	assert.Contains(t, out, "device broken dropped")
	assert.NotContains(t, out, "warnings:")
}

func TestWaitConnected(t *testing.T) {
	conn := homietest.NewConn()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, waitConnected(ctx, conn), context.DeadlineExceeded)

	go conn.SetConnected(true)
	require.NoError(t, waitConnected(context.Background(), conn))
	require.NoError(t, waitConnected(context.Background(), conn), "already connected")
	assert.Equal(t, 0, conn.Listeners())
}

// connMonitor keeps conn up until its context is done, like mqtt.Client.Run.
type connMonitor struct {
	conn *homietest.Conn
	err  error
}

func (m connMonitor) Run(ctx context.Context) error {
	if m.err != nil {
		return m.err
	}
	<-ctx.Done()
	m.conn.SetConnected(false)
	return nil
}

func TestSuperviseHostPublishesFinalState(t *testing.T) {
	th, conn := newTestThermostat(t)
	require.Equal(t, "ready", conn.Retained()["homie/hall/$state"])

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- superviseHost(ctx, connMonitor{conn: conn}, th.device, zaptest.NewLogger(t)) }()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("supervisor did not stop")
	}

	// published while the connection was still up
	assert.Equal(t, "disconnected", conn.Retained()["homie/hall/$state"])
	assert.False(t, conn.IsConnected())
	assert.Equal(t, homie.StateDisconnected, th.device.State())
}

func TestSuperviseHostMonitorFailure(t *testing.T) {
	th, conn := newTestThermostat(t)
	boom := errors.New("boom")

	err := superviseHost(context.Background(), connMonitor{conn: conn, err: boom}, th.device, zaptest.NewLogger(t))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "ready", conn.Retained()["homie/hall/$state"])
}
