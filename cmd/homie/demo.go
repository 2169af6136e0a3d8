package main

import (
	"math"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	homie "github.com/duke1swd/homieGo"
)

const (
	demoNode    = "general"
	ambient     = 18.0
	defaultGoal = 21.0
	// fraction of the remaining distance covered per tick
	approachRate = 0.25
)

var demoModes = []string{"off", "heat", "cool"}

// thermostat is the demo host device: a simulated room temperature that
// follows a settable setpoint.
type thermostat struct {
	device *homie.HostDevice
	log    *zap.Logger
	gauge  prometheus.Gauge

	mu          sync.Mutex
	temperature *homie.Property
	setpoint    *homie.Property
	mode        *homie.Property
	reboot      *homie.Property
}

func newThermostat(id, name string, cfg homie.Config, reg prometheus.Registerer) (*thermostat, error) {
	dev, err := homie.NewHostDevice(id, name, cfg)
	if err != nil {
		return nil, err
	}
	if err := dev.UpdateNodeInfo(demoNode, "General", "thermostat"); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &thermostat{
		device: dev,
		log:    logger.With(zap.String("device", id)),
		gauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "homie",
			Subsystem:   "demo",
			Name:        "temperature_celsius",
			Help:        "Simulated temperature published by the demo device.",
			ConstLabels: prometheus.Labels{"device_id": id},
		}),
	}
	if t.temperature, err = dev.CreateNumberProperty(homie.State, demoNode, "temperature", "Temperature", ambient, "°C", 2); err != nil {
		return nil, err
	}
	if t.setpoint, err = dev.CreateNumberProperty(homie.Parameter, demoNode, "setpoint", "Setpoint", defaultGoal, "°C", 1); err != nil {
		return nil, err
	}
	if t.mode, err = dev.CreateChoiceProperty(homie.Parameter, demoNode, "mode", "Mode", demoModes, "heat"); err != nil {
		return nil, err
	}
	if t.reboot, err = dev.CreateTextProperty(homie.Command, demoNode, "reboot", "Reboot", ""); err != nil {
		return nil, err
	}

	t.setpoint.OnChange(t.logChange)
	t.mode.OnChange(t.logChange)
	t.reboot.OnChange(t.handleReboot)

	reg.MustRegister(t.gauge)
	t.gauge.Set(ambient)
	return t, nil
}

func (t *thermostat) logChange(p *homie.Property) {
	t.log.Info("set request accepted", zap.String("property", p.ID()), zap.String("value", p.Value()))
}

// handleReboot resets the simulated room to ambient temperature.
func (t *thermostat) handleReboot(p *homie.Property) {
	t.log.Info("reboot requested", zap.String("payload", p.Value()))

	t.mu.Lock()
	defer t.mu.Unlock()
	t.publish(ambient)
}

// tick advances the simulation one step.
func (t *thermostat) tick() {
	t.mu.Lock()
	defer t.mu.Unlock()

	current, err := t.temperature.Number()
	if err != nil {
		t.log.Error("reading temperature", zap.Error(err))
		return
	}
	goal, err := t.setpoint.Number()
	if err != nil {
		t.log.Error("reading setpoint", zap.Error(err))
		return
	}

	target := ambient
	switch t.mode.Choice() {
	case "heat":
		target = math.Max(goal, ambient)
	case "cool":
		target = math.Min(goal, ambient)
	}
	t.publish(current + (target-current)*approachRate)
}

// publish sets the temperature. Caller holds mu.
func (t *thermostat) publish(v float64) {
	v = math.Round(v*100) / 100
	if err := t.temperature.SetNumber(v); err != nil {
		t.log.Error("publishing temperature", zap.Error(err))
		return
	}
	t.gauge.Set(v)
}
