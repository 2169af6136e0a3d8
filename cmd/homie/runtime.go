package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	homie "github.com/duke1swd/homieGo"
	"github.com/duke1swd/homieGo/config"
	"github.com/duke1swd/homieGo/discovery"
	"github.com/duke1swd/homieGo/logging"
	"github.com/duke1swd/homieGo/mqtt"
)

const shutdownTimeout = 5 * time.Second

// runtime is what every command needs: configuration, logger, metrics
// registry and the broker connection.
type runtime struct {
	cfg      *config.Config
	log      *zap.Logger
	registry *prometheus.Registry
	conn     *mqtt.Client
}

func newRuntime(c *cli.Context) (*runtime, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewBuildInfoCollector(),
		collectors.NewGoCollector(),
	)

	conn, err := mqtt.New(mqtt.Options{
		Broker:         cfg.MQTT.Broker,
		ClientID:       cfg.MQTT.ClientID,
		Username:       cfg.MQTT.Username,
		Password:       cfg.MQTT.Password,
		QoS:            byte(cfg.MQTT.QoS),
		RetryInterval:  cfg.MQTT.RetryInterval,
		ConnectTimeout: cfg.MQTT.ConnectTimeout,
		PublishTimeout: cfg.MQTT.PublishTimeout,
		Logger:         logger.Named("mqtt"),
		Metrics:        mqtt.NewMetrics(reg),
	})
	if err != nil {
		return nil, err
	}

	return &runtime{cfg: cfg, log: logger, registry: reg, conn: conn}, nil
}

func (rt *runtime) homieConfig() homie.Config {
	return homie.Config{
		BaseTopic: rt.cfg.Homie.BaseTopic,
		Logger:    rt.log.Named("homie"),
	}
}

func (rt *runtime) close() {
	_ = rt.log.Sync()
}

// collect waits for the broker, snapshots the base topic and parses it.
// The connection monitor must be running.
func (rt *runtime) collect(ctx context.Context) (*homie.ParseResult, error) {
	if err := waitConnected(ctx, rt.conn); err != nil {
		return nil, err
	}

	base := rt.cfg.Homie.BaseTopic
	dump, err := discovery.Collect(ctx, rt.conn, base, rt.cfg.Discovery.QuietPeriod)
	if err != nil {
		return nil, fmt.Errorf("collecting %s: %w", base, err)
	}

	result := homie.ParseTopicDump(base, dump)
	rt.log.Info("discovery finished",
		zap.Int("topics", len(dump)),
		zap.Int("devices", len(result.Devices)),
		zap.Int("errors", len(result.Errors)),
		zap.Int("warnings", len(result.Warnings)),
	)
	for _, e := range result.Errors {
		rt.log.Debug("discovery error", zap.String("error", e))
	}
	return result, nil
}

// waitConnected blocks until conn is connected or ctx is done.
func waitConnected(ctx context.Context, conn homie.Connection) error {
	up := make(chan struct{}, 1)
	remove := conn.OnConnectionChanged(func(connected bool) {
		if !connected {
			return
		}
		select {
		case up <- struct{}{}:
		default:
		}
	})
	defer remove()

	if conn.IsConnected() {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-up:
		return nil
	}
}

// serveMetrics serves /metrics until ctx is done. It does nothing when no
// listen address is configured.
func (rt *runtime) serveMetrics(ctx context.Context) error {
	addr := rt.cfg.Metrics.Listen
	if addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(rt.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	rt.log.Info("serving metrics", zap.String("listen", addr))
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics listener: %w", err)
	}
	return nil
}
