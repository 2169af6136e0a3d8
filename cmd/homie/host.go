package main

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	homie "github.com/duke1swd/homieGo"
)

var hostCommand = &cli.Command{
	Name:  "host",
	Usage: "publish a simulated thermostat device",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "name",
			Usage:    "friendly device name; the id is derived from it",
			Required: true,
		},
		&cli.DurationFlag{
			Name:  "interval",
			Usage: "telemetry interval",
			Value: 10 * time.Second,
		},
	},
	Action: func(c *cli.Context) error {
		rt, err := newRuntime(c)
		if err != nil {
			return err
		}
		defer rt.close()

		name := c.String("name")
		id, err := homie.IDFromName(name)
		if err != nil {
			return err
		}
		t, err := newThermostat(id, name, rt.homieConfig(), rt.registry)
		if err != nil {
			return err
		}
		defer t.device.Dispose()

		// the tree stays cached and is replayed once the monitor connects
		if err := t.device.Initialize(rt.conn); err != nil {
			rt.log.Warn("broker not reachable yet", zap.Error(err))
		}

		eg, ctx := errgroup.WithContext(c.Context)
		eg.Go(func() error {
			return superviseHost(ctx, rt.conn, t.device, rt.log)
		})
		eg.Go(func() error {
			return rt.serveMetrics(ctx)
		})
		eg.Go(func() error {
			sched := cron.New()
			if _, err := sched.AddFunc("@every "+c.Duration("interval").String(), t.tick); err != nil {
				return err
			}
			sched.Start()
			rt.log.Info("hosting device", zap.String("id", id), zap.String("name", name))

			<-ctx.Done()
			<-sched.Stop().Done()
			return nil
		})
		return eg.Wait()
	},
}

// monitor runs a connection until its context is done, then disconnects.
type monitor interface {
	Run(ctx context.Context) error
}

// superviseHost runs m for dev. Once ctx is done it publishes
// $state=disconnected while the connection is still up and only then stops
// m: a clean disconnect suppresses the last will, so the broker would keep
// $state=ready otherwise.
func superviseHost(ctx context.Context, m monitor, dev *homie.HostDevice, log *zap.Logger) error {
	monitorCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	defer stop()

	done := make(chan error, 1)
	go func() { done <- m.Run(monitorCtx) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
	}

	if err := dev.SetState(homie.StateDisconnected); err != nil {
		log.Warn("publishing final state", zap.Error(err))
	}
	stop()
	return <-done
}
