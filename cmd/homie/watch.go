package main

import (
	"fmt"

	"github.com/samber/lo"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	homie "github.com/duke1swd/homieGo"
)

var watchCommand = &cli.Command{
	Name:      "watch",
	Usage:     "mirror a discovered device and log its changes",
	ArgsUsage: "<device-id>",
	Action: func(c *cli.Context) error {
		id := c.Args().First()
		if err := homie.ValidateID(id); err != nil {
			return fmt.Errorf("watch: %w", err)
		}

		rt, err := newRuntime(c)
		if err != nil {
			return err
		}
		defer rt.close()

		eg, ctx := errgroup.WithContext(c.Context)
		eg.Go(func() error {
			return rt.conn.Run(ctx)
		})
		eg.Go(func() error {
			result, err := rt.collect(ctx)
			if err != nil {
				return err
			}
			meta, ok := lo.Find(result.Devices, func(d *homie.DeviceMetadata) bool { return d.ID == id })
			if !ok {
				return fmt.Errorf("device %s not found under %s", id, rt.cfg.Homie.BaseTopic)
			}

			dev, err := homie.NewClientDeviceFromMetadata(meta, rt.homieConfig())
			if err != nil {
				return err
			}
			defer dev.Dispose()
			watchDevice(rt.log.With(zap.String("device", id)), dev)

			if err := dev.Initialize(rt.conn); err != nil {
				return err
			}
			<-ctx.Done()
			return nil
		})
		return eg.Wait()
	},
}

// watchDevice logs state and property changes of a mirrored device.
func watchDevice(log *zap.Logger, dev *homie.ClientDevice) {
	dev.OnStateChange(func(state homie.DeviceState) {
		log.Info("state changed", zap.String("state", string(state)))
	})
	for _, p := range dev.Properties() {
		p.OnChange(func(p *homie.Property) {
			log.Info("property changed",
				zap.String("property", p.ID()),
				zap.String("value", p.Value()),
				zap.String("unit", p.Unit()),
			)
		})
	}
}
