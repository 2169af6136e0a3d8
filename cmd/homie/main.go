package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "homie",
		Usage: "discover, watch and host Homie devices over MQTT",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				EnvVars: []string{"HOMIE_CONFIG"},
				Usage:   "path to the YAML configuration file",
			},
		},
		Commands: []*cli.Command{
			discoverCommand,
			watchCommand,
			hostCommand,
		},
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := app.RunContext(ctx, os.Args)
	cancel()
	if err != nil {
		log.Fatal(err)
	}
}
