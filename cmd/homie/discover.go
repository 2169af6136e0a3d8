package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	homie "github.com/duke1swd/homieGo"
)

var discoverCommand = &cli.Command{
	Name:  "discover",
	Usage: "print the devices published under the base topic",
	Action: func(c *cli.Context) error {
		rt, err := newRuntime(c)
		if err != nil {
			return err
		}
		defer rt.close()

		var result *homie.ParseResult
		ctx, cancel := context.WithCancel(c.Context)
		defer cancel()
		eg, ctx := errgroup.WithContext(ctx)
		eg.Go(func() error {
			return rt.conn.Run(ctx)
		})
		eg.Go(func() error {
			// stops the monitor once the snapshot is taken
			defer cancel()
			r, err := rt.collect(ctx)
			result = r
			return err
		})
		if err := eg.Wait(); err != nil {
			return err
		}

		out, err := renderReport(result)
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(c.App.Writer, out)
		return err
	},
}

type report struct {
	Devices  []deviceReport `yaml:"devices"`
	Errors   []string       `yaml:"errors,omitempty"`
	Warnings []string       `yaml:"warnings,omitempty"`
}

type deviceReport struct {
	ID    string       `yaml:"id"`
	Name  string       `yaml:"name"`
	Homie string       `yaml:"homie"`
	State string       `yaml:"state"`
	Nodes []nodeReport `yaml:"nodes"`
}

type nodeReport struct {
	ID         string           `yaml:"id"`
	Name       string           `yaml:"name,omitempty"`
	Type       string           `yaml:"type,omitempty"`
	Properties []propertyReport `yaml:"properties"`
}

type propertyReport struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	DataType string `yaml:"datatype"`
	Format   string `yaml:"format,omitempty"`
	Unit     string `yaml:"unit,omitempty"`
	Value    string `yaml:"value,omitempty"`
}

// renderReport formats a parse result as YAML.
func renderReport(result *homie.ParseResult) (string, error) {
	r := report{
		Devices:  make([]deviceReport, 0, len(result.Devices)),
		Errors:   result.Errors,
		Warnings: result.Warnings,
	}
	for _, d := range result.Devices {
		dr := deviceReport{ID: d.ID, Name: d.Name, Homie: d.HomieVersion, State: d.State}
		for _, n := range d.Nodes {
			nr := nodeReport{ID: n.ID, Name: n.Name, Type: n.Type}
			for _, p := range n.Properties {
				nr.Properties = append(nr.Properties, propertyReport{
					ID:       p.PropertyID,
					Name:     p.Name,
					Type:     p.Type.String(),
					DataType: p.DataType.String(),
					Format:   p.Format,
					Unit:     p.Unit,
					Value:    p.InitialValue,
				})
			}
			dr.Nodes = append(dr.Nodes, nr)
		}
		r.Devices = append(r.Devices, dr)
	}

	out, err := yaml.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("rendering report: %w", err)
	}
	return string(out), nil
}
