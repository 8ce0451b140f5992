package main

import (
	"fmt"
	"runtime"

	"github.com/urfave/cli/v2"
)

func healthCommand() *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "Check the HTTP API's health endpoint",
		Action: func(c *cli.Context) error {
			if err := newAPIClient(c).Health(c.Context); err != nil {
				return fmt.Errorf("server unhealthy: %w", err)
			}
			fmt.Fprintf(c.App.Writer, "✓ %s is healthy\n", c.String("server-url"))
			return nil
		},
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show version information",
		Action: func(c *cli.Context) error {
			info := map[string]string{
				"version":    version,
				"commit":     commit,
				"built":      date,
				"go_version": runtime.Version(),
			}
			if wantJSON(c) {
				return outputJSON(c, info)
			}
			fmt.Fprintf(c.App.Writer, "ledgerlens %s\n", version)
			fmt.Fprintf(c.App.Writer, "  commit: %s\n", commit)
			fmt.Fprintf(c.App.Writer, "  built:  %s\n", date)
			fmt.Fprintf(c.App.Writer, "  go:     %s\n", runtime.Version())
			return nil
		},
	}
}
