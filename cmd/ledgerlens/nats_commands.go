package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brojonat/ledgerlens/service/ledger"
	natspkg "github.com/brojonat/ledgerlens/service/nats"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/urfave/cli/v2"
)

func subscribeCommand() *cli.Command {
	return &cli.Command{
		Name:      "subscribe",
		Usage:     "Stream a wallet's newly synced summaries",
		Aliases:   []string{"sub"},
		ArgsUsage: "WALLET_ADDRESS",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "durable",
				Usage: "Durable consumer name (resumes where it left off)",
			},
		},
		Action: func(c *cli.Context) error {
			wallet, err := walletArg(c)
			if err != nil {
				return err
			}
			setupColor(c)

			nc, js, err := natspkg.Connect(c.String("nats-url"), "ledgerlens-cli")
			if err != nil {
				return err
			}
			defer nc.Close()

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			currencies := ledger.DefaultCurrencyTable()
			fmt.Fprintf(c.App.ErrWriter, "Listening on %s (Ctrl+C to stop)\n", natspkg.Subject(wallet))

			return natspkg.Subscribe(ctx, js, wallet, c.String("durable"), func(event *natspkg.SummaryEvent) {
				if wantJSON(c) {
					if err := outputJSON(c, event); err != nil {
						fmt.Fprintf(c.App.ErrWriter, "error: %v\n", err)
					}
					return
				}
				printSummaries(c.App.Writer, currencies, []ledger.Summary{event.Summary})
			})
		},
	}
}

func inspectStreamCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect-stream",
		Usage: "Show the summary stream's state",
		Action: func(c *cli.Context) error {
			nc, js, err := natspkg.Connect(c.String("nats-url"), "ledgerlens-cli")
			if err != nil {
				return err
			}
			defer nc.Close()

			stream, err := js.Stream(c.Context, natspkg.StreamName)
			if errors.Is(err, jetstream.ErrStreamNotFound) {
				return fmt.Errorf("stream %s does not exist yet (no worker has published)", natspkg.StreamName)
			}
			if err != nil {
				return fmt.Errorf("failed to get stream: %w", err)
			}
			info, err := stream.Info(c.Context)
			if err != nil {
				return fmt.Errorf("failed to get stream info: %w", err)
			}

			if wantJSON(c) {
				return outputJSON(c, map[string]interface{}{
					"name":      info.Config.Name,
					"subjects":  info.Config.Subjects,
					"messages":  info.State.Msgs,
					"bytes":     info.State.Bytes,
					"consumers": info.State.Consumers,
					"first_seq": info.State.FirstSeq,
					"last_seq":  info.State.LastSeq,
					"last_time": info.State.LastTime,
				})
			}

			w := c.App.Writer
			fmt.Fprintf(w, "Stream:      %s\n", info.Config.Name)
			fmt.Fprintf(w, "Subjects:    %v\n", info.Config.Subjects)
			fmt.Fprintf(w, "Retention:   %v\n", info.Config.MaxAge)
			fmt.Fprintf(w, "Messages:    %d\n", info.State.Msgs)
			fmt.Fprintf(w, "Bytes:       %d\n", info.State.Bytes)
			fmt.Fprintf(w, "Consumers:   %d\n", info.State.Consumers)
			fmt.Fprintf(w, "Sequence:    %d - %d\n", info.State.FirstSeq, info.State.LastSeq)
			if !info.State.LastTime.IsZero() {
				fmt.Fprintf(w, "Last Event:  %s\n", info.State.LastTime.Format(time.RFC3339))
			}
			return nil
		},
	}
}
