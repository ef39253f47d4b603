package commands

import (
	"encoding/json"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/jdollar/box-go/pkg/box"
)

type eventSource interface {
	Events() <-chan box.Event
	Err() error
	Stop()
	Position() box.StreamPosition
}

func NewEventsCommand(rt *Runtime) *cli.Command {
	return &cli.Command{
		Name:  "events",
		Usage: "Stream events as JSON lines",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "enterprise",
				Usage: "Read the enterprise (admin log) stream instead of the user stream",
			},
			&cli.StringFlag{
				Name:  "position",
				Usage: "Stream position to start from; 0 replays the available history",
			},
			&cli.StringFlag{
				Name:  "stream-type",
				Usage: "Stream type (all, changes, sync, admin_logs, admin_logs_streaming)",
			},
			&cli.DurationFlag{
				Name:  "since",
				Usage: "Enterprise only: start with events created this long ago",
			},
			&cli.StringSliceFlag{
				Name:  "types",
				Usage: "Enterprise only: event types to keep",
			},
			&cli.DurationFlag{
				Name:  "interval",
				Usage: "Enterprise only: polling interval, 0 reads once (default: events.polling_interval)",
			},
			&cli.IntFlag{
				Name:  "count",
				Usage: "Stop after this many events",
			},
		},
		Action: func(c *cli.Context) error {
			client, err := rt.Client(c.Context)
			if err != nil {
				return err
			}

			conf := rt.Config.Events
			var stream eventSource
			if c.Bool("enterprise") {
				interval := conf.PollingInterval
				if c.IsSet("interval") {
					interval = c.Duration("interval")
				}
				opts := box.EnterpriseStreamOptions{
					StreamPosition:  box.StreamPosition(c.String("position")),
					StreamType:      c.String("stream-type"),
					EventTypes:      c.StringSlice("types"),
					PollingInterval: interval,
					DedupSize:       conf.DedupSize,
					Logger:          rt.Log,
				}
				if since := c.Duration("since"); since > 0 {
					opts.CreatedAfter = time.Now().Add(-since)
				}
				stream = client.Events.EnterpriseStream(c.Context, opts)
			} else {
				stream = client.Events.Stream(c.Context, box.StreamOptions{
					StreamPosition: box.StreamPosition(c.String("position")),
					StreamType:     c.String("stream-type"),
					FetchInterval:  conf.FetchInterval,
					DedupSize:      conf.DedupSize,
					Logger:         rt.Log,
				})
			}
			defer stream.Stop()

			enc := json.NewEncoder(c.App.Writer)
			count := 0
			for event := range stream.Events() {
				if err := enc.Encode(event); err != nil {
					return err
				}
				count++
				if limit := c.Int("count"); limit > 0 && count >= limit {
					break
				}
			}
			rt.Log.WithField("stream_position", stream.Position()).Info("Event stream ended")
			return stream.Err()
		},
	}
}
