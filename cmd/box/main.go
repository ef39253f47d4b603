package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/jdollar/box-go/internal/commands"
	"github.com/jdollar/box-go/internal/config"
)

func main() {
	log := logrus.New()
	registry := prometheus.NewRegistry()
	rt := &commands.Runtime{
		Log:        log,
		Registerer: registry,
	}

	app := &cli.App{
		Name:  "box",
		Usage: "Cli tool for files, uploads and events",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Config file (default: ~/.box/config.yaml)",
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "Serve Prometheus metrics on this address",
			},
		},
		Before: func(c *cli.Context) error {
			conf, err := config.Load(c.String("config"))
			if err != nil {
				return err
			}
			rt.Config = conf

			level, err := logrus.ParseLevel(conf.Log.Level)
			if err != nil {
				return err
			}
			log.SetLevel(level)

			if addr := c.String("metrics-addr"); addr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
				go func() {
					log.WithField("addr", addr).Info("Serving metrics")
					if err := http.ListenAndServe(addr, mux); err != nil {
						log.WithField("err", err).Error("Metrics server stopped")
					}
				}()
			}
			return nil
		},
		Commands: []*cli.Command{
			commands.NewLsCommand(rt),
			commands.NewUploadCommand(rt),
			commands.NewEventsCommand(rt),
			commands.NewAbortUploadCommand(rt),
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
