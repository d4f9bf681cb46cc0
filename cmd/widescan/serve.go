package main

import (
	"context"
	"errors"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/eigerco/widescan/internal/metrics"
	"github.com/eigerco/widescan/pkg/log"
	"github.com/eigerco/widescan/pkg/network/node"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the keyspace over QUIC",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "listen", Usage: "QUIC listen address"},
			&cli.StringFlag{Name: "metrics", Usage: "prometheus listen address, empty disables"},
		},
		Action: serve,
	}
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ks, err := cfg.OpenStore()
	if err != nil {
		return err
	}
	defer ks.Close() //nolint:errcheck

	m := metrics.New()
	srv, err := node.NewServer(node.ServerConfig{
		Keyspace:   ks,
		ListenAddr: cfg.Server.Listen,
		Metrics:    m,
	})
	if err != nil {
		return err
	}
	if err := srv.Start(); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	if cfg.Server.Metrics != "" {
		g.Go(func() error {
			log.Root.Info().Str("addr", cfg.Server.Metrics).Msg("serving metrics")
			return m.ListenAndServe(ctx, cfg.Server.Metrics)
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		log.Root.Info().Msg("shutting down")
		return srv.Stop()
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
