// Command widescan serves a column family keyspace over QUIC, loads rows
// into it and runs paged range scans against it.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/eigerco/widescan/internal/config"
	"github.com/eigerco/widescan/pkg/log"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app().Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func app() *cli.Command {
	return &cli.Command{
		Name:  "widescan",
		Usage: "Paged range scans over wide-row column families",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a YAML config file",
				Sources: cli.EnvVars("WIDESCAN_CONFIG"),
			},
			&cli.StringFlag{Name: "keyspace", Usage: "keyspace name"},
			&cli.StringFlag{Name: "store-backend", Usage: "pebble, badger or memory"},
			&cli.StringFlag{Name: "store-path", Usage: "directory of the store"},
			&cli.StringFlag{Name: "log-level", Usage: "trace, debug, info, warn or error"},
			&cli.StringFlag{Name: "log-format", Usage: "console or json"},
		},
		Commands: []*cli.Command{
			serveCommand(),
			loadCommand(),
			scanCommand(),
		},
	}
}

// loadConfig reads the config file, applies flag overrides and initialises
// logging.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, err
	}

	overrides := []struct {
		flag string
		dst  *string
	}{
		{"keyspace", &cfg.Keyspace},
		{"store-backend", &cfg.Store.Backend},
		{"store-path", &cfg.Store.Path},
		{"log-level", &cfg.Log.Level},
		{"log-format", &cfg.Log.Format},
		{"listen", &cfg.Server.Listen},
		{"metrics", &cfg.Server.Metrics},
	}
	for _, o := range overrides {
		if cmd.IsSet(o.flag) {
			*o.dst = cmd.String(o.flag)
		}
	}
	if cmd.IsSet("page-size") {
		cfg.Scan.PageSize = int(cmd.Int("page-size"))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts, err := cfg.LogOptions()
	if err != nil {
		return nil, err
	}
	opts.Output = os.Stderr
	log.Init(opts)
	return cfg, nil
}
