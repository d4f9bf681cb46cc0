package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/eigerco/widescan/pkg/log"
	"github.com/eigerco/widescan/pkg/network/node"
	"github.com/eigerco/widescan/pkg/scan"
)

// scanRecord is one output line of the scan command.
type scanRecord struct {
	Range  string `json:"range"`
	Key    string `json:"key"`
	Column string `json:"column"`
	Value  string `json:"value"`
}

func scanCommand() *cli.Command {
	return &cli.Command{
		Name:  "scan",
		Usage: "Scan key ranges of a family, printing one JSON line per column",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "family", Aliases: []string{"f"}, Usage: "column family", Required: true},
			&cli.StringSliceFlag{Name: "range", Aliases: []string{"r"}, Usage: "inclusive start:end, empty end is unbounded; repeat to scan ranges concurrently", Value: []string{":"}},
			&cli.StringSliceFlag{Name: "columns", Usage: "only return these columns"},
			&cli.IntFlag{Name: "page-size", Usage: "rows per page"},
			&cli.StringFlag{Name: "connect", Usage: "address of a widescan server; scans the local store when empty"},
			&cli.IntFlag{Name: "retries", Usage: "retries of failed remote requests", Value: 3},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			ranges := make([]scan.Range, 0, len(cmd.StringSlice("range")))
			for _, s := range cmd.StringSlice("range") {
				r, err := parseRange(s)
				if err != nil {
					return err
				}
				ranges = append(ranges, r)
			}

			predicate := scan.AllColumns()
			if names := cmd.StringSlice("columns"); len(names) > 0 {
				cols := make([][]byte, len(names))
				for i, n := range names {
					cols[i] = []byte(n)
				}
				predicate = scan.ColumnNames(cols...)
			}

			var t scan.Transport
			if addr := cmd.String("connect"); addr != "" {
				client, err := node.Dial(ctx, node.ClientConfig{
					Addr:     addr,
					Keyspace: cfg.Keyspace,
					Retries:  int(cmd.Int("retries")),
				})
				if err != nil {
					return err
				}
				defer client.Close() //nolint:errcheck
				t = client.Family(cmd.String("family"))
			} else {
				ks, err := cfg.OpenStore()
				if err != nil {
					return err
				}
				defer ks.Close() //nolint:errcheck
				family, err := ks.Family(cmd.String("family"))
				if err != nil {
					return err
				}
				t = family
			}

			return scanRanges(ctx, t, ranges, cfg.Scan.PageSize, predicate, os.Stdout)
		},
	}
}

// parseRange parses "start:end". Either side may be empty.
func parseRange(s string) (scan.Range, error) {
	start, end, ok := strings.Cut(s, ":")
	if !ok {
		return scan.Range{}, fmt.Errorf("range %q: want start:end", s)
	}
	return scan.Range{Start: []byte(start), End: []byte(end)}, nil
}

// scanRanges walks every range concurrently and writes the pairs to w as
// JSON lines. Lines of one range keep key order.
func scanRanges(ctx context.Context, t scan.Transport, ranges []scan.Range, pageSize int, p scan.Predicate, w io.Writer) error {
	var mu sync.Mutex
	enc := json.NewEncoder(w)

	g, ctx := errgroup.WithContext(ctx)
	for _, r := range ranges {
		label := string(r.Start) + ":" + string(r.End)
		g.Go(func() error {
			c, err := scan.NewCursor(t, scan.RawCodecs(), r, pageSize, p)
			if err != nil {
				return fmt.Errorf("range %s: %w", label, err)
			}

			started := time.Now()
			n := 0
			for pair, err := range scan.NewWalker(c).All(ctx) {
				if err != nil {
					return fmt.Errorf("range %s: %w", label, err)
				}
				mu.Lock()
				err = enc.Encode(scanRecord{
					Range:  label,
					Key:    string(pair.Key),
					Column: string(pair.Column.Name),
					Value:  string(pair.Column.Value),
				})
				mu.Unlock()
				if err != nil {
					return err
				}
				n++
			}
			log.Scan.Info().Str("range", label).Int("pairs", n).Dur("took", time.Since(started)).Msg("range scanned")
			return nil
		})
	}
	return g.Wait()
}
