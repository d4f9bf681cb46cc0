package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/urfave/cli/v3"

	"github.com/eigerco/widescan/internal/store"
	"github.com/eigerco/widescan/pkg/log"
	"github.com/eigerco/widescan/pkg/scan"
)

// loadRecord is one input line of the load command.
type loadRecord struct {
	Key     string            `json:"key"`
	Columns map[string]string `json:"columns"`
}

func loadCommand() *cli.Command {
	return &cli.Command{
		Name:      "load",
		Usage:     "Insert JSON lines {\"key\":..,\"columns\":{name:value}} into a family",
		ArgsUsage: "[file]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "family", Aliases: []string{"f"}, Usage: "column family", Required: true},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ks, err := cfg.OpenStore()
			if err != nil {
				return err
			}
			defer ks.Close() //nolint:errcheck

			family, err := ks.Family(cmd.String("family"))
			if err != nil {
				return err
			}

			in := io.Reader(os.Stdin)
			if path := cmd.Args().First(); path != "" {
				f, err := os.Open(path)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			n, err := loadRows(ctx, in, family)
			log.Root.Info().Int("rows", n).Str("family", family.Name()).Msg("loaded")
			return err
		},
	}
}

// loadRows inserts every record of r into family and returns how many rows
// were written.
func loadRows(ctx context.Context, r io.Reader, family *store.Family) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16<<20)

	n, line := 0, 0
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if len(scanner.Bytes()) == 0 {
			continue
		}

		var rec loadRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return n, fmt.Errorf("line %d: %w", line, err)
		}

		names := make([]string, 0, len(rec.Columns))
		for name := range rec.Columns {
			names = append(names, name)
		}
		slices.Sort(names)
		cols := make([]scan.RawColumn, len(names))
		for i, name := range names {
			cols[i] = scan.RawColumn{Name: []byte(name), Value: []byte(rec.Columns[name])}
		}

		if err := family.Insert([]byte(rec.Key), cols...); err != nil {
			return n, fmt.Errorf("line %d: %w", line, err)
		}
		n++
	}
	return n, scanner.Err()
}
