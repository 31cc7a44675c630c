// Copyright 2024 The gethimport Authors
// This file is part of gethimport.
//
// gethimport is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// gethimport is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with gethimport. If not, see <http://www.gnu.org/licenses/>.

// Command gethimport migrates chain data out of a geth chaindata
// directory into a generic destination store, and offers a handful of
// read-only diagnostics over either side. See §6 of the design for the
// full CLI surface this mirrors.
package main

import (
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/lithp/gethimport/importer"
	"github.com/lithp/gethimport/rawdb"
	"github.com/lithp/gethimport/store"
)

var (
	sourceFlag = &cli.StringFlag{
		Name:  "source",
		Usage: "path to the geth chaindata directory (contains an ancient/ subdirectory)",
	}
	destFlag = &cli.StringFlag{
		Name:  "dest",
		Usage: "path to the destination pebble store",
	}
	genesisHashFlag = &cli.StringFlag{
		Name:  "genesis-hash",
		Usage: "if set, verify the source's genesis header matches this hash before doing anything",
	}
	untilFlag = &cli.Uint64Flag{
		Name:  "until",
		Usage: "stop at this block number (defaults to the source's head)",
	}
	startFlag = &cli.Uint64Flag{Name: "start", Required: true}
	endFlag   = &cli.Uint64Flag{Name: "end", Required: true}
	numberFlag = &cli.Uint64Flag{Name: "number", Required: true}
	verifyIntegrityFlag = &cli.BoolFlag{
		Name:  "verify-integrity",
		Usage: "keccak256-verify every trie node fetched from source during import_state",
		Value: true,
	}
)

// requireFlag enforces that a flag was given, for commands where only a
// subset of the app's flags apply (a source-only diagnostic has no use for
// --dest, and vice versa).
func requireFlag(c *cli.Context, name string) error {
	if c.String(name) == "" {
		return fmt.Errorf("missing required flag --%s", name)
	}
	return nil
}

func openReader(c *cli.Context) (*rawdb.GethReader, error) {
	if err := requireFlag(c, "source"); err != nil {
		return nil, err
	}
	opts := rawdb.Options{}
	if h := c.String("genesis-hash"); h != "" {
		opts.GenesisHash = common.HexToHash(h)
	}
	return rawdb.Open(c.String("source"), opts)
}

func openSink(c *cli.Context) (*store.Store, *store.DemoSink, error) {
	if err := requireFlag(c, "dest"); err != nil {
		return nil, nil, err
	}
	s, err := store.Open(c.String("dest"))
	if err != nil {
		return nil, nil, err
	}
	return s, store.NewDemoSink(s), nil
}

// withImporter opens both sides, for commands that migrate source data into
// a destination.
func withImporter(c *cli.Context, fn func(*importer.Importer) error) error {
	reader, err := openReader(c)
	if err != nil {
		return fmt.Errorf("opening source: %w", err)
	}
	defer reader.Close()

	s, sink, err := openSink(c)
	if err != nil {
		return fmt.Errorf("opening destination: %w", err)
	}
	defer s.Close()

	im := importer.New(reader, sink, c.Bool("verify-integrity"))
	return fn(im)
}

// withReader opens only the source, for read-only diagnostics that never
// touch (and must not require) a destination store.
func withReader(c *cli.Context, fn func(*rawdb.GethReader) error) error {
	reader, err := openReader(c)
	if err != nil {
		return fmt.Errorf("opening source: %w", err)
	}
	defer reader.Close()

	return fn(reader)
}

func main() {
	app := &cli.App{
		Name:  "gethimport",
		Usage: "migrate chain data out of a geth chaindata directory",
		Flags: []cli.Flag{sourceFlag, destFlag, genesisHashFlag, verifyIntegrityFlag},
		Commands: []*cli.Command{
			{
				Name:  "import_headers",
				Usage: "copy headers from the destination's head up to --until (or the source's head)",
				Flags: []cli.Flag{untilFlag},
				Action: func(c *cli.Context) error {
					return withImporter(c, func(im *importer.Importer) error {
						var until *uint64
						if c.IsSet("until") {
							v := c.Uint64("until")
							until = &v
						}
						return im.ImportHeaders(until)
					})
				},
			},
			{
				Name:  "sweep_state",
				Usage: "bulk-copy every 32-byte key in the source live store into the destination",
				Action: func(c *cli.Context) error {
					return withImporter(c, func(im *importer.Importer) error { return im.SweepState() })
				},
			},
			{
				Name:  "import_state",
				Usage: "precisely walk the state trie (and every storage trie) rooted at the destination's head",
				Action: func(c *cli.Context) error {
					return withImporter(c, func(im *importer.Importer) error { return im.ImportState() })
				},
			},
			{
				Name:  "import_body_range",
				Usage: "persist bodies for [--start,--end], verifying each against its header's transactions root",
				Flags: []cli.Flag{startFlag, endFlag},
				Action: func(c *cli.Context) error {
					return withImporter(c, func(im *importer.Importer) error {
						return im.ImportBodyRange(c.Uint64("start"), c.Uint64("end"))
					})
				},
			},
			{
				Name:  "process_blocks",
				Usage: "replay blocks from (destination head, --end] through the sink's full validation",
				Flags: []cli.Flag{endFlag},
				Action: func(c *cli.Context) error {
					return withImporter(c, func(im *importer.Importer) error { return im.ProcessBlocks(c.Uint64("end")) })
				},
			},
			{
				Name:  "read_receipts",
				Usage: "decode and print one block's receipt tuples (source-only, touches no destination)",
				Flags: []cli.Flag{numberFlag},
				Action: func(c *cli.Context) error {
					return withReader(c, func(reader *rawdb.GethReader) error {
						raw, err := reader.Receipts(c.Uint64("number"), common.Hash{})
						if err != nil {
							return err
						}
						tuples, err := rawdb.DecodeReceiptTuples(raw)
						if err != nil {
							return err
						}
						for i, t := range tuples {
							log.Info("receipt", "index", i, "gas_used", t.GasUsed, "logs", len(t.Logs))
						}
						return nil
					})
				},
			},
			{
				Name:  "read_geth",
				Usage: "print the source's DatabaseVersion and ancient entry count (source-only, touches no destination)",
				Action: func(c *cli.Context) error {
					return withReader(c, func(reader *rawdb.GethReader) error {
						d := reader.Diagnostics()
						log.Info("read_geth", "database_version", d.DatabaseVersion, "ancient_entry_count", d.AncientEntryCount)
						return nil
					})
				},
			},
			{
				Name:  "read_dest",
				Usage: "print the destination's current canonical head",
				Action: func(c *cli.Context) error {
					return withImporter(c, func(im *importer.Importer) error {
						head, err := im.ReadDestinationHead()
						if err != nil {
							return err
						}
						log.Info("read_dest", "number", head.Number, "hash", head.Hash, "state_root", head.StateRoot)
						return nil
					})
				},
			},
			{
				Name:  "compact",
				Usage: "compact the destination store",
				Action: func(c *cli.Context) error {
					s, _, err := openSink(c)
					if err != nil {
						return err
					}
					defer s.Close()
					return s.Compact()
				},
			},
			{
				Name:  "scan_bodies",
				Usage: "diagnostic: compare full vs hashes-only body encoding sizes over [--start,--end]",
				Flags: []cli.Flag{startFlag, endFlag},
				Action: func(c *cli.Context) error {
					return withImporter(c, func(im *importer.Importer) error {
						return im.ScanBodies(c.Uint64("start"), c.Uint64("end"))
					})
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Error("gethimport failed", "err", err)
		os.Exit(1)
	}
}
