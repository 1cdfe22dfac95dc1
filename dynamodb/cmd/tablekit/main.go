// tablekit is a CLI for working with a single-table layout described in a
// schema file.
//
// # Commands
//
//	tablekit validate       Check a schema file
//	tablekit create-table   Create the table and its GSIs
//	tablekit put            Write one item of a model
//	tablekit get            Read one item by key fields
//	tablekit scan           List items, optionally filtered by model
//	tablekit ui             Serve the debug API over the same backend
//
// # Quick Start
//
// Put a tablekit.yaml next to your schema:
//
//	schema: ./music.yaml
//	dataDir: ./.tablekit
//
// Then:
//
//	tablekit create-table
//	tablekit put -model song '{"musicianId":"1","id":7,"title":"Exodus"}'
//	tablekit get -model song musicianId=1 id=7
//
// Without dataDir, region or endpoint set, items live in memory for the
// duration of one command.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(1)
	}
	cmd, args := os.Args[1], os.Args[2:]

	switch cmd {
	case "help", "-h", "--help":
		printUsage(os.Stdout)
		return
	case "version", "-v", "--version":
		fmt.Printf("tablekit version %s\n", version)
		return
	}

	if err := run(context.Background(), cmd, args, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "tablekit %s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd string, args []string, out io.Writer) error {
	switch cmd {
	case "validate":
		return runValidate(args, out)
	case "create-table":
		return runCreateTable(ctx, args, out)
	case "put":
		return runPut(ctx, args, out)
	case "get":
		return runGet(ctx, args, out)
	case "scan":
		return runScan(ctx, args, out)
	case "ui", "serve":
		return runUI(ctx, args, out)
	default:
		return fmt.Errorf("unknown command %q, see tablekit help", cmd)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `tablekit - single-table DynamoDB tools

Usage:
  tablekit <command> [flags] [args]

Commands:
  validate       Check a schema file
  create-table   Create the table and its GSIs
  put            Write one item: put -model <tag> '<json fields>'
  get            Read one item: get -model <tag> field=value...
  scan           List items: scan [-model <tag>]...
  ui             Serve the debug API: ui [-addr :8080]
  version        Print the version

Common flags:
  -config string      path to tablekit.yaml (default: search upwards)
  -schema string      schema file (overrides config)
  -db string          BadgerDB directory (overrides config dataDir)
  -memory             use an in-memory store
  -region string      AWS region; selects DynamoDB instead of a local store
  -endpoint string    DynamoDB endpoint URL, e.g. http://localhost:8000
  -passphrase string  field encryption passphrase (env TABLEKIT_PASSPHRASE)
  -v                  verbose logging`)
}
