package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/acksell/tablekit/dynamodb/ddbiface"
	"github.com/acksell/tablekit/dynamodb/ddbsdk"
	"github.com/acksell/tablekit/dynamodb/ddbstore"
	"github.com/acksell/tablekit/dynamodb/fieldcrypt"
	"github.com/acksell/tablekit/dynamodb/schema"

	"github.com/rs/zerolog"
)

const passphraseEnv = "TABLEKIT_PASSPHRASE"

// commonFlags are shared by every command.
type commonFlags struct {
	config     string
	schema     string
	db         string
	memory     bool
	region     string
	endpoint   string
	passphrase string
	verbose    bool
}

func newFlagSet(name string, out io.Writer) (*flag.FlagSet, *commonFlags) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	var c commonFlags
	fs.StringVar(&c.config, "config", "", "path to "+configFileName)
	fs.StringVar(&c.schema, "schema", "", "schema file")
	fs.StringVar(&c.db, "db", "", "BadgerDB directory")
	fs.BoolVar(&c.memory, "memory", false, "use an in-memory store")
	fs.StringVar(&c.region, "region", "", "AWS region")
	fs.StringVar(&c.endpoint, "endpoint", "", "DynamoDB endpoint URL")
	fs.StringVar(&c.passphrase, "passphrase", os.Getenv(passphraseEnv), "field encryption passphrase")
	fs.BoolVar(&c.verbose, "v", false, "verbose logging")
	return fs, &c
}

// merge fills unset flags from the config file.
func (c *commonFlags) merge() error {
	cfg, err := LoadConfig(c.config)
	if err != nil {
		return err
	}
	if c.schema == "" {
		c.schema = cfg.Schema
	}
	if c.db == "" && !c.memory {
		c.db = cfg.DataDir
	}
	if c.region == "" {
		c.region = cfg.Region
	}
	if c.endpoint == "" {
		c.endpoint = cfg.Endpoint
	}
	if c.schema == "" {
		return errors.New("no schema: pass -schema or set schema in " + configFileName)
	}
	return nil
}

func (c *commonFlags) logger() zerolog.Logger {
	level := zerolog.WarnLevel
	if c.verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).
		With().Timestamp().Logger()
}

// env is an opened schema bound to a backend.
type env struct {
	reg    *schema.Registry
	client *ddbsdk.Client
	log    zerolog.Logger
	close  func() error
}

func (c *commonFlags) open(ctx context.Context) (*env, error) {
	if err := c.merge(); err != nil {
		return nil, err
	}
	s, err := schema.Load(c.schema)
	if err != nil {
		return nil, err
	}
	reg, err := s.Build()
	if err != nil {
		return nil, err
	}
	log := c.logger()

	var (
		awsddb ddbiface.AWSDynamoClientV2
		closer = func() error { return nil }
	)
	switch {
	case c.region != "" && !c.memory:
		client, err := ddbsdk.NewAWSClient(ctx, ddbsdk.AWSConfig{Region: c.region, Endpoint: c.endpoint})
		if err != nil {
			return nil, err
		}
		awsddb = client
		log.Debug().Str("region", c.region).Str("endpoint", c.endpoint).Msg("using DynamoDB")
	default:
		opts := ddbstore.StoreOptions{Path: c.db, InMemory: c.memory, Logger: &log}
		// nothing persists in memory, so the table is always registered
		var store *ddbstore.Store
		if c.db == "" || c.memory {
			store, err = ddbstore.New(opts, reg.Table.Definition())
		} else {
			store, err = ddbstore.New(opts)
		}
		if err != nil {
			return nil, err
		}
		awsddb = store
		closer = store.Close
		log.Debug().Str("path", c.db).Msg("using local store")
	}

	clientOpts := []ddbsdk.Option{ddbsdk.WithLogger(log)}
	if c.passphrase != "" {
		if reg.Table.MetadataField() == "" {
			closer()
			return nil, errors.New("encryption needs table.metadataField in the schema")
		}
		enc, err := fieldcrypt.New(c.passphrase,
			fieldcrypt.WithMetadataField(reg.Table.MetadataField()),
			fieldcrypt.WithLogger(log),
		)
		if err != nil {
			closer()
			return nil, err
		}
		clientOpts = append(clientOpts, ddbsdk.WithEncrypter(enc))
	}

	return &env{
		reg:    reg,
		client: ddbsdk.New(awsddb, reg.Table, clientOpts...),
		log:    log,
		close:  closer,
	}, nil
}

func (e *env) Close() error {
	if err := e.close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	return nil
}
