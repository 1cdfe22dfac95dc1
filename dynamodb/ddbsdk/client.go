// Package ddbsdk runs typed single-table operations against DynamoDB or any
// store implementing ddbiface.AWSDynamoClientV2.
//
// A Client is bound to one sealed table.Table. Items read back are passed
// through the configured Encrypter and grouped by their model tag.
package ddbsdk

import (
	"github.com/acksell/tablekit/dynamodb/ddbiface"
	"github.com/acksell/tablekit/dynamodb/table"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog"
)

// Item is a raw DynamoDB item.
type Item = map[string]types.AttributeValue

const (
	defaultTransformConcurrency = 16
	defaultBatchConcurrency     = 4
	defaultPageSize             = 10
)

type Client struct {
	awsddb ddbiface.AWSDynamoClientV2
	table  *table.Table
	opts   clientOptions
}

type clientOptions struct {
	log                  zerolog.Logger
	encrypter            Encrypter
	transformConcurrency int
	batchConcurrency     int
}

type Option func(*clientOptions)

// WithLogger sets the logger receiving per-request debug events.
func WithLogger(log zerolog.Logger) Option {
	return func(o *clientOptions) {
		o.log = log
	}
}

// WithEncrypter encrypts non-exempt fields on write and decrypts on read.
// Without one, items pass through unchanged.
func WithEncrypter(e Encrypter) Option {
	return func(o *clientOptions) {
		o.encrypter = e
	}
}

// WithTransformConcurrency bounds the number of items decrypted at once per page.
func WithTransformConcurrency(n int) Option {
	return func(o *clientOptions) {
		if n > 0 {
			o.transformConcurrency = n
		}
	}
}

// WithBatchConcurrency bounds the number of BatchGetItem requests in flight.
func WithBatchConcurrency(n int) Option {
	return func(o *clientOptions) {
		if n > 0 {
			o.batchConcurrency = n
		}
	}
}

// New binds a client to tbl and seals it. Register every model, partition
// and GSI before calling New.
func New(awsddb ddbiface.AWSDynamoClientV2, tbl *table.Table, opts ...Option) *Client {
	o := clientOptions{
		log:                  zerolog.Nop(),
		transformConcurrency: defaultTransformConcurrency,
		batchConcurrency:     defaultBatchConcurrency,
	}
	for _, opt := range opts {
		opt(&o)
	}
	tbl.Seal()
	return &Client{
		awsddb: awsddb,
		table:  tbl,
		opts:   o,
	}
}

// Table returns the table the client is bound to.
func (c *Client) Table() *table.Table {
	return c.table
}

func (c *Client) logger(op string) zerolog.Logger {
	return c.opts.log.With().Str("op", op).Str("table", c.table.Name()).Logger()
}

func ptr[T any](v T) *T {
	return &v
}
