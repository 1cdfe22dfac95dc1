package ddbsdk

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Encrypter protects item fields at rest.
//
// Encrypt receives the item and the fields to protect; key columns, the type
// tag, the metadata field and GSI key fields are never among them.
// Decrypt must accept items that were never encrypted.
type Encrypter interface {
	Encrypt(ctx context.Context, item Item, fields []string) (Item, error)
	Decrypt(ctx context.Context, item Item) (Item, error)
}

func (c *Client) encrypt(ctx context.Context, item Item) (Item, error) {
	if c.opts.encrypter == nil {
		return item, nil
	}
	fields := c.table.EncryptableFields(item)
	if len(fields) == 0 {
		return item, nil
	}
	out, err := c.opts.encrypter.Encrypt(ctx, item, fields)
	if err != nil {
		return nil, fmt.Errorf("encrypt item: %w", err)
	}
	return out, nil
}

func (c *Client) decrypt(ctx context.Context, item Item) (Item, error) {
	if c.opts.encrypter == nil {
		return item, nil
	}
	return c.opts.encrypter.Decrypt(ctx, item)
}

// transform decrypts items concurrently. The returned items keep the input
// order; items that failed are dropped and their errors returned instead.
func (c *Client) transform(ctx context.Context, items []Item) ([]Item, []error) {
	if len(items) == 0 {
		return []Item{}, nil
	}
	results := make([]Item, len(items))
	failures := make([]error, len(items))

	var g errgroup.Group
	g.SetLimit(c.opts.transformConcurrency)
	for i, item := range items {
		g.Go(func() error {
			out, err := c.decrypt(ctx, item)
			if err != nil {
				failures[i] = fmt.Errorf("item %d: %w", i, err)
				return nil
			}
			results[i] = out
			return nil
		})
	}
	_ = g.Wait()

	kept := make([]Item, 0, len(items))
	var errs []error
	for i := range items {
		if failures[i] != nil {
			errs = append(errs, failures[i])
			continue
		}
		kept = append(kept, results[i])
	}
	return kept, errs
}
