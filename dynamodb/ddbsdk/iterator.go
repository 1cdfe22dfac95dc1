package ddbsdk

import (
	"context"
	"errors"
	"fmt"

	"github.com/acksell/tablekit/dynamodb/ddberrors"
)

// ErrIteratorDone is returned by Next once the last page has been read.
var ErrIteratorDone = errors.New("iterator is done")

// Page is one response worth of items.
type Page struct {
	// Items that were read and decrypted, in store order.
	Items []Item
	// Errors holds one entry per item that failed to decrypt.
	Errors []error
	// Cursor resumes after this page. Empty on the last page.
	Cursor string
}

// fetchFunc issues one request starting after start (nil for the first page)
// and returns the raw items and the LastEvaluatedKey.
type fetchFunc func(ctx context.Context, start Item) ([]Item, Item, error)

// Iterator walks the pages of a query or scan. The request is fixed when the
// iterator is created; later changes to the builder do not affect it.
// An Iterator is not safe for concurrent use.
type Iterator struct {
	client *Client
	fetch  fetchFunc
	start  Item
	done   bool
}

func newIterator(c *Client, fetch fetchFunc, start Item) *Iterator {
	return &Iterator{client: c, fetch: fetch, start: start}
}

// Next reads the next page. After the last page it returns ErrIteratorDone.
// A failed request leaves the iterator where it was, so Next may be retried.
func (it *Iterator) Next(ctx context.Context) (*Page, error) {
	if it.done {
		return nil, ErrIteratorDone
	}
	raw, lastKey, err := it.fetch(ctx, it.start)
	if err != nil {
		return nil, err
	}
	items, errs := it.client.transform(ctx, raw)
	if len(errs) > 0 {
		it.client.opts.log.Warn().
			Str("table", it.client.table.Name()).
			Int("failed", len(errs)).
			Msg("dropped items that failed to decrypt")
	}
	page := &Page{Items: items, Errors: errs}
	if len(lastKey) == 0 {
		it.done = true
		return page, nil
	}
	page.Cursor, err = EncodeCursor(lastKey)
	if err != nil {
		return nil, err
	}
	it.start = lastKey
	return page, nil
}

// Done reports whether the last page has been read.
func (it *Iterator) Done() bool {
	return it.done
}

// drain reads every remaining page. Transform failures are collected and
// returned together, after all pages were read.
func (it *Iterator) drain(ctx context.Context) ([]Item, error) {
	var items []Item
	var errs []error
	for !it.Done() {
		page, err := it.Next(ctx)
		if err != nil {
			return nil, err
		}
		items = append(items, page.Items...)
		errs = append(errs, page.Errors...)
	}
	if len(errs) > 0 {
		return items, transformError(errs)
	}
	return items, nil
}

func transformError(errs []error) error {
	return fmt.Errorf("%w: %w", ddberrors.ErrTransform, errors.Join(errs...))
}
