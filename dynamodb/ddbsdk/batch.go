package ddbsdk

import (
	"context"
	"fmt"

	"github.com/acksell/tablekit/dynamodb/ddberrors"
	"github.com/acksell/tablekit/dynamodb/table"

	dynamodbv2 "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"golang.org/x/sync/errgroup"
)

const (
	// https://docs.aws.amazon.com/amazondynamodb/latest/APIReference/API_BatchGetItem.html
	maxBatchGetKeys = 100
	// https://docs.aws.amazon.com/amazondynamodb/latest/APIReference/API_BatchWriteItem.html
	maxBatchWriteRequests = 25
)

// BatchGetResult is the outcome of BatchGet.
type BatchGetResult struct {
	Groups Groups
	// Unprocessed holds the keys the store did not serve, as passed by the caller.
	// BatchGet does not retry them.
	Unprocessed []table.Key
}

// BatchGet reads keys in chunks of 100, one concurrent request per chunk.
// The groups cover every tag referenced by keys.
func (c *Client) BatchGet(ctx context.Context, keys []table.Key, opts ...GetOption) (*BatchGetResult, error) {
	var o getOpts
	for _, opt := range opts {
		opt(&o)
	}
	tags := make([]string, 0, len(keys))
	for _, k := range keys {
		tags = append(tags, k.Tag)
	}
	tags = uniqueTags(tags)
	if len(keys) == 0 {
		groups, _ := GroupByTag(nil, tags, c.table.TypeField())
		return &BatchGetResult{Groups: groups}, nil
	}

	lookup := newKeyLookup(keys)
	// the store rejects a request naming the same key twice
	distinct := make([]table.Key, 0, len(lookup))
	seen := make(map[string]struct{}, len(lookup))
	for _, k := range keys {
		id := lookupID(k.Partition, k.Sort)
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		distinct = append(distinct, k)
	}
	chunks := chunk(distinct, maxBatchGetKeys)
	found := make([][]Item, len(chunks))
	unprocessed := make([][]Item, len(chunks))

	log := c.logger("batch_get")
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.batchConcurrency)
	for i, part := range chunks {
		g.Go(func() error {
			wire := make([]Item, 0, len(part))
			for _, k := range part {
				wire = append(wire, c.table.KeyAttributes(k))
			}
			res, err := c.awsddb.BatchGetItem(gctx, &dynamodbv2.BatchGetItemInput{
				RequestItems: map[string]types.KeysAndAttributes{
					c.table.Name(): {
						Keys:           wire,
						ConsistentRead: ptr(!o.eventuallyConsistent),
					},
				},
			})
			if err != nil {
				return fmt.Errorf("batch get chunk %d failed: %w", i, err)
			}
			found[i] = res.Responses[c.table.Name()]
			if ka, ok := res.UnprocessedKeys[c.table.Name()]; ok {
				unprocessed[i] = ka.Keys
			}
			log.Debug().Int("chunk", i).Int("requested", len(part)).Int("found", len(found[i])).Msg("batch get chunk")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var raw []Item
	for _, items := range found {
		raw = append(raw, items...)
	}
	result := &BatchGetResult{}
	for _, wires := range unprocessed {
		for _, wire := range wires {
			k, err := lookup.resolve(c.table, wire)
			if err != nil {
				return nil, err
			}
			result.Unprocessed = append(result.Unprocessed, k)
		}
	}
	if len(result.Unprocessed) > 0 {
		log.Warn().Int("unprocessed", len(result.Unprocessed)).Msg("batch get left keys unprocessed")
	}

	items, errs := c.transform(ctx, raw)
	if len(errs) > 0 {
		log.Warn().Int("failed", len(errs)).Msg("dropped items that failed to decrypt")
		return nil, transformError(errs)
	}
	groups, err := GroupByTag(items, tags, c.table.TypeField())
	if err != nil {
		return nil, err
	}
	result.Groups = groups
	return result, nil
}

// PutRequest is a put staged in a batch or transaction.
type PutRequest struct {
	Model  *table.Model
	Fields any
}

// BatchWriteResult is the outcome of BatchWrite. Nothing is retried.
type BatchWriteResult struct {
	// UnprocessedPuts holds the items of puts the store did not apply, before
	// encryption, so they can be passed back to BatchWrite as Fields.
	UnprocessedPuts []Item
	// UnprocessedDeletes holds the keys of deletes the store did not apply, as passed by the caller.
	UnprocessedDeletes []table.Key
}

// BatchWrite issues one BatchWriteItem call with every put and delete.
// At most 25 requests fit in a call.
func (c *Client) BatchWrite(ctx context.Context, puts []PutRequest, deletes []table.Key) (*BatchWriteResult, error) {
	n := len(puts) + len(deletes)
	if n == 0 {
		return &BatchWriteResult{}, nil
	}
	if n > maxBatchWriteRequests {
		return nil, ddberrors.NewValidationError("requests", fmt.Sprintf("batch write accepts at most %d requests, got %d", maxBatchWriteRequests, n))
	}

	requests := make([]types.WriteRequest, 0, n)
	plain := make(map[string]Item, len(puts))
	for i, p := range puts {
		if p.Model == nil {
			return nil, ddberrors.NewValidationError("model", fmt.Sprintf("put %d has no model", i))
		}
		item, err := p.Model.Create(p.Fields)
		if err != nil {
			return nil, fmt.Errorf("put %d: %w", i, err)
		}
		k, err := c.table.KeyOf(item)
		if err != nil {
			return nil, fmt.Errorf("put %d: %w", i, err)
		}
		plain[lookupID(k.Partition, k.Sort)] = item
		sealed, err := c.encrypt(ctx, item)
		if err != nil {
			return nil, fmt.Errorf("put %d: %w", i, err)
		}
		requests = append(requests, types.WriteRequest{PutRequest: &types.PutRequest{Item: sealed}})
	}
	for _, k := range deletes {
		requests = append(requests, types.WriteRequest{DeleteRequest: &types.DeleteRequest{Key: c.table.KeyAttributes(k)}})
	}

	log := c.logger("batch_write")
	log.Debug().Int("puts", len(puts)).Int("deletes", len(deletes)).Msg("batch write")

	res, err := c.awsddb.BatchWriteItem(ctx, &dynamodbv2.BatchWriteItemInput{
		RequestItems: map[string][]types.WriteRequest{c.table.Name(): requests},
	})
	if err != nil {
		return nil, fmt.Errorf("batch write failed: %w", err)
	}

	result := &BatchWriteResult{}
	lookup := newKeyLookup(deletes)
	for _, req := range res.UnprocessedItems[c.table.Name()] {
		switch {
		case req.PutRequest != nil:
			k, err := c.table.KeyOf(req.PutRequest.Item)
			if err != nil {
				return nil, ddberrors.Inconsistent("store reported a malformed put: %v", err)
			}
			item, ok := plain[lookupID(k.Partition, k.Sort)]
			if !ok {
				return nil, ddberrors.Inconsistent("store reported put %q/%q that was never requested", k.Partition, k.Sort)
			}
			result.UnprocessedPuts = append(result.UnprocessedPuts, item)
		case req.DeleteRequest != nil:
			k, err := lookup.resolve(c.table, req.DeleteRequest.Key)
			if err != nil {
				return nil, err
			}
			result.UnprocessedDeletes = append(result.UnprocessedDeletes, k)
		}
	}
	if len(result.UnprocessedPuts)+len(result.UnprocessedDeletes) > 0 {
		log.Warn().
			Int("puts", len(result.UnprocessedPuts)).
			Int("deletes", len(result.UnprocessedDeletes)).
			Msg("batch write left requests unprocessed")
	}
	return result, nil
}

// keyLookup maps the wire form of keys back to the keys the caller passed.
type keyLookup map[string]table.Key

func newKeyLookup(keys []table.Key) keyLookup {
	l := make(keyLookup, len(keys))
	for _, k := range keys {
		l[lookupID(k.Partition, k.Sort)] = k
	}
	return l
}

func (l keyLookup) resolve(tbl *table.Table, wire Item) (table.Key, error) {
	k, err := tbl.KeyOf(wire)
	if err != nil {
		return table.Key{}, ddberrors.Inconsistent("store reported a malformed key: %v", err)
	}
	orig, ok := l[lookupID(k.Partition, k.Sort)]
	if !ok {
		return table.Key{}, ddberrors.Inconsistent("store reported key %q/%q that was never requested", k.Partition, k.Sort)
	}
	return orig, nil
}

func lookupID(partition, sort string) string {
	return partition + "|" + sort
}

func chunk[T any](s []T, size int) [][]T {
	var out [][]T
	for len(s) > size {
		out = append(out, s[:size:size])
		s = s[size:]
	}
	if len(s) > 0 {
		out = append(out, s)
	}
	return out
}
