package ddbstore

import (
	"bytes"
	"fmt"

	"github.com/acksell/tablekit/dynamodb/avcodec"
	"github.com/acksell/tablekit/dynamodb/ddbstore/expreval"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dgraph-io/badger/v4"
)

// pageRequest describes one page of a Query or Scan over a key range.
type pageRequest struct {
	enc     *keyEncoder
	prefix  []byte
	start   map[string]types.AttributeValue
	reverse bool
	limit   int

	// match selects the items the operation evaluates; filter then drops
	// evaluated items from the result.
	match      func(map[string]types.AttributeValue) bool
	filter     expreval.Condition
	projection expreval.Projection
}

type pageResult struct {
	items   []map[string]types.AttributeValue
	scanned int
	lastKey map[string]types.AttributeValue
}

func (s *Store) readPage(req pageRequest) (pageResult, error) {
	var res pageResult

	var startKey []byte
	if len(req.start) > 0 {
		key, ok, err := req.enc.encodeKey(req.start)
		if err != nil || !ok {
			return res, validationError("the provided starting key is invalid")
		}
		if !bytes.HasPrefix(key, req.prefix) {
			return res, validationError("the provided starting key does not match the range key predicate")
		}
		startKey = key
	}

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = req.reverse
		opts.Prefix = req.prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		switch {
		case startKey != nil:
			it.Seek(startKey)
			if it.ValidForPrefix(req.prefix) && bytes.Equal(it.Item().Key(), startKey) {
				it.Next()
			}
		case req.reverse:
			it.Seek(incrementBytes(req.prefix))
		default:
			it.Seek(req.prefix)
		}

		var last map[string]types.AttributeValue
		for ; it.ValidForPrefix(req.prefix); it.Next() {
			var item map[string]types.AttributeValue
			if err := it.Item().Value(func(val []byte) error {
				var err error
				item, err = avcodec.DeserializeItem(val)
				return err
			}); err != nil {
				return fmt.Errorf("decode item: %w", err)
			}
			if req.match != nil && !req.match(item) {
				continue
			}

			if req.limit > 0 && res.scanned == req.limit {
				// another evaluable item exists past the limit
				res.lastKey = req.enc.keyAttributes(last)
				return nil
			}
			res.scanned++
			last = item

			if req.filter != nil && !req.filter.Eval(item) {
				continue
			}
			if req.projection != nil {
				item = req.projection.Apply(item)
			}
			res.items = append(res.items, item)
		}
		return nil
	})
	return res, err
}
