package ddbstore

import (
	"context"
	"fmt"
	"sort"

	"github.com/acksell/tablekit/dynamodb/ddbstore/expreval"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dgraph-io/badger/v4"
)

const (
	maxBatchGetKeys      = 100
	maxBatchWriteRequest = 25
)

// BatchGetItem retrieves multiple items by their primary keys. Keys past
// StoreOptions.BatchGetLimit come back in UnprocessedKeys.
func (s *Store) BatchGetItem(ctx context.Context, params *dynamodb.BatchGetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error) {
	if params == nil || len(params.RequestItems) == 0 {
		return nil, validationError("RequestItems is required")
	}
	total := 0
	for _, ka := range params.RequestItems {
		total += len(ka.Keys)
	}
	if total > maxBatchGetKeys {
		return nil, validationError(fmt.Sprintf("too many items requested for the BatchGetItem call: %d", total))
	}

	response := &dynamodb.BatchGetItemOutput{
		Responses:       make(map[string][]map[string]types.AttributeValue),
		UnprocessedKeys: make(map[string]types.KeysAndAttributes),
	}

	served := 0
	err := s.db.View(func(txn *badger.Txn) error {
		for _, tableName := range sortedKeys(params.RequestItems) {
			ka := params.RequestItems[tableName]
			tabl, err := s.getTable(&tableName)
			if err != nil {
				return err
			}
			env := expreval.NewEnv(ka.ExpressionAttributeNames, nil)
			projection, err := parseProjection(ka.ProjectionExpression, env)
			if err != nil {
				return err
			}
			if err := checkUnused(env); err != nil {
				return err
			}

			for i, keyAttrs := range ka.Keys {
				if s.opts.BatchGetLimit > 0 && served == s.opts.BatchGetLimit {
					rest := ka
					rest.Keys = ka.Keys[i:]
					response.UnprocessedKeys[tableName] = rest
					break
				}
				served++

				key, err := tabl.baseKey(keyAttrs)
				if err != nil {
					return err
				}
				item, err := readItem(txn, key)
				if err != nil {
					return err
				}
				if item == nil {
					continue
				}
				if projection != nil {
					item = projection.Apply(item)
				}
				response.Responses[tableName] = append(response.Responses[tableName], item)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if n := countKeys(response.UnprocessedKeys); n > 0 {
		s.log.Debug().Int("unprocessed", n).Msg("batch get capped")
	}
	return response, nil
}

// BatchWriteItem performs multiple put/delete operations. Requests past
// StoreOptions.BatchWriteLimit come back in UnprocessedItems.
func (s *Store) BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	if params == nil || len(params.RequestItems) == 0 {
		return nil, validationError("RequestItems is required")
	}
	total := 0
	for _, reqs := range params.RequestItems {
		total += len(reqs)
	}
	if total > maxBatchWriteRequest {
		return nil, validationError(fmt.Sprintf("too many items requested for the BatchWriteItem call: %d", total))
	}

	unprocessed := make(map[string][]types.WriteRequest)
	applied := 0

	err := s.db.Update(func(txn *badger.Txn) error {
		for _, tableName := range sortedKeys(params.RequestItems) {
			tabl, err := s.getTable(&tableName)
			if err != nil {
				return err
			}

			for _, req := range params.RequestItems[tableName] {
				if s.opts.BatchWriteLimit > 0 && applied == s.opts.BatchWriteLimit {
					unprocessed[tableName] = append(unprocessed[tableName], req)
					continue
				}
				applied++

				switch {
				case req.PutRequest != nil:
					if _, err := s.putInTxn(txn, tabl, req.PutRequest.Item, nil, expreval.NewEnv(nil, nil)); err != nil {
						return err
					}
				case req.DeleteRequest != nil:
					if _, err := s.deleteInTxn(txn, tabl, req.DeleteRequest.Key, nil, expreval.NewEnv(nil, nil)); err != nil {
						return err
					}
				default:
					return validationError("write request must contain a PutRequest or a DeleteRequest")
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(unprocessed) > 0 {
		s.log.Debug().Int("applied", applied).Msg("batch write capped")
	}
	return &dynamodb.BatchWriteItemOutput{UnprocessedItems: unprocessed}, nil
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func countKeys(m map[string]types.KeysAndAttributes) int {
	n := 0
	for _, ka := range m {
		n += len(ka.Keys)
	}
	return n
}
