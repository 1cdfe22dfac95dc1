package ddbstore

import (
	"context"
	"fmt"

	"github.com/acksell/tablekit/dynamodb/ddbstore/expreval"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dgraph-io/badger/v4"
)

// GetItem retrieves a single item by its primary key. A missing item yields
// an empty output, not an error.
func (s *Store) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if params == nil {
		return nil, validationError("params is required")
	}
	t, err := s.getTable(params.TableName)
	if err != nil {
		return nil, err
	}
	key, err := t.baseKey(params.Key)
	if err != nil {
		return nil, err
	}

	env := expreval.NewEnv(params.ExpressionAttributeNames, nil)
	projection, err := parseProjection(params.ProjectionExpression, env)
	if err != nil {
		return nil, err
	}
	if err := checkUnused(env); err != nil {
		return nil, err
	}

	var item map[string]types.AttributeValue
	err = s.db.View(func(txn *badger.Txn) error {
		item, err = readItem(txn, key)
		return err
	})
	if err != nil {
		return nil, err
	}
	if item != nil && projection != nil {
		item = projection.Apply(item)
	}
	return &dynamodb.GetItemOutput{Item: item}, nil
}

// PutItem creates or replaces an item.
func (s *Store) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if params == nil {
		return nil, validationError("params is required")
	}
	t, err := s.getTable(params.TableName)
	if err != nil {
		return nil, err
	}

	var old map[string]types.AttributeValue
	err = s.db.Update(func(txn *badger.Txn) error {
		old, err = s.putInTxn(txn, t, params.Item, params.ConditionExpression,
			expreval.NewEnv(params.ExpressionAttributeNames, params.ExpressionAttributeValues))
		return err
	})
	if err != nil {
		return nil, err
	}
	return &dynamodb.PutItemOutput{Attributes: returnOld(params.ReturnValues, old)}, nil
}

func (s *Store) putInTxn(txn *badger.Txn, t *tableSchema, item map[string]types.AttributeValue, cond *string, env *expreval.Env) (map[string]types.AttributeValue, error) {
	if len(item) == 0 {
		return nil, validationError("item is required")
	}
	key, err := t.itemKey(item)
	if err != nil {
		return nil, err
	}
	old, err := readItem(txn, key)
	if err != nil {
		return nil, err
	}
	ok, err := checkCondition(cond, env, old)
	if err != nil {
		return nil, err
	}
	if err := checkUnused(env); err != nil {
		return nil, err
	}
	if !ok {
		return nil, conditionFailed(nil)
	}
	if err := s.writeItem(txn, t, key, item, old); err != nil {
		return nil, err
	}
	return old, nil
}

// DeleteItem removes an item by its primary key.
func (s *Store) DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	if params == nil {
		return nil, validationError("params is required")
	}
	t, err := s.getTable(params.TableName)
	if err != nil {
		return nil, err
	}

	var old map[string]types.AttributeValue
	err = s.db.Update(func(txn *badger.Txn) error {
		old, err = s.deleteInTxn(txn, t, params.Key, params.ConditionExpression,
			expreval.NewEnv(params.ExpressionAttributeNames, params.ExpressionAttributeValues))
		return err
	})
	if err != nil {
		return nil, err
	}
	return &dynamodb.DeleteItemOutput{Attributes: returnOld(params.ReturnValues, old)}, nil
}

func (s *Store) deleteInTxn(txn *badger.Txn, t *tableSchema, k map[string]types.AttributeValue, cond *string, env *expreval.Env) (map[string]types.AttributeValue, error) {
	key, err := t.baseKey(k)
	if err != nil {
		return nil, err
	}
	old, err := readItem(txn, key)
	if err != nil {
		return nil, err
	}
	ok, err := checkCondition(cond, env, old)
	if err != nil {
		return nil, err
	}
	if err := checkUnused(env); err != nil {
		return nil, err
	}
	if !ok {
		return nil, conditionFailed(nil)
	}
	if old == nil {
		return nil, nil
	}
	return old, s.removeItem(txn, t, key, old)
}

// UpdateItem edits an existing item or creates a new one from its key.
func (s *Store) UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	if params == nil {
		return nil, validationError("params is required")
	}
	t, err := s.getTable(params.TableName)
	if err != nil {
		return nil, err
	}

	var old, updated map[string]types.AttributeValue
	err = s.db.Update(func(txn *badger.Txn) error {
		old, updated, err = s.updateInTxn(txn, t, params.Key, params.UpdateExpression, params.ConditionExpression,
			expreval.NewEnv(params.ExpressionAttributeNames, params.ExpressionAttributeValues))
		return err
	})
	if err != nil {
		return nil, err
	}

	out := &dynamodb.UpdateItemOutput{}
	switch params.ReturnValues {
	case types.ReturnValueAllOld:
		out.Attributes = old
	case types.ReturnValueAllNew:
		out.Attributes = updated
	case types.ReturnValueUpdatedOld, types.ReturnValueUpdatedNew:
		src := updated
		if params.ReturnValues == types.ReturnValueUpdatedOld {
			src = old
		}
		out.Attributes = make(map[string]types.AttributeValue)
		for k, v := range src {
			if !equalAttr(old[k], updated[k]) {
				out.Attributes[k] = v
			}
		}
	}
	return out, nil
}

func (s *Store) updateInTxn(txn *badger.Txn, t *tableSchema, k map[string]types.AttributeValue, updateExpr, cond *string, env *expreval.Env) (old, updated map[string]types.AttributeValue, err error) {
	key, err := t.baseKey(k)
	if err != nil {
		return nil, nil, err
	}
	if updateExpr == nil || *updateExpr == "" {
		return nil, nil, validationError("UpdateExpression is required")
	}
	update, err := expreval.ParseUpdate(*updateExpr, env)
	if err != nil {
		return nil, nil, validationError(fmt.Sprintf("invalid UpdateExpression: %v", err))
	}
	for _, p := range update.Paths() {
		if _, isKey := k[p[0].Name]; isKey && len(p) == 1 {
			return nil, nil, validationError(fmt.Sprintf("cannot update attribute %s. This attribute is part of the key", p[0].Name))
		}
	}

	old, err = readItem(txn, key)
	if err != nil {
		return nil, nil, err
	}
	ok, err := checkCondition(cond, env, old)
	if err != nil {
		return nil, nil, err
	}
	if err := checkUnused(env); err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, conditionFailed(nil)
	}

	base := old
	if base == nil {
		base = make(map[string]types.AttributeValue, len(k))
		for name, v := range k {
			base[name] = v
		}
	}
	updated, err = update.Apply(base)
	if err != nil {
		return nil, nil, validationError(err.Error())
	}
	if err := s.writeItem(txn, t, key, updated, old); err != nil {
		return nil, nil, err
	}
	return old, updated, nil
}

func equalAttr(a, b types.AttributeValue) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return expreval.Equal(a, b)
}

func parseProjection(expr *string, env *expreval.Env) (expreval.Projection, error) {
	if expr == nil || *expr == "" {
		return nil, nil
	}
	p, err := expreval.ParseProjection(*expr, env)
	if err != nil {
		return nil, validationError(fmt.Sprintf("invalid ProjectionExpression: %v", err))
	}
	return p, nil
}
