package ddbstore

import (
	"errors"
	"fmt"

	"github.com/acksell/tablekit/dynamodb/avcodec"
	"github.com/acksell/tablekit/dynamodb/ddbstore/expreval"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/dgraph-io/badger/v4"
)

func ptrStr(s string) *string {
	return &s
}

func validationError(msg string) error {
	return &smithy.GenericAPIError{Code: "ValidationException", Message: msg, Fault: smithy.FaultClient}
}

func resourceNotFound(tableName string) error {
	return &types.ResourceNotFoundException{
		Message: ptrStr(fmt.Sprintf("Requested resource not found: Table: %s not found", tableName)),
	}
}

func conditionFailed(item map[string]types.AttributeValue) error {
	return &types.ConditionalCheckFailedException{
		Message: ptrStr("The conditional request failed"),
		Item:    item,
	}
}

// readItem loads the item stored under key, returning nil when absent.
func readItem(txn *badger.Txn, key []byte) (map[string]types.AttributeValue, error) {
	badgerItem, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var item map[string]types.AttributeValue
	err = badgerItem.Value(func(val []byte) error {
		item, err = avcodec.DeserializeItem(val)
		return err
	})
	return item, err
}

// baseKey encodes the primary key of key on t, rejecting keys with missing,
// mistyped or extra attributes.
func (t *tableSchema) baseKey(key map[string]types.AttributeValue) ([]byte, error) {
	if _, err := t.definition.ExtractPrimaryKey(key); err != nil {
		return nil, validationError(fmt.Sprintf("the provided key element does not match the schema: %v", err))
	}
	want := 1
	if t.definition.KeyDefinitions.SortKey.Name != "" {
		want = 2
	}
	if len(key) != want {
		return nil, validationError("the provided key element does not match the schema")
	}
	encoded, _, err := t.encoder().encodeKey(key)
	return encoded, err
}

// itemKey encodes the primary key of a full item.
func (t *tableSchema) itemKey(item map[string]types.AttributeValue) ([]byte, error) {
	if _, err := t.definition.ExtractPrimaryKey(item); err != nil {
		return nil, validationError(fmt.Sprintf("one or more parameter values were invalid: %v", err))
	}
	encoded, _, err := t.encoder().encodeKey(item)
	return encoded, err
}

// checkCondition evaluates a condition expression against the current item.
// A nil expression always passes.
func checkCondition(expr *string, env *expreval.Env, current map[string]types.AttributeValue) (bool, error) {
	if expr == nil || *expr == "" {
		return true, nil
	}
	ok, err := expreval.EvalCondition(*expr, env, current)
	if err != nil {
		return false, validationError(fmt.Sprintf("invalid ConditionExpression: %v", err))
	}
	return ok, nil
}

func checkUnused(env *expreval.Env) error {
	if err := env.CheckUnused(); err != nil {
		return validationError(err.Error())
	}
	return nil
}

// writeItem stores item under key and keeps every GSI of t in step.
func (s *Store) writeItem(txn *badger.Txn, t *tableSchema, key []byte, item, old map[string]types.AttributeValue) error {
	itemBytes, err := avcodec.SerializeItem(item)
	if err != nil {
		return fmt.Errorf("serialize item: %w", err)
	}
	if err := txn.Set(key, itemBytes); err != nil {
		return err
	}
	for _, gsi := range t.gsis {
		if err := updateGSI(txn, gsi, item, old, itemBytes); err != nil {
			return fmt.Errorf("update GSI %s: %w", gsi.definition.Name, err)
		}
	}
	return nil
}

// removeItem deletes key and the GSI entries of old.
func (s *Store) removeItem(txn *badger.Txn, t *tableSchema, key []byte, old map[string]types.AttributeValue) error {
	if err := txn.Delete(key); err != nil {
		return err
	}
	for _, gsi := range t.gsis {
		if err := updateGSI(txn, gsi, nil, old, nil); err != nil {
			return fmt.Errorf("update GSI %s: %w", gsi.definition.Name, err)
		}
	}
	return nil
}

// updateGSI replaces the index entry of old with the one for newItem. Items
// missing an index key attribute are not projected into the index.
func updateGSI(txn *badger.Txn, gsi *gsiSchema, newItem, oldItem map[string]types.AttributeValue, itemBytes []byte) error {
	enc := gsi.encoder()
	if oldItem != nil {
		oldKey, ok, err := enc.encodeKey(oldItem)
		if err == nil && ok {
			if err := txn.Delete(oldKey); err != nil {
				return err
			}
		}
	}
	if newItem == nil {
		return nil
	}
	newKey, ok, err := enc.encodeKey(newItem)
	if err != nil {
		return validationError(fmt.Sprintf("one or more parameter values were invalid: type mismatch for index key: %v", err))
	}
	if !ok {
		return nil
	}
	return txn.Set(newKey, itemBytes)
}

func incrementBytes(b []byte) []byte {
	result := make([]byte, len(b))
	copy(result, b)
	for i := len(result) - 1; i >= 0; i-- {
		if result[i] < 0xFF {
			result[i]++
			return result[:i+1]
		}
	}
	// all 0xFF: nothing sorts after it with this prefix length
	return append(result, 0x00)
}

func returnOld(rv types.ReturnValue, old map[string]types.AttributeValue) map[string]types.AttributeValue {
	if rv == types.ReturnValueAllOld && old != nil {
		return old
	}
	return nil
}
