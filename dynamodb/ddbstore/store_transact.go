package ddbstore

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/acksell/tablekit/dynamodb/ddbstore/expreval"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dgraph-io/badger/v4"
)

const maxTransactItems = 100

// TransactGetItems retrieves multiple items from one consistent snapshot.
func (s *Store) TransactGetItems(ctx context.Context, params *dynamodb.TransactGetItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactGetItemsOutput, error) {
	if params == nil || len(params.TransactItems) == 0 {
		return nil, validationError("TransactItems is required")
	}
	if len(params.TransactItems) > maxTransactItems {
		return nil, validationError(fmt.Sprintf("member must have length less than or equal to %d", maxTransactItems))
	}

	response := &dynamodb.TransactGetItemsOutput{
		Responses: make([]types.ItemResponse, 0, len(params.TransactItems)),
	}

	err := s.db.View(func(txn *badger.Txn) error {
		for _, ti := range params.TransactItems {
			if ti.Get == nil {
				return validationError("transact get item request without Get")
			}
			tabl, err := s.getTable(ti.Get.TableName)
			if err != nil {
				return err
			}
			key, err := tabl.baseKey(ti.Get.Key)
			if err != nil {
				return err
			}
			env := expreval.NewEnv(ti.Get.ExpressionAttributeNames, nil)
			projection, err := parseProjection(ti.Get.ProjectionExpression, env)
			if err != nil {
				return err
			}
			if err := checkUnused(env); err != nil {
				return err
			}

			item, err := readItem(txn, key)
			if err != nil {
				return err
			}
			if item != nil && projection != nil {
				item = projection.Apply(item)
			}
			response.Responses = append(response.Responses, types.ItemResponse{Item: item})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return response, nil
}

// transactOp is one TransactWriteItem flattened.
type transactOp struct {
	table      *tableSchema
	key        []byte
	item       map[string]types.AttributeValue // put
	keyAttrs   map[string]types.AttributeValue // delete, update, condition check
	update     *string
	condition  *string
	names      map[string]string
	values     map[string]types.AttributeValue
	isPut      bool
	isDelete   bool
	isUpdate   bool
	returnItem bool
}

func (op *transactOp) env() *expreval.Env {
	return expreval.NewEnv(op.names, op.values)
}

// TransactWriteItems applies every write or none. Conditions are checked
// first; if any fails the call returns a TransactionCanceledException with
// one cancellation reason per item.
func (s *Store) TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	if params == nil || len(params.TransactItems) == 0 {
		return nil, validationError("TransactItems is required")
	}
	if len(params.TransactItems) > maxTransactItems {
		return nil, validationError(fmt.Sprintf("member must have length less than or equal to %d", maxTransactItems))
	}

	token := aws.ToString(params.ClientRequestToken)
	if token != "" && s.seenToken(token) {
		s.log.Debug().Str("token", token).Msg("transaction replayed")
		return &dynamodb.TransactWriteItemsOutput{}, nil
	}

	ops := make([]*transactOp, len(params.TransactItems))
	for i, ti := range params.TransactItems {
		op, err := s.flatten(ti)
		if err != nil {
			return nil, err
		}
		for _, prev := range ops[:i] {
			if bytes.Equal(prev.key, op.key) {
				return nil, validationError("transaction request cannot include multiple operations on one item")
			}
		}
		ops[i] = op
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		reasons := make([]types.CancellationReason, len(ops))
		failed := false
		for i, op := range ops {
			ok, current, err := s.checkTransactOp(txn, op)
			if err != nil {
				return err
			}
			reasons[i] = types.CancellationReason{Code: ptrStr("None")}
			if !ok {
				failed = true
				reasons[i] = types.CancellationReason{
					Code:    ptrStr("ConditionalCheckFailed"),
					Message: ptrStr("The conditional request failed"),
				}
				if op.returnItem {
					reasons[i].Item = current
				}
			}
		}
		if failed {
			return transactionCanceled(reasons)
		}

		for _, op := range ops {
			var err error
			switch {
			case op.isPut:
				_, err = s.putInTxn(txn, op.table, op.item, op.condition, op.env())
			case op.isDelete:
				_, err = s.deleteInTxn(txn, op.table, op.keyAttrs, op.condition, op.env())
			case op.isUpdate:
				_, _, err = s.updateInTxn(txn, op.table, op.keyAttrs, op.update, op.condition, op.env())
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if token != "" {
		s.rememberToken(token)
	}
	s.log.Debug().Int("items", len(ops)).Msg("transaction committed")
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func (s *Store) flatten(ti types.TransactWriteItem) (*transactOp, error) {
	op := &transactOp{}
	var tableName *string
	switch {
	case ti.Put != nil:
		op.isPut, tableName = true, ti.Put.TableName
		op.item, op.condition = ti.Put.Item, ti.Put.ConditionExpression
		op.names, op.values = ti.Put.ExpressionAttributeNames, ti.Put.ExpressionAttributeValues
		op.returnItem = ti.Put.ReturnValuesOnConditionCheckFailure == types.ReturnValuesOnConditionCheckFailureAllOld
	case ti.Delete != nil:
		op.isDelete, tableName = true, ti.Delete.TableName
		op.keyAttrs, op.condition = ti.Delete.Key, ti.Delete.ConditionExpression
		op.names, op.values = ti.Delete.ExpressionAttributeNames, ti.Delete.ExpressionAttributeValues
		op.returnItem = ti.Delete.ReturnValuesOnConditionCheckFailure == types.ReturnValuesOnConditionCheckFailureAllOld
	case ti.Update != nil:
		op.isUpdate, tableName = true, ti.Update.TableName
		op.keyAttrs, op.condition, op.update = ti.Update.Key, ti.Update.ConditionExpression, ti.Update.UpdateExpression
		op.names, op.values = ti.Update.ExpressionAttributeNames, ti.Update.ExpressionAttributeValues
		op.returnItem = ti.Update.ReturnValuesOnConditionCheckFailure == types.ReturnValuesOnConditionCheckFailureAllOld
	case ti.ConditionCheck != nil:
		tableName = ti.ConditionCheck.TableName
		op.keyAttrs, op.condition = ti.ConditionCheck.Key, ti.ConditionCheck.ConditionExpression
		op.names, op.values = ti.ConditionCheck.ExpressionAttributeNames, ti.ConditionCheck.ExpressionAttributeValues
		op.returnItem = ti.ConditionCheck.ReturnValuesOnConditionCheckFailure == types.ReturnValuesOnConditionCheckFailureAllOld
		if op.condition == nil {
			return nil, validationError("ConditionCheck requires a ConditionExpression")
		}
	default:
		return nil, validationError("transact write item must contain one of Put, Delete, Update or ConditionCheck")
	}

	tabl, err := s.getTable(tableName)
	if err != nil {
		return nil, err
	}
	op.table = tabl
	if op.isPut {
		op.key, err = tabl.itemKey(op.item)
	} else {
		op.key, err = tabl.baseKey(op.keyAttrs)
	}
	if err != nil {
		return nil, err
	}
	return op, nil
}

// checkTransactOp validates the expressions of op and evaluates its
// condition against the stored item.
func (s *Store) checkTransactOp(txn *badger.Txn, op *transactOp) (bool, map[string]types.AttributeValue, error) {
	env := op.env()
	if op.isUpdate {
		if op.update == nil {
			return false, nil, validationError("UpdateExpression is required")
		}
		if _, err := expreval.ParseUpdate(*op.update, env); err != nil {
			return false, nil, validationError(fmt.Sprintf("invalid UpdateExpression: %v", err))
		}
	}
	current, err := readItem(txn, op.key)
	if err != nil {
		return false, nil, err
	}
	ok, err := checkCondition(op.condition, env, current)
	if err != nil {
		return false, nil, err
	}
	if err := checkUnused(env); err != nil {
		return false, nil, err
	}
	return ok, current, nil
}

func transactionCanceled(reasons []types.CancellationReason) error {
	codes := make([]string, len(reasons))
	for i, r := range reasons {
		codes[i] = aws.ToString(r.Code)
	}
	return &types.TransactionCanceledException{
		Message:             ptrStr(fmt.Sprintf("Transaction cancelled, please refer cancellation reasons for specific reasons [%s]", strings.Join(codes, ", "))),
		CancellationReasons: reasons,
	}
}

func (s *Store) seenToken(token string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.tokens[token]
	return ok
}

func (s *Store) rememberToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = struct{}{}
}
