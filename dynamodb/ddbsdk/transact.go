package ddbsdk

import (
	"context"
	"fmt"

	"github.com/acksell/tablekit/dynamodb/ddberrors"
	"github.com/acksell/tablekit/dynamodb/table"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	dynamodbv2 "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

// https://docs.aws.amazon.com/amazondynamodb/latest/APIReference/API_TransactWriteItems.html
const maxTransactItems = 100

// TransactPut is a put inside a transaction.
type TransactPut struct {
	Model  *table.Model
	Fields any
	// FailIfNotUnique cancels the whole transaction when the item already exists.
	FailIfNotUnique bool
}

type TransactWriteInput struct {
	// Token makes the transaction idempotent. A random token is used when empty.
	//
	// IdempotencyTokens last for 10 minutes according to AWS documentation.
	// If used after that, the request will be treated as new.
	Token   string
	Puts    []TransactPut
	Deletes []table.Key
}

// TransactWrite applies every put and delete atomically in one
// TransactWriteItems call. A cancelled transaction returns
// *ddberrors.TransactionError with one reason per action, puts first.
func (c *Client) TransactWrite(ctx context.Context, in TransactWriteInput) error {
	n := len(in.Puts) + len(in.Deletes)
	if n == 0 {
		return nil
	}
	if n > maxTransactItems {
		return ddberrors.NewValidationError("actions", fmt.Sprintf("transaction accepts at most %d actions, got %d", maxTransactItems, n))
	}

	var unique *expression.Expression
	items := make([]types.TransactWriteItem, 0, n)
	for i, p := range in.Puts {
		if p.Model == nil {
			return ddberrors.NewValidationError("model", fmt.Sprintf("put %d has no model", i))
		}
		item, err := p.Model.Create(p.Fields)
		if err != nil {
			return fmt.Errorf("put %d: %w", i, err)
		}
		item, err = c.encrypt(ctx, item)
		if err != nil {
			return fmt.Errorf("put %d: %w", i, err)
		}
		put := &types.Put{TableName: ptr(c.table.Name()), Item: item}
		if p.FailIfNotUnique {
			if unique == nil {
				e, err := c.notExistsCondition()
				if err != nil {
					return err
				}
				unique = &e
			}
			put.ConditionExpression = unique.Condition()
			put.ExpressionAttributeNames = unique.Names()
		}
		items = append(items, types.TransactWriteItem{Put: put})
	}
	for _, k := range in.Deletes {
		items = append(items, types.TransactWriteItem{Delete: &types.Delete{
			TableName: ptr(c.table.Name()),
			Key:       c.table.KeyAttributes(k),
		}})
	}

	token := in.Token
	if token == "" {
		token = uuid.NewString()
	}

	log := c.logger("transact_write")
	log.Debug().Str("token", token).Int("puts", len(in.Puts)).Int("deletes", len(in.Deletes)).Msg("transact write")

	_, err := c.awsddb.TransactWriteItems(ctx, &dynamodbv2.TransactWriteItemsInput{
		TransactItems:      items,
		ClientRequestToken: ptr(token),
	})
	if err != nil {
		return fmt.Errorf("failed to transact write items: %w", transactionError(err))
	}
	return nil
}

func (c *Client) notExistsCondition() (expression.Expression, error) {
	cond := expression.AttributeNotExists(expression.Name(c.table.PartitionKeyName()))
	e, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return expression.Expression{}, fmt.Errorf("failed to build put condition: %w", err)
	}
	return e, nil
}

// TransactGet reads keys atomically. Missing items are left out of the groups.
func (c *Client) TransactGet(ctx context.Context, keys []table.Key) (Groups, error) {
	if len(keys) > maxTransactItems {
		return nil, ddberrors.NewValidationError("keys", fmt.Sprintf("transaction accepts at most %d keys, got %d", maxTransactItems, len(keys)))
	}
	tags := make([]string, 0, len(keys))
	for _, k := range keys {
		tags = append(tags, k.Tag)
	}
	tags = uniqueTags(tags)
	if len(keys) == 0 {
		return GroupByTag(nil, tags, c.table.TypeField())
	}

	gets := make([]types.TransactGetItem, 0, len(keys))
	for _, k := range keys {
		gets = append(gets, types.TransactGetItem{Get: &types.Get{
			TableName: ptr(c.table.Name()),
			Key:       c.table.KeyAttributes(k),
		}})
	}

	log := c.logger("transact_get")
	log.Debug().Int("keys", len(keys)).Msg("transact get")

	res, err := c.awsddb.TransactGetItems(ctx, &dynamodbv2.TransactGetItemsInput{TransactItems: gets})
	if err != nil {
		return nil, fmt.Errorf("failed to transact get items: %w", transactionError(err))
	}
	raw := make([]Item, 0, len(res.Responses))
	for _, r := range res.Responses {
		if len(r.Item) > 0 {
			raw = append(raw, r.Item)
		}
	}
	items, errs := c.transform(ctx, raw)
	if len(errs) > 0 {
		return nil, transformError(errs)
	}
	return GroupByTag(items, tags, c.table.TypeField())
}
