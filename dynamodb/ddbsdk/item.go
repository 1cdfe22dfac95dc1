package ddbsdk

import (
	"context"
	"fmt"

	"github.com/acksell/tablekit/dynamodb/ddberrors"
	"github.com/acksell/tablekit/dynamodb/expr"
	"github.com/acksell/tablekit/dynamodb/table"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	dynamodbv2 "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type getOpts struct {
	eventuallyConsistent bool
	projection           []string
}

type GetOption func(*getOpts)

// WithEventualConsistency reads without strong consistency.
// Reads are strongly consistent by default.
func WithEventualConsistency() GetOption {
	return func(o *getOpts) {
		o.eventuallyConsistent = true
	}
}

// WithProjection limits the attributes returned.
func WithProjection(fields ...string) GetOption {
	return func(o *getOpts) {
		o.projection = append(o.projection, fields...)
	}
}

// Get reads one item by key. A missing item is not an error: Get returns nil.
func (c *Client) Get(ctx context.Context, key table.Key, opts ...GetOption) (Item, error) {
	var o getOpts
	for _, opt := range opts {
		opt(&o)
	}
	input := &dynamodbv2.GetItemInput{
		TableName:      ptr(c.table.Name()),
		Key:            c.table.KeyAttributes(key),
		ConsistentRead: ptr(!o.eventuallyConsistent),
	}
	if len(o.projection) > 0 {
		proj, err := c.projectionBuilder(o.projection)
		if err != nil {
			return nil, err
		}
		input.ProjectionExpression = proj.Projection()
		input.ExpressionAttributeNames = proj.Names()
	}

	log := c.logger("get")
	log.Debug().Str("partition", key.Partition).Str("sort", key.Sort).Msg("get item")

	res, err := c.awsddb.GetItem(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("get item failed: %w", err)
	}
	if len(res.Item) == 0 {
		return nil, nil
	}
	item, err := c.decrypt(ctx, res.Item)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ddberrors.ErrTransform, err)
	}
	return item, nil
}

// projectionBuilder renders a projection of fields. The encryption metadata
// field is always included so projected items can still be decrypted.
func (c *Client) projectionBuilder(fields []string) (expression.Expression, error) {
	proj := expression.NamesList(expression.Name(fields[0]))
	for _, f := range fields[1:] {
		proj = proj.AddNames(expression.Name(f))
	}
	if c.opts.encrypter != nil && c.table.MetadataField() != "" {
		proj = proj.AddNames(expression.Name(c.table.MetadataField()))
	}
	e, err := expression.NewBuilder().WithProjection(proj).Build()
	if err != nil {
		return expression.Expression{}, fmt.Errorf("failed to build projection: %w", err)
	}
	return e, nil
}

type putOpts struct {
	failIfExists bool
}

type PutOption func(*putOpts)

// FailIfExists rejects the put with *ddberrors.AlreadyExistsError when an
// item with the same key is stored.
func FailIfExists() PutOption {
	return func(o *putOpts) {
		o.failIfExists = true
	}
}

// Put creates an item of model from fields and writes it, replacing any item
// with the same key. It returns the item as created, before encryption.
func (c *Client) Put(ctx context.Context, model *table.Model, fields any, opts ...PutOption) (Item, error) {
	var o putOpts
	for _, opt := range opts {
		opt(&o)
	}
	item, err := model.Create(fields)
	if err != nil {
		return nil, err
	}
	key, err := c.table.KeyOf(item)
	if err != nil {
		return nil, err
	}
	stored, err := c.encrypt(ctx, item)
	if err != nil {
		return nil, err
	}

	input := &dynamodbv2.PutItemInput{
		TableName: ptr(c.table.Name()),
		Item:      stored,
	}
	if o.failIfExists {
		cond := expression.AttributeNotExists(expression.Name(c.table.PartitionKeyName()))
		e, err := expression.NewBuilder().WithCondition(cond).Build()
		if err != nil {
			return nil, fmt.Errorf("failed to build put condition: %w", err)
		}
		input.ConditionExpression = e.Condition()
		input.ExpressionAttributeNames = e.Names()
	}

	log := c.logger("put")
	log.Debug().Str("model", model.Tag()).Str("partition", key.Partition).Str("sort", key.Sort).Msg("put item")

	if _, err := c.awsddb.PutItem(ctx, input); err != nil {
		if o.failIfExists && isConditionFailed(err) {
			return nil, alreadyExists(key)
		}
		return nil, fmt.Errorf("put item failed: %w", err)
	}
	return item, nil
}

// Delete removes the item at key. Deleting a missing item succeeds.
func (c *Client) Delete(ctx context.Context, key table.Key) error {
	log := c.logger("delete")
	log.Debug().Str("partition", key.Partition).Str("sort", key.Sort).Msg("delete item")

	_, err := c.awsddb.DeleteItem(ctx, &dynamodbv2.DeleteItemInput{
		TableName: ptr(c.table.Name()),
		Key:       c.table.KeyAttributes(key),
	})
	if err != nil {
		return fmt.Errorf("delete item failed: %w", err)
	}
	return nil
}

// Update applies u to the existing item at key and returns the item as
// stored afterwards. A missing item yields *ddberrors.NotFoundError.
//
// Values written by an update are stored as given: they are not encrypted.
func (c *Client) Update(ctx context.Context, key table.Key, u *expr.Update) (Item, error) {
	built, err := u.KeyCondition(c.table.SortKeyName(), key.Sort).Build()
	if err != nil {
		return nil, err
	}
	input := &dynamodbv2.UpdateItemInput{
		TableName:                 ptr(c.table.Name()),
		Key:                       c.table.KeyAttributes(key),
		UpdateExpression:          ptr(built.Update),
		ConditionExpression:       ptr(built.Condition),
		ExpressionAttributeNames:  built.Names,
		ExpressionAttributeValues: built.Values,
		ReturnValues:              types.ReturnValueAllNew,
	}

	log := c.logger("update")
	log.Debug().Str("partition", key.Partition).Str("sort", key.Sort).Msg("update item")

	res, err := c.awsddb.UpdateItem(ctx, input)
	if err != nil {
		if isConditionFailed(err) {
			return nil, notFound(key)
		}
		return nil, fmt.Errorf("update item failed: %w", err)
	}
	item, err := c.decrypt(ctx, res.Attributes)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ddberrors.ErrTransform, err)
	}
	return item, nil
}
