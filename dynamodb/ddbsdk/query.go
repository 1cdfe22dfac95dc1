package ddbsdk

import (
	"context"
	"fmt"
	"strings"

	"github.com/acksell/tablekit/dynamodb/expr"
	"github.com/acksell/tablekit/dynamodb/table"

	dynamodbv2 "github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// Query reads the items of one partition, of the table or of a GSI.
//
// Configure with method chaining, then call Exec for every page or Iterator
// to page manually:
//
//	groups, err := client.Query(pq).Filter(cond).PageSize(50).Exec(ctx)
type Query struct {
	client *Client

	index     *table.GSI
	partition any
	prefix    string
	tags      []string

	opts readOptions
}

type readOptions struct {
	// default to consistent reads
	// because if you don't know what you're doing you may introduce race conditions.
	eventuallyConsistent bool
	pageSize             int32
	descending           bool
	filter               *expr.Condition
	projection           []string
	cursor               string
}

// Query starts a query on a table partition.
func (c *Client) Query(pq table.PartitionQuery) *Query {
	return &Query{
		client:    c,
		partition: pq.Partition,
		prefix:    pq.SortPrefix,
		tags:      uniqueTags(pq.Tags),
		opts:      readOptions{pageSize: defaultPageSize},
	}
}

// QueryIndex starts a query on a GSI partition. GSI reads are always
// eventually consistent.
func (c *Client) QueryIndex(iq table.IndexQuery) *Query {
	return &Query{
		client:    c,
		index:     iq.Index,
		partition: iq.Value,
		tags:      uniqueTags(iq.Tags),
		opts:      readOptions{pageSize: defaultPageSize, eventuallyConsistent: true},
	}
}

// Filter drops items not matching cond after they are read.
func (q *Query) Filter(cond *expr.Condition) *Query {
	q.opts.filter = cond
	return q
}

// PageSize sets the number of items evaluated per request.
func (q *Query) PageSize(n int32) *Query {
	q.opts.pageSize = n
	return q
}

// Reverse reads the partition in descending sort key order.
func (q *Query) Reverse() *Query {
	q.opts.descending = true
	return q
}

func (q *Query) EventuallyConsistent() *Query {
	q.opts.eventuallyConsistent = true
	return q
}

// Project limits the attributes returned.
func (q *Query) Project(fields ...string) *Query {
	q.opts.projection = append(q.opts.projection, fields...)
	return q
}

// StartFrom resumes after the page that returned cursor.
func (q *Query) StartFrom(cursor string) *Query {
	q.opts.cursor = cursor
	return q
}

// Iterator fixes the request and returns an iterator over its pages.
func (q *Query) Iterator() (*Iterator, error) {
	input, err := q.build()
	if err != nil {
		return nil, err
	}
	start, err := DecodeCursor(q.opts.cursor)
	if err != nil {
		return nil, err
	}
	c := q.client
	log := c.logger("query")
	fetch := func(ctx context.Context, start Item) ([]Item, Item, error) {
		in := *input
		in.ExclusiveStartKey = start
		res, err := c.awsddb.Query(ctx, &in)
		if err != nil {
			return nil, nil, fmt.Errorf("query failed: %w", err)
		}
		log.Debug().
			Str("index", deref(in.IndexName)).
			Int("count", len(res.Items)).
			Bool("more", len(res.LastEvaluatedKey) > 0).
			Msg("query page")
		return res.Items, res.LastEvaluatedKey, nil
	}
	return newIterator(c, fetch, start), nil
}

// Exec reads every page and groups the items by tag. When items failed to
// decrypt, the error wraps ddberrors.ErrTransform and the groups are nil.
func (q *Query) Exec(ctx context.Context) (Groups, error) {
	it, err := q.Iterator()
	if err != nil {
		return nil, err
	}
	items, err := it.drain(ctx)
	if err != nil {
		return nil, err
	}
	return GroupByTag(items, q.tags, q.client.table.TypeField())
}

func (q *Query) build() (*dynamodbv2.QueryInput, error) {
	c := q.client
	attrs := expr.NewAttributes()
	var filter string
	if q.opts.filter != nil && !q.opts.filter.IsEmpty() {
		var err error
		filter, err = q.opts.filter.Build()
		if err != nil {
			return nil, fmt.Errorf("failed to build filter: %w", err)
		}
		attrs = q.opts.filter.Attributes().Clone()
	}

	input := &dynamodbv2.QueryInput{
		TableName:        ptr(c.table.Name()),
		ConsistentRead:   ptr(!q.opts.eventuallyConsistent),
		ScanIndexForward: ptr(!q.opts.descending),
	}
	if q.opts.pageSize > 0 {
		input.Limit = ptr(q.opts.pageSize)
	}

	var keyCond string
	var err error
	if q.index != nil {
		input.IndexName = ptr(q.index.Name())
		input.ConsistentRead = nil
		keyCond, err = expr.KeyCondition(attrs, q.index.PartitionKey().Name, q.partition, "", "")
	} else {
		keyCond, err = expr.KeyCondition(attrs, c.table.PartitionKeyName(), q.partition, c.table.SortKeyName(), q.prefix)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build key condition: %w", err)
	}
	input.KeyConditionExpression = ptr(keyCond)
	if filter != "" {
		input.FilterExpression = ptr(filter)
	}
	if proj := c.projection(attrs, q.opts.projection); proj != "" {
		input.ProjectionExpression = ptr(proj)
	}
	input.ExpressionAttributeNames = attrs.Names()
	input.ExpressionAttributeValues = attrs.Values()
	return input, nil
}

// projection renders fields through attrs so the placeholders share one
// namespace with the other expressions of the request. The type tag and
// encryption metadata are always included.
func (c *Client) projection(attrs *expr.Attributes, fields []string) string {
	if len(fields) == 0 {
		return ""
	}
	fields = append(fields[:len(fields):len(fields)], c.table.TypeField())
	if c.opts.encrypter != nil && c.table.MetadataField() != "" {
		fields = append(fields, c.table.MetadataField())
	}
	seen := make(map[string]struct{}, len(fields))
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		names = append(names, attrs.Name(f))
	}
	return strings.Join(names, ", ")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
