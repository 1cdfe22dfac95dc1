package ddbsdk

import (
	"context"
	"fmt"

	"github.com/acksell/tablekit/dynamodb/expr"

	dynamodbv2 "github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// Scan reads the whole table, or one segment of it.
type Scan struct {
	client *Client

	tags    []string
	segment *int32
	total   *int32

	opts readOptions
}

// Scan starts a table scan. Items of every registered model are expected;
// narrow with Tags.
func (c *Client) Scan() *Scan {
	return &Scan{
		client: c,
		tags:   c.table.Tags(),
		opts:   readOptions{pageSize: defaultPageSize},
	}
}

// Tags narrows the models the scan returns.
func (s *Scan) Tags(tags ...string) *Scan {
	s.tags = uniqueTags(tags)
	return s
}

// Segment reads only segment id out of total parallel segments.
// Both values are passed to the store unchecked.
func (s *Scan) Segment(id, total int32) *Scan {
	s.segment = ptr(id)
	s.total = ptr(total)
	return s
}

func (s *Scan) Filter(cond *expr.Condition) *Scan {
	s.opts.filter = cond
	return s
}

func (s *Scan) PageSize(n int32) *Scan {
	s.opts.pageSize = n
	return s
}

func (s *Scan) EventuallyConsistent() *Scan {
	s.opts.eventuallyConsistent = true
	return s
}

func (s *Scan) Project(fields ...string) *Scan {
	s.opts.projection = append(s.opts.projection, fields...)
	return s
}

func (s *Scan) StartFrom(cursor string) *Scan {
	s.opts.cursor = cursor
	return s
}

// Iterator fixes the request and returns an iterator over its pages.
func (s *Scan) Iterator() (*Iterator, error) {
	input, err := s.build()
	if err != nil {
		return nil, err
	}
	start, err := DecodeCursor(s.opts.cursor)
	if err != nil {
		return nil, err
	}
	c := s.client
	log := c.logger("scan")
	fetch := func(ctx context.Context, start Item) ([]Item, Item, error) {
		in := *input
		in.ExclusiveStartKey = start
		res, err := c.awsddb.Scan(ctx, &in)
		if err != nil {
			return nil, nil, fmt.Errorf("scan failed: %w", err)
		}
		log.Debug().
			Int("count", len(res.Items)).
			Bool("more", len(res.LastEvaluatedKey) > 0).
			Msg("scan page")
		return res.Items, res.LastEvaluatedKey, nil
	}
	return newIterator(c, fetch, start), nil
}

// Exec reads every page and groups the items by tag.
func (s *Scan) Exec(ctx context.Context) (Groups, error) {
	it, err := s.Iterator()
	if err != nil {
		return nil, err
	}
	items, err := it.drain(ctx)
	if err != nil {
		return nil, err
	}
	return GroupByTag(items, s.tags, s.client.table.TypeField())
}

func (s *Scan) build() (*dynamodbv2.ScanInput, error) {
	c := s.client
	input := &dynamodbv2.ScanInput{
		TableName:      ptr(c.table.Name()),
		ConsistentRead: ptr(!s.opts.eventuallyConsistent),
		Segment:        s.segment,
		TotalSegments:  s.total,
	}
	if s.opts.pageSize > 0 {
		input.Limit = ptr(s.opts.pageSize)
	}

	attrs := expr.NewAttributes()
	if s.opts.filter != nil && !s.opts.filter.IsEmpty() {
		filter, err := s.opts.filter.Build()
		if err != nil {
			return nil, fmt.Errorf("failed to build filter: %w", err)
		}
		attrs = s.opts.filter.Attributes().Clone()
		input.FilterExpression = ptr(filter)
	}
	if proj := c.projection(attrs, s.opts.projection); proj != "" {
		input.ProjectionExpression = ptr(proj)
	}
	input.ExpressionAttributeNames = attrs.Names()
	input.ExpressionAttributeValues = attrs.Values()
	return input, nil
}
