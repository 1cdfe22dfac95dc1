package ddbstore

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/acksell/tablekit/dynamodb/ddbstore/expreval"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Scan reads every item of a table or index in key order. With
// TotalSegments set, items are split between segments by a hash of their
// partition key.
func (s *Store) Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	if params == nil {
		return nil, validationError("params is required")
	}

	enc, err := s.getEncoder(params.TableName, params.IndexName)
	if err != nil {
		return nil, err
	}

	segment, total := aws.ToInt32(params.Segment), aws.ToInt32(params.TotalSegments)
	if params.TotalSegments != nil {
		if total < 1 || total > 1000000 {
			return nil, validationError("TotalSegments must be between 1 and 1000000")
		}
		if params.Segment == nil || segment < 0 || segment >= total {
			return nil, validationError(fmt.Sprintf("Segment must be between 0 and %d", total-1))
		}
	} else if params.Segment != nil {
		return nil, validationError("Segment requires TotalSegments")
	}

	env := expreval.NewEnv(params.ExpressionAttributeNames, params.ExpressionAttributeValues)
	filter, err := parseFilter(params.FilterExpression, env)
	if err != nil {
		return nil, err
	}
	projection, err := parseProjection(params.ProjectionExpression, env)
	if err != nil {
		return nil, err
	}
	if err := checkUnused(env); err != nil {
		return nil, err
	}

	req := pageRequest{
		enc:        enc,
		prefix:     enc.tablePrefix(),
		start:      params.ExclusiveStartKey,
		limit:      int(aws.ToInt32(params.Limit)),
		filter:     filter,
		projection: projection,
	}
	if params.TotalSegments != nil {
		pkName := enc.keyDefs.PartitionKey.Name
		req.match = func(item map[string]types.AttributeValue) bool {
			return segmentOf(item[pkName], total) == segment
		}
	}

	res, err := s.readPage(req)
	if err != nil {
		return nil, err
	}

	s.log.Debug().
		Str("table", aws.ToString(params.TableName)).
		Str("index", aws.ToString(params.IndexName)).
		Int32("segment", segment).
		Int("count", len(res.items)).
		Int("scanned", res.scanned).
		Msg("scan")

	out := &dynamodb.ScanOutput{
		Items:            res.items,
		Count:            int32(len(res.items)),
		ScannedCount:     int32(res.scanned),
		LastEvaluatedKey: res.lastKey,
	}
	if params.Select == types.SelectCount {
		out.Items = nil
	}
	return out, nil
}

func segmentOf(partition types.AttributeValue, total int32) int32 {
	h := fnv.New32a()
	encoded, err := encodeKeyValue(partition, kindOfAttr(partition))
	if err == nil {
		h.Write(encoded)
	}
	return int32(h.Sum32() % uint32(total))
}
