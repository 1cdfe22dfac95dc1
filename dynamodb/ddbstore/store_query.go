package ddbstore

import (
	"context"
	"fmt"

	"github.com/acksell/tablekit/dynamodb/ddbstore/expreval"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Query retrieves items matching a key condition expression.
func (s *Store) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	if params == nil {
		return nil, validationError("params is required")
	}
	if params.KeyConditionExpression == nil || *params.KeyConditionExpression == "" {
		return nil, validationError("KeyConditionExpression is required")
	}

	enc, err := s.getEncoder(params.TableName, params.IndexName)
	if err != nil {
		return nil, err
	}
	if enc.isIndex() && aws.ToBool(params.ConsistentRead) {
		return nil, validationError("consistent reads are not supported on global secondary indexes")
	}

	env := expreval.NewEnv(params.ExpressionAttributeNames, params.ExpressionAttributeValues)
	keyCond, err := expreval.ParseKeyCondition(*params.KeyConditionExpression, env,
		enc.keyDefs.PartitionKey.Name, enc.keyDefs.SortKey.Name)
	if err != nil {
		return nil, validationError(fmt.Sprintf("invalid KeyConditionExpression: %v", err))
	}
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

	prefix, err := enc.partitionPrefix(keyCond.Partition)
	if err != nil {
		return nil, validationError(fmt.Sprintf("one or more parameter values were invalid: %v", err))
	}

	skName := enc.keyDefs.SortKey.Name
	res, err := s.readPage(pageRequest{
		enc:     enc,
		prefix:  prefix,
		start:   params.ExclusiveStartKey,
		reverse: params.ScanIndexForward != nil && !*params.ScanIndexForward,
		limit:   int(aws.ToInt32(params.Limit)),
		match: func(item map[string]types.AttributeValue) bool {
			if keyCond.Sort == nil {
				return true
			}
			sk, ok := item[skName]
			return ok && keyCond.Sort.Match(sk)
		},
		filter:     filter,
		projection: projection,
	})
	if err != nil {
		return nil, err
	}

	s.log.Debug().
		Str("table", aws.ToString(params.TableName)).
		Str("index", aws.ToString(params.IndexName)).
		Int("count", len(res.items)).
		Int("scanned", res.scanned).
		Bool("more", res.lastKey != nil).
		Msg("query")

	out := &dynamodb.QueryOutput{
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

func parseFilter(expr *string, env *expreval.Env) (expreval.Condition, error) {
	if expr == nil || *expr == "" {
		return nil, nil
	}
	c, err := expreval.ParseCondition(*expr, env)
	if err != nil {
		return nil, validationError(fmt.Sprintf("invalid FilterExpression: %v", err))
	}
	return c, nil
}
