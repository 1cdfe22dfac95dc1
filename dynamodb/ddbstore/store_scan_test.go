package ddbstore

import (
	"context"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Scan(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, singleTableDesign, noSortKeyTable)
	for i := 0; i < 20; i++ {
		put(t, store, singleTableDesign.Name, map[string]types.AttributeValue{
			"pk":  strAV(fmt.Sprintf("p%02d", i)),
			"sk":  strAV("s"),
			"odd": &types.AttributeValueMemberBOOL{Value: i%2 == 1},
		})
	}
	put(t, store, noSortKeyTable.Name, map[string]types.AttributeValue{"pk": strAV("other")})

	t.Run("whole table", func(t *testing.T) {
		out, err := store.Scan(ctx, &dynamodb.ScanInput{TableName: &singleTableDesign.Name})
		require.NoError(t, err)
		assert.Len(t, out.Items, 20)
		assert.Nil(t, out.LastEvaluatedKey)
	})

	t.Run("filter", func(t *testing.T) {
		out, err := store.Scan(ctx, &dynamodb.ScanInput{
			TableName:                 &singleTableDesign.Name,
			FilterExpression:          ptrStr("odd = :t"),
			ExpressionAttributeValues: map[string]types.AttributeValue{":t": &types.AttributeValueMemberBOOL{Value: true}},
		})
		require.NoError(t, err)
		assert.Len(t, out.Items, 10)
		assert.Equal(t, int32(20), out.ScannedCount)
	})

	t.Run("segments partition the table", func(t *testing.T) {
		seen := make(map[string]int)
		for seg := int32(0); seg < 3; seg++ {
			out, err := store.Scan(ctx, &dynamodb.ScanInput{
				TableName:     &singleTableDesign.Name,
				Segment:       aws.Int32(seg),
				TotalSegments: aws.Int32(3),
			})
			require.NoError(t, err)
			for _, pk := range sortKeys(out.Items, "pk") {
				seen[pk]++
			}
		}
		assert.Len(t, seen, 20)
		for pk, n := range seen {
			assert.Equal(t, 1, n, pk)
		}
	})

	t.Run("segment out of range", func(t *testing.T) {
		_, err := store.Scan(ctx, &dynamodb.ScanInput{
			TableName:     &singleTableDesign.Name,
			Segment:       aws.Int32(3),
			TotalSegments: aws.Int32(3),
		})
		require.Error(t, err)
	})

	t.Run("paginate", func(t *testing.T) {
		total := 0
		var start map[string]types.AttributeValue
		for pages := 0; ; pages++ {
			require.Less(t, pages, 10)
			out, err := store.Scan(ctx, &dynamodb.ScanInput{
				TableName:         &singleTableDesign.Name,
				Limit:             aws.Int32(7),
				ExclusiveStartKey: start,
			})
			require.NoError(t, err)
			total += len(out.Items)
			if out.LastEvaluatedKey == nil {
				break
			}
			start = out.LastEvaluatedKey
		}
		assert.Equal(t, 20, total)
	})
}
