package ddbstore

import (
	"context"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keyOf(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"pk": strAV(pk), "sk": strAV(sk)}
}

func TestStore_BatchGetItem(t *testing.T) {
	ctx := context.Background()

	t.Run("found and missing", func(t *testing.T) {
		store := newTestStore(t, singleTableDesign)
		put(t, store, singleTableDesign.Name, keyOf("a", "1"), keyOf("b", "1"))

		out, err := store.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{
			RequestItems: map[string]types.KeysAndAttributes{
				singleTableDesign.Name: {Keys: []map[string]types.AttributeValue{keyOf("a", "1"), keyOf("x", "1"), keyOf("b", "1")}},
			},
		})
		require.NoError(t, err)
		assert.Len(t, out.Responses[singleTableDesign.Name], 2)
		assert.Empty(t, out.UnprocessedKeys)
	})

	t.Run("limit leaves unprocessed keys", func(t *testing.T) {
		store := newTestStoreWith(t, StoreOptions{InMemory: true, BatchGetLimit: 2}, singleTableDesign)
		keys := []map[string]types.AttributeValue{keyOf("a", "1"), keyOf("b", "1"), keyOf("c", "1")}
		put(t, store, singleTableDesign.Name, keys...)

		out, err := store.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{
			RequestItems: map[string]types.KeysAndAttributes{singleTableDesign.Name: {Keys: keys}},
		})
		require.NoError(t, err)
		assert.Len(t, out.Responses[singleTableDesign.Name], 2)
		assert.Equal(t, keys[2:], out.UnprocessedKeys[singleTableDesign.Name].Keys)
	})

	t.Run("more than 100 keys rejected", func(t *testing.T) {
		store := newTestStore(t, singleTableDesign)
		var keys []map[string]types.AttributeValue
		for i := 0; i < 101; i++ {
			keys = append(keys, keyOf(fmt.Sprint(i), "1"))
		}
		_, err := store.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{
			RequestItems: map[string]types.KeysAndAttributes{singleTableDesign.Name: {Keys: keys}},
		})
		require.Error(t, err)
	})
}

func TestStore_BatchWriteItem(t *testing.T) {
	ctx := context.Background()

	t.Run("puts and deletes", func(t *testing.T) {
		store := newTestStore(t, singleTableDesign)
		put(t, store, singleTableDesign.Name, keyOf("old", "1"))

		out, err := store.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{
				singleTableDesign.Name: {
					{PutRequest: &types.PutRequest{Item: keyOf("new", "1")}},
					{DeleteRequest: &types.DeleteRequest{Key: keyOf("old", "1")}},
				},
			},
		})
		require.NoError(t, err)
		assert.Empty(t, out.UnprocessedItems)

		scan, err := store.Scan(ctx, &dynamodb.ScanInput{TableName: &singleTableDesign.Name})
		require.NoError(t, err)
		assert.Equal(t, []string{"new"}, sortKeys(scan.Items, "pk"))
	})

	t.Run("limit leaves unprocessed items", func(t *testing.T) {
		store := newTestStoreWith(t, StoreOptions{InMemory: true, BatchWriteLimit: 1}, singleTableDesign)
		out, err := store.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{
				singleTableDesign.Name: {
					{PutRequest: &types.PutRequest{Item: keyOf("a", "1")}},
					{PutRequest: &types.PutRequest{Item: keyOf("b", "1")}},
				},
			},
		})
		require.NoError(t, err)
		require.Len(t, out.UnprocessedItems[singleTableDesign.Name], 1)
		assert.Equal(t, keyOf("b", "1"), out.UnprocessedItems[singleTableDesign.Name][0].PutRequest.Item)
	})

	t.Run("more than 25 requests rejected", func(t *testing.T) {
		store := newTestStore(t, singleTableDesign)
		var reqs []types.WriteRequest
		for i := 0; i < 26; i++ {
			reqs = append(reqs, types.WriteRequest{PutRequest: &types.PutRequest{Item: keyOf(fmt.Sprint(i), "1")}})
		}
		_, err := store.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{singleTableDesign.Name: reqs},
		})
		require.Error(t, err)
	})
}
