package ddbstore

import (
	"context"
	"testing"

	"github.com/acksell/tablekit/dynamodb/table"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"
)

// Test table definitions
var singleTableDesign = table.TableDefinition{
	Name: "test-table",
	KeyDefinitions: table.PrimaryKeyDefinition{
		PartitionKey: table.KeyDef{Name: "pk", Kind: table.KeyKindS},
		SortKey:      table.KeyDef{Name: "sk", Kind: table.KeyKindS},
	},
	GSIs: []table.GSIDefinition{
		{
			Name: "gsi1",
			KeyDefinitions: table.PrimaryKeyDefinition{
				PartitionKey: table.KeyDef{Name: "gsi1pk", Kind: table.KeyKindS},
				SortKey:      table.KeyDef{Name: "gsi1sk", Kind: table.KeyKindS},
			},
		},
	},
}

var numericSortKeyTable = table.TableDefinition{
	Name: "numeric-sk-table",
	KeyDefinitions: table.PrimaryKeyDefinition{
		PartitionKey: table.KeyDef{Name: "pk", Kind: table.KeyKindS},
		SortKey:      table.KeyDef{Name: "sk", Kind: table.KeyKindN},
	},
}

var noSortKeyTable = table.TableDefinition{
	Name: "no-sk-table",
	KeyDefinitions: table.PrimaryKeyDefinition{
		PartitionKey: table.KeyDef{Name: "pk", Kind: table.KeyKindS},
	},
}

func newTestStore(t *testing.T, defs ...table.TableDefinition) *Store {
	return newTestStoreWith(t, StoreOptions{InMemory: true}, defs...)
}

func newTestStoreWith(t *testing.T, opts StoreOptions, defs ...table.TableDefinition) *Store {
	store, err := New(opts, defs...)
	require.NoError(t, err)
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

func strAV(s string) types.AttributeValue { return &types.AttributeValueMemberS{Value: s} }
func numAV(n string) types.AttributeValue { return &types.AttributeValueMemberN{Value: n} }

func put(t *testing.T, store *Store, tableName string, items ...map[string]types.AttributeValue) {
	t.Helper()
	for _, item := range items {
		_, err := store.PutItem(context.Background(), &dynamodb.PutItemInput{
			TableName: &tableName,
			Item:      item,
		})
		require.NoError(t, err)
	}
}
