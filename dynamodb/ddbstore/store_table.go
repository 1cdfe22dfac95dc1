package ddbstore

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/acksell/tablekit/dynamodb/table"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dgraph-io/badger/v4"
	"gopkg.in/yaml.v3"
)

// CreateTable registers a table and persists its definition. Only key
// schemas, attribute definitions and GSI key schemas are honoured.
func (s *Store) CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	if params == nil || params.TableName == nil || *params.TableName == "" {
		return nil, validationError("table name is required")
	}
	def, err := definitionFromInput(params)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tables[def.Name]; exists {
		return nil, &types.ResourceInUseException{Message: ptrStr(fmt.Sprintf("Table already exists: %s", def.Name))}
	}

	data, err := yaml.Marshal(def)
	if err != nil {
		return nil, fmt.Errorf("encode table definition: %w", err)
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(schemaKey(def.Name), data)
	}); err != nil {
		return nil, fmt.Errorf("persist table definition: %w", err)
	}
	s.tables[def.Name] = newTableSchema(def)
	s.log.Debug().Str("table", def.Name).Int("gsis", len(def.GSIs)).Msg("table created")

	return &dynamodb.CreateTableOutput{TableDescription: describe(def)}, nil
}

// DescribeTable reports the key schema of a registered table.
func (s *Store) DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	if params == nil {
		return nil, validationError("params is required")
	}
	schema, err := s.getTable(params.TableName)
	if err != nil {
		return nil, err
	}
	return &dynamodb.DescribeTableOutput{Table: describe(schema.definition)}, nil
}

// DeleteTable drops a table with all its items and index entries.
func (s *Store) DeleteTable(ctx context.Context, params *dynamodb.DeleteTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteTableOutput, error) {
	if params == nil {
		return nil, validationError("params is required")
	}
	schema, err := s.getTable(params.TableName)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prefixes := [][]byte{schema.encoder().tablePrefix()}
	for _, gsi := range schema.gsis {
		prefixes = append(prefixes, gsi.encoder().tablePrefix())
	}
	if err := s.db.DropPrefix(prefixes...); err != nil {
		return nil, fmt.Errorf("drop table data: %w", err)
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(schemaKey(schema.definition.Name))
	}); err != nil {
		return nil, fmt.Errorf("delete table definition: %w", err)
	}
	delete(s.tables, schema.definition.Name)
	s.log.Debug().Str("table", schema.definition.Name).Msg("table deleted")

	return &dynamodb.DeleteTableOutput{TableDescription: describe(schema.definition)}, nil
}

func (s *Store) loadSchemas() ([]table.TableDefinition, error) {
	var defs []table.TableDefinition
	prefix := append([]byte(schemaPrefix), keySeparator)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var def table.TableDefinition
				if err := yaml.NewDecoder(bytes.NewReader(val)).Decode(&def); err != nil {
					return err
				}
				defs = append(defs, def)
				return nil
			})
			if err != nil {
				return fmt.Errorf("decode table definition %q: %w", it.Item().Key(), err)
			}
		}
		return nil
	})
	return defs, err
}

func definitionFromInput(in *dynamodb.CreateTableInput) (table.TableDefinition, error) {
	kinds := make(map[string]table.KeyKind, len(in.AttributeDefinitions))
	for _, ad := range in.AttributeDefinitions {
		if ad.AttributeName == nil {
			return table.TableDefinition{}, validationError("attribute definition without a name")
		}
		kinds[*ad.AttributeName] = table.KindOf(ad.AttributeType)
	}

	def := table.TableDefinition{Name: *in.TableName}
	keyDefs, err := keySchema(in.KeySchema, kinds)
	if err != nil {
		return def, err
	}
	def.KeyDefinitions = keyDefs

	for _, g := range in.GlobalSecondaryIndexes {
		if g.IndexName == nil {
			return def, validationError("global secondary index without a name")
		}
		gk, err := keySchema(g.KeySchema, kinds)
		if err != nil {
			return def, fmt.Errorf("index %s: %w", *g.IndexName, err)
		}
		def.GSIs = append(def.GSIs, table.GSIDefinition{Name: *g.IndexName, KeyDefinitions: gk})
	}
	return def, nil
}

func keySchema(elems []types.KeySchemaElement, kinds map[string]table.KeyKind) (table.PrimaryKeyDefinition, error) {
	var out table.PrimaryKeyDefinition
	for _, e := range elems {
		if e.AttributeName == nil {
			return out, validationError("key schema element without a name")
		}
		kind, ok := kinds[*e.AttributeName]
		if !ok {
			return out, validationError(fmt.Sprintf("no attribute definition for key attribute %s", *e.AttributeName))
		}
		kd := table.KeyDef{Name: *e.AttributeName, Kind: kind}
		switch e.KeyType {
		case types.KeyTypeHash:
			out.PartitionKey = kd
		case types.KeyTypeRange:
			out.SortKey = kd
		}
	}
	if out.PartitionKey.Name == "" {
		return out, validationError("key schema must contain a HASH key")
	}
	return out, nil
}

func describe(def table.TableDefinition) *types.TableDescription {
	attrs := make(map[string]types.ScalarAttributeType)
	keySchema := func(k table.PrimaryKeyDefinition) []types.KeySchemaElement {
		out := []types.KeySchemaElement{{AttributeName: ptrStr(k.PartitionKey.Name), KeyType: types.KeyTypeHash}}
		attrs[k.PartitionKey.Name] = types.ScalarAttributeType(k.PartitionKey.Kind)
		if k.SortKey.Name != "" {
			out = append(out, types.KeySchemaElement{AttributeName: ptrStr(k.SortKey.Name), KeyType: types.KeyTypeRange})
			attrs[k.SortKey.Name] = types.ScalarAttributeType(k.SortKey.Kind)
		}
		return out
	}

	desc := &types.TableDescription{
		TableName:        ptrStr(def.Name),
		TableStatus:      types.TableStatusActive,
		KeySchema:        keySchema(def.KeyDefinitions),
		CreationDateTime: ptrTime(time.Unix(0, 0).UTC()),
	}
	for _, g := range def.GSIs {
		desc.GlobalSecondaryIndexes = append(desc.GlobalSecondaryIndexes, types.GlobalSecondaryIndexDescription{
			IndexName:   ptrStr(g.Name),
			IndexStatus: types.IndexStatusActive,
			KeySchema:   keySchema(g.KeyDefinitions),
			Projection:  &types.Projection{ProjectionType: types.ProjectionTypeAll},
		})
	}
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		desc.AttributeDefinitions = append(desc.AttributeDefinitions, types.AttributeDefinition{
			AttributeName: ptrStr(name),
			AttributeType: attrs[name],
		})
	}
	return desc
}

func ptrTime(t time.Time) *time.Time { return &t }
