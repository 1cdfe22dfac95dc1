package table

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// TableDefinition is the physical layout of a table: its key columns and GSIs.
// The local store addresses items with it.
type TableDefinition struct {
	Name           string
	KeyDefinitions PrimaryKeyDefinition
	GSIs           []GSIDefinition
}

// GSIDefinition represents a Global Secondary Index definition.
type GSIDefinition struct {
	Name           string
	KeyDefinitions PrimaryKeyDefinition
}

type PrimaryKeyDefinition struct {
	PartitionKey KeyDef
	SortKey      KeyDef // zero Name means the table has no sort key
}

type KeyDef struct {
	Name string
	Kind KeyKind
}

type KeyKind string

const (
	KeyKindS KeyKind = "S"
	KeyKindN KeyKind = "N"
	KeyKindB KeyKind = "B"
)

func (k KeyKind) scalarType() types.ScalarAttributeType {
	switch k {
	case KeyKindN:
		return types.ScalarAttributeTypeN
	case KeyKindB:
		return types.ScalarAttributeTypeB
	default:
		return types.ScalarAttributeTypeS
	}
}

// KindOf maps a scalar attribute type from a table description back to a KeyKind.
func KindOf(t types.ScalarAttributeType) KeyKind {
	switch t {
	case types.ScalarAttributeTypeN:
		return KeyKindN
	case types.ScalarAttributeTypeB:
		return KeyKindB
	default:
		return KeyKindS
	}
}

// PrimaryKeyValues holds raw key values: string for S and N, []byte for B.
type PrimaryKeyValues struct {
	PartitionKey any
	SortKey      any
}

type PrimaryKey struct {
	Definition PrimaryKeyDefinition
	Values     PrimaryKeyValues
}

// ExtractPrimaryKey extracts the primary key values from a document.
func (g GSIDefinition) ExtractPrimaryKey(doc map[string]types.AttributeValue) (PrimaryKey, error) {
	return g.KeyDefinitions.ExtractPrimaryKey(doc)
}

func (t TableDefinition) ExtractPrimaryKey(doc map[string]types.AttributeValue) (PrimaryKey, error) {
	return t.KeyDefinitions.ExtractPrimaryKey(doc)
}

func (k PrimaryKeyDefinition) ExtractPrimaryKey(doc map[string]types.AttributeValue) (PrimaryKey, error) {
	part, ok := doc[k.PartitionKey.Name]
	if !ok {
		return PrimaryKey{}, fmt.Errorf("partition key %q not found", k.PartitionKey.Name)
	}
	if err := attributeMatchesDefinition(k.PartitionKey.Kind, part); err != nil {
		return PrimaryKey{}, fmt.Errorf("document key %q kind does not match definition: %w", k.PartitionKey.Name, err)
	}
	pk := PrimaryKey{
		Definition: k,
		Values: PrimaryKeyValues{
			PartitionKey: keyValueFromAV(part),
		},
	}
	if k.SortKey.Name == "" {
		return pk, nil
	}
	sort, ok := doc[k.SortKey.Name]
	if !ok {
		return PrimaryKey{}, fmt.Errorf("sort key %q not found on document", k.SortKey.Name)
	}
	if err := attributeMatchesDefinition(k.SortKey.Kind, sort); err != nil {
		return PrimaryKey{}, fmt.Errorf("sort key %q kind does not match definition: %w", k.SortKey.Name, err)
	}
	pk.Values.SortKey = keyValueFromAV(sort)
	return pk, nil
}

// KeyAttributes keeps only the key columns of doc.
func (k PrimaryKeyDefinition) KeyAttributes(doc map[string]types.AttributeValue) map[string]types.AttributeValue {
	out := make(map[string]types.AttributeValue, 2)
	if v, ok := doc[k.PartitionKey.Name]; ok {
		out[k.PartitionKey.Name] = v
	}
	if k.SortKey.Name != "" {
		if v, ok := doc[k.SortKey.Name]; ok {
			out[k.SortKey.Name] = v
		}
	}
	return out
}

// DDB renders the key as an attribute map.
func (k PrimaryKey) DDB() (map[string]types.AttributeValue, error) {
	pk, err := toKeyAV(k.Definition.PartitionKey.Kind, k.Values.PartitionKey)
	if err != nil {
		return nil, fmt.Errorf("partition key %q: %w", k.Definition.PartitionKey.Name, err)
	}
	out := map[string]types.AttributeValue{k.Definition.PartitionKey.Name: pk}
	if k.Definition.SortKey.Name == "" {
		return out, nil
	}
	if k.Values.SortKey == nil {
		return nil, fmt.Errorf("sort key %q is required but got nil", k.Definition.SortKey.Name)
	}
	sk, err := toKeyAV(k.Definition.SortKey.Kind, k.Values.SortKey)
	if err != nil {
		return nil, fmt.Errorf("sort key %q: %w", k.Definition.SortKey.Name, err)
	}
	out[k.Definition.SortKey.Name] = sk
	return out, nil
}

func toKeyAV(kind KeyKind, v any) (types.AttributeValue, error) {
	switch kind {
	case KeyKindS, KeyKindN:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected string value for kind %s, got %T", kind, v)
		}
		if kind == KeyKindN {
			return &types.AttributeValueMemberN{Value: s}, nil
		}
		return &types.AttributeValueMemberS{Value: s}, nil
	case KeyKindB:
		b, ok := v.([]byte)
		if !ok {
			return nil, fmt.Errorf("expected []byte value for kind B, got %T", v)
		}
		return &types.AttributeValueMemberB{Value: b}, nil
	default:
		return nil, fmt.Errorf("unsupported key kind: %q", kind)
	}
}

func attributeMatchesDefinition(want KeyKind, v types.AttributeValue) error {
	var got KeyKind
	switch v.(type) {
	case *types.AttributeValueMemberS:
		got = KeyKindS
	case *types.AttributeValueMemberN:
		got = KeyKindN
	case *types.AttributeValueMemberB:
		got = KeyKindB
	default:
		return fmt.Errorf("unexpected key attribute type %T", v)
	}
	if got != want {
		return fmt.Errorf("got KeyKind %q want %q", got, want)
	}
	return nil
}

func keyValueFromAV(av types.AttributeValue) any {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return v.Value
	case *types.AttributeValueMemberN:
		return v.Value
	case *types.AttributeValueMemberB:
		return v.Value
	default:
		return nil
	}
}
