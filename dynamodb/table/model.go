package table

import (
	"fmt"

	"github.com/acksell/tablekit/dynamodb/ddberrors"
	"github.com/acksell/tablekit/dynamodb/keys"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Key addresses a single item. It is comparable, so it can be used as a map key
// and compared against keys reported back by the store.
type Key struct {
	Tag       string
	Partition string
	Sort      string
}

// PartitionQuery addresses every item under a partition key whose sort key
// begins with SortPrefix. Tags lists the models that may be returned.
type PartitionQuery struct {
	Partition  string
	SortPrefix string
	Tags       []string
}

// Model binds a type tag to its partition and sort key recipes.
type Model struct {
	table  *Table
	tag    string
	pk     keys.Recipe
	sk     keys.Recipe
	fields map[string]struct{}
}

// NewModel registers a model. fields declares the attributes the model exposes,
// in addition to those named in its key recipes; GSI registration uses them.
func (t *Table) NewModel(tag string, partition, sort keys.Recipe, fields ...string) (*Model, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkOpen(); err != nil {
		return nil, err
	}
	if tag == "" {
		return nil, ddberrors.NewValidationError("tag", "model tag is required")
	}
	if _, dup := t.models[tag]; dup {
		return nil, fmt.Errorf("model %q already registered on table %q", tag, t.name)
	}
	m := &Model{
		table:  t,
		tag:    tag,
		pk:     partition,
		sk:     sort,
		fields: make(map[string]struct{}),
	}
	for _, f := range partition.Fields {
		m.fields[f] = struct{}{}
	}
	for _, f := range sort.Fields {
		m.fields[f] = struct{}{}
	}
	for _, f := range fields {
		m.fields[f] = struct{}{}
	}
	t.models[tag] = m
	t.order = append(t.order, tag)
	return m, nil
}

func (m *Model) Tag() string { return m.tag }
func (m *Model) Table() *Table { return m.table }
func (m *Model) PartitionRecipe() keys.Recipe { return m.pk }
func (m *Model) SortRecipe() keys.Recipe { return m.sk }

// HasField reports whether the model exposes field.
func (m *Model) HasField(field string) bool {
	_, ok := m.fields[field]
	return ok
}

// Key builds the full primary key. Every field of both recipes is required.
func (m *Model) Key(v keys.Values) (Key, error) {
	if err := keys.Require(m.pk, v); err != nil {
		return Key{}, fmt.Errorf("model %q partition key: %w", m.tag, err)
	}
	if err := keys.Require(m.sk, v); err != nil {
		return Key{}, fmt.Errorf("model %q sort key: %w", m.tag, err)
	}
	d := m.table.delimiter
	return Key{
		Tag:       m.tag,
		Partition: keys.Build(d, m.pk, v),
		Sort:      keys.Build(d, m.sk, v),
	}, nil
}

// KeyFor builds the key from a struct or map holding the key fields.
func (m *Model) KeyFor(entity any) (Key, error) {
	item, err := marshalFields(entity)
	if err != nil {
		return Key{}, err
	}
	return m.Key(keys.ValuesFromItem(item))
}

// PartitionKey builds a query for this model's items under one partition.
// The partition recipe must be complete; the sort recipe is built up to the
// first missing field and used as a begins_with prefix. A cut-short prefix
// ends in the delimiter, so album "1" does not match album "10".
func (m *Model) PartitionKey(v keys.Values) (PartitionQuery, error) {
	if err := keys.Require(m.pk, v); err != nil {
		return PartitionQuery{}, fmt.Errorf("model %q partition key: %w", m.tag, err)
	}
	d := m.table.delimiter
	prefix := keys.Build(d, m.sk, v)
	if prefix != "" && keys.Complete(m.sk, v) < len(m.sk.Fields) {
		prefix += d
	}
	return PartitionQuery{
		Partition:  keys.Build(d, m.pk, v),
		SortPrefix: prefix,
		Tags:       []string{m.tag},
	}, nil
}

// Create returns a new item made of fields plus the type tag and both key columns.
// fields may be a struct, a map, or an already marshalled attribute map; it is never modified.
func (m *Model) Create(fields any) (map[string]types.AttributeValue, error) {
	src, err := marshalFields(fields)
	if err != nil {
		return nil, err
	}
	item := make(map[string]types.AttributeValue, len(src)+3)
	for k, v := range src {
		item[k] = v
	}
	key, err := m.Key(keys.ValuesFromItem(item))
	if err != nil {
		return nil, err
	}
	item[m.table.partitionKey] = &types.AttributeValueMemberS{Value: key.Partition}
	item[m.table.sortKey] = &types.AttributeValueMemberS{Value: key.Sort}
	item[m.table.typeField] = &types.AttributeValueMemberS{Value: m.tag}
	return item, nil
}

func marshalFields(fields any) (map[string]types.AttributeValue, error) {
	switch f := fields.(type) {
	case nil:
		return nil, ddberrors.NewValidationError("", "fields are required")
	case map[string]types.AttributeValue:
		return f, nil
	default:
		item, err := attributevalue.MarshalMap(fields)
		if err != nil {
			return nil, fmt.Errorf("marshal fields: %w", err)
		}
		return item, nil
	}
}
