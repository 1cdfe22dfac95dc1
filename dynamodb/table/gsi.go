package table

import (
	"fmt"

	"github.com/acksell/tablekit/dynamodb/ddberrors"
)

// GSI describes a global secondary index keyed on plain item fields.
type GSI struct {
	name      string
	partition KeyDef
	sort      KeyDef
	modelTags []string
}

// IndexQuery addresses every item under one GSI partition value.
type IndexQuery struct {
	Index *GSI
	Value any
	Tags  []string
}

// NewGSI registers a GSI. Its model tags are the models exposing the
// partition field, narrowed to those also exposing the sort field when the
// index has one. Models must be registered first.
// Both key fields join the encryption exemption set.
func (t *Table) NewGSI(name string, partition, sort KeyDef) (*GSI, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkOpen(); err != nil {
		return nil, err
	}
	if name == "" || partition.Name == "" {
		return nil, ddberrors.NewValidationError("gsi", "index name and partition key are required")
	}
	if _, dup := t.gsis[name]; dup {
		return nil, fmt.Errorf("GSI %q already registered on table %q", name, t.name)
	}
	if partition.Kind == "" {
		partition.Kind = KeyKindS
	}
	if sort.Name != "" && sort.Kind == "" {
		sort.Kind = KeyKindS
	}

	var tags []string
	for _, tag := range t.order {
		m := t.models[tag]
		if !m.HasField(partition.Name) {
			continue
		}
		if sort.Name != "" && !m.HasField(sort.Name) {
			continue
		}
		tags = append(tags, tag)
	}

	g := &GSI{name: name, partition: partition, sort: sort, modelTags: tags}
	t.gsis[name] = g
	t.gsiOrd = append(t.gsiOrd, name)
	t.exempt[partition.Name] = struct{}{}
	if sort.Name != "" {
		t.exempt[sort.Name] = struct{}{}
	}
	return g, nil
}

func (g *GSI) Name() string { return g.name }
func (g *GSI) PartitionKey() KeyDef { return g.partition }
func (g *GSI) SortKey() KeyDef { return g.sort }
func (g *GSI) ModelTags() []string { return append([]string(nil), g.modelTags...) }

func (g *GSI) Definition() GSIDefinition {
	return GSIDefinition{
		Name: g.name,
		KeyDefinitions: PrimaryKeyDefinition{
			PartitionKey: g.partition,
			SortKey:      g.sort,
		},
	}
}

// Query addresses the items whose partition field equals value.
func (g *GSI) Query(value any) (IndexQuery, error) {
	if value == nil {
		return IndexQuery{}, ddberrors.NewValidationError(g.partition.Name, "missing index partition value")
	}
	return IndexQuery{Index: g, Value: value, Tags: g.ModelTags()}, nil
}
