package table

import (
	"fmt"

	"github.com/acksell/tablekit/dynamodb/ddberrors"
	"github.com/acksell/tablekit/dynamodb/keys"
)

// Partition groups models stored under the same partition key, so one query
// returns all of them.
type Partition struct {
	table  *Table
	models []*Model
}

// NewPartition registers a partition over models that share a partition recipe.
// Field names may differ between models; the prefix and arity must match.
// Key values are read using the first model's field names.
func (t *Table) NewPartition(models ...*Model) (*Partition, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if err := t.checkOpen(); err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, ddberrors.NewValidationError("", "a partition needs at least one model")
	}
	first := models[0].pk
	for _, m := range models {
		if m.table != t {
			return nil, fmt.Errorf("model %q belongs to table %q, not %q", m.tag, m.table.name, t.name)
		}
		if m.pk.Prefix != first.Prefix || len(m.pk.Fields) != len(first.Fields) {
			return nil, ddberrors.NewValidationError(m.tag, "models in a partition must share the partition key recipe")
		}
	}
	return &Partition{table: t, models: models}, nil
}

// Tags returns the tags of the member models, in order.
func (p *Partition) Tags() []string {
	tags := make([]string, len(p.models))
	for i, m := range p.models {
		tags[i] = m.tag
	}
	return tags
}

// Key builds a query over the whole partition.
func (p *Partition) Key(v keys.Values) (PartitionQuery, error) {
	recipe := p.models[0].pk
	if err := keys.Require(recipe, v); err != nil {
		return PartitionQuery{}, fmt.Errorf("partition key: %w", err)
	}
	return PartitionQuery{
		Partition: keys.Build(p.table.delimiter, recipe, v),
		Tags:      p.Tags(),
	}, nil
}
