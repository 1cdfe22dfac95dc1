// Package table declares the single-table layout: the Table itself, the Models
// stored in it, Partitions shared by several Models, and GSI descriptors.
//
// A Table is a registry. Models, Partitions and GSIs are registered once at
// startup; Seal freezes the registry before any data operation runs, after
// which it is read-only and safe for concurrent use.
package table

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	DefaultPartitionKeyName = "pk"
	DefaultSortKeyName      = "sk"
	DefaultDelimiter        = "-"
	DefaultTypeField        = "model"
)

// ErrSealed is returned when registering on a table that is already in use.
var ErrSealed = errors.New("table is sealed, register models and indexes before first use")

type Table struct {
	name          string
	partitionKey  string
	sortKey       string
	delimiter     string
	typeField     string
	metadataField string

	mu     sync.RWMutex
	sealed bool
	exempt map[string]struct{}
	models map[string]*Model
	order  []string // model tags in registration order
	gsis   map[string]*GSI
	gsiOrd []string
}

type Option func(*Table)

// WithKeyNames overrides the partition and sort key column names.
func WithKeyNames(partitionKey, sortKey string) Option {
	return func(t *Table) {
		t.partitionKey = partitionKey
		t.sortKey = sortKey
	}
}

// WithDelimiter sets the separator between composite key components.
func WithDelimiter(d string) Option {
	return func(t *Table) {
		t.delimiter = d
	}
}

// WithTypeField renames the attribute that stores the model tag.
func WithTypeField(name string) Option {
	return func(t *Table) {
		t.typeField = name
	}
}

// WithEncryptionMetadataField names the attribute an encrypter uses for its bookkeeping.
// The field is never encrypted.
func WithEncryptionMetadataField(name string) Option {
	return func(t *Table) {
		t.metadataField = name
	}
}

// WithExemptFields adds fields that must never be encrypted.
func WithExemptFields(fields ...string) Option {
	return func(t *Table) {
		for _, f := range fields {
			t.exempt[f] = struct{}{}
		}
	}
}

func New(name string, opts ...Option) *Table {
	t := &Table{
		name:         name,
		partitionKey: DefaultPartitionKeyName,
		sortKey:      DefaultSortKeyName,
		delimiter:    DefaultDelimiter,
		typeField:    DefaultTypeField,
		exempt:       make(map[string]struct{}),
		models:       make(map[string]*Model),
		gsis:         make(map[string]*GSI),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.exempt[t.partitionKey] = struct{}{}
	t.exempt[t.sortKey] = struct{}{}
	t.exempt[t.typeField] = struct{}{}
	if t.metadataField != "" {
		t.exempt[t.metadataField] = struct{}{}
	}
	return t
}

func (t *Table) Name() string { return t.name }
func (t *Table) PartitionKeyName() string { return t.partitionKey }
func (t *Table) SortKeyName() string { return t.sortKey }
func (t *Table) Delimiter() string { return t.delimiter }
func (t *Table) TypeField() string { return t.typeField }
func (t *Table) MetadataField() string { return t.metadataField }

// Seal freezes the registry. It is idempotent.
func (t *Table) Seal() {
	t.mu.Lock()
	t.sealed = true
	t.mu.Unlock()
}

func (t *Table) Sealed() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sealed
}

// IsExempt reports whether field is excluded from encryption.
func (t *Table) IsExempt(field string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.exempt[field]
	return ok
}

// ExemptFields returns the encryption exemption set, sorted.
func (t *Table) ExemptFields() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.exempt))
	for f := range t.exempt {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// EncryptableFields lists the attributes of item that are not exempt, sorted.
func (t *Table) EncryptableFields(item map[string]types.AttributeValue) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []string
	for f := range item {
		if _, ok := t.exempt[f]; !ok {
			out = append(out, f)
		}
	}
	sort.Strings(out)
	return out
}

// Model returns the registered model for tag.
func (t *Table) Model(tag string) (*Model, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	m, ok := t.models[tag]
	return m, ok
}

// Models returns all models in registration order.
func (t *Table) Models() []*Model {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Model, 0, len(t.order))
	for _, tag := range t.order {
		out = append(out, t.models[tag])
	}
	return out
}

// Tags returns every registered model tag in registration order.
func (t *Table) Tags() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]string(nil), t.order...)
}

func (t *Table) GSI(name string) (*GSI, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	g, ok := t.gsis[name]
	return g, ok
}

func (t *Table) GSIs() []*GSI {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*GSI, 0, len(t.gsiOrd))
	for _, name := range t.gsiOrd {
		out = append(out, t.gsis[name])
	}
	return out
}

// KeyAttributes renders k as the wire key of this table.
func (t *Table) KeyAttributes(k Key) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		t.partitionKey: &types.AttributeValueMemberS{Value: k.Partition},
		t.sortKey:      &types.AttributeValueMemberS{Value: k.Sort},
	}
}

// KeyOf reads the key columns and type tag of a stored item.
func (t *Table) KeyOf(item map[string]types.AttributeValue) (Key, error) {
	pk, ok := item[t.partitionKey].(*types.AttributeValueMemberS)
	if !ok {
		return Key{}, fmt.Errorf("item has no string partition key %q", t.partitionKey)
	}
	sk, ok := item[t.sortKey].(*types.AttributeValueMemberS)
	if !ok {
		return Key{}, fmt.Errorf("item has no string sort key %q", t.sortKey)
	}
	k := Key{Partition: pk.Value, Sort: sk.Value}
	if tag, ok := item[t.typeField].(*types.AttributeValueMemberS); ok {
		k.Tag = tag.Value
	}
	return k, nil
}

// TagOf returns the model tag stamped on item.
func (t *Table) TagOf(item map[string]types.AttributeValue) (string, bool) {
	tag, ok := item[t.typeField].(*types.AttributeValueMemberS)
	if !ok {
		return "", false
	}
	return tag.Value, true
}

// Definition returns the physical layout of the table.
func (t *Table) Definition() TableDefinition {
	def := TableDefinition{
		Name: t.name,
		KeyDefinitions: PrimaryKeyDefinition{
			PartitionKey: KeyDef{Name: t.partitionKey, Kind: KeyKindS},
			SortKey:      KeyDef{Name: t.sortKey, Kind: KeyKindS},
		},
	}
	for _, g := range t.GSIs() {
		def.GSIs = append(def.GSIs, g.Definition())
	}
	return def
}

// CreateTableInput renders the CreateTable request for this table.
// Every GSI projects all attributes; billing is on demand.
func (t *Table) CreateTableInput() *dynamodb.CreateTableInput {
	def := t.Definition()

	seen := make(map[string]bool)
	var attrs []types.AttributeDefinition
	addAttr := func(k KeyDef) {
		if k.Name == "" || seen[k.Name] {
			return
		}
		seen[k.Name] = true
		attrs = append(attrs, types.AttributeDefinition{
			AttributeName: aws.String(k.Name),
			AttributeType: k.Kind.scalarType(),
		})
	}
	keySchema := func(k PrimaryKeyDefinition) []types.KeySchemaElement {
		addAttr(k.PartitionKey)
		out := []types.KeySchemaElement{{AttributeName: aws.String(k.PartitionKey.Name), KeyType: types.KeyTypeHash}}
		if k.SortKey.Name != "" {
			addAttr(k.SortKey)
			out = append(out, types.KeySchemaElement{AttributeName: aws.String(k.SortKey.Name), KeyType: types.KeyTypeRange})
		}
		return out
	}

	in := &dynamodb.CreateTableInput{
		TableName:   aws.String(def.Name),
		KeySchema:   keySchema(def.KeyDefinitions),
		BillingMode: types.BillingModePayPerRequest,
	}
	for _, g := range def.GSIs {
		in.GlobalSecondaryIndexes = append(in.GlobalSecondaryIndexes, types.GlobalSecondaryIndex{
			IndexName:  aws.String(g.Name),
			KeySchema:  keySchema(g.KeyDefinitions),
			Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
		})
	}
	in.AttributeDefinitions = attrs
	return in
}

func (t *Table) checkOpen() error {
	if t.sealed {
		return ErrSealed
	}
	return nil
}
