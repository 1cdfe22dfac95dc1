// Package schema loads a single-table layout from YAML and registers it on a
// table.Table.
//
//	table:
//	  name: music
//	  metadataField: __enc
//	models:
//	  - tag: song
//	    partition: {prefix: musician, fields: [musicianId]}
//	    sort: {prefix: song, fields: [id]}
//	    fields:
//	      - {name: musicianId, type: string}
//	      - {name: id, type: number}
//	      - {name: title, type: string}
//	partitions:
//	  - name: catalogue
//	    models: [musician, song]
//	gsis:
//	  - name: byGenre
//	    partitionKey: {name: genre}
package schema

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/acksell/tablekit/dynamodb/ddberrors"
	"github.com/acksell/tablekit/dynamodb/keys"
	"github.com/acksell/tablekit/dynamodb/table"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Schema is the root of a schema file.
type Schema struct {
	Table      Table       `yaml:"table" json:"table"`
	Models     []Model     `yaml:"models" json:"models" validate:"required,min=1,unique=Tag,dive"`
	Partitions []Partition `yaml:"partitions,omitempty" json:"partitions,omitempty" validate:"unique=Name,dive"`
	GSIs       []GSI       `yaml:"gsis,omitempty" json:"gsis,omitempty" validate:"unique=Name,dive"`
}

// Table describes the physical table. Empty fields take the table package defaults.
type Table struct {
	Name          string   `yaml:"name" json:"name" validate:"required,min=3,max=255"`
	PartitionKey  string   `yaml:"partitionKey,omitempty" json:"partitionKey,omitempty"`
	SortKey       string   `yaml:"sortKey,omitempty" json:"sortKey,omitempty" validate:"required_with=PartitionKey"`
	Delimiter     string   `yaml:"delimiter,omitempty" json:"delimiter,omitempty"`
	TypeField     string   `yaml:"typeField,omitempty" json:"typeField,omitempty"`
	MetadataField string   `yaml:"metadataField,omitempty" json:"metadataField,omitempty"`
	ExemptFields  []string `yaml:"exemptFields,omitempty" json:"exemptFields,omitempty" validate:"dive,required"`
}

// Model describes an item type and how its keys are built.
type Model struct {
	Tag       string  `yaml:"tag" json:"tag" validate:"required"`
	Partition Recipe  `yaml:"partition" json:"partition"`
	Sort      Recipe  `yaml:"sort" json:"sort"`
	Fields    []Field `yaml:"fields" json:"fields" validate:"required,min=1,unique=Name,dive"`
}

type Recipe struct {
	Prefix string   `yaml:"prefix" json:"prefix" validate:"required"`
	Fields []string `yaml:"fields,omitempty" json:"fields,omitempty" validate:"dive,required"`
}

// Field describes a model attribute.
type Field struct {
	Name string `yaml:"name" json:"name" validate:"required"`
	Type string `yaml:"type" json:"type" validate:"required,oneof=string number boolean binary list map stringSet numberSet"`
}

// Partition groups models sharing a partition key recipe.
type Partition struct {
	Name   string   `yaml:"name" json:"name" validate:"required"`
	Models []string `yaml:"models" json:"models" validate:"required,min=1,dive,required"`
}

// GSI describes a global secondary index over plain item fields.
type GSI struct {
	Name         string  `yaml:"name" json:"name" validate:"required,min=3,max=255"`
	PartitionKey KeyDef  `yaml:"partitionKey" json:"partitionKey"`
	SortKey      *KeyDef `yaml:"sortKey,omitempty" json:"sortKey,omitempty"`
}

// KeyDef describes a key attribute definition.
type KeyDef struct {
	Name string `yaml:"name" json:"name" validate:"required"`
	Kind string `yaml:"kind,omitempty" json:"kind,omitempty" validate:"omitempty,oneof=S N B"` // "S", "N", or "B", default "S"
}

var validate = validator.New()

// Load reads and validates a schema file.
func Load(path string) (*Schema, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	s, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return s, nil
}

// Parse decodes and validates a schema document.
func Parse(data []byte) (*Schema, error) {
	return Decode(bytes.NewReader(data))
}

// Decode reads one schema document. Unknown keys are rejected.
func Decode(r io.Reader) (*Schema, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var s Schema
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ddberrors.NewValidationError("", "schema is empty")
		}
		return nil, fmt.Errorf("%w: %w", ddberrors.ErrValidation, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks the struct rules, then that every key recipe field is
// declared on its model with a string or number type.
func (s *Schema) Validate() error {
	if err := ddberrors.FromStruct(validate.Struct(s)); err != nil {
		return err
	}
	tags := make(map[string]bool, len(s.Models))
	for _, m := range s.Models {
		tags[m.Tag] = true
		types := make(map[string]string, len(m.Fields))
		for _, f := range m.Fields {
			types[f.Name] = f.Type
		}
		for _, r := range []Recipe{m.Partition, m.Sort} {
			for _, name := range r.Fields {
				typ, ok := types[name]
				if !ok {
					return ddberrors.NewValidationError(name, fmt.Sprintf("model %q uses undeclared field in a key", m.Tag))
				}
				if typ != "string" && typ != "number" {
					return ddberrors.NewValidationError(name, fmt.Sprintf("model %q key field has type %q, only string and number are supported", m.Tag, typ))
				}
			}
		}
	}
	for _, p := range s.Partitions {
		for _, tag := range p.Models {
			if !tags[tag] {
				return ddberrors.NewValidationError(tag, fmt.Sprintf("partition %q names an unknown model", p.Name))
			}
		}
	}
	return nil
}

// Registry is a schema registered on a table.
type Registry struct {
	Table      *table.Table
	Models     map[string]*table.Model
	Partitions map[string]*table.Partition
	GSIs       map[string]*table.GSI
}

// Build creates the table and registers every model, partition and GSI, in
// that order. The table is left unsealed.
func (s *Schema) Build() (*Registry, error) {
	var opts []table.Option
	if s.Table.PartitionKey != "" {
		opts = append(opts, table.WithKeyNames(s.Table.PartitionKey, s.Table.SortKey))
	}
	if s.Table.Delimiter != "" {
		opts = append(opts, table.WithDelimiter(s.Table.Delimiter))
	}
	if s.Table.TypeField != "" {
		opts = append(opts, table.WithTypeField(s.Table.TypeField))
	}
	if s.Table.MetadataField != "" {
		opts = append(opts, table.WithEncryptionMetadataField(s.Table.MetadataField))
	}
	if len(s.Table.ExemptFields) > 0 {
		opts = append(opts, table.WithExemptFields(s.Table.ExemptFields...))
	}

	reg := &Registry{
		Table:      table.New(s.Table.Name, opts...),
		Models:     make(map[string]*table.Model, len(s.Models)),
		Partitions: make(map[string]*table.Partition, len(s.Partitions)),
		GSIs:       make(map[string]*table.GSI, len(s.GSIs)),
	}
	for _, m := range s.Models {
		fields := make([]string, 0, len(m.Fields))
		for _, f := range m.Fields {
			fields = append(fields, f.Name)
		}
		model, err := reg.Table.NewModel(m.Tag, m.Partition.recipe(), m.Sort.recipe(), fields...)
		if err != nil {
			return nil, fmt.Errorf("model %q: %w", m.Tag, err)
		}
		reg.Models[m.Tag] = model
	}
	for _, p := range s.Partitions {
		models := make([]*table.Model, 0, len(p.Models))
		for _, tag := range p.Models {
			models = append(models, reg.Models[tag])
		}
		part, err := reg.Table.NewPartition(models...)
		if err != nil {
			return nil, fmt.Errorf("partition %q: %w", p.Name, err)
		}
		reg.Partitions[p.Name] = part
	}
	for _, g := range s.GSIs {
		var sort table.KeyDef
		if g.SortKey != nil {
			sort = g.SortKey.keyDef()
		}
		gsi, err := reg.Table.NewGSI(g.Name, g.PartitionKey.keyDef(), sort)
		if err != nil {
			return nil, fmt.Errorf("gsi %q: %w", g.Name, err)
		}
		reg.GSIs[g.Name] = gsi
	}
	return reg, nil
}

func (r Recipe) recipe() keys.Recipe {
	return keys.Recipe{Prefix: r.Prefix, Fields: r.Fields}
}

func (k KeyDef) keyDef() table.KeyDef {
	return table.KeyDef{Name: k.Name, Kind: table.KeyKind(k.Kind)}
}
