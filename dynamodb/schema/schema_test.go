package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/acksell/tablekit/dynamodb/ddberrors"
	"github.com/acksell/tablekit/dynamodb/keys"
	"github.com/acksell/tablekit/dynamodb/table"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const musicSchema = `
table:
  name: music
  metadataField: __enc
  exemptFields: [createdAt]
models:
  - tag: musician
    partition: {prefix: musician, fields: [id]}
    sort: {prefix: musician, fields: [id]}
    fields:
      - {name: id, type: string}
      - {name: name, type: string}
      - {name: genre, type: string}
  - tag: song
    partition: {prefix: musician, fields: [musicianId]}
    sort: {prefix: song, fields: [id]}
    fields:
      - {name: musicianId, type: string}
      - {name: id, type: number}
      - {name: title, type: string}
      - {name: genre, type: string}
partitions:
  - name: catalogue
    models: [musician, song]
gsis:
  - name: byGenre
    partitionKey: {name: genre}
    sortKey: {name: title, kind: S}
`

func TestParseAndBuild(t *testing.T) {
	s, err := Parse([]byte(musicSchema))
	require.NoError(t, err)

	reg, err := s.Build()
	require.NoError(t, err)
	assert.Equal(t, "music", reg.Table.Name())
	assert.Equal(t, "__enc", reg.Table.MetadataField())
	assert.Equal(t, []string{"musician", "song"}, reg.Table.Tags())
	assert.True(t, reg.Table.IsExempt("createdAt"))
	assert.True(t, reg.Table.IsExempt("genre"), "index keys are exempt")
	assert.False(t, reg.Table.Sealed())

	k, err := reg.Models["song"].Key(keys.Values{"musicianId": "1", "id": 7})
	require.NoError(t, err)
	assert.Equal(t, table.Key{Tag: "song", Partition: "musician-1", Sort: "song-7"}, k)

	pq, err := reg.Partitions["catalogue"].Key(keys.Values{"id": "1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"musician", "song"}, pq.Tags)

	assert.Equal(t, []string{"song"}, reg.GSIs["byGenre"].ModelTags())
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "music.yaml")
	require.NoError(t, os.WriteFile(path, []byte(musicSchema), 0o600))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, s.Models, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		doc       string
		wantField string
	}{
		{
			name:      "missing table name",
			doc:       "table: {}\nmodels: [{tag: a, partition: {prefix: a}, sort: {prefix: a}, fields: [{name: x, type: string}]}]",
			wantField: "Name",
		},
		{
			name:      "no models",
			doc:       "table: {name: music}",
			wantField: "Models",
		},
		{
			name: "unknown field type",
			doc: `table: {name: music}
models: [{tag: a, partition: {prefix: a}, sort: {prefix: a}, fields: [{name: x, type: date}]}]`,
			wantField: "Type",
		},
		{
			name: "boolean key field",
			doc: `table: {name: music}
models: [{tag: a, partition: {prefix: a, fields: [x]}, sort: {prefix: a}, fields: [{name: x, type: boolean}]}]`,
			wantField: "x",
		},
		{
			name: "undeclared key field",
			doc: `table: {name: music}
models: [{tag: a, partition: {prefix: a, fields: [y]}, sort: {prefix: a}, fields: [{name: x, type: string}]}]`,
			wantField: "y",
		},
		{
			name: "duplicate model tag",
			doc: `table: {name: music}
models:
  - {tag: a, partition: {prefix: a}, sort: {prefix: a}, fields: [{name: x, type: string}]}
  - {tag: a, partition: {prefix: a}, sort: {prefix: a}, fields: [{name: x, type: string}]}`,
			wantField: "Models",
		},
		{
			name: "partition with unknown model",
			doc: `table: {name: music}
models: [{tag: a, partition: {prefix: a}, sort: {prefix: a}, fields: [{name: x, type: string}]}]
partitions: [{name: p, models: [b]}]`,
			wantField: "b",
		},
		{
			name: "bad key kind",
			doc: `table: {name: music}
models: [{tag: a, partition: {prefix: a}, sort: {prefix: a}, fields: [{name: x, type: string}]}]
gsis: [{name: byX, partitionKey: {name: x, kind: Q}}]`,
			wantField: "Kind",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			var verr *ddberrors.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.wantField, verr.Field)
		})
	}

	t.Run("unknown keys", func(t *testing.T) {
		_, err := Parse([]byte("table: {name: music, colour: red}"))
		assert.True(t, ddberrors.IsValidation(err))
	})

	t.Run("empty", func(t *testing.T) {
		_, err := Parse(nil)
		assert.True(t, ddberrors.IsValidation(err))
	})
}
