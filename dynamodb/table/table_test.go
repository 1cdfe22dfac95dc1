package table

import (
	"strings"
	"testing"

	"github.com/acksell/tablekit/dynamodb/ddberrors"
	"github.com/acksell/tablekit/dynamodb/keys"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func musicTable(t *testing.T) (*Table, *Model, *Model) {
	t.Helper()
	tbl := New("music", WithEncryptionMetadataField("__enc"))
	musician, err := tbl.NewModel("musician",
		keys.Recipe{Prefix: "musician", Fields: []string{"id"}},
		keys.Recipe{Prefix: "musician", Fields: []string{"id"}},
		"name", "genre")
	require.NoError(t, err)
	song, err := tbl.NewModel("song",
		keys.Recipe{Prefix: "musician", Fields: []string{"musicianId"}},
		keys.Recipe{Prefix: "song", Fields: []string{"id"}},
		"title", "genre")
	require.NoError(t, err)
	return tbl, musician, song
}

func TestModel_Key(t *testing.T) {
	tbl := New("books")
	author, err := tbl.NewModel("author",
		keys.Recipe{Prefix: "author", Fields: []string{"id"}},
		keys.Recipe{Prefix: "author", Fields: []string{"id"}})
	require.NoError(t, err)

	k, err := author.Key(keys.Values{"id": "1"})
	require.NoError(t, err)
	assert.Equal(t, Key{Tag: "author", Partition: "author-1", Sort: "author-1"}, k)

	_, err = author.Key(keys.Values{})
	assert.ErrorIs(t, err, ddberrors.ErrValidation)
}

func TestModel_KeyFor(t *testing.T) {
	_, _, song := musicTable(t)
	k, err := song.KeyFor(struct {
		MusicianID string `dynamodbav:"musicianId"`
		ID         int    `dynamodbav:"id"`
	}{MusicianID: "1", ID: 7})
	require.NoError(t, err)
	assert.Equal(t, Key{Tag: "song", Partition: "musician-1", Sort: "song-7"}, k)
}

func TestModel_PartitionKey(t *testing.T) {
	_, _, song := musicTable(t)

	q, err := song.PartitionKey(keys.Values{"musicianId": "1"})
	require.NoError(t, err)
	assert.Equal(t, "musician-1", q.Partition)
	assert.Equal(t, "song-", q.SortPrefix)
	assert.Equal(t, []string{"song"}, q.Tags)

	q, err = song.PartitionKey(keys.Values{"musicianId": "1", "id": "9"})
	require.NoError(t, err)
	assert.Equal(t, "song-9", q.SortPrefix)

	_, err = song.PartitionKey(keys.Values{"id": "9"})
	assert.True(t, ddberrors.IsValidation(err))
}

func TestModel_PartitionKey_TruncatedPrefixEndsAtDelimiter(t *testing.T) {
	tbl := New("music")
	track, err := tbl.NewModel("track",
		keys.Recipe{Prefix: "musician", Fields: []string{"musicianId"}},
		keys.Recipe{Prefix: "track", Fields: []string{"albumId", "id"}})
	require.NoError(t, err)

	q, err := track.PartitionKey(keys.Values{"musicianId": "1", "albumId": "1"})
	require.NoError(t, err)
	assert.Equal(t, "track-1-", q.SortPrefix)

	other, err := track.Key(keys.Values{"musicianId": "1", "albumId": "10", "id": "1"})
	require.NoError(t, err)
	assert.False(t, strings.HasPrefix(other.Sort, q.SortPrefix), "album 10 must not match album 1")

	same, err := track.Key(keys.Values{"musicianId": "1", "albumId": "1", "id": "1"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(same.Sort, q.SortPrefix))

	q, err = track.PartitionKey(keys.Values{"musicianId": "1", "albumId": "1", "id": "1"})
	require.NoError(t, err)
	assert.Equal(t, "track-1-1", q.SortPrefix, "a complete recipe is used as is")

	bare, err := tbl.NewModel("bare",
		keys.Recipe{Prefix: "bare", Fields: []string{"id"}},
		keys.Recipe{Fields: []string{"id"}})
	require.NoError(t, err)
	q, err = bare.PartitionKey(keys.Values{"id": "1"})
	require.NoError(t, err)
	assert.Equal(t, "1", q.SortPrefix)
}

func TestModel_Create(t *testing.T) {
	_, _, song := musicTable(t)

	fields := map[string]any{"id": "1", "title": "Buffalo Soldier", "musicianId": "1"}
	item, err := song.Create(fields)
	require.NoError(t, err)

	assert.Equal(t, &types.AttributeValueMemberS{Value: "musician-1"}, item["pk"])
	assert.Equal(t, &types.AttributeValueMemberS{Value: "song-1"}, item["sk"])
	assert.Equal(t, &types.AttributeValueMemberS{Value: "song"}, item["model"])
	assert.Equal(t, &types.AttributeValueMemberS{Value: "Buffalo Soldier"}, item["title"])

	assert.Len(t, fields, 3, "caller's fields must not be modified")
	_, stamped := fields["model"]
	assert.False(t, stamped)
}

func TestModel_Create_DoesNotMutateAttributeMap(t *testing.T) {
	_, musician, _ := musicTable(t)
	src := map[string]types.AttributeValue{
		"id":   &types.AttributeValueMemberN{Value: "3"},
		"name": &types.AttributeValueMemberS{Value: "Bob"},
	}
	item, err := musician.Create(src)
	require.NoError(t, err)
	assert.Len(t, src, 2)
	assert.Equal(t, &types.AttributeValueMemberS{Value: "musician-3"}, item["pk"])
}

func TestModel_Create_MissingKeyField(t *testing.T) {
	_, _, song := musicTable(t)
	_, err := song.Create(map[string]any{"id": "1"})
	assert.ErrorIs(t, err, ddberrors.ErrValidation)
}

func TestTable_KeyOf(t *testing.T) {
	tbl, musician, _ := musicTable(t)
	item, err := musician.Create(map[string]any{"id": "4"})
	require.NoError(t, err)

	k, err := tbl.KeyOf(item)
	require.NoError(t, err)
	assert.Equal(t, Key{Tag: "musician", Partition: "musician-4", Sort: "musician-4"}, k)
	assert.Equal(t, item["pk"], tbl.KeyAttributes(k)["pk"])

	_, err = tbl.KeyOf(map[string]types.AttributeValue{})
	assert.Error(t, err)
}

func TestPartition(t *testing.T) {
	tbl, musician, song := musicTable(t)

	p, err := tbl.NewPartition(musician, song)
	require.NoError(t, err)
	q, err := p.Key(keys.Values{"id": "1", "musicianId": "1"})
	require.NoError(t, err)
	assert.Equal(t, "musician-1", q.Partition)
	assert.Empty(t, q.SortPrefix)
	assert.Equal(t, []string{"musician", "song"}, q.Tags)

	_, err = tbl.NewPartition()
	assert.ErrorIs(t, err, ddberrors.ErrValidation)

	album, err := tbl.NewModel("album", keys.Recipe{Prefix: "album", Fields: []string{"id"}}, keys.Recipe{Prefix: "album"})
	require.NoError(t, err)
	_, err = tbl.NewPartition(musician, album)
	assert.ErrorIs(t, err, ddberrors.ErrValidation)
}

func TestGSI_ModelTags(t *testing.T) {
	tbl, _, _ := musicTable(t)

	byGenre, err := tbl.NewGSI("byGenre", KeyDef{Name: "genre"}, KeyDef{})
	require.NoError(t, err)
	assert.Equal(t, []string{"musician", "song"}, byGenre.ModelTags())

	byGenreTitle, err := tbl.NewGSI("byGenreTitle", KeyDef{Name: "genre"}, KeyDef{Name: "title"})
	require.NoError(t, err)
	assert.Equal(t, []string{"song"}, byGenreTitle.ModelTags())
	assert.Equal(t, KeyKindS, byGenreTitle.SortKey().Kind)

	assert.True(t, tbl.IsExempt("genre"))
	assert.True(t, tbl.IsExempt("title"))

	q, err := byGenre.Query("reggae")
	require.NoError(t, err)
	assert.Equal(t, []string{"musician", "song"}, q.Tags)

	_, err = byGenre.Query(nil)
	assert.Error(t, err)
}

func TestTable_ExemptFields(t *testing.T) {
	tbl, _, _ := musicTable(t)
	assert.Equal(t, []string{"__enc", "model", "pk", "sk"}, tbl.ExemptFields())

	item := map[string]types.AttributeValue{
		"pk":    &types.AttributeValueMemberS{Value: "a"},
		"title": &types.AttributeValueMemberS{Value: "b"},
		"name":  &types.AttributeValueMemberS{Value: "c"},
	}
	assert.Equal(t, []string{"name", "title"}, tbl.EncryptableFields(item))

	custom := New("t", WithKeyNames("PK", "SK"), WithTypeField("_type"), WithExemptFields("createdAt"))
	assert.Equal(t, []string{"PK", "SK", "_type", "createdAt"}, custom.ExemptFields())
}

func TestTable_Seal(t *testing.T) {
	tbl, musician, _ := musicTable(t)
	tbl.Seal()
	assert.True(t, tbl.Sealed())

	_, err := tbl.NewModel("late", keys.Recipe{Prefix: "late"}, keys.Recipe{Prefix: "late"})
	assert.ErrorIs(t, err, ErrSealed)
	_, err = tbl.NewGSI("late", KeyDef{Name: "x"}, KeyDef{})
	assert.ErrorIs(t, err, ErrSealed)
	_, err = tbl.NewPartition(musician)
	assert.ErrorIs(t, err, ErrSealed)
}

func TestTable_DuplicateRegistration(t *testing.T) {
	tbl, _, _ := musicTable(t)
	_, err := tbl.NewModel("song", keys.Recipe{}, keys.Recipe{})
	assert.Error(t, err)
}

func TestTable_CreateTableInput(t *testing.T) {
	tbl, _, _ := musicTable(t)
	_, err := tbl.NewGSI("byGenre", KeyDef{Name: "genre"}, KeyDef{Name: "year", Kind: KeyKindN})
	require.NoError(t, err)

	in := tbl.CreateTableInput()
	assert.Equal(t, "music", *in.TableName)
	require.Len(t, in.KeySchema, 2)
	assert.Equal(t, types.KeyTypeHash, in.KeySchema[0].KeyType)
	assert.Equal(t, "sk", *in.KeySchema[1].AttributeName)
	require.Len(t, in.GlobalSecondaryIndexes, 1)
	assert.Equal(t, "byGenre", *in.GlobalSecondaryIndexes[0].IndexName)
	require.Len(t, in.AttributeDefinitions, 4)
	assert.Equal(t, types.ScalarAttributeTypeN, in.AttributeDefinitions[3].AttributeType)

	def := tbl.Definition()
	assert.Equal(t, "pk", def.KeyDefinitions.PartitionKey.Name)
	require.Len(t, def.GSIs, 1)
	assert.Equal(t, KeyKindN, def.GSIs[0].KeyDefinitions.SortKey.Kind)
}

func TestPrimaryKeyDefinition_ExtractPrimaryKey(t *testing.T) {
	def := PrimaryKeyDefinition{
		PartitionKey: KeyDef{Name: "pk", Kind: KeyKindS},
		SortKey:      KeyDef{Name: "sk", Kind: KeyKindN},
	}
	doc := map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: "a"},
		"sk": &types.AttributeValueMemberN{Value: "5"},
		"x":  &types.AttributeValueMemberS{Value: "ignored"},
	}
	pk, err := def.ExtractPrimaryKey(doc)
	require.NoError(t, err)
	assert.Equal(t, "a", pk.Values.PartitionKey)
	assert.Equal(t, "5", pk.Values.SortKey)

	ddb, err := pk.DDB()
	require.NoError(t, err)
	assert.Equal(t, def.KeyAttributes(doc), ddb)

	doc["sk"] = &types.AttributeValueMemberS{Value: "5"}
	_, err = def.ExtractPrimaryKey(doc)
	assert.Error(t, err)
}
