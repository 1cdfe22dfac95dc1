package ddbsdk

import (
	"context"
	"testing"

	"github.com/acksell/tablekit/dynamodb/ddbstore"
	"github.com/acksell/tablekit/dynamodb/fieldcrypt"
	"github.com/acksell/tablekit/dynamodb/keys"

	dynamodbv2 "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ Encrypter = (*fieldcrypt.Encrypter)(nil)

func TestClient_FieldEncryption(t *testing.T) {
	ctx := context.Background()
	enc, err := fieldcrypt.New("passphrase", fieldcrypt.WithMetadataField("__enc"))
	require.NoError(t, err)
	f := newFixture(t, ddbstore.StoreOptions{}, WithEncrypter(enc))

	created, err := f.client.Put(ctx, f.song, song{ID: "1", MusicianID: "1", Title: "Exodus", Genre: "reggae"})
	require.NoError(t, err)

	key := f.songKey(t, "1", "1")
	raw, err := f.store.GetItem(ctx, &dynamodbv2.GetItemInput{
		TableName: ptr("music"),
		Key:       f.client.Table().KeyAttributes(key),
	})
	require.NoError(t, err)
	for _, sealed := range []string{"id", "musicianId"} {
		assert.IsType(t, &types.AttributeValueMemberB{}, raw.Item[sealed], sealed)
	}
	// index key fields stay readable
	for _, exempt := range []string{"pk", "sk", "model", "genre", "title"} {
		assert.IsType(t, &types.AttributeValueMemberS{}, raw.Item[exempt], exempt)
	}

	got, err := f.client.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, created, got)

	t.Run("projection keeps metadata", func(t *testing.T) {
		got, err := f.client.Get(ctx, key, WithProjection("title"))
		require.NoError(t, err)
		assert.Equal(t, Item{"title": &types.AttributeValueMemberS{Value: "Exodus"}}, got)
	})

	t.Run("query decrypts", func(t *testing.T) {
		pq, err := f.song.PartitionKey(keys.Values{"musicianId": "1"})
		require.NoError(t, err)
		groups, err := f.client.Query(pq).Exec(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"Exodus"}, titles(groups["song"]))
	})

	t.Run("index on an exempt field", func(t *testing.T) {
		iq, err := f.byGenre.Query("reggae")
		require.NoError(t, err)
		groups, err := f.client.QueryIndex(iq).Exec(ctx)
		require.NoError(t, err)
		assert.Len(t, groups["song"], 1)
	})
}
