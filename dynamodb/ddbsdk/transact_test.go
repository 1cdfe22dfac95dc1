package ddbsdk

import (
	"context"
	"testing"

	"github.com/acksell/tablekit/dynamodb/ddberrors"
	"github.com/acksell/tablekit/dynamodb/ddbstore"
	"github.com/acksell/tablekit/dynamodb/table"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransactWrite(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ddbstore.StoreOptions{})
	f.putMusician(t, musician{ID: "9", Name: "to delete"})

	err := f.client.TransactWrite(ctx, TransactWriteInput{
		Puts: []TransactPut{
			{Model: f.musician, Fields: musician{ID: "1", Name: "Bob Marley"}, FailIfNotUnique: true},
			{Model: f.song, Fields: song{ID: "1", MusicianID: "1", Title: "Jamming"}},
		},
		Deletes: []table.Key{f.musicianKey(t, "9")},
	})
	require.NoError(t, err)

	groups, err := f.client.TransactGet(ctx, []table.Key{
		f.musicianKey(t, "1"), f.songKey(t, "1", "1"), f.musicianKey(t, "9"),
	})
	require.NoError(t, err)
	musicians, err := Unmarshal[musician](groups, "musician")
	require.NoError(t, err)
	assert.Equal(t, []musician{{ID: "1", Name: "Bob Marley"}}, musicians)
	assert.Equal(t, []string{"Jamming"}, titles(groups["song"]))
}

func TestTransactWrite_FailIfNotUnique(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ddbstore.StoreOptions{})
	f.putSong(t, song{ID: "1", MusicianID: "1", Title: "Jamming"})

	err := f.client.TransactWrite(ctx, TransactWriteInput{
		Puts: []TransactPut{
			{Model: f.musician, Fields: musician{ID: "1", Name: "Bob Marley"}},
			{Model: f.song, Fields: song{ID: "1", MusicianID: "1", Title: "Exodus"}, FailIfNotUnique: true},
		},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ddberrors.ErrTransactionCanceled)
	var txErr *ddberrors.TransactionError
	require.ErrorAs(t, err, &txErr)
	assert.Equal(t, []string{"None", "ConditionalCheckFailed"}, txErr.Reasons)

	got, err := f.client.Get(ctx, f.musicianKey(t, "1"))
	require.NoError(t, err)
	assert.Nil(t, got, "first put must not be applied")

	song1, err := f.client.Get(ctx, f.songKey(t, "1", "1"))
	require.NoError(t, err)
	assert.Equal(t, "Jamming", str(song1, "title"))
}

func TestTransactWrite_Token(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ddbstore.StoreOptions{})
	in := TransactWriteInput{
		Token: "create-bob",
		Puts:  []TransactPut{{Model: f.musician, Fields: musician{ID: "1", Name: "Bob Marley"}}},
	}
	require.NoError(t, f.client.TransactWrite(ctx, in))
	require.NoError(t, f.client.Delete(ctx, f.musicianKey(t, "1")))

	require.NoError(t, f.client.TransactWrite(ctx, in), "replaying a token succeeds")
	got, err := f.client.Get(ctx, f.musicianKey(t, "1"))
	require.NoError(t, err)
	assert.Nil(t, got, "a replayed token is not applied twice")

	in.Token = ""
	require.NoError(t, f.client.TransactWrite(ctx, in))
	require.NoError(t, f.client.Delete(ctx, f.musicianKey(t, "1")))
	require.NoError(t, f.client.TransactWrite(ctx, in), "generated tokens differ per call")
	got, err = f.client.Get(ctx, f.musicianKey(t, "1"))
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestTransactWrite_Empty(t *testing.T) {
	f := newFixture(t, ddbstore.StoreOptions{})
	assert.NoError(t, f.client.TransactWrite(context.Background(), TransactWriteInput{}))
}
