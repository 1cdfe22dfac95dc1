package ddbsdk

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/acksell/tablekit/dynamodb/ddbstore"
	"github.com/acksell/tablekit/dynamodb/keys"
	"github.com/acksell/tablekit/dynamodb/table"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"
)

type musician struct {
	ID    string `dynamodbav:"id"`
	Name  string `dynamodbav:"name"`
	Genre string `dynamodbav:"genre"`
}

type song struct {
	ID         string `dynamodbav:"id"`
	MusicianID string `dynamodbav:"musicianId"`
	Title      string `dynamodbav:"title,omitempty"`
	Genre      string `dynamodbav:"genre,omitempty"`
}

// fixture is a music table bound to an in-memory store:
// musicians and their songs share the musician partition, songs are
// indexed by genre.
type fixture struct {
	client    *Client
	store     *ddbstore.Store
	musician  *table.Model
	song      *table.Model
	catalogue *table.Partition
	byGenre   *table.GSI
}

func newFixture(t *testing.T, storeOpts ddbstore.StoreOptions, opts ...Option) *fixture {
	t.Helper()
	tbl := table.New("music", table.WithEncryptionMetadataField("__enc"))
	m, err := tbl.NewModel("musician",
		keys.Recipe{Prefix: "musician", Fields: []string{"id"}},
		keys.Recipe{Prefix: "musician", Fields: []string{"id"}},
		"name", "genre")
	require.NoError(t, err)
	s, err := tbl.NewModel("song",
		keys.Recipe{Prefix: "musician", Fields: []string{"musicianId"}},
		keys.Recipe{Prefix: "song", Fields: []string{"id"}},
		"title", "genre")
	require.NoError(t, err)
	p, err := tbl.NewPartition(m, s)
	require.NoError(t, err)
	g, err := tbl.NewGSI("byGenre", table.KeyDef{Name: "genre"}, table.KeyDef{Name: "title"})
	require.NoError(t, err)

	storeOpts.InMemory = true
	store, err := ddbstore.New(storeOpts)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	client := New(store, tbl, opts...)
	require.NoError(t, client.CreateTable(context.Background()))
	return &fixture{
		client:    client,
		store:     store,
		musician:  m,
		song:      s,
		catalogue: p,
		byGenre:   g,
	}
}

func (f *fixture) putSong(t *testing.T, s song) {
	t.Helper()
	_, err := f.client.Put(context.Background(), f.song, s)
	require.NoError(t, err)
}

func (f *fixture) putMusician(t *testing.T, m musician) {
	t.Helper()
	_, err := f.client.Put(context.Background(), f.musician, m)
	require.NoError(t, err)
}

func (f *fixture) songKey(t *testing.T, musicianID, id string) table.Key {
	t.Helper()
	k, err := f.song.Key(keys.Values{"musicianId": musicianID, "id": id})
	require.NoError(t, err)
	return k
}

func (f *fixture) musicianKey(t *testing.T, id string) table.Key {
	t.Helper()
	k, err := f.musician.Key(keys.Values{"id": id})
	require.NoError(t, err)
	return k
}

// jitterEncrypter leaves items as they are, but takes a random time to
// decrypt and fails on items whose title is in fail.
type jitterEncrypter struct {
	fail map[string]bool
}

var errDecrypt = errors.New("cannot decrypt")

func (e *jitterEncrypter) Encrypt(ctx context.Context, item Item, fields []string) (Item, error) {
	return item, nil
}

func (e *jitterEncrypter) Decrypt(ctx context.Context, item Item) (Item, error) {
	time.Sleep(time.Duration(rand.IntN(2000)) * time.Microsecond)
	if title, ok := item["title"].(*types.AttributeValueMemberS); ok && e.fail[title.Value] {
		return nil, errDecrypt
	}
	return item, nil
}

func str(item Item, field string) string {
	if s, ok := item[field].(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}
