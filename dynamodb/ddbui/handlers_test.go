package ddbui

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/acksell/tablekit/dynamodb/ddbsdk"
	"github.com/acksell/tablekit/dynamodb/ddbstore"
	"github.com/acksell/tablekit/dynamodb/schema"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const musicSchema = `
table:
  name: music
models:
  - tag: musician
    partition: {prefix: musician, fields: [id]}
    sort: {prefix: musician, fields: [id]}
    fields:
      - {name: id, type: string}
      - {name: name, type: string}
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
    sortKey: {name: title}
`

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	s, err := schema.Parse([]byte(musicSchema))
	require.NoError(t, err)
	reg, err := s.Build()
	require.NoError(t, err)

	store, err := ddbstore.New(ddbstore.StoreOptions{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	client := ddbsdk.New(store, reg.Table)
	require.NoError(t, client.CreateTable(context.Background()))

	srv := httptest.NewServer(NewServer(ServerConfig{}, client, reg, zerolog.Nop()).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, target, body string, out any) int {
	t.Helper()
	req, err := http.NewRequest(method, target, strings.NewReader(body))
	require.NoError(t, err)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(res.Body).Decode(out))
	}
	return res.StatusCode
}

type page struct {
	Items  []map[string]any `json:"items"`
	Count  int              `json:"count"`
	Cursor string           `json:"cursor"`
}

func TestAPI_Schema(t *testing.T) {
	srv := newTestServer(t)

	var got schemaResponse
	require.Equal(t, http.StatusOK, do(t, http.MethodGet, srv.URL+"/api/schema", "", &got))
	assert.Equal(t, "music", got.Table)
	assert.Equal(t, []modelResponse{
		{Tag: "musician", Partition: "musician-{id}", Sort: "musician-{id}"},
		{Tag: "song", Partition: "musician-{musicianId}", Sort: "song-{id}"},
	}, got.Models)
	assert.Equal(t, map[string][]string{"catalogue": {"musician", "song"}}, got.Partitions)
	require.Len(t, got.GSIs, 1)
	assert.Equal(t, []string{"song"}, got.GSIs[0].Models)
}

func TestAPI_Items(t *testing.T) {
	srv := newTestServer(t)
	songs := srv.URL + "/api/models/song/items"

	for _, body := range []string{
		`{"musicianId":"1","id":1,"title":"Exodus","genre":"reggae"}`,
		`{"musicianId":"1","id":2,"title":"Jamming","genre":"reggae"}`,
	} {
		var created map[string]map[string]any
		require.Equal(t, http.StatusCreated, do(t, http.MethodPost, songs, body, &created))
		assert.Equal(t, "musician-1", created["item"]["pk"])
	}

	t.Run("unique put conflicts", func(t *testing.T) {
		status := do(t, http.MethodPost, songs+"?unique=true", `{"musicianId":"1","id":1,"title":"Exodus"}`, nil)
		assert.Equal(t, http.StatusConflict, status)
	})

	t.Run("invalid body", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, do(t, http.MethodPost, songs, `[1,2]`, nil))
	})

	t.Run("scan pages", func(t *testing.T) {
		var first page
		require.Equal(t, http.StatusOK, do(t, http.MethodGet, songs+"?limit=1", "", &first))
		require.Equal(t, 1, first.Count)
		require.NotEmpty(t, first.Cursor)

		var second page
		require.Equal(t, http.StatusOK, do(t, http.MethodGet, songs+"?limit=1&cursor="+url.QueryEscape(first.Cursor), "", &second))
		require.Equal(t, 1, second.Count)
		assert.Empty(t, second.Cursor)
		assert.NotEqual(t, first.Items[0]["sk"], second.Items[0]["sk"])
	})

	t.Run("bad limit and cursor", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, do(t, http.MethodGet, songs+"?limit=0", "", nil))
		assert.Equal(t, http.StatusBadRequest, do(t, http.MethodGet, songs+"?cursor=!!", "", nil))
	})

	t.Run("get", func(t *testing.T) {
		var got map[string]map[string]any
		require.Equal(t, http.StatusOK, do(t, http.MethodGet, srv.URL+"/api/models/song/item?musicianId=1&id=2", "", &got))
		assert.Equal(t, "Jamming", got["item"]["title"])

		assert.Equal(t, http.StatusNotFound, do(t, http.MethodGet, srv.URL+"/api/models/song/item?musicianId=1&id=9", "", nil))
		assert.Equal(t, http.StatusBadRequest, do(t, http.MethodGet, srv.URL+"/api/models/song/item?musicianId=1", "", nil))
		assert.Equal(t, http.StatusNotFound, do(t, http.MethodGet, srv.URL+"/api/models/album/item?id=1", "", nil))
	})

	t.Run("partition", func(t *testing.T) {
		require.Equal(t, http.StatusCreated, do(t, http.MethodPost, srv.URL+"/api/models/musician/items", `{"id":"1","name":"Bob Marley"}`, nil))

		var got page
		require.Equal(t, http.StatusOK, do(t, http.MethodGet, srv.URL+"/api/partitions/catalogue/items?id=1", "", &got))
		require.Equal(t, 3, got.Count)
		assert.Equal(t, "musician", got.Items[0]["model"])

		var rev page
		require.Equal(t, http.StatusOK, do(t, http.MethodGet, srv.URL+"/api/partitions/catalogue/items?id=1&reverse=true", "", &rev))
		require.Equal(t, 3, rev.Count)
		assert.Equal(t, "song-2", rev.Items[0]["sk"])

		assert.Equal(t, http.StatusNotFound, do(t, http.MethodGet, srv.URL+"/api/partitions/nope/items?id=1", "", nil))
	})

	t.Run("gsi", func(t *testing.T) {
		var got page
		require.Equal(t, http.StatusOK, do(t, http.MethodGet, srv.URL+"/api/gsis/byGenre/items?value=reggae", "", &got))
		assert.Equal(t, 2, got.Count)

		assert.Equal(t, http.StatusBadRequest, do(t, http.MethodGet, srv.URL+"/api/gsis/byGenre/items", "", nil))
	})

	t.Run("delete", func(t *testing.T) {
		item := srv.URL + "/api/models/song/item?musicianId=1&id=1"
		require.Equal(t, http.StatusOK, do(t, http.MethodDelete, item, "", nil))
		assert.Equal(t, http.StatusNotFound, do(t, http.MethodGet, item, "", nil))
	})
}

func TestServer_Serve(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s, err := schema.Parse([]byte(musicSchema))
	require.NoError(t, err)
	reg, err := s.Build()
	require.NoError(t, err)
	store, err := ddbstore.New(ddbstore.StoreOptions{InMemory: true}, reg.Table.Definition())
	require.NoError(t, err)
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewServer(ServerConfig{}, ddbsdk.New(store, reg.Table), reg, zerolog.Nop()).Serve(ctx, ln)
	}()

	var got schemaResponse
	require.Equal(t, http.StatusOK, do(t, http.MethodGet, "http://"+ln.Addr().String()+"/api/schema", "", &got))
	assert.Equal(t, "music", got.Table)

	cancel()
	assert.NoError(t, <-done)
}
