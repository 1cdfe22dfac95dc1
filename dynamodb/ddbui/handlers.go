package ddbui

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/acksell/tablekit/dynamodb/avcodec"
	"github.com/acksell/tablekit/dynamodb/ddberrors"
	"github.com/acksell/tablekit/dynamodb/ddbsdk"
	"github.com/acksell/tablekit/dynamodb/keys"
	"github.com/acksell/tablekit/dynamodb/schema"
	"github.com/acksell/tablekit/dynamodb/table"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/hlog"
)

const (
	defaultLimit = 25
	maxLimit     = 1000
)

// query parameters that are never key fields
var reserved = map[string]bool{"limit": true, "cursor": true, "reverse": true, "unique": true, "value": true}

// APIHandler provides REST API endpoints over a ddbsdk.Client.
type APIHandler struct {
	client *ddbsdk.Client
	reg    *schema.Registry
}

// NewAPIHandler creates a new API handler.
func NewAPIHandler(client *ddbsdk.Client, reg *schema.Registry) *APIHandler {
	return &APIHandler{client: client, reg: reg}
}

// RegisterRoutes registers all API routes on the given mux.
func (h *APIHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/schema", h.getSchema)
	mux.HandleFunc("GET /api/models/{model}/items", h.scanItems)
	mux.HandleFunc("POST /api/models/{model}/items", h.putItem)
	mux.HandleFunc("GET /api/models/{model}/item", h.getItem)
	mux.HandleFunc("DELETE /api/models/{model}/item", h.deleteItem)
	mux.HandleFunc("GET /api/partitions/{partition}/items", h.queryPartition)
	mux.HandleFunc("GET /api/gsis/{gsi}/items", h.queryGSI)
}

type schemaResponse struct {
	Table        string              `json:"table"`
	PartitionKey string              `json:"partitionKey"`
	SortKey      string              `json:"sortKey"`
	TypeField    string              `json:"typeField"`
	Models       []modelResponse     `json:"models"`
	Partitions   map[string][]string `json:"partitions"`
	GSIs         []gsiResponse       `json:"gsis"`
}

type modelResponse struct {
	Tag       string `json:"tag"`
	Partition string `json:"partition"`
	Sort      string `json:"sort"`
}

type gsiResponse struct {
	Name         string   `json:"name"`
	PartitionKey string   `json:"partitionKey"`
	SortKey      string   `json:"sortKey,omitempty"`
	Models       []string `json:"models"`
}

type pageResponse struct {
	Items  []map[string]any `json:"items"`
	Count  int              `json:"count"`
	Cursor string           `json:"cursor,omitempty"`
	Errors []string         `json:"errors,omitempty"`
}

// getSchema describes the table and its key patterns.
func (h *APIHandler) getSchema(w http.ResponseWriter, r *http.Request) {
	t := h.reg.Table
	d := t.Delimiter()
	resp := schemaResponse{
		Table:        t.Name(),
		PartitionKey: t.PartitionKeyName(),
		SortKey:      t.SortKeyName(),
		TypeField:    t.TypeField(),
		Models:       []modelResponse{},
		Partitions:   make(map[string][]string, len(h.reg.Partitions)),
		GSIs:         []gsiResponse{},
	}
	for _, m := range t.Models() {
		resp.Models = append(resp.Models, modelResponse{
			Tag:       m.Tag(),
			Partition: m.PartitionRecipe().Pattern(d),
			Sort:      m.SortRecipe().Pattern(d),
		})
	}
	for name, p := range h.reg.Partitions {
		resp.Partitions[name] = p.Tags()
	}
	for _, g := range t.GSIs() {
		resp.GSIs = append(resp.GSIs, gsiResponse{
			Name:         g.Name(),
			PartitionKey: g.PartitionKey().Name,
			SortKey:      g.SortKey().Name,
			Models:       g.ModelTags(),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// scanItems returns one page of a model's items.
func (h *APIHandler) scanItems(w http.ResponseWriter, r *http.Request) {
	m, ok := h.model(w, r)
	if !ok {
		return
	}
	limit, err := parseLimit(r.URL.Query())
	if err != nil {
		writeErr(w, r, err)
		return
	}
	it, err := h.client.Scan().
		Tags(m.Tag()).
		EventuallyConsistent().
		PageSize(limit).
		StartFrom(r.URL.Query().Get("cursor")).
		Iterator()
	if err != nil {
		writeErr(w, r, err)
		return
	}
	h.writePage(w, r, it)
}

// putItem creates an item of the model from a JSON object of fields.
func (h *APIHandler) putItem(w http.ResponseWriter, r *http.Request) {
	m, ok := h.model(w, r)
	if !ok {
		return
	}
	var doc map[string]any
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		writeErr(w, r, ddberrors.NewValidationError("body", "invalid JSON object: "+err.Error()))
		return
	}
	fields, err := avcodec.FromPlain(doc)
	if err != nil {
		writeErr(w, r, fmt.Errorf("%w: %w", ddberrors.ErrValidation, err))
		return
	}

	var opts []ddbsdk.PutOption
	if r.URL.Query().Get("unique") == "true" {
		opts = append(opts, ddbsdk.FailIfExists())
	}
	item, err := h.client.Put(r.Context(), m, fields, opts...)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeItem(w, r, http.StatusCreated, item)
}

// getItem reads one item by the key fields given as query parameters.
func (h *APIHandler) getItem(w http.ResponseWriter, r *http.Request) {
	key, ok := h.key(w, r)
	if !ok {
		return
	}
	item, err := h.client.Get(r.Context(), key)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if item == nil {
		writeErr(w, r, &ddberrors.NotFoundError{Partition: key.Partition, Sort: key.Sort})
		return
	}
	writeItem(w, r, http.StatusOK, item)
}

// deleteItem removes one item by the key fields given as query parameters.
func (h *APIHandler) deleteItem(w http.ResponseWriter, r *http.Request) {
	key, ok := h.key(w, r)
	if !ok {
		return
	}
	if err := h.client.Delete(r.Context(), key); err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

// queryPartition returns one page of a partition, all member models mixed.
func (h *APIHandler) queryPartition(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("partition")
	p, ok := h.reg.Partitions[name]
	if !ok {
		writeError(w, http.StatusNotFound, "partition not found: "+name)
		return
	}
	params := r.URL.Query()
	pq, err := p.Key(keyValues(params))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	limit, err := parseLimit(params)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	q := h.client.Query(pq).PageSize(limit).StartFrom(params.Get("cursor"))
	if params.Get("reverse") == "true" {
		q = q.Reverse()
	}
	it, err := q.Iterator()
	if err != nil {
		writeErr(w, r, err)
		return
	}
	h.writePage(w, r, it)
}

// queryGSI returns one page of the items under an index partition value.
func (h *APIHandler) queryGSI(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("gsi")
	g, ok := h.reg.GSIs[name]
	if !ok {
		writeError(w, http.StatusNotFound, "gsi not found: "+name)
		return
	}
	params := r.URL.Query()
	if !params.Has("value") {
		writeErr(w, r, ddberrors.NewValidationError("value", "missing index partition value"))
		return
	}
	value, err := indexValue(g.PartitionKey(), params.Get("value"))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	iq, err := g.Query(value)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	limit, err := parseLimit(params)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	q := h.client.QueryIndex(iq).PageSize(limit).StartFrom(params.Get("cursor"))
	if params.Get("reverse") == "true" {
		q = q.Reverse()
	}
	it, err := q.Iterator()
	if err != nil {
		writeErr(w, r, err)
		return
	}
	h.writePage(w, r, it)
}

func (h *APIHandler) model(w http.ResponseWriter, r *http.Request) (*table.Model, bool) {
	tag := r.PathValue("model")
	m, ok := h.reg.Models[tag]
	if !ok {
		writeError(w, http.StatusNotFound, "model not found: "+tag)
		return nil, false
	}
	return m, true
}

func (h *APIHandler) key(w http.ResponseWriter, r *http.Request) (table.Key, bool) {
	m, ok := h.model(w, r)
	if !ok {
		return table.Key{}, false
	}
	key, err := m.Key(keyValues(r.URL.Query()))
	if err != nil {
		writeErr(w, r, err)
		return table.Key{}, false
	}
	return key, true
}

func (h *APIHandler) writePage(w http.ResponseWriter, r *http.Request, it *ddbsdk.Iterator) {
	page, err := it.Next(r.Context())
	if err != nil {
		writeErr(w, r, err)
		return
	}
	resp := pageResponse{
		Items:  make([]map[string]any, 0, len(page.Items)),
		Cursor: page.Cursor,
	}
	for _, item := range page.Items {
		doc, err := avcodec.ToPlain(item)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		resp.Items = append(resp.Items, doc)
	}
	resp.Count = len(resp.Items)
	for _, e := range page.Errors {
		resp.Errors = append(resp.Errors, e.Error())
	}
	writeJSON(w, http.StatusOK, resp)
}

// keyValues collects the non-reserved query parameters as key field values.
func keyValues(params url.Values) keys.Values {
	v := make(keys.Values, len(params))
	for name := range params {
		if !reserved[name] {
			v[name] = params.Get(name)
		}
	}
	return v
}

// indexValue converts a query parameter to the GSI partition key kind.
func indexValue(def table.KeyDef, raw string) (any, error) {
	switch def.Kind {
	case table.KeyKindN:
		if _, err := strconv.ParseFloat(raw, 64); err != nil {
			return nil, ddberrors.NewValidationError("value", "index partition key is numeric")
		}
		return &types.AttributeValueMemberN{Value: raw}, nil
	case table.KeyKindB:
		b, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return nil, ddberrors.NewValidationError("value", "index partition key is base64 binary")
		}
		return b, nil
	default:
		return raw, nil
	}
}

func parseLimit(params url.Values) (int32, error) {
	raw := params.Get("limit")
	if raw == "" {
		return defaultLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > maxLimit {
		return 0, ddberrors.NewValidationError("limit", fmt.Sprintf("must be between 1 and %d", maxLimit))
	}
	return int32(n), nil
}

func writeItem(w http.ResponseWriter, r *http.Request, status int, item ddbsdk.Item) {
	doc, err := avcodec.ToPlain(item)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, status, map[string]any{"item": doc})
}

// writeErr maps the error taxonomy onto HTTP statuses.
func writeErr(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case ddberrors.IsValidation(err):
		status = http.StatusBadRequest
	case ddberrors.IsNotFound(err):
		status = http.StatusNotFound
	case ddberrors.IsAlreadyExists(err):
		status = http.StatusConflict
	case errors.Is(err, ddberrors.ErrTransform):
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		hlog.FromRequest(r).Error().Err(err).Msg("request failed")
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
