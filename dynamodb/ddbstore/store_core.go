package ddbstore

import (
	"fmt"
	"sync"

	"github.com/acksell/tablekit/dynamodb/ddbiface"
	"github.com/acksell/tablekit/dynamodb/table"
	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
)

// Store is a DynamoDB-compatible store backed by BadgerDB.
// Item writes and their GSI entries commit in one badger transaction.
type Store struct {
	db   *badger.DB
	opts StoreOptions
	log  zerolog.Logger

	mu     sync.RWMutex
	tables map[string]*tableSchema
	// tokens holds the ClientRequestTokens of committed transactions.
	tokens map[string]struct{}
}

var _ ddbiface.AWSDynamoClientV2 = (*Store)(nil)

type tableSchema struct {
	definition table.TableDefinition
	gsis       map[string]*gsiSchema
}

func newTableSchema(def table.TableDefinition) *tableSchema {
	schema := &tableSchema{
		definition: def,
		gsis:       make(map[string]*gsiSchema),
	}
	for _, gsiDef := range def.GSIs {
		schema.gsis[gsiDef.Name] = &gsiSchema{
			table:      def,
			definition: gsiDef,
		}
	}
	return schema
}

func (t *tableSchema) encoder() *keyEncoder {
	return &keyEncoder{tableName: t.definition.Name, keyDefs: t.definition.KeyDefinitions}
}

type gsiSchema struct {
	table      table.TableDefinition
	definition table.GSIDefinition
}

func (g *gsiSchema) encoder() *keyEncoder {
	return &keyEncoder{
		tableName: g.table.Name,
		indexName: g.definition.Name,
		keyDefs:   g.definition.KeyDefinitions,
		tableKeys: &g.table.KeyDefinitions,
	}
}

// StoreOptions configures the BadgerDB store.
type StoreOptions struct {
	// Path to the database directory. If empty, uses in-memory mode.
	Path string
	// InMemory forces in-memory mode even if Path is set.
	InMemory bool
	// Logger receives store events and badger's own log lines. Nil disables logging.
	Logger *zerolog.Logger

	// BatchGetLimit caps the keys served per BatchGetItem call; the rest are
	// returned as UnprocessedKeys. Zero means no cap.
	BatchGetLimit int
	// BatchWriteLimit caps the requests applied per BatchWriteItem call; the
	// rest are returned as UnprocessedItems. Zero means no cap.
	BatchWriteLimit int
}

// New creates a new BadgerDB-backed DynamoDB store. Table definitions
// persisted by an earlier CreateTable are loaded alongside defs.
func New(opts StoreOptions, defs ...table.TableDefinition) (*Store, error) {
	badgerOpts := badger.DefaultOptions(opts.Path)

	if opts.Path == "" || opts.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true)
	}

	log := zerolog.Nop()
	if opts.Logger != nil {
		log = opts.Logger.With().Str("component", "ddbstore").Logger()
		badgerOpts = badgerOpts.WithLogger(badgerLogger{log})
	} else {
		badgerOpts = badgerOpts.WithLogger(nil)
	}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("open badger db: %w", err)
	}

	s := &Store{
		db:     db,
		opts:   opts,
		log:    log,
		tables: make(map[string]*tableSchema),
		tokens: make(map[string]struct{}),
	}

	persisted, err := s.loadSchemas()
	if err != nil {
		db.Close()
		return nil, err
	}
	for _, def := range persisted {
		s.tables[def.Name] = newTableSchema(def)
	}
	for _, def := range defs {
		s.tables[def.Name] = newTableSchema(def)
	}
	return s, nil
}

// Close closes the BadgerDB database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) getTable(tableName *string) (*tableSchema, error) {
	if tableName == nil || *tableName == "" {
		return nil, validationError("table name is required")
	}
	s.mu.RLock()
	schema, ok := s.tables[*tableName]
	s.mu.RUnlock()
	if !ok {
		return nil, resourceNotFound(*tableName)
	}
	return schema, nil
}

// getEncoder returns the key encoder for a table or one of its GSIs.
func (s *Store) getEncoder(tableName *string, indexName *string) (*keyEncoder, error) {
	schema, err := s.getTable(tableName)
	if err != nil {
		return nil, err
	}
	if indexName == nil || *indexName == "" {
		return schema.encoder(), nil
	}
	gsi, ok := schema.gsis[*indexName]
	if !ok {
		return nil, validationError(fmt.Sprintf("the table does not have the specified index: %s", *indexName))
	}
	return gsi.encoder(), nil
}
