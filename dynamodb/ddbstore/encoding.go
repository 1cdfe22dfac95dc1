package ddbstore

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"

	"github.com/acksell/tablekit/dynamodb/table"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Key encoding for BadgerDB that supports proper lexicographic ordering.
// Key format: [tableName][separator][partitionKey][separator][sortKey]
//
// For GSIs: [tableName][$gsi:][gsiName][separator][partitionKey][separator][sortKey][separator][table key]
//
// GSI keys carry the table's primary key as a suffix since several items may
// share one index key. Components are escaped so that the separator (0x00)
// never appears inside them.

const (
	keySeparator byte = 0x00
	gsiMarker         = "$gsi:"
	schemaPrefix      = "$schema"
)

// Key type markers for encoding
const (
	keyTypeString byte = 'S'
	keyTypeNumber byte = 'N'
	keyTypeBinary byte = 'B'
)

type keyEncoder struct {
	tableName string
	indexName string // empty for main table
	keyDefs   table.PrimaryKeyDefinition
	// tableKeys is set for GSIs and identifies the base item.
	tableKeys *table.PrimaryKeyDefinition
}

func (e *keyEncoder) isIndex() bool { return e.indexName != "" }

// tablePrefix returns the prefix for all keys in this table/GSI.
func (e *keyEncoder) tablePrefix() []byte {
	var buf bytes.Buffer
	buf.WriteString(e.tableName)
	if e.indexName != "" {
		buf.WriteString(gsiMarker)
		buf.WriteString(e.indexName)
	}
	buf.WriteByte(keySeparator)
	return buf.Bytes()
}

// partitionPrefix returns a prefix for iterating all items with a given partition key.
func (e *keyEncoder) partitionPrefix(partition types.AttributeValue) ([]byte, error) {
	buf := bytes.NewBuffer(e.tablePrefix())
	pkBytes, err := encodeKeyValue(partition, e.keyDefs.PartitionKey.Kind)
	if err != nil {
		return nil, fmt.Errorf("encode partition key: %w", err)
	}
	buf.Write(pkBytes)
	buf.WriteByte(keySeparator)
	return buf.Bytes(), nil
}

// encodeKey encodes the key of item. ok is false when item lacks one of the
// key attributes, which for a GSI means the item is not projected into it.
func (e *keyEncoder) encodeKey(item map[string]types.AttributeValue) (key []byte, ok bool, err error) {
	part, found := item[e.keyDefs.PartitionKey.Name]
	if !found {
		return nil, false, nil
	}
	prefix, err := e.partitionPrefix(part)
	if err != nil {
		return nil, false, err
	}
	buf := bytes.NewBuffer(prefix)

	if e.keyDefs.SortKey.Name != "" {
		sort, found := item[e.keyDefs.SortKey.Name]
		if !found {
			return nil, false, nil
		}
		skBytes, err := encodeKeyValue(sort, e.keyDefs.SortKey.Kind)
		if err != nil {
			return nil, false, fmt.Errorf("encode sort key: %w", err)
		}
		buf.Write(skBytes)
	}

	if e.tableKeys != nil {
		base := &keyEncoder{keyDefs: *e.tableKeys}
		suffix, ok, err := base.encodeKey(item)
		if err != nil || !ok {
			return nil, ok, err
		}
		buf.WriteByte(keySeparator)
		buf.Write(suffix)
	}
	return buf.Bytes(), true, nil
}

// keyAttributes returns the attributes needed to resume iteration after item.
func (e *keyEncoder) keyAttributes(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	out := e.keyDefs.KeyAttributes(item)
	if e.tableKeys != nil {
		for k, v := range e.tableKeys.KeyAttributes(item) {
			out[k] = v
		}
	}
	return out
}

// encodeKeyValue encodes a key value with proper ordering based on key kind.
func encodeKeyValue(av types.AttributeValue, kind table.KeyKind) ([]byte, error) {
	var buf bytes.Buffer

	switch kind {
	case table.KeyKindS:
		v, ok := av.(*types.AttributeValueMemberS)
		if !ok {
			return nil, fmt.Errorf("expected string for S key, got %T", av)
		}
		buf.WriteByte(keyTypeString)
		buf.Write(escapeBytes([]byte(v.Value)))

	case table.KeyKindN:
		v, ok := av.(*types.AttributeValueMemberN)
		if !ok {
			return nil, fmt.Errorf("expected number for N key, got %T", av)
		}
		encoded, err := encodeNumber(v.Value)
		if err != nil {
			return nil, err
		}
		buf.WriteByte(keyTypeNumber)
		buf.Write(escapeBytes(encoded))

	case table.KeyKindB:
		v, ok := av.(*types.AttributeValueMemberB)
		if !ok {
			return nil, fmt.Errorf("expected binary for B key, got %T", av)
		}
		buf.WriteByte(keyTypeBinary)
		buf.Write(escapeBytes(v.Value))

	default:
		return nil, fmt.Errorf("unsupported key kind: %s", kind)
	}

	return buf.Bytes(), nil
}

func kindOfAttr(av types.AttributeValue) table.KeyKind {
	switch av.(type) {
	case *types.AttributeValueMemberN:
		return table.KeyKindN
	case *types.AttributeValueMemberB:
		return table.KeyKindB
	}
	return table.KeyKindS
}

// encodeNumber encodes a number string for lexicographic ordering.
// Format: [sign byte][big-endian float64 bits], with negative numbers inverted
// so that more negative values sort first.
func encodeNumber(numStr string) ([]byte, error) {
	f, err := strconv.ParseFloat(numStr, 64)
	if err != nil {
		return nil, fmt.Errorf("parse number %q: %w", numStr, err)
	}

	bits := math.Float64bits(f)
	buf := make([]byte, 9)

	if f >= 0 {
		buf[0] = 0x80
		bits ^= (1 << 63)
	} else {
		buf[0] = 0x7F
		bits = ^bits
	}

	binary.BigEndian.PutUint64(buf[1:], bits)
	return buf, nil
}

// escapeBytes escapes null bytes (0x00) in the input to preserve separator integrity.
// Uses 0x01 0x01 for literal 0x00, and 0x01 0x02 for literal 0x01. Byte order
// is preserved.
func escapeBytes(b []byte) []byte {
	var buf bytes.Buffer
	for _, c := range b {
		switch c {
		case 0x00:
			buf.WriteByte(0x01)
			buf.WriteByte(0x01)
		case 0x01:
			buf.WriteByte(0x01)
			buf.WriteByte(0x02)
		default:
			buf.WriteByte(c)
		}
	}
	return buf.Bytes()
}

func schemaKey(tableName string) []byte {
	return []byte(schemaPrefix + string(keySeparator) + tableName)
}
