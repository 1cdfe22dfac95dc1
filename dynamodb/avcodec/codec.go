// Package avcodec serializes DynamoDB attribute values to bytes.
//
// Items are encoded with gob for storage (the local store's values and the
// plaintext of encrypted fields) and with JSON where the bytes leave the
// process (pagination cursors). ToPlain and FromPlain convert to and from the
// untyped values of an ordinary JSON document, for display and hand-written input.
package avcodec

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// value is the serializable mirror of types.AttributeValue.
// T holds the DynamoDB type descriptor, the remaining fields the payload for that type.
type value struct {
	T    string           `json:"t"`
	S    string           `json:"s,omitempty"`
	B    []byte           `json:"b,omitempty"`
	Bool bool             `json:"bool,omitempty"`
	SS   []string         `json:"ss,omitempty"`
	BS   [][]byte         `json:"bs,omitempty"`
	M    map[string]value `json:"m,omitempty"`
	L    []value          `json:"l,omitempty"`
}

func toValue(av types.AttributeValue) (value, error) {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return value{T: "S", S: v.Value}, nil
	case *types.AttributeValueMemberN:
		return value{T: "N", S: v.Value}, nil
	case *types.AttributeValueMemberB:
		return value{T: "B", B: v.Value}, nil
	case *types.AttributeValueMemberBOOL:
		return value{T: "BOOL", Bool: v.Value}, nil
	case *types.AttributeValueMemberNULL:
		return value{T: "NULL", Bool: v.Value}, nil
	case *types.AttributeValueMemberSS:
		return value{T: "SS", SS: v.Value}, nil
	case *types.AttributeValueMemberNS:
		return value{T: "NS", SS: v.Value}, nil
	case *types.AttributeValueMemberBS:
		return value{T: "BS", BS: v.Value}, nil
	case *types.AttributeValueMemberM:
		m := make(map[string]value, len(v.Value))
		for k, inner := range v.Value {
			iv, err := toValue(inner)
			if err != nil {
				return value{}, fmt.Errorf("map key %q: %w", k, err)
			}
			m[k] = iv
		}
		return value{T: "M", M: m}, nil
	case *types.AttributeValueMemberL:
		l := make([]value, len(v.Value))
		for i, inner := range v.Value {
			iv, err := toValue(inner)
			if err != nil {
				return value{}, fmt.Errorf("list index %d: %w", i, err)
			}
			l[i] = iv
		}
		return value{T: "L", L: l}, nil
	default:
		return value{}, fmt.Errorf("unsupported attribute value type: %T", av)
	}
}

func fromValue(v value) (types.AttributeValue, error) {
	switch v.T {
	case "S":
		return &types.AttributeValueMemberS{Value: v.S}, nil
	case "N":
		return &types.AttributeValueMemberN{Value: v.S}, nil
	case "B":
		return &types.AttributeValueMemberB{Value: v.B}, nil
	case "BOOL":
		return &types.AttributeValueMemberBOOL{Value: v.Bool}, nil
	case "NULL":
		return &types.AttributeValueMemberNULL{Value: v.Bool}, nil
	case "SS":
		return &types.AttributeValueMemberSS{Value: v.SS}, nil
	case "NS":
		return &types.AttributeValueMemberNS{Value: v.SS}, nil
	case "BS":
		return &types.AttributeValueMemberBS{Value: v.BS}, nil
	case "M":
		m := make(map[string]types.AttributeValue, len(v.M))
		for k, inner := range v.M {
			av, err := fromValue(inner)
			if err != nil {
				return nil, err
			}
			m[k] = av
		}
		return &types.AttributeValueMemberM{Value: m}, nil
	case "L":
		l := make([]types.AttributeValue, len(v.L))
		for i, inner := range v.L {
			av, err := fromValue(inner)
			if err != nil {
				return nil, err
			}
			l[i] = av
		}
		return &types.AttributeValueMemberL{Value: l}, nil
	default:
		return nil, fmt.Errorf("unsupported serialized type: %q", v.T)
	}
}

func toItem(item map[string]types.AttributeValue) (map[string]value, error) {
	out := make(map[string]value, len(item))
	for k, av := range item {
		v, err := toValue(av)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

func fromItem(in map[string]value) (map[string]types.AttributeValue, error) {
	out := make(map[string]types.AttributeValue, len(in))
	for k, v := range in {
		av, err := fromValue(v)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", k, err)
		}
		out[k] = av
	}
	return out, nil
}

// SerializeItem encodes an item for storage.
func SerializeItem(item map[string]types.AttributeValue) ([]byte, error) {
	v, err := toItem(item)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("encode item: %w", err)
	}
	return buf.Bytes(), nil
}

// DeserializeItem reverses SerializeItem.
func DeserializeItem(data []byte) (map[string]types.AttributeValue, error) {
	var v map[string]value
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&v); err != nil {
		return nil, fmt.Errorf("decode item: %w", err)
	}
	return fromItem(v)
}

// SerializeValue encodes a single attribute value.
func SerializeValue(av types.AttributeValue) ([]byte, error) {
	v, err := toValue(av)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	return buf.Bytes(), nil
}

// DeserializeValue reverses SerializeValue.
func DeserializeValue(data []byte) (types.AttributeValue, error) {
	var v value
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&v); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	return fromValue(v)
}

// MarshalJSON encodes an item as JSON, keeping attribute types.
func MarshalJSON(item map[string]types.AttributeValue) ([]byte, error) {
	v, err := toItem(item)
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

// UnmarshalJSON reverses MarshalJSON.
func UnmarshalJSON(data []byte) (map[string]types.AttributeValue, error) {
	var v map[string]value
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode json item: %w", err)
	}
	return fromItem(v)
}

// ToPlain converts an item to plain Go values: numbers become float64,
// binary values []byte and sets slices.
func ToPlain(item map[string]types.AttributeValue) (map[string]any, error) {
	var doc map[string]any
	if err := attributevalue.UnmarshalMap(item, &doc); err != nil {
		return nil, fmt.Errorf("convert item: %w", err)
	}
	return doc, nil
}

// FromPlain marshals a decoded JSON object into an item.
func FromPlain(doc map[string]any) (map[string]types.AttributeValue, error) {
	item, err := attributevalue.MarshalMap(doc)
	if err != nil {
		return nil, fmt.Errorf("convert document: %w", err)
	}
	return item, nil
}
