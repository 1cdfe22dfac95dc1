package avcodec

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleItem() map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk":     &types.AttributeValueMemberS{Value: "musician-1"},
		"n":      &types.AttributeValueMemberN{Value: "12.5"},
		"raw":    &types.AttributeValueMemberB{Value: []byte{0, 1, 2}},
		"ok":     &types.AttributeValueMemberBOOL{Value: true},
		"tags":   &types.AttributeValueMemberSS{Value: []string{"a", "b"}},
		"scores": &types.AttributeValueMemberNS{Value: []string{"1", "2"}},
		"nested": &types.AttributeValueMemberM{Value: map[string]types.AttributeValue{
			"list": &types.AttributeValueMemberL{Value: []types.AttributeValue{
				&types.AttributeValueMemberS{Value: "x"},
				&types.AttributeValueMemberNULL{Value: true},
			}},
		}},
	}
}

func TestSerializeItem(t *testing.T) {
	item := sampleItem()
	data, err := SerializeItem(item)
	require.NoError(t, err)

	got, err := DeserializeItem(data)
	require.NoError(t, err)
	assert.Equal(t, item, got)
}

func TestMarshalJSON(t *testing.T) {
	item := sampleItem()
	data, err := MarshalJSON(item)
	require.NoError(t, err)

	got, err := UnmarshalJSON(data)
	require.NoError(t, err)
	assert.Equal(t, item, got)
}

func TestSerializeValue(t *testing.T) {
	av := &types.AttributeValueMemberS{Value: "secret"}
	data, err := SerializeValue(av)
	require.NoError(t, err)

	got, err := DeserializeValue(data)
	require.NoError(t, err)
	assert.Equal(t, av, got)
}

func TestDeserializeItem_Garbage(t *testing.T) {
	_, err := DeserializeItem([]byte("not gob"))
	assert.Error(t, err)

	_, err = UnmarshalJSON([]byte(`{"a":{"t":"X"}}`))
	assert.Error(t, err)
}

func TestPlain(t *testing.T) {
	item, err := FromPlain(map[string]any{
		"title": "Exodus",
		"year":  float64(1977),
		"live":  false,
		"tags":  []any{"reggae"},
	})
	require.NoError(t, err)
	assert.Equal(t, &types.AttributeValueMemberS{Value: "Exodus"}, item["title"])
	assert.Equal(t, &types.AttributeValueMemberN{Value: "1977"}, item["year"])
	assert.Equal(t, &types.AttributeValueMemberBOOL{Value: false}, item["live"])

	doc, err := ToPlain(item)
	require.NoError(t, err)
	assert.Equal(t, "Exodus", doc["title"])
	assert.Equal(t, float64(1977), doc["year"])
	assert.Equal(t, []any{"reggae"}, doc["tags"])
}
