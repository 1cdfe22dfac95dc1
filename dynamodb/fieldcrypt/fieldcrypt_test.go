package fieldcrypt

import (
	"context"
	"testing"

	"github.com/acksell/tablekit/dynamodb/ddberrors"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testItem() map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk":    &types.AttributeValueMemberS{Value: "musician-1"},
		"sk":    &types.AttributeValueMemberS{Value: "musician-1"},
		"name":  &types.AttributeValueMemberS{Value: "Bob Marley"},
		"plays": &types.AttributeValueMemberN{Value: "42"},
		"tags": &types.AttributeValueMemberM{Value: map[string]types.AttributeValue{
			"genre": &types.AttributeValueMemberS{Value: "reggae"},
		}},
	}
}

func TestEncrypter_RoundTrip(t *testing.T) {
	ctx := context.Background()
	enc, err := New("secret")
	require.NoError(t, err)

	item := testItem()
	sealed, err := enc.Encrypt(ctx, item, []string{"name", "plays", "tags", "absent"})
	require.NoError(t, err)

	assert.Equal(t, testItem(), item, "input is not modified")
	assert.Equal(t, item["pk"], sealed["pk"])
	for _, f := range []string{"name", "plays", "tags"} {
		assert.IsType(t, &types.AttributeValueMemberB{}, sealed[f], f)
	}
	assert.NotContains(t, sealed, "absent")
	assert.Equal(t, &types.AttributeValueMemberSS{Value: []string{"name", "plays", "tags"}}, sealed[DefaultMetadataField])

	opened, err := enc.Decrypt(ctx, sealed)
	require.NoError(t, err)
	assert.Equal(t, item, opened)
}

func TestEncrypter_NoncesDiffer(t *testing.T) {
	ctx := context.Background()
	enc, err := New("secret")
	require.NoError(t, err)

	a, err := enc.Encrypt(ctx, testItem(), []string{"name"})
	require.NoError(t, err)
	b, err := enc.Encrypt(ctx, testItem(), []string{"name"})
	require.NoError(t, err)
	assert.NotEqual(t, a["name"], b["name"])
}

func TestEncrypter_Decrypt(t *testing.T) {
	ctx := context.Background()
	enc, err := New("secret", WithMetadataField("meta"))
	require.NoError(t, err)
	sealed, err := enc.Encrypt(ctx, testItem(), []string{"name"})
	require.NoError(t, err)

	t.Run("plain items pass through", func(t *testing.T) {
		out, err := enc.Decrypt(ctx, testItem())
		require.NoError(t, err)
		assert.Equal(t, testItem(), out)
	})

	t.Run("wrong key", func(t *testing.T) {
		other, err := New("other", WithMetadataField("meta"))
		require.NoError(t, err)
		_, err = other.Decrypt(ctx, sealed)
		assert.ErrorIs(t, err, ErrDecrypt)
	})

	t.Run("swapped field", func(t *testing.T) {
		swapped := make(map[string]types.AttributeValue, len(sealed))
		for k, v := range sealed {
			swapped[k] = v
		}
		swapped["meta"] = &types.AttributeValueMemberSS{Value: []string{"alias"}}
		swapped["alias"] = sealed["name"]
		_, err := enc.Decrypt(ctx, swapped)
		assert.ErrorIs(t, err, ErrDecrypt)
	})

	t.Run("projected away", func(t *testing.T) {
		projected := map[string]types.AttributeValue{"pk": sealed["pk"], "meta": sealed["meta"]}
		out, err := enc.Decrypt(ctx, projected)
		require.NoError(t, err)
		assert.Equal(t, map[string]types.AttributeValue{"pk": sealed["pk"]}, out)
	})
}

func TestNew_Validation(t *testing.T) {
	_, err := New("")
	assert.True(t, ddberrors.IsValidation(err))
	_, err = New("secret", WithMetadataField(""))
	assert.True(t, ddberrors.IsValidation(err))

	enc, err := New("secret")
	require.NoError(t, err)
	_, err = enc.Encrypt(context.Background(), testItem(), []string{DefaultMetadataField})
	assert.True(t, ddberrors.IsValidation(err))
}
