package ddbsdk

import (
	"encoding/base64"
	"fmt"

	"github.com/acksell/tablekit/dynamodb/avcodec"
	"github.com/acksell/tablekit/dynamodb/ddberrors"
)

// EncodeCursor renders a LastEvaluatedKey as an opaque string. An empty key
// yields the empty cursor.
func EncodeCursor(lastKey Item) (string, error) {
	if len(lastKey) == 0 {
		return "", nil
	}
	raw, err := avcodec.MarshalJSON(lastKey)
	if err != nil {
		return "", fmt.Errorf("encode cursor: %w", err)
	}
	return base64.RawStdEncoding.EncodeToString(raw), nil
}

// DecodeCursor reverses EncodeCursor. The empty cursor decodes to nil.
func DecodeCursor(cursor string) (Item, error) {
	if cursor == "" {
		return nil, nil
	}
	raw, err := base64.RawStdEncoding.DecodeString(cursor)
	if err != nil {
		return nil, ddberrors.NewValidationError("cursor", "cursor is not valid base64")
	}
	key, err := avcodec.UnmarshalJSON(raw)
	if err != nil {
		return nil, ddberrors.NewValidationError("cursor", "cursor does not hold a key: "+err.Error())
	}
	return key, nil
}
