// Package fieldcrypt encrypts individual item attributes with AES-256-GCM.
//
// Each encrypted attribute is replaced by a binary value holding the nonce
// followed by the sealed gob encoding of the original attribute value. The
// names of the encrypted attributes are kept in a string set under the
// metadata field, so Decrypt knows what to open.
package fieldcrypt

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"sort"

	"github.com/acksell/tablekit/dynamodb/avcodec"
	"github.com/acksell/tablekit/dynamodb/ddberrors"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog"
)

const DefaultMetadataField = "__enc"

// ErrDecrypt is returned when a field cannot be opened, e.g. with the wrong key.
var ErrDecrypt = errors.New("field decryption failed")

type Encrypter struct {
	aead          cipher.AEAD
	metadataField string
	log           zerolog.Logger
}

type options struct {
	metadataField string
	log           zerolog.Logger
}

type Option func(*options)

// WithMetadataField names the attribute listing the encrypted fields. It must
// match the table's encryption metadata field.
func WithMetadataField(name string) Option {
	return func(o *options) {
		o.metadataField = name
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(o *options) {
		o.log = log
	}
}

// New derives the AES-256 key as the SHA-256 digest of passphrase.
func New(passphrase string, opts ...Option) (*Encrypter, error) {
	if passphrase == "" {
		return nil, ddberrors.NewValidationError("passphrase", "passphrase is required")
	}
	o := options{metadataField: DefaultMetadataField, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.metadataField == "" {
		return nil, ddberrors.NewValidationError("metadataField", "metadata field is required")
	}
	key := sha256.Sum256([]byte(passphrase))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return &Encrypter{aead: aead, metadataField: o.metadataField, log: o.log}, nil
}

// Encrypt returns a copy of item with fields sealed. Fields absent from item
// are skipped. item is not modified.
func (e *Encrypter) Encrypt(ctx context.Context, item map[string]types.AttributeValue, fields []string) (map[string]types.AttributeValue, error) {
	out := make(map[string]types.AttributeValue, len(item)+1)
	for k, v := range item {
		out[k] = v
	}
	var sealed []string
	for _, f := range fields {
		if f == e.metadataField {
			return nil, ddberrors.NewValidationError(f, "the metadata field cannot be encrypted")
		}
		v, ok := item[f]
		if !ok {
			continue
		}
		plain, err := avcodec.SerializeValue(v)
		if err != nil {
			return nil, fmt.Errorf("encode field %q: %w", f, err)
		}
		nonce := make([]byte, e.aead.NonceSize())
		if _, err := rand.Read(nonce); err != nil {
			return nil, fmt.Errorf("read nonce: %w", err)
		}
		// additional data is the field name
		ct := e.aead.Seal(nonce, nonce, plain, []byte(f))
		out[f] = &types.AttributeValueMemberB{Value: ct}
		sealed = append(sealed, f)
	}
	if len(sealed) == 0 {
		return out, nil
	}
	sort.Strings(sealed)
	out[e.metadataField] = &types.AttributeValueMemberSS{Value: sealed}
	return out, nil
}

// Decrypt opens the fields listed in the metadata field and drops the
// metadata. Items without metadata are returned unchanged.
func (e *Encrypter) Decrypt(ctx context.Context, item map[string]types.AttributeValue) (map[string]types.AttributeValue, error) {
	meta, ok := item[e.metadataField]
	if !ok {
		return item, nil
	}
	set, ok := meta.(*types.AttributeValueMemberSS)
	if !ok {
		return nil, fmt.Errorf("%w: metadata field %q is %T, not a string set", ErrDecrypt, e.metadataField, meta)
	}

	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		if k != e.metadataField {
			out[k] = v
		}
	}
	for _, f := range set.Value {
		v, ok := item[f]
		if !ok {
			// projected away
			continue
		}
		b, ok := v.(*types.AttributeValueMemberB)
		if !ok {
			return nil, fmt.Errorf("%w: field %q is %T, not binary", ErrDecrypt, f, v)
		}
		n := e.aead.NonceSize()
		if len(b.Value) < n {
			return nil, fmt.Errorf("%w: field %q is too short", ErrDecrypt, f)
		}
		plain, err := e.aead.Open(nil, b.Value[:n], b.Value[n:], []byte(f))
		if err != nil {
			e.log.Debug().Str("field", f).Msg("open failed")
			return nil, fmt.Errorf("%w: field %q: %w", ErrDecrypt, f, err)
		}
		av, err := avcodec.DeserializeValue(plain)
		if err != nil {
			return nil, fmt.Errorf("%w: field %q: %w", ErrDecrypt, f, err)
		}
		out[f] = av
	}
	return out, nil
}
