// Package expr builds DynamoDB condition, filter, key-condition and update
// expressions.
//
// Attribute names are substituted as #<field>, one placeholder per field no
// matter how often the field is used. Values are substituted as :v1, :v2, ...
// with a fresh placeholder for every use, equal values included.
package expr

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Attributes holds the substitution maps shared by the expressions of one request.
type Attributes struct {
	names   map[string]string // placeholder -> attribute name
	byField map[string]string // attribute name -> placeholder
	values  map[string]types.AttributeValue
	next    int
}

func NewAttributes() *Attributes {
	return &Attributes{
		names:   make(map[string]string),
		byField: make(map[string]string),
		values:  make(map[string]types.AttributeValue),
	}
}

// Name returns the placeholder for field, allocating it on first use.
func (a *Attributes) Name(field string) string {
	if p, ok := a.byField[field]; ok {
		return p
	}
	base := "#" + sanitize(field)
	p := base
	for i := 1; ; i++ {
		if _, taken := a.names[p]; !taken {
			break
		}
		p = base + "_" + strconv.Itoa(i)
	}
	a.names[p] = field
	a.byField[field] = p
	return p
}

// Path renders a nested attribute path, one name placeholder per segment.
func (a *Attributes) Path(path []string) string {
	parts := make([]string, len(path))
	for i, seg := range path {
		parts[i] = a.Name(seg)
	}
	return strings.Join(parts, ".")
}

// Value allocates a new value placeholder. v is marshalled with attributevalue
// unless it already is an AttributeValue.
func (a *Attributes) Value(v any) (string, error) {
	av, ok := v.(types.AttributeValue)
	if !ok {
		var err error
		av, err = attributevalue.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("marshal expression value: %w", err)
		}
		if av == nil {
			av = &types.AttributeValueMemberNULL{Value: true}
		}
	}
	a.next++
	p := ":v" + strconv.Itoa(a.next)
	a.values[p] = av
	return p, nil
}

// Names returns the name map for the request, nil when empty.
func (a *Attributes) Names() map[string]string {
	if len(a.names) == 0 {
		return nil
	}
	out := make(map[string]string, len(a.names))
	for k, v := range a.names {
		out[k] = v
	}
	return out
}

// Values returns the value map for the request, nil when empty.
func (a *Attributes) Values() map[string]types.AttributeValue {
	if len(a.values) == 0 {
		return nil
	}
	out := make(map[string]types.AttributeValue, len(a.values))
	for k, v := range a.values {
		out[k] = v
	}
	return out
}

// Clone copies the substitution state, so a request can add placeholders
// without touching a builder the caller may reuse.
func (a *Attributes) Clone() *Attributes {
	c := NewAttributes()
	for k, v := range a.names {
		c.names[k] = v
	}
	for k, v := range a.byField {
		c.byField[k] = v
	}
	for k, v := range a.values {
		c.values[k] = v
	}
	c.next = a.next
	return c
}

func sanitize(field string) string {
	var b strings.Builder
	for _, r := range field {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}

// KeyCondition renders the key condition of a query: partition equality and,
// when prefix is set, a begins_with on the sort key.
func KeyCondition(a *Attributes, partitionKey string, partition any, sortKey, prefix string) (string, error) {
	v, err := a.Value(partition)
	if err != nil {
		return "", err
	}
	cond := a.Name(partitionKey) + " = " + v
	if prefix == "" || sortKey == "" {
		return cond, nil
	}
	pv, err := a.Value(prefix)
	if err != nil {
		return "", err
	}
	return cond + " AND begins_with(" + a.Name(sortKey) + ", " + pv + ")", nil
}
