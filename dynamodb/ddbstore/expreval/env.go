// Package expreval parses and evaluates DynamoDB expressions against items:
// conditions and filters, key conditions, update expressions and projections.
package expreval

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type Item = map[string]types.AttributeValue

// Env resolves the placeholders of one request and records which were used.
type Env struct {
	Names  map[string]string
	Values map[string]types.AttributeValue

	used map[string]bool
}

func NewEnv(names map[string]string, values map[string]types.AttributeValue) *Env {
	return &Env{Names: names, Values: values, used: make(map[string]bool)}
}

func (e *Env) name(placeholder string) (string, error) {
	n, ok := e.Names[placeholder]
	if !ok {
		return "", fmt.Errorf("expression attribute name %s is not defined", placeholder)
	}
	e.used[placeholder] = true
	return n, nil
}

func (e *Env) value(placeholder string) (types.AttributeValue, error) {
	v, ok := e.Values[placeholder]
	if !ok {
		return nil, fmt.Errorf("expression attribute value %s is not defined", placeholder)
	}
	e.used[placeholder] = true
	return v, nil
}

// CheckUnused fails when a supplied name or value placeholder was not referenced
// by any expression parsed with e, mirroring the service's validation.
func (e *Env) CheckUnused() error {
	var names, values []string
	for k := range e.Names {
		if !e.used[k] {
			names = append(names, k)
		}
	}
	for k := range e.Values {
		if !e.used[k] {
			values = append(values, k)
		}
	}
	if len(names) == 0 && len(values) == 0 {
		return nil
	}
	sort.Strings(names)
	sort.Strings(values)
	if len(values) > 0 {
		return fmt.Errorf("value provided in ExpressionAttributeValues unused in expressions: keys: {%s}", strings.Join(values, ", "))
	}
	return fmt.Errorf("value provided in ExpressionAttributeNames unused in expressions: keys: {%s}", strings.Join(names, ", "))
}

// PathElem is one step of a document path: a map key or a list index.
type PathElem struct {
	Name    string
	Index   int
	IsIndex bool
}

type Path []PathElem

func (p Path) String() string {
	var b strings.Builder
	for i, e := range p {
		if e.IsIndex {
			fmt.Fprintf(&b, "[%d]", e.Index)
			continue
		}
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(e.Name)
	}
	return b.String()
}

// Resolve looks up the value at p in doc.
func (p Path) Resolve(doc Item) (types.AttributeValue, bool) {
	if len(p) == 0 || p[0].IsIndex {
		return nil, false
	}
	cur, ok := doc[p[0].Name]
	if !ok {
		return nil, false
	}
	for _, e := range p[1:] {
		switch v := cur.(type) {
		case *types.AttributeValueMemberM:
			if e.IsIndex {
				return nil, false
			}
			cur, ok = v.Value[e.Name]
			if !ok {
				return nil, false
			}
		case *types.AttributeValueMemberL:
			if !e.IsIndex || e.Index < 0 || e.Index >= len(v.Value) {
				return nil, false
			}
			cur = v.Value[e.Index]
		default:
			return nil, false
		}
	}
	return cur, true
}
