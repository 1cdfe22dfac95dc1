package expreval

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Projection is a parsed projection expression.
type Projection []Path

// ParseProjection parses a comma separated list of document paths.
func ParseProjection(input string, env *Env) (Projection, error) {
	t, err := newTokens(input, env)
	if err != nil {
		return nil, err
	}
	var out Projection
	for {
		p, err := t.parsePath()
		if err != nil {
			return nil, fmt.Errorf("invalid projection %q: %w", input, err)
		}
		out = append(out, p)
		if t.peek().kind != tokComma {
			break
		}
		t.next()
	}
	if err := t.done(); err != nil {
		return nil, fmt.Errorf("invalid projection %q: %w", input, err)
	}
	return out, nil
}

// Apply returns the subset of doc named by the projection. Nested paths keep
// their enclosing maps; list elements are compacted in index order.
func (p Projection) Apply(doc Item) Item {
	out := make(Item)
	for _, path := range p {
		v, ok := path.Resolve(doc)
		if !ok {
			continue
		}
		if len(path) == 1 {
			out[path[0].Name] = deepCopy(v)
			continue
		}
		merge(out, path, deepCopy(v))
	}
	return out
}

func merge(out Item, path Path, v types.AttributeValue) {
	head := path[0].Name
	if len(path) == 1 {
		out[head] = v
		return
	}
	next := path[1]
	if next.IsIndex {
		l, _ := out[head].(*types.AttributeValueMemberL)
		if l == nil {
			l = &types.AttributeValueMemberL{}
			out[head] = l
		}
		if len(path) == 2 {
			l.Value = append(l.Value, v)
			return
		}
		m := &types.AttributeValueMemberM{Value: make(Item)}
		l.Value = append(l.Value, m)
		mergeInto(m, path[2:], v)
		return
	}
	m, _ := out[head].(*types.AttributeValueMemberM)
	if m == nil {
		m = &types.AttributeValueMemberM{Value: make(Item)}
		out[head] = m
	}
	merge(m.Value, path[1:], v)
}

func mergeInto(m *types.AttributeValueMemberM, path Path, v types.AttributeValue) {
	if path[0].IsIndex {
		return
	}
	merge(m.Value, path, v)
}
