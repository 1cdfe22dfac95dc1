package expreval

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// SortCondition restricts the sort key of a query.
// Op is one of =, <, <=, >, >=, BETWEEN or begins_with.
type SortCondition struct {
	Op     string
	Values []types.AttributeValue
}

// Match reports whether sk satisfies the condition.
func (s *SortCondition) Match(sk types.AttributeValue) bool {
	if s == nil {
		return true
	}
	switch s.Op {
	case "begins_with":
		return beginsWith(sk, s.Values[0])
	case "BETWEEN":
		lo, ok := Compare(s.Values[0], sk)
		if !ok || lo > 0 {
			return false
		}
		hi, ok := Compare(sk, s.Values[1])
		return ok && hi <= 0
	case "=":
		return Equal(sk, s.Values[0])
	}
	c, ok := Compare(sk, s.Values[0])
	if !ok {
		return false
	}
	switch s.Op {
	case "<":
		return c < 0
	case "<=":
		return c <= 0
	case ">":
		return c > 0
	case ">=":
		return c >= 0
	}
	return false
}

// KeyCondition is a query key condition split into its two parts.
type KeyCondition struct {
	Partition types.AttributeValue
	Sort      *SortCondition
}

// ParseKeyCondition parses a key condition expression for a table or index
// keyed on partitionKey and sortKey.
func ParseKeyCondition(input string, env *Env, partitionKey, sortKey string) (*KeyCondition, error) {
	c, err := ParseCondition(input, env)
	if err != nil {
		return nil, err
	}
	var parts []Condition
	switch v := c.(type) {
	case andCond:
		parts = []Condition{v.left, v.right}
	default:
		parts = []Condition{c}
	}

	kc := &KeyCondition{}
	for _, p := range parts {
		if err := kc.add(p, partitionKey, sortKey); err != nil {
			return nil, fmt.Errorf("invalid key condition %q: %w", input, err)
		}
	}
	if kc.Partition == nil {
		return nil, fmt.Errorf("invalid key condition %q: partition key %q must be matched with =", input, partitionKey)
	}
	return kc, nil
}

func (kc *KeyCondition) add(c Condition, partitionKey, sortKey string) error {
	switch v := c.(type) {
	case compareCond:
		name, val, ok := keyOperands(v.left, v.right)
		if !ok {
			return fmt.Errorf("key comparisons need an attribute and a value")
		}
		if name == partitionKey {
			if v.op != "=" || kc.Partition != nil {
				return fmt.Errorf("partition key supports a single equality")
			}
			kc.Partition = val
			return nil
		}
		if name != sortKey || sortKey == "" || v.op == "<>" {
			return fmt.Errorf("unsupported key condition on %q", name)
		}
		return kc.setSort(&SortCondition{Op: v.op, Values: []types.AttributeValue{val}})
	case betweenCond:
		p, ok := v.operand.(pathOperand)
		lo, okLo := v.low.(literalOperand)
		hi, okHi := v.high.(literalOperand)
		if !ok || !okLo || !okHi || len(p.path) != 1 || p.path[0].Name != sortKey {
			return fmt.Errorf("BETWEEN is only supported on the sort key")
		}
		return kc.setSort(&SortCondition{Op: "BETWEEN", Values: []types.AttributeValue{lo.av, hi.av}})
	case funcCond:
		if v.name != "begins_with" {
			return fmt.Errorf("function %s is not allowed in key conditions", v.name)
		}
		name, val, ok := keyOperands(v.args[0], v.args[1])
		if !ok || name != sortKey {
			return fmt.Errorf("begins_with is only supported on the sort key")
		}
		return kc.setSort(&SortCondition{Op: "begins_with", Values: []types.AttributeValue{val}})
	}
	return fmt.Errorf("unsupported key condition")
}

func (kc *KeyCondition) setSort(s *SortCondition) error {
	if kc.Sort != nil {
		return fmt.Errorf("only one sort key condition is allowed")
	}
	kc.Sort = s
	return nil
}

func keyOperands(a, b Operand) (string, types.AttributeValue, bool) {
	p, ok := a.(pathOperand)
	if !ok || len(p.path) != 1 || p.path[0].IsIndex {
		return "", nil, false
	}
	l, ok := b.(literalOperand)
	if !ok {
		return "", nil, false
	}
	return p.path[0].Name, l.av, true
}
