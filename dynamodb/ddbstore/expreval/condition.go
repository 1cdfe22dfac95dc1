package expreval

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Condition is a parsed condition or filter expression.
type Condition interface {
	Eval(doc Item) bool
}

// Operand yields a value from the document or the request.
type Operand interface {
	value(doc Item) (types.AttributeValue, bool)
}

type pathOperand struct{ path Path }

func (p pathOperand) value(doc Item) (types.AttributeValue, bool) {
	return p.path.Resolve(doc)
}

type literalOperand struct{ av types.AttributeValue }

func (l literalOperand) value(Item) (types.AttributeValue, bool) {
	return l.av, true
}

type sizeOperand struct{ path Path }

func (s sizeOperand) value(doc Item) (types.AttributeValue, bool) {
	v, ok := s.path.Resolve(doc)
	if !ok {
		return nil, false
	}
	n, ok := size(v)
	if !ok {
		return nil, false
	}
	return &types.AttributeValueMemberN{Value: strconv.Itoa(n)}, true
}

type andCond struct{ left, right Condition }

func (c andCond) Eval(doc Item) bool { return c.left.Eval(doc) && c.right.Eval(doc) }

type orCond struct{ left, right Condition }

func (c orCond) Eval(doc Item) bool { return c.left.Eval(doc) || c.right.Eval(doc) }

type notCond struct{ inner Condition }

func (c notCond) Eval(doc Item) bool { return !c.inner.Eval(doc) }

type compareCond struct {
	op          string
	left, right Operand
}

func (c compareCond) Eval(doc Item) bool {
	l, ok := c.left.value(doc)
	if !ok {
		return false
	}
	r, ok := c.right.value(doc)
	if !ok {
		return false
	}
	switch c.op {
	case "=":
		return Equal(l, r)
	case "<>":
		return !Equal(l, r)
	}
	cmp, ok := Compare(l, r)
	if !ok {
		return false
	}
	switch c.op {
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	case ">":
		return cmp > 0
	case ">=":
		return cmp >= 0
	}
	return false
}

type betweenCond struct {
	operand, low, high Operand
}

func (c betweenCond) Eval(doc Item) bool {
	v, ok := c.operand.value(doc)
	if !ok {
		return false
	}
	lo, ok := c.low.value(doc)
	if !ok {
		return false
	}
	hi, ok := c.high.value(doc)
	if !ok {
		return false
	}
	a, ok := Compare(lo, v)
	if !ok || a > 0 {
		return false
	}
	b, ok := Compare(v, hi)
	return ok && b <= 0
}

type inCond struct {
	operand Operand
	list    []Operand
}

func (c inCond) Eval(doc Item) bool {
	v, ok := c.operand.value(doc)
	if !ok {
		return false
	}
	for _, o := range c.list {
		if x, ok := o.value(doc); ok && Equal(v, x) {
			return true
		}
	}
	return false
}

type funcCond struct {
	name string
	args []Operand
}

func (c funcCond) Eval(doc Item) bool {
	switch c.name {
	case "attribute_exists":
		_, ok := c.args[0].value(doc)
		return ok
	case "attribute_not_exists":
		_, ok := c.args[0].value(doc)
		return !ok
	}
	a, ok := c.args[0].value(doc)
	if !ok {
		return false
	}
	b, ok := c.args[1].value(doc)
	if !ok {
		return false
	}
	switch c.name {
	case "begins_with":
		return beginsWith(a, b)
	case "contains":
		return contains(a, b)
	case "attribute_type":
		s, ok := b.(*types.AttributeValueMemberS)
		return ok && typeName(a) == s.Value
	}
	return false
}

// ParseCondition parses a condition or filter expression.
func ParseCondition(input string, env *Env) (Condition, error) {
	t, err := newTokens(input, env)
	if err != nil {
		return nil, err
	}
	c, err := t.parseOr()
	if err != nil {
		return nil, fmt.Errorf("invalid condition %q: %w", input, err)
	}
	if err := t.done(); err != nil {
		return nil, fmt.Errorf("invalid condition %q: %w", input, err)
	}
	return c, nil
}

// EvalCondition parses input and evaluates it against doc. A nil doc behaves
// like a missing item.
func EvalCondition(input string, env *Env, doc Item) (bool, error) {
	c, err := ParseCondition(input, env)
	if err != nil {
		return false, err
	}
	return c.Eval(doc), nil
}

func (t *tokens) parseOr() (Condition, error) {
	left, err := t.parseAnd()
	if err != nil {
		return nil, err
	}
	for t.keyword("OR") {
		t.next()
		right, err := t.parseAnd()
		if err != nil {
			return nil, err
		}
		left = orCond{left, right}
	}
	return left, nil
}

func (t *tokens) parseAnd() (Condition, error) {
	left, err := t.parseNot()
	if err != nil {
		return nil, err
	}
	for t.keyword("AND") {
		t.next()
		right, err := t.parseNot()
		if err != nil {
			return nil, err
		}
		left = andCond{left, right}
	}
	return left, nil
}

func (t *tokens) parseNot() (Condition, error) {
	if t.keyword("NOT") {
		t.next()
		inner, err := t.parseNot()
		if err != nil {
			return nil, err
		}
		return notCond{inner}, nil
	}
	return t.parsePrimary()
}

var conditionFuncs = map[string]int{
	"attribute_exists":     1,
	"attribute_not_exists": 1,
	"attribute_type":       2,
	"begins_with":          2,
	"contains":             2,
}

func (t *tokens) parsePrimary() (Condition, error) {
	tok := t.peek()
	if tok.kind == tokLParen {
		t.next()
		c, err := t.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := t.expect(tokRParen, ")"); err != nil {
			return nil, err
		}
		return c, nil
	}
	if tok.kind == tokIdent && t.peekAt(1).kind == tokLParen {
		name := strings.ToLower(tok.text)
		if arity, ok := conditionFuncs[name]; ok {
			t.next()
			t.next()
			args, err := t.parseArgs()
			if err != nil {
				return nil, err
			}
			if len(args) != arity {
				return nil, fmt.Errorf("%s takes %d arguments, got %d", name, arity, len(args))
			}
			if arity == 1 {
				if _, ok := args[0].(pathOperand); !ok {
					return nil, fmt.Errorf("%s requires an attribute path", name)
				}
			}
			return funcCond{name: name, args: args}, nil
		}
	}

	left, err := t.parseOperand()
	if err != nil {
		return nil, err
	}
	switch {
	case t.peek().kind == tokCmp:
		op := t.next().text
		right, err := t.parseOperand()
		if err != nil {
			return nil, err
		}
		return compareCond{op: op, left: left, right: right}, nil
	case t.keyword("BETWEEN"):
		t.next()
		low, err := t.parseOperand()
		if err != nil {
			return nil, err
		}
		if !t.keyword("AND") {
			return nil, fmt.Errorf("expected AND in BETWEEN, got %s", t.peek())
		}
		t.next()
		high, err := t.parseOperand()
		if err != nil {
			return nil, err
		}
		return betweenCond{operand: left, low: low, high: high}, nil
	case t.keyword("IN"):
		t.next()
		if _, err := t.expect(tokLParen, "("); err != nil {
			return nil, err
		}
		list, err := t.parseArgs()
		if err != nil {
			return nil, err
		}
		return inCond{operand: left, list: list}, nil
	}
	return nil, fmt.Errorf("expected comparison, got %s", t.peek())
}

// parseArgs reads a comma separated operand list up to and including ')'.
func (t *tokens) parseArgs() ([]Operand, error) {
	var args []Operand
	for {
		o, err := t.parseOperand()
		if err != nil {
			return nil, err
		}
		args = append(args, o)
		tok := t.next()
		switch tok.kind {
		case tokComma:
			continue
		case tokRParen:
			return args, nil
		default:
			return nil, fmt.Errorf("expected , or ), got %s", tok)
		}
	}
}

func (t *tokens) parseOperand() (Operand, error) {
	tok := t.peek()
	switch tok.kind {
	case tokValue:
		t.next()
		av, err := t.env.value(tok.text)
		if err != nil {
			return nil, err
		}
		return literalOperand{av}, nil
	case tokIdent:
		if strings.EqualFold(tok.text, "size") && t.peekAt(1).kind == tokLParen {
			t.next()
			t.next()
			p, err := t.parsePath()
			if err != nil {
				return nil, err
			}
			if _, err := t.expect(tokRParen, ")"); err != nil {
				return nil, err
			}
			return sizeOperand{p}, nil
		}
		fallthrough
	case tokName:
		p, err := t.parsePath()
		if err != nil {
			return nil, err
		}
		return pathOperand{p}, nil
	}
	return nil, fmt.Errorf("expected operand, got %s", tok)
}
