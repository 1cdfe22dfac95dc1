package expreval

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type updateAction struct {
	kind  string // SET, REMOVE, ADD, DELETE
	path  Path
	value valueExpr
}

// valueExpr is the right hand side of a SET action.
type valueExpr interface {
	eval(doc Item) (types.AttributeValue, error)
}

type operandExpr struct{ op Operand }

func (o operandExpr) eval(doc Item) (types.AttributeValue, error) {
	v, ok := o.op.value(doc)
	if !ok {
		return nil, fmt.Errorf("the provided expression refers to an attribute that does not exist in the item")
	}
	return v, nil
}

type arithExpr struct {
	op          string
	left, right valueExpr
}

func (a arithExpr) eval(doc Item) (types.AttributeValue, error) {
	l, err := a.left.eval(doc)
	if err != nil {
		return nil, err
	}
	r, err := a.right.eval(doc)
	if err != nil {
		return nil, err
	}
	ln, ok1 := l.(*types.AttributeValueMemberN)
	rn, ok2 := r.(*types.AttributeValueMemberN)
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("incorrect operand type for operator %s", a.op)
	}
	x, ok1 := parseNumber(ln.Value)
	y, ok2 := parseNumber(rn.Value)
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("invalid number operand")
	}
	res := new(big.Float).SetPrec(128)
	if a.op == "+" {
		res.Add(x, y)
	} else {
		res.Sub(x, y)
	}
	return &types.AttributeValueMemberN{Value: res.Text('f', -1)}, nil
}

type ifNotExistsExpr struct {
	path     Path
	fallback valueExpr
}

func (e ifNotExistsExpr) eval(doc Item) (types.AttributeValue, error) {
	if v, ok := e.path.Resolve(doc); ok {
		return v, nil
	}
	return e.fallback.eval(doc)
}

type listAppendExpr struct{ a, b valueExpr }

func (e listAppendExpr) eval(doc Item) (types.AttributeValue, error) {
	a, err := e.a.eval(doc)
	if err != nil {
		return nil, err
	}
	b, err := e.b.eval(doc)
	if err != nil {
		return nil, err
	}
	la, ok1 := a.(*types.AttributeValueMemberL)
	lb, ok2 := b.(*types.AttributeValueMemberL)
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("list_append requires two lists")
	}
	out := make([]types.AttributeValue, 0, len(la.Value)+len(lb.Value))
	out = append(out, la.Value...)
	out = append(out, lb.Value...)
	return &types.AttributeValueMemberL{Value: out}, nil
}

// ParseUpdate parses an update expression.
func ParseUpdate(input string, env *Env) (*Update, error) {
	t, err := newTokens(input, env)
	if err != nil {
		return nil, err
	}
	u := &Update{}
	seen := make(map[string]bool)
	for t.peek().kind != tokEOF {
		tok, err := t.expect(tokIdent, "SET, REMOVE, ADD or DELETE")
		if err != nil {
			return nil, fmt.Errorf("invalid update %q: %w", input, err)
		}
		kind := strings.ToUpper(tok.text)
		if seen[kind] {
			return nil, fmt.Errorf("invalid update %q: %s clause given twice", input, kind)
		}
		seen[kind] = true
		for {
			a, err := t.parseAction(kind)
			if err != nil {
				return nil, fmt.Errorf("invalid update %q: %w", input, err)
			}
			u.actions = append(u.actions, a)
			if t.peek().kind != tokComma {
				break
			}
			t.next()
		}
	}
	if len(u.actions) == 0 {
		return nil, fmt.Errorf("invalid update %q: no actions", input)
	}
	return u, nil
}

func (t *tokens) parseAction(kind string) (updateAction, error) {
	p, err := t.parsePath()
	if err != nil {
		return updateAction{}, err
	}
	a := updateAction{kind: kind, path: p}
	switch kind {
	case "REMOVE":
		return a, nil
	case "SET":
		if tok := t.next(); tok.kind != tokCmp || tok.text != "=" {
			return a, fmt.Errorf("expected =, got %s", tok)
		}
		a.value, err = t.parseValueExpr()
		return a, err
	case "ADD", "DELETE":
		tok, err := t.expect(tokValue, "value placeholder")
		if err != nil {
			return a, err
		}
		av, err := t.env.value(tok.text)
		if err != nil {
			return a, err
		}
		a.value = operandExpr{literalOperand{av}}
		return a, nil
	}
	return a, fmt.Errorf("unknown clause %s", kind)
}

func (t *tokens) parseValueExpr() (valueExpr, error) {
	left, err := t.parseValueTerm()
	if err != nil {
		return nil, err
	}
	for t.peek().kind == tokPlus || t.peek().kind == tokMinus {
		op := t.next().text
		right, err := t.parseValueTerm()
		if err != nil {
			return nil, err
		}
		left = arithExpr{op: op, left: left, right: right}
	}
	return left, nil
}

func (t *tokens) parseValueTerm() (valueExpr, error) {
	tok := t.peek()
	if tok.kind == tokIdent && t.peekAt(1).kind == tokLParen {
		switch strings.ToLower(tok.text) {
		case "if_not_exists":
			t.next()
			t.next()
			p, err := t.parsePath()
			if err != nil {
				return nil, err
			}
			if _, err := t.expect(tokComma, ","); err != nil {
				return nil, err
			}
			fallback, err := t.parseValueExpr()
			if err != nil {
				return nil, err
			}
			if _, err := t.expect(tokRParen, ")"); err != nil {
				return nil, err
			}
			return ifNotExistsExpr{path: p, fallback: fallback}, nil
		case "list_append":
			t.next()
			t.next()
			a, err := t.parseValueExpr()
			if err != nil {
				return nil, err
			}
			if _, err := t.expect(tokComma, ","); err != nil {
				return nil, err
			}
			b, err := t.parseValueExpr()
			if err != nil {
				return nil, err
			}
			if _, err := t.expect(tokRParen, ")"); err != nil {
				return nil, err
			}
			return listAppendExpr{a, b}, nil
		}
	}
	op, err := t.parseOperand()
	if err != nil {
		return nil, err
	}
	return operandExpr{op}, nil
}

// Update is a parsed update expression.
type Update struct {
	actions []updateAction
}

// Apply returns a copy of doc with the update applied. Values on the right
// hand side are evaluated against the original document.
func (u *Update) Apply(doc Item) (Item, error) {
	out := deepCopyItem(doc)
	for _, a := range u.actions {
		var err error
		switch a.kind {
		case "SET":
			var v types.AttributeValue
			v, err = a.value.eval(doc)
			if err == nil {
				err = setPath(out, a.path, v)
			}
		case "REMOVE":
			removePath(out, a.path)
		case "ADD":
			err = addPath(out, a.path, a.value.(operandExpr).op.(literalOperand).av)
		case "DELETE":
			err = deleteFromSet(out, a.path, a.value.(operandExpr).op.(literalOperand).av)
		}
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", a.kind, a.path, err)
		}
	}
	return out, nil
}

// Paths lists the attribute paths written or removed by the update.
func (u *Update) Paths() []Path {
	out := make([]Path, len(u.actions))
	for i, a := range u.actions {
		out[i] = a.path
	}
	return out
}

// container returns the map or list that holds the last element of p.
func container(doc Item, p Path) (types.AttributeValue, error) {
	if len(p) == 1 {
		return &types.AttributeValueMemberM{Value: doc}, nil
	}
	parent, ok := p[:len(p)-1].Resolve(doc)
	if !ok {
		return nil, fmt.Errorf("the document path provided in the update expression is invalid for update")
	}
	return parent, nil
}

func setPath(doc Item, p Path, v types.AttributeValue) error {
	parent, err := container(doc, p)
	if err != nil {
		return err
	}
	last := p[len(p)-1]
	switch c := parent.(type) {
	case *types.AttributeValueMemberM:
		if last.IsIndex {
			return fmt.Errorf("list index used on a map")
		}
		c.Value[last.Name] = v
	case *types.AttributeValueMemberL:
		if !last.IsIndex {
			return fmt.Errorf("map key used on a list")
		}
		if last.Index >= len(c.Value) {
			c.Value = append(c.Value, v)
		} else {
			c.Value[last.Index] = v
		}
	default:
		return fmt.Errorf("the document path provided in the update expression is invalid for update")
	}
	return nil
}

func removePath(doc Item, p Path) {
	parent, err := container(doc, p)
	if err != nil {
		return
	}
	last := p[len(p)-1]
	switch c := parent.(type) {
	case *types.AttributeValueMemberM:
		delete(c.Value, last.Name)
	case *types.AttributeValueMemberL:
		if last.IsIndex && last.Index < len(c.Value) {
			c.Value = append(c.Value[:last.Index], c.Value[last.Index+1:]...)
		}
	}
}

func addPath(doc Item, p Path, v types.AttributeValue) error {
	cur, ok := p.Resolve(doc)
	if !ok {
		return setPath(doc, p, v)
	}
	switch c := cur.(type) {
	case *types.AttributeValueMemberN:
		sum, err := arithExpr{op: "+", left: operandExpr{literalOperand{c}}, right: operandExpr{literalOperand{v}}}.eval(nil)
		if err != nil {
			return err
		}
		return setPath(doc, p, sum)
	case *types.AttributeValueMemberSS:
		add, ok := v.(*types.AttributeValueMemberSS)
		if !ok {
			return fmt.Errorf("type mismatch for ADD")
		}
		merged := append([]string(nil), c.Value...)
		for _, s := range add.Value {
			if !containsString(merged, s) {
				merged = append(merged, s)
			}
		}
		return setPath(doc, p, &types.AttributeValueMemberSS{Value: merged})
	case *types.AttributeValueMemberNS:
		add, ok := v.(*types.AttributeValueMemberNS)
		if !ok {
			return fmt.Errorf("type mismatch for ADD")
		}
		merged := append([]string(nil), c.Value...)
		for _, n := range add.Value {
			if !containsNumber(merged, n) {
				merged = append(merged, n)
			}
		}
		return setPath(doc, p, &types.AttributeValueMemberNS{Value: merged})
	}
	return fmt.Errorf("ADD is only supported on numbers and sets")
}

func deleteFromSet(doc Item, p Path, v types.AttributeValue) error {
	cur, ok := p.Resolve(doc)
	if !ok {
		return nil
	}
	switch c := cur.(type) {
	case *types.AttributeValueMemberSS:
		del, ok := v.(*types.AttributeValueMemberSS)
		if !ok {
			return fmt.Errorf("type mismatch for DELETE")
		}
		var kept []string
		for _, s := range c.Value {
			if !containsString(del.Value, s) {
				kept = append(kept, s)
			}
		}
		if len(kept) == 0 {
			removePath(doc, p)
			return nil
		}
		return setPath(doc, p, &types.AttributeValueMemberSS{Value: kept})
	case *types.AttributeValueMemberNS:
		del, ok := v.(*types.AttributeValueMemberNS)
		if !ok {
			return fmt.Errorf("type mismatch for DELETE")
		}
		var kept []string
		for _, n := range c.Value {
			if !containsNumber(del.Value, n) {
				kept = append(kept, n)
			}
		}
		if len(kept) == 0 {
			removePath(doc, p)
			return nil
		}
		return setPath(doc, p, &types.AttributeValueMemberNS{Value: kept})
	}
	return fmt.Errorf("DELETE is only supported on sets")
}

func containsString(set []string, s string) bool {
	for _, x := range set {
		if x == s {
			return true
		}
	}
	return false
}

func deepCopyItem(doc Item) Item {
	out := make(Item, len(doc))
	for k, v := range doc {
		out[k] = deepCopy(v)
	}
	return out
}

func deepCopy(v types.AttributeValue) types.AttributeValue {
	switch x := v.(type) {
	case *types.AttributeValueMemberM:
		return &types.AttributeValueMemberM{Value: deepCopyItem(x.Value)}
	case *types.AttributeValueMemberL:
		l := make([]types.AttributeValue, len(x.Value))
		for i, e := range x.Value {
			l[i] = deepCopy(e)
		}
		return &types.AttributeValueMemberL{Value: l}
	}
	return v
}
