package expr

import (
	"errors"
	"strings"
)

var (
	// ErrLeadingOperator is returned by Build when the first clause of a
	// condition was added with And or Or.
	ErrLeadingOperator = errors.New("condition starts with a boolean operator")
	// ErrMissingOperator is returned by Build when Where follows another clause
	// without And or Or.
	ErrMissingOperator = errors.New("condition clauses must be joined with And or Or")
)

type Operator string

const (
	Eq         Operator = "="
	Ne         Operator = "<>"
	Lt         Operator = "<"
	Le         Operator = "<="
	Gt         Operator = ">"
	Ge         Operator = ">="
	BeginsWith Operator = "begins_with"
	Contains   Operator = "contains"
)

// Condition accumulates clauses in call order. Methods chain; the first error
// is kept and returned by Build.
//
//	expr.NewCondition().
//		AttributeNotExists("title").
//		Or("title", expr.Eq, "Buffalo Soldier")
//
// renders attribute_not_exists(#title) OR #title = :v1.
type Condition struct {
	attrs *Attributes
	parts []string
	err   error
}

func NewCondition() *Condition {
	return &Condition{attrs: NewAttributes()}
}

// NewConditionWith builds on existing substitution maps, e.g. those of an update.
func NewConditionWith(a *Attributes) *Condition {
	return &Condition{attrs: a}
}

// Where adds the first clause.
func (c *Condition) Where(field string, op Operator, value any) *Condition {
	return c.add("", c.compare(field, op, value))
}

func (c *Condition) And(field string, op Operator, value any) *Condition {
	return c.add("AND", c.compare(field, op, value))
}

func (c *Condition) Or(field string, op Operator, value any) *Condition {
	return c.add("OR", c.compare(field, op, value))
}

func (c *Condition) Between(field string, low, high any) *Condition {
	return c.add("", c.between(field, low, high))
}

func (c *Condition) AndBetween(field string, low, high any) *Condition {
	return c.add("AND", c.between(field, low, high))
}

func (c *Condition) OrBetween(field string, low, high any) *Condition {
	return c.add("OR", c.between(field, low, high))
}

func (c *Condition) AttributeExists(field string) *Condition {
	return c.add("", "attribute_exists("+c.attrs.Name(field)+")")
}

func (c *Condition) AttributeNotExists(field string) *Condition {
	return c.add("", "attribute_not_exists("+c.attrs.Name(field)+")")
}

func (c *Condition) AndAttributeExists(field string) *Condition {
	return c.add("AND", "attribute_exists("+c.attrs.Name(field)+")")
}

func (c *Condition) AndAttributeNotExists(field string) *Condition {
	return c.add("AND", "attribute_not_exists("+c.attrs.Name(field)+")")
}

func (c *Condition) OrAttributeExists(field string) *Condition {
	return c.add("OR", "attribute_exists("+c.attrs.Name(field)+")")
}

func (c *Condition) OrAttributeNotExists(field string) *Condition {
	return c.add("OR", "attribute_not_exists("+c.attrs.Name(field)+")")
}

// IsEmpty reports whether no clause was added.
func (c *Condition) IsEmpty() bool {
	return c == nil || len(c.parts) == 0
}

// Attributes exposes the substitution maps the condition writes to.
func (c *Condition) Attributes() *Attributes {
	return c.attrs
}

// Build returns the expression text.
func (c *Condition) Build() (string, error) {
	if c.err != nil {
		return "", c.err
	}
	return strings.Join(c.parts, " "), nil
}

func (c *Condition) add(connective, clause string) *Condition {
	if clause == "" {
		return c
	}
	switch {
	case connective != "" && len(c.parts) == 0:
		c.setErr(ErrLeadingOperator)
	case connective == "" && len(c.parts) > 0:
		c.setErr(ErrMissingOperator)
	}
	if connective != "" {
		c.parts = append(c.parts, connective)
	}
	c.parts = append(c.parts, clause)
	return c
}

func (c *Condition) compare(field string, op Operator, value any) string {
	v, err := c.attrs.Value(value)
	if err != nil {
		c.setErr(err)
		return ""
	}
	name := c.attrs.Name(field)
	switch op {
	case BeginsWith, Contains:
		return string(op) + "(" + name + ", " + v + ")"
	case Eq, Ne, Lt, Le, Gt, Ge:
		return name + " " + string(op) + " " + v
	default:
		c.setErr(errors.New("unsupported operator " + string(op)))
		return ""
	}
}

func (c *Condition) between(field string, low, high any) string {
	lo, err := c.attrs.Value(low)
	if err != nil {
		c.setErr(err)
		return ""
	}
	hi, err := c.attrs.Value(high)
	if err != nil {
		c.setErr(err)
		return ""
	}
	return c.attrs.Name(field) + " BETWEEN " + lo + " AND " + hi
}

func (c *Condition) setErr(err error) {
	if c.err == nil {
		c.err = err
	}
}
