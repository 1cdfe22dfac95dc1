package expr

import (
	"slices"
	"strings"

	"github.com/acksell/tablekit/dynamodb/ddberrors"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Update accumulates SET and REMOVE actions on attribute paths.
//
//	expr.NewUpdate().
//		Set([]string{"address", "city"}, "Kingston").
//		Remove([]string{"address", "zip"})
//
// renders SET #address.#city = :v1 REMOVE #address.#zip.
type Update struct {
	attrs   *Attributes
	sets    []string
	removes []string
	cond    *Condition
	err     error
}

func NewUpdate() *Update {
	return &Update{attrs: NewAttributes()}
}

// Set assigns value to the attribute at path.
func (u *Update) Set(path []string, value any) *Update {
	if len(path) == 0 {
		u.setErr(ddberrors.NewValidationError("", "update path is empty"))
		return u
	}
	v, err := u.attrs.Value(value)
	if err != nil {
		u.setErr(err)
		return u
	}
	u.sets = append(u.sets, u.attrs.Path(path)+" = "+v)
	return u
}

// Remove deletes the attribute at path.
func (u *Update) Remove(path []string) *Update {
	if len(path) == 0 {
		u.setErr(ddberrors.NewValidationError("", "update path is empty"))
		return u
	}
	u.removes = append(u.removes, u.attrs.Path(path))
	return u
}

// KeyCondition returns a copy of u that applies only to an existing item: the
// sort key column must begin with sortKey. A missing item fails the condition.
// u itself is left untouched and can be reused for other items.
func (u *Update) KeyCondition(sortKeyColumn, sortKey string) *Update {
	c := &Update{
		attrs:   u.attrs.Clone(),
		sets:    slices.Clone(u.sets),
		removes: slices.Clone(u.removes),
		err:     u.err,
	}
	c.cond = NewConditionWith(c.attrs).Where(sortKeyColumn, BeginsWith, sortKey)
	return c
}

// Attributes exposes the substitution maps of the update.
func (u *Update) Attributes() *Attributes {
	return u.attrs
}

// UpdateExpression is a rendered update with its substitutions.
type UpdateExpression struct {
	Update    string
	Condition string // empty without KeyCondition
	Names     map[string]string
	Values    map[string]types.AttributeValue
}

func (u *Update) Build() (UpdateExpression, error) {
	if u.err != nil {
		return UpdateExpression{}, u.err
	}
	if len(u.sets) == 0 && len(u.removes) == 0 {
		return UpdateExpression{}, ddberrors.NewValidationError("", "update has no actions")
	}
	var clauses []string
	if len(u.sets) > 0 {
		clauses = append(clauses, "SET "+strings.Join(u.sets, ", "))
	}
	if len(u.removes) > 0 {
		clauses = append(clauses, "REMOVE "+strings.Join(u.removes, ", "))
	}
	out := UpdateExpression{Update: strings.Join(clauses, " ")}
	if u.cond != nil {
		cond, err := u.cond.Build()
		if err != nil {
			return UpdateExpression{}, err
		}
		out.Condition = cond
	}
	out.Names = u.attrs.Names()
	out.Values = u.attrs.Values()
	return out, nil
}

func (u *Update) setErr(err error) {
	if u.err == nil {
		u.err = err
	}
}
