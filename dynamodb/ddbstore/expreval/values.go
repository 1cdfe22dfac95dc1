package expreval

import (
	"bytes"
	"math/big"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

func parseNumber(s string) (*big.Float, bool) {
	f, _, err := big.ParseFloat(s, 10, 128, big.ToNearestEven)
	if err != nil {
		return nil, false
	}
	return f, true
}

// Equal compares two attribute values the way the service does: same type,
// numbers compared numerically, sets compared as sets.
func Equal(a, b types.AttributeValue) bool {
	switch av := a.(type) {
	case *types.AttributeValueMemberS:
		bv, ok := b.(*types.AttributeValueMemberS)
		return ok && av.Value == bv.Value
	case *types.AttributeValueMemberN:
		bv, ok := b.(*types.AttributeValueMemberN)
		if !ok {
			return false
		}
		c, ok := compareNumbers(av.Value, bv.Value)
		return ok && c == 0
	case *types.AttributeValueMemberB:
		bv, ok := b.(*types.AttributeValueMemberB)
		return ok && bytes.Equal(av.Value, bv.Value)
	case *types.AttributeValueMemberBOOL:
		bv, ok := b.(*types.AttributeValueMemberBOOL)
		return ok && av.Value == bv.Value
	case *types.AttributeValueMemberNULL:
		_, ok := b.(*types.AttributeValueMemberNULL)
		return ok
	case *types.AttributeValueMemberSS:
		bv, ok := b.(*types.AttributeValueMemberSS)
		return ok && sameStringSet(av.Value, bv.Value)
	case *types.AttributeValueMemberNS:
		bv, ok := b.(*types.AttributeValueMemberNS)
		return ok && sameNumberSet(av.Value, bv.Value)
	case *types.AttributeValueMemberBS:
		bv, ok := b.(*types.AttributeValueMemberBS)
		if !ok || len(av.Value) != len(bv.Value) {
			return false
		}
		for _, x := range av.Value {
			if !containsBytes(bv.Value, x) {
				return false
			}
		}
		return true
	case *types.AttributeValueMemberL:
		bv, ok := b.(*types.AttributeValueMemberL)
		if !ok || len(av.Value) != len(bv.Value) {
			return false
		}
		for i := range av.Value {
			if !Equal(av.Value[i], bv.Value[i]) {
				return false
			}
		}
		return true
	case *types.AttributeValueMemberM:
		bv, ok := b.(*types.AttributeValueMemberM)
		if !ok || len(av.Value) != len(bv.Value) {
			return false
		}
		for k, x := range av.Value {
			y, ok := bv.Value[k]
			if !ok || !Equal(x, y) {
				return false
			}
		}
		return true
	}
	return false
}

// Compare orders two scalars of the same type (S, N or B).
// ok is false when the values are not comparable.
func Compare(a, b types.AttributeValue) (c int, ok bool) {
	switch av := a.(type) {
	case *types.AttributeValueMemberS:
		bv, ok := b.(*types.AttributeValueMemberS)
		if !ok {
			return 0, false
		}
		return strings.Compare(av.Value, bv.Value), true
	case *types.AttributeValueMemberN:
		bv, ok := b.(*types.AttributeValueMemberN)
		if !ok {
			return 0, false
		}
		return compareNumbers(av.Value, bv.Value)
	case *types.AttributeValueMemberB:
		bv, ok := b.(*types.AttributeValueMemberB)
		if !ok {
			return 0, false
		}
		return bytes.Compare(av.Value, bv.Value), true
	}
	return 0, false
}

func compareNumbers(a, b string) (int, bool) {
	x, ok := parseNumber(a)
	if !ok {
		return 0, false
	}
	y, ok := parseNumber(b)
	if !ok {
		return 0, false
	}
	return x.Cmp(y), true
}

func sameStringSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, s := range a {
		set[s] = true
	}
	for _, s := range b {
		if !set[s] {
			return false
		}
	}
	return true
}

func sameNumberSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for _, x := range a {
		if !containsNumber(b, x) {
			return false
		}
	}
	return true
}

func containsNumber(set []string, n string) bool {
	for _, s := range set {
		if c, ok := compareNumbers(s, n); ok && c == 0 {
			return true
		}
	}
	return false
}

func containsBytes(set [][]byte, b []byte) bool {
	for _, s := range set {
		if bytes.Equal(s, b) {
			return true
		}
	}
	return false
}

func beginsWith(v, prefix types.AttributeValue) bool {
	switch x := v.(type) {
	case *types.AttributeValueMemberS:
		p, ok := prefix.(*types.AttributeValueMemberS)
		return ok && strings.HasPrefix(x.Value, p.Value)
	case *types.AttributeValueMemberB:
		p, ok := prefix.(*types.AttributeValueMemberB)
		return ok && bytes.HasPrefix(x.Value, p.Value)
	}
	return false
}

func contains(v, operand types.AttributeValue) bool {
	switch x := v.(type) {
	case *types.AttributeValueMemberS:
		s, ok := operand.(*types.AttributeValueMemberS)
		return ok && strings.Contains(x.Value, s.Value)
	case *types.AttributeValueMemberB:
		s, ok := operand.(*types.AttributeValueMemberB)
		return ok && bytes.Contains(x.Value, s.Value)
	case *types.AttributeValueMemberSS:
		s, ok := operand.(*types.AttributeValueMemberS)
		if !ok {
			return false
		}
		for _, e := range x.Value {
			if e == s.Value {
				return true
			}
		}
	case *types.AttributeValueMemberNS:
		n, ok := operand.(*types.AttributeValueMemberN)
		return ok && containsNumber(x.Value, n.Value)
	case *types.AttributeValueMemberBS:
		b, ok := operand.(*types.AttributeValueMemberB)
		return ok && containsBytes(x.Value, b.Value)
	case *types.AttributeValueMemberL:
		for _, e := range x.Value {
			if Equal(e, operand) {
				return true
			}
		}
	}
	return false
}

func size(v types.AttributeValue) (int, bool) {
	switch x := v.(type) {
	case *types.AttributeValueMemberS:
		return len(x.Value), true
	case *types.AttributeValueMemberB:
		return len(x.Value), true
	case *types.AttributeValueMemberSS:
		return len(x.Value), true
	case *types.AttributeValueMemberNS:
		return len(x.Value), true
	case *types.AttributeValueMemberBS:
		return len(x.Value), true
	case *types.AttributeValueMemberL:
		return len(x.Value), true
	case *types.AttributeValueMemberM:
		return len(x.Value), true
	}
	return 0, false
}

func typeName(v types.AttributeValue) string {
	switch v.(type) {
	case *types.AttributeValueMemberS:
		return "S"
	case *types.AttributeValueMemberN:
		return "N"
	case *types.AttributeValueMemberB:
		return "B"
	case *types.AttributeValueMemberBOOL:
		return "BOOL"
	case *types.AttributeValueMemberNULL:
		return "NULL"
	case *types.AttributeValueMemberSS:
		return "SS"
	case *types.AttributeValueMemberNS:
		return "NS"
	case *types.AttributeValueMemberBS:
		return "BS"
	case *types.AttributeValueMemberL:
		return "L"
	case *types.AttributeValueMemberM:
		return "M"
	}
	return ""
}
