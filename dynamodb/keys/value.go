package keys

import (
	"reflect"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"golang.org/x/exp/constraints"
)

// Numeric is a constraint for all numeric key components.
type Numeric interface {
	constraints.Integer | constraints.Float
}

// Number renders a numeric key component.
// Floats use the shortest representation that round-trips.
func Number[T Numeric](n T) string {
	s, _ := formatKind(reflect.ValueOf(n))
	return s
}

// Format renders a single key component. Strings and numbers are accepted,
// named types included, as are S and N attribute values. It returns false
// for values that cannot be part of a key.
func Format(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case *types.AttributeValueMemberS:
		return t.Value, true
	case *types.AttributeValueMemberN:
		return t.Value, true
	case nil:
		return "", false
	}
	return formatKind(reflect.ValueOf(v))
}

func formatKind(rv reflect.Value) (string, bool) {
	switch rv.Kind() {
	case reflect.String:
		return rv.String(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(rv.Uint(), 10), true
	case reflect.Float32:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 32), true
	case reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 64), true
	default:
		return "", false
	}
}

// ValuesFromItem lifts the string and number attributes of a marshalled item
// into key values. Other attribute types are skipped.
func ValuesFromItem(item map[string]types.AttributeValue) Values {
	out := make(Values, len(item))
	for name, av := range item {
		switch v := av.(type) {
		case *types.AttributeValueMemberS:
			out[name] = v.Value
		case *types.AttributeValueMemberN:
			out[name] = v
		}
	}
	return out
}
