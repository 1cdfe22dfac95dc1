package expreval

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func s(v string) types.AttributeValue { return &types.AttributeValueMemberS{Value: v} }
func n(v string) types.AttributeValue { return &types.AttributeValueMemberN{Value: v} }

func testDoc() Item {
	return Item{
		"pk":   s("MUSICIAN#1"),
		"sk":   s("SONG#7"),
		"year": n("1999"),
		"tags": &types.AttributeValueMemberSS{Value: []string{"rock", "live"}},
		"meta": &types.AttributeValueMemberM{Value: Item{
			"plays": n("10"),
			"title": s("Intro"),
		}},
		"list": &types.AttributeValueMemberL{Value: []types.AttributeValue{s("a"), s("b")}},
	}
}

func TestCondition(t *testing.T) {
	doc := testDoc()

	tests := []struct {
		name   string
		expr   string
		names  map[string]string
		values map[string]types.AttributeValue
		want   bool
	}{
		{"equal", "#y = :v1", map[string]string{"#y": "year"}, map[string]types.AttributeValue{":v1": n("1999.0")}, true},
		{"not equal", "#y <> :v1", map[string]string{"#y": "year"}, map[string]types.AttributeValue{":v1": n("1999")}, false},
		{"numeric compare", "#y > :v1", map[string]string{"#y": "year"}, map[string]types.AttributeValue{":v1": n("200")}, true},
		{"between", "#y BETWEEN :v1 AND :v2", map[string]string{"#y": "year"}, map[string]types.AttributeValue{":v1": n("1990"), ":v2": n("2000")}, true},
		{"begins_with", "begins_with(#sk, :v1)", map[string]string{"#sk": "sk"}, map[string]types.AttributeValue{":v1": s("SONG#")}, true},
		{"contains set", "contains(#t, :v1)", map[string]string{"#t": "tags"}, map[string]types.AttributeValue{":v1": s("live")}, true},
		{"nested path", "#m.#p >= :v1", map[string]string{"#m": "meta", "#p": "plays"}, map[string]types.AttributeValue{":v1": n("10")}, true},
		{"list index", "#l[1] = :v1", map[string]string{"#l": "list"}, map[string]types.AttributeValue{":v1": s("b")}, true},
		{"exists", "attribute_exists(#pk)", map[string]string{"#pk": "pk"}, nil, true},
		{"not exists", "attribute_not_exists(#x)", map[string]string{"#x": "missing"}, nil, true},
		{"and or not", "NOT #y < :v1 AND (#pk = :v2 OR #pk = :v3)", map[string]string{"#y": "year", "#pk": "pk"},
			map[string]types.AttributeValue{":v1": n("1000"), ":v2": s("nope"), ":v3": s("MUSICIAN#1")}, true},
		{"in", "#y IN (:v1, :v2)", map[string]string{"#y": "year"}, map[string]types.AttributeValue{":v1": n("1"), ":v2": n("1999")}, true},
		{"size", "size(#t) = :v1", map[string]string{"#t": "tags"}, map[string]types.AttributeValue{":v1": n("2")}, true},
		{"type mismatch", "#y = :v1", map[string]string{"#y": "year"}, map[string]types.AttributeValue{":v1": s("1999")}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := NewEnv(tt.names, tt.values)
			got, err := EvalCondition(tt.expr, env, doc)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.NoError(t, env.CheckUnused())
		})
	}
}

func TestConditionErrors(t *testing.T) {
	t.Run("undefined name", func(t *testing.T) {
		_, err := ParseCondition("#a = :v1", NewEnv(nil, map[string]types.AttributeValue{":v1": s("x")}))
		require.Error(t, err)
	})
	t.Run("trailing tokens", func(t *testing.T) {
		_, err := ParseCondition("#a = :v1 :v1", NewEnv(map[string]string{"#a": "a"}, map[string]types.AttributeValue{":v1": s("x")}))
		require.Error(t, err)
	})
	t.Run("unused value", func(t *testing.T) {
		env := NewEnv(map[string]string{"#a": "a"}, map[string]types.AttributeValue{":v1": s("x"), ":v2": s("y")})
		_, err := ParseCondition("#a = :v1", env)
		require.NoError(t, err)
		assert.ErrorContains(t, env.CheckUnused(), ":v2")
	})
}

func TestKeyCondition(t *testing.T) {
	env := NewEnv(
		map[string]string{"#pk": "pk", "#sk": "sk"},
		map[string]types.AttributeValue{":v1": s("MUSICIAN#1"), ":v2": s("SONG#")},
	)
	kc, err := ParseKeyCondition("#pk = :v1 AND begins_with(#sk, :v2)", env, "pk", "sk")
	require.NoError(t, err)
	assert.Equal(t, s("MUSICIAN#1"), kc.Partition)
	require.NotNil(t, kc.Sort)
	assert.True(t, kc.Sort.Match(s("SONG#7")))
	assert.False(t, kc.Sort.Match(s("ALBUM#1")))

	t.Run("partition only", func(t *testing.T) {
		env := NewEnv(map[string]string{"#pk": "pk"}, map[string]types.AttributeValue{":v1": s("A")})
		kc, err := ParseKeyCondition("#pk = :v1", env, "pk", "sk")
		require.NoError(t, err)
		assert.Nil(t, kc.Sort)
		assert.True(t, kc.Sort.Match(s("anything")))
	})

	t.Run("between", func(t *testing.T) {
		env := NewEnv(map[string]string{"#pk": "pk", "#sk": "sk"},
			map[string]types.AttributeValue{":v1": s("A"), ":v2": n("1"), ":v3": n("5")})
		kc, err := ParseKeyCondition("#pk = :v1 AND #sk BETWEEN :v2 AND :v3", env, "pk", "sk")
		require.NoError(t, err)
		assert.True(t, kc.Sort.Match(n("3")))
		assert.False(t, kc.Sort.Match(n("6")))
	})

	t.Run("missing partition", func(t *testing.T) {
		env := NewEnv(map[string]string{"#sk": "sk"}, map[string]types.AttributeValue{":v1": s("A")})
		_, err := ParseKeyCondition("#sk = :v1", env, "pk", "sk")
		require.Error(t, err)
	})

	t.Run("filter attribute rejected", func(t *testing.T) {
		env := NewEnv(map[string]string{"#pk": "pk", "#x": "x"}, map[string]types.AttributeValue{":v1": s("A"), ":v2": s("B")})
		_, err := ParseKeyCondition("#pk = :v1 AND #x = :v2", env, "pk", "sk")
		require.Error(t, err)
	})
}

func TestUpdate(t *testing.T) {
	doc := testDoc()
	env := NewEnv(
		map[string]string{"#m": "meta", "#p": "plays", "#t": "title", "#y": "year", "#tags": "tags", "#c": "count", "#l": "list"},
		map[string]types.AttributeValue{
			":v1": n("5"),
			":v2": s("Outro"),
			":v3": &types.AttributeValueMemberSS{Value: []string{"live"}},
			":v4": n("1"),
			":v5": &types.AttributeValueMemberL{Value: []types.AttributeValue{s("c")}},
		},
	)
	u, err := ParseUpdate("SET #m.#p = #m.#p + :v1, #m.#t = :v2, #c = if_not_exists(#c, :v4), #l = list_append(#l, :v5) REMOVE #y DELETE #tags :v3", env)
	require.NoError(t, err)
	require.NoError(t, env.CheckUnused())

	out, err := u.Apply(doc)
	require.NoError(t, err)

	meta := out["meta"].(*types.AttributeValueMemberM).Value
	assert.Equal(t, n("15"), meta["plays"])
	assert.Equal(t, s("Outro"), meta["title"])
	assert.Equal(t, n("1"), out["count"])
	assert.NotContains(t, out, "year")
	assert.Equal(t, []string{"rock"}, out["tags"].(*types.AttributeValueMemberSS).Value)
	assert.Len(t, out["list"].(*types.AttributeValueMemberL).Value, 3)

	// original untouched
	assert.Equal(t, n("10"), doc["meta"].(*types.AttributeValueMemberM).Value["plays"])
	assert.Contains(t, doc, "year")

	t.Run("add number", func(t *testing.T) {
		env := NewEnv(map[string]string{"#y": "year"}, map[string]types.AttributeValue{":v1": n("1")})
		u, err := ParseUpdate("ADD #y :v1", env)
		require.NoError(t, err)
		out, err := u.Apply(testDoc())
		require.NoError(t, err)
		assert.Equal(t, n("2000"), out["year"])
	})

	t.Run("set on missing parent", func(t *testing.T) {
		env := NewEnv(map[string]string{"#a": "absent", "#b": "b"}, map[string]types.AttributeValue{":v1": n("1")})
		u, err := ParseUpdate("SET #a.#b = :v1", env)
		require.NoError(t, err)
		_, err = u.Apply(testDoc())
		require.Error(t, err)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := ParseUpdate("", NewEnv(nil, nil))
		require.Error(t, err)
	})
}

func TestProjection(t *testing.T) {
	env := NewEnv(map[string]string{"#pk": "pk", "#m": "meta", "#t": "title", "#l": "list"}, nil)
	p, err := ParseProjection("#pk, #m.#t, #l[1], missing", env)
	require.NoError(t, err)

	out := p.Apply(testDoc())
	assert.Equal(t, s("MUSICIAN#1"), out["pk"])
	assert.Equal(t, Item{"title": s("Intro")}, out["meta"].(*types.AttributeValueMemberM).Value)
	assert.Equal(t, []types.AttributeValue{s("b")}, out["list"].(*types.AttributeValueMemberL).Value)
	assert.NotContains(t, out, "missing")
	assert.NotContains(t, out, "year")
}
