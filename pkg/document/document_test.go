package document

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePreservesPayload(t *testing.T) {
	raw := `{"nit":"900123456","datos_registro":{"sector":"tech","stands":2,"vip":true,"tags":["a","b"],"notes":null},"html":"<b>&</b>"}`

	doc, err := Parse([]byte(raw))
	require.NoError(t, err)

	out, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.Equal(t, raw, string(out))
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, raw := range []string{``, `{`, `{"a":}`, `{"a":1}{"b":2}`, `{"a":1} x`, `]`} {
		_, err := Parse([]byte(raw))
		assert.Error(t, err, raw)
	}
}

func TestParseNestingLimit(t *testing.T) {
	t.Run("at the limit", func(t *testing.T) {
		raw := strings.Repeat("[", MaxDepth) + strings.Repeat("]", MaxDepth)
		_, err := Parse([]byte(raw))
		assert.NoError(t, err)
	})

	t.Run("arrays past the limit", func(t *testing.T) {
		raw := strings.Repeat("[", MaxDepth+1) + strings.Repeat("]", MaxDepth+1)
		_, err := Parse([]byte(raw))
		assert.ErrorIs(t, err, ErrTooDeep)
	})

	t.Run("objects past the limit", func(t *testing.T) {
		raw := strings.Repeat(`{"a":`, MaxDepth+1) + "1" + strings.Repeat("}", MaxDepth+1)
		_, err := Parse([]byte(raw))
		assert.ErrorIs(t, err, ErrTooDeep)
	})

	t.Run("unterminated deep input fails without exhausting the stack", func(t *testing.T) {
		_, err := Parse([]byte(strings.Repeat("[", 11<<20)))
		assert.ErrorIs(t, err, ErrTooDeep)
	})
}

func TestDuplicateKeysLastWins(t *testing.T) {
	doc := MustParse(`{"a":1,"b":2,"a":3}`)

	out, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.Equal(t, `{"a":3,"b":2}`, string(out))
}

func TestLookup(t *testing.T) {
	doc := MustParse(`{"datos_registro":{"sector":"agro"},"nit":"123"}`)

	t.Run("nested string", func(t *testing.T) {
		node, err := doc.Lookup("datos_registro", "sector")
		require.NoError(t, err)
		s, ok := node.AsString()
		assert.True(t, ok)
		assert.Equal(t, "agro", s)
	})

	t.Run("missing key", func(t *testing.T) {
		_, err := doc.Lookup("datos_registro", "size")
		assert.ErrorIs(t, err, ErrPathNotFound)
	})

	t.Run("intermediate not an object", func(t *testing.T) {
		_, err := doc.Lookup("nit", "sector")
		assert.ErrorIs(t, err, ErrNotObject)
	})

	t.Run("empty path returns root", func(t *testing.T) {
		node, err := doc.Lookup()
		require.NoError(t, err)
		assert.Equal(t, Object, node.Kind())
	})
}

func TestText(t *testing.T) {
	doc := MustParse(`{"s":"x","n":12.50,"t":true,"f":false,"z":null,"o":{"k":[1,"2"]}}`)
	cases := []struct {
		key  string
		want string
		ok   bool
	}{
		{"s", "x", true},
		{"n", "12.50", true},
		{"t", "true", true},
		{"f", "false", true},
		{"z", "", false},
		{"o", `{"k":[1,"2"]}`, true},
	}
	for _, tc := range cases {
		node, err := doc.Lookup(tc.key)
		require.NoError(t, err)
		got, ok := node.Text()
		assert.Equal(t, tc.ok, ok, tc.key)
		assert.Equal(t, tc.want, got, tc.key)
	}
}

func TestScanAndValue(t *testing.T) {
	doc := MustParse(`{"a":[1,2]}`)

	v, err := doc.Value()
	require.NoError(t, err)
	assert.Equal(t, `{"a":[1,2]}`, v)

	var fromBytes, fromString, fromNil Document
	require.NoError(t, fromBytes.Scan([]byte(`{"a":[1,2]}`)))
	require.NoError(t, fromString.Scan(`{"a":[1,2]}`))
	require.NoError(t, fromNil.Scan(nil))
	assert.Equal(t, doc, fromBytes)
	assert.Equal(t, doc, fromString)
	assert.Equal(t, Null, fromNil.Root().Kind())

	assert.Error(t, fromNil.Scan(42))
}

func TestBuilders(t *testing.T) {
	node := ObjectNode(
		Member{Key: "name", Value: StringNode("Acme")},
		Member{Key: "size", Value: NumberNode("10")},
		Member{Key: "list", Value: ArrayNode(BoolNode(true), NullNode())},
	)
	out, err := json.Marshal(New(node))
	require.NoError(t, err)
	assert.Equal(t, `{"name":"Acme","size":10,"list":[true,null]}`, string(out))
}
