// Package canonical produces byte-stable JSON for rule documents.
//
// Canonicalize sorts every level of a decoded JSON-like tree: object keys,
// arrays of objects (by each object's smallest key, ties broken by the
// object's own canonical encoding) and arrays of scalars. Two trees holding
// the same content in any order canonicalize to the same bytes.
package canonical

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
)

// Canonicalize returns a sorted deep copy of v. Supported values are the
// ones encoding/json decodes into (maps with string keys, slices, strings,
// numbers, booleans, nil) plus []string and the common integer types.
func Canonicalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = Canonicalize(val)
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return canonicalizeSlice(out)
	case []any:
		return canonicalizeSlice(t)
	default:
		return v
	}
}

func canonicalizeSlice(in []any) []any {
	out := make([]any, len(in))
	allMaps := true
	for i, elem := range in {
		out[i] = Canonicalize(elem)
		if _, ok := out[i].(map[string]any); !ok {
			allMaps = false
		}
	}

	if allMaps {
		keys := make([]string, len(out))
		encoded := make([]string, len(out))
		for i, elem := range out {
			keys[i] = smallestKey(elem.(map[string]any))
			encoded[i] = encodeKey(elem)
		}
		sort.Sort(byKey{items: out, keys: keys, encoded: encoded})
		return out
	}

	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

// byKey sorts objects by their smallest key, then by encoding.
type byKey struct {
	items   []any
	keys    []string
	encoded []string
}

func (b byKey) Len() int { return len(b.items) }

func (b byKey) Less(i, j int) bool {
	if b.keys[i] != b.keys[j] {
		return b.keys[i] < b.keys[j]
	}
	return b.encoded[i] < b.encoded[j]
}

func (b byKey) Swap(i, j int) {
	b.items[i], b.items[j] = b.items[j], b.items[i]
	b.keys[i], b.keys[j] = b.keys[j], b.keys[i]
	b.encoded[i], b.encoded[j] = b.encoded[j], b.encoded[i]
}

func smallestKey(m map[string]any) string {
	first := true
	var smallest string
	for k := range m {
		if first || k < smallest {
			smallest = k
			first = false
		}
	}
	return smallest
}

// less orders scalars: numbers numerically, strings lexicographically and
// mixed types by a fixed type rank. Nested values compare by encoding.
func less(a, b any) bool {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return ra < rb
	}
	switch x := a.(type) {
	case string:
		return x < b.(string)
	case bool:
		return !x && b.(bool)
	case nil:
		return false
	}
	if fa, ok := toFloat(a); ok {
		fb, _ := toFloat(b)
		return fa < fb
	}
	return encodeKey(a) < encodeKey(b)
}

func rank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case string:
		return 3
	case map[string]any, []any:
		return 4
	}
	if _, ok := toFloat(v); ok {
		return 2
	}
	return 5
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func encodeKey(v any) string {
	b, err := marshalNoEscape(v, "")
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// Marshal canonicalizes v and encodes it as indented JSON without HTML
// escaping. Doubled backslashes left by the encoder are collapsed to single
// ones when the collapsed text is still valid JSON.
func Marshal(v any) ([]byte, error) {
	out, err := marshalNoEscape(Canonicalize(v), "  ")
	if err != nil {
		return nil, err
	}
	return CollapseEscapes(out), nil
}

// CollapseEscapes replaces every `\\` pair in JSON text with a single `\`.
// Some upstream lists write regex escapes already doubled; this undoes the
// second layer the encoder adds. If the result no longer parses (a value
// holding a genuine backslash escape such as `\d`) the input is returned
// unchanged.
func CollapseEscapes(data []byte) []byte {
	if !bytes.Contains(data, []byte(`\\`)) {
		return data
	}
	collapsed := []byte(strings.ReplaceAll(string(data), `\\`, `\`))
	if !gjson.ValidBytes(collapsed) {
		return data
	}
	return collapsed
}

// MarshalCompact canonicalizes v and encodes it on a single line. It is
// used where the encoding serves as an identity key rather than output.
func MarshalCompact(v any) ([]byte, error) {
	return marshalNoEscape(Canonicalize(v), "")
}

func marshalNoEscape(v any, indent string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if indent != "" {
		enc.SetIndent("", indent)
	}
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
