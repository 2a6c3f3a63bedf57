package query

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
)

// KV is one key/value pair of an ordered document.
type KV struct {
	Key   string
	Value any
}

// M is an ordered document. Filters, update values and rows are all
// documents; key order decides placeholder allocation and column order.
type M []KV

// Get returns the value stored under key.
func (m M) Get(key string) (any, bool) {
	for _, kv := range m {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return nil, false
}

// Set returns a copy of m with key set to value. An existing key keeps its
// position; a new key is appended.
func (m M) Set(key string, value any) M {
	out := make(M, len(m), len(m)+1)
	copy(out, m)
	for i := range out {
		if out[i].Key == key {
			out[i].Value = value
			return out
		}
	}
	return append(out, KV{Key: key, Value: value})
}

// Merge returns a copy of m with every pair of other set on it, in order.
func (m M) Merge(other M) M {
	out := m
	for _, kv := range other {
		out = out.Set(kv.Key, kv.Value)
	}
	if out == nil {
		return M{}
	}
	return out
}

// Keys returns the keys in order.
func (m M) Keys() []string {
	keys := make([]string, len(m))
	for i, kv := range m {
		keys[i] = kv.Key
	}
	return keys
}

// Map returns the document as a plain map.
func (m M) Map() map[string]any {
	out := make(map[string]any, len(m))
	for _, kv := range m {
		out[kv.Key] = kv.Value
	}
	return out
}

func (m M) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, kv := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(kv.Key)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(kv.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (m *M) UnmarshalJSON(data []byte) error {
	doc, err := ParseJSON(data)
	if err != nil {
		return err
	}
	*m = doc
	return nil
}

// ParseJSON decodes a JSON object into a document, keeping key order.
// Nested objects become M, arrays become []any, integral numbers become
// int64 and other numbers float64.
func ParseJSON(data []byte) (M, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := decodeValue(dec)
	if err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("unexpected data after JSON document")
	}
	doc, ok := v.(M)
	if !ok {
		return nil, fmt.Errorf("expected a JSON object, got %T", v)
	}
	return doc, nil
}

func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			doc := M{}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("invalid object key %v", keyTok)
				}
				val, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				doc = doc.Set(key, val)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return doc, nil
		case '[':
			list := []any{}
			for dec.More() {
				val, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				list = append(list, val)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return list, nil
		}
		return nil, fmt.Errorf("unexpected delimiter %v", t)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, nil
		}
		return t.Float64()
	default:
		// string, bool or nil
		return t, nil
	}
}

// FromMap converts a plain map into a document ordered by key.
// Nested maps are converted too.
func FromMap(in map[string]any) M {
	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(M, 0, len(in))
	for _, k := range keys {
		v := in[k]
		if nested, ok := v.(map[string]any); ok {
			v = FromMap(nested)
		}
		out = append(out, KV{Key: k, Value: v})
	}
	return out
}

// asDoc reports whether v is a document and returns it as M.
func asDoc(v any) (M, bool) {
	switch d := v.(type) {
	case M:
		return d, true
	case []KV:
		return M(d), true
	case map[string]any:
		return FromMap(d), true
	}
	return nil, false
}

// asList reports whether v is a list (any slice except []byte and documents).
func asList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case M, []KV, []byte:
		return nil, false
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
