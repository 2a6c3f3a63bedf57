package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/joe-ervin05/litetable/tools"
)

// Names is a list of column names. In JSON it may be written as a single
// string or as an array of strings.
type Names []string

func (n *Names) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*n = Names{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return tools.InvalidSchemaErr("expected a column name or a list of column names")
	}
	*n = many
	return nil
}

// schemaJSON is the wire form of Schema. Columns is an object keyed by
// column name whose key order is the column order.
type schemaJSON struct {
	Name        string           `json:"name"`
	Columns     json.RawMessage  `json:"columns"`
	Indices     map[string]Index `json:"indices,omitempty"`
	ForeignKeys []ForeignKey     `json:"foreignKeys,omitempty"`
	PrimaryKey  Names            `json:"primaryKey,omitempty"`
}

// UnmarshalJSON decodes a schema, keeping the order of the columns object.
//
//	{"name": "users", "columns": {"id": {"type": "INTEGER", "primaryKey": true}, "name": {"type": "TEXT"}}}
func (s *Schema) UnmarshalJSON(data []byte) error {
	var raw schemaJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	columns, err := decodeColumns(raw.Columns)
	if err != nil {
		return fmt.Errorf("table %s: %w", raw.Name, err)
	}

	*s = Schema{
		Name:        raw.Name,
		Columns:     columns,
		Indices:     raw.Indices,
		ForeignKeys: raw.ForeignKeys,
		PrimaryKey:  raw.PrimaryKey,
	}
	return nil
}

func (s Schema) MarshalJSON() ([]byte, error) {
	var cols bytes.Buffer
	cols.WriteByte('{')
	for i, c := range s.Columns {
		if i > 0 {
			cols.WriteByte(',')
		}
		key, err := json.Marshal(c.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		cols.Write(key)
		cols.WriteByte(':')
		cols.Write(val)
	}
	cols.WriteByte('}')

	return json.Marshal(schemaJSON{
		Name:        s.Name,
		Columns:     cols.Bytes(),
		Indices:     s.Indices,
		ForeignKeys: s.ForeignKeys,
		PrimaryKey:  s.PrimaryKey,
	})
}

func decodeColumns(data json.RawMessage) ([]Column, error) {
	if len(data) == 0 {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, tools.InvalidSchemaErr("columns must be an object keyed by column name")
	}

	var columns []Column
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		name, _ := tok.(string)

		var c Column
		if err := dec.Decode(&c); err != nil {
			return nil, fmt.Errorf("column %s: %w", name, err)
		}
		c.Name = name
		columns = append(columns, c)
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return columns, nil
}

// LoadSchemas decodes either a single schema object or an array of them.
func LoadSchemas(data []byte) ([]Schema, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var list []Schema
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, err
		}
		return list, nil
	}
	var s Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return []Schema{s}, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
