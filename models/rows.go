package models

import (
	"bytes"
	"context"
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"
)

// Row is one record of tabular data: column name to cell value, in column order.
// The zero value is an empty row ready for use.
type Row struct {
	keys   []string
	values map[string]any
}

// NewRow builds a row from alternating key/value arguments.
func NewRow(kv ...any) Row {
	var r Row
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		r.Set(key, kv[i+1])
	}
	return r
}

func (r *Row) Set(key string, value any) {
	if r.values == nil {
		r.values = make(map[string]any)
	}
	if _, exists := r.values[key]; !exists {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
}

func (r Row) Get(key string) (any, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Keys returns the column names in order. The slice must not be modified.
func (r Row) Keys() []string { return r.keys }

func (r Row) Len() int { return len(r.keys) }

func (r *Row) Delete(key string) {
	if _, ok := r.values[key]; !ok {
		return
	}
	delete(r.values, key)
	for i, k := range r.keys {
		if k == key {
			r.keys = append(r.keys[:i:i], r.keys[i+1:]...)
			break
		}
	}
}

// Rename moves a value to a new key, keeping its position. Renaming onto an
// existing key replaces that key's value and drops its old position.
func (r *Row) Rename(from, to string) {
	if from == to {
		return
	}
	v, ok := r.values[from]
	if !ok {
		return
	}
	if _, clash := r.values[to]; clash {
		r.Delete(to)
	}
	delete(r.values, from)
	r.values[to] = v
	for i, k := range r.keys {
		if k == from {
			r.keys[i] = to
			break
		}
	}
}

// Clone returns an independent copy.
func (r Row) Clone() Row {
	out := Row{
		keys:   append([]string(nil), r.keys...),
		values: make(map[string]any, len(r.values)),
	}
	for k, v := range r.values {
		out.values[k] = v
	}
	return out
}

func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(r.values[k])
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", k, err)
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (r *Row) UnmarshalJSON(b []byte) error {
	*r = Row{}
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errors.New("row must be a JSON object")
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected row key %v", tok)
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("column %q: %w", key, err)
		}
		r.Set(key, value)
	}
	return nil
}

// Rows is an ordered table snapshot. In storage every row is kept as a list of
// [key, value] pairs so column order survives engines that reorder object keys.
type Rows []Row

// Columns returns the keys of the first row, or an empty list.
func (rs Rows) Columns() []string {
	if len(rs) == 0 {
		return []string{}
	}
	return append([]string{}, rs[0].Keys()...)
}

func (rs Rows) Clone() Rows {
	out := make(Rows, len(rs))
	for i, r := range rs {
		out[i] = r.Clone()
	}
	return out
}

func (rs Rows) MarshalJSON() ([]byte, error) {
	if rs == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]Row(rs))
}

func (rs Rows) encodePairs() ([]byte, error) {
	pairs := make([][][2]any, len(rs))
	for i, r := range rs {
		row := make([][2]any, 0, r.Len())
		for _, k := range r.Keys() {
			row = append(row, [2]any{k, r.values[k]})
		}
		pairs[i] = row
	}
	return json.Marshal(pairs)
}

// Value implements driver.Valuer.
func (rs Rows) Value() (driver.Value, error) {
	data, err := rs.encodePairs()
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (rs *Rows) Scan(value any) error {
	var data []byte
	switch v := value.(type) {
	case nil:
		*rs = Rows{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("rows: unsupported scan type %T", value)
	}

	var pairs [][][]any
	if err := json.Unmarshal(data, &pairs); err != nil {
		return fmt.Errorf("rows: %w", err)
	}
	out := make(Rows, len(pairs))
	for i, row := range pairs {
		for _, p := range row {
			if len(p) != 2 {
				return fmt.Errorf("rows: malformed pair in row %d", i)
			}
			key, ok := p[0].(string)
			if !ok {
				return fmt.Errorf("rows: non-string key in row %d", i)
			}
			out[i].Set(key, p[1])
		}
	}
	*rs = out
	return nil
}

func (Rows) GormDataType() string { return "json" }

func (Rows) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	switch db.Dialector.Name() {
	case "postgres":
		return "JSONB"
	default:
		return "JSON"
	}
}

func (rs Rows) GormValue(ctx context.Context, db *gorm.DB) clause.Expr {
	data, _ := rs.encodePairs()
	return gorm.Expr("?", string(data))
}
