package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Row is one entity's attributes in column order. Values are int, float64 or
// string.
type Row struct {
	keys   []string
	values map[string]any
}

// Set assigns key, keeping its original position when already present.
func (r *Row) Set(key string, value any) {
	if r.values == nil {
		r.values = make(map[string]any)
	}
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
}

// Get returns the value for key.
func (r Row) Get(key string) (any, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Keys returns attribute names in insertion order.
func (r Row) Keys() []string {
	return append([]string(nil), r.keys...)
}

// Len reports the attribute count.
func (r Row) Len() int {
	return len(r.keys)
}

// MarshalJSON writes attributes in insertion order. Floats always carry a
// decimal point so 20.0 stays distinguishable from the integer 20.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return nil, fmt.Errorf("encode key %q: %w", key, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		v, err := encodeValue(r.values[key])
		if err != nil {
			return nil, fmt.Errorf("encode %q: %w", key, err)
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON restores attribute order. Numbers without a fraction or
// exponent decode as int, the rest as float64.
func (r *Row) UnmarshalJSON(data []byte) error {
	*r = Row{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := expectDelim(dec, '{'); err != nil {
		return err
	}
	for dec.More() {
		key, err := readKey(dec)
		if err != nil {
			return err
		}
		var raw any
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("decode %q: %w", key, err)
		}
		r.Set(key, decodeValue(raw))
	}
	return expectDelim(dec, '}')
}

// Record groups rows under class labels, in the order classes were seen.
type Record struct {
	classes []string
	rows    map[string][]Row
}

// AddClass registers a class without rows. Existing classes keep their rows.
func (r *Record) AddClass(class string) {
	if r.rows == nil {
		r.rows = make(map[string][]Row)
	}
	if _, ok := r.rows[class]; !ok {
		r.classes = append(r.classes, class)
		r.rows[class] = nil
	}
}

// Append adds a row under class, registering the class if needed.
func (r *Record) Append(class string, row Row) {
	r.AddClass(class)
	r.rows[class] = append(r.rows[class], row)
}

// Classes returns class labels in encounter order.
func (r Record) Classes() []string {
	return append([]string(nil), r.classes...)
}

// Rows returns the rows recorded under class.
func (r Record) Rows(class string) []Row {
	return r.rows[class]
}

// Entries counts rows across every class.
func (r Record) Entries() int {
	n := 0
	for _, rows := range r.rows {
		n += len(rows)
	}
	return n
}

// MarshalJSON writes classes in encounter order; empty classes are arrays.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, class := range r.classes {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(class)
		if err != nil {
			return nil, fmt.Errorf("encode class %q: %w", class, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		rows := r.rows[class]
		if rows == nil {
			rows = []Row{}
		}
		v, err := json.Marshal(rows)
		if err != nil {
			return nil, fmt.Errorf("encode class %q: %w", class, err)
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON restores class order.
func (r *Record) UnmarshalJSON(data []byte) error {
	*r = Record{}
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := expectDelim(dec, '{'); err != nil {
		return err
	}
	for dec.More() {
		class, err := readKey(dec)
		if err != nil {
			return err
		}
		var rows []Row
		if err := dec.Decode(&rows); err != nil {
			return fmt.Errorf("decode class %q: %w", class, err)
		}
		r.AddClass(class)
		if len(rows) > 0 {
			r.rows[class] = rows
		}
	}
	return expectDelim(dec, '}')
}

func encodeValue(v any) ([]byte, error) {
	switch val := v.(type) {
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return nil, fmt.Errorf("unsupported float %v", val)
		}
		s := strconv.FormatFloat(val, 'f', -1, 64)
		if !strings.ContainsAny(s, ".eE") {
			s += ".0"
		}
		return []byte(s), nil
	default:
		return json.Marshal(val)
	}
}

func decodeValue(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	s := n.String()
	if !strings.ContainsAny(s, ".eE") {
		if i, err := n.Int64(); err == nil {
			return int(i)
		}
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return s
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("read token: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

func readKey(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", fmt.Errorf("read key: %w", err)
	}
	key, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("expected object key, got %v", tok)
	}
	return key, nil
}
