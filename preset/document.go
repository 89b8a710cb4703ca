// Package preset saves and restores the parameters of effect stages as
// JSON documents.
//
// A Document is a tree keyed by direction, effect and field, addressed
// with dot paths such as "output.equalizer.left.band0.gain". Codecs map
// one effect's store keys to its subtree; Manager stores documents as
// named files per direction.
package preset

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Document is a hierarchical key-value tree.
type Document struct {
	root map[string]any
}

// NewDocument returns an empty document.
func NewDocument() *Document {
	return &Document{root: map[string]any{}}
}

// Put stores v at path, creating intermediate nodes and replacing any leaf
// on the way.
func (d *Document) Put(path string, v any) {
	parts := strings.Split(path, ".")
	node := d.root

	for _, p := range parts[:len(parts)-1] {
		next, ok := node[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			node[p] = next
		}

		node = next
	}

	node[parts[len(parts)-1]] = v
}

// Lookup returns the value at path.
func (d *Document) Lookup(path string) (any, bool) {
	var cur any = d.root

	for _, p := range strings.Split(path, ".") {
		node, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}

		cur, ok = node[p]
		if !ok {
			return nil, false
		}
	}

	return cur, true
}

// Delete removes the value at path. Missing paths are ignored.
func (d *Document) Delete(path string) {
	parts := strings.Split(path, ".")
	node := d.root

	for _, p := range parts[:len(parts)-1] {
		next, ok := node[p].(map[string]any)
		if !ok {
			return
		}

		node = next
	}

	delete(node, parts[len(parts)-1])
}

// Has reports whether path exists.
func (d *Document) Has(path string) bool {
	_, ok := d.Lookup(path)
	return ok
}

// Children returns the sorted child keys of the node at path, or nil when
// path is missing or a leaf. An empty path lists the top level.
func (d *Document) Children(path string) []string {
	var (
		cur any = d.root
		ok  bool
	)

	if path != "" {
		cur, ok = d.Lookup(path)
		if !ok {
			return nil
		}
	}

	node, ok := cur.(map[string]any)
	if !ok {
		return nil
	}

	keys := make([]string, 0, len(node))
	for k := range node {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

// Double returns the number at path. Numeric strings are accepted.
func (d *Document) Double(path string) (float64, error) {
	v, ok := d.Lookup(path)
	if !ok {
		return 0, &FieldError{Path: path, Err: ErrMissingField}
	}

	f, ok := toFloat(v)
	if !ok {
		return 0, &FieldError{Path: path, Err: fmt.Errorf("%w: want number, got %v", ErrTypeMismatch, describe(v))}
	}

	return f, nil
}

// Int returns the integer at path. Numbers with a fractional part are
// rejected.
func (d *Document) Int(path string) (int, error) {
	f, err := d.Double(path)
	if err != nil {
		return 0, err
	}

	if f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, &FieldError{Path: path, Err: fmt.Errorf("%w: want integer, got %v", ErrTypeMismatch, f)}
	}

	return int(f), nil
}

// Bool returns the boolean at path. The strings "true" and "false" are
// accepted.
func (d *Document) Bool(path string) (bool, error) {
	v, ok := d.Lookup(path)
	if !ok {
		return false, &FieldError{Path: path, Err: ErrMissingField}
	}

	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		if t == "true" || t == "false" {
			return t == "true", nil
		}
	}

	return false, &FieldError{Path: path, Err: fmt.Errorf("%w: want boolean, got %v", ErrTypeMismatch, describe(v))}
}

// String returns the string at path.
func (d *Document) String(path string) (string, error) {
	v, ok := d.Lookup(path)
	if !ok {
		return "", &FieldError{Path: path, Err: ErrMissingField}
	}

	s, ok := v.(string)
	if !ok {
		return "", &FieldError{Path: path, Err: fmt.Errorf("%w: want string, got %v", ErrTypeMismatch, describe(v))}
	}

	return s, nil
}

// Strings returns the list of strings at path.
func (d *Document) Strings(path string) ([]string, error) {
	v, ok := d.Lookup(path)
	if !ok {
		return nil, &FieldError{Path: path, Err: ErrMissingField}
	}

	switch t := v.(type) {
	case []string:
		return append([]string(nil), t...), nil
	case []any:
		out := make([]string, len(t))
		for i, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil, &FieldError{Path: fmt.Sprintf("%s.%d", path, i), Err: fmt.Errorf("%w: want string, got %v", ErrTypeMismatch, describe(e))}
			}

			out[i] = s
		}

		return out, nil
	}

	return nil, &FieldError{Path: path, Err: fmt.Errorf("%w: want list, got %v", ErrTypeMismatch, describe(v))}
}

func toFloat(v any) (float64, bool) {
	var (
		f   float64
		err error
	)

	switch t := v.(type) {
	case float64:
		f = t
	case int:
		f = float64(t)
	case json.Number:
		f, err = t.Float64()
	case string:
		f, err = strconv.ParseFloat(strings.TrimSpace(t), 64)
	default:
		return 0, false
	}

	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}

	return f, true
}

func describe(v any) string {
	switch t := v.(type) {
	case map[string]any:
		return "object"
	case []any, []string:
		return "list"
	case string:
		return strconv.Quote(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// Encode writes d as indented JSON.
func (d *Document) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")

	if err := enc.Encode(d.root); err != nil {
		return fmt.Errorf("preset: encode: %w", err)
	}

	return nil
}

// MarshalJSON implements json.Marshaler.
func (d *Document) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.root)
}

// UnmarshalJSON implements json.Unmarshaler. Numbers are kept exact.
func (d *Document) UnmarshalJSON(data []byte) error {
	doc, err := Decode(bytes.NewReader(data))
	if err != nil {
		return err
	}

	d.root = doc.root

	return nil
}

// Decode reads a JSON object into a document.
func Decode(r io.Reader) (*Document, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var root map[string]any
	if err := dec.Decode(&root); err != nil {
		return nil, fmt.Errorf("preset: decode: %w", err)
	}

	if root == nil {
		root = map[string]any{}
	}

	return &Document{root: root}, nil
}
