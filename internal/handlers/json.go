package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// envelopeKeys are the wrapper fields whose array-of-objects value is taken
// as the main table of an object-rooted document.
var envelopeKeys = []string{"data", "items", "records", "results", "rows"}

// JSON extracts row sets from JSON documents and JSON Lines.
//
// Shapes:
//   - array of objects (or a stream of objects): one table named after the stem
//   - array of scalars: <stem>_items with index, value, type
//   - object with an envelope array: that array as <stem>, plus nested tables
//   - other nested arrays of objects: <stem>_<path>
//   - nested scalar arrays: <stem>_<path>_values
//   - anything else: one flattened row
type JSON struct {
	log *zap.Logger
}

func NewJSON(log *zap.Logger) *JSON { return &JSON{log: log} }

func (*JSON) Name() string             { return "json" }
func (*JSON) Extensions() []string     { return []string{".json", ".jsonl", ".ndjson"} }
func (h *JSON) CanHandle(p string) bool { return hasExt(p, h.Extensions()) }

func (h *JSON) Extract(ctx context.Context, path string) []RowSet {
	raw, err := os.ReadFile(path)
	if err != nil {
		h.log.Warn("json read failed", zap.String("file", path), zap.Error(err))
		return nil
	}
	values, err := decodeValues(raw)
	if err != nil {
		h.log.Warn("json decode stopped early", zap.String("file", path), zap.Int("values", len(values)), zap.Error(err))
	}
	if len(values) == 0 || ctx.Err() != nil {
		return nil
	}
	return extractJSON(fileStem(path), path, values)
}

// decodeValues decodes every top-level value: a single document, a root
// array followed by trailing objects, or JSON Lines.
func decodeValues(raw []byte) ([]any, error) {
	dec := json.NewDecoder(bytes.NewReader(bytes.TrimPrefix(raw, utf8BOM)))
	dec.UseNumber()
	var out []any
	for {
		var v any
		if err := dec.Decode(&v); err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return out, err
		}
		out = append(out, v)
	}
}

func extractJSON(stem, path string, values []any) []RowSet {
	base := SanitizeTableName(stem)
	meta := func(structure string) map[string]any {
		return map[string]any{"source_file": path, "structure": structure, "extraction_method": "json"}
	}

	var items []any
	switch first := values[0].(type) {
	case []any:
		items = append(items, first...)
		items = append(items, values[1:]...)
	case map[string]any:
		if len(values) == 1 {
			return extractObject(base, first, meta)
		}
		items = values
	default:
		items = values
	}

	if objs, ok := allObjects(items); ok {
		return []RowSet{{TableName: base, Rows: normalizeRecords(objs), Metadata: meta("array_of_objects")}}
	}
	rows := make([]map[string]any, len(items))
	for i, it := range items {
		rows[i] = map[string]any{"index": int64(i), "value": scalarString(it), "type": jsonKind(it)}
	}
	return []RowSet{{
		TableName: SanitizeTableName(stem + "_items"),
		Columns:   []string{"index", "value", "type"},
		Rows:      rows,
		Metadata:  meta("array_of_values"),
	}}
}

func extractObject(base string, obj map[string]any, meta func(string) map[string]any) []RowSet {
	var out []RowSet
	taken := map[string]bool{}
	for _, key := range envelopeKeys {
		arr, ok := obj[key].([]any)
		if !ok {
			continue
		}
		if objs, ok := allObjects(arr); ok {
			name := base
			if len(out) > 0 {
				name = SanitizeTableName(base + "_" + key)
			}
			m := meta("object_with_" + key + "_array")
			m["path"] = key
			out = append(out, RowSet{TableName: name, Rows: normalizeRecords(objs), Metadata: m})
			taken[key] = true
		}
	}

	out = append(out, nestedTables(base, obj, taken, meta)...)
	if len(out) == 0 {
		flat := map[string]any{}
		flattenObject("", obj, flat)
		out = append(out, RowSet{TableName: base, Rows: []map[string]any{flat}, Metadata: meta("single_object")})
	}
	return out
}

// nestedTables walks obj in key order and turns arrays into tables named
// after their path.
func nestedTables(path string, obj map[string]any, skip map[string]bool, meta func(string) map[string]any) []RowSet {
	var out []RowSet
	for _, key := range sortedKeys(obj) {
		if skip[key] {
			continue
		}
		p := path + "_" + key
		switch v := obj[key].(type) {
		case []any:
			if len(v) == 0 {
				continue
			}
			if objs, ok := allObjects(v); ok {
				m := meta("nested_array")
				m["path"] = p
				out = append(out, RowSet{TableName: SanitizeTableName(p), Rows: normalizeRecords(objs), Metadata: m})
			} else if allScalars(v) {
				rows := make([]map[string]any, len(v))
				for i, it := range v {
					rows[i] = map[string]any{"index": int64(i), "value": jsonScalar(it)}
				}
				m := meta("nested_primitive_array")
				m["path"] = p
				out = append(out, RowSet{
					TableName: SanitizeTableName(p + "_values"),
					Columns:   []string{"index", "value"},
					Rows:      rows,
					Metadata:  m,
				})
			}
		case map[string]any:
			out = append(out, nestedTables(p, v, nil, meta)...)
		}
	}
	return out
}

// normalizeRecords cleans keys and stringifies nested values. Keys that
// clean to the same identifier are told apart with _1, _2, ... in first-seen
// order, the same way for every record. Columns are filled in by
// RowSet.Normalize.
func normalizeRecords(objs []map[string]any) []map[string]any {
	var raw []string
	seen := map[string]bool{}
	for _, o := range objs {
		for _, k := range sortedKeys(o) {
			if !seen[k] {
				seen[k] = true
				raw = append(raw, k)
			}
		}
	}
	cleaned := make([]string, len(raw))
	for i, k := range raw {
		cleaned[i] = jsonKey(k)
	}
	cleaned = UniqueNames(cleaned)
	column := make(map[string]string, len(raw))
	for i, k := range raw {
		column[k] = cleaned[i]
	}

	out := make([]map[string]any, len(objs))
	for i, o := range objs {
		row := make(map[string]any, len(o))
		for k, v := range o {
			row[column[k]] = jsonScalar(v)
		}
		out[i] = row
	}
	return out
}

func flattenObject(prefix string, obj map[string]any, out map[string]any) {
	for _, k := range sortedKeys(obj) {
		key := k
		if prefix != "" {
			key = prefix + "_" + k
		}
		if nested, ok := obj[k].(map[string]any); ok {
			flattenObject(key, nested, out)
			continue
		}
		out[freeKey(out, jsonKey(key))] = jsonScalar(obj[k])
	}
}

// freeKey returns name, or name_1, name_2, ... if row already holds it.
func freeKey(row map[string]any, name string) string {
	if _, taken := row[name]; !taken {
		return name
	}
	for i := 1; ; i++ {
		cand := fmt.Sprintf("%s_%d", name, i)
		if _, taken := row[cand]; !taken {
			return cand
		}
	}
}

func jsonKey(k string) string {
	if c := CleanColumnName(k); c != "" {
		return c
	}
	return "unnamed"
}

// jsonScalar converts a decoded value into a cell: numbers become int64 or
// float64, objects and arrays are re-encoded as JSON text.
func jsonScalar(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return nil
		}
		return string(b)
	default:
		return v
	}
}

func scalarString(v any) string {
	switch t := jsonScalar(v).(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

func jsonKind(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case string:
		return "string"
	case json.Number:
		if strings.ContainsAny(t.String(), ".eE") {
			return "float"
		}
		return "integer"
	case []any:
		return "array"
	default:
		return "object"
	}
}

func allObjects(items []any) ([]map[string]any, bool) {
	if len(items) == 0 {
		return nil, false
	}
	out := make([]map[string]any, len(items))
	for i, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			return nil, false
		}
		out[i] = m
	}
	return out, true
}

func allScalars(items []any) bool {
	for _, it := range items {
		switch it.(type) {
		case string, bool, json.Number:
		default:
			return false
		}
	}
	return true
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
