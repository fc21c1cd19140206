package ufiv

import (
	"bytes"
	"encoding/json"
	"fmt"

	"golang.org/x/text/unicode/norm"
)

// Indent is the indentation unit of written documents.
const Indent = " "

// Marshal encodes v in the deterministic document layout.
func Marshal(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return Canonicalize(raw)
}

// Canonicalize rewrites an encoded JSON document in the deterministic
// layout.
func Canonicalize(data []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("canonicalize: trailing data after document")
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", Indent)
	if err := enc.Encode(normalize(tree)); err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	return buf.Bytes(), nil
}

// normalize applies NFC to every string and object key. Maps are encoded
// with sorted keys by encoding/json.
func normalize(v any) any {
	switch val := v.(type) {
	case string:
		return norm.NFC.String(val)
	case []any:
		for i, elem := range val {
			val[i] = normalize(elem)
		}
		return val
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[norm.NFC.String(k)] = normalize(elem)
		}
		return out
	default:
		return v
	}
}
