// Package canonical provides deterministic JSON encoding for content
// hashing: object keys sorted lexicographically, HTML-escaping disabled,
// strings normalized to Unicode NFC, and numbers preserved in their
// original (shortest round-trip) form. Receipts, cache keys, and dedup
// keys all hash this encoding so that two semantically identical
// payloads always hash identically regardless of field order or
// normalization form.
package canonical

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"golang.org/x/text/unicode/norm"
)

// Encode returns the canonical JSON representation of v.
//
// v is first marshaled with the standard library (so struct tags are
// respected), then decoded into a generic tree with json.Number
// preserved, then re-encoded recursively with sorted keys and HTML
// escaping disabled.
func Encode(v interface{}) ([]byte, error) {
	intermediate, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical: marshal: %w", err)
	}

	var generic interface{}
	dec := json.NewDecoder(bytes.NewReader(intermediate))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("canonical: decode: %w", err)
	}

	var buf bytes.Buffer
	if err := encodeValue(&buf, generic); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeString is Encode but returns a string.
func EncodeString(v interface{}) (string, error) {
	b, err := Encode(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Hash returns the hex-encoded SHA-256 digest of v's canonical encoding.
func Hash(v interface{}) (string, error) {
	b, err := Encode(v)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}

// HashBytes returns the hex-encoded SHA-256 digest of raw bytes.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func encodeValue(buf *bytes.Buffer, v interface{}) error {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
		return nil
	case bool:
		if t {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
		return nil
	case json.Number:
		buf.WriteString(t.String())
		return nil
	case string:
		return encodeString(buf, t)
	case []interface{}:
		buf.WriteByte('[')
		for i, elem := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeValue(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case map[string]interface{}:
		normalized := make(map[string]interface{}, len(t))
		keys := make([]string, 0, len(t))
		for k, v := range t {
			nk := norm.NFC.String(k)
			keys = append(keys, nk)
			normalized[nk] = v
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeString(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := encodeValue(buf, normalized[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	default:
		return fmt.Errorf("canonical: unsupported type %T", v)
	}
}

// encodeString writes a JSON string literal without HTML escaping, after
// normalizing to Unicode NFC so semantically identical text in different
// normalization forms hashes identically.
func encodeString(buf *bytes.Buffer, s string) error {
	var inner bytes.Buffer
	enc := json.NewEncoder(&inner)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(norm.NFC.String(s)); err != nil {
		return err
	}
	buf.Write(bytes.TrimSuffix(inner.Bytes(), []byte{'\n'}))
	return nil
}
