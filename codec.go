package eftl

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Reserved single-key wire tags for non-primitive field values.
const (
	tagDouble   = "_d_"
	tagDateTime = "_m_"
	tagOpaque   = "_o_"
)

// MarshalJSON encodes m as a plain JSON object in field insertion
// order. Double/DateTime/Opaque values become single-key tag objects;
// nested Messages and arrays are encoded structurally.
func (m *Message) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range m.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyJSON, err := json.Marshal(f.name)
		if err != nil {
			return nil, err
		}
		buf.Write(keyJSON)
		buf.WriteByte(':')
		valJSON, err := encodeValue(f.value)
		if err != nil {
			return nil, fmt.Errorf("eftl: encode field %q: %w", f.name, err)
		}
		buf.Write(valJSON)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a plain JSON object into m, inspecting each
// field for a reserved tag key to recover Double, DateTime, and
// Opaque values; a plain JSON number decodes as Long, a plain object
// with no reserved key decodes as a nested Message.
func (m *Message) UnmarshalJSON(data []byte) error {
	names, raws, err := decodeOrderedObject(data)
	if err != nil {
		return err
	}
	*m = Message{}
	for i, name := range names {
		v, err := decodeValue(raws[i])
		if err != nil {
			return fmt.Errorf("eftl: decode field %q: %w", name, err)
		}
		m.Set(name, v)
	}
	return nil
}

// decodeOrderedObject parses a JSON object, returning its keys and raw
// values in wire order. encoding/json's map decoding does not preserve
// key order, so this walks the token stream directly.
func decodeOrderedObject(data []byte) (names []string, raws []json.RawMessage, err error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	delim, ok := tok.(json.Delim)
	if !ok || delim != '{' {
		return nil, nil, fmt.Errorf("eftl: expected JSON object, got %v", tok)
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("eftl: expected object key, got %v", keyTok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, nil, err
		}
		names = append(names, key)
		raws = append(raws, raw)
	}
	if _, err := dec.Token(); err != nil { // closing '}'
		return nil, nil, err
	}
	return names, raws, nil
}

// encodeValue renders a single Value to its wire form.
func encodeValue(v Value) (json.RawMessage, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindLong:
		return json.Marshal(v.i64)
	case KindDouble:
		return encodeDouble(v.f64)
	case KindDateTime:
		return []byte(fmt.Sprintf(`{"%s":%d}`, tagDateTime, v.t.UnixMilli())), nil
	case KindOpaque:
		enc := base64.StdEncoding.EncodeToString(v.opaque)
		b, err := json.Marshal(enc)
		if err != nil {
			return nil, err
		}
		return []byte(fmt.Sprintf(`{"%s":%s}`, tagOpaque, b)), nil
	case KindMessage:
		if v.msg == nil {
			return []byte("null"), nil
		}
		return v.msg.MarshalJSON()
	case KindArray:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, e := range v.arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			elemJSON, err := encodeValue(e)
			if err != nil {
				return nil, err
			}
			buf.Write(elemJSON)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("eftl: unsupported field kind %v", v.kind)
	}
}

// encodeDouble renders a double following the rule that non-finite
// values MUST be encoded as the literal strings "NaN", "Infinity", or
// "-Infinity", never as bare JSON tokens.
func encodeDouble(f float64) (json.RawMessage, error) {
	switch {
	case math.IsNaN(f):
		return []byte(`{"` + tagDouble + `":"NaN"}`), nil
	case math.IsInf(f, 1):
		return []byte(`{"` + tagDouble + `":"Infinity"}`), nil
	case math.IsInf(f, -1):
		return []byte(`{"` + tagDouble + `":"-Infinity"}`), nil
	default:
		num, err := json.Marshal(f)
		if err != nil {
			return nil, err
		}
		return []byte(`{"` + tagDouble + `":` + string(num) + `}`), nil
	}
}

// decodeValue inspects a raw JSON value and reconstructs the typed
// Value it represents, following the rules in decodeTaggedObject for
// objects.
func decodeValue(raw json.RawMessage) (Value, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return Value{}, fmt.Errorf("eftl: empty value")
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return Value{}, err
		}
		return NewString(s), nil
	case '{':
		return decodeTaggedObject(trimmed)
	case '[':
		return decodeArray(trimmed)
	case 't', 'f':
		return Value{}, fmt.Errorf("eftl: boolean fields are not supported")
	case 'n':
		return Value{}, fmt.Errorf("eftl: null fields are not supported")
	default:
		// A bare JSON number decodes as Long; doubles are always
		// wire-tagged (see encodeDouble).
		var n int64
		if err := json.Unmarshal(trimmed, &n); err != nil {
			return Value{}, fmt.Errorf("eftl: decode numeric field: %w", err)
		}
		return NewLong(n), nil
	}
}

// decodeTaggedObject decodes a JSON object: a single reserved key
// (_d_, _m_, _o_) recovers a Double/DateTime/Opaque; anything else is
// treated as a nested Message.
func decodeTaggedObject(raw json.RawMessage) (Value, error) {
	names, raws, err := decodeOrderedObject(raw)
	if err != nil {
		return Value{}, err
	}
	if len(names) == 1 {
		switch names[0] {
		case tagDouble:
			return decodeDoubleTag(raws[0])
		case tagDateTime:
			var ms int64
			if err := json.Unmarshal(raws[0], &ms); err != nil {
				return Value{}, fmt.Errorf("decode %s: %w", tagDateTime, err)
			}
			return NewDateTime(time.UnixMilli(ms).UTC()), nil
		case tagOpaque:
			var enc string
			if err := json.Unmarshal(raws[0], &enc); err != nil {
				return Value{}, fmt.Errorf("decode %s: %w", tagOpaque, err)
			}
			b, err := base64.StdEncoding.DecodeString(enc)
			if err != nil {
				return Value{}, fmt.Errorf("decode %s: %w", tagOpaque, err)
			}
			return NewOpaque(b), nil
		}
	}
	msg := &Message{}
	for i, name := range names {
		v, err := decodeValue(raws[i])
		if err != nil {
			return Value{}, err
		}
		msg.Set(name, v)
	}
	return NewMessage(msg), nil
}

func decodeDoubleTag(raw json.RawMessage) (Value, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return Value{}, err
		}
		switch s {
		case "NaN":
			return NewDouble(math.NaN()), nil
		case "Infinity":
			return NewDouble(math.Inf(1)), nil
		case "-Infinity":
			return NewDouble(math.Inf(-1)), nil
		default:
			return Value{}, fmt.Errorf("eftl: unrecognized %s string %q", tagDouble, s)
		}
	}
	var f float64
	if err := json.Unmarshal(trimmed, &f); err != nil {
		return Value{}, fmt.Errorf("decode %s: %w", tagDouble, err)
	}
	return NewDouble(f), nil
}

// decodeArray decodes a homogeneous JSON array. An empty array decodes
// to an empty KindArray with KindString as its nominal element kind;
// an empty array carries no distinguishable element type on the wire.
func decodeArray(raw json.RawMessage) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return Value{}, fmt.Errorf("eftl: expected JSON array")
	}
	var elems []Value
	for dec.More() {
		var elemRaw json.RawMessage
		if err := dec.Decode(&elemRaw); err != nil {
			return Value{}, err
		}
		v, err := decodeValue(elemRaw)
		if err != nil {
			return Value{}, err
		}
		elems = append(elems, v)
	}
	if _, err := dec.Token(); err != nil { // closing ']'
		return Value{}, err
	}
	elemKind := KindString
	if len(elems) > 0 {
		elemKind = elems[0].kind
	}
	return NewArray(elemKind, elems), nil
}
