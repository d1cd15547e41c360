package eftl

import (
	"strconv"
	"time"
)

// Kind identifies the type held by a Value.
type Kind int

// Supported field kinds. Array holds a homogeneous slice of any other
// kind; arrays of arrays are not supported.
const (
	KindString Kind = iota
	KindLong
	KindDouble
	KindDateTime
	KindOpaque
	KindMessage
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindLong:
		return "long"
	case KindDouble:
		return "double"
	case KindDateTime:
		return "datetime"
	case KindOpaque:
		return "opaque"
	case KindMessage:
		return "message"
	case KindArray:
		return "array"
	default:
		return "unknown"
	}
}

// Value is a single typed field value. Construct one with the New*
// helpers rather than building it directly.
type Value struct {
	kind    Kind
	str     string
	i64     int64
	f64     float64
	t       time.Time
	opaque  []byte
	msg     *Message
	arr     []Value
	arrKind Kind
}

// NewString returns a string-valued Value.
func NewString(v string) Value { return Value{kind: KindString, str: v} }

// NewLong returns a 64-bit integer-valued Value.
func NewLong(v int64) Value { return Value{kind: KindLong, i64: v} }

// NewDouble returns a double-valued Value. NaN and ±Inf are legal and
// round-trip through the "NaN"/"Infinity"/"-Infinity" wire strings.
func NewDouble(v float64) Value { return Value{kind: KindDouble, f64: v} }

// NewDateTime returns a datetime-valued Value, encoded on the wire as
// milliseconds since the epoch.
func NewDateTime(v time.Time) Value { return Value{kind: KindDateTime, t: v} }

// NewOpaque returns an opaque-bytes-valued Value, encoded on the wire
// as base64. b is not copied.
func NewOpaque(b []byte) Value { return Value{kind: KindOpaque, opaque: b} }

// NewMessage returns a nested-Message-valued Value.
func NewMessage(m *Message) Value { return Value{kind: KindMessage, msg: m} }

// NewArray returns an array-valued Value holding elements of the given
// kind. elemKind must not be KindArray: arrays are not nested.
func NewArray(elemKind Kind, elems []Value) Value {
	return Value{kind: KindArray, arrKind: elemKind, arr: elems}
}

// Kind reports the value's type.
func (v Value) Kind() Kind { return v.kind }

type field struct {
	name  string
	value Value
}

// Message is an ordered map from field name to typed Value. The zero
// value is an empty Message ready to use.
type Message struct {
	fields []field
	index  map[string]int

	// Metadata populated on inbound messages only; absent (zero
	// value) on messages the application constructs for publishing.
	seq            uint64
	hasSeq         bool
	subscriberID   string
	storeMessageID string
	deliveryCount  int
	replyTo        string
	requestID      string
}

// Set stores v under field, overwriting any existing value for that
// field name and preserving its original position in iteration order.
func (m *Message) Set(field_ string, v Value) {
	if m.index == nil {
		m.index = make(map[string]int)
	}
	if i, ok := m.index[field_]; ok {
		m.fields[i].value = v
		return
	}
	m.index[field_] = len(m.fields)
	m.fields = append(m.fields, field{name: field_, value: v})
}

// SetString is a convenience wrapper around Set(field, NewString(v)).
func (m *Message) SetString(field string, v string) { m.Set(field, NewString(v)) }

// SetLong is a convenience wrapper around Set(field, NewLong(v)).
func (m *Message) SetLong(field string, v int64) { m.Set(field, NewLong(v)) }

// SetDouble is a convenience wrapper around Set(field, NewDouble(v)).
func (m *Message) SetDouble(field string, v float64) { m.Set(field, NewDouble(v)) }

// SetDateTime is a convenience wrapper around Set(field, NewDateTime(v)).
func (m *Message) SetDateTime(field string, v time.Time) { m.Set(field, NewDateTime(v)) }

// SetOpaque is a convenience wrapper around Set(field, NewOpaque(v)).
func (m *Message) SetOpaque(field string, v []byte) { m.Set(field, NewOpaque(v)) }

// SetMessage is a convenience wrapper around Set(field, NewMessage(v)).
func (m *Message) SetMessage(field string, v *Message) { m.Set(field, NewMessage(v)) }

// Get returns the raw Value stored under field.
func (m *Message) Get(field string) (Value, error) {
	if m.index == nil {
		return Value{}, &NotFound{Field: field}
	}
	i, ok := m.index[field]
	if !ok {
		return Value{}, &NotFound{Field: field}
	}
	return m.fields[i].value, nil
}

// Has reports whether field is present.
func (m *Message) Has(field string) bool {
	if m.index == nil {
		return false
	}
	_, ok := m.index[field]
	return ok
}

// Remove deletes field if present. Removal is O(n) in the number of
// fields; later fields keep their relative order.
func (m *Message) Remove(field string) {
	if m.index == nil {
		return
	}
	i, ok := m.index[field]
	if !ok {
		return
	}
	m.fields = append(m.fields[:i], m.fields[i+1:]...)
	delete(m.index, field)
	for j := i; j < len(m.fields); j++ {
		m.index[m.fields[j].name] = j
	}
}

// Fields returns the field names in insertion order. The slice is a
// copy; mutating it does not affect the Message.
func (m *Message) Fields() []string {
	names := make([]string, len(m.fields))
	for i, f := range m.fields {
		names[i] = f.name
	}
	return names
}

func (m *Message) getTyped(field string, want Kind) (Value, error) {
	v, err := m.Get(field)
	if err != nil {
		return Value{}, err
	}
	if v.kind != want {
		return Value{}, &TypeMismatch{Field: field, Want: want.String(), Have: v.kind.String()}
	}
	return v, nil
}

// GetString returns the string stored under field.
func (m *Message) GetString(field string) (string, error) {
	v, err := m.getTyped(field, KindString)
	if err != nil {
		return "", err
	}
	return v.str, nil
}

// GetLong returns the long stored under field.
func (m *Message) GetLong(field string) (int64, error) {
	v, err := m.getTyped(field, KindLong)
	if err != nil {
		return 0, err
	}
	return v.i64, nil
}

// GetDouble returns the double stored under field.
func (m *Message) GetDouble(field string) (float64, error) {
	v, err := m.getTyped(field, KindDouble)
	if err != nil {
		return 0, err
	}
	return v.f64, nil
}

// GetDateTime returns the datetime stored under field.
func (m *Message) GetDateTime(field string) (time.Time, error) {
	v, err := m.getTyped(field, KindDateTime)
	if err != nil {
		return time.Time{}, err
	}
	return v.t, nil
}

// GetOpaque returns the opaque bytes stored under field.
func (m *Message) GetOpaque(field string) ([]byte, error) {
	v, err := m.getTyped(field, KindOpaque)
	if err != nil {
		return nil, err
	}
	return v.opaque, nil
}

// GetMessage returns the nested Message stored under field.
func (m *Message) GetMessage(field string) (*Message, error) {
	v, err := m.getTyped(field, KindMessage)
	if err != nil {
		return nil, err
	}
	return v.msg, nil
}

// GetArray returns the raw element Values stored under field.
func (m *Message) GetArray(field string) ([]Value, error) {
	v, err := m.getTyped(field, KindArray)
	if err != nil {
		return nil, err
	}
	return v.arr, nil
}

// Sequence returns the EVENT sequence number for an inbound message
// and whether one was present (publish/request bodies the application
// constructs have none).
func (m *Message) Sequence() (uint64, bool) { return m.seq, m.hasSeq }

// SubscriberID returns the subscription id an inbound EVENT was
// delivered on (the EVENT's "to" field), or "" if absent.
func (m *Message) SubscriberID() string { return m.subscriberID }

// StoreMessageID returns the server-assigned durable store id, or ""
// if absent.
func (m *Message) StoreMessageID() string { return m.storeMessageID }

// DeliveryCount returns how many times the server has attempted to
// deliver this message (durable redelivery count).
func (m *Message) DeliveryCount() int { return m.deliveryCount }

// ReplyTo returns the subscription id a REQUEST expects a REPLY
// addressed to, or "" if this message is not a request.
func (m *Message) ReplyTo() string { return m.replyTo }

// RequestID returns the correlation id ("req") of an inbound REQUEST,
// or "" if absent.
func (m *Message) RequestID() string { return m.requestID }

// String renders a human-readable, non-round-tripping representation
// for logging.
func (m *Message) String() string {
	buf := []byte("{")
	for i, f := range m.fields {
		if i > 0 {
			buf = append(buf, ", "...)
		}
		buf = append(buf, f.name...)
		buf = append(buf, ':')
		buf = append(buf, valueString(f.value)...)
	}
	buf = append(buf, '}')
	return string(buf)
}

func valueString(v Value) string {
	switch v.kind {
	case KindString:
		return v.str
	case KindLong:
		return strconv.FormatInt(v.i64, 10)
	case KindDouble:
		return strconv.FormatFloat(v.f64, 'g', -1, 64)
	case KindDateTime:
		return v.t.Format(time.RFC3339Nano)
	case KindOpaque:
		return "<opaque:" + strconv.Itoa(len(v.opaque)) + " bytes>"
	case KindMessage:
		return v.msg.String()
	case KindArray:
		s := "["
		for i, e := range v.arr {
			if i > 0 {
				s += ", "
			}
			s += valueString(e)
		}
		return s + "]"
	default:
		return "?"
	}
}
