package eftl

import "fmt"

// ValueError reports a malformed caller argument detected synchronously
// at the call site: an unparsable URL, a non-numeric option, invalid
// matcher JSON, or an unsupported Message field type.
type ValueError struct {
	Reason string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("eftl: value error: %s", e.Reason)
}

// MessageSizeTooLarge reports that an encoded message exceeds the
// negotiated max_size. Raised synchronously from Publish, KVMap.Set,
// and SendRequest; the message is never enqueued.
type MessageSizeTooLarge struct {
	Size    int
	MaxSize int
}

func (e *MessageSizeTooLarge) Error() string {
	return fmt.Sprintf("eftl: message size %d exceeds max_size %d", e.Size, e.MaxSize)
}

// ClientError reports that Connect failed against every candidate
// endpoint in the URL list.
type ClientError struct {
	Reason string
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("eftl: connect failed: %s", e.Reason)
}

// ConnectionError reports that an operation was attempted on a
// Connection that has permanently closed (reconnect attempts
// exhausted, or Disconnect was called).
type ConnectionError struct {
	Reason string
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("eftl: connection closed: %s", e.Reason)
}

// TypeMismatch reports that a Message field accessor was called for a
// type incompatible with the stored value.
type TypeMismatch struct {
	Field string
	Want  string
	Have  string
}

func (e *TypeMismatch) Error() string {
	return fmt.Sprintf("eftl: field %q: want %s, have %s", e.Field, e.Want, e.Have)
}

// NotFound reports that a requested Message field is absent.
type NotFound struct {
	Field string
}

func (e *NotFound) Error() string {
	return fmt.Sprintf("eftl: field %q not found", e.Field)
}

// ProtocolError carries a server-origin error code and reason,
// delivered to the most specific callback available: the operation's,
// the subscription's, or the connection-level OnError.
type ProtocolError struct {
	Code   int
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("eftl: protocol error %d: %s", e.Code, e.Reason)
}
