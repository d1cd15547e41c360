package eftl

import (
	"bytes"
	"encoding/json"
)

// boolish decodes a wire boolean that servers may emit either as a
// JSON bool or as the string "true"/"false" (the _resume and _qos
// WELCOME fields arrive in the string form).
type boolish bool

func (b *boolish) UnmarshalJSON(data []byte) error {
	s := string(bytes.Trim(bytes.TrimSpace(data), `"`))
	*b = boolish(s == "true")
	return nil
}

// Op codes for the eFTL wire protocol, as carried in every frame's "op"
// field.
const (
	opHeartbeat    = 0
	opLogin        = 1
	opWelcome      = 2
	opSubscribe    = 3
	opSubscribed   = 4
	opUnsubscribe  = 5
	opUnsubscribed = 6
	opEvent        = 7
	opMessage      = 8
	opAck          = 9
	opError        = 10
	opDisconnect   = 11
	opRequest      = 13
	opRequestReply = 14
	opReply        = 15
	opMapDestroy   = 18
	opMapSet       = 20
	opMapGet       = 22
	opMapRemove    = 24
	opMapResponse  = 26
)

// protocolVersion is sent in every LOGIN frame.
const protocolVersion = 1

// clientType identifies this implementation to the server at login.
const clientType = "go"

// clientVersion is the implementation version reported at login.
const clientVersion = "1.0.0"

// subProtocol is the WebSocket sub-protocol identifier eFTL servers
// expect to see negotiated during the handshake.
const subProtocol = "v1.eftl.tibco.com"

// WebSocket close codes relevant to the reconnect decision.
const (
	closeNormal   = 1000
	closeAbnormal = 1006
	closeRestart  = 1012
)

// Server-origin protocol error codes.
const (
	ErrPublishFailed           = 11
	ErrSubscriptionsDisallowed = 13
	ErrSubscriptionFailed      = 21
	ErrSubscriptionInvalid     = 22
	ErrRequestDisallowed       = 40
	ErrRequestFailed           = 41
	ErrRequestTimeout          = 99
)

// AckMode controls how inbound events on a subscription are
// acknowledged.
type AckMode string

const (
	// AckAuto acknowledges every event automatically as it is
	// delivered to on_message. This is the default.
	AckAuto AckMode = "auto"
	// AckClient requires the application to call Acknowledge or
	// AcknowledgeAll explicitly; unacknowledged events are replayed
	// after reconnect.
	AckClient AckMode = "client"
	// AckNone disables acknowledgement entirely.
	AckNone AckMode = "none"
)

// wireFrame is the generic envelope shape used to both encode outbound
// frames and peek at inbound ones before full decode. Every field is
// optional except Op; json omits zero-valued fields so a frame only
// carries the keys it needs, matching the protocol table.
type wireFrame struct {
	Op int `json:"op"`

	// LOGIN
	Protocol       int            `json:"protocol,omitempty"`
	ClientType     string         `json:"client_type,omitempty"`
	ClientVersion  string         `json:"client_version,omitempty"`
	User           string         `json:"user,omitempty"`
	Password       string         `json:"password,omitempty"`
	ClientID       string         `json:"client_id,omitempty"`
	IDToken        string         `json:"id_token,omitempty"`
	LoginOptions   map[string]any `json:"login_options,omitempty"`
	MaxPendingAcks int            `json:"max_pending_acks,omitempty"`

	// WELCOME
	Timeout   int     `json:"timeout,omitempty"`
	Heartbeat int     `json:"heartbeat,omitempty"`
	MaxSize   int     `json:"max_size,omitempty"`
	Resume    boolish `json:"_resume,omitempty"`
	QoS       boolish `json:"_qos,omitempty"`

	// SUBSCRIBE / SUBSCRIBED / UNSUBSCRIBE / UNSUBSCRIBED
	ID      string          `json:"id,omitempty"`
	Matcher json.RawMessage `json:"matcher,omitempty"`
	Durable string          `json:"durable,omitempty"`
	Type    string          `json:"type,omitempty"`
	Key     string          `json:"key,omitempty"`
	Del     bool            `json:"del,omitempty"`

	// EVENT / MESSAGE / REQUEST / REPLY / ACK / REQUEST_REPLY
	To      string          `json:"to,omitempty"`
	Seq     uint64          `json:"seq,omitempty"`
	Body    json.RawMessage `json:"body,omitempty"`
	Sid     string          `json:"sid,omitempty"`
	Cnt     int             `json:"cnt,omitempty"`
	ReplyTo string          `json:"reply_to,omitempty"`
	Req     string          `json:"req,omitempty"`

	// ERROR / ACK / UNSUBSCRIBED / REQUEST_REPLY / MAP_RESPONSE
	Err    int    `json:"err,omitempty"`
	Reason string `json:"reason,omitempty"`

	// MAP_SET / MAP_GET / MAP_REMOVE / MAP_DESTROY / MAP_RESPONSE
	Map   string          `json:"map,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`

	// DISCONNECT
	Force bool `json:"force,omitempty"`
}
