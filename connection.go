package eftl

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// State is a Connection's position in its lifecycle.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateDisconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}

// ConnectionCallbacks is the capability record for connection-level
// events.
type ConnectionCallbacks struct {
	// OnDisconnect fires exactly once when the Connection gives up for
	// good: either Disconnect was called, or reconnect attempts were
	// exhausted.
	OnDisconnect func(conn *Connection, code int, reason string)
	// OnError is the fallback for protocol errors that reference
	// neither a pending Request nor a Subscription.
	OnError func(err error)
}

// PublishCallbacks is the capability record for Publish and SendReply.
type PublishCallbacks struct {
	OnComplete func(msg *Message)
	OnError    func(err error)
}

// RequestReplyCallbacks is the capability record for SendRequest.
type RequestReplyCallbacks struct {
	OnReply func(body *Message)
	OnError func(err error)
}

// command is one unit of work executed serially on a Connection's
// internal loop goroutine. Returning true stops the loop.
type command func() bool

// Connection owns a transport, the login handshake, inbound op-code
// dispatch, reconnect scheduling, and restoration of subscriptions and
// pending requests on resume. Non-atomic fields are touched only from
// the internal loop goroutine.
type Connection struct {
	opts      ConnectOptions
	callbacks ConnectionCallbacks
	logger    *slog.Logger

	endpoints []*endpoint
	cursor    int

	state State

	clientID         string
	idToken          string
	heartbeatDur     time.Duration
	serverTimeoutDur time.Duration
	maxSize          int
	qos              bool

	publishSeq uint64
	subSeq     uint64

	reconnectAttempt int
	firstRetryDelay  time.Duration
	reconnectCancel  context.CancelFunc
	lastCloseCode    int
	lastCloseReason  string

	// connectErrCh completes a blocking Connect call; nil when no
	// Connect is waiting.
	connectErrCh chan error

	generation int
	tr         *transport

	subs *subscriptionRegistry
	reqs *requestTable

	heartbeatTimer *time.Timer

	cmdCh  chan command
	doneCh chan struct{}

	// maxSizeAtomic mirrors maxSize for lock-free synchronous reads
	// from Publish/SendRequest/KVMap.Set, which must raise
	// MessageSizeTooLarge at the call site before anything is queued.
	maxSizeAtomic atomic.Int64
	// connectedFlag mirrors state == StateConnected for IsConnected,
	// which callers may poll from any goroutine.
	connectedFlag atomic.Bool
	// openFlag is true from Connect until the connection permanently
	// closes; operations on a closed connection fail synchronously.
	openFlag atomic.Bool
}

// NewConnection parses urls (a pipe-separated endpoint list) and
// returns a Connection in StateDisconnected. No network I/O is
// performed until Connect is called. A malformed URL list is reported
// synchronously as a *ValueError.
func NewConnection(urls string, opts ConnectOptions, callbacks ConnectionCallbacks) (*Connection, error) {
	eps, err := parseEndpoints(urls)
	if err != nil {
		return nil, err
	}
	opts = opts.normalize()
	c := &Connection{
		opts:      opts,
		callbacks: callbacks,
		logger:    opts.Logger,
		endpoints: eps,
		subs:      newSubscriptionRegistry(),
		reqs:      newRequestTable(),
		cmdCh:     make(chan command, 256),
		doneCh:    make(chan struct{}),
	}
	go c.runLoop()
	return c, nil
}

// IsConnected reports whether the Connection currently holds a live,
// logged-in session. Safe to call from any goroutine.
func (c *Connection) IsConnected() bool { return c.connectedFlag.Load() }

// post enqueues fn to run on the loop goroutine, or discards it
// silently if the loop has already exited.
func (c *Connection) post(fn command) {
	select {
	case c.cmdCh <- fn:
	case <-c.doneCh:
	}
}

// Connect dials the endpoint list (shuffled uniformly at random to
// spread load) and performs the LOGIN/WELCOME handshake, retrying with
// the reconnect backoff schedule across endpoints until one succeeds
// or AutoReconnectAttempts is exhausted. It suspends until WELCOME
// arrives or every attempt is spent, returning a *ClientError in the
// latter case.
func (c *Connection) Connect(ctx context.Context) error {
	errCh := make(chan error, 1)
	c.post(func() bool {
		if c.state != StateDisconnected {
			errCh <- &ConnectionError{Reason: "Connect called while not disconnected"}
			return false
		}
		c.state = StateConnecting
		c.openFlag.Store(true)
		c.connectErrCh = errCh
		c.endpoints = shuffleEndpoints(c.endpoints)
		c.cursor = 0
		c.reconnectAttempt = 0
		c.startAttempt(0)
		return false
	})
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		c.post(func() bool { return c.abortConnect() })
		return ctx.Err()
	case <-c.doneCh:
		return &ConnectionError{Reason: "connection closed"}
	}
}

// abortConnect unwinds a Connect whose caller gave up (context
// cancelled) while an attempt was still in flight.
func (c *Connection) abortConnect() bool {
	if c.state != StateConnecting {
		return false
	}
	if c.reconnectCancel != nil {
		c.reconnectCancel()
		c.reconnectCancel = nil
	}
	c.state = StateDisconnected
	c.openFlag.Store(false)
	c.connectErrCh = nil
	return false
}

// Disconnect suspends until the close frame has been flushed, then
// returns. No further callback fires afterward except a single
// OnDisconnect. Safe to call once; a second call is a no-op.
func (c *Connection) Disconnect(ctx context.Context) error {
	doneCh := make(chan struct{})
	c.post(func() bool {
		defer close(doneCh)
		return c.doDisconnect(closeNormal, "disconnect requested")
	})
	select {
	case <-doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.doneCh:
		return nil
	}
}

// doDisconnect implements the explicit-disconnect protocol order:
// send DISCONNECT, close the transport, drain the request table, and
// only then fire OnDisconnect exactly once. Must run on the loop
// goroutine. Returning true stops the loop for good.
func (c *Connection) doDisconnect(code int, reason string) bool {
	if c.state == StateDisconnected {
		return true
	}
	if c.reconnectCancel != nil {
		c.reconnectCancel()
		c.reconnectCancel = nil
	}
	c.stopHeartbeatTimer()
	c.state = StateDisconnecting
	if c.tr != nil {
		_ = c.tr.send(&wireFrame{Op: opDisconnect, Force: true})
		_ = c.tr.closeNormal()
		c.tr = nil
	}
	c.reqs.drain(&ProtocolError{Code: ErrPublishFailed, Reason: "Closed"})
	c.state = StateDisconnected
	c.connectedFlag.Store(false)
	c.openFlag.Store(false)
	c.notifyConnect(&ConnectionError{Reason: "disconnected"})
	if c.callbacks.OnDisconnect != nil {
		c.callbacks.OnDisconnect(c, code, reason)
	}
	return true
}

// nextPublishSeq allocates the next monotonic sequence number. Must
// run on the loop goroutine: insertion into the Request Table and the
// frame write that uses this sequence happen in the same step,
// guaranteeing frames are written in the order their sequence numbers
// were allocated.
func (c *Connection) nextPublishSeq() uint64 {
	c.publishSeq++
	return c.publishSeq
}

// guardOpen rejects operations on a connection that is not live:
// never connected, permanently closed, or explicitly disconnected.
func (c *Connection) guardOpen() error {
	if !c.openFlag.Load() {
		return &ConnectionError{Reason: "Connection is closed"}
	}
	return nil
}

func (c *Connection) sizeCheck(body []byte) error {
	max := c.maxSizeAtomic.Load()
	if max > 0 && int64(len(body)) > max {
		return &MessageSizeTooLarge{Size: len(body), MaxSize: int(max)}
	}
	return nil
}

// Publish sends msg with QoS acknowledgement. cb.OnComplete fires on a
// successful ACK; cb.OnError fires on a protocol error. Publish
// returns as soon as the frame is queued; it does not wait for the ACK.
func (c *Connection) Publish(msg *Message, cb PublishCallbacks) error {
	if err := c.guardOpen(); err != nil {
		return err
	}
	body, err := msg.MarshalJSON()
	if err != nil {
		return &ValueError{Reason: err.Error()}
	}
	if err := c.sizeCheck(body); err != nil {
		return err
	}
	c.post(func() bool {
		seq := c.nextPublishSeq()
		frame := &wireFrame{Op: opMessage, Body: body, Seq: seq}
		req := &pendingRequest{
			seq: seq, kind: reqPublish, frame: frame, message: msg,
			callbacks: requestCallbacks{onComplete: cb.OnComplete, onError: cb.OnError},
		}
		c.reqs.insert(req)
		c.sendIfConnected(frame)
		return false
	})
	return nil
}

// SendReply answers an inbound request message (one whose ReplyTo and
// RequestID metadata are set, i.e. a Message received via an
// on_message callback carrying request routing) with reply.
func (c *Connection) SendReply(reply *Message, request *Message, cb PublishCallbacks) error {
	if err := c.guardOpen(); err != nil {
		return err
	}
	if request.ReplyTo() == "" || request.RequestID() == "" {
		return &ValueError{Reason: "request message carries no reply routing metadata"}
	}
	body, err := reply.MarshalJSON()
	if err != nil {
		return &ValueError{Reason: err.Error()}
	}
	if err := c.sizeCheck(body); err != nil {
		return err
	}
	c.post(func() bool {
		seq := c.nextPublishSeq()
		frame := &wireFrame{Op: opReply, To: request.ReplyTo(), Req: request.RequestID(), Body: body, Seq: seq}
		req := &pendingRequest{
			seq: seq, kind: reqSendReply, frame: frame, message: reply,
			callbacks: requestCallbacks{onComplete: cb.OnComplete, onError: cb.OnError},
		}
		c.reqs.insert(req)
		c.sendIfConnected(frame)
		return false
	})
	return nil
}

// SendRequest sends msg and waits asynchronously for a single REPLY.
// If no reply arrives within timeout, cb.OnError fires with
// code=REQUEST_TIMEOUT and the pending entry is removed; a REPLY that
// arrives afterward is silently discarded. A non-positive timeout
// disables the timer entirely.
func (c *Connection) SendRequest(msg *Message, timeout time.Duration, cb RequestReplyCallbacks) error {
	if err := c.guardOpen(); err != nil {
		return err
	}
	body, err := msg.MarshalJSON()
	if err != nil {
		return &ValueError{Reason: err.Error()}
	}
	if err := c.sizeCheck(body); err != nil {
		return err
	}
	c.post(func() bool {
		seq := c.nextPublishSeq()
		frame := &wireFrame{Op: opRequest, Body: body, Seq: seq}
		req := &pendingRequest{
			seq: seq, kind: reqSendRequest, frame: frame, message: msg,
			callbacks: requestCallbacks{onReply: cb.OnReply, onError: cb.OnError},
		}
		if timeout > 0 {
			req.timer = time.AfterFunc(timeout, func() {
				c.post(func() bool { return c.handleRequestTimeout(seq) })
			})
		}
		c.reqs.insert(req)
		c.sendIfConnected(frame)
		return false
	})
	return nil
}

func (c *Connection) handleRequestTimeout(seq uint64) bool {
	req, ok := c.reqs.get(seq)
	if !ok {
		return false
	}
	c.reqs.remove(seq)
	if req.callbacks.onError != nil {
		req.callbacks.onError(&ProtocolError{Code: ErrRequestTimeout, Reason: "request timeout"})
	}
	return false
}

// sendIfConnected writes f to the transport if currently connected,
// logging (rather than failing the caller) on a send error: the
// frame remains in the Request Table and will be retried on the next
// successful resume.
func (c *Connection) sendIfConnected(f *wireFrame) {
	if c.state != StateConnected || c.tr == nil {
		return
	}
	if err := c.tr.send(f); err != nil {
		c.logger.Warn("eftl send failed", "op", f.Op, "error", err)
	}
}

// Subscribe registers opts with a client-generated id and, if
// currently connected, sends the SUBSCRIBE frame immediately. The id
// is generated and the Subscription registered before any network
// round trip, and returned without waiting for
// SUBSCRIBED; cb.OnSubscribe fires later, asynchronously.
func (c *Connection) Subscribe(opts SubscriptionOptions, cb SubscriptionCallbacks) (string, error) {
	if err := c.guardOpen(); err != nil {
		return "", err
	}
	if opts.Key != "" && opts.DurableType != DurableLastValue {
		return "", &ValueError{Reason: "key requires a last-value durable"}
	}
	type result struct {
		id  string
		err error
	}
	resCh := make(chan result, 1)
	c.post(func() bool {
		id := fmt.Sprintf("%s.s.%d", c.clientID, c.subSeq)
		c.subSeq++
		sub := newSubscription(id, opts, cb)
		frame, err := sub.subscribeFrame()
		if err != nil {
			resCh <- result{err: err}
			return false
		}
		c.subs.add(sub)
		resCh <- result{id: id}
		c.sendIfConnected(frame)
		return false
	})
	select {
	case r := <-resCh:
		return r.id, r.err
	case <-c.doneCh:
		return "", &ConnectionError{Reason: "Connection is closed"}
	}
}

// Unsubscribe removes a subscription immediately (it will not be
// restored across future reconnects) and, if connected, sends
// UNSUBSCRIBE. del requests the server also delete a durable's
// persisted state.
func (c *Connection) Unsubscribe(id string, del bool) error {
	if err := c.guardOpen(); err != nil {
		return err
	}
	c.post(func() bool {
		if _, ok := c.subs.get(id); !ok {
			return false
		}
		c.subs.remove(id)
		c.sendIfConnected(&wireFrame{Op: opUnsubscribe, ID: id, Del: del})
		return false
	})
	return nil
}

// Acknowledge acknowledges a single inbound message received under
// AckMode client. It is a no-op for messages received under other ack
// modes.
func (c *Connection) Acknowledge(msg *Message) error {
	if err := c.guardOpen(); err != nil {
		return err
	}
	seq, ok := msg.Sequence()
	if !ok {
		return &ValueError{Reason: "message carries no sequence number to acknowledge"}
	}
	subID := msg.SubscriberID()
	c.post(func() bool {
		if sub, ok := c.subs.get(subID); ok {
			if sub.ackMode() != AckClient {
				return false
			}
			sub.removePendingAck(seq)
		}
		c.sendIfConnected(&wireFrame{Op: opAck, Seq: seq, ID: subID})
		return false
	})
	return nil
}

// AcknowledgeAll acknowledges msg and every earlier unacknowledged
// message on the same subscription.
func (c *Connection) AcknowledgeAll(msg *Message) error {
	if err := c.guardOpen(); err != nil {
		return err
	}
	seq, ok := msg.Sequence()
	if !ok {
		return &ValueError{Reason: "message carries no sequence number to acknowledge"}
	}
	subID := msg.SubscriberID()
	c.post(func() bool {
		sub, ok := c.subs.get(subID)
		if !ok {
			c.sendIfConnected(&wireFrame{Op: opAck, Seq: seq, ID: subID})
			return false
		}
		for _, pending := range sub.drainAcksUpTo(seq) {
			c.sendIfConnected(&wireFrame{Op: opAck, Seq: pending, ID: subID})
		}
		return false
	})
	return nil
}

func (c *Connection) mapOp(kind requestKind, mapName, key string, value *Message, cb MapCallbacks) error {
	if err := c.guardOpen(); err != nil {
		return err
	}
	var body json.RawMessage
	if value != nil {
		b, err := value.MarshalJSON()
		if err != nil {
			return &ValueError{Reason: err.Error()}
		}
		if kind == reqMapSet {
			if err := c.sizeCheck(b); err != nil {
				return err
			}
		}
		body = b
	}
	c.post(func() bool {
		seq := c.nextPublishSeq()
		var op int
		switch kind {
		case reqMapSet:
			op = opMapSet
		case reqMapGet:
			op = opMapGet
		case reqMapRemove:
			op = opMapRemove
		}
		frame := &wireFrame{Op: op, Map: mapName, Key: key, Seq: seq}
		if kind == reqMapSet {
			frame.Value = body
		}
		req := &pendingRequest{
			seq: seq, kind: kind, frame: frame,
			callbacks: requestCallbacks{
				onMapResponse: func(v *Message) {
					if cb.OnSuccess != nil {
						cb.OnSuccess(v, key)
					}
				},
				onError: func(err error) {
					if cb.OnError != nil {
						cb.OnError(err, key)
					}
				},
			},
		}
		c.reqs.insert(req)
		c.sendIfConnected(frame)
		return false
	})
	return nil
}

func (c *Connection) mapDestroy(mapName string) error {
	if err := c.guardOpen(); err != nil {
		return err
	}
	c.post(func() bool {
		c.sendIfConnected(&wireFrame{Op: opMapDestroy, Map: mapName})
		return false
	})
	return nil
}
