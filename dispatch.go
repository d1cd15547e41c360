package eftl

import (
	"context"
	"time"
)

// runLoop executes posted commands serially until one reports the loop
// should stop (terminal disconnect). Every mutation of Connection state
// and every user callback happens here.
func (c *Connection) runLoop() {
	for {
		cmd := <-c.cmdCh
		if cmd() {
			close(c.doneCh)
			return
		}
	}
}

// readLoop pumps frames off one transport and marshals them onto the
// loop. gen ties the pump to the transport generation it was started
// for, so a pump left over from a replaced transport cannot touch
// current state.
func (c *Connection) readLoop(tr *transport, gen int) {
	for {
		f, err := tr.recv()
		if err != nil {
			code := classifyClose(err)
			reason := closeReason(err)
			c.post(func() bool { return c.handleTransportClosed(gen, code, reason) })
			return
		}
		c.post(func() bool { return c.handleFrame(gen, f) })
	}
}

// handleFrame dispatches one inbound frame by op code. Any inbound
// traffic proves the server is alive, so the heartbeat-timeout timer is
// rearmed first.
func (c *Connection) handleFrame(gen int, f *wireFrame) bool {
	if gen != c.generation || c.tr == nil {
		return false
	}
	c.armHeartbeatTimer(gen)

	switch f.Op {
	case opHeartbeat:
		// Echoed back verbatim.
		c.sendIfConnected(f)
	case opSubscribed:
		c.handleSubscribed(f)
	case opUnsubscribed:
		c.handleUnsubscribed(f)
	case opEvent:
		c.handleEvent(f)
	case opAck:
		c.handleAck(f)
	case opRequestReply:
		c.handleRequestReply(f)
	case opMapResponse:
		c.handleMapResponse(f)
	case opError:
		c.logger.Error("eftl server error", "code", f.Err, "reason", f.Reason)
		if c.callbacks.OnError != nil {
			c.callbacks.OnError(&ProtocolError{Code: f.Err, Reason: f.Reason})
		}
	default:
		c.logger.Debug("eftl unexpected op", "op", f.Op)
	}
	return false
}

func (c *Connection) handleSubscribed(f *wireFrame) {
	sub, ok := c.subs.get(f.ID)
	if !ok {
		return
	}
	sub.pending = false
	c.logger.Debug("eftl subscribed", "id", sub.ID)
	if sub.callbacks.OnSubscribe != nil {
		sub.callbacks.OnSubscribe()
	}
}

func (c *Connection) handleUnsubscribed(f *wireFrame) {
	sub, ok := c.subs.get(f.ID)
	if !ok {
		return
	}
	if f.Err == 0 {
		return
	}
	c.logger.Warn("eftl subscription rejected", "id", sub.ID, "code", f.Err, "reason", f.Reason)
	if f.Err == ErrSubscriptionInvalid {
		c.subs.remove(sub.ID)
	}
	if sub.callbacks.OnError != nil {
		sub.callbacks.OnError(&ProtocolError{Code: f.Err, Reason: f.Reason})
	}
}

// handleEvent delivers an inbound EVENT to its subscription, dropping
// replayed duplicates: OnMessage fires only for sequence numbers
// strictly greater than the last one delivered on that subscription.
// Auto-mode acknowledgements are sent for every sequenced event,
// duplicates included, so the server can trim its redelivery window.
func (c *Connection) handleEvent(f *wireFrame) {
	sub, ok := c.subs.get(f.To)
	if !ok {
		c.logger.Debug("eftl event for unknown subscription", "to", f.To)
		return
	}

	if f.Seq == 0 {
		// Unsequenced event (QoS off): no dedupe, no ack.
		c.deliverEvent(sub, f)
		return
	}

	if int64(f.Seq) > sub.lastReceivedSequenceNumber {
		c.deliverEvent(sub, f)
		sub.lastReceivedSequenceNumber = int64(f.Seq)
		if sub.ackMode() == AckClient {
			sub.recordPendingAck(f.Seq)
		}
	} else {
		c.logger.Debug("eftl duplicate event dropped", "to", sub.ID, "seq", f.Seq)
	}
	if sub.ackMode() == AckAuto {
		c.sendIfConnected(&wireFrame{Op: opAck, Seq: f.Seq, ID: sub.ID})
	}
}

func (c *Connection) deliverEvent(sub *Subscription, f *wireFrame) {
	msg, err := decodeEventMessage(f)
	if err != nil {
		c.logger.Warn("eftl undecodable event body", "to", sub.ID, "seq", f.Seq, "error", err)
		return
	}
	if sub.callbacks.OnMessage != nil {
		sub.callbacks.OnMessage(msg)
	}
}

// decodeEventMessage decodes an EVENT body and attaches the envelope
// metadata the application may need for acknowledgement and replies.
func decodeEventMessage(f *wireFrame) (*Message, error) {
	msg := &Message{}
	if len(f.Body) > 0 {
		if err := msg.UnmarshalJSON(f.Body); err != nil {
			return nil, err
		}
	}
	msg.seq = f.Seq
	msg.hasSeq = f.Seq > 0
	msg.subscriberID = f.To
	msg.storeMessageID = f.Sid
	msg.deliveryCount = f.Cnt
	msg.replyTo = f.ReplyTo
	msg.requestID = f.Req
	return msg, nil
}

func (c *Connection) handleAck(f *wireFrame) {
	req, ok := c.reqs.get(f.Seq)
	if !ok {
		c.logger.Debug("eftl ack for unknown sequence", "seq", f.Seq)
		return
	}
	c.reqs.remove(f.Seq)
	if f.Err != 0 {
		if req.callbacks.onError != nil {
			req.callbacks.onError(&ProtocolError{Code: f.Err, Reason: f.Reason})
		}
		return
	}
	if req.callbacks.onComplete != nil {
		req.callbacks.onComplete(req.message)
	}
}

func (c *Connection) handleRequestReply(f *wireFrame) {
	req, ok := c.reqs.get(f.Seq)
	if !ok {
		// A reply racing a fired request timer lands here and is
		// silently discarded.
		c.logger.Debug("eftl reply for unknown sequence", "seq", f.Seq)
		return
	}
	c.reqs.remove(f.Seq)
	if f.Err != 0 {
		if req.callbacks.onError != nil {
			req.callbacks.onError(&ProtocolError{Code: f.Err, Reason: f.Reason})
		}
		return
	}
	var body *Message
	if len(f.Body) > 0 {
		body = &Message{}
		if err := body.UnmarshalJSON(f.Body); err != nil {
			c.logger.Warn("eftl undecodable reply body", "seq", f.Seq, "error", err)
			body = nil
		}
	}
	if req.callbacks.onReply != nil {
		req.callbacks.onReply(body)
	}
}

func (c *Connection) handleMapResponse(f *wireFrame) {
	req, ok := c.reqs.get(f.Seq)
	if !ok {
		c.logger.Debug("eftl map response for unknown sequence", "seq", f.Seq)
		return
	}
	c.reqs.remove(f.Seq)
	if f.Err != 0 {
		if req.callbacks.onError != nil {
			req.callbacks.onError(&ProtocolError{Code: f.Err, Reason: f.Reason})
		}
		return
	}
	var value *Message
	if len(f.Value) > 0 {
		value = &Message{}
		if err := value.UnmarshalJSON(f.Value); err != nil {
			c.logger.Warn("eftl undecodable map value", "seq", f.Seq, "error", err)
			value = nil
		}
	}
	if req.callbacks.onMapResponse != nil {
		req.callbacks.onMapResponse(value)
	}
}

// applyWelcome records the negotiated session parameters, transitions
// to Connected, and restores client state: when the server did not
// resume the session, pending requests are unrecoverable (drained with
// ERR_PUBLISH_FAILED) and sequence tracking starts over; either way
// every registered subscription is re-sent, and on resume the surviving
// pending requests are replayed in ascending sequence order before any
// new user-initiated send can interleave.
func (c *Connection) applyWelcome(f *wireFrame) {
	resume := bool(f.Resume)

	c.clientID = f.ClientID
	c.idToken = f.IDToken
	c.serverTimeoutDur = time.Duration(f.Timeout) * time.Second
	c.heartbeatDur = time.Duration(f.Heartbeat) * time.Second
	c.maxSize = f.MaxSize
	c.maxSizeAtomic.Store(int64(f.MaxSize))
	c.qos = bool(f.QoS)
	if f.MaxSize > 0 {
		// Allow envelope overhead on top of the body limit.
		c.tr.setReadLimit(int64(f.MaxSize) + 4096)
	}

	c.state = StateConnected
	c.connectedFlag.Store(true)
	c.reconnectAttempt = 0
	c.armHeartbeatTimer(c.generation)

	c.logger.Info("eftl connected", "client_id", c.clientID, "resume", resume,
		"heartbeat", c.heartbeatDur, "timeout", c.serverTimeoutDur, "max_size", c.maxSize, "qos", c.qos)

	if !resume {
		c.reqs.drain(&ProtocolError{Code: ErrPublishFailed, Reason: "Closed"})
		c.publishSeq = 0
	}

	c.subs.onWelcome(resume)
	for _, sub := range c.subs.all() {
		sub.pending = true
		frame, err := sub.subscribeFrame()
		if err != nil {
			// Validated when the subscription was registered.
			continue
		}
		c.sendIfConnected(frame)
	}

	for _, req := range c.reqs.ascending() {
		c.sendIfConnected(req.frame)
	}
}

func (c *Connection) armHeartbeatTimer(gen int) {
	c.stopHeartbeatTimer()
	if c.serverTimeoutDur <= 0 {
		return
	}
	c.heartbeatTimer = time.AfterFunc(c.serverTimeoutDur, func() {
		c.post(func() bool { return c.handleHeartbeatTimeout(gen) })
	})
}

func (c *Connection) stopHeartbeatTimer() {
	if c.heartbeatTimer != nil {
		c.heartbeatTimer.Stop()
		c.heartbeatTimer = nil
	}
}

// handleHeartbeatTimeout fires when no frame of any kind has arrived
// within the server-advertised timeout. The transport is force-closed
// and the close is treated as abnormal, entering the reconnect path.
func (c *Connection) handleHeartbeatTimeout(gen int) bool {
	if gen != c.generation || c.tr == nil || c.state != StateConnected {
		return false
	}
	c.logger.Warn("eftl heartbeat timeout", "timeout", c.serverTimeoutDur)
	_ = c.tr.closeAbnormal()
	c.tr = nil
	return c.transportLost(closeAbnormal, "Connection timeout")
}

// handleTransportClosed runs when the read pump for generation gen
// dies. A stale generation, or a transport already torn down by the
// heartbeat timer or an explicit disconnect, is ignored.
func (c *Connection) handleTransportClosed(gen int, code int, reason string) bool {
	if gen != c.generation || c.tr == nil {
		return false
	}
	if c.state == StateDisconnecting || c.state == StateDisconnected {
		return false
	}
	_ = c.tr.closeAbnormal()
	c.tr = nil
	return c.transportLost(code, reason)
}

// transportLost decides, per the close code and the remaining attempt
// budget, between scheduling a reconnect and giving up for good. The
// Request Table deliberately survives here: whether its entries are
// replayed or drained is decided at the next WELCOME by the _resume
// flag (see applyWelcome), or by giveUp if no reconnect happens.
func (c *Connection) transportLost(code int, reason string) bool {
	c.stopHeartbeatTimer()
	c.connectedFlag.Store(false)
	c.lastCloseCode = code
	c.lastCloseReason = reason

	if code == closeNormal || code == closeRestart {
		c.logger.Info("eftl connection closed", "code", code, "reason", reason)
		return c.giveUp()
	}
	if c.reconnectAttempt >= c.opts.AutoReconnectAttempts {
		return c.giveUp()
	}

	c.state = StateReconnecting
	delay := backoffDelay(c.reconnectAttempt, &c.firstRetryDelay, c.opts.AutoReconnectMaxDelay)
	c.reconnectAttempt++
	c.logger.Info("eftl reconnecting", "attempt", c.reconnectAttempt, "delay", delay, "code", code, "reason", reason)
	c.startAttempt(delay)
	return false
}

// giveUp transitions to Disconnected for good: drains every pending
// request, and fires OnDisconnect exactly once with the last observed
// close code and reason.
func (c *Connection) giveUp() bool {
	c.state = StateDisconnected
	c.connectedFlag.Store(false)
	c.openFlag.Store(false)
	c.reqs.drain(&ProtocolError{Code: ErrPublishFailed, Reason: "Closed"})
	c.notifyConnect(&ClientError{Reason: c.lastCloseReason})
	if c.callbacks.OnDisconnect != nil {
		c.callbacks.OnDisconnect(c, c.lastCloseCode, c.lastCloseReason)
	}
	return false
}

// notifyConnect completes a blocking Connect call, if one is waiting.
func (c *Connection) notifyConnect(err error) {
	if c.connectErrCh == nil {
		return
	}
	c.connectErrCh <- err
	c.connectErrCh = nil
}

// startAttempt spawns one dial+login attempt against the endpoint under
// the cursor, after delay. The attempt runs off-loop on a snapshot of
// the connection's dial parameters and posts its outcome back through
// finishAttempt. reconnectCancel aborts both the delay and the dial.
func (c *Connection) startAttempt(delay time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	c.reconnectCancel = cancel

	ep := c.endpoints[c.cursor%len(c.endpoints)]
	idToken := c.idToken
	opts := c.opts
	attemptTimeout := opts.HandshakeTimeout + opts.LoginTimeout

	go func() {
		defer cancel()
		if delay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
		}
		attemptCtx, attemptCancel := context.WithTimeout(ctx, attemptTimeout)
		tr, welcome, err := connectOnce(attemptCtx, ep, opts, idToken)
		attemptCancel()
		c.post(func() bool { return c.finishAttempt(ep, tr, welcome, err) })
	}()
}

// finishAttempt consumes the outcome of one dial attempt on the loop:
// success promotes the new transport and applies WELCOME; failure
// advances the endpoint cursor and either schedules the next attempt
// with the grown backoff delay or gives up.
func (c *Connection) finishAttempt(ep *endpoint, tr *transport, welcome *wireFrame, err error) bool {
	if c.state != StateConnecting && c.state != StateReconnecting {
		// Disconnect won the race; discard a late success.
		if tr != nil {
			_ = tr.closeAbnormal()
		}
		return false
	}
	c.reconnectCancel = nil
	c.cursor++

	if err == nil {
		c.tr = tr
		c.generation++
		c.applyWelcome(welcome)
		go c.readLoop(tr, c.generation)
		c.notifyConnect(nil)
		return false
	}

	c.logger.Debug("eftl connect attempt failed", "endpoint", ep.raw, "attempt", c.reconnectAttempt, "error", err)

	if c.reconnectAttempt+1 >= c.opts.AutoReconnectAttempts {
		lastErr := &ClientError{Reason: err.Error()}
		if c.state == StateConnecting {
			// Initial connect: report synchronously to the caller, no
			// disconnect callback for a connection that never was.
			c.state = StateDisconnected
			c.openFlag.Store(false)
			c.notifyConnect(lastErr)
			return false
		}
		c.lastCloseReason = err.Error()
		return c.giveUp()
	}

	delay := backoffDelay(c.reconnectAttempt, &c.firstRetryDelay, c.opts.AutoReconnectMaxDelay)
	c.reconnectAttempt++
	c.startAttempt(delay)
	return false
}
