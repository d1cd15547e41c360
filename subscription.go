package eftl

import "encoding/json"

// DurableType selects the persistence semantics of a named durable
// subscription.
type DurableType string

const (
	// DurableStandard is a single-consumer durable subscription.
	DurableStandard DurableType = "standard"
	// DurableShared load-balances delivery across every consumer
	// sharing the same durable name.
	DurableShared DurableType = "shared"
	// DurableLastValue retains only the most recent message per Key.
	DurableLastValue DurableType = "last-value"
)

// SubscriptionCallbacks is the capability record passed to Subscribe.
// Any field left nil is simply not invoked.
type SubscriptionCallbacks struct {
	// OnSubscribe fires once the server confirms the subscription
	// (SUBSCRIBED), including after it is restored on reconnect.
	OnSubscribe func()
	// OnMessage fires for each inbound EVENT whose sequence number is
	// strictly greater than the last one delivered on this
	// subscription.
	OnMessage func(msg *Message)
	// OnError fires if the server rejects the subscription
	// (UNSUBSCRIBED carrying an error).
	OnError func(err error)
}

// SubscriptionOptions configures a single Subscribe call.
type SubscriptionOptions struct {
	// Matcher is a JSON object whose fields must equal the
	// corresponding fields of a message for it to be delivered. Nil
	// or empty matches everything.
	Matcher map[string]any
	// Durable names a server-persisted subscription that survives
	// client restarts. Empty means non-durable.
	Durable string
	// DurableType selects standard/shared/last-value semantics.
	// Ignored when Durable is empty.
	DurableType DurableType
	// Key is the last-value index key. Legal only when DurableType
	// is DurableLastValue.
	Key string
	// Ack selects the acknowledgement mode. Defaults to AckAuto.
	Ack AckMode
}

// Subscription is a single registered subscription. Fields are
// mutated only from the owning Connection's internal loop.
type Subscription struct {
	ID                         string
	opts                       SubscriptionOptions
	callbacks                  SubscriptionCallbacks
	lastReceivedSequenceNumber int64
	pending                    bool

	// pendingAcks holds, in delivery order, the sequence numbers of
	// events delivered under AckClient that have not yet been
	// acknowledged. Unused for other ack modes.
	pendingAcks []uint64
}

// ackMode returns the subscription's acknowledgement mode, defaulting
// to AckAuto when unset.
func (s *Subscription) ackMode() AckMode {
	if s.opts.Ack == "" {
		return AckAuto
	}
	return s.opts.Ack
}

// recordPendingAck notes that seq was delivered under AckClient and is
// awaiting an explicit Acknowledge/AcknowledgeAll call.
func (s *Subscription) recordPendingAck(seq uint64) {
	s.pendingAcks = append(s.pendingAcks, seq)
}

// removePendingAck drops seq from the pending-ack list after a single
// explicit Acknowledge.
func (s *Subscription) removePendingAck(seq uint64) {
	for i, pending := range s.pendingAcks {
		if pending == seq {
			s.pendingAcks = append(s.pendingAcks[:i], s.pendingAcks[i+1:]...)
			return
		}
	}
}

// drainAcksUpTo removes and returns every pending ack sequence number
// less than or equal to seq, in ascending order, for AcknowledgeAll.
func (s *Subscription) drainAcksUpTo(seq uint64) []uint64 {
	var acked []uint64
	var remaining []uint64
	for _, pending := range s.pendingAcks {
		if pending <= seq {
			acked = append(acked, pending)
		} else {
			remaining = append(remaining, pending)
		}
	}
	s.pendingAcks = remaining
	return acked
}

func newSubscription(id string, opts SubscriptionOptions, cb SubscriptionCallbacks) *Subscription {
	return &Subscription{
		ID:                         id,
		opts:                       opts,
		callbacks:                  cb,
		lastReceivedSequenceNumber: -1,
		pending:                    true,
	}
}

// subscribeFrame builds the SUBSCRIBE frame for this subscription.
func (s *Subscription) subscribeFrame() (*wireFrame, error) {
	f := &wireFrame{Op: opSubscribe, ID: s.ID}
	if len(s.opts.Matcher) > 0 {
		raw, err := json.Marshal(s.opts.Matcher)
		if err != nil {
			return nil, &ValueError{Reason: "invalid matcher: " + err.Error()}
		}
		f.Matcher = raw
	}
	if s.opts.Durable != "" {
		f.Durable = s.opts.Durable
		if s.opts.DurableType != "" {
			f.Type = string(s.opts.DurableType)
		}
		if s.opts.Key != "" {
			if s.opts.DurableType != DurableLastValue {
				return nil, &ValueError{Reason: "key is only valid for last-value durables"}
			}
			f.Key = s.opts.Key
		}
	} else if s.opts.Key != "" {
		return nil, &ValueError{Reason: "key requires a last-value durable"}
	}
	return f, nil
}

// subscriptionRegistry holds every live Subscription for one
// Connection, keyed by id. It is mutated only from the Connection's
// internal loop goroutine.
type subscriptionRegistry struct {
	subs map[string]*Subscription
}

func newSubscriptionRegistry() *subscriptionRegistry {
	return &subscriptionRegistry{subs: make(map[string]*Subscription)}
}

func (r *subscriptionRegistry) add(s *Subscription) {
	r.subs[s.ID] = s
}

func (r *subscriptionRegistry) get(id string) (*Subscription, bool) {
	s, ok := r.subs[id]
	return s, ok
}

func (r *subscriptionRegistry) remove(id string) {
	delete(r.subs, id)
}

// all returns every subscription, in no particular order. Each
// element carries its own id in Subscription.ID.
func (r *subscriptionRegistry) all() []*Subscription {
	out := make([]*Subscription, 0, len(r.subs))
	for _, s := range r.subs {
		out = append(out, s)
	}
	return out
}

// onWelcome resets replay state across a reconnect. When resume is
// false the server has discarded session state, so every
// last-received sequence number must reset to -1 so the client does
// not silently drop the server's upcoming retransmission of messages
// it believes are new. When resume is true, state is left untouched.
func (r *subscriptionRegistry) onWelcome(resume bool) {
	if resume {
		return
	}
	for _, s := range r.subs {
		s.lastReceivedSequenceNumber = -1
		s.pendingAcks = nil
	}
}
