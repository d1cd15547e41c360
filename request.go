package eftl

import (
	"sort"
	"time"
)

// requestKind identifies what kind of outbound operation a pending
// Request represents.
type requestKind int

const (
	reqPublish requestKind = iota
	reqMapSet
	reqMapGet
	reqMapRemove
	reqSendRequest
	reqSendReply
)

// requestCallbacks collects the terminal callbacks a pending Request
// may invoke. Exactly one fires per Request; the dispatcher removes
// the entry from the table as part of that terminal step.
type requestCallbacks struct {
	// onComplete fires for a successful ACK (publish, send-reply).
	// Its argument is the original outbound message.
	onComplete func(msg *Message)
	// onReply fires when a REQUEST_REPLY with a body arrives
	// (send-request only).
	onReply func(body *Message)
	// onMapResponse fires for a successful MAP_RESPONSE. value is nil
	// when the response carried no payload.
	onMapResponse func(value *Message)
	// onError fires for any failure: a non-zero ACK/MAP_RESPONSE/
	// REQUEST_REPLY err, a request timeout, or the table being
	// drained on an unresumable disconnect.
	onError func(err error)
}

// pendingRequest is one outstanding operation, keyed by the sequence
// number under which it was sent.
type pendingRequest struct {
	seq       uint64
	kind      requestKind
	frame     *wireFrame // wire form, retained for replay after resume
	message   *Message   // user-supplied message, for onComplete delivery
	callbacks requestCallbacks
	timer     *time.Timer // armed only for reqSendRequest
}

// requestTable maps outbound sequence numbers to pending operations.
// It is mutated only from the owning Connection's internal loop.
type requestTable struct {
	entries map[uint64]*pendingRequest
}

func newRequestTable() *requestTable {
	return &requestTable{entries: make(map[uint64]*pendingRequest)}
}

func (t *requestTable) insert(r *pendingRequest) {
	t.entries[r.seq] = r
}

func (t *requestTable) get(seq uint64) (*pendingRequest, bool) {
	r, ok := t.entries[seq]
	return r, ok
}

// remove deletes the entry for seq, stopping its timer if armed. It
// fires no callback; firing the entry's terminal callback is the
// caller's responsibility.
func (t *requestTable) remove(seq uint64) {
	if r, ok := t.entries[seq]; ok {
		if r.timer != nil {
			r.timer.Stop()
		}
		delete(t.entries, seq)
	}
}

// ascending returns every pending entry sorted by sequence number, the
// order replay after a resume=true reconnect must preserve.
func (t *requestTable) ascending() []*pendingRequest {
	out := make([]*pendingRequest, 0, len(t.entries))
	for _, r := range t.entries {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// drain fires onError(err) for every entry, stops its timer, and
// empties the table. Used on a transport close that is not going to
// be resumed.
func (t *requestTable) drain(err error) {
	for _, r := range t.ascending() {
		if r.timer != nil {
			r.timer.Stop()
		}
		if r.callbacks.onError != nil {
			r.callbacks.onError(err)
		}
	}
	t.entries = make(map[uint64]*pendingRequest)
}

func (t *requestTable) len() int { return len(t.entries) }
