package eftl

import (
	"errors"
	"testing"
	"time"
)

func TestRequestTable_InsertGetRemove(t *testing.T) {
	tbl := newRequestTable()
	req := &pendingRequest{seq: 7, kind: reqPublish}
	tbl.insert(req)

	got, ok := tbl.get(7)
	if !ok || got != req {
		t.Fatalf("get(7) = %v, %v", got, ok)
	}
	tbl.remove(7)
	if _, ok := tbl.get(7); ok {
		t.Error("entry survived remove")
	}
	if tbl.len() != 0 {
		t.Errorf("len = %d", tbl.len())
	}
}

func TestRequestTable_RemoveStopsTimer(t *testing.T) {
	tbl := newRequestTable()
	fired := make(chan struct{}, 1)
	req := &pendingRequest{
		seq:   1,
		kind:  reqSendRequest,
		timer: time.AfterFunc(20*time.Millisecond, func() { fired <- struct{}{} }),
	}
	tbl.insert(req)
	tbl.remove(1)

	select {
	case <-fired:
		t.Error("timer fired after remove")
	case <-time.After(60 * time.Millisecond):
	}
}

func TestRequestTable_AscendingOrder(t *testing.T) {
	tbl := newRequestTable()
	for _, seq := range []uint64{5, 1, 9, 3, 7} {
		tbl.insert(&pendingRequest{seq: seq})
	}
	var got []uint64
	for _, req := range tbl.ascending() {
		got = append(got, req.seq)
	}
	want := []uint64{1, 3, 5, 7, 9}
	for i, seq := range want {
		if got[i] != seq {
			t.Fatalf("ascending = %v, want %v", got, want)
		}
	}
}

func TestRequestTable_DrainFiresEveryError(t *testing.T) {
	tbl := newRequestTable()
	var errs []error
	for seq := uint64(1); seq <= 3; seq++ {
		tbl.insert(&pendingRequest{
			seq:       seq,
			callbacks: requestCallbacks{onError: func(err error) { errs = append(errs, err) }},
		})
	}
	drainErr := &ProtocolError{Code: ErrPublishFailed, Reason: "Closed"}
	tbl.drain(drainErr)

	if len(errs) != 3 {
		t.Fatalf("drained %d callbacks, want 3", len(errs))
	}
	var pe *ProtocolError
	if !errors.As(errs[0], &pe) || pe.Code != ErrPublishFailed {
		t.Errorf("drain error = %v", errs[0])
	}
	if tbl.len() != 0 {
		t.Errorf("table not empty after drain: %d", tbl.len())
	}
}
