package eftl

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestMessage_SetGet(t *testing.T) {
	now := time.UnixMilli(1700000000000).UTC()
	msg := &Message{}
	msg.SetString("text", "hello")
	msg.SetLong("long", 101)
	msg.SetDouble("double", 3.5)
	msg.SetDateTime("time", now)
	msg.SetOpaque("blob", []byte{0x01, 0x02})
	nested := &Message{}
	nested.SetString("inner", "x")
	msg.SetMessage("nested", nested)

	if got, err := msg.GetString("text"); err != nil || got != "hello" {
		t.Errorf("GetString = %q, %v", got, err)
	}
	if got, err := msg.GetLong("long"); err != nil || got != 101 {
		t.Errorf("GetLong = %d, %v", got, err)
	}
	if got, err := msg.GetDouble("double"); err != nil || got != 3.5 {
		t.Errorf("GetDouble = %v, %v", got, err)
	}
	if got, err := msg.GetDateTime("time"); err != nil || !got.Equal(now) {
		t.Errorf("GetDateTime = %v, %v", got, err)
	}
	if got, err := msg.GetOpaque("blob"); err != nil || !reflect.DeepEqual(got, []byte{0x01, 0x02}) {
		t.Errorf("GetOpaque = %v, %v", got, err)
	}
	if got, err := msg.GetMessage("nested"); err != nil || got != nested {
		t.Errorf("GetMessage = %v, %v", got, err)
	}
}

func TestMessage_TypeMismatch(t *testing.T) {
	msg := &Message{}
	msg.SetString("text", "hello")

	_, err := msg.GetLong("text")
	var tm *TypeMismatch
	if !errors.As(err, &tm) {
		t.Fatalf("GetLong on string field: got %v, want TypeMismatch", err)
	}
	if tm.Field != "text" || tm.Want != "long" || tm.Have != "string" {
		t.Errorf("TypeMismatch = %+v", tm)
	}
}

func TestMessage_NotFound(t *testing.T) {
	msg := &Message{}
	_, err := msg.GetString("absent")
	var nf *NotFound
	if !errors.As(err, &nf) {
		t.Fatalf("got %v, want NotFound", err)
	}
	if nf.Field != "absent" {
		t.Errorf("NotFound.Field = %q", nf.Field)
	}
}

func TestMessage_OverwriteKeepsPosition(t *testing.T) {
	msg := &Message{}
	msg.SetString("a", "1")
	msg.SetString("b", "2")
	msg.SetString("a", "updated")

	if got := msg.Fields(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("Fields = %v", got)
	}
	if got, _ := msg.GetString("a"); got != "updated" {
		t.Errorf("a = %q", got)
	}
}

func TestMessage_Remove(t *testing.T) {
	msg := &Message{}
	msg.SetString("a", "1")
	msg.SetString("b", "2")
	msg.SetString("c", "3")
	msg.Remove("b")

	if msg.Has("b") {
		t.Error("b still present after Remove")
	}
	if got := msg.Fields(); !reflect.DeepEqual(got, []string{"a", "c"}) {
		t.Errorf("Fields = %v", got)
	}
	// Index stays consistent after the shift.
	if got, err := msg.GetString("c"); err != nil || got != "3" {
		t.Errorf("c = %q, %v", got, err)
	}
	msg.Remove("never-there")
}

func TestMessage_ArrayAccess(t *testing.T) {
	msg := &Message{}
	msg.Set("longs", NewArray(KindLong, []Value{NewLong(1), NewLong(2), NewLong(3)}))

	elems, err := msg.GetArray("longs")
	if err != nil {
		t.Fatal(err)
	}
	if len(elems) != 3 || elems[1].Kind() != KindLong {
		t.Errorf("elems = %v", elems)
	}
}

func TestMessage_String(t *testing.T) {
	msg := &Message{}
	msg.SetString("text", "hi")
	msg.SetLong("n", 7)
	msg.SetOpaque("blob", []byte{1, 2, 3})

	s := msg.String()
	for _, want := range []string{"text:hi", "n:7", "<opaque:3 bytes>"} {
		if !strings.Contains(s, want) {
			t.Errorf("String() = %q, missing %q", s, want)
		}
	}
}
