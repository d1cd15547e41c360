package eftl

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"
)

func roundTrip(t *testing.T, in *Message) *Message {
	t.Helper()
	data, err := in.MarshalJSON()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out := &Message{}
	if err := out.UnmarshalJSON(data); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return out
}

func TestCodec_RoundTripScalars(t *testing.T) {
	now := time.UnixMilli(1700000000123).UTC()
	in := &Message{}
	in.SetString("s", "hello")
	in.SetLong("l", -42)
	in.SetDouble("d", 2.25)
	in.SetDateTime("t", now)
	in.SetOpaque("o", []byte("raw bytes"))

	out := roundTrip(t, in)

	if got, _ := out.GetString("s"); got != "hello" {
		t.Errorf("s = %q", got)
	}
	if got, _ := out.GetLong("l"); got != -42 {
		t.Errorf("l = %d", got)
	}
	if got, _ := out.GetDouble("d"); got != 2.25 {
		t.Errorf("d = %v", got)
	}
	if got, _ := out.GetDateTime("t"); !got.Equal(now) {
		t.Errorf("t = %v", got)
	}
	if got, _ := out.GetOpaque("o"); string(got) != "raw bytes" {
		t.Errorf("o = %q", got)
	}
}

func TestCodec_NonFiniteDoubles(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		wire string
	}{
		{"nan", math.NaN(), `"NaN"`},
		{"inf", math.Inf(1), `"Infinity"`},
		{"neg inf", math.Inf(-1), `"-Infinity"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := &Message{}
			in.SetDouble("d", tt.in)
			data, err := in.MarshalJSON()
			if err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(string(data), `{"_d_":`+tt.wire+`}`) {
				t.Errorf("wire form = %s", data)
			}
			out := &Message{}
			if err := out.UnmarshalJSON(data); err != nil {
				t.Fatal(err)
			}
			got, _ := out.GetDouble("d")
			if math.IsNaN(tt.in) {
				if !math.IsNaN(got) {
					t.Errorf("got %v, want NaN", got)
				}
			} else if got != tt.in {
				t.Errorf("got %v, want %v", got, tt.in)
			}
		})
	}
}

func TestCodec_DoubleWireTags(t *testing.T) {
	in := &Message{}
	in.SetDouble("d", 1.5)
	data, _ := in.MarshalJSON()
	if string(data) != `{"d":{"_d_":1.5}}` {
		t.Errorf("wire form = %s", data)
	}
}

func TestCodec_DateTimeWireTag(t *testing.T) {
	in := &Message{}
	in.SetDateTime("t", time.UnixMilli(1234567890))
	data, _ := in.MarshalJSON()
	if string(data) != `{"t":{"_m_":1234567890}}` {
		t.Errorf("wire form = %s", data)
	}
}

func TestCodec_OpaqueEmpty(t *testing.T) {
	in := &Message{}
	in.SetOpaque("o", []byte{})
	out := roundTrip(t, in)
	got, err := out.GetOpaque("o")
	if err != nil || len(got) != 0 {
		t.Errorf("empty opaque round trip: %v, %v", got, err)
	}
}

func TestCodec_NestedMessages(t *testing.T) {
	// Nested to depth 5.
	inner := &Message{}
	inner.SetString("leaf", "bottom")
	for range 4 {
		wrapper := &Message{}
		wrapper.SetMessage("child", inner)
		inner = wrapper
	}

	out := roundTrip(t, inner)
	cur := out
	for range 4 {
		next, err := cur.GetMessage("child")
		if err != nil {
			t.Fatalf("descend: %v", err)
		}
		cur = next
	}
	if got, _ := cur.GetString("leaf"); got != "bottom" {
		t.Errorf("leaf = %q", got)
	}
}

func TestCodec_Arrays(t *testing.T) {
	in := &Message{}
	in.Set("strings", NewArray(KindString, []Value{NewString("a"), NewString("b")}))
	in.Set("longs", NewArray(KindLong, []Value{NewLong(1), NewLong(2)}))
	in.Set("doubles", NewArray(KindDouble, []Value{NewDouble(0.5), NewDouble(math.Inf(1))}))
	in.Set("empty", NewArray(KindString, nil))

	out := roundTrip(t, in)

	strs, err := out.GetArray("strings")
	if err != nil || len(strs) != 2 || strs[0].Kind() != KindString {
		t.Errorf("strings = %v, %v", strs, err)
	}
	longs, _ := out.GetArray("longs")
	if len(longs) != 2 || longs[1].Kind() != KindLong {
		t.Errorf("longs = %v", longs)
	}
	doubles, _ := out.GetArray("doubles")
	if len(doubles) != 2 || doubles[0].Kind() != KindDouble {
		t.Errorf("doubles = %v", doubles)
	}
	empty, err := out.GetArray("empty")
	if err != nil || len(empty) != 0 {
		t.Errorf("empty = %v, %v", empty, err)
	}
}

func TestCodec_DecodeBareNumberIsLong(t *testing.T) {
	out := &Message{}
	if err := out.UnmarshalJSON([]byte(`{"n":7}`)); err != nil {
		t.Fatal(err)
	}
	if got, err := out.GetLong("n"); err != nil || got != 7 {
		t.Errorf("n = %d, %v", got, err)
	}
}

func TestCodec_DecodePlainObjectIsNested(t *testing.T) {
	out := &Message{}
	if err := out.UnmarshalJSON([]byte(`{"m":{"a":"x","b":2}}`)); err != nil {
		t.Fatal(err)
	}
	nested, err := out.GetMessage("m")
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := nested.GetString("a"); got != "x" {
		t.Errorf("a = %q", got)
	}
}

func TestCodec_DecodeRejectsUnsupported(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"bool", `{"b":true}`},
		{"null", `{"n":null}`},
		{"bare float", `{"f":1.5}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := &Message{}
			if err := out.UnmarshalJSON([]byte(tt.in)); err == nil {
				t.Errorf("decode %s: want error", tt.in)
			}
		})
	}
}

func TestCodec_FieldOrderPreserved(t *testing.T) {
	in := `{"z":"1","a":"2","m":"3"}`
	out := &Message{}
	if err := out.UnmarshalJSON([]byte(in)); err != nil {
		t.Fatal(err)
	}
	data, _ := out.MarshalJSON()
	if string(data) != in {
		t.Errorf("re-encoded = %s, want %s", data, in)
	}
}

func TestCodec_ValidJSONOutput(t *testing.T) {
	in := &Message{}
	in.SetString(`weird "key"`, "va\nlue")
	in.SetDouble("nan", math.NaN())
	data, err := in.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	if !json.Valid(data) {
		t.Errorf("output is not valid JSON: %s", data)
	}
}
