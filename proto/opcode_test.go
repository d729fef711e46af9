package proto_test

import (
	"testing"

	"github.com/blackdog70/SimpleDude/proto"
)

func TestLookupOpcode(t *testing.T) {
	cases := []struct {
		name string
		want proto.Opcode
		ok   bool
	}{
		{name: "MEM", want: proto.MEM, ok: true},
		{name: "LIGHT", want: proto.LIGHT, ok: true},
		{name: "BINARY_OUT", want: proto.BINARYOUT, ok: true},
		{name: "LCD", want: proto.LCD, ok: true},
		{name: "NOSUCHOPCODE", ok: false},
	}
	for _, c := range cases {
		got, ok := proto.LookupOpcode(c.name)
		if ok != c.ok {
			t.Errorf("LookupOpcode(%q) ok=%v, want %v", c.name, ok, c.ok)
			continue
		}
		if ok && got != c.want {
			t.Errorf("LookupOpcode(%q) = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestKnownOpcodeRoundTrip(t *testing.T) {
	for _, op := range []proto.Opcode{proto.DHT, proto.SWITCH, proto.EMS, proto.HUBOP} {
		got, ok := proto.KnownOpcode(byte(op))
		if !ok || got != op {
			t.Errorf("KnownOpcode(%#x) = %v, %v", byte(op), got, ok)
		}
		name, ok := proto.LookupOpcode(op.String())
		if !ok || name != op {
			t.Errorf("round trip through String/LookupOpcode failed for %v", op)
		}
	}
}

func TestUnknownOpcodeString(t *testing.T) {
	if got := proto.Opcode(0xFF).String(); got != "UNKNOWN" {
		t.Errorf("String() for unmapped opcode = %q, want UNKNOWN", got)
	}
}
