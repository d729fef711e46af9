package proto

import "fmt"

// Fault is a typed decode/encode error: a small value type implementing
// error so callers can switch on it with errors.Is instead of
// string-matching.
type Fault struct {
	name string
}

func newFault(name string) Fault {
	return Fault{name: name}
}

func (f Fault) Error() string {
	return fmt.Sprintf("proto: %s", f.name)
}

var (
	// ErrBadLength is returned by Decode when the input is not exactly 19 bytes.
	ErrBadLength = newFault("bad length")
	// ErrBadCrc is returned by Decode when the trailing CRC does not match.
	ErrBadCrc = newFault("bad crc")
	// ErrWrongDestination is returned by Decode when the destination id is not the hub.
	ErrWrongDestination = newFault("wrong destination")
	// ErrUnknownOpcode is returned by Parse for an opcode outside the table.
	ErrUnknownOpcode = newFault("unknown opcode")
	// ErrPayloadTooLarge is returned by EncodeFrame when a payload exceeds
	// MaxPayload bytes. Encode does not return it: it logs and drops such a
	// command and keeps encoding the rest.
	ErrPayloadTooLarge = newFault("payload too large")
)
