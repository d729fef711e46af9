package proto

import "encoding/binary"

const (
	// HubID is the reserved net id of the hub itself.
	HubID uint16 = 1
	// Broadcast is the net id meaning "every node"; never awaited for a reply.
	Broadcast uint16 = 255

	// MaxPayload is the largest logical payload (opcode + arguments) a
	// single command may carry; longer payloads are rejected by Encode.
	MaxPayload = 13

	// headerLen, idLen and crcLen compose the fixed 21-byte wire frame:
	// 2 (header) + 2 (source) + 2 (dest) + 13 (payload) + 2 (crc).
	headerLen = 2
	idLen     = 2
	crcLen    = 2

	// FrameSize is the total size of a frame on the wire, header included.
	FrameSize = headerLen + idLen + idLen + MaxPayload + crcLen
	// bodySize is what Decode expects: the frame minus its 2-byte header,
	// which the caller's framing scan has already consumed.
	bodySize = FrameSize - headerLen
)

// Header is the fixed 2-byte literal that opens every frame.
var Header = [headerLen]byte{0x08, 0x70}

// Frame is a decoded wire packet: 16-bit source/destination ids and the
// full 13 zero-padded payload bytes. The wire format records no explicit
// payload length; callers branch on Payload[0] (the opcode) and slice
// however many argument bytes that opcode implies.
type Frame struct {
	Source  uint16
	Dest    uint16
	Payload [MaxPayload]byte
}

// EncodeFrame serializes source, dest and payload into a 21-byte frame,
// right-padding payload with zeros. It returns ErrPayloadTooLarge if
// payload is longer than MaxPayload.
func EncodeFrame(source, dest uint16, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayload {
		return nil, ErrPayloadTooLarge
	}
	buf := make([]byte, FrameSize)
	copy(buf[0:headerLen], Header[:])
	binary.LittleEndian.PutUint16(buf[headerLen:], source)
	binary.LittleEndian.PutUint16(buf[headerLen+idLen:], dest)
	copy(buf[headerLen+2*idLen:], payload)
	crc := crc16Modbus(buf[:headerLen+2*idLen+MaxPayload])
	binary.LittleEndian.PutUint16(buf[headerLen+2*idLen+MaxPayload:], crc)
	return buf, nil
}

// Decode parses the 19 bytes following the 2-byte header: source, dest,
// 13-byte payload and 2-byte CRC. The CRC is verified over the header plus
// everything but itself.
func Decode(body []byte) (Frame, error) {
	var f Frame
	if len(body) != bodySize {
		return f, ErrBadLength
	}
	crc := binary.LittleEndian.Uint16(body[idLen+idLen+MaxPayload:])
	check := make([]byte, 0, FrameSize-crcLen)
	check = append(check, Header[:]...)
	check = append(check, body[:idLen+idLen+MaxPayload]...)
	if crc16Modbus(check) != crc {
		return f, ErrBadCrc
	}
	f.Source = binary.LittleEndian.Uint16(body[0:])
	f.Dest = binary.LittleEndian.Uint16(body[idLen:])
	copy(f.Payload[:], body[idLen+idLen:idLen+idLen+MaxPayload])
	if f.Dest != HubID {
		return f, ErrWrongDestination
	}
	return f, nil
}
