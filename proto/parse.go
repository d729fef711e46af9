package proto

import (
	"encoding/binary"
	"math"
	"time"
)

// Parse turns a decoded frame into a semantic Event. An opcode outside the
// table yields ErrUnknownOpcode and no event; nothing else in Parse ever
// returns an error: a payload shorter than an opcode expects simply reads
// whatever zero-padded bytes are there.
func Parse(f Frame) (Event, error) {
	op, ok := KnownOpcode(f.Payload[0])
	if !ok {
		return Event{}, ErrUnknownOpcode
	}
	ev := Event{Source: f.Source, Opcode: op, Time: time.Now()}
	data := f.Payload[:]
	switch op {
	case MEM:
		ev.Mem = int16(binary.LittleEndian.Uint16(data[1:3]))
	case LUX:
		ev.Lux = int16(binary.LittleEndian.Uint16(data[1:3]))
	case VERSION:
		ev.Version = int16(binary.LittleEndian.Uint16(data[1:3]))
	case DHT:
		temp := float64(int16(binary.LittleEndian.Uint16(data[1:3]))) / 10.0
		hum := float64(int16(binary.LittleEndian.Uint16(data[3:5]))) / 10.0
		ev.Temp = clampTemp(temp)
		ev.Humidity = clampHumidity(hum)
	case PIR:
		ev.Pir = int8(data[1])
	case SWITCH:
		copy(ev.Switch[:], data[1:7])
	case LIGHT:
		copy(ev.Light[:], data[1:12])
	case EMS:
		ev.EMSValue1 = decodeFloat32(data[1:5])
		ev.EMSValue2 = decodeFloat32(data[5:9])
	case HBT, ACK, PROGRAM, BINARYOUT, LCD, HUBOP:
		// no payload fields of interest
	}
	return ev, nil
}

func decodeFloat32(b []byte) float32 {
	bits := binary.LittleEndian.Uint32(b)
	return math.Float32frombits(bits)
}
