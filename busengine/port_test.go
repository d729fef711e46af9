package busengine_test

import (
	"net"
	"testing"
	"time"

	"github.com/blackdog70/SimpleDude/busengine"
	"github.com/blackdog70/SimpleDude/logging"
	"github.com/blackdog70/SimpleDude/proto"
)

// hubSide and nodeSide are connected in-memory, giving Port a real
// io.Reader/io.Writer pair without a serial device.
func newTestPort(t *testing.T) (*busengine.Port, net.Conn) {
	t.Helper()
	hubSide, nodeSide := net.Pipe()
	p := busengine.NewPort("test", hubSide, logging.Discard{})
	t.Cleanup(func() { p.Close() })
	return p, nodeSide
}

func readFrame(t *testing.T, nodeSide net.Conn) proto.Frame {
	t.Helper()
	raw := make([]byte, proto.FrameSize)
	if _, err := ioReadFull(nodeSide, raw); err != nil {
		t.Fatalf("reading frame from node side: %v", err)
	}
	f, err := proto.Decode(raw[2:])
	if err != nil && err != proto.ErrWrongDestination {
		t.Fatalf("decode: %v", err)
	}
	return f
}

func ioReadFull(c net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := c.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func writeFrame(t *testing.T, nodeSide net.Conn, source uint16, payload []byte) {
	t.Helper()
	raw, err := proto.EncodeFrame(source, proto.HubID, payload)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := nodeSide.Write(raw); err != nil {
		t.Fatal(err)
	}
}

func TestEnqueueReceivesMatchingReply(t *testing.T) {
	p, nodeSide := newTestPort(t)

	result := make(chan busengine.Result, 1)
	p.Enqueue(busengine.Outbound{Dest: 40, Payload: []byte{byte(proto.MEM)}, Result: result})

	req := readFrame(t, nodeSide)
	if req.Dest != 40 || req.Payload[0] != byte(proto.MEM) {
		t.Fatalf("got request %+v", req)
	}
	writeFrame(t, nodeSide, 40, []byte{byte(proto.ACK)})

	select {
	case res := <-result:
		if res.Err != nil {
			t.Fatalf("got error %v, want nil", res.Err)
		}
		if res.Frame.Source != 40 {
			t.Fatalf("got reply from %d, want 40", res.Frame.Source)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for result")
	}
}

func TestBroadcastNeverAwaited(t *testing.T) {
	p, nodeSide := newTestPort(t)
	result := make(chan busengine.Result, 1)
	p.Enqueue(busengine.Outbound{Dest: proto.Broadcast, Payload: []byte{byte(proto.STANDBY)}, Result: result})

	req := readFrame(t, nodeSide)
	if req.Dest != proto.Broadcast {
		t.Fatalf("got dest %d, want broadcast", req.Dest)
	}
	select {
	case res := <-result:
		if res.Err != nil {
			t.Fatalf("got error %v, want nil", res.Err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast result never delivered")
	}
}

func TestAckPrecedesQueuedOutbound(t *testing.T) {
	p, nodeSide := newTestPort(t)
	p.Ack(99)
	p.Enqueue(busengine.Outbound{Dest: 50, Payload: []byte{byte(proto.MEM)}})

	first := readFrame(t, nodeSide)
	if first.Dest != 99 || first.Payload[0] != byte(proto.ACK) {
		t.Fatalf("first frame = %+v, want ACK to 99", first)
	}
	second := readFrame(t, nodeSide)
	if second.Dest != 50 || second.Payload[0] != byte(proto.MEM) {
		t.Fatalf("second frame = %+v, want MEM to 50", second)
	}
}

func TestRetryThenTimeout(t *testing.T) {
	if testing.Short() {
		t.Skip("exercises the full 3-attempt retry/timeout schedule, ~5s")
	}
	p, nodeSide := newTestPort(t)
	result := make(chan busengine.Result, 1)
	start := time.Now()
	p.Enqueue(busengine.Outbound{Dest: 10, Payload: []byte{byte(proto.PING)}, Result: result})

	for i := 0; i < busengine.SendRetry; i++ {
		f := readFrame(t, nodeSide)
		if f.Dest != 10 {
			t.Fatalf("attempt %d: dest = %d, want 10", i, f.Dest)
		}
	}
	elapsed := time.Since(start)
	if elapsed < time.Duration(busengine.SendRetry-1)*busengine.PacketTimeout {
		t.Fatalf("three attempts completed too quickly: %v", elapsed)
	}

	select {
	case res := <-result:
		if res.Err != busengine.ErrTimeout {
			t.Fatalf("got err %v, want ErrTimeout", res.Err)
		}
	case <-time.After(busengine.PacketTimeout + time.Second):
		t.Fatal("result never delivered after final timeout")
	}
}

func TestUnsolicitedFrameReachesInbound(t *testing.T) {
	p, nodeSide := newTestPort(t)
	writeFrame(t, nodeSide, 77, []byte{byte(proto.DHT), 0, 0, 0, 0})

	select {
	case f := <-p.Inbound():
		if f.Source != 77 {
			t.Fatalf("got source %d, want 77", f.Source)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("inbound frame never delivered")
	}
}
