// Package busengine implements the per-port bus arbitration: a framed
// reader, request/reply correlation with retry and timeout, and an
// outbound FIFO with priority ACK replies and an exclusive-session
// primitive for firmware programming.
package busengine

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/blackdog70/SimpleDude/logging"
	"github.com/blackdog70/SimpleDude/proto"
)

const (
	// PacketTimeout is how long the outbound driver waits for a reply
	// before retrying.
	PacketTimeout = 1 * time.Second
	// SendRetry is the total number of write attempts for one packet,
	// including the first.
	SendRetry = 3
	// retryDelay separates consecutive attempts for the same packet.
	retryDelay = 1 * time.Second

	// inboundBacklog bounds unsolicited frames waiting for the hub's
	// inbound handler; a full backlog means the handler has stalled.
	inboundBacklog = 64
	// outboundBacklog bounds queued commands awaiting the FIFO driver.
	outboundBacklog = 64
)

// ErrTimeout is returned to a waiting caller when a request exhausts all
// SendRetry attempts without a matching reply.
var ErrTimeout = errors.New("busengine: reply timeout")

// ErrSessionActive is returned by BeginSession when one is already open.
var ErrSessionActive = errors.New("busengine: exclusive session already active")

// ErrPortOpenFailed wraps a failure to open a bus's serial device at
// startup. Fatal: cmd/hub exits rather than running with a bus missing.
var ErrPortOpenFailed = errors.New("busengine: port open failed")

// Conn is the minimal surface busengine needs from a transport: a
// half-duplex byte stream. *serial.Port (via Dial) and net.Conn both
// satisfy it, which is what makes Port testable without real hardware.
type Conn interface {
	io.Reader
	io.Writer
	io.Closer
}

// Outbound is one command awaiting transmission: dest plus the logical
// (opcode-first, unpadded) payload. Result, if non-nil, receives the
// outcome; leave nil for fire-and-forget. A broadcast is never awaited:
// its Result, if set, gets a nil-error value right after the write.
type Outbound struct {
	Dest    uint16
	Payload []byte
	Result  chan<- Result
}

// Result is delivered on an Outbound's Result channel at most once, after
// which the channel is closed. A command still queued or awaiting its
// reply when the port is closed gets no Result.
type Result struct {
	Frame proto.Frame
	Err   error
}

type pendingRequest struct {
	expectSource uint16
	reply        chan proto.Frame
}

type pauseRequest struct {
	paused chan struct{}
	resume chan struct{}
}

func newPauseRequest() *pauseRequest {
	return &pauseRequest{paused: make(chan struct{}), resume: make(chan struct{})}
}

// Port drives one half-duplex RS-485 link: a reader goroutine, an
// outbound FIFO goroutine, and request/reply correlation between them.
// The registry and reaction engine live above Port; it deals only in
// frames and logical payloads.
type Port struct {
	Name string

	conn Conn
	log  logging.Logger

	inbound  chan proto.Frame
	outbound chan Outbound
	ack      chan uint16

	readerPause chan *pauseRequest
	writerPause chan *pauseRequest

	pendingMu sync.Mutex
	pending   *pendingRequest

	cancel context.CancelFunc
	done   sync.WaitGroup
}

// NewPort starts a Port's reader and outbound-driver goroutines over conn.
func NewPort(name string, conn Conn, log logging.Logger) *Port {
	if log == nil {
		log = logging.Discard{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Port{
		Name:        name,
		conn:        conn,
		log:         log,
		inbound:     make(chan proto.Frame, inboundBacklog),
		outbound:    make(chan Outbound, outboundBacklog),
		ack:         make(chan uint16, outboundBacklog),
		readerPause: make(chan *pauseRequest),
		writerPause: make(chan *pauseRequest),
		cancel:      cancel,
	}
	p.done.Add(2)
	go p.readLoop(ctx)
	go p.writeLoop(ctx)
	return p
}

// Inbound delivers frames that did not match an outstanding request:
// unsolicited node reports, for the hub's inbound handler to parse.
func (p *Port) Inbound() <-chan proto.Frame { return p.inbound }

// Enqueue places cmd on the port's outbound FIFO. It never blocks past
// the queue's backlog capacity; a caller that must not block should
// select on a context alongside it.
func (p *Port) Enqueue(cmd Outbound) {
	p.outbound <- cmd
}

// Ack schedules an immediate ACK reply to dest, written ahead of the
// ordinary outbound queue.
func (p *Port) Ack(dest uint16) {
	p.ack <- dest
}

// Close stops both goroutines and the underlying connection.
func (p *Port) Close() error {
	p.cancel()
	err := p.conn.Close()
	p.done.Wait()
	return err
}

// BeginSession pauses both the reader and the outbound driver between
// their current operations and hands back the raw connection for
// exclusive use (the STK500 programming session). release() must be
// called to resume normal bus traffic.
func (p *Port) BeginSession(ctx context.Context) (conn Conn, release func(), err error) {
	rReq := newPauseRequest()
	wReq := newPauseRequest()
	select {
	case p.readerPause <- rReq:
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
	select {
	case p.writerPause <- wReq:
	case <-ctx.Done():
		close(rReq.resume)
		return nil, nil, ctx.Err()
	}
	select {
	case <-rReq.paused:
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
	select {
	case <-wReq.paused:
	case <-ctx.Done():
		close(rReq.resume)
		return nil, nil, ctx.Err()
	}
	var once sync.Once
	release = func() {
		once.Do(func() {
			close(rReq.resume)
			close(wReq.resume)
		})
	}
	return p.conn, release, nil
}
