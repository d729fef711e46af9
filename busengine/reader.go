package busengine

import (
	"context"
	"errors"
	"io"

	"github.com/blackdog70/SimpleDude/proto"
)

// bodySize is the byte count of a frame following its 2-byte header,
// what proto.Decode expects.
const bodySize = proto.FrameSize - 2

// readLoop scans the stream for proto.Header, decodes the 19 bytes that
// follow, and routes the result to whichever waiter, if any, is
// expecting a reply from that source. Dial's Conn is expected to read
// with a bounded timeout so the pause check below runs periodically even
// with no bus traffic; a plain blocking Conn (as used by some tests)
// only notices a pause request once it next has a byte to read.
func (p *Port) readLoop(ctx context.Context) {
	defer p.done.Done()
	// Closing inbound lets the hub's handler loop drain and exit.
	defer close(p.inbound)
	var window [2]byte
	body := make([]byte, bodySize)
	one := make([]byte, 1)
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-p.readerPause:
			close(req.paused)
			select {
			case <-req.resume:
			case <-ctx.Done():
				return
			}
			continue
		default:
		}

		if _, err := io.ReadFull(p.conn, one); err != nil {
			if ctx.Err() != nil {
				return
			}
			if isTimeout(err) {
				continue
			}
			p.log.Errorf("busengine[%s]: read: %v", p.Name, err)
			return
		}
		window[0], window[1] = window[1], one[0]
		if window != proto.Header {
			continue
		}
		if _, err := io.ReadFull(p.conn, body); err != nil {
			if ctx.Err() != nil {
				return
			}
			p.log.Errorf("busengine[%s]: read body: %v", p.Name, err)
			continue
		}
		frame, err := proto.Decode(body)
		switch {
		case errors.Is(err, proto.ErrWrongDestination):
			p.log.Infof("busengine[%s]: frame from %d addressed to %d, not us", p.Name, frame.Source, frame.Dest)
			continue
		case err != nil:
			p.log.Debugf("busengine[%s]: decode: %v", p.Name, err)
			continue
		}
		p.dispatch(frame)
	}
}

func (p *Port) dispatch(frame proto.Frame) {
	p.pendingMu.Lock()
	pending := p.pending
	p.pendingMu.Unlock()
	if pending != nil && frame.Source == pending.expectSource {
		select {
		case pending.reply <- frame:
			return
		default:
		}
	}
	select {
	case p.inbound <- frame:
	default:
		p.log.Criticalf("busengine[%s]: inbound backlog full, dropping frame from %d", p.Name, frame.Source)
	}
}

func isTimeout(err error) bool {
	te, ok := err.(interface{ Timeout() bool })
	return ok && te.Timeout()
}
