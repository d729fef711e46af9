package busengine

import (
	"context"
	"time"

	"github.com/blackdog70/SimpleDude/proto"
)

// writeLoop is the per-port outbound driver: it gives priority to queued
// ACK replies over ordinary FIFO traffic, drives at most one pending
// request at a time, and yields the port entirely while an exclusive
// session holds it.
func (p *Port) writeLoop(ctx context.Context) {
	defer p.done.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-p.writerPause:
			close(req.paused)
			select {
			case <-req.resume:
			case <-ctx.Done():
				return
			}
			continue
		case dest := <-p.ack:
			p.writeAck(dest)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			return
		case req := <-p.writerPause:
			close(req.paused)
			select {
			case <-req.resume:
			case <-ctx.Done():
				return
			}
		case dest := <-p.ack:
			p.writeAck(dest)
		case cmd := <-p.outbound:
			// Both channels may be ready and select picks at random;
			// flush acks queued before this command was dequeued so
			// they still go out first.
			p.drainAcks()
			p.drive(ctx, cmd)
		}
	}
}

func (p *Port) drainAcks() {
	for {
		select {
		case dest := <-p.ack:
			p.writeAck(dest)
		default:
			return
		}
	}
}

func (p *Port) writeAck(dest uint16) {
	frame, err := proto.EncodeFrame(proto.HubID, dest, []byte{byte(proto.ACK)})
	if err != nil {
		p.log.Errorf("busengine[%s]: encode ack: %v", p.Name, err)
		return
	}
	if _, err := p.conn.Write(frame); err != nil {
		p.log.Errorf("busengine[%s]: write ack: %v", p.Name, err)
	}
}

// drive writes cmd and, unless it targets the broadcast address, waits
// for a matching reply with up to SendRetry total attempts separated by
// retryDelay. Broadcasts are written once and never awaited.
func (p *Port) drive(ctx context.Context, cmd Outbound) {
	frame, err := proto.EncodeFrame(proto.HubID, cmd.Dest, cmd.Payload)
	if err != nil {
		p.log.Errorf("busengine[%s]: encode: %v", p.Name, err)
		p.deliver(cmd, Result{Err: err})
		return
	}

	if cmd.Dest == proto.Broadcast {
		if _, err := p.conn.Write(frame); err != nil {
			p.log.Errorf("busengine[%s]: broadcast write: %v", p.Name, err)
		}
		p.deliver(cmd, Result{Err: nil})
		return
	}

	reply := make(chan proto.Frame, 1)
	p.pendingMu.Lock()
	p.pending = &pendingRequest{expectSource: cmd.Dest, reply: reply}
	p.pendingMu.Unlock()
	defer func() {
		p.pendingMu.Lock()
		p.pending = nil
		p.pendingMu.Unlock()
	}()

	for attempt := 1; attempt <= SendRetry; attempt++ {
		if _, err := p.conn.Write(frame); err != nil {
			p.log.Errorf("busengine[%s]: write attempt %d to %d: %v", p.Name, attempt, cmd.Dest, err)
		}
		select {
		case frm := <-reply:
			p.deliver(cmd, Result{Frame: frm})
			return
		case <-ctx.Done():
			return
		case <-time.After(PacketTimeout):
			if attempt < SendRetry {
				time.Sleep(retryDelay)
			}
		}
	}
	p.log.Errorf("HUB->TIMEOUT: node %d, packet dropped after %d attempts", cmd.Dest, SendRetry)
	p.deliver(cmd, Result{Err: ErrTimeout})
}

func (p *Port) deliver(cmd Outbound, res Result) {
	if cmd.Result == nil {
		return
	}
	cmd.Result <- res
	close(cmd.Result)
}
