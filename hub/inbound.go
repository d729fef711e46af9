package hub

import (
	"github.com/blackdog70/SimpleDude/busengine"
	"github.com/blackdog70/SimpleDude/proto"
	"github.com/blackdog70/SimpleDude/reaction"
)

// handleInbound drains port's unsolicited frames: parse, ACK the sender
// immediately, update any single-writer cache the event affects, then run
// the reaction engine and enqueue whatever it produces.
func (h *Hub) handleInbound(port *busengine.Port) {
	for frame := range port.Inbound() {
		ev, err := proto.Parse(frame)
		if err != nil {
			h.log.Errorf("hub[%s]: parse: %v", port.Name, err)
			continue
		}
		port.Ack(frame.Source)
		h.cacheEvent(ev)

		for _, d := range reaction.Evaluate(h.reg, ev, h.log) {
			target, ok := h.reg.ByID(d.Dest)
			if !ok {
				h.log.Errorf("[UNKNOWN]->HUB: reaction target net id %d not registered", d.Dest)
				continue
			}
			targetPort, ok := h.ports[target.Bus]
			if !ok {
				h.log.Errorf("hub: reaction target %s has no open port", target.Name)
				continue
			}
			cmds := proto.Encode(d.Dest, d.Spec, target, d.Template, h.log)
			for _, cmd := range cmds {
				targetPort.Enqueue(busengine.Outbound{Dest: cmd.Dest, Payload: cmd.Payload})
			}
		}
	}
}

func (h *Hub) cacheEvent(ev proto.Event) {
	node, ok := h.reg.ByID(ev.Source)
	if !ok {
		return
	}
	switch ev.Opcode {
	case proto.LIGHT:
		node.SetState(ev.Light)
	case proto.DHT:
		node.SetDHT(ev.Temp, ev.Humidity)
	}
}
