package hub

import (
	"github.com/GoAethereal/cancel"
	"github.com/blackdog70/SimpleDude/proto"
)

// Capabilities reports the LIGHT/DHT flags httpapi needs to route a
// device's endpoint. ok is false for an unknown device.
func (h *Hub) Capabilities(target string) (hasLight, hasDHT bool, ok bool) {
	node, err := h.resolve(target)
	if err != nil {
		return false, false, false
	}
	return node.HasLight(), node.HasDHT(), true
}

// TriggerScene sends the named lighting scene to target and waits for
// the node's ACK (via Send), then reports whether the node's resulting
// cached state shares any set bit with the scene pattern, the
// {state: bool} the HTTP façade answers with. ok is false for an
// unknown device or scene name.
func (h *Hub) TriggerScene(ctx cancel.Context, target, scene string) (overlap bool, ok bool, err error) {
	node, rerr := h.resolve(target)
	if rerr != nil {
		return false, false, rerr
	}
	pattern, known := node.ResolveScene(scene)
	if !known {
		return false, false, nil
	}
	if err := h.Send(ctx, target, proto.Scene("LIGHT", scene)); err != nil {
		return false, true, err
	}
	state := node.State()
	for i := range pattern {
		if state[i]&pattern[i] != 0 {
			return true, true, nil
		}
	}
	return false, true, nil
}

// ReadDHT returns target's last cached temperature/humidity reading.
// The wire protocol has no hub->node DHT query (DHT is a node->hub
// report); the façade's "DHT read" is this cache, refreshed whenever the
// node next reports on its configured period. ok is false if the node is
// unknown or has not reported yet.
func (h *Hub) ReadDHT(target string) (temperature, humidity float64, ok bool) {
	node, err := h.resolve(target)
	if err != nil {
		return 0, 0, false
	}
	return node.DHT()
}
