// Package hub implements the orchestrator: it owns one busengine.Port
// per bus, drains each port's inbound frames, runs them through the
// reaction engine, and exposes the small public surface (Send, Scan,
// PushConfig, Query, SetID) the HTTP façade and CLI call into.
package hub

import (
	"errors"
	"sort"
	"strconv"
	"time"

	"github.com/GoAethereal/cancel"
	"github.com/blackdog70/SimpleDude/busengine"
	"github.com/blackdog70/SimpleDude/logging"
	"github.com/blackdog70/SimpleDude/proto"
	"github.com/blackdog70/SimpleDude/registry"
)

// StartupDelay is how long Send/Scan/PushConfig block after New before
// performing any outbound I/O, so freshly powered-on nodes have time to
// boot.
const StartupDelay = 4 * time.Second

// ErrUnknownTarget is returned when a name or id does not resolve to a
// configured node.
var ErrUnknownTarget = errors.New("hub: unknown target")

// Hub wires together the node registry, the reaction engine and one bus
// engine Port per physical bus.
type Hub struct {
	reg   *registry.Registry
	ports map[string]*busengine.Port
	log   logging.Logger
	ready chan struct{}
}

// New dials nothing itself: conns must already be open, one per bus
// name appearing in reg. It starts a Port and inbound handler for each.
func New(reg *registry.Registry, conns map[string]busengine.Conn, log logging.Logger) (*Hub, error) {
	if log == nil {
		log = logging.Discard{}
	}
	h := &Hub{reg: reg, ports: make(map[string]*busengine.Port, len(conns)), log: log, ready: make(chan struct{})}
	for _, bus := range reg.Buses() {
		conn, ok := conns[bus]
		if !ok {
			return nil, errors.New("hub: no connection supplied for bus " + bus)
		}
		port := busengine.NewPort(bus, conn, log)
		h.ports[bus] = port
		go h.handleInbound(port)
	}
	go func() {
		time.Sleep(StartupDelay)
		close(h.ready)
	}()
	return h, nil
}

// Close shuts down every port.
func (h *Hub) Close() {
	for _, p := range h.ports {
		p.Close()
	}
}

// awaitReady blocks until the startup delay elapses or ctx is done.
func (h *Hub) awaitReady(ctx cancel.Context) error {
	select {
	case <-h.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// resolve turns a symbolic name or decimal net id string into a node.
func (h *Hub) resolve(nameOrID string) (*registry.Node, error) {
	if n, ok := h.reg.ByName(nameOrID); ok {
		return n, nil
	}
	if id, err := strconv.ParseUint(nameOrID, 10, 16); err == nil {
		if n, ok := h.reg.ByID(uint16(id)); ok {
			return n, nil
		}
	}
	return nil, ErrUnknownTarget
}

// Send resolves target (name or numeric id), encodes spec through the
// node's SceneResolver, and enqueues the resulting commands on its bus.
// It waits for every non-broadcast command's reply or timeout before
// returning, honoring ctx's cancellation.
func (h *Hub) Send(ctx cancel.Context, target string, spec proto.Spec) error {
	if err := h.awaitReady(ctx); err != nil {
		return err
	}
	node, err := h.resolve(target)
	if err != nil {
		return err
	}
	port, ok := h.ports[node.Bus]
	if !ok {
		return errors.New("hub: node " + node.Name + " has no open port")
	}
	return h.dispatch(ctx, port, node.NetID, spec, nil)
}

func (h *Hub) dispatch(ctx cancel.Context, port *busengine.Port, dest uint16, spec proto.Spec, tmpl map[string]string) error {
	sig := cancel.New().Propagate(ctx)
	defer sig.Cancel()

	cmds := proto.Encode(dest, spec, h.sceneResolverFor(dest), tmpl, h.log)
	for _, cmd := range cmds {
		result := make(chan busengine.Result, 1)
		port.Enqueue(busengine.Outbound{Dest: cmd.Dest, Payload: cmd.Payload, Result: result})
		if cmd.Dest == proto.Broadcast {
			continue
		}
		select {
		case res := <-result:
			if res.Err != nil {
				return res.Err
			}
		case <-sig.Done():
			return sig.Err()
		}
	}
	return nil
}

func (h *Hub) sceneResolverFor(dest uint16) proto.SceneResolver {
	node, ok := h.reg.ByID(dest)
	if !ok {
		return nil
	}
	return node
}

// Scan enqueues a MEM query to every configured node, fire-and-forget.
func (h *Hub) Scan(ctx cancel.Context) error {
	if err := h.awaitReady(ctx); err != nil {
		return err
	}
	for _, node := range h.reg.All() {
		port, ok := h.ports[node.Bus]
		if !ok {
			continue
		}
		port.Enqueue(busengine.Outbound{Dest: node.NetID, Payload: []byte{byte(proto.MEM)}})
	}
	return nil
}

// PushConfig enqueues each configured node's CONFIG sub-commands.
func (h *Hub) PushConfig(ctx cancel.Context) error {
	if err := h.awaitReady(ctx); err != nil {
		return err
	}
	for _, node := range h.reg.All() {
		if len(node.ConfigValues) == 0 {
			continue
		}
		entries := make([]proto.MapEntry, 0, len(node.ConfigValues))
		for sub, val := range node.ConfigValues {
			entries = append(entries, proto.MapEntry{Sub: sub, Val: val})
		}
		// ConfigValues is a map; order the sub-commands by wire value so
		// every push sends the same sequence.
		sort.Slice(entries, func(i, j int) bool {
			a, _ := proto.LookupOpcode(entries[i].Sub)
			b, _ := proto.LookupOpcode(entries[j].Sub)
			return a < b
		})
		port, ok := h.ports[node.Bus]
		if !ok {
			continue
		}
		if err := h.dispatch(ctx, port, node.NetID, proto.OpMap("CONFIG", entries...), nil); err != nil {
			h.log.Errorf("hub: push_config %s: %v", node.Name, err)
		}
	}
	return nil
}

// SetID sends SETID to the node currently known as currentID. The
// registry is not updated: a net id change only takes effect after the
// configuration is edited and reloaded.
func (h *Hub) SetID(ctx cancel.Context, currentID, newID uint16) error {
	if err := h.awaitReady(ctx); err != nil {
		return err
	}
	node, ok := h.reg.ByID(currentID)
	if !ok {
		return ErrUnknownTarget
	}
	port, ok := h.ports[node.Bus]
	if !ok {
		return errors.New("hub: node " + node.Name + " has no open port")
	}
	// SETID's payload is the new id as 2 bytes little-endian.
	return h.dispatch(ctx, port, currentID, proto.OpBytes("SETID", proto.IntItem(byte(newID)), proto.IntItem(byte(newID>>8))), nil)
}

// Query returns the last cached state for a lighting or DHT-capable
// node. key is "light" or "dht"; ok is false if the node or the key is
// unknown, or for "dht" if no reading has arrived yet. "light" always
// answers, with the all-zero pattern before any LIGHT report.
func (h *Hub) Query(target, key string) (value string, ok bool) {
	node, err := h.resolve(target)
	if err != nil {
		return "", false
	}
	switch key {
	case "light":
		state := node.State()
		return formatPattern(state), true
	case "dht":
		temp, hum, have := node.DHT()
		if !have {
			return "", false
		}
		return formatDHT(temp, hum), true
	default:
		return "", false
	}
}

func formatPattern(p [11]byte) string {
	b := make([]byte, 0, len(p)*2)
	const hex = "0123456789abcdef"
	for _, v := range p {
		b = append(b, hex[v>>4], hex[v&0xF])
	}
	return string(b)
}

func formatDHT(temp, humidity float64) string {
	ev := proto.Event{Temp: temp, Humidity: humidity}
	tmpl := ev.TemplateValues()
	return "temp=" + tmpl["temperature"] + " hum=" + tmpl["humidity"]
}
