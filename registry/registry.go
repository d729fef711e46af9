// Package registry holds the static node/bus topology built once at
// startup: symbolic name <-> net id lookup, per-node capabilities and
// reactions, and the single-writer cached lighting state.
package registry

import (
	"fmt"
	"sync"

	"github.com/blackdog70/SimpleDude/proto"
)

// Target is one {target_name: command_spec} reaction entry.
type Target struct {
	Name string
	Spec proto.Spec
}

// NodeConfig is the declarative descriptor New builds a Registry from,
// the shape config.Load produces from YAML.
type NodeConfig struct {
	Name      string
	NetID     uint16
	Bus       string
	HasLight  bool
	HasSwitch bool
	HasLCD    bool
	HasDHT    bool
	// ConfigValues holds the node's {HBT: period, DHT: period, ...}
	// options, applied to CONFIG sub-opcodes by hub.PushConfig.
	ConfigValues map[string]byte
	// SwitchReactions maps a 1-based switch slot index to the targets
	// fired when that slot reads 1.
	SwitchReactions map[int][]Target
	DHTReactions    []Target
	// Lights maps a scene name to its 11-byte output pattern.
	Lights map[string][11]byte
}

// Node is a registry entry: immutable topology plus two mutable caches,
// the 11-byte lighting state and the last DHT reading, written only by
// the inbound handler for this node's port when a LIGHT or DHT report
// arrives.
type Node struct {
	Name            string
	NetID           uint16
	Bus             string
	ConfigValues    map[string]byte
	SwitchReactions map[int][]Target
	DHTReactions    []Target

	hasLight  bool
	hasSwitch bool
	hasLCD    bool
	hasDHT    bool
	lights    map[string][11]byte

	mu    sync.RWMutex
	state [11]byte

	dhtMu   sync.RWMutex
	temp    float64
	humid   float64
	haveDHT bool
}

// HasLight reports whether this node accepts LIGHT commands. Part of
// proto.SceneResolver.
func (n *Node) HasLight() bool { return n.hasLight }

// HasSwitch reports whether this node reports SWITCH events.
func (n *Node) HasSwitch() bool { return n.hasSwitch }

// HasLCD reports whether this node has an attached LCD.
func (n *Node) HasLCD() bool { return n.hasLCD }

// HasDHT reports whether this node has a DHT temperature/humidity sensor
// configured, per its config.DHT period option.
func (n *Node) HasDHT() bool { return n.hasDHT }

// ResolveScene looks up a named lighting pattern. Part of
// proto.SceneResolver.
func (n *Node) ResolveScene(name string) ([11]byte, bool) {
	p, ok := n.lights[name]
	return p, ok
}

// State returns the last cached LIGHT pattern reported by this node.
func (n *Node) State() [11]byte {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.state
}

// SetState overwrites the cached LIGHT pattern. Called only by the port
// handling this node's bus; everything else reads.
func (n *Node) SetState(pattern [11]byte) {
	n.mu.Lock()
	n.state = pattern
	n.mu.Unlock()
}

// SetDHT caches the most recent temperature/humidity reading. Called
// only by the port handling this node's bus.
func (n *Node) SetDHT(temp, humidity float64) {
	n.dhtMu.Lock()
	n.temp, n.humid, n.haveDHT = temp, humidity, true
	n.dhtMu.Unlock()
}

// DHT returns the last cached temperature/humidity reading. ok is false
// if no DHT event has arrived yet.
func (n *Node) DHT() (temp, humidity float64, ok bool) {
	n.dhtMu.RLock()
	defer n.dhtMu.RUnlock()
	return n.temp, n.humid, n.haveDHT
}

// Registry is the immutable (topology-wise) set of configured nodes,
// indexed by name, id and bus.
type Registry struct {
	byName map[string]*Node
	byID   map[uint16]*Node
	byBus  map[string][]*Node
}

// New validates cfgs and builds a Registry. net_id must be unique and
// must avoid the reserved values (0, the hub's own id, and broadcast);
// name<->net_id must be a total bijection on the configured set; a
// net_id may appear under exactly one bus (a node is reachable over
// exactly one port).
func New(cfgs []NodeConfig) (*Registry, error) {
	r := &Registry{
		byName: make(map[string]*Node, len(cfgs)),
		byID:   make(map[uint16]*Node, len(cfgs)),
		byBus:  make(map[string][]*Node),
	}
	for _, c := range cfgs {
		switch c.NetID {
		case 0, proto.HubID, proto.Broadcast:
			return nil, fmt.Errorf("registry: node %q: net_id %d is reserved", c.Name, c.NetID)
		}
		if c.Name == "" {
			return nil, fmt.Errorf("registry: node with net_id %d has empty name", c.NetID)
		}
		if _, dup := r.byName[c.Name]; dup {
			return nil, fmt.Errorf("registry: duplicate node name %q", c.Name)
		}
		if existing, dup := r.byID[c.NetID]; dup {
			return nil, fmt.Errorf("registry: net_id %d used by both %q and %q", c.NetID, existing.Name, c.Name)
		}
		n := &Node{
			Name:            c.Name,
			NetID:           c.NetID,
			Bus:             c.Bus,
			ConfigValues:    c.ConfigValues,
			SwitchReactions: c.SwitchReactions,
			DHTReactions:    c.DHTReactions,
			hasLight:        c.HasLight,
			hasSwitch:       c.HasSwitch,
			hasLCD:          c.HasLCD,
			hasDHT:          c.HasDHT,
			lights:          c.Lights,
		}
		r.byName[c.Name] = n
		r.byID[c.NetID] = n
		r.byBus[c.Bus] = append(r.byBus[c.Bus], n)
	}
	return r, nil
}

// ByName looks up a node by its symbolic name.
func (r *Registry) ByName(name string) (*Node, bool) {
	n, ok := r.byName[name]
	return n, ok
}

// ByID looks up a node by its 16-bit bus id.
func (r *Registry) ByID(id uint16) (*Node, bool) {
	n, ok := r.byID[id]
	return n, ok
}

// ByBus returns every node reachable over the named port, in
// configuration order.
func (r *Registry) ByBus(bus string) []*Node {
	return r.byBus[bus]
}

// Buses returns the distinct bus identifiers present in the registry.
func (r *Registry) Buses() []string {
	buses := make([]string, 0, len(r.byBus))
	for b := range r.byBus {
		buses = append(buses, b)
	}
	return buses
}

// All returns every configured node, in no particular order.
func (r *Registry) All() []*Node {
	nodes := make([]*Node, 0, len(r.byName))
	for _, n := range r.byName {
		nodes = append(nodes, n)
	}
	return nodes
}
