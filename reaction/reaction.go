// Package reaction implements the pure event-to-command mapping: a
// parsed inbound event plus the node registry produces an ordered
// sequence of outbound command specs, never performing I/O itself.
package reaction

import (
	"github.com/blackdog70/SimpleDude/logging"
	"github.com/blackdog70/SimpleDude/proto"
	"github.com/blackdog70/SimpleDude/registry"
)

// Dispatch is one outbound command still in spec form, addressed at a
// destination net id and, for templated specs, carrying the substitution
// values to apply at encode time.
type Dispatch struct {
	TargetName string
	Dest       uint16
	Spec       proto.Spec
	Template   map[string]string
}

// Evaluate maps ev through reg's configured reactions. The source node
// must be registered; an event from an unregistered node produces no
// dispatches and is logged as [UNKNOWN]->HUB. Opcodes with no reaction
// rule (anything but SWITCH and DHT) produce no dispatches.
func Evaluate(reg *registry.Registry, ev proto.Event, log logging.Logger) []Dispatch {
	node, ok := reg.ByID(ev.Source)
	if !ok {
		log.Errorf("[UNKNOWN]->HUB: event from unregistered node %d", ev.Source)
		return nil
	}
	switch ev.Opcode {
	case proto.SWITCH:
		return evaluateSwitch(reg, node, ev, log)
	case proto.DHT:
		return evaluateDHT(reg, node, ev, log)
	default:
		return nil
	}
}

// evaluateSwitch walks the 6-byte switch vector with 1-based slot
// indices; every byte equal to 1 fires that slot's configured targets.
func evaluateSwitch(reg *registry.Registry, node *registry.Node, ev proto.Event, log logging.Logger) []Dispatch {
	if len(node.SwitchReactions) == 0 {
		log.Infof("[UNCONFIGURED]->HUB: node %s has no switch reactions", node.Name)
		return nil
	}
	var out []Dispatch
	for i, b := range ev.Switch {
		if b != 1 {
			continue
		}
		slot := i + 1
		targets, ok := node.SwitchReactions[slot]
		if !ok {
			continue
		}
		out = append(out, dispatchTargets(reg, targets, nil, log)...)
	}
	if len(out) == 0 {
		log.Infof("[UNCONFIGURED]->HUB: node %s switch event matched no configured slot", node.Name)
	}
	return out
}

// evaluateDHT fires node's configured DHT targets, whether the
// configuration held a single target or a list; both are represented as
// node.DHTReactions, a slice emitted in order.
func evaluateDHT(reg *registry.Registry, node *registry.Node, ev proto.Event, log logging.Logger) []Dispatch {
	if len(node.DHTReactions) == 0 {
		log.Infof("[UNCONFIGURED]->HUB: node %s has no DHT reactions", node.Name)
		return nil
	}
	return dispatchTargets(reg, node.DHTReactions, ev.TemplateValues(), log)
}

func dispatchTargets(reg *registry.Registry, targets []registry.Target, tmpl map[string]string, log logging.Logger) []Dispatch {
	out := make([]Dispatch, 0, len(targets))
	for _, t := range targets {
		target, ok := reg.ByName(t.Name)
		if !ok {
			log.Errorf("[UNKNOWN]->HUB: reaction target %q is not a configured node", t.Name)
			continue
		}
		out = append(out, Dispatch{TargetName: t.Name, Dest: target.NetID, Spec: t.Spec, Template: tmpl})
	}
	return out
}
