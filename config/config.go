// Package config loads the YAML bus/node topology into the shapes
// registry.New and hub.New consume. It is the one place that knows the
// on-disk configuration format; every other package deals only in
// registry.NodeConfig and proto.Spec values.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/blackdog70/SimpleDude/proto"
	"github.com/blackdog70/SimpleDude/registry"
)

// configOption names the recognized keys of a node's `config:` block.
var configOption = map[string]struct{}{
	"HBT":    {},
	"DHT":    {},
	"LIGHT":  {},
	"SWITCH": {},
	"LCD":    {},
}

// Bus is one parsed `<bus_port>:` section: its device name and baud rate,
// plus the node descriptors configured under it. Port/Baud feed
// busengine.Dial; Nodes feeds registry.New.
type Bus struct {
	Port  string
	Baud  int
	Nodes []registry.NodeConfig
}

// rawNode mirrors the on-disk YAML shape directly, with yaml.Node values
// wherever a field can take any of the Spec shapes FromYAML accepts.
type rawNode struct {
	Net    uint16            `yaml:"net"`
	Config map[string]byte   `yaml:"config"`
	Lights map[string][]byte `yaml:"lights"`
	Switch map[int]yaml.Node `yaml:"SWITCH"`
	DHT    yaml.Node         `yaml:"DHT"`
}

// Load reads path, a YAML document mapping bus port names to device
// maps, and returns one Bus per port in file order. Baud is fixed at
// 38400, the rate every node's bootloader and firmware run at; the
// format has no per-bus override for it.
func Load(path string) ([]Bus, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	var root yaml.Node
	dec := yaml.NewDecoder(f)
	if err := dec.Decode(&root); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) != 1 {
		return nil, fmt.Errorf("config: %s: expected a single top-level document", path)
	}
	top := root.Content[0]
	if top.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("config: %s: top level must map bus ports to device sets", path)
	}

	buses := make([]Bus, 0, len(top.Content)/2)
	for i := 0; i+1 < len(top.Content); i += 2 {
		var port string
		if err := top.Content[i].Decode(&port); err != nil {
			return nil, fmt.Errorf("config: %s: bus key: %w", path, err)
		}
		devices := top.Content[i+1]
		if devices.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("config: %s: bus %q: expected a device map", path, port)
		}
		nodes, err := loadDevices(port, devices)
		if err != nil {
			return nil, err
		}
		buses = append(buses, Bus{Port: port, Baud: 38400, Nodes: nodes})
	}
	return buses, nil
}

func loadDevices(bus string, devices *yaml.Node) ([]registry.NodeConfig, error) {
	nodes := make([]registry.NodeConfig, 0, len(devices.Content)/2)
	for i := 0; i+1 < len(devices.Content); i += 2 {
		var name string
		if err := devices.Content[i].Decode(&name); err != nil {
			return nil, fmt.Errorf("config: bus %q: device key: %w", bus, err)
		}
		nc, err := loadNode(bus, name, devices.Content[i+1])
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, nc)
	}
	return nodes, nil
}

func loadNode(bus, name string, node *yaml.Node) (registry.NodeConfig, error) {
	var raw rawNode
	if err := node.Decode(&raw); err != nil {
		return registry.NodeConfig{}, fmt.Errorf("config: device %q: %w", name, err)
	}
	if raw.Net == 0 {
		return registry.NodeConfig{}, fmt.Errorf("config: device %q: missing net id", name)
	}

	nc := registry.NodeConfig{
		Name:            name,
		NetID:           raw.Net,
		Bus:             bus,
		ConfigValues:    make(map[string]byte, len(raw.Config)),
		SwitchReactions: make(map[int][]registry.Target, len(raw.Switch)),
	}
	for opt, val := range raw.Config {
		if _, ok := configOption[opt]; !ok {
			return registry.NodeConfig{}, fmt.Errorf("config: device %q: unrecognized config option %q", name, opt)
		}
		nc.ConfigValues[opt] = val
		switch opt {
		case "LIGHT":
			nc.HasLight = val != 0
		case "SWITCH":
			nc.HasSwitch = val != 0
		case "LCD":
			nc.HasLCD = val != 0
		case "DHT":
			nc.HasDHT = val != 0
		}
	}

	if len(raw.Lights) > 0 {
		nc.Lights = make(map[string][11]byte, len(raw.Lights))
		for scene, bytes := range raw.Lights {
			if len(bytes) != 11 {
				return registry.NodeConfig{}, fmt.Errorf("config: device %q: scene %q has %d bytes, want 11", name, scene, len(bytes))
			}
			var pattern [11]byte
			copy(pattern[:], bytes)
			nc.Lights[scene] = pattern
		}
		nc.HasLight = true
	}

	for slot, targetsNode := range raw.Switch {
		targets, err := loadTargets(&targetsNode)
		if err != nil {
			return registry.NodeConfig{}, fmt.Errorf("config: device %q: SWITCH[%d]: %w", name, slot, err)
		}
		nc.SwitchReactions[slot] = targets
		nc.HasSwitch = true
	}

	if raw.DHT.Kind != 0 {
		targets, err := loadTargets(&raw.DHT)
		if err != nil {
			return registry.NodeConfig{}, fmt.Errorf("config: device %q: DHT: %w", name, err)
		}
		nc.DHTReactions = targets
	}

	return nc, nil
}

// loadTargets decodes a `[ { target: spec } ... ]` reaction list (or a
// single `{ target: spec }` mapping, as SWITCH/DHT blocks allow) into
// registry.Target values, running each spec through proto.FromYAML.
func loadTargets(node *yaml.Node) ([]registry.Target, error) {
	var entries []*yaml.Node
	switch node.Kind {
	case yaml.SequenceNode:
		entries = node.Content
	case yaml.MappingNode:
		entries = []*yaml.Node{node}
	default:
		return nil, fmt.Errorf("expected a mapping or list of mappings, got kind %v", node.Kind)
	}

	var targets []registry.Target
	for _, entry := range entries {
		if entry.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("expected {target: spec} mapping")
		}
		for i := 0; i+1 < len(entry.Content); i += 2 {
			var target string
			if err := entry.Content[i].Decode(&target); err != nil {
				return nil, fmt.Errorf("target name: %w", err)
			}
			spec, err := proto.FromYAML(entry.Content[i+1])
			if err != nil {
				return nil, fmt.Errorf("target %q: %w", target, err)
			}
			targets = append(targets, registry.Target{Name: target, Spec: spec})
		}
	}
	return targets, nil
}
