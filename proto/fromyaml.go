package proto

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// FromYAML converts a decoded YAML node into a Spec: a bare scalar is a
// no-argument opcode, a mapping is {opcode: arg}, a sequence is an
// ordered Seq of the above. Mapping key order is preserved via yaml.Node
// traversal; a plain map[string]any would randomize the order CONFIG's
// sub-commands go out in.
func FromYAML(node *yaml.Node) (Spec, error) {
	node = resolveAlias(node)
	switch node.Kind {
	case yaml.ScalarNode:
		var name string
		if err := node.Decode(&name); err != nil {
			return Spec{}, fmt.Errorf("proto: spec scalar: %w", err)
		}
		return Op(name), nil
	case yaml.SequenceNode:
		specs := make([]Spec, 0, len(node.Content))
		for _, item := range node.Content {
			s, err := FromYAML(item)
			if err != nil {
				return Spec{}, err
			}
			specs = append(specs, s)
		}
		return Seq(specs...), nil
	case yaml.MappingNode:
		specs := make([]Spec, 0, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			var opcode string
			if err := node.Content[i].Decode(&opcode); err != nil {
				return Spec{}, fmt.Errorf("proto: spec key: %w", err)
			}
			s, err := specFromArg(opcode, node.Content[i+1])
			if err != nil {
				return Spec{}, err
			}
			specs = append(specs, s)
		}
		if len(specs) == 1 {
			return specs[0], nil
		}
		return Seq(specs...), nil
	default:
		return Spec{}, fmt.Errorf("proto: unsupported spec node kind %v", node.Kind)
	}
}

// ParseAdHoc parses a single-line YAML command spec (a bare opcode name
// or a "{OPCODE: arg}" mapping), the shape accepted by the CLI's
// -execute verb.
func ParseAdHoc(s string) (Spec, error) {
	var node yaml.Node
	if err := yaml.Unmarshal([]byte(s), &node); err != nil {
		return Spec{}, fmt.Errorf("proto: parse ad-hoc spec %q: %w", s, err)
	}
	if node.Kind != yaml.DocumentNode || len(node.Content) != 1 {
		return Spec{}, fmt.Errorf("proto: parse ad-hoc spec %q: expected a single value", s)
	}
	return FromYAML(node.Content[0])
}

func specFromArg(opcode string, arg *yaml.Node) (Spec, error) {
	arg = resolveAlias(arg)
	switch arg.Kind {
	case yaml.MappingNode:
		entries := make([]MapEntry, 0, len(arg.Content)/2)
		for i := 0; i+1 < len(arg.Content); i += 2 {
			var sub string
			if err := arg.Content[i].Decode(&sub); err != nil {
				return Spec{}, fmt.Errorf("proto: sub-opcode key: %w", err)
			}
			b, err := decodeByte(arg.Content[i+1])
			if err != nil {
				return Spec{}, err
			}
			entries = append(entries, MapEntry{Sub: sub, Val: b})
		}
		return OpMap(opcode, entries...), nil
	case yaml.SequenceNode:
		items := make([]Item, 0, len(arg.Content))
		for _, n := range arg.Content {
			n = resolveAlias(n)
			if n.Tag == "!!str" {
				var s string
				if err := n.Decode(&s); err != nil {
					return Spec{}, err
				}
				items = append(items, StrItem(s))
				continue
			}
			b, err := decodeByte(n)
			if err != nil {
				return Spec{}, err
			}
			items = append(items, IntItem(b))
		}
		return OpBytes(opcode, items...), nil
	case yaml.ScalarNode:
		if arg.Tag == "!!str" {
			var s string
			if err := arg.Decode(&s); err != nil {
				return Spec{}, err
			}
			return Scene(opcode, s), nil
		}
		b, err := decodeByte(arg)
		if err != nil {
			return Spec{}, err
		}
		return OpInt(opcode, b), nil
	default:
		return Spec{}, fmt.Errorf("proto: unsupported arg node kind %v for %q", arg.Kind, opcode)
	}
}

func decodeByte(n *yaml.Node) (byte, error) {
	var i int
	if err := n.Decode(&i); err != nil {
		return 0, fmt.Errorf("proto: expected integer byte value: %w", err)
	}
	if i < 0 || i > 255 {
		return 0, fmt.Errorf("proto: byte value %d out of range", i)
	}
	return byte(i), nil
}

func resolveAlias(n *yaml.Node) *yaml.Node {
	for n != nil && n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	return n
}
