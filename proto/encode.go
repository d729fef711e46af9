package proto

import (
	"strconv"
	"strings"

	"github.com/blackdog70/SimpleDude/logging"
)

// Command is a single outbound packet still awaiting framing: a
// destination net id and its logical (unpadded) payload, opcode byte
// first.
type Command struct {
	Dest    uint16
	Payload []byte
}

// SceneResolver looks up a named lighting scene for the node an Encode call
// targets. Implemented by *registry.Node.
type SceneResolver interface {
	ResolveScene(name string) ([11]byte, bool)
	HasLight() bool
}

// Encode expands spec into zero or more Commands addressed at dest.
// Oversize payloads (> MaxPayload bytes, opcode included) are logged via
// log and dropped; the rest of the sequence still encodes.
func Encode(dest uint16, spec Spec, scenes SceneResolver, tmpl map[string]string, log logging.Logger) []Command {
	var out []Command
	encodeInto(dest, spec, scenes, tmpl, log, &out)
	return out
}

func encodeInto(dest uint16, spec Spec, scenes SceneResolver, tmpl map[string]string, log logging.Logger, out *[]Command) {
	code, ok := LookupOpcode(spec.Opcode)
	switch spec.Kind {
	case KindSeq:
		for _, s := range spec.Seq {
			encodeInto(dest, s, scenes, tmpl, log, out)
		}
		return
	case KindOp:
		if !ok {
			log.Errorf("ENCODE: unknown opcode %q", spec.Opcode)
			return
		}
		appendCommand(dest, []byte{byte(code)}, log, out)
	case KindOpInt:
		if !ok {
			log.Errorf("ENCODE: unknown opcode %q", spec.Opcode)
			return
		}
		appendCommand(dest, []byte{byte(code), spec.Int}, log, out)
	case KindOpMap:
		if !ok {
			log.Errorf("ENCODE: unknown opcode %q", spec.Opcode)
			return
		}
		for _, e := range spec.Map {
			sub, ok := LookupOpcode(e.Sub)
			if !ok {
				log.Errorf("ENCODE: unknown sub-opcode %q", e.Sub)
				continue
			}
			appendCommand(dest, []byte{byte(code), byte(sub), e.Val}, log, out)
		}
	case KindOpBytes:
		if !ok {
			log.Errorf("ENCODE: unknown opcode %q", spec.Opcode)
			return
		}
		payload := []byte{byte(code)}
		for _, item := range spec.Items {
			payload = append(payload, substituteItem(item, tmpl).bytes()...)
		}
		appendCommand(dest, payload, log, out)
	case KindScene:
		if !ok {
			log.Errorf("ENCODE: unknown opcode %q", spec.Opcode)
			return
		}
		payload := []byte{byte(code)}
		if scenes != nil && scenes.HasLight() {
			if pattern, found := scenes.ResolveScene(spec.Scene); found {
				payload = append(payload, pattern[:]...)
			} else {
				log.Errorf("ENCODE: unknown scene %q, using all-zero pattern", spec.Scene)
				payload = append(payload, make([]byte, 11)...)
			}
		} else {
			payload = append(payload, make([]byte, 11)...)
		}
		appendCommand(dest, payload, log, out)
	}
}

func appendCommand(dest uint16, payload []byte, log logging.Logger, out *[]Command) {
	if len(payload) > MaxPayload {
		log.Criticalf("ENCODE: payload of %d bytes exceeds the %d byte maximum, dropping command", len(payload), MaxPayload)
		return
	}
	*out = append(*out, Command{Dest: dest, Payload: payload})
}

// substituteItem applies {temperature}/{humidity}-style template
// substitution to a string item and, if the substituted text parses
// cleanly as a small integer, coerces it back to a numeric byte so a
// placeholder can stand in a byte position as well as inside text.
func substituteItem(item Item, tmpl map[string]string) Item {
	if !item.IsString || len(tmpl) == 0 {
		return item
	}
	replacer := make([]string, 0, len(tmpl)*2)
	for k, v := range tmpl {
		replacer = append(replacer, "{"+k+"}", v)
	}
	s := strings.NewReplacer(replacer...).Replace(item.Str)
	if n, err := strconv.Atoi(s); err == nil && n >= 0 && n <= 255 {
		return IntItem(byte(n))
	}
	return StrItem(s)
}

func (i Item) bytes() []byte {
	if i.IsString {
		return []byte(i.Str)
	}
	return []byte{i.Byte}
}
