package proto_test

import (
	"bytes"
	"testing"

	"github.com/blackdog70/SimpleDude/logging"
	"github.com/blackdog70/SimpleDude/proto"
	"gopkg.in/yaml.v3"
)

func parseYAML(t *testing.T, text string) *yaml.Node {
	t.Helper()
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(text), &doc); err != nil {
		t.Fatalf("yaml.Unmarshal: %v", err)
	}
	return doc.Content[0]
}

func TestFromYAMLBareOpcode(t *testing.T) {
	spec, err := proto.FromYAML(parseYAML(t, `MEM`))
	if err != nil {
		t.Fatal(err)
	}
	cmds := proto.Encode(1, spec, nil, nil, logging.Discard{})
	if len(cmds) != 1 || !bytes.Equal(cmds[0].Payload, []byte{byte(proto.MEM)}) {
		t.Fatalf("got %v", cmds)
	}
}

func TestFromYAMLConfigPreservesOrder(t *testing.T) {
	spec, err := proto.FromYAML(parseYAML(t, "CONFIG:\n  HBT: 1\n  DHT: 50\n"))
	if err != nil {
		t.Fatal(err)
	}
	cmds := proto.Encode(1, spec, nil, nil, logging.Discard{})
	want := []proto.Command{
		{Dest: 1, Payload: []byte{byte(proto.CONFIG), byte(proto.HBT), 1}},
		{Dest: 1, Payload: []byte{byte(proto.CONFIG), byte(proto.DHT), 50}},
	}
	if len(cmds) != len(want) {
		t.Fatalf("got %d commands, want %d: %v", len(cmds), len(want), cmds)
	}
	for i := range want {
		if !bytes.Equal(cmds[i].Payload, want[i].Payload) {
			t.Errorf("command %d = %+v, want %+v", i, cmds[i], want[i])
		}
	}
}

func TestFromYAMLSequence(t *testing.T) {
	spec, err := proto.FromYAML(parseYAML(t, "- STANDBY\n- RUN\n"))
	if err != nil {
		t.Fatal(err)
	}
	cmds := proto.Encode(1, spec, nil, nil, logging.Discard{})
	if len(cmds) != 2 || cmds[0].Payload[0] != byte(proto.STANDBY) || cmds[1].Payload[0] != byte(proto.RUN) {
		t.Fatalf("got %v", cmds)
	}
}

func TestFromYAMLSceneString(t *testing.T) {
	spec, err := proto.FromYAML(parseYAML(t, "LIGHT: allOn"))
	if err != nil {
		t.Fatal(err)
	}
	if spec.Kind != proto.KindScene || spec.Scene != "allOn" {
		t.Fatalf("got %+v", spec)
	}
}

func TestFromYAMLBytesList(t *testing.T) {
	spec, err := proto.FromYAML(parseYAML(t, "LCDPRINT:\n  - \"Temp:\"\n  - 21\n"))
	if err != nil {
		t.Fatal(err)
	}
	if spec.Kind != proto.KindOpBytes || len(spec.Items) != 2 {
		t.Fatalf("got %+v", spec)
	}
	if !spec.Items[0].IsString || spec.Items[0].Str != "Temp:" {
		t.Fatalf("item 0 = %+v", spec.Items[0])
	}
	if spec.Items[1].IsString || spec.Items[1].Byte != 21 {
		t.Fatalf("item 1 = %+v", spec.Items[1])
	}
}
