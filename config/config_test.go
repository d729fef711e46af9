package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/blackdog70/SimpleDude/config"
	"github.com/blackdog70/SimpleDude/proto"
)

// writeTemp writes content to a temp file and returns its path.
func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hub.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// TestLoadSwitchTriggersLight loads a switch-triggers-light configuration
// and checks the resulting registry.NodeConfig carries exactly the
// reaction it describes.
func TestLoadSwitchTriggersLight(t *testing.T) {
	path := writeTemp(t, `
ttyS0:
  ARDUINO_TEST:
    net: 36097
    config: { SWITCH: 1, LIGHT: 1 }
    SWITCH:
      1:
        - ARDUINO_TEST:
            LIGHT: [0,0,0,0,0,0,0,0,1,0,0]
`)
	buses, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(buses) != 1 || len(buses[0].Nodes) != 1 {
		t.Fatalf("got %d buses, want 1 with 1 node", len(buses))
	}
	node := buses[0].Nodes[0]
	if node.Name != "ARDUINO_TEST" || node.NetID != 36097 || node.Bus != "ttyS0" {
		t.Fatalf("unexpected node: %+v", node)
	}
	targets, ok := node.SwitchReactions[1]
	if !ok || len(targets) != 1 {
		t.Fatalf("SwitchReactions[1] = %+v, want one target", node.SwitchReactions)
	}
	if targets[0].Name != "ARDUINO_TEST" || targets[0].Spec.Kind != proto.KindOpBytes {
		t.Fatalf("unexpected target spec: %+v", targets[0])
	}
}

// TestLoadDHTReactionList loads a configuration where DHT is a list of
// two single-target templated reactions.
func TestLoadDHTReactionList(t *testing.T) {
	path := writeTemp(t, `
ttyS0:
  ARDUINO_TEST:
    net: 36097
    config: { DHT: 50 }
    DHT:
      - ARDUINO_TEST:
          LCDPRINT: [0, 0, 0, "Temp:{temperature}"]
      - ARDUINO_TEST:
          LCDPRINT: [0, 1, 0, "Hum:{humidity}"]
`)
	buses, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	node := buses[0].Nodes[0]
	if len(node.DHTReactions) != 2 {
		t.Fatalf("DHTReactions = %+v, want 2 entries", node.DHTReactions)
	}
	if node.ConfigValues["DHT"] != 50 {
		t.Fatalf("ConfigValues[DHT] = %d, want 50", node.ConfigValues["DHT"])
	}
	if !node.HasDHT {
		t.Fatal("HasDHT = false, want true from non-zero config.DHT")
	}
}

// TestLoadLightingScenes checks the lights table decodes into 11-byte
// patterns and implicitly marks the node light-capable.
func TestLoadLightingScenes(t *testing.T) {
	path := writeTemp(t, `
ttyS0:
  LIVING_ROOM:
    net: 40
    lights:
      allOn: [1,1,1,1,1,1,1,1,1,1,1]
      allOff: [0,0,0,0,0,0,0,0,0,0,0]
`)
	buses, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	node := buses[0].Nodes[0]
	if !node.HasLight {
		t.Fatal("HasLight = false, want true from non-empty lights table")
	}
	if node.Lights["allOn"] != ([11]byte{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1}) {
		t.Fatalf("allOn = %v", node.Lights["allOn"])
	}
}

func TestLoadRejectsUnrecognizedConfigOption(t *testing.T) {
	path := writeTemp(t, `
ttyS0:
  BAD:
    net: 10
    config: { BOGUS: 1 }
`)
	if _, err := config.Load(path); err == nil {
		t.Fatal("want error for unrecognized config option, got nil")
	}
}

func TestLoadRejectsMissingNet(t *testing.T) {
	path := writeTemp(t, `
ttyS0:
  BAD: {}
`)
	if _, err := config.Load(path); err == nil {
		t.Fatal("want error for missing net id, got nil")
	}
}

func TestLoadMultipleBuses(t *testing.T) {
	path := writeTemp(t, `
ttyS0:
  A:
    net: 10
ttyS1:
  B:
    net: 20
`)
	buses, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(buses) != 2 {
		t.Fatalf("got %d buses, want 2", len(buses))
	}
}
