package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/soypat/dnet4"
)

func writeTestConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "router.ini")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("unexpected error writing test config: %v", err)
	}
	return path
}

func TestLoadParsesNodeAndASingleEthernetCircuit(t *testing.T) {
	path := writeTestConfig(t, `
[node]
address=1.10
name=RTRA
level=2
priority=96

[ethernet]
interface=eth0
cost=3
`)
	f, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := dnet4.Address{Area: 1, Node: 10}
	if f.Node.Address != want {
		t.Fatalf("expected node address %v, got %v", want, f.Node.Address)
	}
	if f.Node.Name != "RTRA" || f.Node.Level != 2 || f.Node.Priority != 96 {
		t.Fatalf("unexpected node fields: %+v", f.Node)
	}
	if len(f.Ethernet) != 1 || f.Ethernet[0].Interface != "eth0" || f.Ethernet[0].Cost != 3 {
		t.Fatalf("unexpected ethernet sections: %+v", f.Ethernet)
	}
}

func TestLoadAppliesDefaultsWhenOptionalKeysAreAbsent(t *testing.T) {
	path := writeTestConfig(t, `
[node]
address=1.10
name=RTRA

[ethernet]
interface=eth0
`)
	f, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Node.Level != 2 {
		t.Fatalf("expected default level 2, got %d", f.Node.Level)
	}
	if f.Node.Priority != 64 {
		t.Fatalf("expected default priority 64, got %d", f.Node.Priority)
	}
	if f.Ethernet[0].Cost != 3 {
		t.Fatalf("expected default ethernet cost 3, got %d", f.Ethernet[0].Cost)
	}
}

func TestLoadParsesBridgeSectionWithPeerNode(t *testing.T) {
	path := writeTestConfig(t, `
[node]
address=1.10
name=RTRA

[bridge]
address=203.0.113.5:700
port=700
peernode=1.20
cost=8
`)
	f, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.Bridge) != 1 {
		t.Fatalf("expected one bridge section, got %d", len(f.Bridge))
	}
	b := f.Bridge[0]
	if b.Address != "203.0.113.5:700" || b.Port != 700 || b.Cost != 8 {
		t.Fatalf("unexpected bridge fields: %+v", b)
	}
	want := dnet4.Address{Area: 1, Node: 20}
	if b.PeerNode != want {
		t.Fatalf("expected peernode %v, got %v", want, b.PeerNode)
	}
}

func TestLoadRejectsBridgeWithoutPeerNode(t *testing.T) {
	path := writeTestConfig(t, `
[node]
address=1.10
name=RTRA

[bridge]
address=203.0.113.5:700
port=700
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected an error for a [bridge] section missing peernode")
	}
}

func TestLoadParsesMultipleCircuitSectionsByDottedSuffix(t *testing.T) {
	path := writeTestConfig(t, `
[node]
address=1.10
name=RTRA

[ethernet.eth0]
interface=eth0

[ethernet.eth1]
interface=eth1
cost=7

[ddcmp.peer1]
address=peer1.example
cost=6

[socket]
TcpListenPort=700
`)
	f, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.Ethernet) != 2 {
		t.Fatalf("expected two ethernet sections, got %d", len(f.Ethernet))
	}
	if len(f.Ddcmp) != 1 || f.Ddcmp[0].Address != "peer1.example" || f.Ddcmp[0].Cost != 6 {
		t.Fatalf("unexpected ddcmp section: %+v", f.Ddcmp)
	}
	if f.Socket.TCPListenPort != 700 {
		t.Fatalf("expected TcpListenPort 700, got %d", f.Socket.TCPListenPort)
	}
}

func TestLoadRejectsMissingRequiredNodeAddress(t *testing.T) {
	path := writeTestConfig(t, `
[node]
name=RTRA
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected an error for a missing [node] address")
	}
}

func TestLoadRejectsDdcmpCircuitWithoutListenerPort(t *testing.T) {
	path := writeTestConfig(t, `
[node]
address=1.10
name=RTRA

[ddcmp]
address=peer1.example
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected an error when a [ddcmp] circuit has no [socket] TcpListenPort")
	}
}

func TestLoadRejectsTooManyCircuitSections(t *testing.T) {
	var b strings.Builder
	b.WriteString("[node]\naddress=1.10\nname=RTRA\n")
	for i := 0; i < dnet4.NC+1; i++ {
		fmt.Fprintf(&b, "\n[ethernet.%d]\ninterface=eth%d\n", i, i)
	}
	path := writeTestConfig(t, b.String())
	if _, err := Load(path); err == nil {
		t.Fatalf("expected an error for more than NC=%d circuit sections", dnet4.NC)
	}
}

func TestLoadParsesLoggingLevels(t *testing.T) {
	path := writeTestConfig(t, `
[node]
address=1.10
name=RTRA

[logging]
decision=verbose
adjacency=warning
forward=detail
`)
	f, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.Logging) != 3 {
		t.Fatalf("expected 3 logging entries, got %d: %v", len(f.Logging), f.Logging)
	}
}

func TestParseAddressRejectsOutOfRangeFields(t *testing.T) {
	cases := []string{"0.10", "64.10", "1.0", "1.1024", "garbage", "1"}
	for _, c := range cases {
		if _, err := ParseAddress(c); err == nil {
			t.Fatalf("expected ParseAddress(%q) to fail", c)
		}
	}
}
