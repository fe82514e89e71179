// Package config parses the sectioned INI-like configuration file into
// the parameters router.NewRouter and its circuit constructors need.
package config

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/soypat/dnet4"
	"github.com/soypat/dnet4/internal"
)

// Node holds the [node] section: this router's own address, name, and
// routing level/priority.
type Node struct {
	Address  dnet4.Address
	Name     string
	Level    int
	Priority byte
}

// Socket holds the [socket] section: the inbound DDCMP-over-TCP listener
// port, required whenever at least one Ddcmp circuit is configured.
type Socket struct {
	TCPListenPort int
}

// Ethernet holds one [ethernet] section: a circuit over a named real NIC.
type Ethernet struct {
	Name      string
	Interface string
	Cost      int
}

// Bridge holds one [bridge] section: an Ethernet-over-UDP tunnel to
// another router. PeerNode is the remote end's DECnet address, used to
// derive its synthetic hardware address so the tunnel can be seeded with
// AddPeer before the remote end has sent a single frame; Address/Port
// name the UDP endpoint to reach it at.
type Bridge struct {
	Name     string
	Address  string
	Port     int
	PeerNode dnet4.Address
	Cost     int
}

// Ddcmp holds one [ddcmp] section: a DDCMP-over-TCP point-to-point
// circuit to the given peer.
type Ddcmp struct {
	Name    string
	Address string
	Cost    int
}

// DNS holds one [dns] section: periodic re-resolution of a peer hostname.
type DNS struct {
	Name    string
	Address string
	Poll    int
}

// File is the fully parsed and validated configuration.
type File struct {
	Node     Node
	Logging  map[string]slog.Level
	Socket   Socket
	Ethernet []Ethernet
	Bridge   []Bridge
	Ddcmp    []Ddcmp
	DNS      []DNS
}

// Load reads and parses the INI file at path, then validates it. An error
// from ini.v1 loading the file is wrapped with the path; errors from
// parsing the sections and from Validate are returned as they are.
func Load(path string) (*File, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("config: loading %s: %w", path, err)
	}
	f, err := parse(cfg)
	if err != nil {
		return nil, err
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

func parse(cfg *ini.File) (*File, error) {
	f := &File{Logging: make(map[string]slog.Level)}

	node := cfg.Section("node")
	addr, err := ParseAddress(node.Key("address").String())
	if err != nil {
		return nil, fmt.Errorf("config: [node] address: %w", err)
	}
	f.Node.Address = addr
	f.Node.Name = node.Key("name").String()
	f.Node.Level = node.Key("level").MustInt(2)
	f.Node.Priority = byte(node.Key("priority").MustInt(64))

	if logging, err := cfg.GetSection("logging"); err == nil {
		for _, key := range logging.Keys() {
			lvl, err := parseLevel(key.String())
			if err != nil {
				return nil, fmt.Errorf("config: [logging] %s: %w", key.Name(), err)
			}
			f.Logging[key.Name()] = lvl
		}
	}

	if socket, err := cfg.GetSection("socket"); err == nil {
		f.Socket.TCPListenPort = socket.Key("TcpListenPort").MustInt(0)
	}

	for _, sec := range cfg.Sections() {
		name := sec.Name()
		switch {
		case name == "ethernet" || strings.HasPrefix(name, "ethernet."):
			f.Ethernet = append(f.Ethernet, Ethernet{
				Name:      name,
				Interface: sec.Key("interface").String(),
				Cost:      sec.Key("cost").MustInt(3),
			})
		case name == "bridge" || strings.HasPrefix(name, "bridge."):
			var peer dnet4.Address
			if raw := sec.Key("peernode").String(); raw != "" {
				peer, err = ParseAddress(raw)
				if err != nil {
					return nil, fmt.Errorf("config: [%s] peernode: %w", name, err)
				}
			}
			f.Bridge = append(f.Bridge, Bridge{
				Name:     name,
				Address:  sec.Key("address").String(),
				Port:     sec.Key("port").MustInt(0),
				PeerNode: peer,
				Cost:     sec.Key("cost").MustInt(5),
			})
		case name == "ddcmp" || strings.HasPrefix(name, "ddcmp."):
			f.Ddcmp = append(f.Ddcmp, Ddcmp{
				Name:    name,
				Address: sec.Key("address").String(),
				Cost:    sec.Key("cost").MustInt(5),
			})
		case name == "dns" || strings.HasPrefix(name, "dns."):
			f.DNS = append(f.DNS, DNS{
				Name:    name,
				Address: sec.Key("address").String(),
				Poll:    sec.Key("poll").MustInt(0),
			})
		}
	}
	return f, nil
}

// parseLevel maps the six reference severity names onto slog's four
// levels plus internal.LevelTrace (fatal and error both collapse onto
// slog.LevelError: slog has no separate fatal level, and nothing in this
// router exits the process on a logged event).
func parseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "fatal", "error":
		return slog.LevelError, nil
	case "warning":
		return slog.LevelWarn, nil
	case "info":
		return slog.LevelInfo, nil
	case "detail":
		return slog.LevelDebug, nil
	case "verbose":
		return internal.LevelTrace, nil
	default:
		return 0, fmt.Errorf("unrecognized level %q", name)
	}
}

// ParseAddress parses the AREA.NODE form spec.md §6 requires for [node]
// address.
func ParseAddress(s string) (dnet4.Address, error) {
	area, node, ok := strings.Cut(s, ".")
	if !ok {
		return dnet4.Address{}, fmt.Errorf("address %q: want AREA.NODE", s)
	}
	a, err := strconv.Atoi(area)
	if err != nil {
		return dnet4.Address{}, fmt.Errorf("address %q: bad area: %w", s, err)
	}
	n, err := strconv.Atoi(node)
	if err != nil {
		return dnet4.Address{}, fmt.Errorf("address %q: bad node: %w", s, err)
	}
	if a < 1 || a > dnet4.NA {
		return dnet4.Address{}, fmt.Errorf("address %q: area out of range 1..%d", s, dnet4.NA)
	}
	if n < 1 || n > dnet4.NN {
		return dnet4.Address{}, fmt.Errorf("address %q: node out of range 1..%d", s, dnet4.NN)
	}
	return dnet4.Address{Area: uint8(a), Node: uint16(n)}, nil
}
