package config

import (
	"fmt"

	"github.com/soypat/dnet4"
)

// Validate checks the required-field and capacity constraints spec.md §6
// names: the parser rejects configurations missing required fields or
// exceeding NC circuits.
func (f *File) Validate() error {
	if f.Node.Address.IsZero() {
		return fmt.Errorf("config: [node] address is required")
	}
	if f.Node.Name == "" {
		return fmt.Errorf("config: [node] name is required")
	}
	if len(f.Node.Name) > 6 {
		return fmt.Errorf("config: [node] name %q exceeds 6 characters", f.Node.Name)
	}
	if f.Node.Level != 1 && f.Node.Level != 2 {
		return fmt.Errorf("config: [node] level must be 1 or 2, got %d", f.Node.Level)
	}
	if int(f.Node.Priority) < dnet4.MinPriority || int(f.Node.Priority) > dnet4.MaxPriority {
		return fmt.Errorf("config: [node] priority must be %d..%d, got %d", dnet4.MinPriority, dnet4.MaxPriority, f.Node.Priority)
	}

	total := len(f.Ethernet) + len(f.Bridge) + len(f.Ddcmp)
	if total > dnet4.NC {
		return fmt.Errorf("config: %d circuit sections exceeds the maximum of %d", total, dnet4.NC)
	}
	if total > 0 && len(f.Ddcmp) > 0 && f.Socket.TCPListenPort == 0 {
		return fmt.Errorf("config: [socket] TcpListenPort is required when any [ddcmp] circuit is present")
	}

	for _, e := range f.Ethernet {
		if e.Interface == "" {
			return fmt.Errorf("config: [%s] interface is required", e.Name)
		}
	}
	for _, b := range f.Bridge {
		if b.Address == "" {
			return fmt.Errorf("config: [%s] address is required", b.Name)
		}
		if b.Port == 0 {
			return fmt.Errorf("config: [%s] port is required", b.Name)
		}
		if b.PeerNode.IsZero() {
			return fmt.Errorf("config: [%s] peernode is required", b.Name)
		}
	}
	for _, d := range f.Ddcmp {
		if d.Address == "" {
			return fmt.Errorf("config: [%s] address is required", d.Name)
		}
	}
	for _, n := range f.DNS {
		if n.Address == "" {
			return fmt.Errorf("config: [%s] address is required", n.Name)
		}
		if n.Poll <= 0 {
			return fmt.Errorf("config: [%s] poll is required and must be positive", n.Name)
		}
	}
	return nil
}
