package router

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/soypat/dnet4/internal/lrucache"
)

// DNSPeer names one [dns] config entry: a circuit peer identified by
// hostname whose address is re-resolved every Poll interval.
type DNSPeer struct {
	Name string
	Host string
	Poll time.Duration
}

// hostLookuper is the subset of *net.Resolver DNSResolver depends on,
// narrowed to a small interface so tests can substitute a fake instead of
// touching a real resolver.
type hostLookuper interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// DNSResolver periodically re-resolves a fixed set of peer hostnames and
// reports address changes to OnAddressChange. It is an external
// collaborator to the routing decision process: it never touches the
// adjacency table, the decision matrices, or a circuit directly, only
// tells its caller that a peer's address moved so the caller can decide
// how to reconnect.
type DNSResolver struct {
	Resolver        hostLookuper
	OnAddressChange func(name, host, address string)

	cache lrucache.Cache[string, string]
	log   *slog.Logger
}

// NewDNSResolver builds a resolver remembering the last resolved address
// for up to maxEntries distinct peer names.
func NewDNSResolver(maxEntries int) *DNSResolver {
	return &DNSResolver{
		Resolver: net.DefaultResolver,
		cache:    lrucache.New[string, string](maxEntries),
	}
}

func (d *DNSResolver) SetLogger(log *slog.Logger) { d.log = log }

// Run resolves every peer once immediately, then polls each on its own
// interval until ctx is cancelled. It blocks until every peer's polling
// goroutine has returned.
func (d *DNSResolver) Run(ctx context.Context, peers []DNSPeer) {
	if len(peers) == 0 {
		return
	}
	done := make(chan struct{}, len(peers))
	for _, p := range peers {
		go d.runPeer(ctx, p, done)
	}
	for range peers {
		<-done
	}
}

func (d *DNSResolver) runPeer(ctx context.Context, p DNSPeer, done chan<- struct{}) {
	defer func() { done <- struct{}{} }()
	d.poll(ctx, p)
	t := time.NewTicker(p.Poll)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			d.poll(ctx, p)
		}
	}
}

func (d *DNSResolver) poll(ctx context.Context, p DNSPeer) {
	addrs, err := d.Resolver.LookupHost(ctx, p.Host)
	if err != nil || len(addrs) == 0 {
		if d.log != nil {
			msg := "no addresses returned"
			if err != nil {
				msg = err.Error()
			}
			d.log.Warn("dns: resolution failed", slog.String("name", p.Name), slog.String("host", p.Host), slog.String("error", msg))
		}
		return
	}
	resolved := addrs[0]
	if prev, ok := d.cache.Get(p.Name); ok && prev == resolved {
		return
	}
	d.cache.Push(p.Name, resolved)
	if d.log != nil {
		d.log.Info("dns: peer address resolved", slog.String("name", p.Name), slog.String("host", p.Host), slog.String("address", resolved))
	}
	if d.OnAddressChange != nil {
		d.OnAddressChange(p.Name, p.Host, resolved)
	}
}
