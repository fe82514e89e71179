package decision

import (
	"log/slog"

	"github.com/soypat/dnet4/internal"
)

func (p *Process) logenabled(lvl slog.Level) bool {
	return internal.LogEnabled(p.log, lvl)
}

func (p *Process) trace(msg string, attrs ...slog.Attr) {
	internal.LogAttrs(p.log, internal.LevelTrace, msg, attrs...)
}

func (p *Process) traceRoute(msg string, dest int, minhop, mincost uint16, oa int, reach bool) {
	if !p.logenabled(internal.LevelTrace) {
		return
	}
	p.trace(msg,
		slog.Int("dest", dest),
		slog.Uint64("minhop", uint64(minhop)),
		slog.Uint64("mincost", uint64(mincost)),
		slog.Int("oa", oa),
		slog.Bool("reach", reach),
	)
}
