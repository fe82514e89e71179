package adjacency

import (
	"log/slog"

	"github.com/soypat/dnet4/internal"
)

// SetLogger attaches a logger for trace/debug output; nil disables it
// outside of heap-alloc debug builds, matching ddcmp.ControlBlock's
// SetLogger.
func (t *Table) SetLogger(log *slog.Logger) { t.log = log }

func (t *Table) logEnabled(lvl slog.Level) bool {
	return internal.LogEnabled(t.log, lvl)
}

func (t *Table) trace(msg string, attrs ...slog.Attr) {
	internal.LogAttrs(t.log, internal.LevelTrace, msg, attrs...)
}

func (t *Table) traceAdjacency(msg string, a *Adjacency) {
	if !t.logEnabled(internal.LevelTrace) {
		return
	}
	t.trace(msg,
		slog.Int("slot", a.Slot),
		slog.String("kind", a.Kind.String()),
		slog.String("id", a.ID.String()),
		slog.String("state", a.State.String()),
	)
}
