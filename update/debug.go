package update

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

func (p *Process) traceSendError(msg string, slot int, err error) {
	if p.log == nil {
		return
	}
	p.log.Warn(msg, slog.Int("slot", slot), slog.String("error", err.Error()))
}
