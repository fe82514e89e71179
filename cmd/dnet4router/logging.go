package main

import (
	"log/slog"
	"os"
)

// subsystemLoggers builds one *slog.Logger per package name found in the
// [logging] config section, each filtering at its own configured level
// but all writing to the same handler destination, mirroring the
// reference's per-subsystem severity scale collapsed onto slog's levels
// (config.parseLevel does that collapsing).
type subsystemLoggers struct {
	levels   map[string]slog.Level
	fallback slog.Level
}

func newSubsystemLoggers(levels map[string]slog.Level) *subsystemLoggers {
	return &subsystemLoggers{levels: levels, fallback: slog.LevelInfo}
}

func (s *subsystemLoggers) forSubsystem(name string) *slog.Logger {
	lvl := s.fallback
	if l, ok := s.levels[name]; ok {
		lvl = l
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(h).With(slog.String("subsystem", name))
}
