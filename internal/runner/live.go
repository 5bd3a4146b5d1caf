package runner

import (
	"context"
	"errors"
	"log/slog"

	"quantbt/internal/config"
)

// Live is the placeholder for the live trading mode. It participates in mode
// dispatch so configuration and wiring are exercised, but running it is an
// explicit error until an execution path exists.
type Live struct {
	cfg *config.Global
	log *slog.Logger
}

// NewLive creates the live mode.
func NewLive(cfg *config.Global, log *slog.Logger) *Live {
	return &Live{cfg: cfg, log: log}
}

// Run always fails: live execution is not implemented.
func (l *Live) Run(_ context.Context) error {
	l.log.Error("live mode requested", "run", l.cfg.RunName)
	return errors.New("live mode is not implemented")
}
