package core

import (
	"context"
	"log/slog"
	"time"
)

// Ticker advances a node's tick once per interval of wall-clock time.
type Ticker struct {
	node     *Node
	interval time.Duration
	logger   *slog.Logger
}

// NewTicker returns a ticker driving node. A non-positive interval defaults
// to one second.
func NewTicker(node *Node, interval time.Duration, logger *slog.Logger) *Ticker {
	if interval <= 0 {
		interval = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ticker{node: node, interval: interval, logger: logger}
}

// Run advances the tick until ctx is cancelled.
func (t *Ticker) Run(ctx context.Context) error {
	timer := time.NewTicker(t.interval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			if _, err := t.node.AdvanceTick(1); err != nil {
				t.logger.Error("tick advance failed", slog.Any("error", err))
			}
		}
	}
}
