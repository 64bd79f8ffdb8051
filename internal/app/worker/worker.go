package worker

import (
	"context"
	"log/slog"
	"time"

	"messenger/internal/core/contracts"
	"messenger/pkg/logging"
)

type connectionLister interface {
	LocalConnections() []string
}

type presenceSweeper interface {
	Touch(ctx context.Context, connID string)
	Sweep(ctx context.Context) int
}

// PresenceWorker keeps the liveness markers of sockets held by this process
// fresh and garbage-collects entries left behind by processes that died.
type PresenceWorker struct {
	log      *slog.Logger
	conns    connectionLister
	presence presenceSweeper
	interval time.Duration
}

func NewPresenceWorker(
	log *slog.Logger,
	conns connectionLister,
	presence presenceSweeper,
	interval time.Duration,
) contracts.AsyncWorker {
	return &PresenceWorker{
		log:      log,
		conns:    conns,
		presence: presence,
		interval: interval,
	}
}

func (w *PresenceWorker) Run(ctx context.Context) error {
	if w.interval <= 0 {
		w.log.WarnContext(ctx, "worker - presence - disabled", "interval", w.interval)
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	w.log.InfoContext(ctx, "worker - presence - started", "interval", w.interval)
	for {
		select {
		case <-ctx.Done():
			w.log.Info("worker - presence - stopped")
			return nil
		case <-ticker.C:
			w.Tick(ctx)
		}
	}
}

// Tick refreshes local markers first so an idle but open socket is never swept.
func (w *PresenceWorker) Tick(ctx context.Context) {
	local := w.conns.LocalConnections()
	for _, connID := range local {
		w.presence.Touch(ctx, connID)
	}
	removed := w.presence.Sweep(ctx)
	w.log.DebugContext(ctx, "worker - presence - tick done",
		logging.Count(len(local)), "removed", removed)
}
