package workers

import (
	"context"
	"log/slog"
	"time"

	"teamlink/contract"
)

// TickWorker is the periodic tick source driving the dispatcher. Each tick
// calls DispatchPending exactly once on this goroutine, which keeps all
// subscriber invocations single-threaded.
type TickWorker struct {
	log      *slog.Logger
	pump     contract.Pump
	interval time.Duration
}

func NewTickWorker(log *slog.Logger, pump contract.Pump, interval time.Duration) *TickWorker {
	return &TickWorker{log: log, pump: pump, interval: interval}
}

func (w *TickWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping dispatcher tick")
			return nil
		case <-ticker.C:
			w.pump.DispatchPending()
		}
	}
}
