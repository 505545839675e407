package workers

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"

	"teamlink/observability"
	"teamlink/relay"
)

// HeartbeatWorker periodically logs relay counters together with the
// process's own resource usage (RSS, CPU, OS status).
type HeartbeatWorker struct {
	log      *slog.Logger
	core     *relay.Core
	monitor  *observability.RelayMonitor
	interval time.Duration
}

func NewHeartbeatWorker(
	log *slog.Logger,
	core *relay.Core,
	monitor *observability.RelayMonitor,
	interval time.Duration,
) *HeartbeatWorker {
	return &HeartbeatWorker{log: log, core: core, monitor: monitor, interval: interval}
}

// Run executes the main loop of the worker, reporting health metrics on
// every interval until the context is canceled.
func (w *HeartbeatWorker) Run(ctx context.Context) error {
	w.log.Info("Starting relay heartbeat worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			stats := w.monitor.Refresh(w.core.Registry().Len(), w.core.QueueDepth())

			rss, cpu, status, err := getSelfStats(p)
			if err != nil {
				w.log.Error("Failed to collect self stats", "err", err)
				continue
			}

			w.log.Info("Relay heartbeat",
				"sessions", stats.ActiveSessions,
				"accepted", stats.SessionsAccepted,
				"closed", stats.SessionsClosed,
				"in", stats.MessagesIn,
				"relayed", stats.MessagesRelayed,
				"dispatched", stats.MessagesDispatched,
				"queue", stats.QueueDepth,
				"write_faults", stats.WriteFaults,
				"ram_bytes", rss,
				"cpu_percent", cpu,
				"pid_status", status,
			)
		}
	}
}

// getSelfStats retrieves technical metrics (Memory, CPU, and OS Status) for the given process.
func getSelfStats(p *process.Process) (uint64, float64, string, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return 0, 0, "", err
	}

	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return 0, 0, "", err
	}

	status, err := p.Status()
	if err != nil {
		return 0, 0, "", err
	}
	return memInfo.RSS, cpuPercent, status, nil
}
