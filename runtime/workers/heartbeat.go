package workers

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"

	"chat-relay/observability"
)

// HeartbeatWorker periodically logs process self-stats together with the
// chat gauges, giving operators a pulse without an external metrics stack.
type HeartbeatWorker struct {
	log      *slog.Logger
	interval time.Duration
	monitor  *observability.Monitor
}

func NewHeartbeatWorker(log *slog.Logger, interval time.Duration, monitor *observability.Monitor) *HeartbeatWorker {
	return &HeartbeatWorker{log: log, interval: interval, monitor: monitor}
}

func (w *HeartbeatWorker) Run(ctx context.Context) error {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.beat(p)
		}
	}
}

func (w *HeartbeatWorker) beat(p *process.Process) {
	var rssMb uint64
	if mem, err := p.MemoryInfo(); err == nil {
		rssMb = mem.RSS / 1024 / 1024
	}
	cpu, _ := p.CPUPercent()

	snap := w.monitor.Snapshot()
	w.log.Info("Heartbeat",
		"rss_mb", rssMb,
		"cpu_percent", cpu,
		"active_sessions", snap.ActiveSessions,
		"sessions_joined", snap.SessionsJoined,
		"messages", snap.MessagesBroadcast,
		"rate_limited", snap.RateLimited,
		"delivery_failures", snap.DeliveryFailures)
}
