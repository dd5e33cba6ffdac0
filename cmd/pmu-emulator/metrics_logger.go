package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rakyury/pmu30-host/internal/metrics"
)

func startMetricsLogger(ctx context.Context, interval time.Duration, l *slog.Logger, wg *sync.WaitGroup) {
	if interval <= 0 {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				snap := metrics.Snap()
				l.Info("metrics_snapshot",
					"frames_decoded", snap.FramesDecoded,
					"frame_crc_errors", snap.FrameCRCErrors,
					"retransmits", snap.Retransmits,
					"timeouts", snap.Timeouts,
					"config_uploads", snap.ConfigUploads,
					"telemetry_sent", snap.TelemetrySent,
					"telemetry_dropped", snap.TelemetryDrop,
					"active_sessions", snap.ActiveSessions,
					"errors", snap.Errors,
				)
			case <-ctx.Done():
				return
			}
		}
	}()
}
