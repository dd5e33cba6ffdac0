// Package metrics exposes Prometheus counters/gauges for the PMU-30 host
// stack (frame decoding, transport retransmits, config uploads, telemetry
// delivery) plus cheap atomic mirrors for periodic structured logging when
// no Prometheus scraper is present. Pattern lifted from the teacher's
// internal/metrics, generalized from CAN-frame counters to PMU-30
// frame/transport/config/telemetry counters.
package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rakyury/pmu30-host/internal/logging"
)

var (
	FramesDecoded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pmu_frames_decoded_total",
		Help: "Total protocol frames successfully decoded.",
	})
	FrameCRCErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pmu_frame_crc_errors_total",
		Help: "Total frames rejected due to CRC mismatch.",
	})
	FrameResyncs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pmu_frame_resyncs_total",
		Help: "Total garbage-byte resync events before a valid start byte.",
	})
	TransportRetransmits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pmu_transport_retransmits_total",
		Help: "Total reliable-frame retransmission attempts.",
	})
	TransportTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pmu_transport_timeouts_total",
		Help: "Total reliable commands that exhausted their retry budget.",
	})
	TransportDuplicates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pmu_transport_duplicate_frames_total",
		Help: "Total duplicate reliable frames re-acked without app delivery.",
	})
	ConfigUploads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pmu_config_uploads_total",
		Help: "Total completed SET_CONFIG uploads.",
	})
	ConfigValidationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pmu_config_validation_errors_total",
		Help: "Total config validation failures by kind.",
	}, []string{"kind"})
	TelemetryPacketsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pmu_telemetry_packets_sent_total",
		Help: "Total telemetry packets emitted by the emulator.",
	})
	TelemetryPacketsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pmu_telemetry_packets_dropped_total",
		Help: "Total telemetry packets dropped due to a slow session.",
	})
	CommandLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pmu_command_latency_seconds",
		Help:    "Latency of reliable device-client commands.",
		Buckets: prometheus.DefBuckets,
	}, []string{"command"})
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pmu_emulator_active_sessions",
		Help: "Current number of connected emulator sessions.",
	})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pmu_errors_total",
		Help: "Error counters by subsystem.",
	}, []string{"where"})

	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Error label constants (stable label values to bound cardinality).
const (
	ErrLinkRead     = "link_read"
	ErrLinkWrite    = "link_write"
	ErrTransport    = "transport"
	ErrConfigParse  = "config_parse"
	ErrTelemParse   = "telemetry_parse"
	ErrDeviceProto  = "device_protocol"
	ErrEmulatorIO   = "emulator_io"
	ErrStoreBackend = "store_backend"
)

// Local mirrored counters for cheap periodic logging without scraping
// Prometheus in-process.
var (
	localFramesDecoded  uint64
	localFrameCRCErrors uint64
	localRetransmits    uint64
	localTimeouts       uint64
	localConfigUploads  uint64
	localTelemetrySent  uint64
	localTelemetryDrop  uint64
	localErrors         uint64
	localActiveSessions uint64
)

// Snapshot is a cheap copy of the local counters.
type Snapshot struct {
	FramesDecoded  uint64
	FrameCRCErrors uint64
	Retransmits    uint64
	Timeouts       uint64
	ConfigUploads  uint64
	TelemetrySent  uint64
	TelemetryDrop  uint64
	Errors         uint64
	ActiveSessions uint64
}

func Snap() Snapshot {
	return Snapshot{
		FramesDecoded:  atomic.LoadUint64(&localFramesDecoded),
		FrameCRCErrors: atomic.LoadUint64(&localFrameCRCErrors),
		Retransmits:    atomic.LoadUint64(&localRetransmits),
		Timeouts:       atomic.LoadUint64(&localTimeouts),
		ConfigUploads:  atomic.LoadUint64(&localConfigUploads),
		TelemetrySent:  atomic.LoadUint64(&localTelemetrySent),
		TelemetryDrop:  atomic.LoadUint64(&localTelemetryDrop),
		Errors:         atomic.LoadUint64(&localErrors),
		ActiveSessions: atomic.LoadUint64(&localActiveSessions),
	}
}

func IncFrameDecoded() {
	FramesDecoded.Inc()
	atomic.AddUint64(&localFramesDecoded, 1)
}

func IncFrameCRCError() {
	FrameCRCErrors.Inc()
	atomic.AddUint64(&localFrameCRCErrors, 1)
}

func IncFrameResync() { FrameResyncs.Inc() }

func IncTransportRetransmit() {
	TransportRetransmits.Inc()
	atomic.AddUint64(&localRetransmits, 1)
}

func IncTransportTimeout() {
	TransportTimeouts.Inc()
	atomic.AddUint64(&localTimeouts, 1)
}

func IncTransportDuplicate() { TransportDuplicates.Inc() }

func IncConfigUpload() {
	ConfigUploads.Inc()
	atomic.AddUint64(&localConfigUploads, 1)
}

func IncConfigValidationError(kind string) {
	ConfigValidationErrors.WithLabelValues(kind).Inc()
}

func IncTelemetrySent() {
	TelemetryPacketsSent.Inc()
	atomic.AddUint64(&localTelemetrySent, 1)
}

func IncTelemetryDropped() {
	TelemetryPacketsDropped.Inc()
	atomic.AddUint64(&localTelemetryDrop, 1)
}

func ObserveCommandLatency(command string, seconds float64) {
	CommandLatency.WithLabelValues(command).Observe(seconds)
}

func SetActiveSessions(n int) {
	ActiveSessions.Set(float64(n))
	atomic.StoreUint64(&localActiveSessions, uint64(n))
}

func IncError(label string) {
	Errors.WithLabelValues(label).Inc()
	atomic.AddUint64(&localErrors, 1)
}

// StartHTTP serves Prometheus metrics at /metrics and a readiness probe at
// /ready on addr.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}

// InitBuildInfo sets the build info gauge and pre-registers error label
// series so the first error observed does not pay registration latency.
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	for _, lbl := range []string{
		ErrLinkRead, ErrLinkWrite, ErrTransport, ErrConfigParse,
		ErrTelemParse, ErrDeviceProto, ErrEmulatorIO, ErrStoreBackend,
	} {
		Errors.WithLabelValues(lbl).Add(0)
	}
}

// SetReadinessFunc registers a function used by /ready and IsReady.
func SetReadinessFunc(fn func() bool) { readinessMu.Lock(); readinessFn = fn; readinessMu.Unlock() }

// IsReady invokes the registered readiness function if present.
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil {
		return true
	}
	return fn()
}
