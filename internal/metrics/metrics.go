// Package metrics exposes Prometheus counters/gauges for the DSU bridge
// plus a locally-mirrored snapshot for non-Prometheus deployments.
package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/go-dsu/steam-dsu-bridge/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus counters/gauges.
var (
	PacketsDecoded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dsu_packets_decoded_total",
		Help: "Total inbound DSU datagrams successfully decoded.",
	})
	PacketsMalformed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dsu_packets_malformed_total",
		Help: "Total inbound datagrams dropped as malformed (bad magic, short buffer, CRC, version, length).",
	})
	PacketsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dsu_packets_sent_total",
		Help: "Total outbound DSU datagrams written to the socket.",
	})
	ReportsFannedOut = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dsu_reports_fanned_out_total",
		Help: "Total per-client pad-data datagrams produced from controller reports.",
	})
	RegistryClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dsu_registry_clients",
		Help: "Current number of subscribed clients in the registry.",
	})
	RegistryEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dsu_registry_evictions_total",
		Help: "Total clients evicted from the registry due to subscription timeout.",
	})
	SlotsOccupied = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dsu_slots_occupied",
		Help: "Current number of occupied controller slots (0..4).",
	})
	FanoutDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dsu_fanout_depth",
		Help: "Number of clients targeted in the most recent report fan-out.",
	})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dsu_errors_total",
		Help: "Error counters by subsystem.",
	}, []string{"where"})

	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Error label constants (stable label values to bound cardinality).
const (
	ErrSocketRead    = "socket_read"
	ErrSocketWrite   = "socket_write"
	ErrShortWrite    = "short_write"
	ErrMalformed     = "malformed_packet"
	ErrUpstream      = "upstream_controller"
	ErrCRCMismatch   = "crc_mismatch"
	ErrVersionTooNew = "version_too_new"
)

// StartHTTP serves Prometheus metrics and a readiness probe on addr.
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

// Local mirrored counters for periodic logging (avoids scraping Prometheus in-process).
var (
	localDecoded    uint64
	localMalformed  uint64
	localSent       uint64
	localFannedOut  uint64
	localEvictions  uint64
	localErrors     uint64
	localClients    uint64
	localSlots      uint64
	localFanoutDpth uint64
)

// Snapshot is a cheap copy of the local counters.
type Snapshot struct {
	Decoded    uint64
	Malformed  uint64
	Sent       uint64
	FannedOut  uint64
	Evictions  uint64
	Errors     uint64
	Clients    uint64
	Slots      uint64
	FanoutLast uint64
}

func Snap() Snapshot {
	return Snapshot{
		Decoded:    atomic.LoadUint64(&localDecoded),
		Malformed:  atomic.LoadUint64(&localMalformed),
		Sent:       atomic.LoadUint64(&localSent),
		FannedOut:  atomic.LoadUint64(&localFannedOut),
		Evictions:  atomic.LoadUint64(&localEvictions),
		Errors:     atomic.LoadUint64(&localErrors),
		Clients:    atomic.LoadUint64(&localClients),
		Slots:      atomic.LoadUint64(&localSlots),
		FanoutLast: atomic.LoadUint64(&localFanoutDpth),
	}
}

func IncDecoded() {
	PacketsDecoded.Inc()
	atomic.AddUint64(&localDecoded, 1)
}

func IncMalformed() {
	PacketsMalformed.Inc()
	atomic.AddUint64(&localMalformed, 1)
}

func IncSent() {
	PacketsSent.Inc()
	atomic.AddUint64(&localSent, 1)
}

func AddFannedOut(n int) {
	if n <= 0 {
		return
	}
	ReportsFannedOut.Add(float64(n))
	atomic.AddUint64(&localFannedOut, uint64(n))
}

func IncEviction() {
	RegistryEvictions.Inc()
	atomic.AddUint64(&localEvictions, 1)
}

func SetRegistryClients(n int) {
	RegistryClients.Set(float64(n))
	atomic.StoreUint64(&localClients, uint64(n))
}

func SetSlotsOccupied(n int) {
	SlotsOccupied.Set(float64(n))
	atomic.StoreUint64(&localSlots, uint64(n))
}

func SetFanoutDepth(n int) {
	FanoutDepth.Set(float64(n))
	atomic.StoreUint64(&localFanoutDpth, uint64(n))
}

func IncError(label string) {
	Errors.WithLabelValues(label).Inc()
	atomic.AddUint64(&localErrors, 1)
}

// InitBuildInfo sets the build info gauge and pre-registers known error
// label series so the first error doesn't pay Prometheus registration cost.
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	for _, lbl := range []string{
		ErrSocketRead, ErrSocketWrite, ErrShortWrite,
		ErrMalformed, ErrUpstream, ErrCRCMismatch, ErrVersionTooNew,
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

// Ready is a concise alias used at call sites.
func Ready() bool { return IsReady() }
