package monitor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
)

// Registry holds every metric the server exports.
var Registry = prometheus.NewRegistry()

var (
	memUsage = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "memory_usage_Megabytes",
		Help: "Memory usage in Megabytes",
	})

	cpuUsage = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cpu_usage_percent",
		Help: "CPU usage in percent",
	})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests processed, by route",
	}, []string{"route"})

	AnalysesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "analyses_total",
		Help: "Total number of analyses, by whether they were persisted",
	}, []string{"persisted"})

	DetectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "detections_total",
		Help: "Total number of objects returned by detection",
	})

	AuthEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_events_total",
		Help: "Total number of authentication events, by outcome",
	}, []string{"event"})
)

func init() {
	Registry.MustRegister(memUsage, cpuUsage, HTTPRequestsTotal, AnalysesTotal, DetectionsTotal, AuthEventsTotal)
}

// Handler serves the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}

// CheckProcessInfo samples RSS and CPU of proc into the process gauges.
func CheckProcessInfo(proc *process.Process) error {
	memInfo, err := proc.MemoryInfo()
	if err != nil {
		return fmt.Errorf("failed to read memory info: %w", err)
	}
	cpuPercent, err := proc.CPUPercent()
	if err != nil {
		return fmt.Errorf("failed to read cpu usage: %w", err)
	}
	memUsage.Set(float64(memInfo.RSS / 1024 / 1024))
	cpuUsage.Set(math.Round(cpuPercent*100) / 100)
	return nil
}

// StartMon serves /metrics on port and refreshes the process gauges until
// ctx is cancelled.
func StartMon(ctx context.Context, port int, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return fmt.Errorf("failed to inspect own process: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server stopped", zap.Error(err))
		}
	}()
	log.Info("metrics server listening", zap.Int("port", port))

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
checkPcs:
	for {
		select {
		case <-ctx.Done():
			break checkPcs
		case <-ticker.C:
			if err := CheckProcessInfo(proc); err != nil {
				log.Debug("process sampling failed", zap.Error(err))
			}
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics server shutdown: %w", err)
	}
	return nil
}
