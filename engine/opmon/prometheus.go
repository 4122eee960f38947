package opmon

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/roomsync/roomsync/engine/rslog"
	"github.com/roomsync/roomsync/engine/rsutils"
	"github.com/shirou/gopsutil/process"
)

// PrometheusSink exports metrics in prometheus format
type PrometheusSink struct {
	registry   *prometheus.Registry
	operations *prometheus.HistogramVec
	latency    *prometheus.GaugeVec
	bandwidth  *prometheus.GaugeVec
	gauges     *prometheus.GaugeVec
	cpuPercent prometheus.Gauge
}

// NewPrometheusSink creates a sink with its own registry
func NewPrometheusSink(namespace string) *PrometheusSink {
	ps := &PrometheusSink{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of monitored operations.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"operation"}),
		latency: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "client_latency_ms",
			Help:      "Latency reported by client heartbeats.",
		}, []string{"scope"}),
		bandwidth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "client_bandwidth",
			Help:      "Bandwidth reported by client heartbeats.",
		}, []string{"scope", "direction"}),
		gauges: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "state",
			Help:      "Sizes of routing tables and registries.",
		}, []string{"name"}),
		cpuPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "process_cpu_percent",
			Help:      "CPU percent of the server process.",
		}),
	}
	ps.registry.MustRegister(ps.operations, ps.latency, ps.bandwidth, ps.gauges, ps.cpuPercent)
	return ps
}

// ObserveOperation records an operation duration
func (ps *PrometheusSink) ObserveOperation(name string, d time.Duration) {
	ps.operations.WithLabelValues(name).Observe(d.Seconds())
}

// ObserveLatency records the latency of a scope
func (ps *PrometheusSink) ObserveLatency(scope string, ms float64) {
	ps.latency.WithLabelValues(scope).Set(ms)
}

// ObserveBandwidth records the bandwidth of a scope
func (ps *PrometheusSink) ObserveBandwidth(scope string, in, out float64) {
	ps.bandwidth.WithLabelValues(scope, "in").Set(in)
	ps.bandwidth.WithLabelValues(scope, "out").Set(out)
}

// SetGauge sets a named gauge
func (ps *PrometheusSink) SetGauge(name string, v float64) {
	ps.gauges.WithLabelValues(name).Set(v)
}

// Handler returns the http handler of /metrics
func (ps *PrometheusSink) Handler() http.Handler {
	return promhttp.HandlerFor(ps.registry, promhttp.HandlerOpts{})
}

// CollectProcessCPU samples the cpu percent of this process every interval until ctx is done
func (ps *PrometheusSink) CollectProcessCPU(ctx context.Context, interval time.Duration) {
	pid := os.Getpid()
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		rslog.Errorf("opmon: can not find server process: pid = %v: %v", pid, err)
		return
	}

	go rsutils.RepeatUntilPanicless(func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			pcnt, err := p.CPUPercentWithContext(ctx)
			if err != nil {
				rslog.Warnf("opmon: get process cpu percent failed: %s", err)
				continue
			}
			ps.cpuPercent.Set(pcnt)
		}
	})
}
