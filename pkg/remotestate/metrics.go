package remotestate

import (
	"sync"
	"time"

	"github.com/grovetools/envmirror/pkg/rpc"
	prom "github.com/prometheus/client_golang/prometheus"
)

// Recorder receives cache metrics.
type Recorder interface {
	ObserveCall(method rpc.Method, d time.Duration, err error)
	SetEnvironments(n int)
	SetFileManagers(n int)
	IncFileManagerEvictions()
}

// NoopRecorder discards everything.
type NoopRecorder struct{}

func (NoopRecorder) ObserveCall(rpc.Method, time.Duration, error) {}
func (NoopRecorder) SetEnvironments(int)                          {}
func (NoopRecorder) SetFileManagers(int)                          {}
func (NoopRecorder) IncFileManagerEvictions()                     {}

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once         sync.Once
	callDuration *prom.HistogramVec
	callResults  *prom.CounterVec
	environments prom.Gauge
	fileManagers prom.Gauge
	evictions    prom.Counter
}

// NewPrometheusRecorder constructs and registers the cache metrics.
func NewPrometheusRecorder(reg prom.Registerer) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.callDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "envmirror",
			Name:      "remote_call_duration_seconds",
			Help:      "Duration of backend calls issued by the mirror",
			Buckets:   prom.DefBuckets,
		}, []string{"method"})
		pr.callResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "envmirror",
			Name:      "remote_calls_total",
			Help:      "Backend calls by method and outcome",
		}, []string{"method", "result"})
		pr.environments = prom.NewGauge(prom.GaugeOpts{
			Namespace: "envmirror",
			Name:      "environments",
			Help:      "Environments in the mirror after the last refresh",
		})
		pr.fileManagers = prom.NewGauge(prom.GaugeOpts{
			Namespace: "envmirror",
			Name:      "file_managers",
			Help:      "Live per-environment file managers",
		})
		pr.evictions = prom.NewCounter(prom.CounterOpts{
			Namespace: "envmirror",
			Name:      "file_manager_evictions_total",
			Help:      "File managers dropped because their environment vanished",
		})
		reg.MustRegister(pr.callDuration, pr.callResults, pr.environments, pr.fileManagers, pr.evictions)
	})
	return pr
}

func (p *PrometheusRecorder) ObserveCall(method rpc.Method, d time.Duration, err error) {
	if p == nil || p.callDuration == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failed"
	}
	p.callDuration.WithLabelValues(string(method)).Observe(d.Seconds())
	p.callResults.WithLabelValues(string(method), result).Inc()
}

func (p *PrometheusRecorder) SetEnvironments(n int) {
	if p == nil || p.environments == nil {
		return
	}
	p.environments.Set(float64(n))
}

func (p *PrometheusRecorder) SetFileManagers(n int) {
	if p == nil || p.fileManagers == nil {
		return
	}
	p.fileManagers.Set(float64(n))
}

func (p *PrometheusRecorder) IncFileManagerEvictions() {
	if p == nil || p.evictions == nil {
		return
	}
	p.evictions.Inc()
}
