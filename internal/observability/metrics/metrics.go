// Package metrics 基于 Prometheus client 暴露服务指标。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"agentic-browser/internal/telemetry"
)

const namespace = "agentic"

// Metrics 持有独立的 Registry，所有方法对 nil 接收者安全。
type Metrics struct {
	registry *prometheus.Registry

	httpRequests   *prometheus.CounterVec
	httpErrors     *prometheus.CounterVec
	httpLatency    *prometheus.HistogramVec
	stageLatency   *prometheus.HistogramVec
	capabilityRuns *prometheus.CounterVec
	criticWarnings prometheus.Counter
	jobs           *prometheus.CounterVec

	npuUtilization prometheus.Gauge
	npuMemory      prometheus.Gauge
	npuTemperature prometheus.Gauge
	npuPower       prometheus.Gauge
	npuInference   prometheus.Gauge
}

// New 创建指标集合并注册 Go 运行时采集器。
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "http_requests_total",
			Help: "Total number of HTTP requests processed.",
		}, []string{"handler", "method", "code"}),
		httpErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "http_request_errors_total",
			Help: "Total number of HTTP requests that resulted in a server error.",
		}, []string{"handler", "method"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"handler", "method"}),
		stageLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "pipeline_stage_duration_seconds",
			Help:    "Duration of each pipeline stage in seconds.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"stage"}),
		capabilityRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "capability_runs_total",
			Help: "Capability node executions by outcome.",
		}, []string{"capability", "outcome"}),
		criticWarnings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "critic_warnings_total",
			Help: "Warnings raised by the security critic.",
		}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "jobs_total",
			Help: "Job status transitions.",
		}, []string{"status"}),
		npuUtilization: gauge("npu_utilization_percent", "Accelerator utilisation percent."),
		npuMemory:      gauge("npu_memory_used_mb", "Accelerator memory used in MB."),
		npuTemperature: gauge("npu_temperature_celsius", "Accelerator temperature."),
		npuPower:       gauge("npu_power_watts", "Accelerator power consumption."),
		npuInference:   gauge("npu_inference_time_ms", "Last observed inference time."),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests, m.httpErrors, m.httpLatency,
		m.stageLatency, m.capabilityRuns, m.criticWarnings, m.jobs,
		m.npuUtilization, m.npuMemory, m.npuTemperature, m.npuPower, m.npuInference,
	)
	return m
}

func gauge(name, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help})
}

// Registry 返回底层 Registry，便于测试读取。
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest 记录一次 HTTP 请求。
func (m *Metrics) ObserveHTTPRequest(handler, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(handler, method, strconv.Itoa(status)).Inc()
	if status >= 500 {
		m.httpErrors.WithLabelValues(handler, method).Inc()
	}
	m.httpLatency.WithLabelValues(handler, method).Observe(duration.Seconds())
}

// ObserveStage 记录流水线阶段耗时。
func (m *Metrics) ObserveStage(stage string, duration time.Duration) {
	if m == nil {
		return
	}
	m.stageLatency.WithLabelValues(stage).Observe(duration.Seconds())
}

// CapabilityRun 记录能力节点的执行结果，outcome 为 ok 或 error。
func (m *Metrics) CapabilityRun(capability, outcome string) {
	if m == nil {
		return
	}
	m.capabilityRuns.WithLabelValues(capability, outcome).Inc()
}

// CriticWarnings 累加审查告警数量。
func (m *Metrics) CriticWarnings(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.criticWarnings.Add(float64(n))
}

// JobStatus 记录任务进入某个状态。
func (m *Metrics) JobStatus(status string) {
	if m == nil {
		return
	}
	m.jobs.WithLabelValues(status).Inc()
}

// ObserveTelemetry 把一次采样写入仪表，可直接作为采样器的 sink。
func (m *Metrics) ObserveTelemetry(s telemetry.Metrics) {
	if m == nil {
		return
	}
	m.npuUtilization.Set(s.UtilizationPercent)
	m.npuMemory.Set(s.MemoryUsedMB)
	m.npuTemperature.Set(s.TemperatureCelsius)
	m.npuPower.Set(s.PowerConsumptionWatts)
	m.npuInference.Set(s.InferenceTimeMS)
}

// Handler 以 Prometheus 文本格式输出指标。
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
