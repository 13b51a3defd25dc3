package telemetry

import (
	"runtime"
	"sync"
	"time"
)

// Metrics 为一次采样结果。
type Metrics struct {
	UtilizationPercent    float64   `json:"utilization_percent"`
	MemoryUsedMB          float64   `json:"memory_used_mb"`
	TemperatureCelsius    float64   `json:"temperature_celsius"`
	PowerConsumptionWatts float64   `json:"power_consumption_watts"`
	InferenceTimeMS       float64   `json:"inference_time_ms"`
	Timestamp             time.Time `json:"timestamp"`
}

// Collector 产生一次采样。
type Collector interface {
	Collect(now time.Time) Metrics
}

const (
	baselineTemperature = 45.0
	defaultInferenceMS  = 50.0
)

// RuntimeCollector 以进程内存与最近推理的忙碌占比估算加速器状态。
// 利用率为两次采样之间推理耗时之和占墙钟时间的百分比，功耗与温度按利用率线性估算。
type RuntimeCollector struct {
	mu       sync.Mutex
	last     time.Time
	busy     time.Duration
	lastInfe time.Duration
}

// NewRuntimeCollector 创建采集器。
func NewRuntimeCollector() *RuntimeCollector {
	return &RuntimeCollector{}
}

// ObserveInference 记录一次推理耗时。
func (c *RuntimeCollector) ObserveInference(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.busy += d
	c.lastInfe = d
}

// Collect 实现 Collector。
func (c *RuntimeCollector) Collect(now time.Time) Metrics {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	c.mu.Lock()
	elapsed := now.Sub(c.last)
	busy := c.busy
	inference := c.lastInfe
	first := c.last.IsZero()
	c.last = now
	c.busy = 0
	c.mu.Unlock()

	util := 0.0
	if !first && elapsed > 0 {
		util = min(float64(busy)/float64(elapsed)*100, 100)
	}
	inferenceMS := defaultInferenceMS
	if inference > 0 {
		inferenceMS = float64(inference) / float64(time.Millisecond)
	}

	return Metrics{
		UtilizationPercent:    util,
		MemoryUsedMB:          float64(ms.Sys) / (1024 * 1024),
		TemperatureCelsius:    baselineTemperature + util*0.3,
		PowerConsumptionWatts: util * 0.1,
		InferenceTimeMS:       inferenceMS,
		Timestamp:             now,
	}
}
