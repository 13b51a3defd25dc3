package telemetry

import (
	"context"
	"sync"
	"time"

	"agentic-browser/pkg/logger"
)

const (
	defaultInterval = 100 * time.Millisecond
	defaultHistory  = 1000
	averageWindow   = time.Minute
)

// Averages 为窗口内的平均值。
type Averages struct {
	UtilizationPercent    float64 `json:"avg_utilization_percent"`
	MemoryUsedMB          float64 `json:"avg_memory_used_mb"`
	TemperatureCelsius    float64 `json:"avg_temperature_celsius"`
	PowerConsumptionWatts float64 `json:"avg_power_consumption_watts"`
	InferenceTimeMS       float64 `json:"avg_inference_time_ms"`
}

// Report 为性能报告。
type Report struct {
	CurrentMetrics          Metrics   `json:"current_metrics"`
	AverageMetrics1Min      Averages  `json:"average_metrics_1min"`
	PerformanceScore        float64   `json:"performance_score"`
	OptimizationSuggestions []string  `json:"optimization_suggestions"`
	Timestamp               time.Time `json:"timestamp"`
}

// Option 配置 Sampler。
type Option func(*Sampler)

// WithHistory 设置保留的采样数量。
func WithHistory(n int) Option {
	return func(s *Sampler) {
		if n > 0 {
			s.historyCap = n
		}
	}
}

// WithClock 替换时间来源，便于测试。
func WithClock(now func() time.Time) Option {
	return func(s *Sampler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSink 在每次采样后回调，用于导出指标。
func WithSink(sink func(Metrics)) Option {
	return func(s *Sampler) { s.sink = sink }
}

// Sampler 管理后台采样循环与历史记录。
type Sampler struct {
	collector  Collector
	historyCap int
	now        func() time.Time
	sink       func(Metrics)

	mu      sync.RWMutex
	history []Metrics

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSampler 创建采样器。
func NewSampler(collector Collector, opts ...Option) *Sampler {
	if collector == nil {
		collector = NewRuntimeCollector()
	}
	s := &Sampler{collector: collector, historyCap: defaultHistory, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Start 启动采样循环；已在运行时返回 false。
func (s *Sampler) Start(ctx context.Context, interval time.Duration) bool {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.cancel != nil {
		return false
	}
	if interval <= 0 {
		interval = defaultInterval
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel, s.done = cancel, done

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				s.Sample()
			}
		}
	}()

	logger.Named("telemetry").Info("遥测采样已启动", "interval", interval.String())
	return true
}

// Stop 停止采样并等待循环退出；未运行时返回 false。
func (s *Sampler) Stop() bool {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.cancel == nil {
		return false
	}
	s.cancel()
	<-s.done
	s.cancel, s.done = nil, nil
	logger.Named("telemetry").Info("遥测采样已停止")
	return true
}

// Running 返回采样循环是否在运行。
func (s *Sampler) Running() bool {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.cancel != nil
}

// Sample 立即采样一次并写入历史。
func (s *Sampler) Sample() Metrics {
	m := s.collector.Collect(s.now())
	s.mu.Lock()
	s.history = append(s.history, m)
	if over := len(s.history) - s.historyCap; over > 0 {
		s.history = append([]Metrics(nil), s.history[over:]...)
	}
	s.mu.Unlock()
	if s.sink != nil {
		s.sink(m)
	}
	return m
}

// ObserveInference 将推理耗时转交给支持观测的采集器。
func (s *Sampler) ObserveInference(d time.Duration) {
	if obs, ok := s.collector.(interface{ ObserveInference(time.Duration) }); ok {
		obs.ObserveInference(d)
	}
}

// Current 返回最近一次采样；尚无历史时即时采样但不写入历史。
func (s *Sampler) Current() Metrics {
	s.mu.RLock()
	n := len(s.history)
	var last Metrics
	if n > 0 {
		last = s.history[n-1]
	}
	s.mu.RUnlock()
	if n > 0 {
		return last
	}
	return s.collector.Collect(s.now())
}

// History 返回历史记录数量。
func (s *Sampler) History() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history)
}

// Averages 计算窗口内的平均值；窗口内无数据时返回基线值。
func (s *Sampler) Averages(window time.Duration) Averages {
	cutoff := s.now().Add(-window)
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		sum Averages
		n   int
	)
	for _, m := range s.history {
		if m.Timestamp.Before(cutoff) {
			continue
		}
		sum.UtilizationPercent += m.UtilizationPercent
		sum.MemoryUsedMB += m.MemoryUsedMB
		sum.TemperatureCelsius += m.TemperatureCelsius
		sum.PowerConsumptionWatts += m.PowerConsumptionWatts
		sum.InferenceTimeMS += m.InferenceTimeMS
		n++
	}
	if n == 0 {
		return Averages{TemperatureCelsius: 25, InferenceTimeMS: defaultInferenceMS}
	}
	f := float64(n)
	return Averages{
		UtilizationPercent:    sum.UtilizationPercent / f,
		MemoryUsedMB:          sum.MemoryUsedMB / f,
		TemperatureCelsius:    sum.TemperatureCelsius / f,
		PowerConsumptionWatts: sum.PowerConsumptionWatts / f,
		InferenceTimeMS:       sum.InferenceTimeMS / f,
	}
}

// Report 生成性能报告。
func (s *Sampler) Report() Report {
	current := s.Current()
	return Report{
		CurrentMetrics:          current,
		AverageMetrics1Min:      s.Averages(averageWindow),
		PerformanceScore:        Score(current),
		OptimizationSuggestions: Suggestions(current),
		Timestamp:               s.now(),
	}
}

// Score 计算 0~100 的性能分：利用率、能效与响应时间三项均值。
func Score(m Metrics) float64 {
	utilization := min(m.UtilizationPercent/80.0, 1.0) * 100
	power := max(0, 100-m.PowerConsumptionWatts*10)
	response := max(0, 100-(m.InferenceTimeMS-40))
	return (utilization + power + response) / 3
}

// Suggestions 根据当前指标给出优化建议。
func Suggestions(m Metrics) []string {
	var out []string
	if m.UtilizationPercent < 50 {
		out = append(out, "NPU subutilizada - considere aumentar batch size ou paralelização")
	}
	if m.TemperatureCelsius > 70 {
		out = append(out, "Temperatura elevada - verifique resfriamento e throttling")
	}
	if m.PowerConsumptionWatts > 15 {
		out = append(out, "Alto consumo energético - considere otimização de modelo")
	}
	if m.InferenceTimeMS > 100 {
		out = append(out, "Tempo de inferência alto - considere quantização ou cache")
	}
	if len(out) == 0 {
		out = append(out, "Performance otimizada - mantendo monitoramento")
	}
	return out
}
