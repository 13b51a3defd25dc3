package llm

import (
	"context"
	"time"
)

// InferenceObserver 接收每次生成调用的耗时。
type InferenceObserver interface {
	ObserveInference(d time.Duration)
}

// Instrumented 包装 Client，将推理耗时上报给观测者。
type Instrumented struct {
	next      Client
	observers []InferenceObserver
}

// NewInstrumented 创建带观测能力的客户端。
func NewInstrumented(next Client, observers ...InferenceObserver) *Instrumented {
	filtered := make([]InferenceObserver, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	return &Instrumented{next: next, observers: filtered}
}

// Generate 实现 Client 接口。
func (i *Instrumented) Generate(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resp, err := i.next.Generate(ctx, req)
	elapsed := time.Since(start)
	for _, o := range i.observers {
		o.ObserveInference(elapsed)
	}
	return resp, err
}
