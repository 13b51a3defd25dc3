package pipeline

import (
	"context"
	"sort"

	"agentic-browser/internal/evidence"
)

// CapabilityNode 是能力节点的执行契约。节点只写入自己负责的字段，
// 协作方失败应转为状态字段或兜底结果；返回的错误由 Controller 记录。
type CapabilityNode interface {
	Capability() Capability
	Run(ctx context.Context, s *State, ev *evidence.Pack) error
}

// Registry 将能力名称映射到实现，新增能力只需注册。
type Registry map[Capability]CapabilityNode

// Register 注册节点，同名节点会被替换。
func (r Registry) Register(nodes ...CapabilityNode) Registry {
	for _, n := range nodes {
		if n != nil {
			r[n.Capability()] = n
		}
	}
	return r
}

// Capabilities 返回已注册的能力名称，按字典序排列。
func (r Registry) Capabilities() []Capability {
	out := make([]Capability, 0, len(r))
	for c := range r {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
