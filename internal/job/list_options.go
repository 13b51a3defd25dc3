package job

import "strings"

// SortOrder 决定列表的排序方向。
type SortOrder int

const (
	// SortByUpdatedDesc 最近更新的在前。
	SortByUpdatedDesc SortOrder = iota
	// SortByUpdatedAsc 最早更新的在前。
	SortByUpdatedAsc
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// ListOptions 控制列表查询的过滤条件。
type ListOptions struct {
	Limit      int
	Offset     int
	Statuses   []Status
	Capability string
	Order      SortOrder
}

func (opts *ListOptions) applyDefaults() {
	if opts.Limit <= 0 {
		opts.Limit = defaultListLimit
	}
	if opts.Limit > maxListLimit {
		opts.Limit = maxListLimit
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	if opts.Statuses != nil {
		opts.Statuses = normalizeStatuses(opts.Statuses)
	}
	if opts.Order != SortByUpdatedAsc {
		opts.Order = SortByUpdatedDesc
	}
	opts.Capability = strings.TrimSpace(opts.Capability)
}

// Normalized 返回应用默认值后的副本，供存储实现使用。
func (opts ListOptions) Normalized() ListOptions {
	opts.applyDefaults()
	return opts
}

// matches 判断任务是否满足过滤条件，不考虑分页。
func (opts ListOptions) matches(j *Job) bool {
	if len(opts.Statuses) > 0 {
		found := false
		for _, s := range opts.Statuses {
			if j.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return opts.Capability == "" || j.Capability == opts.Capability
}

// ListOption 修改 ListOptions。
type ListOption func(*ListOptions)

// WithLimit 限制返回数量，上限 100。
func WithLimit(limit int) ListOption {
	return func(opts *ListOptions) { opts.Limit = limit }
}

// WithOffset 跳过前 n 条。
func WithOffset(offset int) ListOption {
	return func(opts *ListOptions) { opts.Offset = offset }
}

// WithStatuses 按状态过滤，未知状态会被忽略。
func WithStatuses(statuses ...Status) ListOption {
	return func(opts *ListOptions) {
		opts.Statuses = append(opts.Statuses[:0], statuses...)
	}
}

// WithCapability 按执行的能力过滤。
func WithCapability(capability string) ListOption {
	return func(opts *ListOptions) { opts.Capability = capability }
}

// WithSortOrder 修改排序方向。
func WithSortOrder(order SortOrder) ListOption {
	return func(opts *ListOptions) { opts.Order = order }
}

// BuildListOptions 在默认值之上应用选项。
func BuildListOptions(opts ...ListOption) ListOptions {
	options := ListOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	options.applyDefaults()
	return options
}

func normalizeStatuses(input []Status) []Status {
	if len(input) == 0 {
		return nil
	}
	seen := make(map[Status]struct{}, len(input))
	result := make([]Status, 0, len(input))
	for _, status := range input {
		if !IsValidStatus(status) {
			continue
		}
		if _, ok := seen[status]; ok {
			continue
		}
		seen[status] = struct{}{}
		result = append(result, status)
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
