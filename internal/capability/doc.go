// Package capability 实现流水线的能力节点。
//
// 每个节点只写入自己负责的 State 字段；协作方失败会转为兜底结果，
// 不会越过节点边界。
package capability
