// Package pipeline 编排单个请求的固定阶段：路由 → 安全审查 → 能力节点 → 报告。
//
// Controller 是唯一拥有执行权的组件；能力节点通过 Registry 注册，
// 任何阶段的失败都只会写入 State，调用方总能拿到一个 State。
package pipeline
