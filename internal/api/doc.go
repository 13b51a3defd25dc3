// Package api 暴露 REST 接口：同步与异步流水线、对话、引导、遥测与 Prometheus 指标。
package api
