// Package llm 定义生成服务的统一接口，屏蔽不同模型提供方的调用差异，
// 并提供默认采样参数、推理耗时观测以及“模型优先、规则兜底”的分类辅助函数。
package llm
