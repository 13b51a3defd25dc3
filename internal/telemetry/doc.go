// Package telemetry 周期性采样加速器（推理后端）的利用率、内存、温度、功耗与推理耗时，
// 采样在独立 goroutine 中进行，与任务执行解耦，读取只返回快照。
package telemetry
