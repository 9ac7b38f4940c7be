// Package telemetry 封装 OpenTelemetry SDK 初始化逻辑，
// 为 RetrievalFlow 提供集中式的 TracerProvider 配置。
// 指标走 Prometheus（internal/metrics），本包只负责分布式追踪；
// 追踪功能禁用时使用 noop 实现，不连接任何外部服务。
package telemetry
