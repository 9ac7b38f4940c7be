/*
# 概述

Package embedding 提供统一的嵌入提供者接口和内容寻址的嵌入缓存。

# 核心类型

  - Provider   — 外部嵌入模型的统一接口（EmbedQuery / EmbedBatch）
  - HTTPProvider — OpenAI 兼容 /embeddings 端点的 HTTP 实现
  - RateLimited  — 基于令牌桶的提供者限流包装
  - Cache      — singleflight + LRU 的嵌入缓存

# 缓存语义

缓存键为规范化文本（NFKC + 空白折叠 + 小写）的 SHA-256。
对同一未缓存键的 N 个并发请求只触发一次底层计算，所有等待者
共享同一结果或同一错误；失败不会写入缓存。调用方取消只放弃
等待，不取消计算——计算归缓存所有，结果仍会写入供后续命中。
容量超限时按 LRU 同步淘汰；在途计算尚未入表，天然不可淘汰。
*/
package embedding
