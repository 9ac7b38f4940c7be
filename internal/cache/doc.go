// 版权所有 2024 RetrievalFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 提供基于 Redis 的检索结果缓存。

# 概述

本包封装 go-redis 客户端，为 HTTP 服务层缓存完整的检索结果。
同一查询在 TTL 窗口内重复到达时直接返回缓存结果，
跳过嵌入、打分与装配全流程。语料刷新后应调用 Invalidate
清空结果，避免返回过期上下文。

# 核心类型

  - Manager：结果缓存管理器，持有 Redis 客户端，
    提供 GetResult/PutResult/Invalidate 操作。
  - Config：缓存配置，包含地址、密码、默认 TTL 与键前缀。

# 错误语义

缓存未命中返回 ErrCacheMiss 哨兵错误；Redis 不可达时
调用方应降级为直接检索，缓存层永远不阻断查询。
*/
package cache
