/*
# 概述

Package store 定义检索引擎读取的持久化数据模型（Chunk / Entity / Relation）
及其只读访问接口，并提供两种参考实现：

  - MemoryStore — 进程内存储，用于测试和小规模语料
  - SQLStore    — 基于 GORM + SQLite 的持久化存储

检索引擎本身不负责文档摄取和切分；本包只约定已提取数据的读取边界。
存储层故障按 fail-open 策略由上层吸收为空结果。
*/
package store
