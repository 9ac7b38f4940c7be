/*
# 概述

Package retrieval 实现混合检索与上下文装配引擎。

单次查询的控制流：查询文本并发进入向量检索、词法检索和实体图谱
检索三路信号 → 候选归并（按稳定 ID 去重、信号内分数归一化）→
重排序（外部成对相关性模型，批量调用，部分失败降级）→ 上下文
装配（token 预算、来源多样性、语义去重）。

# 核心类型

  - Engine          — 唯一入口 Retrieve 的编排器
  - Candidate       — 单次查询内的瞬态打分记录
  - VectorRetriever — 嵌入缓存 + 相似度排序的向量信号
  - GraphRetriever  — 实体图谱信号（向量→词法回退链 + 一跳关系扩展）
  - Merger          — 多信号候选归并
  - Reranker        — 成对相关性重排序
  - Assembler       — token 预算内的贪心装配

# 失败语义

除空查询和非正预算外，引擎从不向调用方返回错误：任何信号的
故障或超时都被吸收为该信号的空贡献（fail-open），并记录日志
与指标。结果对相同输入和相同外部打分函数完全确定。
*/
package retrieval
