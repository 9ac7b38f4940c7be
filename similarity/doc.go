/*
# 概述

Package similarity 提供查询向量与候选向量之间的余弦相似度排序。

两条执行路径实现同一个 Ranker 接口：

  - sequentialRanker — 逐对计算，任何环境下都可用
  - parallelRanker   — 按 CPU 核数分片并行计算

路径在进程启动时探测一次并缓存（Capability），调用点不做运行时分支。
两条路径对相同输入产生逐位一致的排序：并行路径只并行计算分数，
排序阶段与顺序路径共享同一段确定性代码，平分按原始下标升序。

候选数低于 ParallelThreshold 时并行路径也退化为顺序计算，
避免小输入上的调度开销。

此外提供 VectorIndex 接口及 Flat / HNSW 两种实现，供大语料场景
以近似检索换取延迟。
*/
package similarity
