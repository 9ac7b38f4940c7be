// Command retrievalflow 是检索引擎的命令行入口，
// 提供语料装载、交互式查询与缓存快照管理。
package main
