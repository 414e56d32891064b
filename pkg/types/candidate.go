// Package types 提供候选区块相关类型定义
package types

// CandidateBlock 生产者正在尝试封块的候选区块
//
// 📝 **字段说明**：
// - BestHash: 候选区块构建时所基于的最佳链头
// - Header: 候选区块头（Seal字段在找到有效nonce前为零）
// - Body: 不透明区块体（交易打包结果），核心只负责转交
//
// 🎯 **生命周期**：
// 候选由装配器创建，存入生产者的单槽构建位；提交时被原子取走，
// 两个近乎同时的提交只会有一个观察到非空槽位。
type CandidateBlock struct {
	BestHash Hash
	Header   BlockHeader
	Body     []byte
}
