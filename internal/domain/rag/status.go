package rag

import "context"

// Status 单个会话槽的索引状态
// empty: Ready=false Building=false；building: Building=true；
// ready: Ready=true，此时 RulesHash 与 NChunks 有效
type Status struct {
	Ready     bool   `json:"ready"`
	Building  bool   `json:"building"`
	NChunks   int    `json:"n_chunks"`
	RulesHash string `json:"rules_hash,omitempty"`
}

// Retriever 检索接口，编排器消费
type Retriever interface {
	// Retrieve 返回 top-k 命中；索引未就绪时返回空列表且 ready=false
	Retrieve(ctx context.Context, sessionID, query string, k int) (hits []RetrievedChunk, ready bool, err error)

	// Status 返回会话槽的当前状态
	Status(sessionID string) Status

	// Invalidate 活动集变更后请求异步重建
	Invalidate(sessionID string)
}
