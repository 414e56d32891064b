// Package protocol 提供节点与外部矿工之间的挖矿协调协议
//
// 📨 **协议消息 (Protocol Messages)**
//
// 本文件定义双向流上传输的三类消息，专注于：
// - Ready:      矿工→节点，表明完成初始化可以接收任务
// - NewJob:     节点→矿工，下发新的挖矿任务（整体取代旧任务）
// - JobResult:  矿工→节点，上报任务结果（found/exhausted/error）
//
// 📋 **字段编码约定**（与进程内表示解耦）：
// - pre_hash:           64位十六进制（32字节头部摘要）
// - distance_threshold: 十进制字符串（避免JSON/CBOR整型截断歧义）
// - nonce_*:            128位十六进制（512位，固定宽度零填充）
package protocol

import (
	"fmt"

	"github.com/qpchain/v1/pkg/types"
	"github.com/qpchain/v1/pkg/utils"
)

// ProtocolID 挖矿协调协议的libp2p流协议标识
const ProtocolID = "/qpc/miner/1.0.0"

// MessageType 消息类型
type MessageType string

const (
	// TypeReady 矿工就绪声明
	TypeReady MessageType = "ready"

	// TypeNewJob 新任务下发
	TypeNewJob MessageType = "new_job"

	// TypeJobResult 任务结果上报
	TypeJobResult MessageType = "job_result"

	// TypeKeepAlive 编解码层保活帧（零长度帧，不携带负载）
	TypeKeepAlive MessageType = "keep_alive"
)

// Message 流上传输的消息信封
type Message struct {
	Type   MessageType    `cbor:"type"`
	Job    *JobPayload    `cbor:"job,omitempty"`
	Result *ResultPayload `cbor:"result,omitempty"`
}

// JobPayload 挖矿任务的线上表示
type JobPayload struct {
	JobID             string `cbor:"job_id"`
	PreHash           string `cbor:"pre_hash"`
	DistanceThreshold string `cbor:"distance_threshold"`
	NonceStart        string `cbor:"nonce_start"`
	NonceEnd          string `cbor:"nonce_end"`
}

// ResultPayload 挖矿结果的线上表示
//
// miner_id为可选的矿工自报标识；服务端形态下连接层会用自己分配的
// 标识覆盖它，自报值只在客户端形态下保留。
type ResultPayload struct {
	JobID   string `cbor:"job_id"`
	Status  string `cbor:"status"`
	Nonce   string `cbor:"nonce,omitempty"`
	MinerID uint64 `cbor:"miner_id,omitempty"`
}

// NewReadyMessage 构造就绪消息
func NewReadyMessage() *Message {
	return &Message{Type: TypeReady}
}

// NewJobMessage 将进程内任务编码为线上消息
func NewJobMessage(job *types.MiningJob) *Message {
	return &Message{
		Type: TypeNewJob,
		Job: &JobPayload{
			JobID:             job.JobID,
			PreHash:           job.PreHash.Hex(),
			DistanceThreshold: fmt.Sprintf("%d", job.DistanceThreshold),
			NonceStart:        utils.EncodeU512Hex(job.NonceStart),
			NonceEnd:          utils.EncodeU512Hex(job.NonceEnd),
		},
	}
}

// NewResultMessage 将进程内结果编码为线上消息
func NewResultMessage(result *types.MiningResult) *Message {
	payload := &ResultPayload{
		JobID:   result.JobID,
		Status:  string(result.Status),
		MinerID: result.MinerID,
	}
	if result.Status == types.ResultFound {
		payload.Nonce = result.Nonce.Hex()
	}
	return &Message{Type: TypeJobResult, Result: payload}
}

// DecodeJob 将线上任务解码为进程内表示
func (p *JobPayload) DecodeJob() (*types.MiningJob, error) {
	if p.JobID == "" {
		return nil, fmt.Errorf("任务标识不能为空")
	}

	preHash, err := types.ParseHash(p.PreHash)
	if err != nil {
		return nil, fmt.Errorf("任务 %s 的头部摘要非法: %w", p.JobID, err)
	}

	thresholdBig, err := utils.DecodeDecimal(p.DistanceThreshold)
	if err != nil {
		return nil, fmt.Errorf("任务 %s 的距离阈值非法: %w", p.JobID, err)
	}
	if !thresholdBig.IsUint64() {
		return nil, fmt.Errorf("任务 %s 的距离阈值超出uint64范围: %s", p.JobID, p.DistanceThreshold)
	}
	threshold := thresholdBig.Uint64()

	start, err := utils.DecodeU512Hex(p.NonceStart)
	if err != nil {
		return nil, fmt.Errorf("任务 %s 的nonce起点非法: %w", p.JobID, err)
	}

	end, err := utils.DecodeU512Hex(p.NonceEnd)
	if err != nil {
		return nil, fmt.Errorf("任务 %s 的nonce终点非法: %w", p.JobID, err)
	}

	if start.Cmp(end) > 0 {
		return nil, fmt.Errorf("任务 %s 的nonce范围倒置", p.JobID)
	}

	return &types.MiningJob{
		JobID:             p.JobID,
		PreHash:           preHash,
		DistanceThreshold: threshold,
		NonceStart:        start,
		NonceEnd:          end,
	}, nil
}

// DecodeResult 将线上结果解码为进程内表示
func (p *ResultPayload) DecodeResult() (*types.MiningResult, error) {
	if p.JobID == "" {
		return nil, fmt.Errorf("结果缺少任务标识")
	}

	status := types.ResultStatus(p.Status)
	switch status {
	case types.ResultFound, types.ResultExhausted, types.ResultError:
	default:
		return nil, fmt.Errorf("结果 %s 的状态非法: %q", p.JobID, p.Status)
	}

	result := &types.MiningResult{JobID: p.JobID, Status: status, MinerID: p.MinerID}

	if status == types.ResultFound {
		nonce, err := types.ParseNonce(p.Nonce)
		if err != nil {
			return nil, fmt.Errorf("结果 %s 的nonce非法: %w", p.JobID, err)
		}
		if nonce.IsZero() {
			return nil, fmt.Errorf("结果 %s 携带保留的零nonce", p.JobID)
		}
		result.Nonce = nonce
	}

	return result, nil
}
