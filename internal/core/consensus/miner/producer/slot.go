// 单槽构建位
//
// 🎰 **构建槽位 (Build Slot)**
//
// 槽位持有"当前正在尝试封块的候选"。放入新候选即整体取代旧候选；
// 提交路径用原子Take取走候选，两个近乎同时到达的有效结果只有一个
// 能观察到非空槽位，从根上杜绝同一候选的双重提交。
package producer

import (
	"sync"

	"github.com/qpchain/v1/pkg/types"
)

// pendingBuild 槽位中的一次构建
type pendingBuild struct {
	jobID      string
	candidate  *types.CandidateBlock
	difficulty uint64
}

// BuildSlot 单槽构建位
type BuildSlot struct {
	mu      sync.Mutex
	pending *pendingBuild
}

// NewBuildSlot 创建空槽位
func NewBuildSlot() *BuildSlot {
	return &BuildSlot{}
}

// Put 放入新构建，整体取代旧构建
func (s *BuildSlot) Put(p *pendingBuild) {
	s.mu.Lock()
	s.pending = p
	s.mu.Unlock()
}

// Take 原子地取走当前构建；槽位为空时返回nil
func (s *BuildSlot) Take() *pendingBuild {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.pending
	s.pending = nil
	return p
}

// Peek 只读查看当前构建（用于结果的新鲜度判定）
func (s *BuildSlot) Peek() *pendingBuild {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}
