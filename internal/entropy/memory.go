package entropy

import (
	"context"
	"fmt"
	"sync"
)

// MemorySource 进程内熵源，用于测试与演示模式
// 请求登记后处于未履约状态，由测试代码或演示模式下的履约 worker
// 调用 Fulfill 提交随机值。
type MemorySource struct {
	mu     sync.Mutex
	seq    uint64
	tags   map[string]string
	values map[string]uint64
}

func NewMemorySource() *MemorySource {
	return &MemorySource{
		tags:   make(map[string]string),
		values: make(map[string]uint64),
	}
}

func (m *MemorySource) Request(_ context.Context, tag string) (string, error) {
	if err := ValidateTag(tag); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	id := fmt.Sprintf("req-%d", m.seq)
	m.tags[id] = tag
	return id, nil
}

func (m *MemorySource) IsFulfilled(_ context.Context, requestID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.values[requestID]
	return ok
}

func (m *MemorySource) ValueFor(_ context.Context, requestID string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[requestID]
	if !ok {
		return 0, ErrNotFulfilled
	}
	return v, nil
}

// Fulfill 提交请求的随机值（履约方调用）。未知请求ID返回 false。
func (m *MemorySource) Fulfill(requestID string, value uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tags[requestID]; !ok {
		return false
	}
	m.values[requestID] = value
	return true
}

// Pending 返回当前未履约的请求ID列表（履约 worker 扫描用）
func (m *MemorySource) Pending() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id := range m.tags {
		if _, ok := m.values[id]; !ok {
			ids = append(ids, id)
		}
	}
	return ids
}
