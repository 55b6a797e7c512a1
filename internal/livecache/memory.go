package livecache

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Cache for tests.
//
// It does not simulate TTL expiry; instead it records every blob TTL write so
// tests can assert the renew-on-mutation contract.
type Memory struct {
	mu       sync.Mutex
	blobs    map[string][]byte
	sets     map[string]map[string]struct{}
	pointers map[string]string
	boxes    map[string][][]byte
	renewals map[string]int
}

func NewMemory() *Memory {
	return &Memory{
		blobs:    make(map[string][]byte),
		sets:     make(map[string]map[string]struct{}),
		pointers: make(map[string]string),
		boxes:    make(map[string][][]byte),
		renewals: make(map[string]int),
	}
}

func (m *Memory) SetActiveBlob(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	m.blobs[key] = cp
	m.renewals[key]++
	return nil
}

func (m *Memory) GetActiveBlob(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.blobs[key]
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, true, nil
}

func (m *Memory) DeleteActiveBlob(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, key)
	return nil
}

func (m *Memory) AddMember(_ context.Context, setKey, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sets[setKey]
	if !ok {
		s = make(map[string]struct{})
		m.sets[setKey] = s
	}
	s[member] = struct{}{}
	return nil
}

func (m *Memory) RemoveMember(_ context.Context, setKey, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sets[setKey]; ok {
		delete(s, member)
		if len(s) == 0 {
			delete(m.sets, setKey)
		}
	}
	return nil
}

func (m *Memory) Cardinality(_ context.Context, setKey string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.sets[setKey])), nil
}

func (m *Memory) ClearMembers(_ context.Context, setKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sets, setKey)
	return nil
}

func (m *Memory) SetPointer(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pointers[key] = value
	return nil
}

func (m *Memory) SetPointerIfAbsent(_ context.Context, key, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pointers[key]; ok {
		return false, nil
	}
	m.pointers[key] = value
	return true, nil
}

func (m *Memory) GetPointer(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.pointers[key]
	return v, ok, nil
}

func (m *Memory) ClearPointer(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pointers, key)
	return nil
}

func (m *Memory) PushMailbox(_ context.Context, mailboxKey string, payload []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(payload))
	copy(cp, payload)
	m.boxes[mailboxKey] = append(m.boxes[mailboxKey], cp)
	return nil
}

func (m *Memory) DrainMailbox(_ context.Context, mailboxKey string) ([][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.boxes[mailboxKey]
	delete(m.boxes, mailboxKey)
	return out, nil
}

// --- test inspection helpers ---

// TTLRenewals reports how many times a blob key was written with a TTL.
func (m *Memory) TTLRenewals(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.renewals[key]
}

// Members returns a snapshot of a membership set.
func (m *Memory) Members(setKey string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.sets[setKey]))
	for member := range m.sets[setKey] {
		out = append(out, member)
	}
	return out
}

// Pointer returns the raw pointer value, if set.
func (m *Memory) Pointer(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.pointers[key]
	return v, ok
}
