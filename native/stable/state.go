package stable

import (
	"sync"

	"stablecore/crypto"
)

// engineState abstracts the persistence layer holding positions. The engine
// is the sole writer; a nil position result means the account has never
// deposited.
type engineState interface {
	GetPosition(addr crypto.Address) (*Position, error)
	PutPosition(position *Position) error
}

// MemoryState is a map-backed engineState implementation. It is the default
// store wired by the service binary and the test harness.
type MemoryState struct {
	mu        sync.RWMutex
	positions map[string]*Position
}

func NewMemoryState() *MemoryState {
	return &MemoryState{positions: make(map[string]*Position)}
}

func (s *MemoryState) GetPosition(addr crypto.Address) (*Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if pos, ok := s.positions[string(addr.Bytes())]; ok {
		return pos.Clone(), nil
	}
	return nil, nil
}

func (s *MemoryState) PutPosition(position *Position) error {
	if position == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[string(position.Address.Bytes())] = position.Clone()
	return nil
}
