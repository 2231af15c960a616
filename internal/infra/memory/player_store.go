package memory

import (
	"sync"

	"gongzi-quiz-service/internal/app"
)

// PlayerStore is an in-memory implementation of app.PlayerRepository.
type PlayerStore struct {
	mu      sync.RWMutex
	players map[string]*app.Player
}

func NewPlayerStore() *PlayerStore {
	return &PlayerStore{
		players: make(map[string]*app.Player),
	}
}

func (s *PlayerStore) Acquire(deviceID string, build func() *app.Player) *app.Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[deviceID]
	if !ok {
		p = build()
		s.players[deviceID] = p
	}
	p.Acquire()
	return p
}

func (s *PlayerStore) Get(deviceID string) (*app.Player, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.players[deviceID]
	return p, ok
}

func (s *PlayerStore) DeviceIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.players))
	for id := range s.players {
		ids = append(ids, id)
	}
	return ids
}

func (s *PlayerStore) DeleteIfIdle(deviceID string) *app.Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[deviceID]
	if !ok || !p.Idle() {
		return nil
	}
	delete(s.players, deviceID)
	return p
}
