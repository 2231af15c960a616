package redis

import (
	"context"
	"sync"
	"time"

	"gongzi-quiz-service/internal/app"
	"github.com/redis/go-redis/v9"
)

// PlayerStore is a Redis-aware implementation of app.PlayerRepository.
// Players (and their timers) live in this process; Redis carries a liveness marker per
// device so other instances and operators can see which devices are connected.
type PlayerStore struct {
	client  *redis.Client
	ttl     time.Duration
	mu      sync.RWMutex
	players map[string]*app.Player
}

func NewPlayerStore(client *redis.Client, ttl time.Duration) *PlayerStore {
	return &PlayerStore{
		client:  client,
		ttl:     ttl,
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
	// best-effort liveness marker
	_ = s.client.Set(context.Background(), s.key(deviceID), "1", s.ttl).Err()
	return p
}

func (s *PlayerStore) Get(deviceID string) (*app.Player, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.players[deviceID]
	if ok && s.ttl > 0 {
		_ = s.client.Expire(context.Background(), s.key(deviceID), s.ttl).Err()
	}
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
	_ = s.client.Del(context.Background(), s.key(deviceID)).Err()
	return p
}

func (s *PlayerStore) key(deviceID string) string {
	return "play:device:" + deviceID
}
