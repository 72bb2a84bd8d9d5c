package store

import (
	"context"
	"sync"

	"chatrelay/internal/models"
)

// MemoryStore 是进程内的身份存储，用于测试与无数据库的本地调试。
type MemoryStore struct {
	mu      sync.RWMutex
	nextID  uint
	byID    map[uint]models.User
	byLogin map[string]uint
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[uint]models.User), byLogin: make(map[string]uint)}
}

func (s *MemoryStore) Create(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byLogin[u.Login]; ok {
		return ErrDuplicate
	}
	s.nextID++
	u.ID = s.nextID
	s.byID[u.ID] = *u
	s.byLogin[u.Login] = u.ID
	return nil
}

func (s *MemoryStore) FindByID(_ context.Context, id uint) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (s *MemoryStore) FindByLogin(_ context.Context, login string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byLogin[login]
	if !ok {
		return nil, ErrNotFound
	}
	u := s.byID[id]
	return &u, nil
}

func (s *MemoryStore) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.byID)), nil
}
