package services

import (
	"context"
	"sync"
	"time"

	"versus-service/models"
)

// MemoryRecordStore 是 RecordStore 的内存实现,供单元测试和
// 无数据库的本地开发模式使用。每个 match code 一把互斥锁,
// 与 Postgres 实现的行锁语义对齐。
type MemoryRecordStore struct {
	mu      sync.Mutex
	records map[string]*models.Match
	locks   map[string]*sync.Mutex
}

func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{
		records: make(map[string]*models.Match),
		locks:   make(map[string]*sync.Mutex),
	}
}

// lockFor 返回指定 code 的互斥锁,按需创建
func (s *MemoryRecordStore) lockFor(code string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[code]
	if !ok {
		l = &sync.Mutex{}
		s.locks[code] = l
	}
	return l
}

func (s *MemoryRecordStore) Get(ctx context.Context, code string) (*models.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.records[code]
	if !ok {
		return nil, NotFound("match %s not found", code)
	}
	return m.Clone(), nil
}

func (s *MemoryRecordStore) Create(ctx context.Context, m *models.Match) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[m.MatchCode]; ok {
		return Conflict("match %s already exists", m.MatchCode)
	}
	s.records[m.MatchCode] = m.Clone()
	return nil
}

func (s *MemoryRecordStore) Update(ctx context.Context, code string, fn func(*models.Match) error) (*models.Match, error) {
	lock := s.lockFor(code)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	current, ok := s.records[code]
	s.mu.Unlock()
	if !ok {
		return nil, NotFound("match %s not found", code)
	}

	// fn 在副本上执行,出错时原记录保持不变
	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.UpdatedAt = time.Now()

	s.mu.Lock()
	s.records[code] = next
	s.mu.Unlock()

	return next.Clone(), nil
}
