package idempotency

import (
	"context"
	"errors"
	"sync"
	"time"
)

// memoryStore mirrors MongoStore's ownership rules in memory
type memoryStore struct {
	mu          sync.Mutex
	records     map[string]*Record
	lockTimeout time.Duration
	failAcquire error
	completed   int
	released    int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: map[string]*Record{}, lockTimeout: time.Minute}
}

func (s *memoryStore) Acquire(_ context.Context, rec *Record) (*Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAcquire != nil {
		return nil, false, s.failAcquire
	}

	id := rec.Service + "/" + rec.Key
	stored, ok := s.records[id]
	if !ok {
		cp := *rec
		s.records[id] = &cp
		return &cp, true, nil
	}

	now := time.Now()
	if stored.Completed() || stored.Fingerprint != rec.Fingerprint || stored.Locked(now, s.lockTimeout) {
		cp := *stored
		return &cp, false, nil
	}
	stored.Token, stored.LockedAt = rec.Token, &now
	cp := *stored
	return &cp, true, nil
}

func (s *memoryStore) find(rec *Record) (*Record, error) {
	stored, ok := s.records[rec.Service+"/"+rec.Key]
	if !ok || stored.Token != rec.Token {
		return nil, errors.New("lock lost")
	}
	return stored, nil
}

func (s *memoryStore) Complete(_ context.Context, rec *Record, code int, contentType string, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, err := s.find(rec)
	if err != nil {
		return err
	}
	now := time.Now()
	stored.ResponseCode, stored.ResponseContentType = code, contentType
	stored.ResponseBody = append([]byte(nil), body...)
	stored.CompletedAt, stored.LockedAt = &now, nil
	s.completed++
	return nil
}

func (s *memoryStore) Release(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, err := s.find(rec)
	if err != nil {
		return err
	}
	stored.LockedAt = nil
	s.released++
	return nil
}
