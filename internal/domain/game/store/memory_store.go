// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/ManuGH/stepcoach/internal/domain/game/model"
	"github.com/ManuGH/stepcoach/internal/domain/game/ports"
)

// MemoryStore keeps session records in process memory with the same
// sliding-TTL semantics as the redis store. Each session has its own lock.
type MemoryStore struct {
	ttl     time.Duration
	flagTTL time.Duration
	now     func() time.Time

	mu       sync.RWMutex
	sessions map[string]*memEntry
	flags    map[string]memFlag
	flagMu   sync.Mutex
}

type memEntry struct {
	mu         sync.Mutex
	progress   *model.SessionProgress
	descriptor *model.SessionDescriptor
	expiresAt  time.Time
	deleted    bool
}

type memFlag struct {
	reason    string
	expiresAt time.Time
}

// NewMemoryStore returns an empty store. A nil clock uses time.Now.
func NewMemoryStore(opts Options, now func() time.Time) *MemoryStore {
	opts = opts.withDefaults()
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		ttl:      opts.TTL,
		flagTTL:  opts.InterruptTTL,
		now:      now,
		sessions: make(map[string]*memEntry),
		flags:    make(map[string]memFlag),
	}
}

func (s *MemoryStore) Create(_ context.Context, p *model.SessionProgress, d *model.SessionDescriptor) error {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.sessions[p.SessionID]; ok && now.Before(e.expiresAt) && !e.deleted {
		return ports.ErrExists
	}
	s.sessions[p.SessionID] = &memEntry{
		progress:   p.Clone(),
		descriptor: d.Clone(),
		expiresAt:  now.Add(s.ttl),
	}
	return nil
}

// entry returns the live entry for id, locked. Callers must unlock.
func (s *MemoryStore) entry(id string) (*memEntry, error) {
	s.mu.RLock()
	e, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ports.ErrNotFound
	}
	e.mu.Lock()
	if e.deleted || !s.now().Before(e.expiresAt) {
		e.mu.Unlock()
		s.evict(id, e)
		return nil, ports.ErrNotFound
	}
	return e, nil
}

func (s *MemoryStore) evict(id string, e *memEntry) {
	s.mu.Lock()
	if cur, ok := s.sessions[id]; ok && cur == e {
		delete(s.sessions, id)
	}
	s.mu.Unlock()
}

func (s *MemoryStore) GetProgress(_ context.Context, id string) (*model.SessionProgress, error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, err
	}
	defer e.mu.Unlock()
	return e.progress.Clone(), nil
}

func (s *MemoryStore) GetDescriptor(_ context.Context, id string) (*model.SessionDescriptor, error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, err
	}
	defer e.mu.Unlock()
	return e.descriptor.Clone(), nil
}

func (s *MemoryStore) UpdateProgress(_ context.Context, id string, fn func(*model.SessionProgress) error) (*model.SessionProgress, error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, err
	}
	defer e.mu.Unlock()

	next := e.progress.Clone()
	if err := fn(next); err != nil {
		if errors.Is(err, ports.ErrNoChange) {
			return e.progress.Clone(), nil
		}
		return nil, err
	}
	next.Revision = e.progress.Revision + 1
	e.progress = next
	e.expiresAt = s.now().Add(s.ttl)
	return next.Clone(), nil
}

func (s *MemoryStore) UpdateDescriptor(_ context.Context, id string, fn func(*model.SessionDescriptor) error) (*model.SessionDescriptor, error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, err
	}
	defer e.mu.Unlock()

	next := e.descriptor.Clone()
	if err := fn(next); err != nil {
		if errors.Is(err, ports.ErrNoChange) {
			return e.descriptor.Clone(), nil
		}
		return nil, err
	}
	e.descriptor = next
	e.expiresAt = s.now().Add(s.ttl)
	return next.Clone(), nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	e, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if ok {
		e.mu.Lock()
		e.deleted = true
		e.mu.Unlock()
	}
	s.flagMu.Lock()
	delete(s.flags, id)
	s.flagMu.Unlock()
	return nil
}

func (s *MemoryStore) ListSessionIDs(_ context.Context) ([]string, error) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.sessions))
	for id, e := range s.sessions {
		e.mu.Lock()
		live := !e.deleted && now.Before(e.expiresAt)
		e.mu.Unlock()
		if !live {
			delete(s.sessions, id)
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) SetInterrupt(_ context.Context, id, reason string) (bool, error) {
	now := s.now()
	s.flagMu.Lock()
	defer s.flagMu.Unlock()
	if f, ok := s.flags[id]; ok && now.Before(f.expiresAt) {
		return false, nil
	}
	s.flags[id] = memFlag{reason: reason, expiresAt: now.Add(s.flagTTL)}
	return true, nil
}

func (s *MemoryStore) PeekInterrupt(_ context.Context, id string) (string, bool, error) {
	s.flagMu.Lock()
	defer s.flagMu.Unlock()
	f, ok := s.flags[id]
	if !ok || !s.now().Before(f.expiresAt) {
		return "", false, nil
	}
	return f.reason, true, nil
}

func (s *MemoryStore) TakeInterrupt(_ context.Context, id string) (string, bool, error) {
	s.flagMu.Lock()
	defer s.flagMu.Unlock()
	f, ok := s.flags[id]
	delete(s.flags, id)
	if !ok || !s.now().Before(f.expiresAt) {
		return "", false, nil
	}
	return f.reason, true, nil
}

var _ ports.SessionStore = (*MemoryStore)(nil)
