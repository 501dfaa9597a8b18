// Package storage provides best-effort key/value persistence for session state.
package storage

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

const defaultTimeout = 2 * time.Second

// Backend is a raw key/value store. Any method may fail.
type Backend interface {
	GetItem(ctx context.Context, key string) (value string, ok bool, err error)
	SetItem(ctx context.Context, key, value string) error
	RemoveItem(ctx context.Context, key string) error
	Close() error
}

// Storage wraps a Backend so that callers never see its failures: reads that
// fail are reported as absent and writes that fail report false.
type Storage struct {
	backend Backend
	timeout time.Duration
}

func New(backend Backend) *Storage {
	return &Storage{backend: backend, timeout: defaultTimeout}
}

// WithTimeout bounds every backend call.
func (s *Storage) WithTimeout(d time.Duration) *Storage {
	s.timeout = d
	return s
}

func (s *Storage) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

func (s *Storage) Get(key string) (string, bool) {
	ctx, cancel := s.ctx()
	defer cancel()

	v, ok, err := s.backend.GetItem(ctx, key)
	if err != nil {
		log.WithField("key", key).Warnf("storage read failed: %v", err)
		return "", false
	}
	return v, ok
}

func (s *Storage) Set(key, value string) bool {
	ctx, cancel := s.ctx()
	defer cancel()

	if err := s.backend.SetItem(ctx, key, value); err != nil {
		log.WithField("key", key).Warnf("storage write failed: %v", err)
		return false
	}
	return true
}

func (s *Storage) Remove(key string) bool {
	ctx, cancel := s.ctx()
	defer cancel()

	if err := s.backend.RemoveItem(ctx, key); err != nil {
		log.WithField("key", key).Warnf("storage remove failed: %v", err)
		return false
	}
	return true
}

func (s *Storage) Close() error {
	return s.backend.Close()
}
