package idempotency

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"poker-service/pkg/logger"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
)

// GlobalScope is used for mutations that are not tied to an existing table.
const GlobalScope = "global"

// Key identifies one client mutation. The caller is part of the key so one
// user can never replay another user's cached result.
type Key struct {
	Scope     string
	UserID    string
	RequestID string
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%s:%s", k.Scope, k.UserID, k.RequestID)
}

// Entry is the committed outcome of a mutation. A non-empty ErrCode records
// a deterministic game rejection so retries see the same answer.
type Entry struct {
	Data    json.RawMessage `json:"data,omitempty"`
	ErrCode string          `json:"errCode,omitempty"`
	ErrMsg  string          `json:"errMsg,omitempty"`
	Version int64           `json:"version"`
}

// Backend is the durable tier behind the in-process LRU.
type Backend interface {
	Load(ctx context.Context, key Key) (Entry, bool, error)
	Save(ctx context.Context, key Key, entry Entry, ttl time.Duration) error
}

type Store struct {
	cache   *expirable.LRU[string, Entry]
	backend Backend
	ttl     time.Duration
}

// NewStore builds a bounded LRU whose entries expire after ttl. backend may
// be nil for a purely in-memory store.
func NewStore(size int, ttl time.Duration, backend Backend) *Store {
	if size <= 0 {
		size = 1024
	}
	return &Store{
		cache:   expirable.NewLRU[string, Entry](size, nil, ttl),
		backend: backend,
		ttl:     ttl,
	}
}

func (s *Store) Get(ctx context.Context, key Key) (Entry, bool) {
	if e, ok := s.cache.Get(key.String()); ok {
		return e, true
	}
	if s.backend == nil {
		return Entry{}, false
	}
	e, ok, err := s.backend.Load(ctx, key)
	if err != nil {
		logger.Log.Warn("idempotency backend load failed", zap.String("key", key.String()), zap.Error(err))
		return Entry{}, false
	}
	if ok {
		s.cache.Add(key.String(), e)
	}
	return e, ok
}

// Put records the entry. Backend failures are logged and swallowed: the
// LRU still protects retries that reach this process.
func (s *Store) Put(ctx context.Context, key Key, entry Entry) {
	s.cache.Add(key.String(), entry)
	if s.backend == nil {
		return
	}
	if err := s.backend.Save(ctx, key, entry, s.ttl); err != nil {
		logger.Log.Warn("idempotency backend save failed", zap.String("key", key.String()), zap.Error(err))
	}
}

func (s *Store) Len() int {
	return s.cache.Len()
}
