// Package selection persists the last state, district and date each user
// picked so a session can resume where it stopped.
package selection

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cowin-monitor/src/cache"
	"github.com/cowin-monitor/src/database"
	model "github.com/cowin-monitor/src/model"
)

// Store loads and saves selections by owner. Load returns
// model.ErrSelectionNotFound for an owner with nothing saved.
type Store interface {
	Load(ctx context.Context, owner string) (model.Selection, error)
	Save(ctx context.Context, owner string, selection model.Selection) error
	Close() error
}

type MemoryStore struct {
	mu         sync.RWMutex
	selections map[string]model.Selection
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{selections: make(map[string]model.Selection)}
}

func (m *MemoryStore) Load(ctx context.Context, owner string) (model.Selection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.selections[owner]
	if !ok {
		return model.Selection{}, model.ErrSelectionNotFound
	}
	return s, nil
}

func (m *MemoryStore) Save(ctx context.Context, owner string, selection model.Selection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.selections[owner] = selection
	return nil
}

func (m *MemoryStore) Close() error { return nil }

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendMySQL  = "mysql"
)

type Options struct {
	Backend       string
	TTL           time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	MySQLDSN      string
}

// Open builds the store named by opts.Backend.
func Open(ctx context.Context, opts Options, logger *zap.Logger) (Store, error) {
	switch opts.Backend {
	case "", BackendMemory:
		return NewMemoryStore(), nil
	case BackendRedis:
		conn := cache.CreateConnection(opts.RedisAddr, opts.RedisPassword, opts.RedisDB)
		if err := conn.Ping(ctx); err != nil {
			conn.Connection.Close()
			return nil, fmt.Errorf("connecting to redis at %s: %w", opts.RedisAddr, err)
		}
		return cache.NewSelectionStore(conn, opts.TTL, logger), nil
	case BackendMySQL:
		db, err := database.CreateConnection("mysql", opts.MySQLDSN)
		if err != nil {
			return nil, err
		}
		store, err := database.NewSelectionStore(db, opts.TTL, logger)
		if err != nil {
			db.Connection.Close()
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown selection store %q", opts.Backend)
	}
}
