package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/gomodule/redigo/redis"
	rejson "github.com/nitishm/go-rejson/v4"
	"go.uber.org/zap"

	model "github.com/cowin-monitor/src/model"
)

const selectionKeyPrefix = "cowin:selection:"

type RedisConnection struct {
	Connection *goredis.Client
}

func CreateConnection(addr, password string, db int) *RedisConnection {
	conn := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisConnection{Connection: conn}
}

func (c *RedisConnection) Ping(ctx context.Context) error {
	return c.Connection.Ping(ctx).Err()
}

type RedisHandler struct {
	Handler *rejson.Handler
	conn    *goredis.Client
}

func NewReJSONHandler(conn *RedisConnection) *RedisHandler {
	handler := rejson.NewReJSONHandler()
	handler.SetGoRedisClient(conn.Connection)
	return &RedisHandler{Handler: handler, conn: conn.Connection}
}

// Set writes v as a JSON document at path of key.
func (rh *RedisHandler) Set(key, path string, v interface{}) error {
	result, err := rh.Handler.JSONSet(key, path, v)
	if err != nil {
		return err
	}
	if s, ok := result.(string); !ok || s != "OK" {
		return fmt.Errorf("unexpected reply writing %s: %v", key, result)
	}
	return nil
}

// Get returns the JSON document at path of key. A missing key yields
// model.ErrSelectionNotFound.
func (rh *RedisHandler) Get(key, path string) ([]byte, error) {
	raw, err := redis.Bytes(rh.Handler.JSONGet(key, path))
	if errors.Is(err, goredis.Nil) || errors.Is(err, redis.ErrNil) {
		return nil, model.ErrSelectionNotFound
	}
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func (rh *RedisHandler) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return rh.conn.Expire(ctx, key, ttl).Err()
}

// SelectionStore keeps each owner's last selection as a ReJSON document that
// expires after ttl.
type SelectionStore struct {
	handler *RedisHandler
	conn    *RedisConnection
	ttl     time.Duration
	logger  *zap.Logger
}

func NewSelectionStore(conn *RedisConnection, ttl time.Duration, logger *zap.Logger) *SelectionStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SelectionStore{
		handler: NewReJSONHandler(conn),
		conn:    conn,
		ttl:     ttl,
		logger:  logger,
	}
}

func selectionKey(owner string) string {
	return selectionKeyPrefix + owner
}

func (s *SelectionStore) Load(ctx context.Context, owner string) (model.Selection, error) {
	var selection model.Selection
	raw, err := s.handler.Get(selectionKey(owner), ".")
	if err != nil {
		return selection, err
	}
	if err := json.Unmarshal(raw, &selection); err != nil {
		return selection, fmt.Errorf("decode selection for %s: %w", owner, err)
	}
	return selection, nil
}

func (s *SelectionStore) Save(ctx context.Context, owner string, selection model.Selection) error {
	start := time.Now()
	key := selectionKey(owner)
	if err := s.handler.Set(key, ".", selection); err != nil {
		return fmt.Errorf("save selection for %s: %w", owner, err)
	}
	if s.ttl > 0 {
		if err := s.handler.Expire(ctx, key, s.ttl); err != nil {
			return fmt.Errorf("expire selection for %s: %w", owner, err)
		}
	}
	s.logger.Debug("selection saved", zap.String("owner", owner), zap.Duration("elapsed", time.Since(start)))
	return nil
}

func (s *SelectionStore) Close() error {
	return s.conn.Connection.Close()
}
