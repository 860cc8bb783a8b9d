package session

import (
	"context"
	"fmt"

	"github.com/ppiankov/humanloop/internal/config"
)

// OpenStore builds the Store selected by cfg.
func OpenStore(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return NewMemoryStore(), nil
	case config.BackendSQLite:
		return OpenSQLite(cfg.SQLitePath)
	case config.BackendRedis:
		client, err := DialRedis(ctx, cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			return nil, err
		}
		return NewRedisStore(client, cfg.RedisPrefix), nil
	default:
		return nil, fmt.Errorf("session: unknown store backend %q", cfg.Backend)
	}
}
