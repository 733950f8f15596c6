package app

import (
	"context"
	"database/sql"

	_ "github.com/lib/pq"

	"github.com/LuisNSantana/hums-authd/internal/config"
	"github.com/LuisNSantana/hums-authd/internal/db"
	"github.com/LuisNSantana/hums-authd/internal/logger"
	"github.com/LuisNSantana/hums-authd/internal/redis"
)

// Infra holds the external backends. Either field may be nil: without a
// database the profile and integration stores fall back to in-process
// memory, and without Redis the session snapshot and the auth event feed
// stay process-local.
type Infra struct {
	DB    *db.DB
	Redis *redis.Client
}

func setupInfra(ctx context.Context, cfg config.Config) (*Infra, error) {
	infra := &Infra{}

	if cfg.DatabaseDSN != "" {
		sqlDB, err := sql.Open("postgres", cfg.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		if err := sqlDB.PingContext(ctx); err != nil {
			return nil, err
		}
		if err := db.RunLifecycleMigration(ctx, sqlDB); err != nil {
			return nil, err
		}
		infra.DB = &db.DB{DB: sqlDB}
		logger.Info("database ready", nil)
	} else {
		logger.Warn("no DATABASE_DSN, using in-memory stores", nil)
	}

	if cfg.RedisAddr != "" {
		redisClient, err := redis.New(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			return nil, err
		}
		infra.Redis = redisClient
		logger.Info("redis ready", nil)
	}

	return infra, nil
}

func (i *Infra) close() error {
	var err error
	if i.Redis != nil {
		err = i.Redis.Close()
	}
	if i.DB != nil {
		if dbErr := i.DB.Close(); dbErr != nil {
			err = dbErr
		}
	}
	return err
}
