package store

import (
	"context"
	"fmt"
	"time"

	"github.com/DoyleJ11/live-leaderboard/internal/config"
	"github.com/DoyleJ11/live-leaderboard/internal/leaderboard"
	"go.uber.org/zap"
)

const connectTimeout = 10 * time.Second

// Backend is a Store the process owns and must close on shutdown.
type Backend interface {
	leaderboard.Store
	Close(ctx context.Context) error
}

var (
	_ Backend = (*Memory)(nil)
	_ Backend = (*Mongo)(nil)
	_ Backend = (*Postgres)(nil)
)

// Open connects the store selected by cfg.StoreDriver.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Backend, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	switch cfg.StoreDriver {
	case config.DriverMemory:
		logger.Warn("using in-memory store, teams are lost on restart")
		return NewMemory(), nil
	case config.DriverMongo:
		return NewMongo(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection, logger)
	case config.DriverPostgres:
		return NewPostgres(ctx, cfg.PostgresDSN, logger)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
