package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	_ "modernc.org/sqlite"

	"github.com/petrijr/flowstate/internal/engine"
	"github.com/petrijr/flowstate/internal/persistence"
	"github.com/petrijr/flowstate/pkg/api"
)

// loadTable returns the table configured by table.path, or the default
// lifecycle table when no path is set.
func (a *app) loadTable() (*api.TransitionTable, error) {
	if a.cfg.Table.Path == "" {
		return api.DefaultTransitionTable(), nil
	}
	f, err := os.Open(a.cfg.Table.Path)
	if err != nil {
		return nil, fmt.Errorf("open transition table: %w", err)
	}
	defer f.Close()

	table, err := api.LoadTransitionTable(f)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", a.cfg.Table.Path, err)
	}
	return table, nil
}

func (a *app) engineOptions() ([]engine.Option, error) {
	table, err := a.loadTable()
	if err != nil {
		return nil, err
	}

	retries := a.cfg.Engine.MaxConflictRetries
	if retries == 0 {
		// Zero in the config file means no retries, not the engine default.
		retries = -1
	}

	return []engine.Option{
		engine.WithTransitionTable(table),
		engine.WithObserver(api.NewLoggingObserver(a.logger)),
		engine.WithMaxConflictRetries(retries),
	}, nil
}

// openEngine connects to the configured backend. The returned close function
// releases the backend connection.
func (a *app) openEngine(ctx context.Context) (api.Engine, func() error, error) {
	opts, err := a.engineOptions()
	if err != nil {
		return nil, nil, err
	}

	dsn := a.cfg.Store.DSN
	a.logger.Debug("opening store", "backend", a.cfg.Store.Backend)

	switch a.cfg.Store.Backend {
	case "memory":
		return engine.NewInMemoryEngine(opts...), func() error { return nil }, nil

	case "sqlite":
		db, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		// SQLite allows a single writer.
		db.SetMaxOpenConns(1)
		eng, err := engine.NewSQLiteEngine(db, opts...)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return eng, db.Close, nil

	case "postgres":
		db, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		eng, err := engine.NewPostgresEngine(db, opts...)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return eng, db.Close, nil

	case "redis":
		client, err := newRedisClient(dsn)
		if err != nil {
			return nil, nil, err
		}
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		store := persistence.NewRedisInstanceStore(client, a.cfg.Store.Prefix)
		return engine.NewEngine(store, opts...), client.Close, nil

	case "mongo":
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(dsn))
		if err != nil {
			return nil, nil, fmt.Errorf("connect mongo: %w", err)
		}
		if err := client.Ping(ctx, nil); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, fmt.Errorf("connect mongo: %w", err)
		}
		closeFn := func() error { return client.Disconnect(context.Background()) }
		return engine.NewMongoEngine(client, opts...), closeFn, nil
	}

	return nil, nil, fmt.Errorf("unsupported backend %q", a.cfg.Store.Backend)
}

// newRedisClient accepts either a redis:// URL or a bare host:port address.
func newRedisClient(dsn string) (*redis.Client, error) {
	if strings.HasPrefix(dsn, "redis://") || strings.HasPrefix(dsn, "rediss://") {
		opt, err := redis.ParseURL(dsn)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: dsn}), nil
}

// withEngine opens the engine, runs fn and closes the backend afterwards.
func (a *app) withEngine(ctx context.Context, fn func(api.Engine) error) error {
	eng, closeFn, err := a.openEngine(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeFn(); cerr != nil {
			a.logger.Warn("closing store failed", "error", cerr)
		}
	}()
	return fn(eng)
}
