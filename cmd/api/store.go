package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cutl.local/internal/app/shortlink"
	"cutl.local/internal/app/shortlink/memstore"
	"cutl.local/internal/app/shortlink/repo"
	"cutl.local/internal/app/shortlink/repo/sqlite"
	"cutl.local/internal/platform/db"
	"cutl.local/internal/platform/migrate"
)

// backend 是按 DSN 选出来的存储实现，close 在进程退出时调用
type backend struct {
	store interface {
		shortlink.Store
		Ping(ctx context.Context) error
	}
	kind  string
	close func()
}

// openStore 按 DSN 前缀选择实现：postgres:// / postgresql:// 走 pgx，memory: 走内存，其余交给 sqlite 包
func openStore(ctx context.Context, dsn string) (*backend, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		pool, err := db.New(ctx, dsn)
		if err != nil {
			return nil, err
		}
		res, err := migrate.Up(ctx, pool, migrate.Options{FS: repo.Migrations})
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		slog.Info("migrations applied", "applied", res.AppliedFiles, "skipped", len(res.SkippedFiles))
		return &backend{store: repo.NewPostgresStore(pool), kind: "postgres", close: pool.Close}, nil

	case dsn == "memory:" || dsn == "memory":
		slog.Warn("using in-memory store, data is lost on restart")
		return &backend{store: memstore.New(), kind: "memory", close: func() {}}, nil

	default:
		s, err := sqlite.Open(ctx, dsn)
		if err != nil {
			return nil, err
		}
		kind := "sqlite"
		if strings.HasPrefix(dsn, "libsql://") || strings.HasPrefix(dsn, "wss://") {
			kind = "libsql"
		}
		return &backend{store: s, kind: kind, close: func() {
			if err := s.Close(); err != nil {
				slog.Warn("close store", "err", err)
			}
		}}, nil
	}
}
