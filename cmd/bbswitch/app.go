package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kittclouds/barswitch/internal/store"
	"github.com/kittclouds/barswitch/pkg/mirror"
	"github.com/kittclouds/barswitch/pkg/switcher"
)

// app is an opened database with a bootstrapped switcher on top.
type app struct {
	store   *store.SQLiteStore
	svc     *switcher.Service
	metrics *prometheus.Registry
	redis   *redis.Client
}

// openApp opens the configured database. Bootstrap creates the collections
// root and the default bar on first use.
func openApp(ctx context.Context) (*app, error) {
	if dir := filepath.Dir(cfg.Store.Path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	st, err := store.Open(cfg.Store.Path,
		store.WithLogger(logger.Named("store")),
		store.WithPollInterval(cfg.GetPollInterval()),
		store.WithJournalRetention(cfg.Store.JournalRetention),
	)
	if err != nil {
		return nil, err
	}
	a := &app{store: st, metrics: prometheus.NewRegistry()}

	codec, err := cfg.Codec()
	if err != nil {
		a.Close()
		return nil, err
	}

	opts := switcher.Options{
		RootTitle:       cfg.Layout.RootTitle,
		DefaultName:     cfg.Layout.DefaultName,
		PointerURL:      cfg.Layout.PointerURL,
		BarTitles:       cfg.Layout.BarTitles,
		OtherTitles:     cfg.Layout.OtherTitles,
		MoveConcurrency: cfg.Switch.MoveConcurrency,
		Codec:           codec,
		Mirror:          a.mirror(),
		Logger:          logger,
		Metrics:         switcher.NewMetrics(a.metrics),
	}
	a.svc = switcher.New(st, opts)

	if _, err := a.svc.Bootstrap(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) mirror() mirror.Mirror {
	switch cfg.Mirror.Backend {
	case "redis":
		a.redis = redis.NewClient(&redis.Options{Addr: cfg.Mirror.RedisAddr, DB: cfg.Mirror.RedisDB})
		logger.Debug("mirroring to redis", zap.String("addr", cfg.Mirror.RedisAddr))
		return mirror.NewRedis(a.redis, cfg.Mirror.Prefix)
	case "sqlite":
		return store.NewKVMirror(a.store, cfg.Mirror.Prefix)
	default:
		return mirror.Nop{}
	}
}

func (a *app) Close() {
	if a.redis != nil {
		a.redis.Close()
	}
	if err := a.store.Close(); err != nil {
		logger.Warn("close store", zap.Error(err))
	}
}
