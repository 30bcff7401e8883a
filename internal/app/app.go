// Package app 按配置组装后端、协调器和日报服务，供 teamreport 服务和 reportctl 共用
package app

import (
	"context"
	"fmt"

	"teamreport/common/database"
	rediscommon "teamreport/common/redis"
	"teamreport/internal/config"
	"teamreport/internal/coordinator"
	"teamreport/internal/extractor"
	"teamreport/internal/service"
	"teamreport/internal/store"
	"teamreport/internal/validator"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// App 组装结果
type App struct {
	Config      *config.Config
	Coordinator *coordinator.Coordinator
	Service     service.ReportService

	redisClient *redis.Client
	closers     []func()
	logger      *zap.Logger
}

// New 按配置创建各组件，但不启动协调器
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{Config: cfg, logger: logger}
	catalog := cfg.Catalog.DomainCatalog()

	opts := coordinator.Options{
		SoftLimitBytes: cfg.Sync.SoftLimitBytes,
		HardLimitBytes: cfg.Sync.HardLimitBytes,
		Passphrase:     cfg.Operator.Passphrase,
		Catalog:        catalog,
	}
	if opts.Passphrase == "" {
		logger.Warn("OPERATOR_PASSPHRASE is empty, delete and clear are disabled")
	}

	switch cfg.Sync.Mode {
	case config.SyncModeLive:
		backend, err := a.liveBackend(ctx)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Coordinator = coordinator.NewLive(backend, opts, logger)
	default:
		backend, err := a.snapshotBackend(ctx)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Coordinator = coordinator.NewSnapshot(backend, opts, logger)
	}

	var ext extractor.Extractor
	if cfg.Extractor.APIKey != "" {
		gen, err := extractor.NewGeminiGenerator(ctx, cfg.Extractor.APIKey, cfg.Extractor.Model)
		if err != nil {
			a.Close()
			return nil, err
		}
		ext = extractor.NewLLMExtractor(gen, catalog, cfg.Extractor.Timeout, logger)
	} else {
		logger.Warn("GEMINI_API_KEY is empty, raw text ingestion is disabled")
	}

	a.Service = service.NewReportService(
		a.Coordinator,
		ext,
		validator.New(catalog),
		service.NewKeywordSet(cfg.Catalog.Keywords),
		logger,
	)
	return a, nil
}

// Redis 按需创建 Redis 客户端
func (a *App) Redis(ctx context.Context) (*redis.Client, error) {
	if a.redisClient != nil {
		return a.redisClient, nil
	}
	client, err := rediscommon.Connect(ctx, &a.Config.Redis)
	if err != nil {
		return nil, err
	}
	a.redisClient = client
	a.closers = append(a.closers, func() { _ = rediscommon.Close(client) })
	return client, nil
}

func (a *App) snapshotBackend(ctx context.Context) (store.SnapshotBackend, error) {
	sc := a.Config.Sync
	var remote store.SnapshotBackend
	switch sc.SnapshotBackend {
	case "file":
		return store.NewFileSnapshot(sc.FilePath), nil
	case "redis":
		client, err := a.Redis(ctx)
		if err != nil {
			return nil, err
		}
		remote = store.NewRedisSnapshot(store.NewRedisKV(client), sc.RedisKey)
	case "jsonbin":
		remote = store.NewJSONBinSnapshot(sc.JSONBin.BaseURL, sc.JSONBin.BinID, sc.JSONBin.APIKey, sc.RequestTimeout, a.logger)
	case "gcs":
		client, err := store.NewGCSClient(ctx, sc.GCS.CredentialsJSON)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		remote = store.NewGCSSnapshot(client, sc.GCS.Bucket, sc.GCS.Object)
	default:
		return nil, fmt.Errorf("unknown snapshot backend %q", sc.SnapshotBackend)
	}

	a.logger.Info("Snapshot backend selected",
		zap.String("backend", remote.Name()),
		zap.Bool("local_cache", sc.LocalCache),
	)
	if !sc.LocalCache {
		return remote, nil
	}
	return store.NewLayered(remote, store.NewFileSnapshot(sc.FilePath), a.logger), nil
}

func (a *App) liveBackend(ctx context.Context) (store.LiveBackend, error) {
	sc := a.Config.Sync
	switch sc.LiveBackend {
	case "memory":
		return store.NewMemoryCollection(), nil
	case "postgres":
		db, err := database.NewPostgresDB(ctx, &a.Config.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		a.closers = append(a.closers, func() { _ = database.Close(db) })

		var notifier store.ChangeNotifier
		if sc.NotifyChannel != "" {
			client, err := a.Redis(ctx)
			if err != nil {
				// 没有 Redis 时退化为轮询
				a.logger.Warn("Change notifications disabled, falling back to polling", zap.Error(err))
			} else {
				notifier = store.NewRedisNotifier(client, sc.NotifyChannel)
			}
		}

		pc := store.NewPostgresCollection(db, notifier, sc.PollInterval, a.logger)
		if err := pc.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pc.Close)
		return pc, nil
	default:
		return nil, fmt.Errorf("unknown live backend %q", sc.LiveBackend)
	}
}

// Close 按创建的逆序释放资源
func (a *App) Close() {
	if a.Coordinator != nil {
		a.Coordinator.Stop()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
