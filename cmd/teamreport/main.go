package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"teamreport/common/logger"
	mqttcommon "teamreport/common/mqtt"
	"teamreport/internal/app"
	"teamreport/internal/config"
	"teamreport/internal/consumer"
	httpapi "teamreport/internal/http"
	ingestmqtt "teamreport/internal/mqtt"
	"teamreport/internal/service"

	"go.uber.org/zap"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化Logger
	lg, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "teamreport")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer lg.Sync()

	lg.Info("Starting teamreport service",
		zap.String("addr", cfg.HTTP.Addr),
		zap.String("sync_mode", cfg.Sync.Mode),
		zap.String("snapshot_backend", cfg.Sync.SnapshotBackend),
		zap.String("live_backend", cfg.Sync.LiveBackend),
		zap.Int("departments", len(cfg.Catalog.Departments)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, lg)
	if err != nil {
		lg.Fatal("Failed to initialize application", zap.Error(err))
	}
	defer a.Close()

	// 首次加载失败不退出，状态里会标记 sync_error
	if err := a.Coordinator.Start(ctx); err != nil {
		lg.Warn("Initial load failed, serving cached data", zap.Error(err))
	}

	var wg sync.WaitGroup

	// Redis Streams 异步接入
	if cfg.Ingest.StreamEnabled {
		client, err := a.Redis(ctx)
		if err != nil {
			lg.Fatal("Failed to connect to redis for ingest stream", zap.Error(err))
		}
		sc := consumer.NewStreamConsumer(cfg.Ingest, client, a.Service, lg)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sc.Start(ctx); err != nil {
				lg.Error("Ingest stream consumer stopped", zap.Error(err))
			}
		}()
	}

	// MQTT 接入
	var broker *ingestmqtt.IngestBroker
	if cfg.Ingest.MQTTEnabled {
		mqttClient, err := mqttcommon.NewClient(&cfg.MQTT, lg)
		if err != nil {
			lg.Fatal("Failed to connect to MQTT broker", zap.Error(err))
		}
		defer mqttClient.Disconnect()

		broker = ingestmqtt.NewIngestBroker(mqttClient, cfg.MQTT.Topic, cfg.MQTT.QoS, a.Service, 2*cfg.Extractor.Timeout, lg)
		if err := broker.Start(); err != nil {
			lg.Fatal("Failed to subscribe MQTT topic", zap.Error(err), zap.String("topic", cfg.MQTT.Topic))
		}
	}

	router := httpapi.NewRouter(lg)
	router.RegisterHealthRoutes()
	router.RegisterReportRoutes(httpapi.NewReportHandler(a.Service, lg))

	srv := service.NewServer(cfg.HTTP.Addr, router, lg)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	// 等待中断信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		lg.Info("Received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			lg.Error("HTTP server failed", zap.Error(err))
		}
	}

	// 优雅关闭：先停入口，再停消费者，最后释放后端
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		lg.Error("Error during HTTP shutdown", zap.Error(err))
	}
	if broker != nil {
		broker.Stop()
	}
	cancel()
	wg.Wait()

	lg.Info("Service stopped")
}
