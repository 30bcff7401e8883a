package main

import (
	"context"
	"fmt"
	"time"

	"teamreport/common/logger"
	"teamreport/internal/app"
	"teamreport/internal/config"
	"teamreport/internal/consumer"
	"teamreport/internal/service"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var timeNow = time.Now

// rootOptions 全局参数
type rootOptions struct {
	verbose bool
}

// session 一次命令执行所需的服务
type session struct {
	svc service.ReportService
	// publish 为 nil 表示未配置 Redis 接入流
	publish func(ctx context.Context, msg consumer.IngestMessage) (string, error)
	close   func()
}

// opener 按配置打开后端，测试中替换为本地文件后端
type opener func(ctx context.Context, opts *rootOptions) (*session, error)

func newRootCommand(open opener) *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "reportctl",
		Short:         "Operate on the team daily report collection",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log to stderr")

	cmd.AddCommand(newIngestCommand(opts, open))
	cmd.AddCommand(newExportCommand(opts, open))
	cmd.AddCommand(newStatsCommand(opts, open))
	cmd.AddCommand(newClearCommand(opts, open))
	return cmd
}

// openConfigured 按环境变量配置连接后端并加载记录
func openConfigured(ctx context.Context, opts *rootOptions) (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	lg := zap.NewNop()
	if opts.verbose {
		// console 格式输出到 stderr，不会混入导出内容
		if lg, err = logger.NewLogger(cfg.Log.Level, "console", "reportctl"); err != nil {
			return nil, err
		}
	}

	a, err := app.New(ctx, cfg, lg)
	if err != nil {
		return nil, err
	}
	if err := a.Coordinator.Start(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to load reports: %w", err)
	}

	s := &session{
		svc: a.Service,
		close: func() {
			a.Close()
			_ = lg.Sync()
		},
	}
	if cfg.Ingest.StreamEnabled {
		s.publish = func(ctx context.Context, msg consumer.IngestMessage) (string, error) {
			client, err := a.Redis(ctx)
			if err != nil {
				return "", err
			}
			return consumer.Publish(ctx, client, cfg.Ingest.Stream, msg)
		}
	}
	return s, nil
}
