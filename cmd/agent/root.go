package agent

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/feed-collector/cmd/server"
	"github.com/feed-collector/pkg/broker"
	"github.com/feed-collector/pkg/collectors"
	"github.com/feed-collector/pkg/config"
	"github.com/feed-collector/pkg/fetch"
	"github.com/feed-collector/pkg/logger"
	"github.com/feed-collector/pkg/metrics"
	"github.com/feed-collector/pkg/notifier"
	"github.com/feed-collector/pkg/pipeline"
	"github.com/feed-collector/pkg/registers"
	"github.com/feed-collector/pkg/report"
	"github.com/feed-collector/pkg/scheduler"
	"github.com/feed-collector/pkg/signal"
	"github.com/feed-collector/pkg/storage"
	"github.com/feed-collector/pkg/util"
)

const (
	projectName = "feed-collector"
	version     = "1.0.0"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   projectName,
	Short: "Scheduled data collectors with SQLite storage, plot reports and e-mail notification",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfigWithCli(cmd)
		if err != nil {
			// 统一输出错误到 stderr，不返回给 cobra
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			fmt.Fprintf(os.Stderr, "请检查配置文件路径或使用 -c 参数指定\n")
			os.Exit(1)
		}
		if err := runServer(cmd.Context(), cfg); err != nil {
			fmt.Fprintf(os.Stderr, "服务启动失败: %v\n", err)
			os.Exit(1)
		}
		return nil
	},
}

func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "configs/config.yaml", "配置文件路径")
	// 注册分组 flag
	initServerFlags(rootCmd)
	initLogFlags(rootCmd)
	initSchedulerFlags(rootCmd)
}

func runServer(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}

	log, err := logger.Init(cfg.Log)
	if err != nil {
		return fmt.Errorf("日志初始化失败: %w", err)
	}
	defer logger.Sync()
	logger.Info("log initialization successful", zap.String("path", cfg.Log.Path),
		zap.String("level", cfg.Log.Level), zap.String("format", cfg.Log.Format))

	store, err := storage.New(ctx, cfg.Database.DBPath,
		storage.WithBusyTimeout(cfg.Database.BusyTimeout),
		storage.WithLogger(logger.Named("storage")))
	if err != nil {
		return fmt.Errorf("存储初始化失败: %w", err)
	}

	const enableProcess = true
	registry, factory := metrics.NewRegistry(enableProcess)
	pm := metrics.NewPipeline(factory)

	enabled := registers.RegisterCollectors(ctx, collectors.Deps{
		Config:  cfg,
		Store:   store,
		Fetcher: fetch.New(cfg.Fetch),
		Logger:  log,
	})
	util.PrintBanner(projectName, "ColorBlue", version, len(enabled))

	opts := []pipeline.Option{
		pipeline.WithMetrics(pm),
		pipeline.WithLogger(logger.Named("pipeline")),
		pipeline.WithSendInterval(cfg.Notifier.SendInterval),
	}
	var publisher *broker.Publisher
	if cfg.Broker.Enable {
		publisher = broker.NewPublisher(cfg.Broker, logger.Named("broker"))
		opts = append(opts, pipeline.WithPublisher(publisher))
	}
	runner := pipeline.NewRunner(
		store,
		report.NewGenerator(store, cfg.Report.OutputDir, cfg.Report.Rows, logger.Named("report")),
		notifier.NewEmailNotifier(cfg.Email, cfg.Notifier, notifier.WithLogger(logger.Named("notifier"))),
		cfg.Notifier.DefaultRecipient,
		opts...,
	)

	dispatcher := scheduler.New(runner, enabled,
		scheduler.WithPollInterval(cfg.Scheduler.PollInterval),
		scheduler.WithMetrics(pm),
		scheduler.WithLogger(log))
	dispatcher.Start(ctx)

	var httpServer *server.Server
	if cfg.Server.Enable {
		httpServer = server.NewHTTPServer(cfg.Server, log, registry, dispatcher)
		if err := httpServer.Start(); err != nil {
			return fmt.Errorf("start HTTP server failed: %w", err)
		}
	}

	// 阻塞主 goroutine，收到信号后按 HTTP → 调度 → 消息总线 的顺序关闭
	return signal.WaitForShutdown(ctx, log, signal.DefaultShutdownTimeout, func(ctx context.Context) error {
		var errs []error
		if httpServer != nil {
			if err := httpServer.Shutdown(); err != nil {
				errs = append(errs, fmt.Errorf("shutdown HTTP server: %w", err))
			}
		}
		if err := dispatcher.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop dispatcher: %w", err))
		}
		if publisher != nil {
			if err := publisher.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close broker: %w", err))
			}
		}
		if len(errs) == 0 {
			logger.Info("all services shutdown successfully")
		}
		return errors.Join(errs...)
	})
}
