package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/Hara602/usbTracker/internal/analysis"
	"github.com/Hara602/usbTracker/internal/config"
	"github.com/Hara602/usbTracker/internal/detect"
	"github.com/Hara602/usbTracker/internal/reconciler"
	"github.com/Hara602/usbTracker/internal/registry"
	"github.com/Hara602/usbTracker/internal/store"
	"github.com/Hara602/usbTracker/internal/sysutil"
	"github.com/Hara602/usbTracker/internal/translog"
	"github.com/Hara602/usbTracker/internal/watcher"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to config file")
	verifyPath := flag.String("verify", "", "verify integrity of a transfer log file and exit")
	dataDir := flag.String("data", "data", "directory for the audit database")
	flag.Parse()

	// 独立的校验模式：算一次摘要比对后退出
	if *verifyPath != "" {
		ok, msg := translog.Verify(*verifyPath)
		fmt.Println(msg)
		if !ok {
			os.Exit(1)
		}
		return
	}

	cfg, cfgErr := config.Load(*configPath)

	logger, err := sysutil.NewLogger(cfg.General.LogDirectory)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	if cfgErr != nil {
		logger.Error("config load failed, using defaults", zap.Error(cfgErr))
	}

	logger.Info("🛡️ USB File Transfer Tracker starting",
		zap.String("config", *configPath),
		zap.String("logs", cfg.General.LogDirectory),
	)

	// 传输日志 + 保留期清理
	sink, err := translog.Open(cfg.General.LogDirectory, cfg.Security, logger)
	if err != nil {
		logger.Fatal("transfer log init failed", zap.Error(err))
	}
	defer sink.Close()
	translog.Cleanup(cfg.General.LogDirectory, cfg.Security.LogRetentionDays, logger)

	// sqlite 审计库是旁路，开不起来降级为只写 CSV
	var (
		audit    *store.Store
		sessions reconciler.SessionRecorder
		sinks    = []reconciler.Sink{sink}
	)
	if audit, err = store.Open(filepath.Join(*dataDir, "tracker.db"), logger); err != nil {
		logger.Error("audit db unavailable, continuing without it", zap.Error(err))
	} else {
		defer audit.Close()
		sessions = audit
		sinks = append(sinks, audit)
	}

	// 核心装配：注册表 <- 轮询器，注册表 -> reconciler 管理器
	reg := registry.New(logger)
	mgr := reconciler.NewManager(cfg, logger, analysis.NewTypeInspector(), sessions, sinks...)
	mgr.Bind(reg)

	devWatcher := watcher.New(reg, detect.New(logger), cfg, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := devWatcher.Start(ctx); err != nil {
		logger.Fatal("device watcher init failed", zap.Error(err))
	}
	logger.Info("all monitoring services started")

	<-ctx.Done()
	logger.Info("shutting down...")

	// 先停设备轮询再拆 reconciler，等待都有上限
	devWatcher.Stop()
	mgr.StopAll()
	logger.Info("shutdown complete")
}
