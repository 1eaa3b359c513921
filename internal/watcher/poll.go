package watcher

import (
	"context"
	"time"

	"github.com/Hara602/usbTracker/internal/detect"
	"github.com/Hara602/usbTracker/internal/registry"
	"go.uber.org/zap"
)

// pollWatcher 固定间隔全量探测的回落实现，所有平台可用
type pollWatcher struct {
	reg      *registry.Registry
	det      detect.Detector
	interval time.Duration
	log      *zap.Logger
	done     chan struct{}
}

func newPollWatcher(reg *registry.Registry, det detect.Detector, interval time.Duration, log *zap.Logger) *pollWatcher {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &pollWatcher{
		reg:      reg,
		det:      det,
		interval: interval,
		log:      log,
		done:     make(chan struct{}),
	}
}

func (w *pollWatcher) Start(ctx context.Context) error {
	go w.run(ctx)
	return nil
}

func (w *pollWatcher) run(ctx context.Context) {
	defer close(w.done)
	w.log.Info("polling device watcher started", zap.Duration("interval", w.interval))

	refreshOnce(w.reg, w.det, w.log)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refreshOnce(w.reg, w.det, w.log)
		}
	}
}

func (w *pollWatcher) Stop() {
	join(w.done, w.log)
}

// refreshOnce 一轮探测加差分刷新
// 单轮探测失败只记日志跳过，循环继续
func refreshOnce(reg *registry.Registry, det detect.Detector, log *zap.Logger) {
	devices, err := det.Detect()
	if err != nil {
		log.Error("device detection failed, skipping cycle", zap.Error(err))
		return
	}
	added, removed := reg.Refresh(devices)
	for _, dev := range removed {
		log.Info("❌ USB device removed",
			zap.String("device", dev.Name),
			zap.String("mount", dev.MountPoint),
		)
	}
	for _, dev := range added {
		log.Info("✅ USB device connected",
			zap.String("device", dev.Name),
			zap.String("mount", dev.MountPoint),
			zap.String("serial", dev.Serial),
			zap.String("vendor", dev.Vendor),
		)
	}
}
