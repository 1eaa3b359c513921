//go:build windows

package watcher

import (
	"time"

	"github.com/Hara602/usbTracker/internal/config"
	"github.com/Hara602/usbTracker/internal/detect"
	"github.com/Hara602/usbTracker/internal/registry"
	"go.uber.org/zap"
)

// Windows 没有对等的 netlink 订阅，直接用轮询模式
func newWatcher(reg *registry.Registry, det detect.Detector, cfg *config.Config, log *zap.Logger) DeviceWatcher {
	interval := time.Duration(cfg.Monitoring.CheckIntervalSeconds) * time.Second
	return newPollWatcher(reg, det, interval, log)
}
