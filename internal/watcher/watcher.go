// Package watcher 驱动设备注册表按节奏刷新
// Linux 优先订阅 udev 热插拔事件，失败时退化为固定间隔轮询；其余平台只有轮询
package watcher

import (
	"context"
	"time"

	"github.com/Hara602/usbTracker/internal/config"
	"github.com/Hara602/usbTracker/internal/detect"
	"github.com/Hara602/usbTracker/internal/registry"
	"go.uber.org/zap"
)

// joinTimeout 停止时等待循环退出的上限，超时只记日志
const joinTimeout = 2 * time.Second

// DeviceWatcher 设备轮询/监听循环
type DeviceWatcher interface {
	// Start 启动循环，ctx 取消后循环自行退出
	Start(ctx context.Context) error
	// Stop 有界等待循环收尾
	Stop()
}

func New(reg *registry.Registry, det detect.Detector, cfg *config.Config, log *zap.Logger) DeviceWatcher {
	return newWatcher(reg, det, cfg, log)
}

// join 有界等待 done 关闭
func join(done <-chan struct{}, log *zap.Logger) {
	select {
	case <-done:
	case <-time.After(joinTimeout):
		log.Warn("device watcher did not stop in time", zap.Duration("timeout", joinTimeout))
	}
}
