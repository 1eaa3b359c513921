// Package detect 探测当前已挂载的可移动存储设备
// 平台差异收敛在 Detector 接口后面，注册表和轮询器只面向接口
package detect

import (
	"github.com/Hara602/usbTracker/internal/model"
	"go.uber.org/zap"
)

// Detector 全量探测一次当前在线的可移动设备
type Detector interface {
	Detect() ([]model.Device, error)
}

func New(log *zap.Logger) Detector {
	return newDetector(log)
}
