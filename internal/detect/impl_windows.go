//go:build windows

package detect

import (
	"github.com/Hara602/usbTracker/internal/model"
	"go.uber.org/zap"
)

type winDetector struct{}

func newDetector(_ *zap.Logger) Detector               { return &winDetector{} }
func (d *winDetector) Detect() ([]model.Device, error) { return nil, nil }
