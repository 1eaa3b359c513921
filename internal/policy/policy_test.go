package policy

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Hara602/usbTracker/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name string, size int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
	return path
}

func TestShouldMonitorWildcardInclude(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default() // include=["*"], exclude 含 .tmp

	e := NewEvaluator(cfg)

	tmp := writeFile(t, dir, "a.tmp", 10)
	txt := writeFile(t, dir, "a.txt", 10)

	assert.False(t, e.ShouldMonitor(tmp))
	assert.True(t, e.ShouldMonitor(txt))
}

func TestShouldMonitorExplicitInclude(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Monitoring.IncludeFileExtensions = []string{".docx", ".xls*"}
	cfg.Monitoring.ExcludeFileExtensions = []string{".xlsm"}

	e := NewEvaluator(cfg)

	assert.True(t, e.ShouldMonitor(writeFile(t, dir, "a.docx", 10)))
	assert.True(t, e.ShouldMonitor(writeFile(t, dir, "a.xlsx", 10)), "glob 模式命中")
	assert.False(t, e.ShouldMonitor(writeFile(t, dir, "a.xlsm", 10)), "排除优先")
	assert.False(t, e.ShouldMonitor(writeFile(t, dir, "a.txt", 10)))
}

func TestShouldMonitorSizeBounds(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Monitoring.MinFileSizeBytes = 1000

	e := NewEvaluator(cfg)

	assert.False(t, e.ShouldMonitor(writeFile(t, dir, "small.txt", 500)))
	assert.True(t, e.ShouldMonitor(writeFile(t, dir, "exact.txt", 1000)), "等于下限算在内")

	cfg2 := config.Default()
	cfg2.Monitoring.MaxFileSizeBytes = 100
	e2 := NewEvaluator(cfg2)
	assert.False(t, e2.ShouldMonitor(writeFile(t, dir, "big.txt", 200)))
}

func TestShouldMonitorNonFile(t *testing.T) {
	e := NewEvaluator(config.Default())
	assert.False(t, e.ShouldMonitor(t.TempDir()), "目录不监控")
	assert.False(t, e.ShouldMonitor(filepath.Join(t.TempDir(), "gone.txt")))
}

func TestIsSuspicious(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Alerts.AlertThresholdMB = 1

	e := NewEvaluator(cfg)

	big := writeFile(t, dir, "dump.docx", 2*1024*1024)
	small := writeFile(t, dir, "note.docx", 1024)
	plain := writeFile(t, dir, "big.txt", 2*1024*1024)

	assert.True(t, e.IsSuspicious(big))
	assert.False(t, e.IsSuspicious(small), "未超阈值")
	assert.False(t, e.IsSuspicious(plain), "扩展名不在可疑列表")

	// 大小读不到时按可疑处理（fail closed）
	assert.True(t, e.IsSuspicious(filepath.Join(dir, "vanished.zip")))
}

func TestIsLargeTransfer(t *testing.T) {
	cfg := config.Default()
	cfg.Alerts.LargeTransferThresholdMB = 500

	e := NewEvaluator(cfg)
	assert.True(t, e.IsLargeTransfer(501*1024*1024))
	assert.False(t, e.IsLargeTransfer(100*1024*1024))

	cfg.Alerts.LargeTransferAlert = false
	e = NewEvaluator(cfg)
	assert.False(t, e.IsLargeTransfer(501*1024*1024), "开关关闭时恒为 false")
}

func TestIsRestrictedTimeOvernightWindow(t *testing.T) {
	cfg := config.Default() // 18:00–07:00，跨午夜
	e := NewEvaluator(cfg)

	// 2026-01-07 是周三，避开周末分支
	wednesday := func(hour int) time.Time {
		return time.Date(2026, 1, 7, hour, 30, 0, 0, time.Local)
	}

	assert.True(t, e.IsRestrictedTime(wednesday(20)))
	assert.True(t, e.IsRestrictedTime(wednesday(3)))
	assert.False(t, e.IsRestrictedTime(wednesday(12)))
}

func TestIsRestrictedTimeDaytimeWindow(t *testing.T) {
	cfg := config.Default()
	cfg.Alerts.TimeBasedAlerts.Start = "09:00"
	cfg.Alerts.TimeBasedAlerts.End = "17:00"
	e := NewEvaluator(cfg)

	wednesday := func(hour int) time.Time {
		return time.Date(2026, 1, 7, hour, 0, 0, 0, time.Local)
	}
	assert.True(t, e.IsRestrictedTime(wednesday(9)))
	assert.False(t, e.IsRestrictedTime(wednesday(17)), "右端开区间")
	assert.False(t, e.IsRestrictedTime(wednesday(8)))
}

func TestIsRestrictedTimeWeekend(t *testing.T) {
	cfg := config.Default()
	e := NewEvaluator(cfg)

	saturdayNoon := time.Date(2026, 1, 10, 12, 0, 0, 0, time.Local)
	require.Equal(t, time.Saturday, saturdayNoon.Weekday())

	assert.True(t, e.IsRestrictedTime(saturdayNoon), "周末直接命中，不看小时窗口")

	cfg.Alerts.TimeBasedAlerts.WeekendAlerts = false
	e = NewEvaluator(cfg)
	assert.False(t, e.IsRestrictedTime(saturdayNoon))
}

func TestIsRestrictedTimeDisabled(t *testing.T) {
	cfg := config.Default()
	cfg.Alerts.TimeBasedAlerts.Enabled = false
	e := NewEvaluator(cfg)

	saturdayNight := time.Date(2026, 1, 10, 23, 0, 0, 0, time.Local)
	assert.False(t, e.IsRestrictedTime(saturdayNight))
}
