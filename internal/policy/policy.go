// Package policy 监控与告警策略的纯判定逻辑
package policy

import (
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Hara602/usbTracker/internal/config"
)

const bytesPerMB = 1024 * 1024

// Evaluator 基于一份只读配置做策略判定，本身无状态
type Evaluator struct {
	monitoring config.Monitoring
	alerts     config.Alerts
}

func NewEvaluator(cfg *config.Config) *Evaluator {
	return &Evaluator{
		monitoring: cfg.Monitoring,
		alerts:     cfg.Alerts,
	}
}

// Ext 小写扩展名，带点
func Ext(p string) string {
	return strings.ToLower(filepath.Ext(p))
}

// ShouldMonitor 该文件是否纳入监控：必须是普通文件，满足大小上下限，
// 且命中扩展名包含/排除规则
func (e *Evaluator) ShouldMonitor(p string) bool {
	info, err := os.Stat(p)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	return e.sizeInBounds(info.Size()) && e.ExtensionIncluded(Ext(p))
}

func (e *Evaluator) sizeInBounds(size int64) bool {
	if e.monitoring.MinFileSizeBytes > 0 && size < e.monitoring.MinFileSizeBytes {
		return false
	}
	if e.monitoring.MaxFileSizeBytes > 0 && size > e.monitoring.MaxFileSizeBytes {
		return false
	}
	return true
}

// ExtensionIncluded 扩展名是否命中包含规则且未被排除
// 包含列表为 ["*"] 时表示兜底通配：排除列表之外全部监控
func (e *Evaluator) ExtensionIncluded(ext string) bool {
	include := e.monitoring.IncludeFileExtensions
	exclude := e.monitoring.ExcludeFileExtensions

	if len(include) == 1 && include[0] == "*" {
		return !matchAny(ext, exclude)
	}
	return matchAny(ext, include) && !matchAny(ext, exclude)
}

// matchAny 后缀精确匹配或 glob 匹配任一模式
func matchAny(ext string, patterns []string) bool {
	for _, pat := range patterns {
		if strings.HasSuffix(ext, pat) {
			return true
		}
		if ok, _ := path.Match(pat, ext); ok {
			return true
		}
	}
	return false
}

// IsSuspicious 扩展名在可疑列表且大小超过告警阈值
// 文件大小读不到时按可疑处理（宁可误报）
func (e *Evaluator) IsSuspicious(p string) bool {
	ext := Ext(p)
	found := false
	for _, s := range e.alerts.SuspiciousExtensions {
		if ext == s {
			found = true
			break
		}
	}
	if !found {
		return false
	}

	info, err := os.Stat(p)
	if err != nil {
		return true
	}
	return float64(info.Size())/bytesPerMB > float64(e.alerts.AlertThresholdMB)
}

// IsLargeTransfer 大小超过大文件传输阈值；功能开关关闭时恒为 false
func (e *Evaluator) IsLargeTransfer(size int64) bool {
	if !e.alerts.LargeTransferAlert {
		return false
	}
	return float64(size)/bytesPerMB > float64(e.alerts.LargeTransferThresholdMB)
}

// IsRestrictedTime 当前时间是否命中时间段限制
// 周末（周六/周日）在开关打开时直接命中；否则按小时落在 [start, end) 判断，
// start > end 表示跨午夜区间，例如 18:00–07:00
func (e *Evaluator) IsRestrictedTime(now time.Time) bool {
	tba := e.alerts.TimeBasedAlerts
	if !tba.Enabled {
		return false
	}

	wd := now.Weekday()
	if tba.WeekendAlerts && (wd == time.Saturday || wd == time.Sunday) {
		return true
	}

	start := parseHour(tba.Start)
	end := parseHour(tba.End)
	hour := now.Hour()

	if start > end {
		return hour >= start || hour < end
	}
	return hour >= start && hour < end
}

// parseHour 从 "HH:MM" 取小时，解析失败返回 0
func parseHour(s string) int {
	h, _, _ := strings.Cut(s, ":")
	n, err := strconv.Atoi(h)
	if err != nil {
		return 0
	}
	return n
}

// AlertsEnabled 告警总开关
func (e *Evaluator) AlertsEnabled() bool {
	return e.alerts.EnableAlerts
}
