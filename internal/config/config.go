// Package config 负责策略配置的加载与保存
// 配置文件为 TOML，未知键忽略，缺失键回落到内置默认值
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// DefaultPath 默认配置文件位置
const DefaultPath = "config.toml"

// General 通用设置
type General struct {
	LogDirectory   string `toml:"log_directory"`
	RunAtStartup   bool   `toml:"run_at_startup"`
	MinimizeToTray bool   `toml:"minimize_to_tray"`
}

// Monitoring 文件监控策略
type Monitoring struct {
	CheckIntervalSeconds  int      `toml:"check_interval_seconds"`
	IncludeFileExtensions []string `toml:"include_file_extensions"` // ["*"] 表示除排除项外全部监控
	ExcludeFileExtensions []string `toml:"exclude_file_extensions"`
	MinFileSizeBytes      int64    `toml:"min_file_size_bytes"`
	MaxFileSizeBytes      int64    `toml:"max_file_size_bytes"` // 0 表示不设上限
}

// TimeBasedAlerts 时间段告警
type TimeBasedAlerts struct {
	Enabled       bool   `toml:"enabled"`
	Start         string `toml:"start"` // "HH:MM"，start > end 表示跨午夜
	End           string `toml:"end"`
	WeekendAlerts bool   `toml:"weekend_alerts"`
}

// Alerts 告警策略
type Alerts struct {
	EnableAlerts             bool            `toml:"enable_alerts"`
	AlertThresholdMB         int             `toml:"alert_threshold_mb"`
	SuspiciousExtensions     []string        `toml:"suspicious_extensions"`
	LargeTransferAlert       bool            `toml:"large_transfer_alert"`
	LargeTransferThresholdMB int             `toml:"large_transfer_threshold_mb"`
	TimeBasedAlerts          TimeBasedAlerts `toml:"time_based_alerts"`
}

// Security 日志安全设置
// EncryptLogs 目前只做解析保留，尚未实现加密落盘
type Security struct {
	HashAlgorithm    string `toml:"hash_algorithm"` // sha256 / sha1
	EncryptLogs      bool   `toml:"encrypt_logs"`
	LogRetentionDays int    `toml:"log_retention_days"`
}

// Config 完整策略文档，监控会话期间只读
type Config struct {
	General    General    `toml:"general"`
	Monitoring Monitoring `toml:"monitoring"`
	Alerts     Alerts     `toml:"alerts"`
	Security   Security   `toml:"security"`
}

// Default 内置默认值
func Default() *Config {
	return &Config{
		General: General{
			LogDirectory:   "logs",
			RunAtStartup:   true,
			MinimizeToTray: true,
		},
		Monitoring: Monitoring{
			CheckIntervalSeconds:  1,
			IncludeFileExtensions: []string{"*"},
			ExcludeFileExtensions: []string{".tmp", ".temp", ".lock"},
			MinFileSizeBytes:      0,
			MaxFileSizeBytes:      0,
		},
		Alerts: Alerts{
			EnableAlerts:             true,
			AlertThresholdMB:         100,
			SuspiciousExtensions:     []string{".zip", ".rar", ".7z", ".tar", ".gz", ".db", ".sql", ".xlsx", ".docx", ".pdf"},
			LargeTransferAlert:       true,
			LargeTransferThresholdMB: 500,
			TimeBasedAlerts: TimeBasedAlerts{
				Enabled:       true,
				Start:         "18:00",
				End:           "07:00",
				WeekendAlerts: true,
			},
		},
		Security: Security{
			HashAlgorithm:    "sha256",
			EncryptLogs:      false,
			LogRetentionDays: 90,
		},
	}
}

// Load 从 path 加载配置
// 文件不存在时写出一份默认配置；解析失败时返回默认值并带回错误，调用方记日志即可
func Load(path string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := cfg.Save(path); err != nil {
			return cfg, fmt.Errorf("write default config: %w", err)
		}
		return cfg, nil
	}

	// 解码到已填好默认值的结构上，缺失键自然保留默认
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return Default(), fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Save 将配置写回 path
func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(c); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return nil
}
