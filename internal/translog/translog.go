// Package translog 追加式传输记录存储
// 每个日志文件带一个同名 .hash 伴生文件，每次追加/轮转后重算并持久化摘要，
// 供事后校验日志是否被带外改动
package translog

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Hara602/usbTracker/internal/config"
	"github.com/Hara602/usbTracker/internal/model"
	"go.uber.org/zap"
)

// header 传输记录的固定七列，新文件第一行写入
var header = []string{"timestamp", "operation", "device", "file_path", "file_size", "file_type", "user"}

const (
	timeLayout      = "2006-01-02 15:04:05"
	defaultMaxBytes = 50 * 1024 * 1024
	maxBackups      = 20
)

// Log 传输日志，支持多个 reconciler 并发追加，单条记录的写入是原子的
type Log struct {
	mu       sync.Mutex
	dir      string
	path     string
	file     *os.File
	algo     string
	maxBytes int64
	log      *zap.Logger
}

// Open 打开（或创建）当天的传输日志 transfers_YYYY-MM-DD.csv
func Open(dir string, sec config.Security, logger *zap.Logger) (*Log, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	algo := strings.ToLower(sec.HashAlgorithm)
	if algo != "sha256" && algo != "sha1" {
		logger.Warn("unknown hash algorithm, using sha256", zap.String("algorithm", sec.HashAlgorithm))
		algo = "sha256"
	}

	path := filepath.Join(dir, fmt.Sprintf("transfers_%s.csv", time.Now().Format("2006-01-02")))
	l := &Log{
		dir:      dir,
		path:     path,
		algo:     algo,
		maxBytes: defaultMaxBytes,
		log:      logger,
	}
	if err := l.open(); err != nil {
		return nil, err
	}
	return l, nil
}

// open 打开当前日志文件，新文件先写表头，随后立即持久化摘要
func (l *Log) open() error {
	info, statErr := os.Stat(l.path)
	fresh := os.IsNotExist(statErr) || (statErr == nil && info.Size() == 0)

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open transfer log: %w", err)
	}
	l.file = f

	if fresh {
		w := csv.NewWriter(f)
		if err := w.Write(header); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return fmt.Errorf("flush header: %w", err)
		}
	}
	return l.saveDigest()
}

// Append 原子追加一条最终记录并更新摘要
func (l *Log) Append(rec model.TransferRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.rotateIfNeeded(); err != nil {
		// 轮转失败不丢当前记录，继续写旧文件
		l.log.Error("transfer log rotation failed", zap.Error(err))
	}

	w := csv.NewWriter(l.file)
	row := []string{
		rec.Timestamp.Format(timeLayout),
		string(rec.Operation),
		rec.Device,
		rec.Path,
		strconv.FormatInt(rec.Size, 10),
		rec.Ext,
		rec.User,
	}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("append record: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush record: %w", err)
	}
	return l.saveDigest()
}

// rotateIfNeeded 超过大小上限时把现有文件移到 .1，老备份依次顺延
func (l *Log) rotateIfNeeded() error {
	info, err := l.file.Stat()
	if err != nil || info.Size() < l.maxBytes {
		return err
	}

	if err := l.file.Close(); err != nil {
		return fmt.Errorf("close before rotate: %w", err)
	}

	for i := maxBackups - 1; i >= 1; i-- {
		from := fmt.Sprintf("%s.%d", l.path, i)
		if _, err := os.Stat(from); err == nil {
			to := fmt.Sprintf("%s.%d", l.path, i+1)
			_ = os.Rename(from, to)
			_ = os.Rename(from+".hash", to+".hash")
		}
	}
	backup := l.path + ".1"
	if err := os.Rename(l.path, backup); err != nil {
		return fmt.Errorf("rotate: %w", err)
	}
	_ = os.Rename(l.path+".hash", backup+".hash")

	l.log.Info("transfer log rotated", zap.String("backup", backup))
	return l.open()
}

// saveDigest 重算当前文件摘要并写入伴生 .hash 文件
func (l *Log) saveDigest() error {
	digest, err := fileDigest(l.path, l.algo)
	if err != nil {
		return fmt.Errorf("compute digest: %w", err)
	}
	if err := os.WriteFile(l.path+".hash", []byte(digest), 0o644); err != nil {
		return fmt.Errorf("persist digest: %w", err)
	}
	return nil
}

// Close 关闭日志文件
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// Path 当前活跃日志文件路径
func (l *Log) Path() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.path
}

// Verify 校验日志文件当前摘要与最近一次持久化的摘要是否一致
// 算法按已存摘要的长度推断（sha256=64 位十六进制，sha1=40 位）
func Verify(logPath string) (bool, string) {
	saved, err := os.ReadFile(logPath + ".hash")
	if err != nil {
		return false, "hash file missing"
	}
	want := strings.TrimSpace(string(saved))

	algo := "sha256"
	if len(want) == 40 {
		algo = "sha1"
	}
	got, err := fileDigest(logPath, algo)
	if err != nil {
		return false, fmt.Sprintf("compute digest: %v", err)
	}
	if got != want {
		return false, "hash mismatch, log file may have been tampered with"
	}
	return true, "log file integrity verified"
}

func fileDigest(path, algo string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var h hash.Hash
	if algo == "sha1" {
		h = sha1.New()
	} else {
		h = sha256.New()
	}
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Cleanup 删除早于保留期的日志文件及其 .hash 伴生文件
// 依据文件名里内嵌的日期判断，命名不符的文件跳过
func Cleanup(dir string, retentionDays int, logger *zap.Logger) {
	if retentionDays <= 0 {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	entries, err := os.ReadDir(dir)
	if err != nil {
		logger.Error("log cleanup: read dir failed", zap.Error(err))
		return
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasSuffix(name, ".hash") {
			continue
		}
		date, ok := fileDate(name)
		if !ok || !date.Before(cutoff) {
			continue
		}
		full := filepath.Join(dir, name)
		if err := os.Remove(full); err != nil {
			logger.Warn("log cleanup: remove failed", zap.String("file", name), zap.Error(err))
			continue
		}
		_ = os.Remove(full + ".hash")
		logger.Info("expired log removed", zap.String("file", name))
	}
}

// fileDate 从 app_2026-01-02.log / transfers_2026-01-02.csv.3 这类名字里取日期
func fileDate(name string) (time.Time, bool) {
	_, rest, ok := strings.Cut(name, "_")
	if !ok {
		return time.Time{}, false
	}
	datePart, _, _ := strings.Cut(rest, ".")
	t, err := time.Parse("2006-01-02", datePart)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
