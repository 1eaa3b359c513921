// Package store 设备会话与传输记录的 sqlite 审计库
// 只做旁路落库给日志查看器查询用，任何失败记日志后继续，不影响监控主链路
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Hara602/usbTracker/internal/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS device_sessions (
	session_id      TEXT PRIMARY KEY,
	device_id       TEXT NOT NULL,
	name            TEXT,
	serial          TEXT,
	vendor          TEXT,
	model           TEXT,
	mount_point     TEXT,
	connected_at    DATETIME NOT NULL,
	disconnected_at DATETIME
);
CREATE TABLE IF NOT EXISTS transfers (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	ts        DATETIME NOT NULL,
	operation TEXT NOT NULL,
	device    TEXT NOT NULL,
	file_path TEXT NOT NULL,
	file_size INTEGER NOT NULL,
	file_type TEXT,
	user      TEXT
);
CREATE INDEX IF NOT EXISTS idx_sessions_device ON device_sessions(device_id);
CREATE INDEX IF NOT EXISTS idx_transfers_device ON transfers(device);
`

// Store 审计库句柄
type Store struct {
	db  *sql.DB
	log *zap.Logger
}

// Open 打开（或初始化）审计库
func Open(path string, logger *zap.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init audit schema: %w", err)
	}
	return &Store{db: db, log: logger}, nil
}

// OpenSession 设备接入时开一条会话记录
func (s *Store) OpenSession(dev model.Device) {
	_, err := s.db.Exec(
		`INSERT INTO device_sessions(session_id, device_id, name, serial, vendor, model, mount_point, connected_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), dev.ID, dev.Name, dev.Serial, dev.Vendor, dev.Model, dev.MountPoint, dev.ConnectedAt,
	)
	if err != nil {
		s.log.Error("audit: open session failed", zap.String("device", dev.ID), zap.Error(err))
	}
}

// CloseSession 设备拔出时封口最近一条未关闭的会话
func (s *Store) CloseSession(deviceID string) {
	_, err := s.db.Exec(
		`UPDATE device_sessions SET disconnected_at = ?
		 WHERE device_id = ? AND disconnected_at IS NULL`,
		time.Now(), deviceID,
	)
	if err != nil {
		s.log.Error("audit: close session failed", zap.String("device", deviceID), zap.Error(err))
	}
}

// Append 镜像一条最终传输记录，实现 reconciler.Sink
func (s *Store) Append(rec model.TransferRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO transfers(ts, operation, device, file_path, file_size, file_type, user)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.Timestamp, string(rec.Operation), rec.Device, rec.Path, rec.Size, rec.Ext, rec.User,
	)
	if err != nil {
		return fmt.Errorf("audit: insert transfer: %w", err)
	}
	return nil
}

// SessionCount 指定设备的会话统计：仍然开着的 / 历史总数
func (s *Store) SessionCount(deviceID string) (open, total int, err error) {
	err = s.db.QueryRow(
		`SELECT COUNT(*), COUNT(CASE WHEN disconnected_at IS NULL THEN 1 END)
		 FROM device_sessions WHERE device_id = ?`, deviceID,
	).Scan(&total, &open)
	return open, total, err
}

// CountTransfers 指定设备的传输记录条数
func (s *Store) CountTransfers(device string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM transfers WHERE device = ?`, device).Scan(&n)
	return n, err
}

func (s *Store) Close() error {
	return s.db.Close()
}
