package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/Hara602/usbTracker/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "tracker.db"), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSessionLifecycle(t *testing.T) {
	s := openStore(t)

	dev := model.Device{
		ID:          "serial-123",
		Name:        "Kingston DT",
		MountPoint:  "/media/usb0",
		Serial:      "serial-123",
		ConnectedAt: time.Now(),
	}

	s.OpenSession(dev)
	open, total, err := s.SessionCount(dev.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, open)
	assert.Equal(t, 1, total)

	s.CloseSession(dev.ID)
	open, total, err = s.SessionCount(dev.ID)
	require.NoError(t, err)
	assert.Zero(t, open)
	assert.Equal(t, 1, total)

	// 再插一次是新会话
	s.OpenSession(dev)
	open, total, err = s.SessionCount(dev.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, open)
	assert.Equal(t, 2, total)
}

func TestAppendTransfer(t *testing.T) {
	s := openStore(t)

	rec := model.TransferRecord{
		Timestamp: time.Now(),
		Operation: model.OpCreated,
		Device:    "Kingston DT",
		Path:      "docs/report.docx",
		Size:      2097152,
		Ext:       ".docx",
		User:      "alice",
	}
	require.NoError(t, s.Append(rec))
	require.NoError(t, s.Append(rec))

	n, err := s.CountTransfers("Kingston DT")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.CountTransfers("OtherDisk")
	require.NoError(t, err)
	assert.Zero(t, n)
}
