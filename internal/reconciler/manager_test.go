package reconciler

import (
	"sync"
	"testing"
	"time"

	"github.com/Hara602/usbTracker/internal/config"
	"github.com/Hara602/usbTracker/internal/model"
	"github.com/Hara602/usbTracker/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeSessions struct {
	mu     sync.Mutex
	opened []string
	closed []string
}

func (f *fakeSessions) OpenSession(dev model.Device) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = append(f.opened, dev.ID)
}

func (f *fakeSessions) CloseSession(deviceID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, deviceID)
}

func TestManagerBindsReconcilerLifetimeToDevice(t *testing.T) {
	log := zaptest.NewLogger(t)
	sessions := &fakeSessions{}
	sink := &memSink{}

	mgr := NewManager(config.Default(), log, nil, sessions, sink)
	reg := registry.New(log)
	mgr.Bind(reg)

	dev := model.Device{ID: "s1", Name: "Stick", MountPoint: t.TempDir(), ConnectedAt: time.Now()}

	// 接入：reconciler 跟着设备起
	reg.Refresh([]model.Device{dev})
	mgr.mu.Lock()
	_, active := mgr.active["s1"]
	mgr.mu.Unlock()
	require.True(t, active)
	assert.Equal(t, []string{"s1"}, sessions.opened)

	// 拔出：reconciler 跟着设备停
	reg.Refresh(nil)
	mgr.mu.Lock()
	remaining := len(mgr.active)
	mgr.mu.Unlock()
	assert.Zero(t, remaining)
	assert.Equal(t, []string{"s1"}, sessions.closed)
}

func TestManagerSetupFailureDoesNotCrashRefresh(t *testing.T) {
	log := zaptest.NewLogger(t)
	mgr := NewManager(config.Default(), log, nil, nil, &memSink{})
	reg := registry.New(log)
	mgr.Bind(reg)

	// 挂载点不存在：Start 里的 watch 挂不上也只记日志，刷新本身不崩
	bad := model.Device{ID: "x", Name: "Ghost", MountPoint: "/nonexistent/mount/point"}
	require.NotPanics(t, func() {
		reg.Refresh([]model.Device{bad})
	})
	mgr.StopAll()
}

func TestManagerStopAll(t *testing.T) {
	log := zaptest.NewLogger(t)
	mgr := NewManager(config.Default(), log, nil, nil, &memSink{})
	reg := registry.New(log)
	mgr.Bind(reg)

	reg.Refresh([]model.Device{
		{ID: "a", Name: "A", MountPoint: t.TempDir()},
		{ID: "b", Name: "B", MountPoint: t.TempDir()},
	})
	mgr.StopAll()

	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	assert.Empty(t, mgr.active)
}
