package reconciler

import (
	"sync"

	"github.com/Hara602/usbTracker/internal/analysis"
	"github.com/Hara602/usbTracker/internal/config"
	"github.com/Hara602/usbTracker/internal/model"
	"github.com/Hara602/usbTracker/internal/registry"
	"go.uber.org/zap"
)

// SessionRecorder 设备会话审计旁路，可为 nil
type SessionRecorder interface {
	OpenSession(dev model.Device)
	CloseSession(deviceID string)
}

// Manager 把 reconciler 的生命周期绑定到注册表的设备增删通知上
type Manager struct {
	cfg      *config.Config
	log      *zap.Logger
	insp     *analysis.TypeInspector
	sessions SessionRecorder
	sinks    []Sink

	mu     sync.Mutex
	active map[string]*Reconciler // device_id -> Reconciler
}

func NewManager(cfg *config.Config, log *zap.Logger, insp *analysis.TypeInspector, sessions SessionRecorder, sinks ...Sink) *Manager {
	return &Manager{
		cfg:      cfg,
		log:      log,
		insp:     insp,
		sessions: sessions,
		sinks:    sinks,
		active:   make(map[string]*Reconciler),
	}
}

// Bind 订阅注册表的增删通知
func (m *Manager) Bind(reg *registry.Registry) {
	reg.Subscribe(m.handleAdded, m.handleRemoved)
}

func (m *Manager) handleAdded(dev model.Device) {
	m.log.Info("setting up file monitoring",
		zap.String("device", dev.Name),
		zap.String("mount", dev.MountPoint),
	)

	r := New(dev, m.cfg, m.log, m.insp, m.sinks...)
	if err := r.Start(); err != nil {
		m.log.Error("file monitoring setup failed",
			zap.String("device", dev.Name),
			zap.Error(err),
		)
		return
	}

	m.mu.Lock()
	// 同一设备重复 add 时先停掉旧的
	if old, ok := m.active[dev.ID]; ok {
		go old.Stop()
	}
	m.active[dev.ID] = r
	m.mu.Unlock()

	if m.sessions != nil {
		m.sessions.OpenSession(dev)
	}
}

func (m *Manager) handleRemoved(dev model.Device) {
	m.mu.Lock()
	r, ok := m.active[dev.ID]
	delete(m.active, dev.ID)
	m.mu.Unlock()

	if ok {
		r.Stop()
		m.log.Info("file monitoring stopped", zap.String("device", dev.Name))
	}
	if m.sessions != nil {
		m.sessions.CloseSession(dev.ID)
	}
}

// StopAll 停掉所有活跃的 reconciler，进程退出前调用
func (m *Manager) StopAll() {
	m.mu.Lock()
	all := make([]*Reconciler, 0, len(m.active))
	for _, r := range m.active {
		all = append(all, r)
	}
	m.active = make(map[string]*Reconciler)
	m.mu.Unlock()

	for _, r := range all {
		r.Stop()
	}
}
