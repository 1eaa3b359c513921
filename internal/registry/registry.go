// Package registry 维护当前在线可移动设备的权威集合
// 集合只通过 Refresh 的差分更新改变，增删通过订阅回调向外广播
package registry

import (
	"sync"

	"github.com/Hara602/usbTracker/internal/model"
	"go.uber.org/zap"
)

// Callback 设备增删通知，nil 表示不关心对应事件
type Callback func(dev model.Device)

// Registry 在线设备注册表
// 互斥锁只保护集合与订阅者列表，回调一律在锁外触发，允许回调再进入注册表
type Registry struct {
	log *zap.Logger

	mu        sync.Mutex
	devices   map[string]model.Device // device_id -> Device
	onAdded   []Callback
	onRemoved []Callback
}

func New(log *zap.Logger) *Registry {
	return &Registry{
		log:     log,
		devices: make(map[string]model.Device),
	}
}

// Subscribe 注册增删回调，允许多个独立订阅者
func (r *Registry) Subscribe(onAdded, onRemoved Callback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if onAdded != nil {
		r.onAdded = append(r.onAdded, onAdded)
	}
	if onRemoved != nil {
		r.onRemoved = append(r.onRemoved, onRemoved)
	}
}

// Refresh 用一次全量探测结果对在线集合做差分更新
// 先算移除再算新增，同一 device_id 在新旧集合都出现时视为不变
// 返回按探测顺序排列的增删两组设备，并在锁外依次触发回调
func (r *Registry) Refresh(detected []model.Device) (added, removed []model.Device) {
	r.mu.Lock()

	current := make(map[string]bool, len(detected))
	for _, dev := range detected {
		current[dev.ID] = true
	}

	// 移除：已在线但这轮没探测到
	for id, dev := range r.devices {
		if !current[id] {
			removed = append(removed, dev)
		}
	}
	for _, dev := range removed {
		delete(r.devices, dev.ID)
	}

	// 新增：这轮探测到但不在线
	for _, dev := range detected {
		if _, ok := r.devices[dev.ID]; !ok {
			r.devices[dev.ID] = dev
			added = append(added, dev)
		}
	}

	// 拷贝订阅者后解锁再触发，避免回调重入死锁
	onAdded := append([]Callback(nil), r.onAdded...)
	onRemoved := append([]Callback(nil), r.onRemoved...)
	r.mu.Unlock()

	for _, dev := range removed {
		r.dispatch(onRemoved, dev, "remove")
	}
	for _, dev := range added {
		r.dispatch(onAdded, dev, "add")
	}
	return added, removed
}

// dispatch 逐个触发回调，单个回调 panic 只记日志，不影响其余订阅者
func (r *Registry) dispatch(cbs []Callback, dev model.Device, action string) {
	for _, cb := range cbs {
		func() {
			defer func() {
				if p := recover(); p != nil {
					r.log.Error("device callback panic",
						zap.String("action", action),
						zap.String("device", dev.ID),
						zap.Any("panic", p),
					)
				}
			}()
			cb(dev)
		}()
	}
}

// ListConnected 在线设备快照
func (r *Registry) ListConnected() []model.Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Device, 0, len(r.devices))
	for _, dev := range r.devices {
		out = append(out, dev)
	}
	return out
}

// IsConnected 指定设备是否在线
func (r *Registry) IsConnected(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.devices[id]
	return ok
}

// FindByMountPoint 按挂载点查设备
func (r *Registry) FindByMountPoint(mountPoint string) (model.Device, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, dev := range r.devices {
		if dev.MountPoint == mountPoint {
			return dev, true
		}
	}
	return model.Device{}, false
}
