package model

import "time"

// Device 一个已挂载的可移动存储设备
// 相等性只看 ID（序列号或设备节点），其余字段仅用于展示
type Device struct {
	ID          string // 会话内稳定：优先序列号，否则设备节点
	Name        string // 展示名，例如卷标或 product
	MountPoint  string // 挂载根路径，相对路径以它为基准
	Serial      string
	Vendor      string
	Model       string
	ConnectedAt time.Time
}

// Equal 按 ID 判等
func (d Device) Equal(other Device) bool {
	return d.ID == other.ID
}

func (d Device) String() string {
	return d.Name + " (" + d.MountPoint + ")"
}
