package model

import "time"

// OpKind 一次文件操作的语义分类
type OpKind string

const (
	OpCreated  OpKind = "created"
	OpModified OpKind = "modified"
	OpDeleted  OpKind = "deleted"
	OpMoved    OpKind = "moved"
)

// FileEvent 底层文件系统通知（未去抖的原始事件）
type FileEvent struct {
	Path      string
	Kind      OpKind
	TimeStamp time.Time
}

// TransferRecord 最终落盘的传输记录，一条对应一次语义上的文件操作
// 写入后不再修改
type TransferRecord struct {
	Timestamp time.Time
	Operation OpKind
	Device    string // 设备展示名
	Path      string // 相对挂载点的路径
	Size      int64
	Ext       string // 小写扩展名，带点；无扩展名为空
	User      string
}
