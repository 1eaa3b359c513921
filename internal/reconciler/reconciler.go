// Package reconciler 把单个设备上嘈杂的底层文件事件折叠成最终传输记录
//
// 一次用户级操作（如复制）会触发 create + 多次 write 的事件风暴；
// 去抖的方式是按路径维护在途操作表，后到事件覆盖先到事件并重置计时，
// 静默超过完成阈值后由后台清扫协程定稿为恰好一条记录
package reconciler

import (
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Hara602/usbTracker/internal/analysis"
	"github.com/Hara602/usbTracker/internal/config"
	"github.com/Hara602/usbTracker/internal/model"
	"github.com/Hara602/usbTracker/internal/policy"
	"github.com/Hara602/usbTracker/internal/sysutil"
	"github.com/dustin/go-humanize"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Sink 追加一条最终记录，要求单次调用原子写入
type Sink interface {
	Append(rec model.TransferRecord) error
}

const (
	// 在途操作静默超过该阈值即视为完成，经验值而非强保证
	defaultCompletionThreshold = time.Second
	defaultSweepInterval       = 500 * time.Millisecond
	stopTimeout                = 2 * time.Second
)

// pending 一条在途操作，键为绝对路径，后到覆盖先到
type pending struct {
	kind  model.OpKind
	since time.Time
}

// Reconciler 一个已挂载设备的事件去抖器，生命周期与设备接入期一一对应
type Reconciler struct {
	dev  model.Device
	eval *policy.Evaluator
	insp *analysis.TypeInspector
	log  *zap.Logger
	sink []Sink
	user string

	// 测试时可在 Start 前调小
	CompletionThreshold time.Duration
	SweepInterval       time.Duration

	mu       sync.Mutex
	inFlight map[string]pending
	// 目录 -> 最近一次 rename 源事件时间，用于把随后的 create 配对成 moved
	renames map[string]time.Time

	fsw     *fsnotify.Watcher
	stop    chan struct{}
	stopped sync.Once
	wg      sync.WaitGroup
}

func New(dev model.Device, cfg *config.Config, log *zap.Logger, insp *analysis.TypeInspector, sinks ...Sink) *Reconciler {
	return &Reconciler{
		dev:                 dev,
		eval:                policy.NewEvaluator(cfg),
		insp:                insp,
		log:                 log.With(zap.String("device", dev.Name)),
		sink:                sinks,
		user:                sysutil.Username(),
		CompletionThreshold: defaultCompletionThreshold,
		SweepInterval:       defaultSweepInterval,
		inFlight:            make(map[string]pending),
		renames:             make(map[string]time.Time),
		stop:                make(chan struct{}),
	}
}

// Start 给挂载点及其现有子目录挂上 watch，并启动事件泵与定稿清扫协程
func (r *Reconciler) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	r.fsw = fsw

	// fsnotify 不递归，挂载点下现有目录逐个加 watch，新目录在 create 事件里补
	err = filepath.WalkDir(r.dev.MountPoint, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			r.log.Debug("watch walk error", zap.String("path", path), zap.Error(err))
			return nil
		}
		if d.IsDir() {
			if err := fsw.Add(path); err != nil {
				r.log.Warn("add watch failed", zap.String("path", path), zap.Error(err))
			}
		}
		return nil
	})
	if err != nil {
		fsw.Close()
		return err
	}

	r.wg.Add(2)
	go r.pump()
	go r.sweep()

	r.log.Info("👀 file monitoring active", zap.String("mount", r.dev.MountPoint))
	return nil
}

// Stop 停收新事件、停清扫并有界等待两个协程退出
// 停止时仍在途的操作直接丢弃，不强制定稿
func (r *Reconciler) Stop() {
	r.stopped.Do(func() {
		close(r.stop)
		if r.fsw != nil {
			r.fsw.Close()
		}
	})

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(stopTimeout):
		r.log.Warn("reconciler did not stop in time", zap.Duration("timeout", stopTimeout))
	}
}

// pump 事件摄取循环
func (r *Reconciler) pump() {
	defer r.wg.Done()
	for {
		select {
		case <-r.stop:
			return
		case ev, ok := <-r.fsw.Events:
			if !ok {
				return
			}
			r.ingest(ev)
		case err, ok := <-r.fsw.Errors:
			if !ok {
				return
			}
			r.log.Warn("fsnotify error", zap.Error(err))
		}
	}
}

// ingest 单条底层事件进入在途表
// 删除事件无条件记录（文件已不在，查不了大小）；其余先过准入策略
func (r *Reconciler) ingest(ev fsnotify.Event) {
	switch {
	case ev.Op.Has(fsnotify.Create):
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			// 新建目录补 watch，目录本身不算文件操作
			if err := r.fsw.Add(ev.Name); err != nil {
				r.log.Warn("add watch failed", zap.String("path", ev.Name), zap.Error(err))
			}
			return
		}
		kind := model.OpCreated
		if r.pairRename(ev.Name) {
			// rename 源 + create 目的地在完成窗口内配对：按移动落地一次
			kind = model.OpMoved
		}
		if r.eval.ShouldMonitor(ev.Name) {
			r.record(kind, ev.Name)
		}

	case ev.Op.Has(fsnotify.Write):
		if r.eval.ShouldMonitor(ev.Name) {
			r.record(model.OpModified, ev.Name)
		}

	case ev.Op.Has(fsnotify.Remove):
		r.record(model.OpDeleted, ev.Name)

	case ev.Op.Has(fsnotify.Rename):
		// fsnotify 的 rename 只带源路径；留下配对标记，
		// 目的地仍在挂载点内时由随后的 create 事件按 moved 落地，
		// 移出挂载点的场景只有源路径可用，走原始路径的准入判断
		r.mu.Lock()
		r.renames[filepath.Dir(ev.Name)] = time.Now()
		r.mu.Unlock()
		if r.eval.ShouldMonitor(ev.Name) {
			r.record(model.OpMoved, ev.Name)
		}
	}
}

// pairRename create 事件是否能与同目录最近的 rename 源配对
func (r *Reconciler) pairRename(path string) bool {
	dir := filepath.Dir(path)
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.renames[dir]
	if !ok || time.Since(t) > r.CompletionThreshold {
		return false
	}
	delete(r.renames, dir)
	return true
}

// record 写入在途表（覆盖同路径旧条目，即去抖）并立刻做一次非最终的告警评估
func (r *Reconciler) record(kind model.OpKind, path string) {
	r.mu.Lock()
	r.inFlight[path] = pending{kind: kind, since: time.Now()}
	r.mu.Unlock()

	// 即时告警不等去抖窗口，但最终记录只在定稿时落盘
	r.logOperation(kind, path, false)
}

// sweep 定稿清扫循环：把静默超过完成阈值的在途操作定稿
func (r *Reconciler) sweep() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.finalizeExpired()
		}
	}
}

type expired struct {
	path string
	kind model.OpKind
}

// finalizeExpired 锁内只做拷贝和摘除，文件 IO 和落盘都在锁外，
// 慢盘慢库不阻塞并发摄取
func (r *Reconciler) finalizeExpired() {
	now := time.Now()
	var batch []expired

	r.mu.Lock()
	for path, p := range r.inFlight {
		if now.Sub(p.since) > r.CompletionThreshold {
			batch = append(batch, expired{path: path, kind: p.kind})
			delete(r.inFlight, path)
		}
	}
	for dir, t := range r.renames {
		if now.Sub(t) > r.CompletionThreshold {
			delete(r.renames, dir)
		}
	}
	r.mu.Unlock()

	for _, e := range batch {
		if e.kind == model.OpDeleted {
			r.logOperation(e.kind, e.path, true)
			continue
		}
		if _, err := os.Stat(e.path); err == nil {
			r.logOperation(e.kind, e.path, true)
		}
	}
}

// logOperation 分类评估一次操作；final 为真时写入所有落盘 sink
func (r *Reconciler) logOperation(kind model.OpKind, path string, final bool) {
	relPath, err := filepath.Rel(r.dev.MountPoint, path)
	if err != nil {
		relPath = path
	}

	var size int64
	if info, err := os.Stat(path); err == nil {
		size = info.Size()
	}
	ext := policy.Ext(path)

	if r.eval.AlertsEnabled() {
		if r.eval.IsLargeTransfer(size) {
			r.log.Warn("LARGE FILE TRANSFER",
				zap.String("op", string(kind)),
				zap.String("file", relPath),
				zap.String("size", humanize.Bytes(uint64(size))),
				zap.String("user", r.user),
			)
		}
		if r.eval.IsSuspicious(path) {
			r.log.Warn("SUSPICIOUS FILE",
				zap.String("op", string(kind)),
				zap.String("file", relPath),
				zap.Int64("size", size),
				zap.String("user", r.user),
			)
		}
		if r.eval.IsRestrictedTime(time.Now()) {
			r.log.Warn("AFTER-HOURS ACTIVITY",
				zap.String("op", string(kind)),
				zap.String("file", relPath),
				zap.String("user", r.user),
			)
		}
	}

	if !final {
		r.log.Debug("📂 file activity",
			zap.String("op", string(kind)),
			zap.String("file", relPath),
		)
		return
	}

	r.inspectMasquerade(kind, path, relPath)

	rec := model.TransferRecord{
		Timestamp: time.Now(),
		Operation: kind,
		Device:    r.dev.Name,
		Path:      relPath,
		Size:      size,
		Ext:       ext,
		User:      r.user,
	}
	for _, s := range r.sink {
		if err := s.Append(rec); err != nil {
			// 记录视为丢失，不重试，监控链路继续
			r.log.Error("transfer record write failed", zap.String("file", relPath), zap.Error(err))
		}
	}
	r.log.Info("file transfer recorded",
		zap.String("op", string(kind)),
		zap.String("file", relPath),
		zap.Int64("size", size),
	)
}

// inspectMasquerade 定稿时按文件头核验声明类型，伪装文件只告警不拦截
func (r *Reconciler) inspectMasquerade(kind model.OpKind, path, relPath string) {
	if r.insp == nil || kind == model.OpDeleted {
		return
	}
	finding, err := r.insp.Inspect(path)
	if err != nil {
		r.log.Debug("filetype inspect failed", zap.String("file", relPath), zap.Error(err))
		return
	}
	if finding.Masquerade {
		r.log.Warn("MASQUERADE FILE",
			zap.String("file", relPath),
			zap.String("risk", string(finding.Risk)),
			zap.String("detail", finding.Detail),
		)
	}
}
