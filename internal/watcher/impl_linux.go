//go:build linux

package watcher

import (
	"bufio"
	"context"
	"os"
	"strings"
	"time"

	"github.com/Hara602/usbTracker/internal/config"
	"github.com/Hara602/usbTracker/internal/detect"
	"github.com/Hara602/usbTracker/internal/registry"
	"github.com/pilebones/go-udev/netlink"
	"go.uber.org/zap"
)

// linuxWatcher 订阅 NETLINK_KOBJECT_UEVENT 的原生事件模式
// netlink 连接失败时整体退化为轮询
type linuxWatcher struct {
	reg  *registry.Registry
	det  detect.Detector
	log  *zap.Logger
	poll *pollWatcher
	done chan struct{}

	native bool
}

func newWatcher(reg *registry.Registry, det detect.Detector, cfg *config.Config, log *zap.Logger) DeviceWatcher {
	interval := time.Duration(cfg.Monitoring.CheckIntervalSeconds) * time.Second
	return &linuxWatcher{
		reg:  reg,
		det:  det,
		log:  log,
		poll: newPollWatcher(reg, det, interval, log),
		done: make(chan struct{}),
	}
}

func (w *linuxWatcher) Start(ctx context.Context) error {
	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		w.log.Warn("udev netlink unavailable, falling back to polling", zap.Error(err))
		return w.poll.Start(ctx)
	}
	w.native = true

	queue := make(chan netlink.UEvent, 16)
	errChan := make(chan error, 1)
	quit := conn.Monitor(queue, errChan, nil)

	go func() {
		defer close(w.done)
		defer conn.Close()

		w.log.Info("udev device watcher started")

		// 先补一轮全量，覆盖启动前已插入的设备
		refreshOnce(w.reg, w.det, w.log)

		for {
			select {
			case <-ctx.Done():
				close(quit)
				return

			case <-errChan:
				// 底层网络错误忽略，继续收事件
				continue

			case uevent := <-queue:
				w.handleUdevEvent(ctx, uevent)
			}
		}
	}()
	return nil
}

func (w *linuxWatcher) Stop() {
	if !w.native {
		w.poll.Stop()
		return
	}
	join(w.done, w.log)
}

// handleUdevEvent 只关心块设备分区的增删
// udev 事件本身元数据不全，统一通过全量探测 + 注册表差分来收敛
func (w *linuxWatcher) handleUdevEvent(ctx context.Context, uevent netlink.UEvent) {
	if uevent.Env["SUBSYSTEM"] != "block" || uevent.Env["DEVTYPE"] != "partition" {
		return
	}

	switch uevent.Action {
	case "add":
		devName := uevent.Env["DEVNAME"]
		if !strings.HasPrefix(devName, "/dev") {
			devName = "/dev/" + devName
		}
		// 挂载可能晚于 uevent 到达，等挂载点就绪后再刷新
		go func() {
			if mount := waitForMount(ctx, devName); mount == "" {
				w.log.Warn("device detected but mount point not found (timeout)",
					zap.String("dev", devName))
				return
			}
			refreshOnce(w.reg, w.det, w.log)
		}()

	case "remove":
		refreshOnce(w.reg, w.det, w.log)
	}
}

// waitForMount 轮询 /proc/mounts 等待设备挂载，约 3 秒超时
func waitForMount(ctx context.Context, devPath string) string {
	for i := 0; i < 30; i++ {
		if ctx.Err() != nil {
			return ""
		}
		if mount := findMount(devPath); mount != "" {
			return mount
		}
		time.Sleep(100 * time.Millisecond)
	}
	return ""
}

func findMount(devPath string) string {
	f, err := os.Open("/proc/mounts")
	if err != nil {
		return ""
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) >= 2 && fields[0] == devPath {
			return fields[1]
		}
	}
	return ""
}
