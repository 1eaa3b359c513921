//go:build linux

package detect

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Hara602/usbTracker/internal/model"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

type linuxDetector struct {
	log *zap.Logger
}

func newDetector(log *zap.Logger) Detector {
	return &linuxDetector{log: log}
}

// Detect 扫描 /proc/mounts，对每个已挂载分区回溯 sysfs 判断是否在 USB 总线上
func (d *linuxDetector) Detect() ([]model.Device, error) {
	f, err := os.Open("/proc/mounts")
	if err != nil {
		return nil, fmt.Errorf("open /proc/mounts: %w", err)
	}
	defer f.Close()

	var devices []model.Device
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		devPath, mountPoint := fields[0], fields[1]

		// 只看 /dev/ 下的真实块设备，loop 设备排除
		if !strings.HasPrefix(devPath, "/dev/") || strings.HasPrefix(devPath, "/dev/loop") {
			continue
		}

		dev, ok := d.inspect(devPath, mountPoint)
		if !ok {
			continue
		}
		devices = append(devices, dev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan /proc/mounts: %w", err)
	}
	return devices, nil
}

// inspect 通过 /sys/class/block/{name} 回溯到 USB 设备根目录并采集信息
func (d *linuxDetector) inspect(devPath, mountPoint string) (model.Device, bool) {
	sysPath := "/sys/class/block/" + filepath.Base(devPath)
	realSysPath, err := filepath.EvalSymlinks(sysPath)
	if err != nil {
		return model.Device{}, false
	}

	usbRoot := findUSBRoot(realSysPath)
	if _, err := os.Stat(filepath.Join(usbRoot, "idVendor")); err != nil {
		// 不在 USB 总线上
		return model.Device{}, false
	}

	serial := readAttr(usbRoot, "serial")
	product := readAttr(usbRoot, "product")
	vendor := readAttr(usbRoot, "manufacturer")

	// ID 优先序列号，拿不到时退化为设备节点
	id := serial
	if id == "" {
		id = devPath
	}
	name := product
	if name == "" {
		name = filepath.Base(devPath)
	}

	if total, free, err := statfs(mountPoint); err == nil {
		d.log.Debug("mounted filesystem stats",
			zap.String("mount", mountPoint),
			zap.Uint64("total_bytes", total),
			zap.Uint64("free_bytes", free),
		)
	}

	return model.Device{
		ID:          id,
		Name:        name,
		MountPoint:  mountPoint,
		Serial:      serial,
		Vendor:      vendor,
		Model:       product,
		ConnectedAt: time.Now(),
	}, true
}

// findUSBRoot 向上回溯 sysfs 目录树，找到带 idVendor 的 USB 设备根目录
// 最多 10 层，找不到时返回原路径，后续属性读取会得到空值
func findUSBRoot(path string) string {
	dir := path
	for i := 0; i < 10; i++ {
		dir = filepath.Dir(dir)
		if dir == "/" || dir == "." {
			break
		}
		if _, err := os.Stat(filepath.Join(dir, "idVendor")); err == nil {
			return dir
		}
	}
	return path
}

func readAttr(root, name string) string {
	b, err := os.ReadFile(filepath.Join(root, name))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

func statfs(mountPoint string) (total, free uint64, err error) {
	var st unix.Statfs_t
	if err := unix.Statfs(mountPoint, &st); err != nil {
		return 0, 0, err
	}
	bsize := uint64(st.Bsize)
	return st.Blocks * bsize, st.Bavail * bsize, nil
}
