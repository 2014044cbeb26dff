package collector

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/disk"
	log "github.com/sirupsen/logrus"

	"github.com/han-fei/redismon/agent/internal/models"
	"github.com/han-fei/redismon/internal/utils"
)

// diskstats 每行最少字段数（内核 2.6 格式）
const minDiskStatsFields = 14

// 扇区大小固定为 512 字节
const sectorSize = 512

// DiskStatsSource 磁盘IO计数数据源
type DiskStatsSource struct {
	path    string
	devices map[string]struct{}
	aliases map[string]string

	// 可在测试中替换
	partitions func(ctx context.Context) ([]disk.PartitionStat, error)
	usage      func(ctx context.Context, mountPoint string) (*disk.UsageStat, error)
	resolve    func(path string) (string, error)
}

// NewDiskStatsSource 创建磁盘数据源
//
// devices 为空时只采集已挂载分区对应的设备；aliases 把设备名映射为展示名。
func NewDiskStatsSource(path string, devices []string, aliases map[string]string) *DiskStatsSource {
	s := &DiskStatsSource{
		path:    path,
		devices: make(map[string]struct{}, len(devices)),
		aliases: aliases,
		partitions: func(ctx context.Context) ([]disk.PartitionStat, error) {
			return disk.PartitionsWithContext(ctx, false)
		},
		usage:   disk.UsageWithContext,
		resolve: filepath.EvalSymlinks,
	}
	for _, d := range devices {
		s.devices[d] = struct{}{}
	}
	return s
}

// mountInfo 设备对应的挂载点和使用率
type mountInfo struct {
	display    string
	mountPoint string
	usage      float64
}

// Fetch 读取磁盘计数，返回以展示名为键的结果，section 未使用
func (s *DiskStatsSource) Fetch(ctx context.Context, _ string) (map[string]models.DiskCounters, error) {
	mounts, err := s.mountedDevices(ctx)
	if err != nil {
		if len(s.devices) == 0 {
			return nil, utils.NewError(utils.KindSourceUnavailable, "disk partitions", err)
		}
		log.WithError(err).Warn("获取分区信息失败，磁盘使用率不可用")
	}

	f, err := os.Open(s.path)
	if err != nil {
		return nil, utils.NewError(utils.KindSourceUnavailable, "diskstats", err)
	}
	defer f.Close()

	stats, err := ParseDiskStats(f)
	if err != nil {
		return nil, err
	}

	result := make(map[string]models.DiskCounters)
	for kernelName, counters := range stats {
		mi, mounted := mounts[kernelName]
		display := s.alias(kernelName)
		if mounted {
			display = mi.display
		}

		if len(s.devices) > 0 {
			_, byKernel := s.devices[kernelName]
			_, byDisplay := s.devices[display]
			if !byKernel && !byDisplay {
				continue
			}
		} else if !mounted {
			continue
		}

		counters.Device = display
		if mounted {
			counters.MountPoint = mi.mountPoint
			counters.UsagePercent = mi.usage
		}
		result[display] = counters
	}
	return result, nil
}

// mountedDevices 返回内核设备名到挂载信息的映射
func (s *DiskStatsSource) mountedDevices(ctx context.Context) (map[string]mountInfo, error) {
	parts, err := s.partitions(ctx)
	if err != nil {
		return nil, err
	}

	result := make(map[string]mountInfo)
	for _, p := range parts {
		if !strings.HasPrefix(p.Device, "/dev/") {
			continue
		}
		// /dev/mapper/vg--redis-lv--redis 在 diskstats 中是 dm-N
		kernelName := filepath.Base(p.Device)
		if target, err := s.resolve(p.Device); err == nil {
			kernelName = filepath.Base(target)
		}
		if _, seen := result[kernelName]; seen {
			continue
		}

		display := filepath.Base(p.Device)
		if a, ok := s.aliases[display]; ok {
			display = a
		} else {
			display = s.alias(kernelName)
		}

		mi := mountInfo{display: display, mountPoint: p.Mountpoint}
		if u, err := s.usage(ctx, p.Mountpoint); err == nil {
			mi.usage = u.UsedPercent
		} else {
			log.WithError(err).WithField("mount", p.Mountpoint).Debug("获取挂载点使用率失败")
		}
		result[kernelName] = mi
	}
	return result, nil
}

func (s *DiskStatsSource) alias(name string) string {
	if a, ok := s.aliases[name]; ok {
		return a
	}
	return name
}

// ParseDiskStats 解析 /proc/diskstats，键为内核设备名
//
// 字段不足或数值非法的行会让整次读取失败，返回 MalformedCounterLine。
func ParseDiskStats(r io.Reader) (map[string]models.DiskCounters, error) {
	result := make(map[string]models.DiskCounters)
	scanner := bufio.NewScanner(r)
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if len(fields) < minDiskStatsFields {
			return nil, utils.NewError(utils.KindMalformedCounterLine, "diskstats",
				fmt.Errorf("line %d: %d fields, want at least %d", lineNo, len(fields), minDiskStatsFields))
		}

		device := fields[2]
		// 跳过循环设备和内存盘
		if strings.HasPrefix(device, "loop") || strings.HasPrefix(device, "ram") {
			continue
		}

		var v [6]uint64
		for i, idx := range []int{3, 5, 6, 7, 9, 10} {
			n, err := strconv.ParseUint(fields[idx], 10, 64)
			if err != nil {
				return nil, utils.NewError(utils.KindMalformedCounterLine, "diskstats",
					fmt.Errorf("line %d field %d: %w", lineNo, idx+1, err))
			}
			v[i] = n
		}

		result[device] = models.DiskCounters{
			Device:      device,
			ReadIOs:     v[0],
			ReadBytes:   v[1] * sectorSize,
			ReadTimeMs:  v[2],
			WriteIOs:    v[3],
			WriteBytes:  v[4] * sectorSize,
			WriteTimeMs: v[5],
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, utils.NewError(utils.KindSourceUnavailable, "diskstats", err)
	}
	return result, nil
}
