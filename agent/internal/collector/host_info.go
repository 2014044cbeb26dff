package collector

import (
	"context"
	"strings"
	"sync"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/han-fei/redismon/agent/internal/models"
	"github.com/han-fei/redismon/internal/utils"
)

// HostInfoSource 主机 CPU 和内存信息，首次成功后缓存
type HostInfoSource struct {
	hostname string

	mu     sync.Mutex
	cached *models.HostInfo
}

// NewHostInfoSource 创建主机信息数据源，hostname 为空时自动获取
func NewHostInfoSource(hostname string) *HostInfoSource {
	return &HostInfoSource{hostname: hostname}
}

// Fetch 返回主机信息
func (s *HostInfoSource) Fetch(ctx context.Context) (*models.HostInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != nil {
		info := *s.cached
		return &info, nil
	}

	info := &models.HostInfo{Hostname: s.hostname}
	if info.Hostname == "" {
		h, err := host.InfoWithContext(ctx)
		if err != nil {
			return nil, utils.NewError(utils.KindSourceUnavailable, "host info", err)
		}
		info.Hostname = h.Hostname
	}

	cores, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		return nil, utils.NewError(utils.KindSourceUnavailable, "cpu counts", err)
	}
	info.CPUCores = cores

	cpus, err := cpu.InfoWithContext(ctx)
	if err != nil {
		return nil, utils.NewError(utils.KindSourceUnavailable, "cpu info", err)
	}
	if len(cpus) > 0 {
		info.CPUModel = strings.Join(strings.Fields(cpus[0].ModelName), " ")
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, utils.NewError(utils.KindSourceUnavailable, "memory info", err)
	}
	info.TotalMemory = vm.Total

	s.cached = info
	out := *info
	return &out, nil
}
