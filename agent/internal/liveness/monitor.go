// Package liveness 根据 PID 文件判断被监控进程是否存活。
package liveness

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
)

// Status 一次存活检查的结果
type Status struct {
	Alive               bool
	PID                 int32
	ResidentMemoryBytes uint64 // 仅在 Alive 时有效
}

// Dead 进程未运行
var Dead = Status{}

// Monitor 存活检查器
type Monitor struct {
	pidFile string
}

// NewMonitor 创建存活检查器
func NewMonitor(pidFile string) *Monitor {
	return &Monitor{pidFile: pidFile}
}

// PidFile 返回 PID 文件路径
func (m *Monitor) PidFile() string {
	return m.pidFile
}

// Check 读取 PID 文件并检查进程
//
// PID 文件不存在或进程不存在都返回 Dead 且没有错误；PID 文件内容非法时返回 Dead 和错误。
func (m *Monitor) Check(ctx context.Context) (Status, error) {
	data, err := os.ReadFile(m.pidFile)
	if errors.Is(err, fs.ErrNotExist) {
		return Dead, nil
	}
	if err != nil {
		return Dead, fmt.Errorf("read pid file %s: %w", m.pidFile, err)
	}

	pid, err := parsePID(data)
	if err != nil {
		return Dead, fmt.Errorf("pid file %s: %w", m.pidFile, err)
	}

	exists, err := process.PidExistsWithContext(ctx, pid)
	if err != nil {
		return Dead, fmt.Errorf("lookup pid %d: %w", pid, err)
	}
	if !exists {
		return Dead, nil
	}

	proc, err := process.NewProcessWithContext(ctx, pid)
	if errors.Is(err, process.ErrorProcessNotRunning) {
		return Dead, nil
	}
	if err != nil {
		return Dead, fmt.Errorf("open pid %d: %w", pid, err)
	}

	mem, err := proc.MemoryInfoWithContext(ctx)
	if err != nil {
		// 进程在两次查询之间退出
		if running, rerr := proc.IsRunningWithContext(ctx); rerr == nil && !running {
			return Dead, nil
		}
		return Dead, fmt.Errorf("memory info pid %d: %w", pid, err)
	}

	return Status{Alive: true, PID: pid, ResidentMemoryBytes: mem.RSS}, nil
}

func parsePID(data []byte) (int32, error) {
	s := strings.TrimSpace(string(data))
	if s == "" {
		return 0, errors.New("empty")
	}
	pid, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, err
	}
	if pid <= 0 {
		return 0, fmt.Errorf("invalid pid %d", pid)
	}
	return int32(pid), nil
}
