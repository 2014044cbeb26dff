package models

import (
	"time"

	"github.com/han-fei/redismon/internal/utils"
)

// 快照状态
const (
	StatusOK      = "ok"      // 全部数据源成功
	StatusPartial = "partial" // 部分数据源失败
	StatusDown    = "down"    // 进程不存活，未采集
)

// Snapshot 一次采集周期的完整结果，构建完成后不再修改
type Snapshot struct {
	Timestamp time.Time `json:"timestamp"`
	HostID    string    `json:"host_id,omitempty"`
	Status    string    `json:"status"`

	ServerInfo

	QPS    *float64 `json:"qps,omitempty"`
	TPS    *float64 `json:"tps,omitempty"`
	QPSAvg *float64 `json:"qps_avg,omitempty"`
	TPSAvg *float64 `json:"tps_avg,omitempty"`

	Disks      map[string]DiskRate    `json:"disks,omitempty"`
	Interfaces map[string]NetworkRate `json:"interfaces,omitempty"`

	Alive               bool      `json:"alive"`
	PID                 int32     `json:"pid,omitempty"`
	ResidentMemoryBytes *uint64   `json:"resident_memory_bytes,omitempty"`
	Host                *HostInfo `json:"host,omitempty"`

	Errors []SnapshotError `json:"errors,omitempty"`
}

// DiskRate 单块磁盘的速率结果
type DiskRate struct {
	MountPoint  string  `json:"mount_point,omitempty"`
	Utilization float64 `json:"utilization"` // 挂载点使用率 %
	ReadKBps    float64 `json:"read_kb_ps"`
	WriteKBps   float64 `json:"write_kb_ps"`
	IOAwaitMs   float64 `json:"io_await_ms"` // 平均每次 IO 耗时
}

// NetworkRate 单个网络接口的速率结果（每秒）
type NetworkRate struct {
	RxBytesPS   float64 `json:"rx_bytes_ps"`
	RxPacketsPS float64 `json:"rx_packets_ps"`
	RxErrorsPS  float64 `json:"rx_errors_ps"`
	RxDroppedPS float64 `json:"rx_dropped_ps"`
	TxBytesPS   float64 `json:"tx_bytes_ps"`
	TxPacketsPS float64 `json:"tx_packets_ps"`
	TxErrorsPS  float64 `json:"tx_errors_ps"`
	TxDroppedPS float64 `json:"tx_dropped_ps"`
}

// SnapshotError 快照中记录的单个数据源错误
type SnapshotError struct {
	Source  string     `json:"source"`
	Kind    utils.Kind `json:"kind"`
	Message string     `json:"message"`
}

// HasErrorKind 判断快照是否包含某类错误
func (s *Snapshot) HasErrorKind(kind utils.Kind) bool {
	for _, e := range s.Errors {
		if e.Kind == kind {
			return true
		}
	}
	return false
}

// BytesToKB 字节转 KB
func BytesToKB(b float64) float64 {
	return b / 1024
}

// Float64 返回指向 v 的指针
func Float64(v float64) *float64 {
	return &v
}
