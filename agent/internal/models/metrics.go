package models

// DiskCounters 一块磁盘在一次读取中的原始累计值
type DiskCounters struct {
	Device       string  // 设备名称（已应用别名）
	MountPoint   string  // 挂载点
	ReadIOs      uint64  // 读完成次数
	ReadTimeMs   uint64  // 读耗时（毫秒）
	WriteIOs     uint64  // 写完成次数
	WriteTimeMs  uint64  // 写耗时（毫秒）
	ReadBytes    uint64  // 读取字节数
	WriteBytes   uint64  // 写入字节数
	UsagePercent float64 // 挂载点使用率（百分比），不是计数器
}

// 磁盘计数元组下标
const (
	DiskReadIOs = iota
	DiskReadTime
	DiskWriteIOs
	DiskWriteTime
	DiskReadBytes
	DiskWriteBytes
)

// Tuple 按固定顺序返回计数器元组
func (d DiskCounters) Tuple() []uint64 {
	return []uint64{d.ReadIOs, d.ReadTimeMs, d.WriteIOs, d.WriteTimeMs, d.ReadBytes, d.WriteBytes}
}

// NetworkCounters 一个网络接口的原始累计值
type NetworkCounters struct {
	Interface string
	RxBytes   uint64
	RxPackets uint64
	RxErrors  uint64
	RxDropped uint64
	TxBytes   uint64
	TxPackets uint64
	TxErrors  uint64
	TxDropped uint64
}

// 网络计数元组下标
const (
	NetRxBytes = iota
	NetRxPackets
	NetRxErrors
	NetRxDropped
	NetTxBytes
	NetTxPackets
	NetTxErrors
	NetTxDropped
)

// Tuple 按固定顺序返回计数器元组
func (n NetworkCounters) Tuple() []uint64 {
	return []uint64{
		n.RxBytes, n.RxPackets, n.RxErrors, n.RxDropped,
		n.TxBytes, n.TxPackets, n.TxErrors, n.TxDropped,
	}
}

// HostInfo 主机信息
type HostInfo struct {
	Hostname    string `json:"hostname"`
	CPUCores    int    `json:"cpu_cores"`
	CPUModel    string `json:"cpu_model"`
	TotalMemory uint64 `json:"total_memory"` // 总内存（字节）
}
