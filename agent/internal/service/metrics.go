package service

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/han-fei/redismon/agent/internal/models"
)

// snapshotMetrics 最近一次快照对应的 Prometheus 指标
type snapshotMetrics struct {
	up       prometheus.Gauge
	rss      prometheus.Gauge
	qps      prometheus.Gauge
	tps      prometheus.Gauge
	server   *prometheus.GaugeVec
	diskUtil *prometheus.GaugeVec
	diskKBps *prometheus.GaugeVec
	ioAwait  *prometheus.GaugeVec
	netBytes *prometheus.GaugeVec
	errors   *prometheus.CounterVec
	polls    prometheus.Counter
}

func newSnapshotMetrics(reg prometheus.Registerer) *snapshotMetrics {
	m := &snapshotMetrics{
		up: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "redismon",
			Name:      "up",
			Help:      "Whether the monitored redis process is alive",
		}),
		rss: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "redismon",
			Name:      "resident_memory_bytes",
			Help:      "Resident memory of the monitored process",
		}),
		qps: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "redismon",
			Name:      "qps",
			Help:      "instantaneous_ops_per_sec reported by redis",
		}),
		tps: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "redismon",
			Name:      "tps",
			Help:      "Commands processed per second between polls",
		}),
		server: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "redismon",
			Name:      "server_info",
			Help:      "Allow-listed numeric fields of redis INFO",
		}, []string{"field"}),
		diskUtil: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "redismon",
			Subsystem: "disk",
			Name:      "utilization_percent",
			Help:      "Used space of the mount point",
		}, []string{"device", "mount"}),
		diskKBps: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "redismon",
			Subsystem: "disk",
			Name:      "kilobytes_per_second",
			Help:      "Disk throughput in KB/s",
		}, []string{"device", "direction"}),
		ioAwait: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "redismon",
			Subsystem: "disk",
			Name:      "io_await_milliseconds",
			Help:      "Average time per completed IO",
		}, []string{"device"}),
		netBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "redismon",
			Subsystem: "network",
			Name:      "bytes_per_second",
			Help:      "Interface throughput",
		}, []string{"interface", "direction"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "redismon",
			Name:      "poll_errors_total",
			Help:      "Source errors by kind",
		}, []string{"source", "kind"}),
		polls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "redismon",
			Name:      "polls_total",
			Help:      "Snapshots received",
		}),
	}
	reg.MustRegister(m.up, m.rss, m.qps, m.tps, m.server, m.diskUtil, m.diskKBps,
		m.ioAwait, m.netBytes, m.errors, m.polls)
	return m
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// observe 用快照刷新指标，已消失的磁盘和接口被移除
func (m *snapshotMetrics) observe(snap *models.Snapshot) {
	m.polls.Inc()
	m.up.Set(boolToFloat(snap.Alive))
	for _, e := range snap.Errors {
		m.errors.WithLabelValues(e.Source, string(e.Kind)).Inc()
	}
	if !snap.Alive {
		return
	}

	if snap.ResidentMemoryBytes != nil {
		m.rss.Set(float64(*snap.ResidentMemoryBytes))
	}
	if snap.QPS != nil {
		m.qps.Set(*snap.QPS)
	}
	if snap.TPS != nil {
		m.tps.Set(*snap.TPS)
	}
	m.server.Reset()
	for field, v := range snap.ServerInfo.Numbers() {
		m.server.WithLabelValues(field).Set(v)
	}

	m.diskUtil.Reset()
	m.diskKBps.Reset()
	m.ioAwait.Reset()
	for dev, d := range snap.Disks {
		m.diskUtil.WithLabelValues(dev, d.MountPoint).Set(d.Utilization)
		m.diskKBps.WithLabelValues(dev, "read").Set(d.ReadKBps)
		m.diskKBps.WithLabelValues(dev, "write").Set(d.WriteKBps)
		m.ioAwait.WithLabelValues(dev).Set(d.IOAwaitMs)
	}

	m.netBytes.Reset()
	for iface, n := range snap.Interfaces {
		m.netBytes.WithLabelValues(iface, "rx").Set(n.RxBytesPS)
		m.netBytes.WithLabelValues(iface, "tx").Set(n.TxBytesPS)
	}
}
