package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/han-fei/redismon/agent/internal/models"
)

// ConsoleSink 把快照写到终端，json 每行一个对象，text 为保留两位小数的可读格式
type ConsoleSink struct {
	w      io.Writer
	format string
	mu     sync.Mutex
}

// NewConsoleSink 创建控制台输出端
func NewConsoleSink(w io.Writer, format string) *ConsoleSink {
	return &ConsoleSink{w: w, format: format}
}

// Accept 实现 Sink
func (c *ConsoleSink) Accept(_ context.Context, snap *models.Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.format == "text" {
		_, err := io.WriteString(c.w, FormatText(snap)+"\n")
		return err
	}
	return json.NewEncoder(c.w).Encode(snap)
}

// FormatText 单行文本格式
func FormatText(snap *models.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s status=%s alive=%t", snap.Timestamp.Format(time.RFC3339), snap.Status, snap.Alive)
	if snap.ResidentMemoryBytes != nil {
		fmt.Fprintf(&b, " rss=%.2fMB", float64(*snap.ResidentMemoryBytes)/1024/1024)
	}
	if snap.QPS != nil {
		fmt.Fprintf(&b, " qps=%.2f", *snap.QPS)
	}
	if snap.TPS != nil {
		fmt.Fprintf(&b, " tps=%.2f", *snap.TPS)
	}
	if snap.ConnectedClients != nil {
		fmt.Fprintf(&b, " clients=%d", *snap.ConnectedClients)
	}
	if snap.TotalKeys != nil {
		fmt.Fprintf(&b, " keys=%d", *snap.TotalKeys)
	}

	for _, name := range sortedKeys(snap.Disks) {
		d := snap.Disks[name]
		fmt.Fprintf(&b, " disk[%s] util=%.2f%% r=%.2fKB/s w=%.2fKB/s await=%.2fms",
			name, d.Utilization, d.ReadKBps, d.WriteKBps, d.IOAwaitMs)
	}
	for _, name := range sortedKeys(snap.Interfaces) {
		n := snap.Interfaces[name]
		fmt.Fprintf(&b, " net[%s] rx=%.2fB/s tx=%.2fB/s", name, n.RxBytesPS, n.TxBytesPS)
	}
	for _, e := range snap.Errors {
		fmt.Fprintf(&b, " error[%s]=%s", e.Source, e.Kind)
	}
	return b.String()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
