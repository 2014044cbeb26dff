package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/han-fei/redismon/internal/utils"
)

func TestNewServerInfoAppliesAllowList(t *testing.T) {
	raw := map[string]string{
		"redis_version":             "7.2.4",
		"total_commands_processed":  "1500",
		"instantaneous_ops_per_sec": "480",
		"mem_fragmentation_ratio":   "1.23",
		"instantaneous_input_kbps":  "0.50",
		"connected_clients":         "3",
		"role":                      "master",
		"used_cpu_sys":              "1.0",
		"db0":                       "keys=10,expires=2,avg_ttl=300",
		"db3":                       "keys=5,expires=0,avg_ttl=0",
	}

	info, err := NewServerInfo(raw)
	require.NoError(t, err)

	require.NotNil(t, info.RedisVersion)
	assert.Equal(t, "7.2.4", *info.RedisVersion)
	assert.Equal(t, int64(1500), *info.TotalCommandsProcessed)
	assert.Equal(t, int64(480), *info.InstantaneousOpsPerSec)
	assert.InDelta(t, 1.23, *info.MemFragmentationRatio, 1e-9)
	assert.Nil(t, info.UsedMemory)
	assert.Equal(t, KeyspaceDB{Keys: 10, Expires: 2, AvgTTL: 300}, info.Keyspace["db0"])
	assert.Equal(t, int64(15), *info.TotalKeys)
}

func TestNewServerInfoReportsBadField(t *testing.T) {
	info, err := NewServerInfo(map[string]string{
		"used_memory":       "lots",
		"connected_clients": "7",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "used_memory")
	assert.Nil(t, info.UsedMemory)
	assert.Equal(t, int64(7), *info.ConnectedClients)
}

func TestSnapshotJSONShape(t *testing.T) {
	version := "7.0.0"
	rss := uint64(4096)
	snap := Snapshot{
		Timestamp:  time.Unix(0, 0).UTC(),
		Status:     StatusPartial,
		ServerInfo: ServerInfo{RedisVersion: &version},
		QPS:        Float64(480),
		TPS:        Float64(500),
		Disks: map[string]DiskRate{
			"vdd": {Utilization: 12.5, ReadKBps: 500, WriteKBps: 250},
		},
		Interfaces: map[string]NetworkRate{
			"eth0": {RxBytesPS: 10},
		},
		Alive:               true,
		ResidentMemoryBytes: &rss,
		Errors: []SnapshotError{
			{Source: "netdev", Kind: utils.KindMalformedCounterLine, Message: "short line"},
		},
	}

	data, err := json.Marshal(snap)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))

	assert.Equal(t, "7.0.0", m["redis_version"])
	assert.Equal(t, 480.0, m["qps"])
	assert.Equal(t, 500.0, m["tps"])
	assert.Equal(t, true, m["alive"])
	assert.Equal(t, 4096.0, m["resident_memory_bytes"])
	assert.NotContains(t, m, "used_memory")
	assert.Contains(t, m["disks"], "vdd")
	assert.Contains(t, m["interfaces"], "eth0")
	assert.True(t, snap.HasErrorKind(utils.KindMalformedCounterLine))
	assert.False(t, snap.HasErrorKind(utils.KindSourceUnavailable))
}

func TestBytesToKB(t *testing.T) {
	assert.Equal(t, 500.0, BytesToKB(512000))
}

func TestServerInfoNumbers(t *testing.T) {
	info, err := NewServerInfo(map[string]string{
		"redis_version":           "7.0.0",
		"connected_clients":       "3",
		"mem_fragmentation_ratio": "1.5",
		"db0":                     "keys=4,expires=0,avg_ttl=0",
	})
	require.NoError(t, err)

	n := info.Numbers()
	assert.Equal(t, map[string]float64{
		"connected_clients":       3,
		"mem_fragmentation_ratio": 1.5,
		"total_keys":              4,
	}, n)
}
