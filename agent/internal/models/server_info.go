package models

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// AllowList Redis INFO 中采集的字段，名称保持与 INFO 输出一致
var AllowList = []string{
	// server
	"redis_version",
	"uptime_in_seconds",
	"uptime_in_days",
	// memory
	"used_memory",
	"used_memory_rss",
	"mem_fragmentation_ratio",
	"total_system_memory",
	// stats
	"total_connections_received",
	"total_commands_processed",
	"instantaneous_ops_per_sec",
	"total_net_input_bytes",
	"total_net_output_bytes",
	"instantaneous_input_kbps",
	"instantaneous_output_kbps",
	"rejected_connections",
	"expired_keys",
	"evicted_keys",
	"keyspace_hits",
	"keyspace_misses",
	// clients
	"connected_clients",
	"blocked_clients",
}

// ServerInfo 白名单内的 Redis 服务端指标，未上报的字段为 nil
type ServerInfo struct {
	RedisVersion             *string  `json:"redis_version,omitempty"`
	UptimeInSeconds          *int64   `json:"uptime_in_seconds,omitempty"`
	UptimeInDays             *int64   `json:"uptime_in_days,omitempty"`
	UsedMemory               *int64   `json:"used_memory,omitempty"`
	UsedMemoryRSS            *int64   `json:"used_memory_rss,omitempty"`
	MemFragmentationRatio    *float64 `json:"mem_fragmentation_ratio,omitempty"`
	TotalSystemMemory        *int64   `json:"total_system_memory,omitempty"`
	TotalConnectionsReceived *int64   `json:"total_connections_received,omitempty"`
	TotalCommandsProcessed   *int64   `json:"total_commands_processed,omitempty"`
	InstantaneousOpsPerSec   *int64   `json:"instantaneous_ops_per_sec,omitempty"`
	TotalNetInputBytes       *int64   `json:"total_net_input_bytes,omitempty"`
	TotalNetOutputBytes      *int64   `json:"total_net_output_bytes,omitempty"`
	InstantaneousInputKbps   *float64 `json:"instantaneous_input_kbps,omitempty"`
	InstantaneousOutputKbps  *float64 `json:"instantaneous_output_kbps,omitempty"`
	RejectedConnections      *int64   `json:"rejected_connections,omitempty"`
	ExpiredKeys              *int64   `json:"expired_keys,omitempty"`
	EvictedKeys              *int64   `json:"evicted_keys,omitempty"`
	KeyspaceHits             *int64   `json:"keyspace_hits,omitempty"`
	KeyspaceMisses           *int64   `json:"keyspace_misses,omitempty"`
	ConnectedClients         *int64   `json:"connected_clients,omitempty"`
	BlockedClients           *int64   `json:"blocked_clients,omitempty"`

	Keyspace  map[string]KeyspaceDB `json:"keyspace,omitempty"`
	TotalKeys *int64                `json:"total_keys,omitempty"`
}

// KeyspaceDB keyspace 分区中单个库的统计
type KeyspaceDB struct {
	Keys    int64 `json:"keys"`
	Expires int64 `json:"expires"`
	AvgTTL  int64 `json:"avg_ttl"`
}

type fieldSetter func(s *ServerInfo, v string) error

func intField(ptr func(*ServerInfo) **int64) fieldSetter {
	return func(s *ServerInfo, v string) error {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return err
		}
		*ptr(s) = &n
		return nil
	}
}

func floatField(ptr func(*ServerInfo) **float64) fieldSetter {
	return func(s *ServerInfo, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*ptr(s) = &f
		return nil
	}
}

var serverFields = map[string]fieldSetter{
	"redis_version": func(s *ServerInfo, v string) error {
		s.RedisVersion = &v
		return nil
	},
	"uptime_in_seconds":          intField(func(s *ServerInfo) **int64 { return &s.UptimeInSeconds }),
	"uptime_in_days":             intField(func(s *ServerInfo) **int64 { return &s.UptimeInDays }),
	"used_memory":                intField(func(s *ServerInfo) **int64 { return &s.UsedMemory }),
	"used_memory_rss":            intField(func(s *ServerInfo) **int64 { return &s.UsedMemoryRSS }),
	"mem_fragmentation_ratio":    floatField(func(s *ServerInfo) **float64 { return &s.MemFragmentationRatio }),
	"total_system_memory":        intField(func(s *ServerInfo) **int64 { return &s.TotalSystemMemory }),
	"total_connections_received": intField(func(s *ServerInfo) **int64 { return &s.TotalConnectionsReceived }),
	"total_commands_processed":   intField(func(s *ServerInfo) **int64 { return &s.TotalCommandsProcessed }),
	"instantaneous_ops_per_sec":  intField(func(s *ServerInfo) **int64 { return &s.InstantaneousOpsPerSec }),
	"total_net_input_bytes":      intField(func(s *ServerInfo) **int64 { return &s.TotalNetInputBytes }),
	"total_net_output_bytes":     intField(func(s *ServerInfo) **int64 { return &s.TotalNetOutputBytes }),
	"instantaneous_input_kbps":   floatField(func(s *ServerInfo) **float64 { return &s.InstantaneousInputKbps }),
	"instantaneous_output_kbps":  floatField(func(s *ServerInfo) **float64 { return &s.InstantaneousOutputKbps }),
	"rejected_connections":       intField(func(s *ServerInfo) **int64 { return &s.RejectedConnections }),
	"expired_keys":               intField(func(s *ServerInfo) **int64 { return &s.ExpiredKeys }),
	"evicted_keys":               intField(func(s *ServerInfo) **int64 { return &s.EvictedKeys }),
	"keyspace_hits":              intField(func(s *ServerInfo) **int64 { return &s.KeyspaceHits }),
	"keyspace_misses":            intField(func(s *ServerInfo) **int64 { return &s.KeyspaceMisses }),
	"connected_clients":          intField(func(s *ServerInfo) **int64 { return &s.ConnectedClients }),
	"blocked_clients":            intField(func(s *ServerInfo) **int64 { return &s.BlockedClients }),
}

// NewServerInfo 按白名单从 INFO 原始键值中构建 ServerInfo
//
// 无法解析的字段保持为 nil，并在返回的错误中逐一列出。
func NewServerInfo(raw map[string]string) (ServerInfo, error) {
	var info ServerInfo
	var errs []error

	for _, name := range AllowList {
		v, ok := raw[name]
		if !ok {
			continue
		}
		if err := serverFields[name](&info, v); err != nil {
			errs = append(errs, fmt.Errorf("field %s=%q: %w", name, v, err))
		}
	}

	keyspace, err := ParseKeyspace(raw)
	if err != nil {
		errs = append(errs, err)
	}
	if len(keyspace) > 0 {
		info.Keyspace = keyspace
		var total int64
		for _, db := range keyspace {
			total += db.Keys
		}
		info.TotalKeys = &total
	}

	return info, errors.Join(errs...)
}

// ParseKeyspace 解析 keyspace 分区，如 db0:keys=1,expires=0,avg_ttl=0
func ParseKeyspace(raw map[string]string) (map[string]KeyspaceDB, error) {
	names := make([]string, 0)
	for k := range raw {
		if isDBName(k) {
			names = append(names, k)
		}
	}
	sort.Strings(names)

	var errs []error
	result := make(map[string]KeyspaceDB, len(names))
	for _, name := range names {
		var db KeyspaceDB
		for _, part := range strings.Split(raw[name], ",") {
			k, v, ok := strings.Cut(part, "=")
			if !ok {
				continue
			}
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("keyspace %s %s=%q: %w", name, k, v, err))
				continue
			}
			switch k {
			case "keys":
				db.Keys = n
			case "expires":
				db.Expires = n
			case "avg_ttl":
				db.AvgTTL = n
			}
		}
		result[name] = db
	}
	return result, errors.Join(errs...)
}

func isDBName(s string) bool {
	if len(s) < 3 || !strings.HasPrefix(s, "db") {
		return false
	}
	for _, c := range s[2:] {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// Numbers 返回已上报的数值型字段，键为 INFO 字段名
func (s *ServerInfo) Numbers() map[string]float64 {
	result := make(map[string]float64)
	ints := map[string]*int64{
		"uptime_in_seconds":          s.UptimeInSeconds,
		"uptime_in_days":             s.UptimeInDays,
		"used_memory":                s.UsedMemory,
		"used_memory_rss":            s.UsedMemoryRSS,
		"total_system_memory":        s.TotalSystemMemory,
		"total_connections_received": s.TotalConnectionsReceived,
		"total_commands_processed":   s.TotalCommandsProcessed,
		"instantaneous_ops_per_sec":  s.InstantaneousOpsPerSec,
		"total_net_input_bytes":      s.TotalNetInputBytes,
		"total_net_output_bytes":     s.TotalNetOutputBytes,
		"rejected_connections":       s.RejectedConnections,
		"expired_keys":               s.ExpiredKeys,
		"evicted_keys":               s.EvictedKeys,
		"keyspace_hits":              s.KeyspaceHits,
		"keyspace_misses":            s.KeyspaceMisses,
		"connected_clients":          s.ConnectedClients,
		"blocked_clients":            s.BlockedClients,
		"total_keys":                 s.TotalKeys,
	}
	for name, v := range ints {
		if v != nil {
			result[name] = float64(*v)
		}
	}
	floats := map[string]*float64{
		"mem_fragmentation_ratio":   s.MemFragmentationRatio,
		"instantaneous_input_kbps":  s.InstantaneousInputKbps,
		"instantaneous_output_kbps": s.InstantaneousOutputKbps,
	}
	for name, v := range floats {
		if v != nil {
			result[name] = *v
		}
	}
	return result
}
