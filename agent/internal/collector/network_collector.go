package collector

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/han-fei/redismon/agent/internal/models"
	"github.com/han-fei/redismon/internal/utils"
)

// /proc/net/dev 每行最少字段数（接口名 + 16 个计数）
const minNetDevFields = 17

// NetDevSource 网络接口计数数据源
type NetDevSource struct {
	path         string
	skipPrefixes []string
}

// NewNetDevSource 创建网络数据源，lo 总是被跳过
func NewNetDevSource(path string, skipPrefixes []string) *NetDevSource {
	return &NetDevSource{path: path, skipPrefixes: skipPrefixes}
}

// Fetch 读取网络接口计数，section 未使用
func (s *NetDevSource) Fetch(_ context.Context, _ string) (map[string]models.NetworkCounters, error) {
	file, err := os.Open(s.path)
	if err != nil {
		return nil, utils.NewError(utils.KindSourceUnavailable, "netdev", err)
	}
	defer file.Close()

	return ParseNetDev(file, s.skipPrefixes)
}

// ParseNetDev 解析 /proc/net/dev
//
// 跳过两行标题、lo 以及 skipPrefixes 开头的接口；字段不足的行返回 MalformedCounterLine。
func ParseNetDev(r io.Reader, skipPrefixes []string) (map[string]models.NetworkCounters, error) {
	result := make(map[string]models.NetworkCounters)
	scanner := bufio.NewScanner(r)

	// 跳过前两行（标题行）
	scanner.Scan()
	scanner.Scan()
	lineNo := 2

	for scanner.Scan() {
		lineNo++
		fields := strings.Fields(strings.Replace(scanner.Text(), ":", " ", 1))
		if len(fields) == 0 {
			continue
		}
		if len(fields) < minNetDevFields {
			return nil, utils.NewError(utils.KindMalformedCounterLine, "netdev",
				fmt.Errorf("line %d: %d fields, want at least %d", lineNo, len(fields), minNetDevFields))
		}

		iface := fields[0]
		if skipInterface(iface, skipPrefixes) {
			continue
		}

		var v [8]uint64
		for i, idx := range []int{1, 2, 3, 4, 9, 10, 11, 12} {
			n, err := strconv.ParseUint(fields[idx], 10, 64)
			if err != nil {
				return nil, utils.NewError(utils.KindMalformedCounterLine, "netdev",
					fmt.Errorf("line %d field %d: %w", lineNo, idx, err))
			}
			v[i] = n
		}

		result[iface] = models.NetworkCounters{
			Interface: iface,
			RxBytes:   v[0],
			RxPackets: v[1],
			RxErrors:  v[2],
			RxDropped: v[3],
			TxBytes:   v[4],
			TxPackets: v[5],
			TxErrors:  v[6],
			TxDropped: v[7],
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, utils.NewError(utils.KindSourceUnavailable, "netdev", err)
	}
	return result, nil
}

func skipInterface(iface string, prefixes []string) bool {
	if iface == "lo" {
		return true
	}
	for _, p := range prefixes {
		if strings.HasPrefix(iface, p) {
			return true
		}
	}
	return false
}
