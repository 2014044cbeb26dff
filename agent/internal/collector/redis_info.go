// Package collector 实现各类计数器数据源：Redis INFO、/proc/diskstats、/proc/net/dev 以及主机信息。
package collector

import (
	"bufio"
	"context"
	"strings"

	"github.com/han-fei/redismon/agent/internal/connection"
	"github.com/han-fei/redismon/internal/utils"
)

// ClientProvider 提供 Redis 客户端，connection.Manager 满足该接口
type ClientProvider interface {
	Client(ctx context.Context) (connection.InfoClient, error)
	MarkLost()
}

// RedisInfoSource 通过 INFO 命令读取 Redis 计数器
type RedisInfoSource struct {
	conns ClientProvider
}

// NewRedisInfoSource 创建 Redis 数据源
func NewRedisInfoSource(conns ClientProvider) *RedisInfoSource {
	return &RedisInfoSource{conns: conns}
}

// Fetch 执行 INFO section 并解析为键值对
//
// 连接重试耗尽时原样返回 ConnectionExhausted，其余失败为 SourceUnavailable。
func (s *RedisInfoSource) Fetch(ctx context.Context, section string) (map[string]string, error) {
	op := "redis info " + section

	client, err := s.conns.Client(ctx)
	if err != nil {
		if utils.Fatal(err) {
			return nil, err
		}
		return nil, utils.NewError(utils.KindSourceUnavailable, op, err)
	}

	text, err := client.Info(ctx, section).Result()
	if err != nil {
		s.conns.MarkLost()
		return nil, utils.NewError(utils.KindSourceUnavailable, op, err)
	}
	return ParseInfo(text), nil
}

// ParseInfo 解析 INFO 输出，跳过空行和 "# Section" 标题行
func ParseInfo(text string) map[string]string {
	result := make(map[string]string)
	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		result[key] = value
	}
	return result
}
