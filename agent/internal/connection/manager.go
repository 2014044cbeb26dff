// Package connection 管理到 Redis 的连接及有限次数的重连。
package connection

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/han-fei/redismon/internal/utils"
)

// State 连接状态
type State int32

const (
	Disconnected State = iota
	Connected
	Retrying
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connected:
		return "connected"
	case Retrying:
		return "retrying"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// InfoClient 采集所需的 Redis 客户端能力，*redis.Client 满足该接口
type InfoClient interface {
	Info(ctx context.Context, sections ...string) *redis.StringCmd
	Close() error
}

// Connector 建立一次连接
type Connector interface {
	Connect(ctx context.Context) (InfoClient, error)
}

// ConnectorFunc 函数适配器
type ConnectorFunc func(ctx context.Context) (InfoClient, error)

// Connect 调用 f
func (f ConnectorFunc) Connect(ctx context.Context) (InfoClient, error) {
	return f(ctx)
}

// RedisConnector 使用 go-redis 建立单机连接
type RedisConnector struct {
	Options *redis.Options
}

// NewRedisConnector 创建连接器
func NewRedisConnector(addr, password string, db int, dialTimeout time.Duration) *RedisConnector {
	return &RedisConnector{
		Options: &redis.Options{
			Addr:         addr,
			Password:     password,
			DB:           db,
			DialTimeout:  dialTimeout,
			ReadTimeout:  dialTimeout,
			WriteTimeout: dialTimeout,
			PoolSize:     2,
			MaxRetries:   -1, // 重试由 Manager 负责
		},
	}
}

// Connect 创建客户端并用 PING 验证
func (c *RedisConnector) Connect(ctx context.Context) (InfoClient, error) {
	client := redis.NewClient(c.Options)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping %s: %w", c.Options.Addr, err)
	}
	return client, nil
}

// Manager 维护一个 Redis 连接，连接失败时按策略重试，重试次数耗尽后返回 ConnectionExhausted
type Manager struct {
	connector Connector
	policy    utils.RetryPolicy
	sleep     func(ctx context.Context, d time.Duration) error

	mu           sync.Mutex
	client       InfoClient
	attemptsLeft int

	state    atomic.Int32
	attempts atomic.Int64
}

// NewManager 创建连接管理器
func NewManager(connector Connector, policy utils.RetryPolicy) *Manager {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &Manager{
		connector:    connector,
		policy:       policy,
		sleep:        utils.Sleep,
		attemptsLeft: policy.MaxAttempts,
	}
}

// State 返回当前连接状态
func (m *Manager) State() State {
	return State(m.state.Load())
}

// Attempts 返回累计连接尝试次数
func (m *Manager) Attempts() int64 {
	return m.attempts.Load()
}

// Connect 在未连接时建立连接
func (m *Manager) Connect(ctx context.Context) error {
	_, err := m.Client(ctx)
	return err
}

// Client 返回可用的客户端，必要时先建立连接
func (m *Manager) Client(ctx context.Context) (InfoClient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.client != nil {
		return m.client, nil
	}
	return m.connectLocked(ctx)
}

// connectLocked 消耗剩余尝试次数建立连接
//
// 退避等待被 ctx 打断时返回 ctx 错误，剩余次数留给下一次调用；
// 只有连接成功或次数耗尽才会恢复完整的尝试次数。
func (m *Manager) connectLocked(ctx context.Context) (InfoClient, error) {
	var lastErr error
	for first := true; m.attemptsLeft > 0; first = false {
		used := m.policy.MaxAttempts - m.attemptsLeft
		if !first {
			m.setState(Retrying)
			if err := m.sleep(ctx, m.policy.Delay(used-1)); err != nil {
				log.WithError(err).WithField("remaining", m.attemptsLeft).Debug("等待重连被取消")
				return nil, err
			}
		}

		m.attemptsLeft--
		m.attempts.Add(1)

		client, err := m.connector.Connect(ctx)
		if err == nil {
			m.client = client
			m.attemptsLeft = m.policy.MaxAttempts
			m.setState(Connected)
			log.Debugf("Redis 连接成功，第 %d 次尝试", used+1)
			return client, nil
		}

		lastErr = err
		m.setState(Retrying)
		log.WithError(err).WithField("remaining", m.attemptsLeft).Warn("连接 Redis 失败")
	}

	m.setState(Disconnected)
	m.attemptsLeft = m.policy.MaxAttempts
	return nil, utils.NewError(utils.KindConnectionExhausted, "redis connect",
		fmt.Errorf("%d attempts: %w", m.policy.MaxAttempts, lastErr))
}

// MarkLost 标记连接已断开，下次 Client 调用时重新连接
func (m *Manager) MarkLost() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.client != nil {
		if err := m.client.Close(); err != nil {
			log.WithError(err).Debug("关闭 Redis 客户端失败")
		}
		m.client = nil
	}
	m.setState(Disconnected)
}

// Close 关闭连接
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.setState(Disconnected)
	if m.client == nil {
		return nil
	}
	err := m.client.Close()
	m.client = nil
	return err
}

func (m *Manager) setState(s State) {
	m.state.Store(int32(s))
}
