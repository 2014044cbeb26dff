package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"

	"github.com/han-fei/redismon/agent/internal/config"
	"github.com/han-fei/redismon/agent/internal/models"
	"github.com/han-fei/redismon/internal/utils"
)

// messageWriter kafka.Writer 中用到的方法
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaProducer 把快照发送到 Kafka 主题，消息键为主机ID
type KafkaProducer struct {
	config  *config.KafkaConfig
	writer  messageWriter
	retry   utils.RetryPolicy
	breaker *utils.CircuitBreaker
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewKafkaProducer 创建新的Kafka生产者
func NewKafkaProducer(cfg *config.KafkaConfig) (*KafkaProducer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: no brokers configured")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		RequiredAcks: kafka.RequireOne,
	}
	return newKafkaProducer(cfg, writer), nil
}

func newKafkaProducer(cfg *config.KafkaConfig, w messageWriter) *KafkaProducer {
	retry := utils.DefaultRetryPolicy()
	retry.MaxAttempts = cfg.MaxRetry
	retry.BaseDelay = 100 * time.Millisecond
	return &KafkaProducer{
		config:  cfg,
		writer:  w,
		retry:   retry,
		breaker: utils.NewCircuitBreaker("kafka", cfg.BreakerFailures, cfg.BreakerCooldown),
		sleep:   utils.Sleep,
	}
}

// Accept 实现 Sink，失败时按指数退避重试，连续多个快照发送失败后熔断一段时间
func (p *KafkaProducer) Accept(ctx context.Context, snap *models.Snapshot) error {
	value, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("序列化快照失败: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(snap.HostID),
		Value: value,
		Time:  snap.Timestamp,
	}

	return p.breaker.Execute(func() error {
		return p.send(ctx, msg)
	})
}

func (p *KafkaProducer) send(ctx context.Context, msg kafka.Message) error {
	attempts := p.retry.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			if err := p.sleep(ctx, p.retry.Delay(i-1)); err != nil {
				return err
			}
		}
		err = p.writer.WriteMessages(ctx, msg)
		if err == nil {
			return nil
		}
		log.WithError(err).Warnf("发送数据到Kafka失败 (尝试 %d/%d)", i+1, attempts)
	}
	return err
}

// Close 关闭Kafka生产者
func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}
