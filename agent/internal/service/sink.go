// Package service 提供快照的输出端：控制台、NDJSON 文件、Kafka 和 HTTP 仪表盘。
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/han-fei/redismon/agent/internal/models"
)

// Sink 接收每个采集周期产生的快照
type Sink interface {
	Accept(ctx context.Context, snap *models.Snapshot) error
}

// SinkFunc 函数适配器
type SinkFunc func(ctx context.Context, snap *models.Snapshot) error

// Accept 调用 f
func (f SinkFunc) Accept(ctx context.Context, snap *models.Snapshot) error {
	return f(ctx, snap)
}

// MultiSink 依次把快照交给所有输出端，单个输出端失败不影响其他输出端
type MultiSink struct {
	sinks []namedSink
}

type namedSink struct {
	name string
	sink Sink
}

// NewMultiSink 创建组合输出端
func NewMultiSink() *MultiSink {
	return &MultiSink{}
}

// Add 添加输出端
func (m *MultiSink) Add(name string, s Sink) {
	m.sinks = append(m.sinks, namedSink{name: name, sink: s})
}

// Len 返回输出端数量
func (m *MultiSink) Len() int {
	return len(m.sinks)
}

// Accept 实现 Sink
func (m *MultiSink) Accept(ctx context.Context, snap *models.Snapshot) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.sink.Accept(ctx, snap); err != nil {
			errs = append(errs, fmt.Errorf("sink %s: %w", s.name, err))
		}
	}
	return errors.Join(errs...)
}
