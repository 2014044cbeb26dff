// Package interfaces 定义了系统中的核心接口
package interfaces

import "context"

// CounterSource 定义了累计计数器数据源的接口
//
// Redis INFO 和主机计数文件是同一能力的两种实现，T 为每个键对应的原始值。
type CounterSource[T any] interface {
	// Fetch 读取指定分区的计数器快照，失败时返回 SourceUnavailable 类错误
	Fetch(ctx context.Context, section string) (map[string]T, error)
}

// CounterSourceFunc 函数适配器
type CounterSourceFunc[T any] func(ctx context.Context, section string) (map[string]T, error)

// Fetch 调用 f
func (f CounterSourceFunc[T]) Fetch(ctx context.Context, section string) (map[string]T, error) {
	return f(ctx, section)
}
