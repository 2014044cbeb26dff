package utils

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Kind 错误类型
type Kind string

const (
	KindSourceUnavailable    Kind = "source_unavailable"
	KindConnectionExhausted  Kind = "connection_exhausted"
	KindMalformedCounterLine Kind = "malformed_counter_line"
	KindNonMonotonicTime     Kind = "non_monotonic_time"
	KindUnknown              Kind = "unknown"
)

// 哨兵错误，配合 errors.Is 使用
var (
	ErrSourceUnavailable    = errors.New("source unavailable")
	ErrConnectionExhausted  = errors.New("connection retries exhausted")
	ErrMalformedCounterLine = errors.New("malformed counter line")
	ErrNonMonotonicTime     = errors.New("non-monotonic time")
)

var sentinels = map[Kind]error{
	KindSourceUnavailable:    ErrSourceUnavailable,
	KindConnectionExhausted:  ErrConnectionExhausted,
	KindMalformedCounterLine: ErrMalformedCounterLine,
	KindNonMonotonicTime:     ErrNonMonotonicTime,
}

// MonitorError 带类型的采集错误
type MonitorError struct {
	Kind Kind
	Op   string // 出错的操作，如 "diskstats"、"redis info"
	Err  error
}

// NewError 创建采集错误
func NewError(kind Kind, op string, err error) *MonitorError {
	return &MonitorError{Kind: kind, Op: op, Err: err}
}

func (e *MonitorError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *MonitorError) Unwrap() error {
	return e.Err
}

// Is 让 errors.Is 可以按类型匹配哨兵错误
func (e *MonitorError) Is(target error) bool {
	s, ok := sentinels[e.Kind]
	return ok && s == target
}

// KindOf 返回错误链上第一个 MonitorError 的类型
func KindOf(err error) Kind {
	var me *MonitorError
	if errors.As(err, &me) {
		return me.Kind
	}
	for kind, s := range sentinels {
		if errors.Is(err, s) {
			return kind
		}
	}
	return KindUnknown
}

// Fatal 判断错误是否应终止采集循环
func Fatal(err error) bool {
	return errors.Is(err, ErrConnectionExhausted)
}

// ErrorDetail 错误详情
type ErrorDetail struct {
	Kind      Kind      `json:"kind"`
	Op        string    `json:"op"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Count     int       `json:"count"`
}

// ErrorHandler 按类型和操作聚合采集错误
type ErrorHandler struct {
	details   map[string]*ErrorDetail
	maxErrors int
	mu        sync.RWMutex
}

// NewErrorHandler 创建新的错误处理器
func NewErrorHandler(maxErrors int) *ErrorHandler {
	if maxErrors <= 0 {
		maxErrors = 100
	}
	return &ErrorHandler{
		details:   make(map[string]*ErrorDetail),
		maxErrors: maxErrors,
	}
}

// HandleError 记录一次错误，相同类型和操作的错误只累加计数
func (eh *ErrorHandler) HandleError(err error) {
	if err == nil {
		return
	}

	kind := KindOf(err)
	op := ""
	var me *MonitorError
	if errors.As(err, &me) {
		op = me.Op
	}
	key := string(kind) + "/" + op
	now := time.Now()

	eh.mu.Lock()
	defer eh.mu.Unlock()

	if existing, ok := eh.details[key]; ok {
		existing.Count++
		existing.Timestamp = now
		existing.Message = err.Error()
	} else {
		eh.details[key] = &ErrorDetail{
			Kind:      kind,
			Op:        op,
			Message:   err.Error(),
			Timestamp: now,
			Count:     1,
		}
		if len(eh.details) > eh.maxErrors {
			eh.evictOldest()
		}
	}

	switch kind {
	case KindNonMonotonicTime:
		log.WithField("op", op).Infof("时钟回退或采集重叠: %v", err)
	case KindConnectionExhausted:
		log.WithField("op", op).Errorf("连接重试耗尽: %v", err)
	default:
		log.WithFields(log.Fields{"op": op, "kind": kind}).Warnf("采集失败: %v", err)
	}
}

// evictOldest 删除最旧的错误记录，调用方需持有写锁
func (eh *ErrorHandler) evictOldest() {
	oldestKey := ""
	var oldest time.Time
	for key, d := range eh.details {
		if oldestKey == "" || d.Timestamp.Before(oldest) {
			oldestKey, oldest = key, d.Timestamp
		}
	}
	delete(eh.details, oldestKey)
}

// GetErrors 获取错误列表，按出现次数降序
func (eh *ErrorHandler) GetErrors() []ErrorDetail {
	eh.mu.RLock()
	defer eh.mu.RUnlock()

	out := make([]ErrorDetail, 0, len(eh.details))
	for _, d := range eh.details {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Op < out[j].Op
	})
	return out
}

// CountByKind 按类型统计错误次数
func (eh *ErrorHandler) CountByKind() map[Kind]int {
	eh.mu.RLock()
	defer eh.mu.RUnlock()

	counts := make(map[Kind]int)
	for _, d := range eh.details {
		counts[d.Kind] += d.Count
	}
	return counts
}

// ClearErrors 清空错误
func (eh *ErrorHandler) ClearErrors() {
	eh.mu.Lock()
	defer eh.mu.Unlock()
	eh.details = make(map[string]*ErrorDetail)
}
