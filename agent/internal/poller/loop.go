package poller

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/han-fei/redismon/internal/utils"
)

// Run 立即采集一次，之后每个间隔采集一次，直到 ctx 取消或连接重试耗尽
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	log.Infof("开始采集，间隔 %v，TPS 模式 %s", p.opts.Interval, p.opts.TPSMode)

	for {
		if err := p.runOnce(ctx); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			log.Info("采集循环已停止")
			return nil
		case <-ticker.C:
		}
	}
}

// runOnce 执行一个周期，只有致命错误才返回
func (p *Poller) runOnce(ctx context.Context) error {
	_, err := p.PollOnce(ctx)
	if err == nil {
		return nil
	}
	if utils.Fatal(err) {
		log.WithError(err).Error("Redis 连接重试耗尽，停止采集")
		return err
	}
	log.WithError(err).Debug("采集周期存在错误")
	return nil
}

// Errors 返回错误统计
func (p *Poller) Errors() *utils.ErrorHandler {
	return p.errors
}
