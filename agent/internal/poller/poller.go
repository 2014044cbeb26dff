// Package poller 编排一次采集周期：存活检查、读取计数、计算速率、组装快照并交给输出端。
package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/han-fei/redismon/agent/internal/config"
	"github.com/han-fei/redismon/agent/internal/liveness"
	"github.com/han-fei/redismon/agent/internal/models"
	"github.com/han-fei/redismon/agent/internal/sampler"
	"github.com/han-fei/redismon/agent/internal/service"
	"github.com/han-fei/redismon/internal/utils"
	"github.com/han-fei/redismon/pkg/algorithm"
	"github.com/han-fei/redismon/pkg/interfaces"
)

// serverEntity 全局 Redis 计数在采样器中的实体名
const serverEntity = "server"

// LivenessChecker 存活检查，liveness.Monitor 满足该接口
type LivenessChecker interface {
	Check(ctx context.Context) (liveness.Status, error)
}

// HostInfoProvider 主机信息，collector.HostInfoSource 满足该接口
type HostInfoProvider interface {
	Fetch(ctx context.Context) (*models.HostInfo, error)
}

// Options 采集参数
type Options struct {
	HostID      string
	Section     string        // Redis INFO 分区
	Interval    time.Duration // 采集间隔
	Timeout     time.Duration // 单次外部读取超时，0 表示不限制
	TPSMode     string        // config.TPSModeCycle 或 config.TPSModeProbe
	ProbeWindow time.Duration // probe 模式下两次读取的间隔
	WindowSize  int           // 滑动平均窗口
}

// OptionsFromConfig 从配置构建采集参数
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		HostID:      cfg.Agent.HostID,
		Section:     cfg.Redis.Section,
		Interval:    cfg.Collect.Interval,
		Timeout:     cfg.Collect.Timeout,
		TPSMode:     cfg.Collect.TPSMode,
		ProbeWindow: cfg.Collect.ProbeWindow,
		WindowSize:  cfg.Collect.WindowSize,
	}
}

// Sources 数据源，除 Redis 外均可为 nil
type Sources struct {
	Redis    interfaces.CounterSource[string]
	Disks    interfaces.CounterSource[models.DiskCounters]
	Networks interfaces.CounterSource[models.NetworkCounters]
	Liveness LivenessChecker
	Host     HostInfoProvider
}

// Poller 采集器，同一时刻最多只有一个采集周期在执行
type Poller struct {
	opts   Options
	src    Sources
	sink   service.Sink
	errors *utils.ErrorHandler

	server *sampler.RateSampler
	disk   *sampler.RateSampler
	net    *sampler.RateSampler

	qpsWindow *algorithm.SlidingWindow
	tpsWindow *algorithm.SlidingWindow

	group singleflight.Group
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New 创建采集器，sink 不能为 nil
func New(opts Options, src Sources, sink service.Sink, errs *utils.ErrorHandler) (*Poller, error) {
	if sink == nil {
		return nil, errors.New("poller: sink is required")
	}
	if src.Redis == nil {
		return nil, errors.New("poller: redis source is required")
	}
	if opts.Interval <= 0 {
		return nil, fmt.Errorf("poller: invalid interval %v", opts.Interval)
	}
	if opts.TPSMode == "" {
		opts.TPSMode = config.TPSModeCycle
	}
	if opts.WindowSize <= 0 {
		opts.WindowSize = 10
	}
	if errs == nil {
		errs = utils.NewErrorHandler(0)
	}

	maxAge := opts.Interval * time.Duration(opts.WindowSize)
	return &Poller{
		opts:      opts,
		src:       src,
		sink:      sink,
		errors:    errs,
		server:    sampler.NewRateSampler("server"),
		disk:      sampler.NewRateSampler("disk"),
		net:       sampler.NewRateSampler("network"),
		qpsWindow: algorithm.NewSlidingWindow(opts.WindowSize, maxAge),
		tpsWindow: algorithm.NewSlidingWindow(opts.WindowSize, maxAge),
		now:       time.Now,
		sleep:     utils.Sleep,
	}, nil
}

// PollOnce 执行一次采集周期
//
// 数据源失败时仍返回快照，错误按类型合并返回；并发调用共享同一次采集。
func (p *Poller) PollOnce(ctx context.Context) (*models.Snapshot, error) {
	v, err, shared := p.group.Do("poll", func() (interface{}, error) {
		return p.poll(ctx)
	})
	if shared {
		log.Debug("复用进行中的采集周期")
	}
	snap, _ := v.(*models.Snapshot)
	return snap, err
}

// cycle 单次采集的中间状态
type cycle struct {
	snap     *models.Snapshot
	errs     []error
	degraded bool
	handler  *utils.ErrorHandler
}

// record 把错误记入快照，NonMonotonicTime 只作提示，不改变快照状态
func (c *cycle) record(source string, err error) {
	kind := utils.KindOf(err)
	c.errs = append(c.errs, err)
	c.snap.Errors = append(c.snap.Errors, models.SnapshotError{
		Source:  source,
		Kind:    kind,
		Message: err.Error(),
	})
	if kind != utils.KindNonMonotonicTime {
		c.degraded = true
	}
	c.handler.HandleError(err)
}

func (p *Poller) poll(ctx context.Context) (*models.Snapshot, error) {
	c := &cycle{
		snap:    &models.Snapshot{Timestamp: p.now(), HostID: p.opts.HostID},
		handler: p.errors,
	}

	if p.src.Host != nil {
		host, err := p.src.Host.Fetch(ctx)
		if err != nil {
			c.record("host", err)
		} else {
			c.snap.Host = host
		}
	}

	if p.src.Liveness != nil {
		st, err := p.src.Liveness.Check(ctx)
		if err != nil {
			c.record("liveness", utils.NewError(utils.KindSourceUnavailable, "liveness", err))
		}
		if !st.Alive {
			c.snap.Alive = false
			c.snap.Status = models.StatusDown
			return p.deliver(ctx, c)
		}
		c.snap.Alive = true
		c.snap.PID = st.PID
		rss := st.ResidentMemoryBytes
		c.snap.ResidentMemoryBytes = &rss
	}

	serverOK := p.collectServer(ctx, c)
	if p.src.Liveness == nil {
		c.snap.Alive = serverOK
	}
	p.collectDisks(ctx, c)
	p.collectNetworks(ctx, c)

	if c.snap.QPS != nil {
		p.qpsWindow.AddAt(*c.snap.QPS, c.snap.Timestamp)
	}
	if c.snap.TPS != nil {
		p.tpsWindow.AddAt(*c.snap.TPS, c.snap.Timestamp)
	}
	if p.qpsWindow.Count() > 0 {
		c.snap.QPSAvg = models.Float64(p.qpsWindow.Average())
	}
	if p.tpsWindow.Count() > 0 {
		c.snap.TPSAvg = models.Float64(p.tpsWindow.Average())
	}

	c.snap.Status = models.StatusOK
	if c.degraded {
		c.snap.Status = models.StatusPartial
	}
	return p.deliver(ctx, c)
}

func (p *Poller) deliver(ctx context.Context, c *cycle) (*models.Snapshot, error) {
	if err := p.sink.Accept(ctx, c.snap); err != nil {
		log.WithError(err).Warn("输出快照失败")
		c.errs = append(c.errs, fmt.Errorf("sink: %w", err))
	}
	log.WithFields(log.Fields{
		"status": c.snap.Status,
		"alive":  c.snap.Alive,
		"errors": len(c.snap.Errors),
	}).Debug("采集周期完成")
	return c.snap, errors.Join(c.errs...)
}

// fetchCtx 为单次外部读取设置超时
func (p *Poller) fetchCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.opts.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.opts.Timeout)
}

func (p *Poller) fetchServer(ctx context.Context) (models.ServerInfo, time.Time, error) {
	fctx, cancel := p.fetchCtx(ctx)
	defer cancel()

	raw, err := p.src.Redis.Fetch(fctx, p.opts.Section)
	at := p.now()
	if err != nil {
		return models.ServerInfo{}, at, err
	}
	info, err := models.NewServerInfo(raw)
	if err != nil {
		err = utils.NewError(utils.KindMalformedCounterLine, "redis info", err)
	}
	return info, at, err
}

// collectServer 读取 Redis 计数并计算 QPS/TPS，返回是否读取成功
func (p *Poller) collectServer(ctx context.Context, c *cycle) bool {
	info, at, err := p.fetchServer(ctx)
	if err != nil && utils.KindOf(err) != utils.KindMalformedCounterLine {
		c.record("redis", err)
		return false
	}
	if err != nil {
		// 个别字段非法，其余字段照常输出
		c.record("redis", err)
	}

	if p.opts.TPSMode == config.TPSModeProbe {
		// 第一次读取只作基线
		p.sampleTPS(c, info, at)
		if err := p.sleep(ctx, p.opts.ProbeWindow); err != nil {
			c.record("redis", utils.NewError(utils.KindSourceUnavailable, "tps probe", err))
			return false
		}
		info, at, err = p.fetchServer(ctx)
		if err != nil && utils.KindOf(err) != utils.KindMalformedCounterLine {
			c.record("redis", err)
			return false
		}
		if err != nil {
			c.record("redis", err)
		}
	}

	c.snap.ServerInfo = info
	if info.InstantaneousOpsPerSec != nil {
		c.snap.QPS = models.Float64(float64(*info.InstantaneousOpsPerSec))
	}
	c.snap.TPS = p.sampleTPS(c, info, at)
	return true
}

// sampleTPS 用 total_commands_processed 的增量计算 TPS，首次采样返回 nil
func (p *Poller) sampleTPS(c *cycle, info models.ServerInfo, at time.Time) *float64 {
	if info.TotalCommandsProcessed == nil || *info.TotalCommandsProcessed < 0 {
		return nil
	}
	r, ok, err := p.server.Update(serverEntity, []uint64{uint64(*info.TotalCommandsProcessed)}, at)
	if err != nil {
		c.record(serverEntity, err)
		return nil
	}
	if !ok {
		return nil
	}
	return models.Float64(r.Rates[0])
}

func (p *Poller) collectDisks(ctx context.Context, c *cycle) {
	if p.src.Disks == nil {
		return
	}

	fctx, cancel := p.fetchCtx(ctx)
	counters, err := p.src.Disks.Fetch(fctx, "")
	cancel()
	if err != nil {
		c.record("diskstats", err)
		return
	}
	at := p.now()

	present := make(map[string]struct{}, len(counters))
	rates := make(map[string]models.DiskRate)
	for name, dc := range counters {
		present[name] = struct{}{}
		r, ok, err := p.disk.Update(name, dc.Tuple(), at)
		if err != nil {
			c.record("disk/"+name, err)
			continue
		}
		if !ok {
			continue
		}
		ios := r.Deltas[models.DiskReadIOs] + r.Deltas[models.DiskWriteIOs]
		busy := r.Deltas[models.DiskReadTime] + r.Deltas[models.DiskWriteTime]
		rates[name] = models.DiskRate{
			MountPoint:  dc.MountPoint,
			Utilization: dc.UsagePercent,
			ReadKBps:    models.BytesToKB(r.Rates[models.DiskReadBytes]),
			WriteKBps:   models.BytesToKB(r.Rates[models.DiskWriteBytes]),
			IOAwaitMs:   sampler.IOAwait(ios, busy),
		}
	}
	if dropped := p.disk.Prune(present); len(dropped) > 0 {
		log.WithField("devices", dropped).Info("磁盘已消失，清除采样状态")
	}
	if len(rates) > 0 {
		c.snap.Disks = rates
	}
}

func (p *Poller) collectNetworks(ctx context.Context, c *cycle) {
	if p.src.Networks == nil {
		return
	}

	fctx, cancel := p.fetchCtx(ctx)
	counters, err := p.src.Networks.Fetch(fctx, "")
	cancel()
	if err != nil {
		c.record("netdev", err)
		return
	}
	at := p.now()

	present := make(map[string]struct{}, len(counters))
	rates := make(map[string]models.NetworkRate)
	for name, nc := range counters {
		present[name] = struct{}{}
		r, ok, err := p.net.Update(name, nc.Tuple(), at)
		if err != nil {
			c.record("net/"+name, err)
			continue
		}
		if !ok {
			continue
		}
		rates[name] = models.NetworkRate{
			RxBytesPS:   r.Rates[models.NetRxBytes],
			RxPacketsPS: r.Rates[models.NetRxPackets],
			RxErrorsPS:  r.Rates[models.NetRxErrors],
			RxDroppedPS: r.Rates[models.NetRxDropped],
			TxBytesPS:   r.Rates[models.NetTxBytes],
			TxPacketsPS: r.Rates[models.NetTxPackets],
			TxErrorsPS:  r.Rates[models.NetTxErrors],
			TxDroppedPS: r.Rates[models.NetTxDropped],
		}
	}
	if dropped := p.net.Prune(present); len(dropped) > 0 {
		log.WithField("interfaces", dropped).Info("网络接口已消失，清除采样状态")
	}
	if len(rates) > 0 {
		c.snap.Interfaces = rates
	}
}
