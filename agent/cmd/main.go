package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/han-fei/redismon/agent/internal/collector"
	"github.com/han-fei/redismon/agent/internal/config"
	"github.com/han-fei/redismon/agent/internal/connection"
	"github.com/han-fei/redismon/agent/internal/liveness"
	"github.com/han-fei/redismon/agent/internal/poller"
	"github.com/han-fei/redismon/agent/internal/service"
	"github.com/han-fei/redismon/internal/utils"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("redismon 退出: %v", err)
	}
}

func run() error {
	args, err := parseArgs()
	if err != nil {
		return fmt.Errorf("解析命令行参数失败: %w", err)
	}

	cfg, err := config.LoadConfig(args.configFile)
	if err != nil {
		return fmt.Errorf("加载配置文件失败: %w", err)
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return fmt.Errorf("读取环境变量失败: %w", err)
	}
	args.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("配置无效: %w", err)
	}
	if err := setupLogging(cfg.Log); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conns := connection.NewManager(
		connection.NewRedisConnector(cfg.Redis.Addr(), cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.DialTimeout),
		cfg.Redis.RetryPolicy(),
	)
	defer conns.Close()

	redisSource := collector.NewRedisInfoSource(conns)

	if args.dumpSection != "" {
		return dumpSection(ctx, redisSource, args.dumpSection, os.Stdout)
	}

	sinks, closers, err := buildSinks(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				log.WithError(err).Warn("关闭输出端失败")
			}
		}
	}()

	src := poller.Sources{
		Redis: redisSource,
		Host:  collector.NewHostInfoSource(cfg.Agent.Hostname),
	}
	if cfg.Disk.Enable {
		src.Disks = collector.NewDiskStatsSource(cfg.Disk.StatsPath, cfg.Disk.Devices, cfg.Disk.Aliases)
	}
	if cfg.Network.Enable {
		src.Networks = collector.NewNetDevSource(cfg.Network.DevPath, cfg.Network.SkipPrefixes)
	}
	if cfg.Liveness.PidFile != "" {
		src.Liveness = liveness.NewMonitor(cfg.Liveness.PidFile)
	}

	p, err := poller.New(poller.OptionsFromConfig(cfg), src, sinks, sinks.errors)
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"redis": cfg.Redis.Addr(),
		"sinks": sinks.Len(),
	}).Info("redismon 启动")

	return p.Run(ctx)
}

// agentSinks 组合输出端及仪表盘共享的错误统计
type agentSinks struct {
	*service.MultiSink
	errors *utils.ErrorHandler
}

func buildSinks(ctx context.Context, cfg *config.Config) (*agentSinks, []io.Closer, error) {
	sinks := &agentSinks{
		MultiSink: service.NewMultiSink(),
		errors:    utils.NewErrorHandler(100),
	}
	var closers []io.Closer

	if cfg.Sinks.Console.Enable {
		sinks.Add("console", service.NewConsoleSink(os.Stdout, cfg.Sinks.Console.Format))
	}
	if cfg.Sinks.File.Enable {
		f, err := service.NewFileSink(cfg.Sinks.File.Path)
		if err != nil {
			return nil, nil, err
		}
		sinks.Add("file", f)
		closers = append(closers, f)
	}
	if cfg.Sinks.Kafka.Enabled {
		k, err := service.NewKafkaProducer(&cfg.Sinks.Kafka)
		if err != nil {
			return nil, nil, err
		}
		sinks.Add("kafka", k)
		closers = append(closers, k)
	}
	if cfg.Sinks.HTTP.Enable {
		d := service.NewDashboard(cfg.Sinks.HTTP.Addr, cfg.Sinks.HTTP.BufferSize, sinks.errors)
		go func() {
			if err := d.Start(ctx); err != nil {
				log.WithError(err).Error("仪表盘服务异常退出")
			}
		}()
		sinks.Add("http", d)
	}
	return sinks, closers, nil
}

// dumpSection 以 JSON 输出某个 INFO 分区
func dumpSection(ctx context.Context, src *collector.RedisInfoSource, section string, w io.Writer) error {
	raw, err := src.Fetch(ctx, section)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(raw)
}

func setupLogging(cfg config.LogConfig) error {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("日志级别无效: %w", err)
	}
	log.SetLevel(level)
	if cfg.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	log.SetOutput(os.Stderr)
	return nil
}
