package main

import (
	"flag"
	"os"
	"time"

	"github.com/peterbourgon/ff/v3"

	"github.com/han-fei/redismon/agent/internal/config"
)

// 命令行参数帮助信息
var (
	configHelp      = "Path to the YAML configuration file. Defaults are used when empty."
	dumpSectionHelp = "Print the given redis INFO section as JSON and exit (e.g. all, server, keyspace)."
	hostIDHelp      = "Host identifier written into every snapshot."
	intervalHelp    = "Sampling interval, overrides collect.interval."
	pidFileHelp     = "Redis PID file used for the liveness check, overrides liveness.pid_file."
	tpsModeHelp     = "TPS derivation: cycle (between polls) or probe (two reads inside one poll)."
	verboseHelp     = "Enable debug logging."
)

// arguments 命令行参数
type arguments struct {
	configFile  string
	dumpSection string
	hostID      string
	interval    time.Duration
	pidFile     string
	tpsMode     string
	verbose     bool

	fs *flag.FlagSet
}

func parseArgs() (*arguments, error) {
	var args arguments

	fs := flag.NewFlagSet("redismon", flag.ExitOnError)

	fs.StringVar(&args.configFile, "config", "", configHelp)
	fs.StringVar(&args.dumpSection, "dump-section", "", dumpSectionHelp)
	fs.StringVar(&args.hostID, "host-id", "", hostIDHelp)
	fs.DurationVar(&args.interval, "interval", 0, intervalHelp)
	fs.StringVar(&args.pidFile, "pid-file", "", pidFileHelp)
	fs.StringVar(&args.tpsMode, "tps-mode", "", tpsModeHelp)
	fs.BoolVar(&args.verbose, "v", false, "Shorthand for -verbose.")
	fs.BoolVar(&args.verbose, "verbose", false, verboseHelp)

	fs.Usage = func() {
		fs.PrintDefaults()
	}

	args.fs = fs

	return &args, ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("REDISMON"),
	)
}

// apply 用显式设置的参数覆盖配置文件
func (a *arguments) apply(cfg *config.Config) {
	a.fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "host-id":
			cfg.Agent.HostID = a.hostID
		case "interval":
			cfg.Collect.Interval = a.interval
			cfg.Collect.Timeout = a.interval * 8 / 10
		case "pid-file":
			cfg.Liveness.PidFile = a.pidFile
		case "tps-mode":
			cfg.Collect.TPSMode = a.tpsMode
		case "v", "verbose":
			cfg.Log.Level = "debug"
		}
	})
}
