package collector

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/han-fei/redismon/agent/internal/connection"
	"github.com/han-fei/redismon/internal/utils"
)

const netDevFixture = `Inter-|   Receive                                                |  Transmit
 face |bytes    packets errs drop fifo frame compressed multicast|bytes    packets errs drop fifo colls carrier compressed
    lo: 9876543    1234    0    0    0     0          0         0  9876543    1234    0    0    0     0       0          0
  eth0: 1000000    2000    1    2    0     0          0         0   500000    1500    3    4    0     0       0          0
docker0:     100       1    0    0    0     0          0         0      200       2    0    0    0     0       0          0
`

func TestParseNetDevSkipsLoopback(t *testing.T) {
	stats, err := ParseNetDev(strings.NewReader(netDevFixture), nil)
	require.NoError(t, err)

	assert.NotContains(t, stats, "lo")
	require.Contains(t, stats, "eth0")
	assert.Contains(t, stats, "docker0")

	eth0 := stats["eth0"]
	assert.Equal(t, uint64(1000000), eth0.RxBytes)
	assert.Equal(t, uint64(2000), eth0.RxPackets)
	assert.Equal(t, uint64(1), eth0.RxErrors)
	assert.Equal(t, uint64(2), eth0.RxDropped)
	assert.Equal(t, uint64(500000), eth0.TxBytes)
	assert.Equal(t, uint64(1500), eth0.TxPackets)
	assert.Equal(t, uint64(3), eth0.TxErrors)
	assert.Equal(t, uint64(4), eth0.TxDropped)
}

func TestParseNetDevSkipPrefixes(t *testing.T) {
	stats, err := ParseNetDev(strings.NewReader(netDevFixture), []string{"docker", "veth"})
	require.NoError(t, err)
	assert.Len(t, stats, 1)
	assert.Contains(t, stats, "eth0")
}

func TestParseNetDevRejectsShortLine(t *testing.T) {
	input := netDevFixture + "  eth1: 1 2 3 4 5\n"
	_, err := ParseNetDev(strings.NewReader(input), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrMalformedCounterLine)
}

func TestNetDevSourceMissingFile(t *testing.T) {
	src := NewNetDevSource(filepath.Join(t.TempDir(), "dev"), nil)
	_, err := src.Fetch(context.Background(), "")
	assert.ErrorIs(t, err, utils.ErrSourceUnavailable)
}

const diskStatsFixture = `   7       0 loop0 100 0 200 10 0 0 0 0 0 10 10 0 0 0 0
 253       0 vda 4000 10 2000 300 6000 20 1000 700 0 900 1000 0 0 0 0
 253       1 vda1 3900 10 1900 290 5900 20 900 690 0 880 980 0 0 0 0
 252       0 dm-0 10 0 80 5 20 0 160 9 0 12 14 0 0 0 0
`

func TestParseDiskStats(t *testing.T) {
	stats, err := ParseDiskStats(strings.NewReader(diskStatsFixture))
	require.NoError(t, err)

	assert.NotContains(t, stats, "loop0")
	require.Contains(t, stats, "vda")

	vda := stats["vda"]
	assert.Equal(t, uint64(4000), vda.ReadIOs)
	assert.Equal(t, uint64(2000*512), vda.ReadBytes)
	assert.Equal(t, uint64(300), vda.ReadTimeMs)
	assert.Equal(t, uint64(6000), vda.WriteIOs)
	assert.Equal(t, uint64(1000*512), vda.WriteBytes)
	assert.Equal(t, uint64(700), vda.WriteTimeMs)
}

func TestParseDiskStatsRejectsShortLine(t *testing.T) {
	input := diskStatsFixture + " 8 0 sdb 1 2 3\n"
	_, err := ParseDiskStats(strings.NewReader(input))
	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrMalformedCounterLine)
	assert.Equal(t, utils.KindMalformedCounterLine, utils.KindOf(err))
}

func TestParseDiskStatsRejectsBadNumber(t *testing.T) {
	_, err := ParseDiskStats(strings.NewReader(" 8 0 sdb x 0 0 0 0 0 0 0 0 0 0\n"))
	assert.ErrorIs(t, err, utils.ErrMalformedCounterLine)
}

func newTestDiskSource(t *testing.T, devices []string) *DiskStatsSource {
	t.Helper()
	path := filepath.Join(t.TempDir(), "diskstats")
	require.NoError(t, os.WriteFile(path, []byte(diskStatsFixture), 0o600))

	src := NewDiskStatsSource(path, devices, map[string]string{"vg--redis-lv--redis": "vdd"})
	src.partitions = func(context.Context) ([]disk.PartitionStat, error) {
		return []disk.PartitionStat{
			{Device: "/dev/vda1", Mountpoint: "/"},
			{Device: "/dev/mapper/vg--redis-lv--redis", Mountpoint: "/data"},
			{Device: "tmpfs", Mountpoint: "/run"},
		}, nil
	}
	src.usage = func(_ context.Context, mount string) (*disk.UsageStat, error) {
		return &disk.UsageStat{Path: mount, UsedPercent: map[string]float64{"/": 40, "/data": 75.5}[mount]}, nil
	}
	src.resolve = func(p string) (string, error) {
		if p == "/dev/mapper/vg--redis-lv--redis" {
			return "/dev/dm-0", nil
		}
		return p, nil
	}
	return src
}

func TestDiskStatsSourceMountedDevices(t *testing.T) {
	src := newTestDiskSource(t, nil)

	stats, err := src.Fetch(context.Background(), "")
	require.NoError(t, err)

	assert.Len(t, stats, 2)
	require.Contains(t, stats, "vdd")
	assert.Equal(t, "/data", stats["vdd"].MountPoint)
	assert.InDelta(t, 75.5, stats["vdd"].UsagePercent, 1e-9)
	assert.Equal(t, uint64(80*512), stats["vdd"].ReadBytes)

	require.Contains(t, stats, "vda1")
	assert.Equal(t, "/", stats["vda1"].MountPoint)
	assert.NotContains(t, stats, "vda")
}

func TestDiskStatsSourceExplicitDevices(t *testing.T) {
	src := newTestDiskSource(t, []string{"vda"})
	src.partitions = func(context.Context) ([]disk.PartitionStat, error) {
		return nil, errors.New("no mtab")
	}

	stats, err := src.Fetch(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, stats, 1)
	assert.Contains(t, stats, "vda")
}

func TestDiskStatsSourcePartitionFailure(t *testing.T) {
	src := newTestDiskSource(t, nil)
	src.partitions = func(context.Context) ([]disk.PartitionStat, error) {
		return nil, errors.New("no mtab")
	}
	_, err := src.Fetch(context.Background(), "")
	assert.ErrorIs(t, err, utils.ErrSourceUnavailable)
}

func TestParseInfo(t *testing.T) {
	text := "# Server\r\nredis_version:7.2.4\r\n\r\n# Keyspace\r\ndb0:keys=10,expires=2,avg_ttl=300\r\n"
	info := ParseInfo(text)
	assert.Equal(t, "7.2.4", info["redis_version"])
	assert.Equal(t, "keys=10,expires=2,avg_ttl=300", info["db0"])
	assert.Len(t, info, 2)
}

type stubClient struct {
	text string
	err  error
}

func (c *stubClient) Info(context.Context, ...string) *redis.StringCmd {
	return redis.NewStringResult(c.text, c.err)
}

func (c *stubClient) Close() error { return nil }

type stubProvider struct {
	client connection.InfoClient
	err    error
	lost   int
}

func (p *stubProvider) Client(context.Context) (connection.InfoClient, error) {
	return p.client, p.err
}

func (p *stubProvider) MarkLost() { p.lost++ }

func TestRedisInfoSource(t *testing.T) {
	p := &stubProvider{client: &stubClient{text: "total_commands_processed:1500\r\n"}}
	src := NewRedisInfoSource(p)

	info, err := src.Fetch(context.Background(), "default")
	require.NoError(t, err)
	assert.Equal(t, "1500", info["total_commands_processed"])
	assert.Zero(t, p.lost)
}

func TestRedisInfoSourceCommandFailure(t *testing.T) {
	p := &stubProvider{client: &stubClient{err: errors.New("EOF")}}
	src := NewRedisInfoSource(p)

	_, err := src.Fetch(context.Background(), "default")
	assert.ErrorIs(t, err, utils.ErrSourceUnavailable)
	assert.Equal(t, 1, p.lost)
}

func TestRedisInfoSourceExhausted(t *testing.T) {
	exhausted := utils.NewError(utils.KindConnectionExhausted, "redis connect", errors.New("refused"))
	p := &stubProvider{err: exhausted}
	src := NewRedisInfoSource(p)

	_, err := src.Fetch(context.Background(), "default")
	assert.ErrorIs(t, err, utils.ErrConnectionExhausted)
	assert.Equal(t, utils.KindConnectionExhausted, utils.KindOf(err))

	p.err = context.DeadlineExceeded
	_, err = src.Fetch(context.Background(), "default")
	assert.ErrorIs(t, err, utils.ErrSourceUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHostInfoSourceCachesCopy(t *testing.T) {
	src := NewHostInfoSource("redis-01")

	first, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "redis-01", first.Hostname)
	assert.Positive(t, first.CPUCores)
	assert.Positive(t, first.TotalMemory)

	first.Hostname = "changed"
	second, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "redis-01", second.Hostname)
}
