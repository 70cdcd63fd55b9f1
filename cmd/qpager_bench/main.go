// Command qpager_bench measures random page-read throughput through
// the cached handle API against a raw direct-I/O baseline, so the
// replacement policy can be evaluated without the OS page cache in
// the way.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"go.uber.org/zap"

	"github.com/rishav-sagar/qpager/config"
	"github.com/rishav-sagar/qpager/core/pagestore"
	"github.com/rishav-sagar/qpager/core/vfile"
	"github.com/rishav-sagar/qpager/pkg/logger"
	"github.com/rishav-sagar/qpager/pkg/telemetry"
)

var cli struct {
	Mode       string `help:"Access path: 'os' reads the backing file directly, 'cached' goes through the replacement cache." enum:"os,cached" default:"cached"`
	File       string `help:"Backing file path." required:"" type:"path"`
	FilePages  int    `help:"File length in pages; the file is extended with 0xAB pages if shorter." default:"4096"`
	WsPages    int    `help:"Working-set size in pages; clamped to the file length." default:"256"`
	Ops        int    `help:"Number of single-page reads to issue." default:"500000"`
	Seed       uint64 `help:"Workload RNG seed." default:"1"`
	CachePages int    `help:"Cache capacity in pages; 0 uses ${env} or the built-in default." default:"0"`
	LogLevel   string `help:"Log level; empty uses ${logenv} or info."`
	MetricsPort int   `help:"Expose Prometheus metrics on this port; 0 disables."`
}

func main() {
	ctx := kong.Parse(&cli,
		kong.Name("qpager_bench"),
		kong.Description("Random page-read benchmark over a 2Q-cached file."),
		kong.UsageOnError(),
		kong.Vars{
			"env":    config.EnvCachePages,
			"logenv": logger.EnvLogLevel,
		},
	)

	log := logger.New(cli.LogLevel)
	defer log.Sync()

	ctx.FatalIfErrorf(run(log))
}

func run(log *zap.Logger) error {
	ps := os.Getpagesize()
	if cli.WsPages > cli.FilePages {
		cli.WsPages = cli.FilePages
	}
	if cli.WsPages <= 0 || cli.Ops <= 0 || cli.FilePages <= 0 {
		return fmt.Errorf("file-pages, ws-pages and ops must be positive")
	}

	if err := fillFile(cli.File, cli.FilePages, ps); err != nil {
		return err
	}

	tel, shutdown, err := telemetry.New(telemetry.Config{
		Enabled:        cli.MetricsPort > 0,
		ServiceName:    "qpager_bench",
		PrometheusPort: cli.MetricsPort,
	})
	if err != nil {
		return err
	}
	defer shutdown(context.Background())

	seed := cli.Seed
	start := time.Now()

	switch cli.Mode {
	case "os":
		if err := runRaw(log, ps, &seed); err != nil {
			return err
		}
	case "cached":
		if err := runCached(log, tel, ps, &seed); err != nil {
			return err
		}
	}

	elapsed := time.Since(start).Seconds()
	mib := float64(cli.Ops) * float64(ps) / (1024 * 1024)
	fmt.Printf("mode=%s file_pages=%d ws_pages=%d ops=%d page_size=%d\n",
		cli.Mode, cli.FilePages, cli.WsPages, cli.Ops, ps)
	fmt.Printf("time_sec=%.6f throughput_mib_s=%.2f ops_s=%.2f\n",
		elapsed, mib/elapsed, float64(cli.Ops)/elapsed)
	return nil
}

// runRaw is the no-cache baseline: direct full-page reads against the
// store.
func runRaw(log *zap.Logger, ps int, seed *uint64) error {
	store, err := pagestore.Open(cli.File, os.O_RDONLY, 0, log)
	if err != nil {
		return err
	}
	defer store.Close()

	buf := store.AlignedBuffer()
	for i := 0; i < cli.Ops; i++ {
		page := xorshift64(seed) % uint64(cli.WsPages)
		n, err := store.ReadPage(page, buf)
		if err != nil {
			return err
		}
		if n != ps {
			return fmt.Errorf("short read of page %d: %d bytes", page, n)
		}
	}
	return nil
}

func runCached(log *zap.Logger, tel *telemetry.Telemetry, ps int, seed *uint64) error {
	opts := []vfile.Option{vfile.WithLogger(log), vfile.WithMeter(tel.Meter)}
	if cli.CachePages > 0 {
		opts = append(opts, vfile.WithCachePages(cli.CachePages))
	}
	table := vfile.NewTable(opts...)

	fd, err := table.Open(cli.File, os.O_RDONLY, 0)
	if err != nil {
		return err
	}
	defer table.Close(fd)

	buf := make([]byte, ps)
	for i := 0; i < cli.Ops; i++ {
		page := xorshift64(seed) % uint64(cli.WsPages)
		if _, err := table.Seek(fd, int64(page)*int64(ps), io.SeekStart); err != nil {
			return err
		}
		n, err := table.Read(fd, buf)
		if err != nil {
			return err
		}
		if n != ps {
			return fmt.Errorf("short read of page %d: %d bytes", page, n)
		}
	}

	stats, err := table.Stats(fd)
	if err != nil {
		return err
	}
	log.Info("cache counters",
		zap.Uint64("hits", stats.Hits),
		zap.Uint64("ghost_hits", stats.GhostHits),
		zap.Uint64("misses", stats.Misses),
		zap.Uint64("evictions", stats.Evictions),
		zap.Uint64("flushes", stats.Flushes),
	)
	return nil
}

// fillFile extends path with 0xAB-filled pages up to pages*ps bytes.
func fillFile(path string, pages, ps int) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return err
	}
	want := int64(pages) * int64(ps)
	if fi.Size() >= want {
		return nil
	}

	page := make([]byte, ps)
	for i := range page {
		page[i] = 0xAB
	}
	for i := fi.Size() / int64(ps); i < int64(pages); i++ {
		if _, err := f.WriteAt(page, i*int64(ps)); err != nil {
			return err
		}
	}
	if err := f.Truncate(want); err != nil {
		return err
	}
	return f.Sync()
}

func xorshift64(s *uint64) uint64 {
	x := *s
	x ^= x << 13
	x ^= x >> 7
	x ^= x << 17
	*s = x
	return x
}
