package coremain

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pmkol/sharedlru/mlog"
	"github.com/pmkol/sharedlru/pkg/lru_cache"
	"github.com/pmkol/sharedlru/pkg/utils"
)

type benchFlags struct {
	instances int
	ops       int
	keys      int
	putRatio  float64
}

type benchResult struct {
	hits, misses, puts int64
	elapsed            time.Duration
}

func (r *benchResult) hitRatio() float64 {
	if total := r.hits + r.misses; total > 0 {
		return float64(r.hits) / float64(total)
	}
	return 0
}

func newBenchCmd() *cobra.Command {
	bf := new(benchFlags)
	c := &cobra.Command{
		Use:          "bench [--instances n] [--ops n]",
		Short:        "Run instances concurrently against one namespace.",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(configFile)
			if err != nil {
				return err
			}
			lg, err := mlog.NewLogger(&cfg.Log)
			if err != nil {
				return fmt.Errorf("failed to init logger: %w", err)
			}
			res, err := runBench(cmd.Context(), cfg, bf, lg)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "gets: %d, hits: %d, puts: %d, hit ratio: %.3f, elapsed: %s\n",
				res.hits+res.misses, res.hits, res.puts, res.hitRatio(), res.elapsed)
			return nil
		},
	}
	fs := c.Flags()
	fs.IntVar(&bf.instances, "instances", 4, "number of cache instances")
	fs.IntVar(&bf.ops, "ops", 1000, "operations per instance")
	fs.IntVar(&bf.keys, "keys", 0, "key space size, default is twice the capacity")
	fs.Float64Var(&bf.putRatio, "put-ratio", 0.3, "share of puts among operations")
	return c
}

func runBench(ctx context.Context, cfg *Config, bf *benchFlags, lg *zap.Logger) (*benchResult, error) {
	if err := utils.CheckNumRange(bf.instances, 1, 1024); err != nil {
		return nil, fmt.Errorf("invalid instances, %w", err)
	}
	if bf.ops < 0 {
		return nil, fmt.Errorf("invalid ops %d", bf.ops)
	}
	keys := bf.keys
	if keys <= 0 {
		keys = cfg.Cache.Capacity * 2
	}

	caches := make([]*lru_cache.Cache, 0, bf.instances)
	defer func() {
		for _, c := range caches {
			c.Close()
		}
	}()
	for i := 0; i < bf.instances; i++ {
		c, b, err := newCache(cfg, lg.With(zap.Int("instance", i)), nil)
		if err != nil {
			return nil, err
		}
		defer b.Close()
		caches = append(caches, c)
	}

	res := new(benchResult)
	start := time.Now()
	g, gCtx := errgroup.WithContext(ctx)
	for i, c := range caches {
		r := rand.New(rand.NewSource(int64(i)))
		g.Go(func() error {
			for j := 0; j < bf.ops; j++ {
				k := "bench_" + strconv.Itoa(r.Intn(keys))
				if r.Float64() < bf.putRatio {
					if _, err := c.Put(gCtx, k, strconv.Itoa(j), 0); err != nil {
						return err
					}
					atomic.AddInt64(&res.puts, 1)
					continue
				}
				_, ok, err := c.Get(gCtx, k)
				if err != nil {
					return err
				}
				if ok {
					atomic.AddInt64(&res.hits, 1)
				} else {
					atomic.AddInt64(&res.misses, 1)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	res.elapsed = time.Since(start)
	lg.Info("bench finished", zap.Int64("hits", res.hits), zap.Int64("misses", res.misses), zap.Duration("elapsed", res.elapsed))
	return res, nil
}
