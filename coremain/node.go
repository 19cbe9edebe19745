package coremain

import (
	"context"
	"fmt"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pmkol/sharedlru/mlog"
	"github.com/pmkol/sharedlru/pkg/kv"
	"github.com/pmkol/sharedlru/pkg/lru_cache"
	"github.com/pmkol/sharedlru/pkg/safe_close"
	"github.com/pmkol/sharedlru/pkg/utils"
)

// Node is a long running cache instance serving the http api.
type Node struct {
	logger *zap.Logger

	backend kv.Backend
	cache   *lru_cache.Cache

	httpAPIMux *http.ServeMux
	metricsReg *prometheus.Registry

	sc *safe_close.SafeClose
}

// newCache builds the configured backend and a cache on top of it.
// reg may be nil.
func newCache(cfg *Config, lg *zap.Logger, reg prometheus.Registerer) (*lru_cache.Cache, kv.Backend, error) {
	b, err := NewBackend(&cfg.Backend, lg)
	if err != nil {
		return nil, nil, err
	}
	c, err := lru_cache.New(lru_cache.Opts{
		Capacity:   cfg.Cache.Capacity,
		DefaultTTL: utils.Seconds(cfg.Cache.TTL),
		Backend:    b,
		OpTimeout:  utils.Millis(cfg.Backend.Timeout),
		Logger:     lg.Named("cache"),
		Registerer: reg,
	})
	if err != nil {
		b.Close()
		return nil, nil, fmt.Errorf("failed to init cache, %w", err)
	}
	return c, b, nil
}

// RunNode runs a node until sc receives a close signal. If v is not
// nil, capacity changes in its config file are applied on the fly.
func RunNode(cfg *Config, v *viper.Viper, sc *safe_close.SafeClose) error {
	defer sc.Done()
	lg, err := mlog.NewLogger(&cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}

	n := &Node{
		logger:     lg,
		httpAPIMux: http.NewServeMux(),
		metricsReg: newMetricsReg(),
		sc:         sc,
	}

	n.cache, n.backend, err = newCache(cfg, lg, n.GetMetricsReg())
	if err != nil {
		return err
	}
	defer n.backend.Close()
	defer n.cache.Close()
	lg.Info(
		"cache started",
		zap.String("backend", cfg.Backend.Type),
		zap.String("cache_name", cfg.Backend.CacheName),
		zap.Int("capacity", cfg.Cache.Capacity),
		zap.Int("ttl", cfg.Cache.TTL),
	)

	if v != nil {
		n.watchConfig(v)
	}

	n.httpAPIMux.Handle("/metrics", promhttp.HandlerFor(n.metricsReg, promhttp.HandlerOpts{}))
	n.httpAPIMux.HandleFunc("/debug/pprof/", pprof.Index)
	n.httpAPIMux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	n.httpAPIMux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	n.httpAPIMux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	n.httpAPIMux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	registerAPI(n.httpAPIMux, n.cache, n.backend, lg)

	if httpAddr := cfg.API.HTTP; len(httpAddr) > 0 {
		httpServer := &http.Server{
			Addr:    httpAddr,
			Handler: n.httpAPIMux,
		}
		sc.Attach(func(done func(), closeSignal <-chan struct{}) {
			defer done()
			errChan := make(chan error, 1)
			go func() {
				lg.Info("starting api http server", zap.String("addr", httpAddr))
				errChan <- httpServer.ListenAndServe()
			}()
			select {
			case err := <-errChan:
				sc.SendCloseSignal(err)
			case <-closeSignal:
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				httpServer.Shutdown(ctx)
			}
		})
	} else {
		lg.Warn("no api.http address configured, node is idle")
	}

	<-sc.ReceiveCloseSignal()
	lg.Info("node exiting")
	sc.Wait()
	return sc.Err()
}

// watchConfig applies cache.capacity changes from the config file.
func (n *Node) watchConfig(v *viper.Viper) {
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := decodeConfig(v)
		if err != nil {
			n.logger.Warn("ignored invalid config change", zap.String("file", e.Name), zap.Error(err))
			return
		}
		if cfg.Cache.Capacity == n.cache.Capacity() {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := n.cache.SetCapacity(ctx, cfg.Cache.Capacity); err != nil {
			n.logger.Warn("failed to apply new capacity", zap.Int("capacity", cfg.Cache.Capacity), zap.Error(err))
			return
		}
		n.logger.Info("capacity changed", zap.Int("capacity", cfg.Cache.Capacity))
	})
	v.WatchConfig()
}

func (n *Node) GetSafeClose() *safe_close.SafeClose {
	return n.sc
}

func (n *Node) GetMetricsReg() prometheus.Registerer {
	return prometheus.WrapRegistererWithPrefix("sharedlru_", n.metricsReg)
}

func (n *Node) GetHTTPAPIMux() *http.ServeMux {
	return n.httpAPIMux
}

func newMetricsReg() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	reg.MustRegister(collectors.NewGoCollector())
	return reg
}
