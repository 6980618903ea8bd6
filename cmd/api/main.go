package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"cutl.local/gee"
	"cutl.local/gee/middleware"
	"cutl.local/internal/app/shortlink"
	slcache "cutl.local/internal/app/shortlink/cache"
	shortlinkhttpapi "cutl.local/internal/app/shortlink/httpapi"
	"cutl.local/internal/app/shortlink/stats"
	"cutl.local/internal/platform/auth"
	platformcache "cutl.local/internal/platform/cache"
	"cutl.local/internal/platform/config"
	"cutl.local/internal/platform/geoip"
	"cutl.local/internal/platform/httpmiddleware"
	"cutl.local/internal/platform/httpserver"
	"cutl.local/internal/platform/metrics"
	"cutl.local/internal/platform/ratelimit"
	"cutl.local/internal/platform/trace"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	cfg := config.Load()

	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	var h slog.Handler = slog.NewJSONHandler(os.Stdout, opts)
	if cfg.LogFormat == "text" {
		h = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(h).With("service", cfg.ServiceName))

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 存储
	be, err := openStore(stopCtx, cfg.DBDSN)
	if err != nil {
		log.Fatal(err)
	}
	defer be.close()
	slog.Info("store ready", "kind", be.kind)

	// Redis 可选：不配置时只有进程内缓存，负缓存也随之关闭
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient, err = platformcache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Fatal(err)
		}
		defer redisClient.Close()
	} else {
		slog.Warn("Redis disabled, link cache is process local", "REDIS_ADDR", "")
	}

	// 短链缓存
	localCache, err := slcache.NewLocalCache(100000, 1<<24) // 10万条目，16MB
	if err != nil {
		log.Fatal(err)
	}
	linkCache := slcache.NewLinkCache(redisClient, localCache)
	defer linkCache.Close()
	store := slcache.NewCachedStore(be.store, linkCache)

	// 预期 100 万短码，1% 误判率
	codeFilter := slcache.NewBloomFilter(1_000_000, 0.01)

	// 访问记录：Channel 或 Kafka。consumer 直接写底层存储，走批量接口
	var collector stats.Collector
	var runConsumer func(context.Context)
	if cfg.KafkaEnabled {
		slog.Info("visits via kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
		collector = stats.NewKafkaCollector(cfg.KafkaBrokers, cfg.KafkaTopic)
		runConsumer = stats.NewKafkaConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, be.store).Run
	} else {
		channelCollector := stats.NewChannelCollector(cfg.VisitBuffer)
		collector = channelCollector
		runConsumer = stats.NewConsumer(be.store, channelCollector).Run
	}

	svcOpts := []shortlink.Option{shortlink.WithCodeFilter(codeFilter)}
	if cfg.GeoIPDBPath != "" {
		geo, err := geoip.Open(cfg.GeoIPDBPath)
		if err != nil {
			log.Fatal(err)
		}
		defer geo.Close()
		svcOpts = append(svcOpts, shortlink.WithGeoResolver(geo))
	}
	svc := shortlink.NewService(store, collector, svcOpts...)
	agg := shortlink.NewAggregator(store)

	verifier, err := auth.FromConfig(cfg.AuthToken, cfg.AuthTokenHash)
	if err != nil {
		log.Fatal(err)
	}
	if verifier == nil {
		slog.Warn("AUTH_TOKEN not set, /shorten and /analytics are open")
	}

	// 限流器
	var limiter *ratelimit.Limiter
	if cfg.RateLimitEnabled {
		limiter = ratelimit.NewLimiter(cfg.RateLimit, cfg.RateLimitBurst)
	} else {
		slog.Warn("RateLimit disabled by config", "RATELIMIT_ENABLED", false)
	}

	metrics.Init()

	if cfg.TracingEnabled {
		shutdown, err := trace.InitTrace(cfg.OtlpGrpcEndpoint, cfg.ServiceName, version)
		if err != nil {
			slog.Error("trace init failed", "err", err)
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					slog.Error("trace shutdown", "err", err)
				}
			}()
		}
	} else {
		slog.Warn("Tracing disabled by config", "TRACING_ENABLED", false)
	}

	// 对外业务
	r := gee.New()
	r.Use(gee.Recovery(), middleware.ReqID(), middleware.AccessLog(), httpmiddleware.Metrics(), httpmiddleware.TraceName())
	shortlinkhttpapi.Register(r, shortlinkhttpapi.NewHandler(svc, agg, cfg.BaseURL), verifier, limiter)

	publicHandler := http.Handler(r)
	if cfg.TracingEnabled {
		publicHandler = otelhttp.NewHandler(r, "http")
	}
	publicSrv := httpserver.New(cfg, cfg.Addr, publicHandler)
	adminSrv := httpserver.New(cfg, cfg.AdminAddr, adminMux(cfg, be.store.Ping)) // 推荐：127.0.0.1:6060

	// 后台任务：访问记录落库、过期清理、限流桶回收
	bgCtx, bgCancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		runConsumer(bgCtx)
	}()
	go func() {
		defer wg.Done()
		shortlink.NewSweeper(be.store, cfg.SweepInterval).Run(bgCtx)
	}()
	if limiter != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			limiter.Run(bgCtx)
		}()
	}

	errch := make(chan error, 2)
	go func() {
		errch <- httpserver.RunWithGracefulShutdownContext(publicSrv, cfg.ShutdownTimeout, stopCtx)
	}()
	go func() {
		errch <- httpserver.RunWithGracefulShutdownContext(adminSrv, cfg.ShutdownTimeout, stopCtx)
	}()
	slog.Info("listening", "addr", cfg.Addr, "admin_addr", cfg.AdminAddr, "version", version)

	err = <-errch
	stop()
	select {
	case err2 := <-errch:
		if err == nil {
			err = err2
		}
	case <-time.After(cfg.ShutdownTimeout + time.Second):
	}

	// 请求都结束后再关 collector，channel consumer 会把剩余记录刷完再退出
	collector.Close()
	bgCancel()
	wg.Wait()

	if err != nil {
		slog.Error("server exited", "err", err)
		os.Exit(1)
	}
	slog.Info("bye")
}

// adminMux 仅本机/内网访问
func adminMux(cfg config.Config, ping func(context.Context) error) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	// 存储连接状态检测
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("store not ready"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	})

	mux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"service_name": cfg.ServiceName,
			"version":      version,
			"commit":       commit,
			"build_time":   buildTime,
			"go_version":   runtime.Version(),
		})
	})

	if cfg.PprofEnabled {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	return mux
}
