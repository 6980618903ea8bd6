package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr              string
	IdleTimeout       time.Duration // 连接处理完一个请求后等待 IdleTimeout 后依旧没有请求，就会关闭此空闲连接
	ShutdownTimeout   time.Duration // 关闭服务的最长等待时间，超过后强制断开连接
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration

	// 日志配置信息
	LogLevel    slog.Level
	LogFormat   string
	ServiceName string

	PprofEnabled bool
	AdminAddr    string

	// BaseURL 用来拼接返回给客户端的 short_url
	BaseURL string

	// 鉴权：两者都为空时 /shorten 与 /analytics 不做校验
	AuthToken     string
	AuthTokenHash string // bcrypt(AUTH_TOKEN)，由 cmd/tools/hashpass 生成

	// RateLimit：每个 IP 每分钟 RateLimit 个请求，允许突发 RateLimitBurst 个
	RateLimitEnabled bool
	RateLimit        int
	RateLimitBurst   int

	OtlpGrpcEndpoint string
	TracingEnabled   bool

	// DBDSN 决定存储实现：postgres:// | sqlite: | file: | libsql:// | memory:
	DBDSN         string
	SweepInterval time.Duration

	// Redis：REDIS_ADDR 为空时只用进程内缓存
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Kafka
	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string

	// VisitBuffer 是进程内访问记录 channel 的容量
	VisitBuffer int
	GeoIPDBPath string
}

func Load() Config {
	cfg := Config{
		Addr:              ":3000",
		IdleTimeout:       60 * time.Second,
		ShutdownTimeout:   10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,

		LogLevel:    slog.LevelInfo,
		LogFormat:   "json",
		ServiceName: "cutl",

		PprofEnabled: false,
		AdminAddr:    "127.0.0.1:6060",

		BaseURL: "http://localhost:3000",

		RateLimitEnabled: true,
		RateLimit:        10,
		RateLimitBurst:   2,

		OtlpGrpcEndpoint: "127.0.0.1:4317",
		TracingEnabled:   false,

		DBDSN:         "sqlite:cutl.db",
		SweepInterval: time.Minute,

		KafkaEnabled: false,
		KafkaBrokers: []string{"localhost:9092"},
		KafkaTopic:   "cutl-visits",

		VisitBuffer: 1024,
	}

	_ = godotenv.Load(".env")

	// BIND_ADDRESS 是旧部署里用的名字，ADDR 优先
	if v, ok := os.LookupEnv("BIND_ADDRESS"); ok && v != "" {
		cfg.Addr = v
	}
	if v, ok := os.LookupEnv("ADDR"); ok && v != "" {
		cfg.Addr = v
	}
	lookupDuration("IDLE_TIMEOUT", &cfg.IdleTimeout)
	lookupDuration("SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout)
	lookupDuration("READ_HEADER_TIMEOUT", &cfg.ReadHeaderTimeout)
	lookupDuration("READ_TIMEOUT", &cfg.ReadTimeout)
	lookupDuration("WRITE_TIMEOUT", &cfg.WriteTimeout)

	if v, ok := os.LookupEnv("LOG_LEVEL"); ok && v != "" {
		switch strings.ToLower(v) {
		case "debug":
			cfg.LogLevel = slog.LevelDebug
		case "info":
			cfg.LogLevel = slog.LevelInfo
		case "warn", "warning":
			cfg.LogLevel = slog.LevelWarn
		case "error":
			cfg.LogLevel = slog.LevelError
		default:
			cfg.LogLevel = slog.LevelInfo
		}
	}
	if v, ok := os.LookupEnv("LOG_FORMAT"); ok && v != "" {
		cfg.LogFormat = v
	}
	if v, ok := os.LookupEnv("SERVICE_NAME"); ok && v != "" {
		cfg.ServiceName = v
	}

	lookupBool("PPROF_ENABLED", &cfg.PprofEnabled)
	if v, ok := os.LookupEnv("ADMIN_ADDR"); ok && v != "" {
		cfg.AdminAddr = v
	}

	if v, ok := os.LookupEnv("BASE_URL"); ok && v != "" {
		cfg.BaseURL = v
	}
	if v, ok := os.LookupEnv("AUTH_TOKEN"); ok {
		cfg.AuthToken = v
	}
	if v, ok := os.LookupEnv("AUTH_TOKEN_HASH"); ok {
		cfg.AuthTokenHash = v
	}

	lookupBool("RATELIMIT_ENABLED", &cfg.RateLimitEnabled)
	lookupPositiveInt("RATE_LIMIT", &cfg.RateLimit)
	lookupPositiveInt("RATE_LIMIT_BURST", &cfg.RateLimitBurst)

	if v, ok := os.LookupEnv("OTLP_GRPC_ENDPOINT"); ok && v != "" {
		cfg.OtlpGrpcEndpoint = v
	}
	lookupBool("TRACING_ENABLED", &cfg.TracingEnabled)

	if v, ok := os.LookupEnv("DATABASE_URL"); ok && v != "" {
		cfg.DBDSN = v
	}
	if v, ok := os.LookupEnv("DB_DSN"); ok && v != "" {
		cfg.DBDSN = v
	}
	lookupDuration("SWEEP_INTERVAL", &cfg.SweepInterval)

	// Redis
	if v, ok := os.LookupEnv("REDIS_ADDR"); ok {
		cfg.RedisAddr = v
	}
	if v, ok := os.LookupEnv("REDIS_PASSWORD"); ok && v != "" {
		cfg.RedisPassword = v
	}
	if v, ok := os.LookupEnv("REDIS_DB"); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.RedisDB = n
		}
	}

	// Kafka
	lookupBool("KAFKA_ENABLED", &cfg.KafkaEnabled)
	if v, ok := os.LookupEnv("KAFKA_BROKERS"); ok && v != "" {
		cfg.KafkaBrokers = strings.Split(v, ",")
	}
	if v, ok := os.LookupEnv("KAFKA_TOPIC"); ok && v != "" {
		cfg.KafkaTopic = v
	}

	lookupPositiveInt("VISIT_BUFFER", &cfg.VisitBuffer)
	if v, ok := os.LookupEnv("GEOIP_DB_PATH"); ok && v != "" {
		cfg.GeoIPDBPath = v
	}

	return cfg
}

// AuthEnabled reports whether protected routes require a bearer token.
func (c Config) AuthEnabled() bool {
	return c.AuthToken != "" || c.AuthTokenHash != ""
}

// 解析失败时保留默认值
func lookupDuration(key string, dst *time.Duration) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func lookupBool(key string, dst *bool) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = strings.ToLower(v) == "true"
	}
}

func lookupPositiveInt(key string, dst *int) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			*dst = n
		}
	}
}
