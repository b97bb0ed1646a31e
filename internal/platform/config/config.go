package config

import (
	"os"
	"strconv"
	"time"

	pstrings "verigate/pkg/platform/strings"
)

// Config is the full process configuration assembled from the environment.
type Config struct {
	Server       Server
	Database     DatabaseConfig
	Redis        RedisConfig
	Kafka        KafkaConfig
	Verification VerificationConfig
	Monitor      MonitorConfig
	Admission    AdmissionConfig
	RateLimit    RateLimitConfig
	Log          LogConfig
	Tracing      TracingConfig
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	AdminToken      string
	JWTSigningKey   string
	ShutdownTimeout time.Duration
}

// DatabaseConfig selects the ledger store. An empty URL means in-memory.
type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
}

// RedisConfig configures the reward-code cache. An empty URL disables it.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CodeTTL      time.Duration
}

// KafkaConfig configures the outcome audit stream. No brokers means the
// audit publisher only keeps events in memory.
type KafkaConfig struct {
	Brokers  []string
	Topic    string
	ClientID string
}

// VerificationConfig holds cost and delayed-code polling settings.
type VerificationConfig struct {
	Cost             int
	PollInterval     time.Duration
	PollMaxWait      time.Duration
	StatusBaseURL    string
	StatusTimeout    time.Duration
	SettleMaxRetries uint64
	// RefundSweepInterval is how often refunds owed after failed settlement
	// are retried.
	RefundSweepInterval time.Duration
	CheckInReward       int
	// BackendURLs maps a category to its verifier backend. Categories without
	// a URL use the development mock verifier.
	BackendURLs    map[string]string
	BackendTimeout time.Duration
	MockLatency    time.Duration
}

// MonitorConfig holds the load monitor's cadence, thresholds, and factors.
type MonitorConfig struct {
	Interval       time.Duration
	HighCPU        float64
	HighMem        float64
	LowCPU         float64
	LowMem         float64
	ScaleDown      float64
	ScaleUp        float64
	SampleDuration time.Duration
}

// AdmissionConfig holds the share of the budget each pool class receives.
type AdmissionConfig struct {
	HeavyFraction float64
	LightFraction float64
	HeavyMin      int
	LightMin      int
}

// RateLimitConfig bounds how many verification attempts one user may start
// per window. A zero limit disables the throttle.
type RateLimitConfig struct {
	Limit  int
	Window time.Duration
}

type LogConfig struct {
	Level  string
	Format string // json or text
}

type TracingConfig struct {
	Exporter    string // "" (noop) or "stdout"
	ServiceName string
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	return Config{
		Server: Server{
			Addr:            getEnv("VERIGATE_ADDR", ":8080"),
			AdminToken:      os.Getenv("ADMIN_API_TOKEN"),
			JWTSigningKey:   jwtSigningKey,
			ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: getInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			CodeTTL:      getDuration("REWARD_CODE_TTL", 24*time.Hour),
		},
		Kafka: KafkaConfig{
			Brokers:  getList("KAFKA_BROKERS"),
			Topic:    getEnv("KAFKA_AUDIT_TOPIC", "verification.outcomes"),
			ClientID: getEnv("KAFKA_CLIENT_ID", "verigate"),
		},
		Verification: VerificationConfig{
			Cost:                getInt("VERIFY_COST", 5),
			PollInterval:        getDuration("REWARD_POLL_INTERVAL", 5*time.Second),
			PollMaxWait:         getDuration("REWARD_POLL_MAX_WAIT", 20*time.Second),
			StatusBaseURL:       getEnv("STATUS_BASE_URL", "https://my.sheerid.com/rest/v2"),
			StatusTimeout:       getDuration("STATUS_TIMEOUT", 10*time.Second),
			SettleMaxRetries:    uint64(getInt("SETTLE_MAX_RETRIES", 3)),
			RefundSweepInterval: getDuration("REFUND_SWEEP_INTERVAL", time.Minute),
			CheckInReward:       getInt("CHECKIN_REWARD", 1),
			BackendURLs:         backendURLs(),
			BackendTimeout:      getDuration("VERIFIER_TIMEOUT", 5*time.Minute),
			MockLatency:         getDuration("MOCK_VERIFIER_LATENCY", 2*time.Second),
		},
		Monitor: MonitorConfig{
			Interval:       getDuration("MONITOR_INTERVAL", 60*time.Second),
			HighCPU:        getFloat("MONITOR_HIGH_CPU", 80),
			HighMem:        getFloat("MONITOR_HIGH_MEM", 85),
			LowCPU:         getFloat("MONITOR_LOW_CPU", 40),
			LowMem:         getFloat("MONITOR_LOW_MEM", 60),
			ScaleDown:      getFloat("MONITOR_SCALE_DOWN", 0.7),
			ScaleUp:        getFloat("MONITOR_SCALE_UP", 1.2),
			SampleDuration: getDuration("MONITOR_SAMPLE_DURATION", time.Second),
		},
		Admission: AdmissionConfig{
			HeavyFraction: getFloat("POOL_HEAVY_FRACTION", 0.3),
			LightFraction: getFloat("POOL_LIGHT_FRACTION", 0.5),
			HeavyMin:      getInt("POOL_HEAVY_MIN", 2),
			LightMin:      getInt("POOL_LIGHT_MIN", 3),
		},
		RateLimit: RateLimitConfig{
			Limit:  getInt("VERIFY_RATE_LIMIT", 10),
			Window: getDuration("VERIFY_RATE_WINDOW", time.Minute),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Tracing: TracingConfig{
			Exporter:    os.Getenv("OTEL_EXPORTER"),
			ServiceName: getEnv("OTEL_SERVICE_NAME", "verigate"),
		},
	}
}

var backendEnv = map[string]string{
	"gemini_one_pro":      "VERIFIER_GEMINI_URL",
	"chatgpt_teacher_k12": "VERIFIER_K12_URL",
	"spotify_student":     "VERIFIER_SPOTIFY_URL",
	"youtube_student":     "VERIFIER_YOUTUBE_URL",
	"bolt_teacher":        "VERIFIER_BOLT_URL",
}

func backendURLs() map[string]string {
	urls := make(map[string]string)
	for category, key := range backendEnv {
		if v := os.Getenv(key); v != "" {
			urls[category] = v
		}
	}
	return urls
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func getList(key string) []string {
	return pstrings.SplitList(os.Getenv(key), ",")
}
