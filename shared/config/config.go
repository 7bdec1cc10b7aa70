package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Problem struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type Config struct {
	Env              string
	ServiceName      string
	HTTPPort         int
	LogLevel         string
	RequestTimeoutMS int
	RequestTimeout   time.Duration

	DatabaseURL      string
	DBMaxConns       int
	DBMinConns       int
	DBConnMaxIdleSec int
	DBConnMaxLifeSec int

	KafkaBrokers  []string
	KafkaClientID string
	KafkaRetryMax int
	KafkaWriteMS  int

	PolicyConsumerGroup string
	ClaimConsumerGroup  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTLMin   int

	RetryInitialMS   int
	RetryMultiplier  float64
	RetryCapMS       int
	RetryMaxAttempts int

	NotifyEnabled bool
	SESRegion     string
	SESFromEmail  string

	OtelEnabled     bool
	OtelEndpoint    string
	OtelInsecure    bool
	OtelSampleRatio float64
}

// Load reads configuration from the environment, applying defaults and
// collecting validation problems instead of failing fast so callers can
// report every broken field at once.
func Load(serviceNameDefault string, httpPortDefault int) (Config, []Problem) {
	cfg := Config{
		Env:                 strings.TrimSpace(os.Getenv("ENV")),
		ServiceName:         serviceNameDefault,
		HTTPPort:            httpPortDefault,
		LogLevel:            "info",
		RequestTimeoutMS:    30000,
		DatabaseURL:         strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DBMaxConns:          10,
		DBMinConns:          1,
		DBConnMaxIdleSec:    300,
		DBConnMaxLifeSec:    1800,
		KafkaClientID:       serviceNameDefault,
		KafkaRetryMax:       5,
		KafkaWriteMS:        5000,
		PolicyConsumerGroup: "policy-processor",
		ClaimConsumerGroup:  "claim-processor",
		RedisDB:             0,
		CacheTTLMin:         30,
		RetryInitialMS:      500,
		RetryMultiplier:     2.0,
		RetryCapMS:          5000,
		RetryMaxAttempts:    3,
		NotifyEnabled:       false,
		OtelInsecure:        true,
		OtelSampleRatio:     1.0,
	}

	problems := make([]Problem, 0, 4)

	if v := strings.TrimSpace(os.Getenv("SERVICE_NAME")); v != "" {
		cfg.ServiceName = v
	}
	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" {
		cfg.LogLevel = v
	}
	applyInt(&cfg.HTTPPort, "HTTP_PORT", &problems)
	applyInt(&cfg.RequestTimeoutMS, "REQUEST_TIMEOUT_MS", &problems)
	applyInt(&cfg.DBMaxConns, "DB_MAX_CONNS", &problems)
	applyInt(&cfg.DBMinConns, "DB_MIN_CONNS", &problems)
	applyInt(&cfg.DBConnMaxIdleSec, "DB_CONN_MAX_IDLE_SECONDS", &problems)
	applyInt(&cfg.DBConnMaxLifeSec, "DB_CONN_MAX_LIFETIME_SECONDS", &problems)
	applyInt(&cfg.KafkaRetryMax, "KAFKA_RETRY_MAX", &problems)
	applyInt(&cfg.KafkaWriteMS, "KAFKA_WRITE_TIMEOUT_MS", &problems)
	applyInt(&cfg.RedisDB, "REDIS_DB", &problems)
	applyInt(&cfg.CacheTTLMin, "CACHE_TTL_MINUTES", &problems)
	applyInt(&cfg.RetryInitialMS, "CONSUMER_RETRY_INITIAL_MS", &problems)
	applyInt(&cfg.RetryCapMS, "CONSUMER_RETRY_CAP_MS", &problems)
	applyInt(&cfg.RetryMaxAttempts, "CONSUMER_RETRY_MAX_ATTEMPTS", &problems)
	applyFloat(&cfg.RetryMultiplier, "CONSUMER_RETRY_MULTIPLIER", &problems)
	applyFloat(&cfg.OtelSampleRatio, "OTEL_SAMPLE_RATIO", &problems)
	applyBool(&cfg.NotifyEnabled, "NOTIFY_ENABLED", &problems)
	applyBool(&cfg.OtelEnabled, "OTEL_ENABLED", &problems)
	applyBool(&cfg.OtelInsecure, "OTEL_EXPORTER_OTLP_INSECURE", &problems)

	if v := strings.TrimSpace(os.Getenv("KAFKA_BROKERS")); v != "" {
		cfg.KafkaBrokers = parseCSV(v)
	}
	if v := strings.TrimSpace(os.Getenv("KAFKA_CLIENT_ID")); v != "" {
		cfg.KafkaClientID = v
	}
	if v := strings.TrimSpace(os.Getenv("POLICY_CONSUMER_GROUP")); v != "" {
		cfg.PolicyConsumerGroup = v
	}
	if v := strings.TrimSpace(os.Getenv("CLAIM_CONSUMER_GROUP")); v != "" {
		cfg.ClaimConsumerGroup = v
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_ADDR")); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := strings.TrimSpace(os.Getenv("SES_REGION")); v != "" {
		cfg.SESRegion = v
	}
	if v := strings.TrimSpace(os.Getenv("SES_FROM_EMAIL")); v != "" {
		cfg.SESFromEmail = v
	}
	if v := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")); v != "" {
		cfg.OtelEndpoint = v
	}

	if cfg.Env == "" {
		cfg.Env = "dev"
	}
	if cfg.HTTPPort <= 0 || cfg.HTTPPort > 65535 {
		problems = append(problems, Problem{Field: "HTTP_PORT", Message: "HTTP_PORT must be 1-65535"})
		cfg.HTTPPort = httpPortDefault
	}
	if cfg.RequestTimeoutMS <= 0 {
		problems = append(problems, Problem{Field: "REQUEST_TIMEOUT_MS", Message: "REQUEST_TIMEOUT_MS must be > 0"})
		cfg.RequestTimeoutMS = 30000
	}
	cfg.RequestTimeout = time.Duration(cfg.RequestTimeoutMS) * time.Millisecond
	if cfg.DBMaxConns <= 0 {
		problems = append(problems, Problem{Field: "DB_MAX_CONNS", Message: "DB_MAX_CONNS must be > 0"})
		cfg.DBMaxConns = 10
	}
	if cfg.DBMinConns < 0 || cfg.DBMinConns > cfg.DBMaxConns {
		problems = append(problems, Problem{Field: "DB_MIN_CONNS", Message: "DB_MIN_CONNS must be between 0 and DB_MAX_CONNS"})
		cfg.DBMinConns = 1
	}
	if cfg.KafkaRetryMax < 0 {
		problems = append(problems, Problem{Field: "KAFKA_RETRY_MAX", Message: "KAFKA_RETRY_MAX must be >= 0"})
		cfg.KafkaRetryMax = 5
	}
	if cfg.KafkaWriteMS <= 0 {
		problems = append(problems, Problem{Field: "KAFKA_WRITE_TIMEOUT_MS", Message: "KAFKA_WRITE_TIMEOUT_MS must be > 0"})
		cfg.KafkaWriteMS = 5000
	}
	if cfg.CacheTTLMin <= 0 {
		problems = append(problems, Problem{Field: "CACHE_TTL_MINUTES", Message: "CACHE_TTL_MINUTES must be > 0"})
		cfg.CacheTTLMin = 30
	}
	if cfg.RetryInitialMS <= 0 {
		problems = append(problems, Problem{Field: "CONSUMER_RETRY_INITIAL_MS", Message: "CONSUMER_RETRY_INITIAL_MS must be > 0"})
		cfg.RetryInitialMS = 500
	}
	if cfg.RetryMultiplier < 1 {
		problems = append(problems, Problem{Field: "CONSUMER_RETRY_MULTIPLIER", Message: "CONSUMER_RETRY_MULTIPLIER must be >= 1"})
		cfg.RetryMultiplier = 2.0
	}
	if cfg.RetryCapMS < cfg.RetryInitialMS {
		problems = append(problems, Problem{Field: "CONSUMER_RETRY_CAP_MS", Message: "CONSUMER_RETRY_CAP_MS must be >= CONSUMER_RETRY_INITIAL_MS"})
		cfg.RetryCapMS = 5000
	}
	if cfg.RetryMaxAttempts < 0 {
		problems = append(problems, Problem{Field: "CONSUMER_RETRY_MAX_ATTEMPTS", Message: "CONSUMER_RETRY_MAX_ATTEMPTS must be >= 0"})
		cfg.RetryMaxAttempts = 3
	}
	if cfg.NotifyEnabled && cfg.SESFromEmail == "" {
		problems = append(problems, Problem{Field: "SES_FROM_EMAIL", Message: "SES_FROM_EMAIL is required when NOTIFY_ENABLED"})
	}
	if cfg.OtelSampleRatio < 0 || cfg.OtelSampleRatio > 1 {
		problems = append(problems, Problem{Field: "OTEL_SAMPLE_RATIO", Message: "OTEL_SAMPLE_RATIO must be 0-1"})
		cfg.OtelSampleRatio = 1.0
	}

	return cfg, problems
}

func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLMin) * time.Minute
}

func applyInt(dst *int, key string, problems *[]Problem) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*problems = append(*problems, Problem{Field: key, Message: key + " must be an integer"})
		return
	}
	*dst = n
}

func applyFloat(dst *float64, key string, problems *[]Problem) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		*problems = append(*problems, Problem{Field: key, Message: key + " must be a number"})
		return
	}
	*dst = f
}

func applyBool(dst *bool, key string, problems *[]Problem) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	b, ok := asBool(v)
	if !ok {
		*problems = append(*problems, Problem{Field: key, Message: key + " must be a boolean"})
		return
	}
	*dst = b
}

func asBool(v string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "y":
		return true, true
	case "false", "0", "no", "n":
		return false, true
	default:
		return false, false
	}
}

func parseCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
