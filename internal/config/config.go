package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort        string
	AppEnv         string
	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string
	DynamoTables   DynamoTables
	S3BucketName   string // admin report archive; empty disables archiving
	JWTPrivateKeyPath string
	JWTPublicKeyPath  string
	JWTExpiry         time.Duration
	SMTPHost     string
	SMTPPort     string
	SMTPFrom     string
	SMTPUsername string
	SMTPPassword string
	SNSRegion      string
	AdminTopicARN  string
	AllowedOrigins []string // CORS allowed origins
	Worker         Worker
	// EagerReconcile enqueues the related-objects task before the update is
	// looked up or validated.
	EagerReconcile  bool
	DetailRateLimit float64
	DetailRateBurst int
	// TrustProxyHeaders honours X-Forwarded-For / X-Real-IP. Enable only
	// behind a proxy that overwrites them.
	TrustProxyHeaders bool
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	Users         string
	Notifications string
	Tasks         string
}

// Worker holds the task worker pool settings.
type Worker struct {
	Concurrency   int
	PollInterval  time.Duration
	Lease         time.Duration
	MaxAttempts   int
	RetentionDays int
}

// Load reads all configuration from environment variables.
func Load() *Config {
	return &Config{
		AppPort:        getEnv("APP_PORT", "3000"),
		AppEnv:         getEnv("APP_ENV", "development"),
		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		DynamoTables: DynamoTables{
			Users:         getEnv("DYNAMO_TABLE_USERS", "users"),
			Notifications: getEnv("DYNAMO_TABLE_NOTIFICATIONS", "notifications"),
			Tasks:         getEnv("DYNAMO_TABLE_TASKS", "tasks"),
		},
		S3BucketName:      getEnv("S3_BUCKET_NAME", ""),
		JWTPrivateKeyPath: getEnv("JWT_PRIVATE_KEY_PATH", "./private_key.pem"),
		JWTPublicKeyPath:  getEnv("JWT_PUBLIC_KEY_PATH", "./public_key.pem"),
		JWTExpiry:         time.Duration(getEnvInt("JWT_EXPIRY_HOURS", 24)) * time.Hour,
		SMTPHost:     getEnv("SMTP_HOST", "localhost"),
		SMTPPort:     getEnv("SMTP_PORT", "1025"),
		SMTPFrom:     getEnv("SMTP_FROM", "noreply@example.com"),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SNSRegion:      getEnv("SNS_REGION", "us-east-1"),
		AdminTopicARN:  getEnv("ADMIN_TOPIC_ARN", ""),
		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
		Worker: Worker{
			Concurrency:   getEnvInt("WORKER_CONCURRENCY", 4),
			PollInterval:  getEnvDuration("WORKER_POLL_INTERVAL", 2*time.Second),
			Lease:         getEnvDuration("TASK_LEASE", 5*time.Minute),
			MaxAttempts:   getEnvInt("TASK_MAX_ATTEMPTS", 5),
			RetentionDays: getEnvInt("TASK_RETENTION_DAYS", 7),
		},
		EagerReconcile:  getEnvBool("EAGER_RECONCILE", false),
		DetailRateLimit: getEnvFloat("DETAIL_RATE_LIMIT", 10),
		DetailRateBurst: getEnvInt("DETAIL_RATE_BURST", 20),

		TrustProxyHeaders: getEnvBool("TRUST_PROXY_HEADERS", false),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration accepts Go duration strings ("30s", "5m").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
