package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gke-notify/internal/pkg/validate"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort string `validate:"required,numeric"`
	AppEnv  string

	GCPProject   string // used to build console links; falls back to the message attribute
	SlackWebhook string `validate:"omitempty,http_url"`

	LogLevel string `validate:"omitempty,oneof=trace debug info warn error"`
	JSONLog  bool

	Notify Notify

	// GKE emits one UpgradeAvailableEvent per node pool; these are logged but not sent to chat.
	SuppressNodePoolUpgrades bool

	SNSTopicARN    string // empty disables the SNS mirror
	SNSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string

	PushRateLimit  float64 `validate:"gte=0"` // requests/second on the push endpoint, 0 disables
	PushRateBurst  int     `validate:"gte=0"`
	AllowedOrigins []string // CORS allowed origins for the preview endpoint
}

// Notify holds the chat delivery timeout and retry policy.
type Notify struct {
	Timeout time.Duration `validate:"gt=0,ltefield=TotalTimeout"`
	// TotalTimeout bounds delivery including retries. It must stay under the
	// Pub/Sub push acknowledgement deadline (10s by default).
	TotalTimeout time.Duration `validate:"gt=0,lt=10s"`
	MaxAttempts  int           `validate:"gte=1,lte=10"`
	Backoff      time.Duration `validate:"gte=0"`
	MaxBackoff   time.Duration `validate:"gtefield=Backoff"`
}

// Load reads all configuration from environment variables.
func Load() *Config {
	return &Config{
		AppPort:      getEnv("APP_PORT", getEnv("PORT", "8080")),
		AppEnv:       getEnv("APP_ENV", "development"),
		GCPProject:   getEnv("GCP_PROJECT", ""),
		SlackWebhook: getEnv("SLACK_WEBHOOK", ""),
		LogLevel:     strings.ToLower(getEnv("LOG_LEVEL", "info")),
		JSONLog:      getEnvBool("JSON_LOG", false),
		Notify: Notify{
			Timeout:      getEnvDuration("NOTIFY_TIMEOUT", 5*time.Second),
			TotalTimeout: getEnvDuration("NOTIFY_TOTAL_TIMEOUT", 8*time.Second),
			MaxAttempts:  getEnvInt("NOTIFY_MAX_ATTEMPTS", 4),
			Backoff:      getEnvDuration("NOTIFY_BACKOFF", 250*time.Millisecond),
			MaxBackoff:   getEnvDuration("NOTIFY_MAX_BACKOFF", 2*time.Second),
		},
		SuppressNodePoolUpgrades: getEnvBool("SUPPRESS_NODE_POOL_UPGRADES", true),
		SNSTopicARN:              getEnv("SNS_TOPIC_ARN", ""),
		SNSRegion:                getEnv("SNS_REGION", getEnv("AWS_REGION", "us-east-1")),
		AWSEndpointURL:           getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID:           getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:             getEnv("AWS_SECRET_ACCESS_KEY", ""),
		PushRateLimit:            getEnvFloat("PUSH_RATE_LIMIT", 50),
		PushRateBurst:            getEnvInt("PUSH_RATE_BURST", 100),
		AllowedOrigins:           strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
	}
}

// Validate rejects configuration the service cannot run with, such as a
// malformed webhook URL. It is called once at startup.
func (c *Config) Validate() error {
	return validate.Struct(c)
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

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
