package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// Sync modes.
const (
	ModeBidirectional = "bidirectional"
	ModeAToB          = "a_to_b"
	ModeBToA          = "b_to_a"
)

// Conflict resolution strategies.
const (
	ConflictLatestWins      = "latest_wins"
	ConflictSourceWins      = "source_wins"
	ConflictCounterpartWins = "counterpart_wins"
	ConflictKeepBoth        = "keep_both"
	ConflictManual          = "manual"
)

// SideConfig holds the per-side storage backend settings.
type SideConfig struct {
	Mode            string        // "live" or "simulated"
	TargetRoot      string        // root prefix under which files are tracked
	PollingInterval time.Duration // watcher poll interval
	WatchSubfolders bool
}

// Config holds all configuration for the syncbridge server.
type Config struct {
	Port        int
	APIKey      string
	MetricsAddr string // standalone Prometheus endpoint, empty = disabled
	LogLevel    string

	SideA SideConfig
	SideB SideConfig

	// Source A: S3-compatible object storage
	S3Endpoint        string // e.g. "https://<account>.r2.cloudflarestorage.com"
	S3Bucket          string
	S3Region          string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3ForcePathStyle  bool // true for R2/MinIO

	// Source B: PostgreSQL entry workspace
	DatabaseURL string

	// Sync behavior
	SyncMode           string // "bidirectional", "a_to_b", "b_to_a"
	ConflictResolution string
	AutoRetry          bool

	// OCR enrichment
	OCREnabled bool
	OCRBaseURL string
	OCRAPIKey  string

	// Journal persistence (SQLite). Empty disables persistence.
	JournalPath string

	// NATS change-event audit stream. Empty disables publishing.
	NATSURL string

	// Bounded timeout applied to every adapter and OCR call.
	CallTimeout time.Duration

	// AWS Secrets Manager — if set, secrets are fetched at startup using IAM
	// credentials. The secret should be a JSON object with keys matching env
	// var names. Env vars take precedence over secret values.
	SecretsARN string
}

// Load reads configuration from environment variables with sensible defaults.
// If SYNCBRIDGE_SECRETS_ARN is set, secrets are fetched from AWS Secrets
// Manager first, then environment variables are applied on top.
func Load() (*Config, error) {
	if arn := os.Getenv("SYNCBRIDGE_SECRETS_ARN"); arn != "" {
		if err := loadSecretsManager(arn); err != nil {
			return nil, fmt.Errorf("failed to load secrets from %s: %w", arn, err)
		}
	}

	cfg := &Config{
		Port:        8080,
		APIKey:      os.Getenv("SYNCBRIDGE_API_KEY"),
		MetricsAddr: os.Getenv("SYNCBRIDGE_METRICS_ADDR"),
		LogLevel:    envOrDefault("SYNCBRIDGE_LOG_LEVEL", "info"),

		SideA: SideConfig{
			Mode:            envOrDefault("SYNCBRIDGE_A_MODE", ""),
			TargetRoot:      envOrDefault("SYNCBRIDGE_A_TARGET_ROOT", "sync/"),
			PollingInterval: envOrDefaultDuration("SYNCBRIDGE_A_POLL_INTERVAL", 15*time.Second),
			WatchSubfolders: envOrDefault("SYNCBRIDGE_A_WATCH_SUBFOLDERS", "true") == "true",
		},
		SideB: SideConfig{
			Mode:            envOrDefault("SYNCBRIDGE_B_MODE", ""),
			TargetRoot:      envOrDefault("SYNCBRIDGE_B_TARGET_ROOT", "/"),
			PollingInterval: envOrDefaultDuration("SYNCBRIDGE_B_POLL_INTERVAL", 15*time.Second),
			WatchSubfolders: envOrDefault("SYNCBRIDGE_B_WATCH_SUBFOLDERS", "true") == "true",
		},

		S3Endpoint:        os.Getenv("SYNCBRIDGE_S3_ENDPOINT"),
		S3Bucket:          os.Getenv("SYNCBRIDGE_S3_BUCKET"),
		S3Region:          envOrDefault("SYNCBRIDGE_S3_REGION", "us-east-1"),
		S3AccessKeyID:     os.Getenv("SYNCBRIDGE_S3_ACCESS_KEY_ID"),
		S3SecretAccessKey: os.Getenv("SYNCBRIDGE_S3_SECRET_ACCESS_KEY"),
		S3ForcePathStyle:  os.Getenv("SYNCBRIDGE_S3_FORCE_PATH_STYLE") == "true",

		DatabaseURL: envOrDefault("SYNCBRIDGE_DATABASE_URL", os.Getenv("DATABASE_URL")),

		SyncMode:           envOrDefault("SYNCBRIDGE_SYNC_MODE", ModeBidirectional),
		ConflictResolution: envOrDefault("SYNCBRIDGE_CONFLICT_RESOLUTION", ConflictLatestWins),
		AutoRetry:          envOrDefault("SYNCBRIDGE_AUTO_RETRY", "true") == "true",

		OCREnabled: os.Getenv("SYNCBRIDGE_OCR_ENABLED") == "true",
		OCRBaseURL: os.Getenv("SYNCBRIDGE_OCR_BASE_URL"),
		OCRAPIKey:  os.Getenv("SYNCBRIDGE_OCR_API_KEY"),

		JournalPath: os.Getenv("SYNCBRIDGE_JOURNAL_PATH"),
		NATSURL:     os.Getenv("SYNCBRIDGE_NATS_URL"),

		CallTimeout: envOrDefaultDuration("SYNCBRIDGE_CALL_TIMEOUT", 45*time.Second),

		SecretsARN: os.Getenv("SYNCBRIDGE_SECRETS_ARN"),
	}

	// Default each side to live when its credentials are present, simulated
	// otherwise. Simulation is a first-class mode, not a test shim: the
	// engine must run without live credentials.
	if cfg.SideA.Mode == "" {
		if cfg.S3Bucket != "" && cfg.S3AccessKeyID != "" {
			cfg.SideA.Mode = "live"
		} else {
			cfg.SideA.Mode = "simulated"
		}
	}
	if cfg.SideB.Mode == "" {
		if cfg.DatabaseURL != "" {
			cfg.SideB.Mode = "live"
		} else {
			cfg.SideB.Mode = "simulated"
		}
	}

	if portStr := os.Getenv("SYNCBRIDGE_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid SYNCBRIDGE_PORT %q: %w", portStr, err)
		}
		cfg.Port = port
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for contradictions. Validation errors are
// fatal at startup; nothing else in the process surfaces them.
func (c *Config) Validate() error {
	switch c.SyncMode {
	case ModeBidirectional, ModeAToB, ModeBToA:
	default:
		return fmt.Errorf("invalid sync mode %q", c.SyncMode)
	}

	switch c.ConflictResolution {
	case ConflictLatestWins, ConflictSourceWins, ConflictCounterpartWins, ConflictKeepBoth, ConflictManual:
	default:
		return fmt.Errorf("invalid conflict resolution strategy %q", c.ConflictResolution)
	}

	for side, sc := range map[string]SideConfig{"A": c.SideA, "B": c.SideB} {
		if sc.Mode != "live" && sc.Mode != "simulated" {
			return fmt.Errorf("side %s: invalid mode %q (want \"live\" or \"simulated\")", side, sc.Mode)
		}
		if sc.PollingInterval <= 0 {
			return fmt.Errorf("side %s: polling interval must be positive, got %s", side, sc.PollingInterval)
		}
	}

	if c.SideA.Mode == "live" && (c.S3Bucket == "" || c.S3AccessKeyID == "" || c.S3SecretAccessKey == "") {
		return fmt.Errorf("side A is live but S3 bucket/credentials are not configured")
	}
	if c.SideB.Mode == "live" && c.DatabaseURL == "" {
		return fmt.Errorf("side B is live but SYNCBRIDGE_DATABASE_URL is not configured")
	}

	if c.OCREnabled && c.OCRBaseURL == "" {
		return fmt.Errorf("OCR is enabled but SYNCBRIDGE_OCR_BASE_URL is not configured")
	}

	if c.CallTimeout <= 0 {
		return fmt.Errorf("call timeout must be positive, got %s", c.CallTimeout)
	}

	return nil
}

// Redacted returns a copy safe to expose on the /config endpoint.
func (c *Config) Redacted() *Config {
	out := *c
	if out.APIKey != "" {
		out.APIKey = "[redacted]"
	}
	if out.S3SecretAccessKey != "" {
		out.S3SecretAccessKey = "[redacted]"
	}
	if out.S3AccessKeyID != "" {
		out.S3AccessKeyID = "[redacted]"
	}
	if out.DatabaseURL != "" {
		out.DatabaseURL = "[redacted]"
	}
	if out.OCRAPIKey != "" {
		out.OCRAPIKey = "[redacted]"
	}
	return &out
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// loadSecretsManager fetches a JSON secret from AWS Secrets Manager and sets
// any values as environment variables (only if not already set, so explicit
// env vars always win). Uses the default AWS credential chain.
func loadSecretsManager(arn string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Extract region from ARN: arn:aws:secretsmanager:REGION:ACCOUNT:secret:NAME
	var opts []func(*awsconfig.LoadOptions) error
	if parts := strings.Split(arn, ":"); len(parts) >= 4 && parts[3] != "" {
		opts = append(opts, awsconfig.WithRegion(parts[3]))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return fmt.Errorf("load AWS config: %w", err)
	}

	client := secretsmanager.NewFromConfig(awsCfg)
	result, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: &arn,
	})
	if err != nil {
		return fmt.Errorf("GetSecretValue: %w", err)
	}

	if result.SecretString == nil {
		return fmt.Errorf("secret %s has no string value", arn)
	}

	var secrets map[string]string
	if err := json.Unmarshal([]byte(*result.SecretString), &secrets); err != nil {
		return fmt.Errorf("parse secret JSON: %w", err)
	}

	applied := 0
	for key, value := range secrets {
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
			applied++
		}
	}

	log.Printf("config: loaded %d secrets from Secrets Manager (%d keys in secret, env overrides take precedence)", applied, len(secrets))
	return nil
}
