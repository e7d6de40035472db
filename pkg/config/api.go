package config

import "time"

// APIConfig holds runtime configuration for the API service.
type APIConfig struct {
	Environment   string
	Addr          string
	StoreBackend  string
	DatabaseURL   string
	MigrationsDir string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	RateLimitRedisAddr string
	RateLimitRedisPass string
	RateLimitRedisDB   int

	EditTokenSecret string
	EditTokenTTL    time.Duration

	HostingDomainSuffix   string
	ConsoleURL            string
	ConsoleConflictMarker string
	ChromePath            string
	ChromeHeadless        bool
	HostAPIBaseURL        string
	HostAPIAccountID      string
	HostAPIToken          string
	SelfHostRoot          string
	SelfHostNginx         string
	SelfHostDomainSuffix  string
	MaxSuffixAttempts     int
	StrategyTimeout       time.Duration

	ContentProviders    []string
	ProviderTimeout     time.Duration
	OpenAIAPIKey        string
	OpenAIModel         string
	AnthropicAPIKey     string
	AnthropicModel      string
	ContentWebhookURL   string
	ContentWebhookToken string

	ArchiveBucket   string
	ArchiveRegion   string
	ArchiveEndpoint string
	ArchivePrefix   string

	RunTimeout         time.Duration
	StatusWriteRetries int
	StaleAfter         time.Duration
	SweepInterval      time.Duration
}

// LoadAPIConfig constructs an APIConfig from environment variables.
func LoadAPIConfig() APIConfig {
	return APIConfig{
		Environment:   GetString("APP_ENV", "development"),
		Addr:          GetString("API_ADDR", ":4000"),
		StoreBackend:  GetString("STORE_BACKEND", "memory"),
		DatabaseURL:   GetString("DATABASE_URL", "postgres://sitepress:sitepress@db:5432/sitepress?sslmode=disable"),
		MigrationsDir: GetString("DB_MIGRATIONS_DIR", "db/migrations"),
		RedisAddr:     GetString("REDIS_ADDR", "localhost:6379"),
		RedisPassword: GetString("REDIS_PASSWORD", ""),
		RedisDB:       GetInt("REDIS_DB", 0),
		RedisPrefix:   GetString("REDIS_PREFIX", "sitepress:"),

		RateLimitRedisAddr: GetString("RATE_LIMIT_REDIS_ADDR", ""),
		RateLimitRedisPass: GetString("RATE_LIMIT_REDIS_PASSWORD", ""),
		RateLimitRedisDB:   GetInt("RATE_LIMIT_REDIS_DB", 0),

		EditTokenSecret: GetString("EDIT_TOKEN_SECRET", "supersecuresecret"),
		EditTokenTTL:    time.Duration(GetInt("EDIT_TOKEN_TTL_HOURS", 24*30)) * time.Hour,

		HostingDomainSuffix:   GetString("HOSTING_DOMAIN_SUFFIX", ".tiiny.site"),
		ConsoleURL:            GetString("HOSTING_CONSOLE_URL", ""),
		ConsoleConflictMarker: GetString("HOSTING_CONSOLE_CONFLICT_MARKER", "is already taken"),
		ChromePath:            GetString("CHROME_PATH", ""),
		ChromeHeadless:        GetBool("CHROME_HEADLESS", true),
		HostAPIBaseURL:        GetString("HOSTING_API_URL", ""),
		HostAPIAccountID:      GetString("HOSTING_API_ACCOUNT_ID", ""),
		HostAPIToken:          GetString("HOSTING_API_TOKEN", ""),
		SelfHostRoot:          GetString("SELFHOST_ROOT", ""),
		SelfHostNginx:         GetString("SELFHOST_NGINX_CONTAINER", ""),
		SelfHostDomainSuffix:  GetString("SELFHOST_DOMAIN_SUFFIX", ".sites.local"),
		MaxSuffixAttempts:     GetInt("DEPLOY_MAX_SUFFIX_ATTEMPTS", 5),
		StrategyTimeout:       GetDuration("DEPLOY_STRATEGY_TIMEOUT", 30*time.Second),

		ContentProviders:    GetList("CONTENT_PROVIDERS", []string{"openai", "anthropic", "webhook"}),
		ProviderTimeout:     GetDuration("CONTENT_PROVIDER_TIMEOUT", 20*time.Second),
		OpenAIAPIKey:        GetString("OPENAI_API_KEY", ""),
		OpenAIModel:         GetString("OPENAI_MODEL", "gpt-4o-mini"),
		AnthropicAPIKey:     GetString("ANTHROPIC_API_KEY", ""),
		AnthropicModel:      GetString("ANTHROPIC_MODEL", "claude-3-5-haiku-latest"),
		ContentWebhookURL:   GetString("CONTENT_WEBHOOK_URL", ""),
		ContentWebhookToken: GetString("CONTENT_WEBHOOK_TOKEN", ""),

		ArchiveBucket:   GetString("ARCHIVE_S3_BUCKET", ""),
		ArchiveRegion:   GetString("ARCHIVE_S3_REGION", "ap-southeast-1"),
		ArchiveEndpoint: GetString("ARCHIVE_S3_ENDPOINT", ""),
		ArchivePrefix:   GetString("ARCHIVE_S3_PREFIX", "sites/"),

		RunTimeout:         GetDuration("PIPELINE_RUN_TIMEOUT", 3*time.Minute),
		StatusWriteRetries: GetInt("STATUS_WRITE_RETRIES", 3),
		StaleAfter:         GetDuration("PIPELINE_STALE_AFTER", 10*time.Minute),
		SweepInterval:      GetDuration("PIPELINE_SWEEP_INTERVAL", time.Minute),
	}
}
