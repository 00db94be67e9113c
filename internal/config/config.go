package config

import (
	"time"
)

// Config is the root application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Log       LogConfig       `yaml:"log"`
	CORS      CORSConfig      `yaml:"cors"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Payment   PaymentConfig   `yaml:"payment"`
	Signal    SignalConfig    `yaml:"signal"`
	Secret    SecretConfig    `yaml:"secret"`
	Admin     AdminConfig     `yaml:"admin"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	AllowedOrigins   string `yaml:"allowed_origins"   env:"CORS_ALLOWED_ORIGINS"   env-default:"*"`
	AllowedMethods   string `yaml:"allowed_methods"   env:"CORS_ALLOWED_METHODS"   env-default:"GET,POST,OPTIONS"`
	AllowedHeaders   string `yaml:"allowed_headers"   env:"CORS_ALLOWED_HEADERS"   env-default:"Content-Type,X-Payment,X-Admin-Token"`
	AllowCredentials bool   `yaml:"allow_credentials" env:"CORS_ALLOW_CREDENTIALS" env-default:"false"`
	MaxAge           int    `yaml:"max_age"           env:"CORS_MAX_AGE"           env-default:"86400"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `yaml:"host"             env:"SERVER_HOST"             env-default:"0.0.0.0"`
	Port            int           `yaml:"port"             env:"SERVER_PORT"             env-default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout"     env:"SERVER_READ_TIMEOUT"     env-default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout"    env:"SERVER_WRITE_TIMEOUT"    env-default:"30s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"     env:"SERVER_IDLE_TIMEOUT"     env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" env-default:"10s"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Driver string `yaml:"driver" env:"STORAGE_DRIVER" env-default:"postgres"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"                env:"DATABASE_DSN"`
	MaxConns        int32         `yaml:"max_conns"          env:"DATABASE_MAX_CONNS"          env-default:"25"`
	MinConns        int32         `yaml:"min_conns"          env:"DATABASE_MIN_CONNS"          env-default:"5"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"  env:"DATABASE_MAX_CONN_LIFETIME"  env-default:"1h"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time" env:"DATABASE_MAX_CONN_IDLE_TIME" env-default:"30m"`
	AutoMigrate     bool          `yaml:"auto_migrate"       env:"DATABASE_AUTO_MIGRATE"       env-default:"true"`
}

// RedisConfig holds Redis settings. An empty Addr disables Redis and the
// process falls back to in-process sender locks and replay guard.
type RedisConfig struct {
	Addr      string        `yaml:"addr"       env:"REDIS_ADDR"`
	Password  string        `yaml:"password"   env:"REDIS_PASSWORD"`
	DB        int           `yaml:"db"         env:"REDIS_DB"         env-default:"0"`
	LockTTL   time.Duration `yaml:"lock_ttl"   env:"REDIS_LOCK_TTL"   env-default:"30s"`
	KeyPrefix string        `yaml:"key_prefix" env:"REDIS_KEY_PREFIX" env-default:"firstsignal:"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
}

// RateLimitConfig holds per-client request limits for the public API.
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" env:"RATELIMIT_ENABLED" env-default:"true"`
	RPS     float64 `yaml:"rps"     env:"RATELIMIT_RPS"     env-default:"2"`
	Burst   int     `yaml:"burst"   env:"RATELIMIT_BURST"   env-default:"10"`
}

// TelegramConfig holds chat transport settings.
type TelegramConfig struct {
	BotToken        string        `yaml:"bot_token"         env:"TELEGRAM_BOT_TOKEN"         env-required:"true"`
	ModeratorChatID int64         `yaml:"moderator_chat_id" env:"TELEGRAM_MODERATOR_CHAT_ID" env-required:"true"`
	Mode            string        `yaml:"mode"              env:"TELEGRAM_MODE"              env-default:"poll"`
	WebhookSecret   string        `yaml:"webhook_secret"    env:"TELEGRAM_WEBHOOK_SECRET"`
	APIBaseURL      string        `yaml:"api_base_url"      env:"TELEGRAM_API_BASE_URL"      env-default:"https://api.telegram.org"`
	PollTimeout     time.Duration `yaml:"poll_timeout"      env:"TELEGRAM_POLL_TIMEOUT"      env-default:"30s"`
	RequestTimeout  time.Duration `yaml:"request_timeout"   env:"TELEGRAM_REQUEST_TIMEOUT"   env-default:"10s"`
}

// LedgerConfig holds settings of the on-chain ledger writer.
type LedgerConfig struct {
	RPCURL          string        `yaml:"rpc_url"          env:"LEDGER_RPC_URL"          env-default:"https://sepolia.base.org"`
	ContractAddress string        `yaml:"contract_address" env:"LEDGER_CONTRACT_ADDRESS" env-default:"0x1833a8161695AE9A6315C814cf8687c0E972E754"`
	PrivateKey      string        `yaml:"private_key"      env:"LEDGER_PRIVATE_KEY"      env-required:"true"`
	GasLimit        uint64        `yaml:"gas_limit"        env:"LEDGER_GAS_LIMIT"        env-default:"100000"`
	ReceiptTimeout  time.Duration `yaml:"receipt_timeout"  env:"LEDGER_RECEIPT_TIMEOUT"  env-default:"2m"`
	PollInterval    time.Duration `yaml:"poll_interval"    env:"LEDGER_POLL_INTERVAL"    env-default:"2s"`
	ExplorerTxURL   string        `yaml:"explorer_tx_url"  env:"LEDGER_EXPLORER_TX_URL"  env-default:"https://sepolia.basescan.org/tx/"`
}

// PaymentConfig holds settings for verifying payment proofs.
type PaymentConfig struct {
	Secret string        `yaml:"secret" env:"PAYMENT_SECRET" env-required:"true"`
	Issuer string        `yaml:"issuer" env:"PAYMENT_ISSUER" env-default:"firstsignal-payments"`
	Leeway time.Duration `yaml:"leeway" env:"PAYMENT_LEEWAY" env-default:"30s"`
}

// SignalConfig holds lifecycle parameters.
type SignalConfig struct {
	CooldownDays         int           `yaml:"cooldown_days"          env:"SIGNAL_COOLDOWN_DAYS"          env-default:"30"`
	PendingTTL           time.Duration `yaml:"pending_ttl"            env:"SIGNAL_PENDING_TTL"            env-default:"168h"`
	LedgerMaxAttempts    int           `yaml:"ledger_max_attempts"    env:"SIGNAL_LEDGER_MAX_ATTEMPTS"    env-default:"5"`
	LedgerInitialBackoff time.Duration `yaml:"ledger_initial_backoff" env:"SIGNAL_LEDGER_INITIAL_BACKOFF" env-default:"2s"`
	LedgerMaxBackoff     time.Duration `yaml:"ledger_max_backoff"     env:"SIGNAL_LEDGER_MAX_BACKOFF"     env-default:"1m"`
	CommitTimeout        time.Duration `yaml:"commit_timeout"         env:"SIGNAL_COMMIT_TIMEOUT"         env-default:"10m"`
	SweepInterval        time.Duration `yaml:"sweep_interval"         env:"SIGNAL_SWEEP_INTERVAL"         env-default:"1m"`
	SweepBatch           int           `yaml:"sweep_batch"            env:"SIGNAL_SWEEP_BATCH"            env-default:"100"`
	RedispatchAfter      time.Duration `yaml:"redispatch_after"       env:"SIGNAL_REDISPATCH_AFTER"       env-default:"1m"`
	DecisionWorkers      int           `yaml:"decision_workers"       env:"SIGNAL_DECISION_WORKERS"       env-default:"8"`
}

// CooldownDuration returns the lock length as a duration.
func (s SignalConfig) CooldownDuration() time.Duration {
	return time.Duration(s.CooldownDays) * 24 * time.Hour
}

// SecretConfig holds the at-rest sealing key for message bodies.
type SecretConfig struct {
	MessageKey string `yaml:"message_key" env:"SECRET_MESSAGE_KEY"`
}

// AdminConfig holds the shared admin token. An empty token disables the admin API.
type AdminConfig struct {
	Token string `yaml:"token" env:"ADMIN_TOKEN"`
}
