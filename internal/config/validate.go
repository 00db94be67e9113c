package config

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Storage drivers.
const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

// Telegram update delivery modes.
const (
	TelegramModePoll    = "poll"
	TelegramModeWebhook = "webhook"
)

// Validate performs business-rule validation on the loaded configuration.
// It must be called after loading; Load calls it automatically.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case StorageDriverPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for storage driver %q", c.Storage.Driver)
		}
		if c.Secret.MessageKey == "" {
			return fmt.Errorf("secret.message_key is required for storage driver %q", c.Storage.Driver)
		}
	case StorageDriverMemory:
	default:
		return fmt.Errorf("storage.driver must be %q or %q (got %q)", StorageDriverPostgres, StorageDriverMemory, c.Storage.Driver)
	}

	if c.Secret.MessageKey != "" {
		if _, err := ParseMessageKey(c.Secret.MessageKey); err != nil {
			return fmt.Errorf("secret.message_key: %w", err)
		}
	}

	if len(c.Payment.Secret) < 32 {
		return fmt.Errorf("payment.secret must be at least 32 characters (got %d)", len(c.Payment.Secret))
	}

	if err := c.Telegram.validate(); err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	if err := c.Ledger.validate(); err != nil {
		return fmt.Errorf("ledger: %w", err)
	}
	if err := c.Signal.validate(); err != nil {
		return fmt.Errorf("signal: %w", err)
	}

	if c.RateLimit.Enabled && (c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0) {
		return fmt.Errorf("ratelimit: rps and burst must be > 0 when enabled")
	}

	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("log.format must be json or text (got %q)", c.Log.Format)
	}

	return nil
}

func (t *TelegramConfig) validate() error {
	if t.BotToken == "" {
		return fmt.Errorf("bot_token is required")
	}
	if t.ModeratorChatID == 0 {
		return fmt.Errorf("moderator_chat_id is required")
	}
	switch t.Mode {
	case TelegramModePoll:
	case TelegramModeWebhook:
		if t.WebhookSecret == "" {
			return fmt.Errorf("webhook_secret is required in webhook mode")
		}
	default:
		return fmt.Errorf("mode must be %q or %q (got %q)", TelegramModePoll, TelegramModeWebhook, t.Mode)
	}
	if t.PollTimeout <= 0 {
		return fmt.Errorf("poll_timeout must be > 0 (got %v)", t.PollTimeout)
	}
	return nil
}

func (l *LedgerConfig) validate() error {
	if l.RPCURL == "" {
		return fmt.Errorf("rpc_url is required")
	}
	if !common.IsHexAddress(l.ContractAddress) {
		return fmt.Errorf("contract_address %q is not a hex address", l.ContractAddress)
	}
	key := strings.TrimPrefix(l.PrivateKey, "0x")
	if len(key) != 64 {
		return fmt.Errorf("private_key must be 32 bytes hex-encoded")
	}
	if _, err := hex.DecodeString(key); err != nil {
		return fmt.Errorf("private_key: %w", err)
	}
	if l.GasLimit == 0 {
		return fmt.Errorf("gas_limit must be > 0")
	}
	if l.ReceiptTimeout <= 0 || l.PollInterval <= 0 {
		return fmt.Errorf("receipt_timeout and poll_interval must be > 0")
	}
	return nil
}

func (s *SignalConfig) validate() error {
	if s.CooldownDays <= 0 {
		return fmt.Errorf("cooldown_days must be > 0 (got %d)", s.CooldownDays)
	}
	if s.PendingTTL <= 0 {
		return fmt.Errorf("pending_ttl must be > 0 (got %v)", s.PendingTTL)
	}
	if s.LedgerMaxAttempts < 1 {
		return fmt.Errorf("ledger_max_attempts must be >= 1 (got %d)", s.LedgerMaxAttempts)
	}
	if s.LedgerInitialBackoff <= 0 || s.LedgerMaxBackoff <= 0 {
		return fmt.Errorf("ledger backoff durations must be > 0")
	}
	if s.LedgerInitialBackoff > s.LedgerMaxBackoff {
		return fmt.Errorf("ledger_initial_backoff (%v) exceeds ledger_max_backoff (%v)", s.LedgerInitialBackoff, s.LedgerMaxBackoff)
	}
	if s.CommitTimeout <= 0 {
		return fmt.Errorf("commit_timeout must be > 0 (got %v)", s.CommitTimeout)
	}
	if s.SweepInterval <= 0 || s.SweepBatch <= 0 {
		return fmt.Errorf("sweep_interval and sweep_batch must be > 0")
	}
	if s.RedispatchAfter <= 0 {
		return fmt.Errorf("redispatch_after must be > 0 (got %v)", s.RedispatchAfter)
	}
	if s.DecisionWorkers < 1 {
		return fmt.Errorf("decision_workers must be >= 1 (got %d)", s.DecisionWorkers)
	}
	return nil
}

// ParseMessageKey decodes a 64-character hex string into a 32-byte key.
func ParseMessageKey(raw string) ([32]byte, error) {
	var key [32]byte
	b, err := hex.DecodeString(strings.TrimSpace(raw))
	if err != nil {
		return key, fmt.Errorf("decode hex: %w", err)
	}
	if len(b) != len(key) {
		return key, fmt.Errorf("must be %d bytes (got %d)", len(key), len(b))
	}
	copy(key[:], b)
	return key, nil
}
