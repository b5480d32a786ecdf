package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	BackendFile     = "file"
	BackendDynamoDB = "dynamodb"
)

// Config carries every knob the service needs. Values come from a JSON
// file first and MAILGRAM_* environment variables second, so deployments
// can keep secrets out of the file entirely.
type Config struct {
	IMAPAddr     string `json:"imap-addr"`
	IMAPUsername string `json:"imap-username"`
	IMAPPassword string `json:"imap-password"`
	IMAPMailbox  string `json:"imap-mailbox"`

	TelegramToken  string `json:"telegram-token"`
	TelegramChatID int64  `json:"telegram-chat-id"`

	DataDir      string `json:"data-dir"`
	DocumentsDir string `json:"documents-dir"`
	HTTPAddr     string `json:"http-addr"`

	RenderEngine   string `json:"render-engine"`
	ReconnectOnEnd bool   `json:"reconnect-on-end"`
	RetentionHours int    `json:"retention-hours"`

	SettingsBackend string `json:"settings-backend"`
	DynamoDBTable   string `json:"dynamodb-table"`
	AWSRegion       string `json:"aws-region"`
}

// Load reads the configuration file at path, overlays environment
// variables and fills defaults. A missing file is not an error as long
// as the environment supplies every required value.
func Load(path string) (Config, error) {
	var cfg Config

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		cfg, err = FromBytes(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// fall through to the environment
	default:
		return Config{}, fmt.Errorf("read %s: %w", path, err)
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func FromBytes(raw []byte) (Config, error) {
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}

	setString(&cfg.IMAPAddr, "MAILGRAM_IMAP_ADDR")
	setString(&cfg.IMAPUsername, "MAILGRAM_IMAP_USERNAME")
	setString(&cfg.IMAPPassword, "MAILGRAM_IMAP_PASSWORD")
	setString(&cfg.IMAPMailbox, "MAILGRAM_IMAP_MAILBOX")
	setString(&cfg.TelegramToken, "MAILGRAM_TELEGRAM_TOKEN")
	setString(&cfg.DataDir, "MAILGRAM_DATA_DIR")
	setString(&cfg.DocumentsDir, "MAILGRAM_DOCUMENTS_DIR")
	setString(&cfg.HTTPAddr, "MAILGRAM_HTTP_ADDR")
	setString(&cfg.RenderEngine, "MAILGRAM_RENDER_ENGINE")
	setString(&cfg.SettingsBackend, "MAILGRAM_SETTINGS_BACKEND")
	setString(&cfg.DynamoDBTable, "MAILGRAM_DYNAMODB_TABLE")
	setString(&cfg.AWSRegion, "MAILGRAM_AWS_REGION")

	if v, ok := os.LookupEnv("MAILGRAM_TELEGRAM_CHAT_ID"); ok {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.TelegramChatID = id
		}
	}

	if v, ok := os.LookupEnv("MAILGRAM_RECONNECT_ON_END"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.ReconnectOnEnd = b
		}
	}

	if v, ok := os.LookupEnv("MAILGRAM_RETENTION_HOURS"); ok {
		if h, err := strconv.Atoi(v); err == nil {
			cfg.RetentionHours = h
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.IMAPMailbox == "" {
		cfg.IMAPMailbox = "INBOX"
	}

	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}

	if cfg.DocumentsDir == "" {
		cfg.DocumentsDir = filepath.Join(cfg.DataDir, "documents")
	}

	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}

	if cfg.RetentionHours == 0 {
		cfg.RetentionHours = 24
	}

	if cfg.SettingsBackend == "" {
		cfg.SettingsBackend = BackendFile
	}
}

func (c Config) validate() error {
	required := []struct {
		name  string
		unset bool
	}{
		{"imap-addr", c.IMAPAddr == ""},
		{"imap-username", c.IMAPUsername == ""},
		{"imap-password", c.IMAPPassword == ""},
		{"telegram-token", c.TelegramToken == ""},
		{"telegram-chat-id", c.TelegramChatID == 0},
	}

	var missing []string
	for _, field := range required {
		if field.unset {
			missing = append(missing, field.name)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	switch c.SettingsBackend {
	case BackendFile:
	case BackendDynamoDB:
		if c.DynamoDBTable == "" {
			return fmt.Errorf("settings-backend %q requires dynamodb-table", c.SettingsBackend)
		}
		if c.AWSRegion == "" {
			return fmt.Errorf("settings-backend %q requires aws-region", c.SettingsBackend)
		}
	default:
		return fmt.Errorf("unknown settings-backend %q", c.SettingsBackend)
	}

	if c.RetentionHours < 0 {
		return fmt.Errorf("retention-hours cannot be negative, got %d", c.RetentionHours)
	}

	return nil
}
