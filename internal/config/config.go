package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "config/config.yaml"

type FilesConfig struct {
	RootDir  string `yaml:"root_dir"`
	FontPath string `yaml:"font_path"`
}

type TelegramConfig struct {
	BotToken   string `yaml:"bot_token"`
	WebhookURL string `yaml:"webhook_url"` // пусто: вебхук не регистрируем
}

type RealtimeConfig struct {
	// LISTEN/NOTIFY канал, куда триггеры пишут изменения таблиц
	Channel         string        `yaml:"channel"`
	ChangeFeed      bool          `yaml:"change_feed"`
	DeliveryTimeout time.Duration `yaml:"delivery_timeout"`
	PopupClearAfter time.Duration `yaml:"popup_clear_after"`
}

type CollapseConfig struct {
	DefaultTTL    time.Duration `yaml:"default_ttl"`
	SweepSchedule string        `yaml:"sweep_schedule"`
}

type Config struct {
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
	Database struct {
		DSN string `yaml:"url"`
	} `yaml:"database"`
	Auth struct {
		JWTSecret string        `yaml:"jwt_secret"`
		AccessTTL time.Duration `yaml:"access_ttl"`
	} `yaml:"auth"`
	Email struct {
		SMTPHost     string `yaml:"smtp_host"`
		SMTPPort     int    `yaml:"smtp_port"`
		SMTPUser     string `yaml:"smtp_user"`
		SMTPPassword string `yaml:"smtp_password"`
		FromEmail    string `yaml:"from_email"`
	} `yaml:"email"`
	Telegram TelegramConfig `yaml:"telegram"`
	Files    FilesConfig    `yaml:"files"`
	Realtime RealtimeConfig `yaml:"realtime"`
	Collapse CollapseConfig `yaml:"collapse"`
}

// LoadConfig читает config/config.yaml и паникует при ошибке (как при старте сервиса).
func LoadConfig() *Config {
	cfg, err := Load(DefaultPath)
	if err != nil {
		panic("Failed to load config: " + err.Error())
	}
	return cfg
}

// Load reads the YAML file, applies .env / INVERAPP_* overrides and fills defaults.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	// .env необязателен
	_ = godotenv.Load()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("INVERAPP_DATABASE_URL"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("INVERAPP_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("INVERAPP_TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.BotToken = v
	}
	if v := os.Getenv("INVERAPP_SMTP_PASSWORD"); v != "" {
		c.Email.SMTPPassword = v
	}
	if v := os.Getenv("INVERAPP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("INVERAPP_PORT: %w", err)
		}
		c.Server.Port = port
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Auth.AccessTTL == 0 {
		c.Auth.AccessTTL = 15 * time.Minute
	}
	if c.Files.RootDir == "" {
		c.Files.RootDir = "./files"
	}
	if c.Files.FontPath == "" {
		c.Files.FontPath = "assets/fonts/DejaVuSans.ttf"
	}
	if c.Realtime.Channel == "" {
		c.Realtime.Channel = "table_changes"
	}
	if c.Realtime.DeliveryTimeout == 0 {
		c.Realtime.DeliveryTimeout = 10 * time.Second
	}
	if c.Realtime.PopupClearAfter == 0 {
		c.Realtime.PopupClearAfter = 300 * time.Millisecond
	}
	if c.Collapse.DefaultTTL == 0 {
		c.Collapse.DefaultTTL = 24 * time.Hour
	}
	if c.Collapse.SweepSchedule == "" {
		c.Collapse.SweepSchedule = "@every 10m"
	}
}
