package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var ErrMissingToken = errors.New("TELEGRAM_BOT_TOKEN is required")

// Config holds application configuration loaded from .env, an optional
// config file and environment variables.
type Config struct {
	Env           string `mapstructure:"app_env"`   // production switches to JSON logs
	LogLevel      string `mapstructure:"log_level"` // zap level name
	TelegramToken string `mapstructure:"-"`

	DatabasePath  string `mapstructure:"db_file"`
	PrestableMode bool   `mapstructure:"prestable_mode"` // use a separate database file
	BackupDir     string `mapstructure:"backup_dir"`

	TimezoneName string         `mapstructure:"timezone"`
	Timezone     *time.Location `mapstructure:"-"`

	WebhookURL  string `mapstructure:"webhook_url"` // empty: long polling
	ServerPort  string `mapstructure:"server_port"`
	APIUsername string `mapstructure:"api_username"`
	APIPassword string `mapstructure:"api_password"`

	AdminChatID int64 `mapstructure:"admin_chat_id"`

	ReminderScanSpec string `mapstructure:"reminder_scan_spec"`
	FlagResetSpec    string `mapstructure:"flag_reset_spec"`
	BackupScanSpec   string `mapstructure:"backup_scan_spec"`
	DayStartHour     int    `mapstructure:"day_start_hour"`
	DayEndHour       int    `mapstructure:"day_end_hour"`

	CalDAV CalDAV `mapstructure:"caldav"`
}

// CalDAV configures the optional calendar mirror.
type CalDAV struct {
	URL      string `mapstructure:"url"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Calendar string `mapstructure:"calendar"`
}

// Load reads configuration. A missing .env or config file is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	v.SetDefault("app_env", "local")
	v.SetDefault("log_level", "info")
	v.SetDefault("db_file", "data.db")
	v.SetDefault("prestable_mode", false)
	v.SetDefault("backup_dir", "backups")
	v.SetDefault("timezone", "Local")
	v.SetDefault("webhook_url", "")
	v.SetDefault("server_port", "8080")
	v.SetDefault("api_username", "")
	v.SetDefault("api_password", "")
	v.SetDefault("admin_chat_id", 0)
	v.SetDefault("reminder_scan_spec", "*/5 * * * *")
	v.SetDefault("flag_reset_spec", "0 3 * * *")
	v.SetDefault("backup_scan_spec", "* * * * *")
	v.SetDefault("day_start_hour", 7)
	v.SetDefault("day_end_hour", 20)
	v.SetDefault("caldav.url", "")
	v.SetDefault("caldav.username", "")
	v.SetDefault("caldav.password", "")
	v.SetDefault("caldav.calendar", "")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("telegram_bot_token", "TELEGRAM_BOT_TOKEN")
	_ = v.BindEnv("db_file", "DB_FILE", "DATABASE_PATH")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.TelegramToken = v.GetString("telegram_bot_token")
	if cfg.TelegramToken == "" {
		return nil, ErrMissingToken
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() error {
	tz, err := time.LoadLocation(c.TimezoneName)
	if err != nil {
		return fmt.Errorf("invalid TIMEZONE %q: %w", c.TimezoneName, err)
	}
	c.Timezone = tz

	if c.PrestableMode {
		c.DatabasePath = prestablePath(c.DatabasePath)
	}

	if c.DayStartHour < 0 || c.DayEndHour > 23 || c.DayStartHour > c.DayEndHour {
		return fmt.Errorf("invalid daytime window %d..%d", c.DayStartHour, c.DayEndHour)
	}
	return nil
}

// prestablePath turns data.db into data_prestable.db.
func prestablePath(path string) string {
	if i := strings.LastIndex(path, "."); i > strings.LastIndex(path, "/") {
		return path[:i] + "_prestable" + path[i:]
	}
	return path + "_prestable"
}

// IsAdmin reports whether chatID may use admin commands.
func (c *Config) IsAdmin(chatID int64) bool {
	return c.AdminChatID != 0 && chatID == c.AdminChatID
}

// IsDaytime reports whether t falls inside the hours reminders may be sent.
func (c *Config) IsDaytime(t time.Time) bool {
	h := t.In(c.Timezone).Hour()
	return h >= c.DayStartHour && h <= c.DayEndHour
}

// UseWebhook reports whether updates arrive by webhook instead of polling.
func (c *Config) UseWebhook() bool {
	return c.WebhookURL != ""
}
