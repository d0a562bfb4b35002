// Package config loads warrantyflow settings from a YAML file merged with
// environment variables. The environment names of the original deployment
// (SMTP_HOST, NOTIFICATION_EMAIL, DROPBOX_APP_KEY, ...) stay bound so
// existing .env files keep working unchanged.
package config

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ErrInvalid marks configuration that fails Validate.
var ErrInvalid = errors.New("config: invalid configuration")

// Config is the full runtime configuration.
type Config struct {
	Email    EmailConfig    `mapstructure:"email"`
	Store    StoreConfig    `mapstructure:"store"`
	Dropbox  DropboxConfig  `mapstructure:"dropbox"`
	Snapshot SnapshotConfig `mapstructure:"snapshot"`
	Dedup    DedupConfig    `mapstructure:"dedup"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Intake   IntakeConfig   `mapstructure:"intake"`
	Server   ServerConfig   `mapstructure:"server"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Log      LogConfig      `mapstructure:"log"`
}

// SMTPSettings configures the outbound mail connection. TLSMode supersedes
// the legacy TLS flag; EffectiveTLSMode resolves the two.
type SMTPSettings struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Username   string `mapstructure:"username"`
	Password   string `mapstructure:"password"`
	From       string `mapstructure:"from"`
	FromName   string `mapstructure:"from_name"`
	AuthType   string `mapstructure:"auth_type"`
	TLS        bool   `mapstructure:"tls"`
	TLSMode    string `mapstructure:"tls_mode"`
	SkipVerify bool   `mapstructure:"skip_verify"`
}

// EmailConfig groups mail settings. Admin is the recipient of new-ticket
// and run-summary mails; leaving it empty disables those.
type EmailConfig struct {
	SMTP  SMTPSettings `mapstructure:"smtp"`
	Admin string       `mapstructure:"admin"`
}

// StoreConfig selects where the workbook lives.
type StoreConfig struct {
	// Source is "file" or "dropbox".
	Source string `mapstructure:"source"`
	// File is the workbook path for the file source.
	File string `mapstructure:"file"`
}

// DropboxConfig holds the app credentials and workbook location for the
// dropbox source.
type DropboxConfig struct {
	AppKey       string `mapstructure:"app_key"`
	AppSecret    string `mapstructure:"app_secret"`
	RefreshToken string `mapstructure:"refresh_token"`
	FolderPath   string `mapstructure:"folder_path"`
	Workbook     string `mapstructure:"workbook"`
}

// WorkbookPath joins the folder and workbook name into the API path.
func (c DropboxConfig) WorkbookPath() string {
	folder := "/" + strings.Trim(c.FolderPath, "/")
	return path.Join(folder, c.Workbook)
}

// RedisConfig configures the redis snapshot backend.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Key      string `mapstructure:"key"`
}

// SnapshotConfig selects and configures the snapshot backend.
type SnapshotConfig struct {
	// Backend is "file", "sqlite" or "redis".
	Backend string      `mapstructure:"backend"`
	File    string      `mapstructure:"file"`
	SQLite  string      `mapstructure:"sqlite"`
	Redis   RedisConfig `mapstructure:"redis"`
}

// DedupConfig tunes the duplicate checker.
type DedupConfig struct {
	Threshold float64 `mapstructure:"threshold"`
	// Scope is "brand" or "global".
	Scope string `mapstructure:"scope"`
}

// NotifyConfig tunes the status pipeline.
type NotifyConfig struct {
	Language       string  `mapstructure:"language"`
	RetentionDays  int     `mapstructure:"retention_days"`
	MinSuccessRate float64 `mapstructure:"min_success_rate"`
}

// IntakeConfig tunes the intake pipeline.
type IntakeConfig struct {
	// BrandsFile overrides the embedded brand catalog when set.
	BrandsFile string `mapstructure:"brands_file"`
}

// ServerConfig configures the webhook HTTP server.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
	// WebhookSecret is the Tally signing secret; empty disables
	// signature checks.
	WebhookSecret string `mapstructure:"webhook_secret"`
}

// ScheduleConfig configures the embedded scheduler.
type ScheduleConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Cron         string `mapstructure:"cron"`
	BusinessDays bool   `mapstructure:"business_days"`
	Watch        bool   `mapstructure:"watch"`
}

// LogConfig controls log output. Redact masks personal data and secrets
// before they reach the sink.
type LogConfig struct {
	Redact bool `mapstructure:"redact"`
}

// Load reads the configuration. An explicit path must exist; otherwise the
// default locations are searched and a missing file just means env-only
// settings. A .env file in the working directory is loaded first.
func Load(cfgFile string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigType("yaml")
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("warrantyflow")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/warrantyflow")
	}

	setDefaults(v)
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		if cfgFile != "" {
			return nil, fmt.Errorf("reading config %s: %w", cfgFile, err)
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if cfg.Email.SMTP.From == "" {
		cfg.Email.SMTP.From = cfg.Email.SMTP.Username
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("email.smtp.port", 587)
	v.SetDefault("email.smtp.from_name", "Proffectiv")
	v.SetDefault("email.smtp.auth_type", "plain")
	v.SetDefault("store.source", "file")
	v.SetDefault("store.file", "data/garantias.xlsx")
	v.SetDefault("dropbox.folder_path", "/garantias")
	v.SetDefault("dropbox.workbook", "garantias.xlsx")
	v.SetDefault("snapshot.backend", "file")
	v.SetDefault("snapshot.file", "data/status_snapshot.json")
	v.SetDefault("snapshot.sqlite", "data/status_snapshot.db")
	v.SetDefault("snapshot.redis.addr", "127.0.0.1:6379")
	v.SetDefault("snapshot.redis.key", "warrantyflow:status_snapshot")
	v.SetDefault("dedup.threshold", 0.75)
	v.SetDefault("dedup.scope", "brand")
	v.SetDefault("notify.language", "es")
	v.SetDefault("notify.retention_days", 90)
	v.SetDefault("notify.min_success_rate", 0.8)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("schedule.cron", "0 9 * * *")
	v.SetDefault("schedule.business_days", true)
	v.SetDefault("log.redact", true)
}

// bindEnv keeps the original deployment's variable names working next to
// the WARRANTYFLOW_* names viper derives from the keys.
func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix("warrantyflow")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, env := range map[string]string{
		"email.smtp.host":       "SMTP_HOST",
		"email.smtp.port":       "SMTP_PORT",
		"email.smtp.username":   "SMTP_USERNAME",
		"email.smtp.password":   "SMTP_PASSWORD",
		"email.smtp.from":       "SMTP_FROM",
		"email.admin":           "NOTIFICATION_EMAIL",
		"dropbox.app_key":       "DROPBOX_APP_KEY",
		"dropbox.app_secret":    "DROPBOX_APP_SECRET",
		"dropbox.refresh_token": "DROPBOX_REFRESH_TOKEN",
		"dropbox.folder_path":   "DROPBOX_FOLDER_PATH",
		"server.webhook_secret": "TALLY_SIGNING_SECRET",
	} {
		_ = v.BindEnv(key, env)
	}
}

// Validate checks everything both pipelines need before a run. All
// problems are reported at once.
func (c *Config) Validate() error {
	var problems []string

	if c.Email.SMTP.Host == "" {
		problems = append(problems, "email.smtp.host (SMTP_HOST) is required")
	}
	if c.Email.SMTP.Port <= 0 || c.Email.SMTP.Port > 65535 {
		problems = append(problems, fmt.Sprintf("email.smtp.port %d out of range", c.Email.SMTP.Port))
	}
	if c.Email.SMTP.From == "" {
		problems = append(problems, "email.smtp.from (SMTP_FROM or SMTP_USERNAME) is required")
	}

	switch c.Store.Source {
	case "file":
		if c.Store.File == "" {
			problems = append(problems, "store.file is required for the file source")
		}
	case "dropbox":
		if c.Dropbox.AppKey == "" || c.Dropbox.AppSecret == "" || c.Dropbox.RefreshToken == "" {
			problems = append(problems, "dropbox credentials (DROPBOX_APP_KEY, DROPBOX_APP_SECRET, DROPBOX_REFRESH_TOKEN) are required for the dropbox source")
		}
	default:
		problems = append(problems, fmt.Sprintf("store.source %q is not file or dropbox", c.Store.Source))
	}

	switch c.Snapshot.Backend {
	case "file":
		if c.Snapshot.File == "" {
			problems = append(problems, "snapshot.file is required for the file backend")
		}
	case "sqlite":
		if c.Snapshot.SQLite == "" {
			problems = append(problems, "snapshot.sqlite is required for the sqlite backend")
		}
	case "redis":
		if c.Snapshot.Redis.Addr == "" {
			problems = append(problems, "snapshot.redis.addr is required for the redis backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("snapshot.backend %q is not file, sqlite or redis", c.Snapshot.Backend))
	}

	if c.Dedup.Threshold <= 0 || c.Dedup.Threshold > 1 {
		problems = append(problems, fmt.Sprintf("dedup.threshold %v outside (0, 1]", c.Dedup.Threshold))
	}
	if c.Dedup.Scope != "brand" && c.Dedup.Scope != "global" {
		problems = append(problems, fmt.Sprintf("dedup.scope %q is not brand or global", c.Dedup.Scope))
	}

	if c.Notify.Language != "es" && c.Notify.Language != "en" {
		problems = append(problems, fmt.Sprintf("notify.language %q is not es or en", c.Notify.Language))
	}
	if c.Notify.RetentionDays <= 0 {
		problems = append(problems, fmt.Sprintf("notify.retention_days %d must be positive", c.Notify.RetentionDays))
	}
	if c.Notify.MinSuccessRate < 0 || c.Notify.MinSuccessRate > 1 {
		problems = append(problems, fmt.Sprintf("notify.min_success_rate %v outside [0, 1]", c.Notify.MinSuccessRate))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// Brands resolves the active catalog: the configured override file when
// set, the embedded one otherwise.
func (c *Config) Brands() (BrandCatalog, error) {
	if c.Intake.BrandsFile == "" {
		return DefaultBrandCatalog(), nil
	}
	return LoadBrandCatalog(c.Intake.BrandsFile)
}
