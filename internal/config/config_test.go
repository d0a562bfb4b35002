package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "warrantyflow.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMergesDefaults(t *testing.T) {
	path := writeConfig(t, `
email:
  smtp:
    host: smtp.example.com
    username: garantias@proffectiv.example
    password: secret
  admin: admin@proffectiv.example
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Email.SMTP.Host != "smtp.example.com" {
		t.Errorf("host = %q", cfg.Email.SMTP.Host)
	}
	if cfg.Email.SMTP.Port != 587 {
		t.Errorf("port = %d, want default 587", cfg.Email.SMTP.Port)
	}
	if cfg.Email.SMTP.FromName != "Proffectiv" {
		t.Errorf("from_name = %q", cfg.Email.SMTP.FromName)
	}
	// From falls back to the username when unset.
	if cfg.Email.SMTP.From != "garantias@proffectiv.example" {
		t.Errorf("from = %q, want username fallback", cfg.Email.SMTP.From)
	}

	if cfg.Store.Source != "file" || cfg.Snapshot.Backend != "file" {
		t.Errorf("sources = %q / %q, want file defaults", cfg.Store.Source, cfg.Snapshot.Backend)
	}
	if cfg.Dedup.Threshold != 0.75 || cfg.Dedup.Scope != "brand" {
		t.Errorf("dedup = %+v", cfg.Dedup)
	}
	if cfg.Notify.Language != "es" || cfg.Notify.RetentionDays != 90 || cfg.Notify.MinSuccessRate != 0.8 {
		t.Errorf("notify = %+v", cfg.Notify)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("server addr = %q", cfg.Server.Addr)
	}
	if !cfg.Schedule.BusinessDays {
		t.Error("schedule.business_days default should be true")
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadLegacyEnvNames(t *testing.T) {
	t.Setenv("SMTP_HOST", "mail.legacy.example")
	t.Setenv("SMTP_PORT", "465")
	t.Setenv("SMTP_USERNAME", "legacy@proffectiv.example")
	t.Setenv("NOTIFICATION_EMAIL", "jefe@proffectiv.example")
	t.Setenv("DROPBOX_REFRESH_TOKEN", "rt-123")
	t.Setenv("TALLY_SIGNING_SECRET", "tally-secret")

	cfg, err := Load(writeConfig(t, "{}\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Email.SMTP.Host != "mail.legacy.example" || cfg.Email.SMTP.Port != 465 {
		t.Errorf("smtp = %q:%d", cfg.Email.SMTP.Host, cfg.Email.SMTP.Port)
	}
	if cfg.Email.Admin != "jefe@proffectiv.example" {
		t.Errorf("admin = %q", cfg.Email.Admin)
	}
	if cfg.Dropbox.RefreshToken != "rt-123" {
		t.Errorf("refresh token = %q", cfg.Dropbox.RefreshToken)
	}
	if cfg.Server.WebhookSecret != "tally-secret" {
		t.Errorf("webhook secret = %q", cfg.Server.WebhookSecret)
	}
}

func TestLoadExplicitFileMustExist(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("missing explicit config file did not error")
	}
}

func validConfig() *Config {
	return &Config{
		Email: EmailConfig{
			SMTP: SMTPSettings{
				Host: "smtp.example.com",
				Port: 587,
				From: "garantias@proffectiv.example",
			},
			Admin: "admin@proffectiv.example",
		},
		Store:    StoreConfig{Source: "file", File: "data/garantias.xlsx"},
		Snapshot: SnapshotConfig{Backend: "file", File: "data/snapshot.json"},
		Dedup:    DedupConfig{Threshold: 0.75, Scope: "brand"},
		Notify:   NotifyConfig{Language: "es", RetentionDays: 90, MinSuccessRate: 0.8},
	}
}

func TestValidate(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := map[string]struct {
		mutate func(*Config)
		want   string
	}{
		"missing host": {
			func(c *Config) { c.Email.SMTP.Host = "" },
			"email.smtp.host",
		},
		"port out of range": {
			func(c *Config) { c.Email.SMTP.Port = 70000 },
			"email.smtp.port",
		},
		"unknown store source": {
			func(c *Config) { c.Store.Source = "ftp" },
			"store.source",
		},
		"dropbox without credentials": {
			func(c *Config) { c.Store.Source = "dropbox" },
			"dropbox credentials",
		},
		"unknown snapshot backend": {
			func(c *Config) { c.Snapshot.Backend = "dynamo" },
			"snapshot.backend",
		},
		"threshold zero": {
			func(c *Config) { c.Dedup.Threshold = 0 },
			"dedup.threshold",
		},
		"threshold above one": {
			func(c *Config) { c.Dedup.Threshold = 1.2 },
			"dedup.threshold",
		},
		"bad scope": {
			func(c *Config) { c.Dedup.Scope = "all" },
			"dedup.scope",
		},
		"unsupported language": {
			func(c *Config) { c.Notify.Language = "fr" },
			"notify.language",
		},
		"retention zero": {
			func(c *Config) { c.Notify.RetentionDays = 0 },
			"notify.retention_days",
		},
		"success rate above one": {
			func(c *Config) { c.Notify.MinSuccessRate = 1.5 },
			"notify.min_success_rate",
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("err = %v, want ErrInvalid", err)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not name %q", err, tc.want)
			}
		})
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := validConfig()
	cfg.Email.SMTP.Host = ""
	cfg.Dedup.Scope = "all"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "email.smtp.host") || !strings.Contains(err.Error(), "dedup.scope") {
		t.Errorf("error %q should list both problems", err)
	}
}

func TestEffectiveTLSMode(t *testing.T) {
	cases := []struct {
		mode string
		tls  bool
		want string
	}{
		{"", false, "none"},
		{"", true, "starttls"},
		{"auto", true, "starttls"},
		{"starttls", false, "starttls"},
		{"tls", false, "starttls"},
		{"smtps", false, "smtps"},
		{"implicit", false, "smtps"},
		{"tls_implicit", false, "smtps"},
		{"none", true, "none"},
		{"off", true, "none"},
		{"disabled", true, "none"},
		{"bogus", true, "starttls"},
		{"bogus", false, "none"},
		{" STARTTLS ", false, "starttls"},
	}

	for _, tc := range cases {
		ec := &EmailConfig{SMTP: SMTPSettings{TLSMode: tc.mode, TLS: tc.tls}}
		if got := ec.EffectiveTLSMode(); got != tc.want {
			t.Errorf("EffectiveTLSMode(%q, tls=%t) = %q, want %q", tc.mode, tc.tls, got, tc.want)
		}
	}

	var nilCfg *EmailConfig
	if got := nilCfg.EffectiveTLSMode(); got != "none" {
		t.Errorf("nil receiver = %q, want none", got)
	}
}

func TestDropboxWorkbookPath(t *testing.T) {
	cases := []struct {
		folder, workbook, want string
	}{
		{"/garantias", "garantias.xlsx", "/garantias/garantias.xlsx"},
		{"garantias/", "libro.xlsx", "/garantias/libro.xlsx"},
		{"", "libro.xlsx", "/libro.xlsx"},
	}
	for _, tc := range cases {
		c := DropboxConfig{FolderPath: tc.folder, Workbook: tc.workbook}
		if got := c.WorkbookPath(); got != tc.want {
			t.Errorf("WorkbookPath(%q, %q) = %q, want %q", tc.folder, tc.workbook, got, tc.want)
		}
	}
}
