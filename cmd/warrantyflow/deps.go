package main

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/proffectiv/warrantyflow/internal/config"
	"github.com/proffectiv/warrantyflow/internal/dedup"
	"github.com/proffectiv/warrantyflow/internal/dropbox"
	"github.com/proffectiv/warrantyflow/internal/intake"
	"github.com/proffectiv/warrantyflow/internal/notify"
	"github.com/proffectiv/warrantyflow/internal/snapshot"
	"github.com/proffectiv/warrantyflow/internal/statusdiff"
	"github.com/proffectiv/warrantyflow/internal/statusrun"
	"github.com/proffectiv/warrantyflow/internal/store"
)

// deps wires the packages into the two pipelines. Built once per
// command invocation from the loaded configuration.
type deps struct {
	Store     store.RecordStore
	Snapshots snapshot.Store
	Mailer    *notify.SMTPMailer
	Notifier  *notify.Notifier
	Intake    *intake.Service
	StatusRun *statusrun.Service

	closers []func() error
}

func buildDeps(cfg *config.Config) (*deps, error) {
	d := &deps{}

	catalog, err := cfg.Brands()
	if err != nil {
		return nil, err
	}

	var source store.Source
	switch cfg.Store.Source {
	case "dropbox":
		client := dropbox.NewClient(dropbox.Credentials{
			AppKey:       cfg.Dropbox.AppKey,
			AppSecret:    cfg.Dropbox.AppSecret,
			RefreshToken: cfg.Dropbox.RefreshToken,
		})
		source = dropbox.NewSource(client, cfg.Dropbox.WorkbookPath())
	default:
		source = store.NewFileSource(cfg.Store.File)
	}
	d.Store = store.NewWorkbookStore(source)

	switch cfg.Snapshot.Backend {
	case "sqlite":
		db, err := snapshot.OpenSQLite(cfg.Snapshot.SQLite)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, db.Close)
		d.Snapshots = db
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Snapshot.Redis.Addr,
			Password: cfg.Snapshot.Redis.Password,
			DB:       cfg.Snapshot.Redis.DB,
		})
		d.closers = append(d.closers, client.Close)
		d.Snapshots = snapshot.NewRedisStore(client, snapshot.WithRedisKey(cfg.Snapshot.Redis.Key))
	default:
		d.Snapshots = snapshot.NewFileStore(cfg.Snapshot.File)
	}

	renderer, err := notify.NewRenderer(notify.WithLanguage(cfg.Notify.Language))
	if err != nil {
		return nil, fmt.Errorf("loading mail templates: %w", err)
	}
	d.Mailer = notify.NewSMTPMailer(notify.SMTPConfig{
		Host:       cfg.Email.SMTP.Host,
		Port:       cfg.Email.SMTP.Port,
		Username:   cfg.Email.SMTP.Username,
		Password:   cfg.Email.SMTP.Password,
		From:       cfg.Email.SMTP.From,
		FromName:   cfg.Email.SMTP.FromName,
		AuthType:   cfg.Email.SMTP.AuthType,
		TLSMode:    cfg.Email.EffectiveTLSMode(),
		SkipVerify: cfg.Email.SMTP.SkipVerify,
	})
	d.Notifier = notify.NewNotifier(d.Mailer, renderer, cfg.Email.Admin)

	checker := dedup.NewChecker(dedup.WithThreshold(cfg.Dedup.Threshold))
	intakeOpts := []intake.ServiceOption{intake.WithBrandCatalog(catalog)}
	if cfg.Dedup.Scope == "global" {
		intakeOpts = append(intakeOpts, intake.WithDedupScope(intake.ScopeGlobal))
	}
	d.Intake = intake.NewService(d.Store, checker, d.Notifier, intakeOpts...)

	d.StatusRun = statusrun.NewService(d.Store, d.Snapshots, statusdiff.NewEngine(), d.Mailer, d.Notifier,
		statusrun.WithRetentionDays(cfg.Notify.RetentionDays),
		statusrun.WithMinSuccessRate(cfg.Notify.MinSuccessRate),
	)

	return d, nil
}

// Close releases backend handles in reverse build order.
func (d *deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		_ = d.closers[i]()
	}
}
