// SPDX-License-Identifier: Apache-2.0

// Package bootstrap wires configuration into a ready ingestion pipeline:
// storage, schema, notifications and the dispatcher.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/adiadia/syrphid-receiver/internal/classifier"
	"github.com/adiadia/syrphid-receiver/internal/config"
	"github.com/adiadia/syrphid-receiver/internal/notify"
	"github.com/adiadia/syrphid-receiver/internal/persistence"
	"github.com/adiadia/syrphid-receiver/internal/repository"
	"github.com/adiadia/syrphid-receiver/internal/schema"
)

type Pipeline struct {
	Database   *persistence.Database
	Store      classifier.Store
	Dispatcher *classifier.Dispatcher
	Publisher  notify.Publisher

	logger *slog.Logger
}

// New opens the database, applies migrations when AutoMigrate is set, and
// builds the dispatcher. The caller owns the returned pipeline and must
// Close it.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := persistence.Open(ctx, cfg.DatabaseURL, persistence.Options{MaxConns: cfg.DatabaseMaxConns}, logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if cfg.AutoMigrate {
		if err := db.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
	}

	validator, err := schema.New()
	if err != nil {
		db.Close()
		return nil, err
	}

	var publisher notify.Publisher = notify.NoopPublisher{}
	if cfg.NATSURL != "" {
		nats, err := notify.NewNATSPublisher(cfg.NATSURL)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("connect nats: %w", err)
		}
		publisher = nats
		logger.Info("event notifications enabled", "nats_url", cfg.NATSURL)
	}

	dispatcher, err := classifier.New(classifier.Deps{
		Validator: validator,
		Taxonomy:  classifier.Taxonomy(cfg.EventTypes),
		Publisher: publisher,
		Logger:    logger,
	})
	if err != nil {
		_ = publisher.Close()
		db.Close()
		return nil, err
	}

	return &Pipeline{
		Database:   db,
		Store:      classifier.NewRepositoryStore(repository.NewStore(db.DB, db.Dialect, logger)),
		Dispatcher: dispatcher,
		Publisher:  publisher,
		logger:     logger,
	}, nil
}

func (p *Pipeline) Close() {
	if err := p.Publisher.Close(); err != nil {
		p.logger.Error("close publisher failed", "error", err)
	}
	p.Database.Close()
}
