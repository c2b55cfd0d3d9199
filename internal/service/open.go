package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/alfredjeanlab/contokens/internal/allocator"
	"github.com/alfredjeanlab/contokens/internal/archive"
	"github.com/alfredjeanlab/contokens/internal/config"
	"github.com/alfredjeanlab/contokens/internal/events"
	"github.com/alfredjeanlab/contokens/internal/model"
	"github.com/alfredjeanlab/contokens/internal/notify"
	"github.com/alfredjeanlab/contokens/internal/store/sqlstore"
	"github.com/alfredjeanlab/contokens/internal/transfer"
)

// Open wires a Service from configuration: it connects to the database,
// the event bus (when configured) and the archive destinations.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	types := model.NewTypeSet(cfg.Tokens.TokenTypes...)

	dsn := cfg.Tokens.DBFile
	if cfg.Tokens.DBDriver == config.DriverPostgres {
		dsn = cfg.Tokens.DatabaseURL
	}
	st, err := sqlstore.Open(sqlstore.Options{
		Driver: cfg.Tokens.DBDriver,
		DSN:    dsn,
		Types:  types,
	})
	if err != nil {
		return nil, err
	}
	closers := []io.Closer{st}
	fail := func(err error) (*Service, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i].Close()
		}
		return nil, err
	}

	mailer, err := notify.New(notify.Options{
		SenderName:  cfg.Emails.SenderName,
		SenderEmail: cfg.Emails.SenderEmail,
		Subject:     cfg.Emails.Subject,
		Messages:    cfg.Emails.Messages,
	}, newTransport(cfg.Emails), logger)
	if err != nil {
		return fail(err)
	}

	destinations, err := newDestinations(ctx, cfg.Archive)
	if err != nil {
		return fail(err)
	}

	pub, err := events.Open(cfg.Events.NATSURL)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, pub)

	svc := New(Deps{
		Store: st,
		Types: types,
		Allocator: allocator.New(st, allocator.Options{
			Prefix:       cfg.Tokens.TokenPrefix,
			LowWatermark: cfg.Tokens.LowWatermark,
			BatchSize:    cfg.Tokens.BatchSize,
		}, logger),
		Exporter:  transfer.NewExporter(st, archive.New(destinations, logger), logger),
		Importer:  transfer.NewImporter(st, cfg.Tokens.TokenLength, logger),
		Mailer:    mailer,
		Publisher: pub,
		Logger:    logger,
	})
	svc.closers = closers
	return svc, nil
}

func newTransport(cfg config.EmailsConfig) notify.Transport {
	if cfg.Transport == config.TransportSendGrid {
		return notify.NewSendGridTransport(cfg.SendGridAPIKey)
	}
	return notify.NewSMTPTransport(cfg.SMTPHost)
}

func newDestinations(ctx context.Context, cfg config.ArchiveConfig) ([]archive.Destination, error) {
	var dests []archive.Destination
	if cfg.S3Bucket != "" {
		s3, err := archive.NewS3Destination(ctx, cfg.S3Bucket, cfg.S3Prefix, cfg.S3Region, cfg.S3Endpoint)
		if err != nil {
			return nil, fmt.Errorf("archive: %w", err)
		}
		dests = append(dests, s3)
	}
	if cfg.GitRepo != "" {
		dests = append(dests, archive.NewGitDestination(cfg.GitRepo, "", cfg.GitBranch))
	}
	return dests, nil
}
