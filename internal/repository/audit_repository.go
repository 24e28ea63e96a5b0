package repository

import (
	"context"
	"fmt"
	"time"

	"pagado/pkg/config"

	"cloud.google.com/go/bigquery"
	"go.uber.org/zap"
)

// ExtractionAudit is one raw model output kept for later review.
type ExtractionAudit struct {
	ID        string    `bigquery:"id"`
	User      string    `bigquery:"user"`
	Modality  string    `bigquery:"modality"`
	Provider  string    `bigquery:"provider"`
	RawOutput string    `bigquery:"raw_output"`
	OK        bool      `bigquery:"ok"`
	CreatedAt time.Time `bigquery:"created_at"`
}

type AuditSink interface {
	Record(ctx context.Context, row *ExtractionAudit) error
}

type NopAuditSink struct{}

func (NopAuditSink) Record(context.Context, *ExtractionAudit) error { return nil }

// AuditRepository streams extraction audits into BigQuery.
type AuditRepository struct {
	client   *bigquery.Client
	inserter *bigquery.Inserter
	logger   *zap.Logger
}

func NewAuditRepository(ctx context.Context, cfg *config.AuditConfig, logger *zap.Logger) (*AuditRepository, error) {
	client, err := bigquery.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("bigquery client: %w", err)
	}
	return &AuditRepository{
		client:   client,
		inserter: client.Dataset(cfg.Dataset).Table(cfg.Table).Inserter(),
		logger:   logger,
	}, nil
}

func (r *AuditRepository) Record(ctx context.Context, row *ExtractionAudit) error {
	if err := r.inserter.Put(ctx, row); err != nil {
		return fmt.Errorf("inserting audit row: %w", err)
	}
	return nil
}

func (r *AuditRepository) Close() error {
	return r.client.Close()
}
