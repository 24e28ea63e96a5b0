package repository

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"path"
	"time"

	"pagado/internal/models"
	"pagado/pkg/logger"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MediaArchive stores inbound receipts and voice notes.
type MediaArchive interface {
	Archive(ctx context.Context, userID string, media *models.Media) (string, error)
}

// NopArchive discards media.
type NopArchive struct{}

func (NopArchive) Archive(context.Context, string, *models.Media) (string, error) { return "", nil }

// GCSArchive writes media into a Cloud Storage bucket using Application
// Default Credentials.
type GCSArchive struct {
	client *storage.Client
	bucket string
	logger *zap.Logger
	now    func() time.Time
}

func NewGCSArchive(ctx context.Context, bucket string, logger *zap.Logger) (*GCSArchive, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCSArchive{
		client: client,
		bucket: bucket,
		logger: logger,
		now:    time.Now,
	}, nil
}

func (a *GCSArchive) Archive(ctx context.Context, userID string, media *models.Media) (string, error) {
	if media == nil || len(media.Data) == 0 {
		return "", nil
	}

	objectName := archiveObjectName(userID, a.now(), media.MIMEType)

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := a.client.Bucket(a.bucket).Object(objectName).NewWriter(ctx)
	w.ContentType = media.MIMEType
	if _, err := io.Copy(w, bytes.NewReader(media.Data)); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("copy media to GCS writer: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize upload: %w", err)
	}

	uri := fmt.Sprintf("gs://%s/%s", a.bucket, objectName)
	a.logger.Debug("Media archived", logger.User(userID), zap.String("uri", uri))
	return uri, nil
}

func (a *GCSArchive) Close() error {
	return a.client.Close()
}

func archiveObjectName(userID string, at time.Time, mimeType string) string {
	ext := ".bin"
	if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
		ext = exts[0]
	}
	return path.Join("receipts", userID, at.UTC().Format("2006-01-02"), uuid.NewString()+ext)
}
