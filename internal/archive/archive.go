package archive

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
	"lukechampine.com/blake3"

	"github.com/unclebandit/campaign-autoresponder/internal/config"
)

// Archiver stores raw inbound payloads for later inspection.
type Archiver interface {
	Store(ctx context.Context, provider string, payload []byte) (string, error)
}

// New returns a MinIO archiver when archive.enabled is set, otherwise a no-op.
func New(cfg config.ArchiveConfig, logger *zap.Logger) (Archiver, error) {
	if !cfg.Enabled {
		return NopArchiver{}, nil
	}
	return NewMinIOArchiver(cfg, logger)
}

type NopArchiver struct{}

func (NopArchiver) Store(ctx context.Context, provider string, payload []byte) (string, error) {
	return "", nil
}

// MinIOArchiver writes payloads to an S3 compatible bucket.
type MinIOArchiver struct {
	Client     *minio.Client
	BucketName string
	logger     *zap.Logger
}

func NewMinIOArchiver(cfg config.ArchiveConfig, logger *zap.Logger) (*MinIOArchiver, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MinIO client: %w", err)
	}
	return &MinIOArchiver{Client: client, BucketName: cfg.Bucket, logger: logger}, nil
}

// Store writes the payload under a content-addressed key so that webhook
// redeliveries overwrite the same object.
func (a *MinIOArchiver) Store(ctx context.Context, provider string, payload []byte) (string, error) {
	key := ObjectKey(provider, payload, time.Now())
	_, err := a.Client.PutObject(
		ctx,
		a.BucketName,
		key,
		bytes.NewReader(payload),
		int64(len(payload)),
		minio.PutObjectOptions{ContentType: "application/octet-stream", SendContentMd5: true},
	)
	if err != nil {
		return "", fmt.Errorf("failed to archive payload: %w", err)
	}
	a.logger.Debug("archived inbound payload", zap.String("bucket", a.BucketName), zap.String("key", key))
	return key, nil
}

// ObjectKey is provider/yyyy/mm/dd/<blake3 of payload>.
func ObjectKey(provider string, payload []byte, at time.Time) string {
	sum := blake3.Sum256(payload)
	return path.Join(provider, at.UTC().Format("2006/01/02"), hex.EncodeToString(sum[:]))
}
