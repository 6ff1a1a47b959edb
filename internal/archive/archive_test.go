package archive

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/unclebandit/campaign-autoresponder/internal/config"
)

func TestObjectKey(t *testing.T) {
	at := time.Date(2024, 3, 9, 23, 0, 0, 0, time.UTC)

	a := ObjectKey("postal", []byte(`{"a":1}`), at)
	b := ObjectKey("postal", []byte(`{"a":1}`), at)
	c := ObjectKey("postal", []byte(`{"a":2}`), at)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Regexp(t, `^postal/2024/03/09/[0-9a-f]{64}$`, a)
}

func TestNewDisabledIsNop(t *testing.T) {
	a, err := New(config.ArchiveConfig{Enabled: false}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, NopArchiver{}, a)

	key, err := a.Store(context.Background(), "postal", []byte("x"))
	require.NoError(t, err)
	assert.Empty(t, key)
}

func TestMinIOArchiverStore(t *testing.T) {
	endpoint := os.Getenv("TEST_MINIO_ENDPOINT")
	if endpoint == "" {
		t.Skip("TEST_MINIO_ENDPOINT not set")
	}
	cfg := config.ArchiveConfig{
		Enabled:   true,
		Endpoint:  endpoint,
		AccessKey: os.Getenv("TEST_MINIO_ACCESS_KEY"),
		SecretKey: os.Getenv("TEST_MINIO_SECRET_KEY"),
		Bucket:    os.Getenv("TEST_MINIO_BUCKET"),
	}

	a, err := NewMinIOArchiver(cfg, zap.NewNop())
	require.NoError(t, err)
	key, err := a.Store(context.Background(), "postal", []byte(`{"mail_from":"a@x.com"}`))
	require.NoError(t, err)
	assert.NotEmpty(t, key)
}
