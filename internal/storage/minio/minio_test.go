package minio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fruitsalade/renditions/internal/storage/storagetest"
)

func TestSplitEndpoint(t *testing.T) {
	host, secure := splitEndpoint("https://minio.local:9000/", false)
	assert.Equal(t, "minio.local:9000", host)
	assert.True(t, secure)

	host, secure = splitEndpoint("localhost:9000", false)
	assert.Equal(t, "localhost:9000", host)
	assert.False(t, secure)

	_, secure = splitEndpoint("http://localhost:9000", true)
	assert.False(t, secure)
}

func TestPublicBaseFor(t *testing.T) {
	assert.Equal(t, "http://localhost:9000/avatars", publicBaseFor(Config{Endpoint: "localhost:9000", Bucket: "avatars"}))
	assert.Equal(t, "https://cdn.radif.ir", publicBaseFor(Config{Endpoint: "localhost:9000", Bucket: "avatars", PublicBaseURL: "https://cdn.radif.ir/"}))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(minio.ErrorResponse{Code: "NoSuchKey"}))
	assert.True(t, isNotFound(minio.ErrorResponse{StatusCode: 404}))
	assert.False(t, isNotFound(minio.ErrorResponse{Code: "AccessDenied", StatusCode: 403}))
	assert.False(t, isNotFound(errors.New("dial tcp: connection refused")))
}

func TestNewValidates(t *testing.T) {
	_, err := New(context.Background(), Config{Bucket: "b"})
	assert.Error(t, err)
}

func TestMinioBackendContract(t *testing.T) {
	endpoint := os.Getenv("RENDITIONS_TEST_S3_ENDPOINT")
	if endpoint == "" {
		t.Skip("RENDITIONS_TEST_S3_ENDPOINT not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	b, err := New(ctx, Config{
		Endpoint:  endpoint,
		Bucket:    "renditions-test",
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
	})
	require.NoError(t, err)
	storagetest.Run(t, b, fmt.Sprintf("minio-contract-%d", time.Now().UnixNano()))
}
