package s3diff

import (
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/catalyst-forge-libs/fs/billy"

	"github.com/input-output-hk/catalyst-forge-libs/aws/s3diff/internal/testutil"
)

func TestNew_WithOptions(t *testing.T) {
	client, err := New(
		WithRegion("eu-west-1"),
		WithEndpoint("http://localhost:9000"),
		WithStaticCredentials("access", "secret"),
		WithMaxRetries(5),
		WithTimeout(30*time.Second),
	)
	require.NoError(t, err)
	require.NotNil(t, client)
	assert.Equal(t, "eu-west-1", client.config.Region)
	assert.Equal(t, 5, client.config.RetryMaxAttempts)
}

func TestNew_WithCustomAWSConfig(t *testing.T) {
	custom := aws.Config{Region: "ap-southeast-2"}

	client, err := New(WithAWSConfig(&custom))
	require.NoError(t, err)
	assert.Equal(t, "ap-southeast-2", client.config.Region)
}

func TestNew_DefaultRegion(t *testing.T) {
	client, err := New(WithAWSConfig(&aws.Config{}))
	require.NoError(t, err)
	assert.Equal(t, "us-east-1", client.config.Region)
}

func TestNewWithClient_Defaults(t *testing.T) {
	client := NewWithClient(&testutil.MockS3Client{})
	require.NotNil(t, client)
	assert.NotNil(t, client.filesystem())
	assert.NotNil(t, client.logger)
	assert.NoError(t, client.Close())
}

func TestClient_SetFilesystem(t *testing.T) {
	client := NewWithClient(&testutil.MockS3Client{})
	memfs := billy.NewInMemoryFS()

	client.SetFilesystem(memfs)
	assert.Same(t, memfs, client.filesystem())
}

func TestUploadConfig_Defaults(t *testing.T) {
	cfg := defaultUploadConfig()
	assert.Equal(t, DefaultResumeThreshold, cfg.ResumeThreshold)
	assert.Equal(t, DefaultPartFlushSize, cfg.PartFlushSize)
	assert.Equal(t, DefaultReadChunkSize, cfg.ReadChunkSize)
	assert.False(t, cfg.Compress)
	assert.False(t, cfg.FullUploadOnTruncate)
	assert.Empty(t, cfg.ContentType)
}

func TestUploadOptions_IgnoreNonPositive(t *testing.T) {
	cfg := defaultUploadConfig()
	for _, opt := range []UploadOption{
		WithResumeThreshold(0),
		WithResumeThreshold(-1),
		WithPartFlushSize(0),
		WithReadChunkSize(-5),
	} {
		opt(cfg)
	}

	assert.Equal(t, DefaultResumeThreshold, cfg.ResumeThreshold)
	assert.Equal(t, DefaultPartFlushSize, cfg.PartFlushSize)
	assert.Equal(t, DefaultReadChunkSize, cfg.ReadChunkSize)
}
