// Package s3diff provides functional options for configuring client and
// upload behavior.
package s3diff

import (
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/input-output-hk/catalyst-forge-libs/fs"
)

// Default sizing constants for the diff-upload engine.
const (
	// MinPartSize is the smallest part S3 accepts for any part except the
	// last one of a multipart upload.
	MinPartSize int64 = 5 << 20

	// DefaultResumeThreshold is the physical size an existing object must
	// exceed before it is reused as the first part of a new session. Objects
	// at or below it are re-uploaded in full, since they could not legally
	// serve as a non-final part.
	DefaultResumeThreshold = MinPartSize

	// DefaultPartFlushSize is the buffered byte count above which the engine
	// flushes the buffer as the next part.
	DefaultPartFlushSize = MinPartSize

	// DefaultReadChunkSize bounds the per-iteration read from the local
	// source. It is deliberately much smaller than the flush size; it only
	// controls I/O granularity, not part sizing.
	DefaultReadChunkSize = 32 * 1024
)

// ClientConfig holds the configuration assembled from client options.
type ClientConfig struct {
	// Region is the AWS region for S3 operations
	Region string

	// Endpoint is a custom S3 endpoint URL (S3-compatible stores, localstack)
	Endpoint string

	// AccessKey and SecretKey configure static credentials; when empty the
	// default AWS credential chain is used
	AccessKey string
	SecretKey string

	// MaxRetries is the retry budget applied to the AWS config
	MaxRetries int

	// Timeout applies a per-request timeout via a custom HTTP client
	Timeout time.Duration

	// ForcePathStyle switches to path-style addressing
	ForcePathStyle bool

	// CustomAWSConfig overrides default AWS configuration loading
	CustomAWSConfig *aws.Config

	// Filesystem is the filesystem abstraction used to read local sources
	Filesystem fs.Filesystem

	// Logger receives structured progress and diagnostic logging
	Logger *slog.Logger
}

// Option configures the client.
type Option func(*ClientConfig)

// WithRegion sets the AWS region for S3 operations.
// If not specified, uses the default AWS region from the credential chain.
func WithRegion(region string) Option {
	return func(c *ClientConfig) {
		c.Region = region
	}
}

// WithEndpoint sets a custom S3 endpoint URL.
// This is useful for S3-compatible services or local testing with LocalStack.
// Path-style addressing is forced automatically when an endpoint is set.
func WithEndpoint(endpoint string) Option {
	return func(c *ClientConfig) {
		c.Endpoint = endpoint
	}
}

// WithStaticCredentials sets a fixed access key pair instead of the default
// AWS credential chain. Intended for S3-compatible stores.
func WithStaticCredentials(accessKey, secretKey string) Option {
	return func(c *ClientConfig) {
		c.AccessKey = accessKey
		c.SecretKey = secretKey
	}
}

// WithMaxRetries sets the maximum number of retry attempts for failed operations.
// Default is 3 retries. Set to 0 to disable retries.
func WithMaxRetries(maxRetries int) Option {
	return func(c *ClientConfig) {
		c.MaxRetries = maxRetries
	}
}

// WithTimeout sets the timeout for individual S3 operations.
// Default is no timeout (0). Values should be positive durations.
func WithTimeout(timeout time.Duration) Option {
	return func(c *ClientConfig) {
		c.Timeout = timeout
	}
}

// WithForcePathStyle forces the use of path-style URLs instead of virtual-hosted style.
// This is required for S3-compatible services that don't support virtual hosting.
func WithForcePathStyle(forcePathStyle bool) Option {
	return func(c *ClientConfig) {
		c.ForcePathStyle = forcePathStyle
	}
}

// WithAWSConfig allows providing a custom AWS configuration.
// This overrides the default configuration loading behavior.
func WithAWSConfig(config *aws.Config) Option {
	return func(c *ClientConfig) {
		c.CustomAWSConfig = config
	}
}

// WithFilesystem sets a custom filesystem implementation for reading local
// sources. This allows using in-memory filesystems for testing.
// If not specified, defaults to the OS filesystem.
func WithFilesystem(filesystem fs.Filesystem) Option {
	return func(c *ClientConfig) {
		c.Filesystem = filesystem
	}
}

// WithLogger sets the structured logger used by the client and the upload
// engine. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *ClientConfig) {
		c.Logger = logger
	}
}

// UploadConfig holds the configuration assembled from upload options.
type UploadConfig struct {
	// Compress streams source bytes through a gzip compressor before
	// buffering. Each run emits an independent gzip member; members from
	// successive runs concatenate into one valid multistream gzip object.
	Compress bool

	// ResumeThreshold is the physical size an existing destination must
	// exceed to be reused as part 1 via server-side copy.
	ResumeThreshold int64

	// PartFlushSize is the buffered byte count above which a part is flushed.
	PartFlushSize int64

	// ReadChunkSize bounds each read from the local source.
	ReadChunkSize int

	// ContentType overrides content-type detection for the destination.
	ContentType string

	// FullUploadOnTruncate re-uploads from offset zero when the local source
	// is shorter than the logical size already recorded remotely. When false
	// (the default) such runs fail fast with ErrSourceTruncated.
	FullUploadOnTruncate bool
}

// UploadOption configures a single diff-upload run.
type UploadOption func(*UploadConfig)

// WithCompression enables or disables on-the-fly gzip compression.
func WithCompression(compress bool) UploadOption {
	return func(c *UploadConfig) {
		c.Compress = compress
	}
}

// WithResumeThreshold sets the physical size an existing destination object
// must exceed to be extended instead of replaced. Lowering it below
// MinPartSize only makes sense against backends that relax the minimum
// part size.
func WithResumeThreshold(threshold int64) UploadOption {
	return func(c *UploadConfig) {
		if threshold > 0 {
			c.ResumeThreshold = threshold
		}
	}
}

// WithPartFlushSize sets the buffer size above which a part is flushed.
func WithPartFlushSize(size int64) UploadOption {
	return func(c *UploadConfig) {
		if size > 0 {
			c.PartFlushSize = size
		}
	}
}

// WithReadChunkSize sets the per-iteration read size for the local source.
func WithReadChunkSize(size int) UploadOption {
	return func(c *UploadConfig) {
		if size > 0 {
			c.ReadChunkSize = size
		}
	}
}

// WithContentType sets the destination content type, bypassing detection.
func WithContentType(contentType string) UploadOption {
	return func(c *UploadConfig) {
		c.ContentType = contentType
	}
}

// WithFullUploadOnTruncate falls back to a full re-upload when the local
// source has shrunk below the recorded logical size, instead of failing fast.
func WithFullUploadOnTruncate() UploadOption {
	return func(c *UploadConfig) {
		c.FullUploadOnTruncate = true
	}
}

func defaultUploadConfig() *UploadConfig {
	return &UploadConfig{
		ResumeThreshold: DefaultResumeThreshold,
		PartFlushSize:   DefaultPartFlushSize,
		ReadChunkSize:   DefaultReadChunkSize,
	}
}
