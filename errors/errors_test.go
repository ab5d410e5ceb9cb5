package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Formatting(t *testing.T) {
	base := stderrors.New("boom")

	err := NewObjectError("uploadPart", "bucket", "logs/app.log", base)
	assert.Equal(t, "s3diff.uploadPart bucket/logs/app.log: boom", err.Error())
	assert.ErrorIs(t, err, base)

	bare := NewError("parseURI", ErrInvalidURI)
	assert.Contains(t, bare.Error(), "s3diff.parseURI")
	assert.ErrorIs(t, bare, ErrInvalidURI)
}

func TestError_WithContext(t *testing.T) {
	err := NewError("exists", ErrObjectNotFound).
		WithBucket("bucket").
		WithKey("app.log")

	assert.Equal(t, "bucket", err.Bucket)
	assert.Equal(t, "app.log", err.Key)
	assert.True(t, IsObjectNotFound(err))
}

func TestSentinelClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		pred func(error) bool
	}{
		{"not found", NewError("exists", ErrObjectNotFound), IsObjectNotFound},
		{"invalid input", NewError("object", ErrInvalidInput), IsInvalidInput},
		{"invalid bucket implies invalid input", NewError("object", ErrInvalidBucketName), IsInvalidInput},
		{"invalid key implies invalid input", NewError("object", ErrInvalidObjectKey), IsInvalidInput},
		{"invalid uri implies invalid input", NewError("parseURI", ErrInvalidURI), IsInvalidInput},
		{"truncated", NewError("diffUpload", ErrSourceTruncated), IsSourceTruncated},
		{"missing tag", NewError("logicalSize", ErrMissingSizeTag), IsSizeTagError},
		{"malformed tag", NewError("logicalSize", ErrMalformedSizeTag), IsSizeTagError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.pred(tt.err))
		})
	}

	assert.False(t, IsObjectNotFound(stderrors.New("other")))
	assert.False(t, IsSizeTagError(nil))
}
