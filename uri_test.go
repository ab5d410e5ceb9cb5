package s3diff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/catalyst-forge-libs/aws/s3diff/errors"
)

func TestParseURI(t *testing.T) {
	tests := []struct {
		name       string
		uri        string
		wantBucket string
		wantKey    string
		wantErr    error
	}{
		{
			name:       "simple",
			uri:        "s3://my-bucket/app.log",
			wantBucket: "my-bucket",
			wantKey:    "app.log",
		},
		{
			name:       "nested key",
			uri:        "s3://my-bucket/logs/2024/app.log.gz",
			wantBucket: "my-bucket",
			wantKey:    "logs/2024/app.log.gz",
		},
		{
			name:    "wrong scheme",
			uri:     "https://my-bucket/app.log",
			wantErr: errors.ErrInvalidURI,
		},
		{
			name:    "no scheme",
			uri:     "my-bucket/app.log",
			wantErr: errors.ErrInvalidURI,
		},
		{
			name:    "missing bucket",
			uri:     "s3:///app.log",
			wantErr: errors.ErrInvalidBucketName,
		},
		{
			name:    "missing key",
			uri:     "s3://my-bucket",
			wantErr: errors.ErrInvalidObjectKey,
		},
		{
			name:    "empty key after slash",
			uri:     "s3://my-bucket/",
			wantErr: errors.ErrInvalidObjectKey,
		},
		{
			name:    "uppercase bucket",
			uri:     "s3://My-Bucket/app.log",
			wantErr: errors.ErrInvalidBucketName,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bucket, key, err := ParseURI(tt.uri)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				assert.True(t, errors.IsInvalidInput(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantBucket, bucket)
			assert.Equal(t, tt.wantKey, key)
		})
	}
}
