package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/input-output-hk/catalyst-forge-libs/aws/s3diff/errors"
)

func TestValidateBucketName(t *testing.T) {
	tests := []struct {
		name    string
		bucket  string
		wantErr bool
	}{
		{name: "valid simple name", bucket: "my-bucket", wantErr: false},
		{name: "valid with dots", bucket: "my.bucket.backup", wantErr: false},
		{name: "valid minimum length", bucket: "abc", wantErr: false},
		{name: "empty", bucket: "", wantErr: true},
		{name: "too short", bucket: "ab", wantErr: true},
		{name: "too long", bucket: strings.Repeat("a", 64), wantErr: true},
		{name: "uppercase letters", bucket: "MyBucket", wantErr: true},
		{name: "underscore", bucket: "my_bucket", wantErr: true},
		{name: "leading hyphen", bucket: "-bucket", wantErr: true},
		{name: "trailing dot", bucket: "bucket.", wantErr: true},
		{name: "adjacent dots", bucket: "my..bucket", wantErr: true},
		{name: "dot hyphen sequence", bucket: "my.-bucket", wantErr: true},
		{name: "ip address", bucket: "192.168.1.1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBucketName(tt.bucket)
			if tt.wantErr {
				assert.Error(t, err)
				assert.ErrorIs(t, err, errors.ErrInvalidBucketName)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidateObjectKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{name: "valid simple key", key: "file.txt", wantErr: false},
		{name: "valid nested key", key: "logs/2026/app.log.gz", wantErr: false},
		{name: "valid unicode", key: "données/été.csv", wantErr: false},
		{name: "empty", key: "", wantErr: true},
		{name: "path traversal", key: "logs/../secrets", wantErr: true},
		{name: "dot segment", key: "./file", wantErr: true},
		{name: "too long", key: strings.Repeat("k", 1025), wantErr: true},
		{name: "control character", key: "file\x00name", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateObjectKey(tt.key)
			if tt.wantErr {
				assert.Error(t, err)
				assert.ErrorIs(t, err, errors.ErrInvalidObjectKey)
				return
			}
			assert.NoError(t, err)
		})
	}
}
