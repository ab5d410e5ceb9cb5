package s3diff

import (
	"net/url"
	"strings"

	"github.com/input-output-hk/catalyst-forge-libs/aws/s3diff/errors"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3diff/internal/validation"
)

// ParseURI splits an s3://bucket/key URI into its bucket and key components,
// validating both against S3 naming rules.
func ParseURI(uri string) (bucket, key string, err error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return "", "", errors.NewError("parseURI", errors.ErrInvalidURI).
			WithMessage(err.Error())
	}

	if parsed.Scheme != "s3" {
		return "", "", errors.NewError("parseURI", errors.ErrInvalidURI).
			WithMessage("scheme must be s3://")
	}

	bucket = parsed.Host
	key = strings.TrimPrefix(parsed.Path, "/")

	if err := validation.ValidateBucketName(bucket); err != nil {
		return "", "", err
	}
	if err := validation.ValidateObjectKey(key); err != nil {
		return "", "", err
	}

	return bucket, key, nil
}
