// Package errors provides error types and handling for S3 diff-upload operations.
package errors

import (
	"errors"
	"fmt"
)

// Error represents a diff-upload operation error with context about the
// operation that failed. It wraps the underlying AWS SDK error (or a sentinel)
// with additional context for better debugging.
type Error struct {
	// Op is the operation that failed (e.g., "exists", "uploadPart", "diffUpload")
	Op string

	// Bucket is the S3 bucket name (if applicable)
	Bucket string

	// Key is the S3 object key (if applicable)
	Key string

	// Err is the underlying error from the AWS SDK or other source
	Err error
}

// Error implements the error interface by providing a formatted error message.
func (e *Error) Error() string {
	if e.Bucket != "" && e.Key != "" {
		return fmt.Sprintf("s3diff.%s %s/%s: %v", e.Op, e.Bucket, e.Key, e.Err)
	}
	if e.Bucket != "" {
		return fmt.Sprintf("s3diff.%s bucket %s: %v", e.Op, e.Bucket, e.Err)
	}
	if e.Key != "" {
		return fmt.Sprintf("s3diff.%s object %s: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("s3diff.%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error chaining support.
func (e *Error) Unwrap() error {
	return e.Err
}

// WithBucket adds bucket context to an existing error.
func (e *Error) WithBucket(bucket string) *Error {
	e.Bucket = bucket
	return e
}

// WithKey adds object key context to an existing error.
func (e *Error) WithKey(key string) *Error {
	e.Key = key
	return e
}

// WithMessage wraps the underlying error with a custom message.
func (e *Error) WithMessage(message string) *Error {
	e.Err = fmt.Errorf("%s: %w", message, e.Err)
	return e
}

// NewError creates a new Error with the given operation and underlying error.
func NewError(op string, err error) *Error {
	return &Error{
		Op:  op,
		Err: err,
	}
}

// NewObjectError creates a new Error with bucket and key context.
func NewObjectError(op, bucket, key string, err error) *Error {
	return &Error{
		Op:     op,
		Bucket: bucket,
		Key:    key,
		Err:    err,
	}
}

// Sentinel errors for diff-upload operation failures.
// These can be used with errors.Is() for error checking.
var (
	// ErrObjectNotFound indicates that the requested object does not exist
	ErrObjectNotFound = errors.New("s3diff: object not found")

	// ErrInvalidInput indicates that the provided input is invalid
	ErrInvalidInput = errors.New("s3diff: invalid input")

	// ErrInvalidBucketName indicates that the bucket name is invalid
	ErrInvalidBucketName = fmt.Errorf("%w: invalid bucket name", ErrInvalidInput)

	// ErrInvalidObjectKey indicates that the object key is invalid
	ErrInvalidObjectKey = fmt.Errorf("%w: invalid object key", ErrInvalidInput)

	// ErrInvalidURI indicates that a destination URI is not a valid s3:// URI
	ErrInvalidURI = fmt.Errorf("%w: invalid s3 uri", ErrInvalidInput)

	// ErrMissingSizeTag indicates that a compressed object carries no
	// uncompressed-size tag, so its logical size cannot be recovered
	ErrMissingSizeTag = errors.New("s3diff: uncompressed size tag missing")

	// ErrMalformedSizeTag indicates that the uncompressed-size tag is present
	// but does not parse as an integer
	ErrMalformedSizeTag = errors.New("s3diff: uncompressed size tag malformed")

	// ErrSourceTruncated indicates that the local source is shorter than the
	// logical size already recorded on the destination object
	ErrSourceTruncated = errors.New("s3diff: source shorter than uploaded size")

	// ErrPartSequence indicates that a part list has gaps, duplicates, or
	// does not start at part number 1
	ErrPartSequence = errors.New("s3diff: part numbers not contiguous from 1")
)

// IsObjectNotFound checks if an error indicates that an object was not found.
// This is a convenience function that handles both sentinel errors and wrapped errors.
func IsObjectNotFound(err error) bool {
	return errors.Is(err, ErrObjectNotFound)
}

// IsInvalidInput checks if an error indicates invalid input.
// This is a convenience function that handles both sentinel errors and wrapped errors.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsSourceTruncated checks if an error indicates that the local source shrank
// below the logical size recorded on the destination.
func IsSourceTruncated(err error) bool {
	return errors.Is(err, ErrSourceTruncated)
}

// IsSizeTagError checks if an error indicates a missing or malformed
// uncompressed-size tag on the destination object.
func IsSizeTagError(err error) bool {
	return errors.Is(err, ErrMissingSizeTag) || errors.Is(err, ErrMalformedSizeTag)
}
