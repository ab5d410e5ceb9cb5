package s3diff

import (
	"bytes"
	"context"
	stderrors "errors"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/input-output-hk/catalyst-forge-libs/aws/s3diff/errors"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3diff/internal/s3api"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3diff/internal/validation"
)

// TagTotalUncompressedSize is the object tag carrying the number of
// uncompressed source bytes the object represents. It is the sole cross-run
// state of the diff-upload protocol: a stale or missing value makes
// resumption silently incorrect, so it is only ever written after a
// multipart session has committed.
const TagTotalUncompressedSize = "total_uncompressed_size"

// compressedSuffix marks destination keys that store gzip-compressed content.
const compressedSuffix = ".gz"

// Part identifies one contiguous byte range of a multipart upload session.
type Part struct {
	// Number is the 1-based position of the part within the session
	Number int32

	// ETag is the backend-issued content identifier for the part
	ETag string
}

// RemoteObject is a stateful accessor for one S3 object, scoped to a single
// backend client. It caches the physical size observed by the most recent
// successful probe; the cache is never implicitly trusted as fresh, callers
// state whether they need a refreshed read.
type RemoteObject struct {
	api    s3api.S3API
	bucket string
	key    string

	// physicalSize is set only by a successful probe, nil until then
	physicalSize *int64
}

// Object returns a handle for the given bucket and key, validating both.
func (c *Client) Object(bucket, key string) (*RemoteObject, error) {
	if err := validation.ValidateBucketName(bucket); err != nil {
		return nil, err
	}
	if err := validation.ValidateObjectKey(key); err != nil {
		return nil, err
	}

	return &RemoteObject{
		api:    c.s3Client,
		bucket: bucket,
		key:    key,
	}, nil
}

// ObjectFromURI returns a handle for an s3://bucket/key destination URI.
func (c *Client) ObjectFromURI(uri string) (*RemoteObject, error) {
	bucket, key, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	return c.Object(bucket, key)
}

// Bucket returns the object's bucket name.
func (o *RemoteObject) Bucket() string { return o.bucket }

// Key returns the object's key.
func (o *RemoteObject) Key() string { return o.key }

// String renders the object as an s3:// URI.
func (o *RemoteObject) String() string {
	return "s3://" + o.bucket + "/" + o.key
}

// IsCompressed reports whether the object's key indicates gzip content.
func (o *RemoteObject) IsCompressed() bool {
	return strings.HasSuffix(o.key, compressedSuffix)
}

// Exists probes the object's metadata. A not-found condition maps to false;
// any other backend error propagates. On success the physical size is cached.
func (o *RemoteObject) Exists(ctx context.Context) (bool, error) {
	out, err := o.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(o.key),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, errors.NewObjectError("exists", o.bucket, o.key, err)
	}

	size := aws.ToInt64(out.ContentLength)
	o.physicalSize = &size
	return true, nil
}

// PhysicalSize returns the stored byte count of the object, probing the
// backend when no size has been cached yet or refresh is requested.
// Probing a missing object returns ErrObjectNotFound.
func (o *RemoteObject) PhysicalSize(ctx context.Context, refresh bool) (int64, error) {
	if o.physicalSize == nil || refresh {
		exists, err := o.Exists(ctx)
		if err != nil {
			return 0, err
		}
		if !exists {
			return 0, errors.NewObjectError("physicalSize", o.bucket, o.key, errors.ErrObjectNotFound)
		}
	}

	return *o.physicalSize, nil
}

// LogicalSize returns the uncompressed byte count of the content the object
// represents. Compressed objects recover it from the uncompressed-size tag;
// for uncompressed objects it equals the physical size.
func (o *RemoteObject) LogicalSize(ctx context.Context) (int64, error) {
	if !o.IsCompressed() {
		return o.PhysicalSize(ctx, false)
	}

	out, err := o.api.GetObjectTagging(ctx, &s3.GetObjectTaggingInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(o.key),
	})
	if err != nil {
		return 0, errors.NewObjectError("logicalSize", o.bucket, o.key, err)
	}

	for _, tag := range out.TagSet {
		if aws.ToString(tag.Key) != TagTotalUncompressedSize {
			continue
		}
		size, perr := strconv.ParseInt(aws.ToString(tag.Value), 10, 64)
		if perr != nil {
			return 0, errors.NewObjectError("logicalSize", o.bucket, o.key, errors.ErrMalformedSizeTag).
				WithMessage("tag value " + strconv.Quote(aws.ToString(tag.Value)))
		}
		return size, nil
	}

	return 0, errors.NewObjectError("logicalSize", o.bucket, o.key, errors.ErrMissingSizeTag)
}

// SetLogicalSize records the uncompressed byte count on the object's tag set.
// The write merges with any existing tags rather than replacing the whole
// set, so unrelated tags on the destination survive.
func (o *RemoteObject) SetLogicalSize(ctx context.Context, size int64) error {
	existing, err := o.api.GetObjectTagging(ctx, &s3.GetObjectTaggingInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(o.key),
	})
	if err != nil {
		return errors.NewObjectError("setLogicalSize", o.bucket, o.key, err)
	}

	tagSet := make([]types.Tag, 0, len(existing.TagSet)+1)
	for _, tag := range existing.TagSet {
		if aws.ToString(tag.Key) == TagTotalUncompressedSize {
			continue
		}
		tagSet = append(tagSet, tag)
	}
	tagSet = append(tagSet, types.Tag{
		Key:   aws.String(TagTotalUncompressedSize),
		Value: aws.String(strconv.FormatInt(size, 10)),
	})

	_, err = o.api.PutObjectTagging(ctx, &s3.PutObjectTaggingInput{
		Bucket:  aws.String(o.bucket),
		Key:     aws.String(o.key),
		Tagging: &types.Tagging{TagSet: tagSet},
	})
	if err != nil {
		return errors.NewObjectError("setLogicalSize", o.bucket, o.key, err)
	}

	return nil
}

// BeginUpload starts a new multipart upload session and returns its opaque id.
func (o *RemoteObject) BeginUpload(ctx context.Context, contentType string) (string, error) {
	input := &s3.CreateMultipartUploadInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(o.key),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	out, err := o.api.CreateMultipartUpload(ctx, input)
	if err != nil {
		return "", errors.NewObjectError("beginUpload", o.bucket, o.key, err)
	}

	return aws.ToString(out.UploadId), nil
}

// CopyExistingAsPart issues a server-side copy of the object's current full
// content into part number 1 of the session, transferring no bytes through
// the client. Only valid when the object already exists.
func (o *RemoteObject) CopyExistingAsPart(ctx context.Context, uploadID string) (Part, error) {
	out, err := o.api.UploadPartCopy(ctx, &s3.UploadPartCopyInput{
		Bucket:     aws.String(o.bucket),
		Key:        aws.String(o.key),
		CopySource: aws.String(o.bucket + "/" + o.key),
		PartNumber: aws.Int32(1),
		UploadId:   aws.String(uploadID),
	})
	if err != nil {
		return Part{}, errors.NewObjectError("copyExistingAsPart", o.bucket, o.key, err)
	}

	var etag string
	if out.CopyPartResult != nil {
		etag = aws.ToString(out.CopyPartResult.ETag)
	}
	return Part{Number: 1, ETag: etag}, nil
}

// UploadPart uploads the buffer's current contents as the given part number.
// On success the buffer is reset so the caller can reuse it for the next
// chunk window.
func (o *RemoteObject) UploadPart(
	ctx context.Context,
	uploadID string,
	number int32,
	buf *bytes.Buffer,
) (Part, error) {
	out, err := o.api.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:        aws.String(o.bucket),
		Key:           aws.String(o.key),
		UploadId:      aws.String(uploadID),
		PartNumber:    aws.Int32(number),
		Body:          bytes.NewReader(buf.Bytes()),
		ContentLength: aws.Int64(int64(buf.Len())),
	})
	if err != nil {
		return Part{}, errors.NewObjectError("uploadPart", o.bucket, o.key, err)
	}

	buf.Reset()
	return Part{Number: number, ETag: aws.ToString(out.ETag)}, nil
}

// CompleteUpload finalizes the session with the full ordered part list. The
// list must carry part numbers 1..k with no gaps or repeats; the backend
// rejects anything else, so the invariant is checked locally first.
func (o *RemoteObject) CompleteUpload(ctx context.Context, uploadID string, parts []Part) error {
	if len(parts) == 0 {
		return errors.NewObjectError("completeUpload", o.bucket, o.key, errors.ErrPartSequence).
			WithMessage("part list is empty")
	}

	completed := make([]types.CompletedPart, 0, len(parts))
	for i, part := range parts {
		if part.Number != int32(i+1) {
			return errors.NewObjectError("completeUpload", o.bucket, o.key, errors.ErrPartSequence).
				WithMessage("part " + strconv.Itoa(int(part.Number)) + " at position " + strconv.Itoa(i+1))
		}
		completed = append(completed, types.CompletedPart{
			ETag:       aws.String(part.ETag),
			PartNumber: aws.Int32(part.Number),
		})
	}

	_, err := o.api.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(o.bucket),
		Key:             aws.String(o.key),
		UploadId:        aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{Parts: completed},
	})
	if err != nil {
		return errors.NewObjectError("completeUpload", o.bucket, o.key, err)
	}

	return nil
}

// AbortUpload abandons the session, releasing any parts stored for it.
func (o *RemoteObject) AbortUpload(ctx context.Context, uploadID string) error {
	_, err := o.api.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(o.bucket),
		Key:      aws.String(o.key),
		UploadId: aws.String(uploadID),
	})
	if err != nil {
		return errors.NewObjectError("abortUpload", o.bucket, o.key, err)
	}

	return nil
}

// isNotFound classifies backend errors that mean the object does not exist.
// HeadObject reports a typed NotFound; some S3-compatible stores surface a
// generic API error with a not-found code instead.
func isNotFound(err error) bool {
	var notFound *types.NotFound
	if stderrors.As(err, &notFound) {
		return true
	}

	var noSuchKey *types.NoSuchKey
	if stderrors.As(err, &noSuchKey) {
		return true
	}

	var apiErr smithy.APIError
	if stderrors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey", "404":
			return true
		}
	}

	return false
}
