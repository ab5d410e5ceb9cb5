package testutil

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/input-output-hk/catalyst-forge-libs/aws/s3diff/internal/s3api"
)

// FakeS3 is an in-memory S3 double implementing the multipart-upload and
// object-tagging semantics the diff-upload protocol depends on: opaque upload
// ids, per-part storage, server-side part copy, contiguity validation on
// complete, and whole-set tag replacement.
//
// It is safe for concurrent use, though the engine itself is single-threaded.
type FakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte            // "bucket/key" -> content
	tags    map[string]map[string]string // "bucket/key" -> tag set
	uploads map[string]*fakeUpload
	nextID  int
	aborted []string

	completedParts []CompletedPart // part list of the most recent complete

	// Error injection. A nil field means the operation succeeds.
	HeadObjectErr   error
	CreateUploadErr error
	UploadPartErr   error
	PartCopyErr     error
	CompleteErr     error
	GetTaggingErr   error
	PutTaggingErr   error

	// FailAtPartNumber makes UploadPart fail for the given part number.
	// Zero disables the injection.
	FailAtPartNumber int32
}

// CompletedPart records one part as it was assembled by a completed upload.
type CompletedPart struct {
	Number int32
	Size   int
}

type fakeUpload struct {
	bucket string
	key    string
	parts  map[int32][]byte
	etags  map[int32]string
}

// NewFakeS3 creates an empty in-memory S3 double.
func NewFakeS3() *FakeS3 {
	return &FakeS3{
		objects: make(map[string][]byte),
		tags:    make(map[string]map[string]string),
		uploads: make(map[string]*fakeUpload),
	}
}

// SeedObject stores an object and its tag set directly, bypassing the upload
// protocol. Useful for arranging pre-existing destination state.
func (f *FakeS3) SeedObject(bucket, key string, data []byte, tags map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	addr := bucket + "/" + key
	f.objects[addr] = append([]byte(nil), data...)
	f.tags[addr] = make(map[string]string, len(tags))
	for k, v := range tags {
		f.tags[addr][k] = v
	}
}

// ObjectBytes returns a copy of the stored object content.
func (f *FakeS3) ObjectBytes(bucket, key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, ok := f.objects[bucket+"/"+key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), data...), true
}

// Tags returns a copy of the stored tag set.
func (f *FakeS3) Tags(bucket, key string) map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make(map[string]string)
	for k, v := range f.tags[bucket+"/"+key] {
		out[k] = v
	}
	return out
}

// OpenUploads returns the number of multipart sessions that were started but
// neither completed nor aborted.
func (f *FakeS3) OpenUploads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.uploads)
}

// Aborted returns the upload ids that were aborted.
func (f *FakeS3) Aborted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.aborted...)
}

// CompletedParts returns the ordered part list of the most recently completed
// upload, with the assembled size of each part.
func (f *FakeS3) CompletedParts() []CompletedPart {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]CompletedPart(nil), f.completedParts...)
}

// HeadObject implements s3api.S3API.
func (f *FakeS3) HeadObject(
	_ context.Context,
	params *s3.HeadObjectInput,
	_ ...func(*s3.Options),
) (*s3.HeadObjectOutput, error) {
	if f.HeadObjectErr != nil {
		return nil, f.HeadObjectErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	data, ok := f.objects[aws.ToString(params.Bucket)+"/"+aws.ToString(params.Key)]
	if !ok {
		return nil, &types.NotFound{Message: aws.String("Not Found")}
	}

	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(data))),
	}, nil
}

// GetObjectTagging implements s3api.S3API.
func (f *FakeS3) GetObjectTagging(
	_ context.Context,
	params *s3.GetObjectTaggingInput,
	_ ...func(*s3.Options),
) (*s3.GetObjectTaggingOutput, error) {
	if f.GetTaggingErr != nil {
		return nil, f.GetTaggingErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	addr := aws.ToString(params.Bucket) + "/" + aws.ToString(params.Key)
	if _, ok := f.objects[addr]; !ok {
		return nil, &types.NoSuchKey{Message: aws.String("The specified key does not exist.")}
	}

	out := &s3.GetObjectTaggingOutput{}
	for k, v := range f.tags[addr] {
		out.TagSet = append(out.TagSet, types.Tag{Key: aws.String(k), Value: aws.String(v)})
	}
	return out, nil
}

// PutObjectTagging implements s3api.S3API. The provided tag set replaces the
// stored one wholesale, matching S3 semantics.
func (f *FakeS3) PutObjectTagging(
	_ context.Context,
	params *s3.PutObjectTaggingInput,
	_ ...func(*s3.Options),
) (*s3.PutObjectTaggingOutput, error) {
	if f.PutTaggingErr != nil {
		return nil, f.PutTaggingErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	addr := aws.ToString(params.Bucket) + "/" + aws.ToString(params.Key)
	if _, ok := f.objects[addr]; !ok {
		return nil, &types.NoSuchKey{Message: aws.String("The specified key does not exist.")}
	}

	tagSet := make(map[string]string)
	if params.Tagging != nil {
		for _, tag := range params.Tagging.TagSet {
			tagSet[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
		}
	}
	f.tags[addr] = tagSet

	return &s3.PutObjectTaggingOutput{}, nil
}

// CreateMultipartUpload implements s3api.S3API.
func (f *FakeS3) CreateMultipartUpload(
	_ context.Context,
	params *s3.CreateMultipartUploadInput,
	_ ...func(*s3.Options),
) (*s3.CreateMultipartUploadOutput, error) {
	if f.CreateUploadErr != nil {
		return nil, f.CreateUploadErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	id := fmt.Sprintf("upload-%04d", f.nextID)
	f.uploads[id] = &fakeUpload{
		bucket: aws.ToString(params.Bucket),
		key:    aws.ToString(params.Key),
		parts:  make(map[int32][]byte),
		etags:  make(map[int32]string),
	}

	return &s3.CreateMultipartUploadOutput{UploadId: aws.String(id)}, nil
}

// UploadPart implements s3api.S3API.
func (f *FakeS3) UploadPart(
	_ context.Context,
	params *s3.UploadPartInput,
	_ ...func(*s3.Options),
) (*s3.UploadPartOutput, error) {
	if f.UploadPartErr != nil {
		return nil, f.UploadPartErr
	}

	number := aws.ToInt32(params.PartNumber)
	if f.FailAtPartNumber != 0 && number == f.FailAtPartNumber {
		return nil, fmt.Errorf("injected failure for part %d", number)
	}

	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	upload, ok := f.uploads[aws.ToString(params.UploadId)]
	if !ok {
		return nil, &types.NoSuchUpload{Message: aws.String("The specified upload does not exist.")}
	}

	etag := contentETag(data)
	upload.parts[number] = data
	upload.etags[number] = etag

	return &s3.UploadPartOutput{ETag: aws.String(etag)}, nil
}

// UploadPartCopy implements s3api.S3API. The copy source is resolved against
// the stored objects, so no client-side data transfer is simulated.
func (f *FakeS3) UploadPartCopy(
	_ context.Context,
	params *s3.UploadPartCopyInput,
	_ ...func(*s3.Options),
) (*s3.UploadPartCopyOutput, error) {
	if f.PartCopyErr != nil {
		return nil, f.PartCopyErr
	}

	source := aws.ToString(params.CopySource)
	if unescaped, err := url.QueryUnescape(source); err == nil {
		source = unescaped
	}
	source = strings.TrimPrefix(source, "/")

	f.mu.Lock()
	defer f.mu.Unlock()

	data, ok := f.objects[source]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("The specified key does not exist.")}
	}

	upload, ok := f.uploads[aws.ToString(params.UploadId)]
	if !ok {
		return nil, &types.NoSuchUpload{Message: aws.String("The specified upload does not exist.")}
	}

	number := aws.ToInt32(params.PartNumber)
	copied := append([]byte(nil), data...)
	etag := contentETag(copied)
	upload.parts[number] = copied
	upload.etags[number] = etag

	return &s3.UploadPartCopyOutput{
		CopyPartResult: &types.CopyPartResult{ETag: aws.String(etag)},
	}, nil
}

// CompleteMultipartUpload implements s3api.S3API. It enforces the backend
// invariant that part numbers form a contiguous ascending sequence from 1 and
// that every referenced part was uploaded with a matching ETag.
func (f *FakeS3) CompleteMultipartUpload(
	_ context.Context,
	params *s3.CompleteMultipartUploadInput,
	_ ...func(*s3.Options),
) (*s3.CompleteMultipartUploadOutput, error) {
	if f.CompleteErr != nil {
		return nil, f.CompleteErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	id := aws.ToString(params.UploadId)
	upload, ok := f.uploads[id]
	if !ok {
		return nil, &types.NoSuchUpload{Message: aws.String("The specified upload does not exist.")}
	}
	if params.MultipartUpload == nil || len(params.MultipartUpload.Parts) == 0 {
		return nil, fmt.Errorf("InvalidRequest: part list is empty")
	}

	var assembled []byte
	completed := make([]CompletedPart, 0, len(params.MultipartUpload.Parts))
	for i, part := range params.MultipartUpload.Parts {
		number := aws.ToInt32(part.PartNumber)
		if number != int32(i+1) {
			return nil, fmt.Errorf("InvalidPartOrder: part %d at position %d", number, i+1)
		}
		data, ok := upload.parts[number]
		if !ok {
			return nil, fmt.Errorf("InvalidPart: part %d was not uploaded", number)
		}
		if aws.ToString(part.ETag) != upload.etags[number] {
			return nil, fmt.Errorf("InvalidPart: etag mismatch for part %d", number)
		}
		assembled = append(assembled, data...)
		completed = append(completed, CompletedPart{Number: number, Size: len(data)})
	}

	addr := upload.bucket + "/" + upload.key
	f.objects[addr] = assembled
	// Completing a multipart upload creates a fresh object; any tag set from
	// a previous object under the same key does not carry over.
	f.tags[addr] = make(map[string]string)
	f.completedParts = completed
	delete(f.uploads, id)

	return &s3.CompleteMultipartUploadOutput{
		ETag: aws.String(contentETag(assembled)),
	}, nil
}

// AbortMultipartUpload implements s3api.S3API.
func (f *FakeS3) AbortMultipartUpload(
	_ context.Context,
	params *s3.AbortMultipartUploadInput,
	_ ...func(*s3.Options),
) (*s3.AbortMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := aws.ToString(params.UploadId)
	if _, ok := f.uploads[id]; !ok {
		return nil, &types.NoSuchUpload{Message: aws.String("The specified upload does not exist.")}
	}
	delete(f.uploads, id)
	f.aborted = append(f.aborted, id)

	return &s3.AbortMultipartUploadOutput{}, nil
}

func contentETag(data []byte) string {
	sum := md5.Sum(data)
	return `"` + hex.EncodeToString(sum[:]) + `"`
}

// Ensure FakeS3 implements s3api.S3API interface
var _ s3api.S3API = (*FakeS3)(nil)
