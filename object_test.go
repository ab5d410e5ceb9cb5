package s3diff

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"strconv"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/catalyst-forge-libs/aws/s3diff/errors"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3diff/internal/testutil"
)

func newMockObject(t *testing.T, mock *testutil.MockS3Client, key string) *RemoteObject {
	t.Helper()
	obj, err := NewWithClient(mock).Object("test-bucket", key)
	require.NoError(t, err)
	return obj
}

func TestObject_Validation(t *testing.T) {
	client := NewWithClient(&testutil.MockS3Client{})

	tests := []struct {
		name    string
		bucket  string
		key     string
		wantErr error
	}{
		{name: "valid", bucket: "my-bucket", key: "logs/app.log"},
		{name: "empty bucket", bucket: "", key: "app.log", wantErr: errors.ErrInvalidBucketName},
		{name: "uppercase bucket", bucket: "My-Bucket", key: "app.log", wantErr: errors.ErrInvalidBucketName},
		{name: "empty key", bucket: "my-bucket", key: "", wantErr: errors.ErrInvalidObjectKey},
		{name: "traversal key", bucket: "my-bucket", key: "a/../b", wantErr: errors.ErrInvalidObjectKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj, err := client.Object(tt.bucket, tt.key)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.bucket, obj.Bucket())
			assert.Equal(t, tt.key, obj.Key())
		})
	}
}

func TestObject_IsCompressed(t *testing.T) {
	client := NewWithClient(&testutil.MockS3Client{})

	gz, err := client.Object("b", "app.log.gz")
	require.NoError(t, err)
	assert.True(t, gz.IsCompressed())

	plain, err := client.Object("b", "app.log")
	require.NoError(t, err)
	assert.False(t, plain.IsCompressed())
}

func TestObject_Exists_NotFoundVariants(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "typed NotFound", err: &types.NotFound{}},
		{name: "typed NoSuchKey", err: &types.NoSuchKey{}},
		{name: "generic 404 code", err: &smithy.GenericAPIError{Code: "404", Message: "not found"}},
		{name: "generic NoSuchKey code", err: &smithy.GenericAPIError{Code: "NoSuchKey", Message: "gone"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &testutil.MockS3Client{
				HeadObjectFunc: func(context.Context, *s3.HeadObjectInput, ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
					return nil, tt.err
				},
			}
			obj := newMockObject(t, mock, "missing.log")

			exists, err := obj.Exists(context.Background())
			require.NoError(t, err)
			assert.False(t, exists)
		})
	}
}

func TestObject_Exists_ErrorPropagates(t *testing.T) {
	mock := &testutil.MockS3Client{
		HeadObjectFunc: func(context.Context, *s3.HeadObjectInput, ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
			return nil, &smithy.GenericAPIError{Code: "AccessDenied", Message: "no"}
		},
	}
	obj := newMockObject(t, mock, "app.log")

	_, err := obj.Exists(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AccessDenied")
}

func TestObject_PhysicalSize_CachesHead(t *testing.T) {
	heads := 0
	mock := &testutil.MockS3Client{
		HeadObjectFunc: func(context.Context, *s3.HeadObjectInput, ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
			heads++
			return &s3.HeadObjectOutput{ContentLength: aws.Int64(1234)}, nil
		},
	}
	obj := newMockObject(t, mock, "app.log")

	size, err := obj.PhysicalSize(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, int64(1234), size)

	// Cached: no second probe.
	_, err = obj.PhysicalSize(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, heads)

	// Refresh forces one.
	_, err = obj.PhysicalSize(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 2, heads)
}

func TestObject_PhysicalSize_Missing(t *testing.T) {
	mock := &testutil.MockS3Client{
		HeadObjectFunc: func(context.Context, *s3.HeadObjectInput, ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
			return nil, &types.NotFound{}
		},
	}
	obj := newMockObject(t, mock, "app.log")

	_, err := obj.PhysicalSize(context.Background(), false)
	require.Error(t, err)
	assert.True(t, errors.IsObjectNotFound(err))
}

func TestObject_LogicalSize_FromTag(t *testing.T) {
	tests := []struct {
		name    string
		tagSet  []types.Tag
		want    int64
		wantErr error
	}{
		{
			name: "valid tag",
			tagSet: []types.Tag{{
				Key:   aws.String(TagTotalUncompressedSize),
				Value: aws.String("5242881"),
			}},
			want: 5242881,
		},
		{
			name: "tag among others",
			tagSet: []types.Tag{
				{Key: aws.String("env"), Value: aws.String("prod")},
				{Key: aws.String(TagTotalUncompressedSize), Value: aws.String("99")},
			},
			want: 99,
		},
		{
			name:    "no tag",
			tagSet:  []types.Tag{{Key: aws.String("env"), Value: aws.String("prod")}},
			wantErr: errors.ErrMissingSizeTag,
		},
		{
			name: "malformed tag",
			tagSet: []types.Tag{{
				Key:   aws.String(TagTotalUncompressedSize),
				Value: aws.String("12x"),
			}},
			wantErr: errors.ErrMalformedSizeTag,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &testutil.MockS3Client{
				GetObjectTaggingFunc: func(context.Context, *s3.GetObjectTaggingInput, ...func(*s3.Options)) (*s3.GetObjectTaggingOutput, error) {
					return &s3.GetObjectTaggingOutput{TagSet: tt.tagSet}, nil
				},
			}
			obj := newMockObject(t, mock, "app.log.gz")

			size, err := obj.LogicalSize(context.Background())
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, size)
		})
	}
}

func TestObject_LogicalSize_UncompressedUsesPhysical(t *testing.T) {
	mock := &testutil.MockS3Client{
		HeadObjectFunc: func(context.Context, *s3.HeadObjectInput, ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
			return &s3.HeadObjectOutput{ContentLength: aws.Int64(777)}, nil
		},
		GetObjectTaggingFunc: func(context.Context, *s3.GetObjectTaggingInput, ...func(*s3.Options)) (*s3.GetObjectTaggingOutput, error) {
			t.Fatal("uncompressed objects must not consult tags")
			return nil, nil
		},
	}
	obj := newMockObject(t, mock, "app.log")

	size, err := obj.LogicalSize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(777), size)
}

func TestObject_SetLogicalSize_MergesTags(t *testing.T) {
	var written []types.Tag
	mock := &testutil.MockS3Client{
		GetObjectTaggingFunc: func(context.Context, *s3.GetObjectTaggingInput, ...func(*s3.Options)) (*s3.GetObjectTaggingOutput, error) {
			return &s3.GetObjectTaggingOutput{TagSet: []types.Tag{
				{Key: aws.String("env"), Value: aws.String("prod")},
				{Key: aws.String(TagTotalUncompressedSize), Value: aws.String("10")},
			}}, nil
		},
		PutObjectTaggingFunc: func(_ context.Context, params *s3.PutObjectTaggingInput, _ ...func(*s3.Options)) (*s3.PutObjectTaggingOutput, error) {
			written = params.Tagging.TagSet
			return &s3.PutObjectTaggingOutput{}, nil
		},
	}
	obj := newMockObject(t, mock, "app.log.gz")

	require.NoError(t, obj.SetLogicalSize(context.Background(), 42))

	require.Len(t, written, 2)
	got := map[string]string{}
	for _, tag := range written {
		got[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
	}
	assert.Equal(t, "prod", got["env"], "unrelated tags must survive")
	assert.Equal(t, strconv.Itoa(42), got[TagTotalUncompressedSize])
}

func TestObject_UploadPart_ResetsBuffer(t *testing.T) {
	var sent []byte
	mock := &testutil.MockS3Client{
		UploadPartFunc: func(_ context.Context, params *s3.UploadPartInput, _ ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
			var err error
			sent, err = io.ReadAll(params.Body)
			require.NoError(t, err)
			assert.Equal(t, int64(len(sent)), aws.ToInt64(params.ContentLength))
			return &s3.UploadPartOutput{ETag: aws.String(`"etag-1"`)}, nil
		},
	}
	obj := newMockObject(t, mock, "app.log")

	buf := bytes.NewBufferString("hello world")
	part, err := obj.UploadPart(context.Background(), "uid", 1, buf)
	require.NoError(t, err)

	assert.Equal(t, int32(1), part.Number)
	assert.Equal(t, `"etag-1"`, part.ETag)
	assert.Equal(t, []byte("hello world"), sent)
	assert.Zero(t, buf.Len(), "buffer must be reset after a successful part")
}

func TestObject_UploadPart_KeepsBufferOnFailure(t *testing.T) {
	mock := &testutil.MockS3Client{
		UploadPartFunc: func(context.Context, *s3.UploadPartInput, ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
			return nil, stderrors.New("throttled")
		},
	}
	obj := newMockObject(t, mock, "app.log")

	buf := bytes.NewBufferString("payload")
	_, err := obj.UploadPart(context.Background(), "uid", 1, buf)
	require.Error(t, err)
	assert.Equal(t, "payload", buf.String())
}

func TestObject_CopyExistingAsPart(t *testing.T) {
	mock := &testutil.MockS3Client{
		UploadPartCopyFunc: func(_ context.Context, params *s3.UploadPartCopyInput, _ ...func(*s3.Options)) (*s3.UploadPartCopyOutput, error) {
			assert.Equal(t, "test-bucket/old.log", aws.ToString(params.CopySource))
			assert.Equal(t, int32(1), aws.ToInt32(params.PartNumber))
			return &s3.UploadPartCopyOutput{
				CopyPartResult: &types.CopyPartResult{ETag: aws.String(`"copy-etag"`)},
			}, nil
		},
	}
	obj := newMockObject(t, mock, "old.log")

	part, err := obj.CopyExistingAsPart(context.Background(), "uid")
	require.NoError(t, err)
	assert.Equal(t, Part{Number: 1, ETag: `"copy-etag"`}, part)
}

func TestObject_CompleteUpload_PartSequence(t *testing.T) {
	mock := &testutil.MockS3Client{
		CompleteMultipartUploadFunc: func(context.Context, *s3.CompleteMultipartUploadInput, ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
			return &s3.CompleteMultipartUploadOutput{}, nil
		},
	}
	obj := newMockObject(t, mock, "app.log")

	tests := []struct {
		name    string
		parts   []Part
		wantErr bool
	}{
		{name: "contiguous", parts: []Part{{Number: 1}, {Number: 2}, {Number: 3}}},
		{name: "single", parts: []Part{{Number: 1}}},
		{name: "empty", parts: nil, wantErr: true},
		{name: "gap", parts: []Part{{Number: 1}, {Number: 3}}, wantErr: true},
		{name: "starts at two", parts: []Part{{Number: 2}}, wantErr: true},
		{name: "duplicate", parts: []Part{{Number: 1}, {Number: 1}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := obj.CompleteUpload(context.Background(), "uid", tt.parts)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, errors.ErrPartSequence)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestObject_String(t *testing.T) {
	obj := newMockObject(t, &testutil.MockS3Client{}, "logs/app.log")
	assert.Equal(t, "s3://test-bucket/logs/app.log", obj.String())
}
