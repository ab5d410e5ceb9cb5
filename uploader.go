package s3diff

import (
	"bytes"
	"context"
	"io"
	"mime"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/klauspost/compress/gzip"

	"github.com/input-output-hk/catalyst-forge-libs/aws/s3diff/errors"
)

// defaultContentType is used when content type detection fails.
const defaultContentType = "application/octet-stream"

// UploadResult describes one completed diff-upload run.
type UploadResult struct {
	// Bucket and Key identify the destination object
	Bucket string
	Key    string

	// Resumed reports whether the existing destination was reused as part 1
	Resumed bool

	// StartingOffset is the logical offset the local read resumed from
	StartingOffset int64

	// BytesRead is the number of uncompressed source bytes read this run
	BytesRead int64

	// BytesUploaded is the number of physical bytes sent as parts this run,
	// excluding the server-side copied part
	BytesUploaded int64

	// LogicalSize is the value written to the uncompressed-size tag
	LogicalSize int64

	// Parts is the number of parts in the completed session, including the
	// copied part on resumed runs
	Parts int

	// Duration is the wall time of the run
	Duration time.Duration
}

// DiffUpload performs one incremental upload run of a monotonically-growing
// local file to an s3://bucket/key destination.
//
// When the destination already exists and is large enough to serve as a
// multipart part, its current content is reused as part 1 via server-side
// copy and only bytes past the recorded logical size are read from disk.
// Otherwise the run degenerates into a full upload. The logical-size tag is
// written only after the multipart session commits, so a failed run never
// moves the resume point.
//
// Only append-only growth of the source is supported: truncation, reordering,
// or in-place edits of already-uploaded bytes produce an incorrect object.
// Two concurrent runs against the same destination race on both the session
// and the tag and can corrupt the result; callers must serialize runs per
// destination externally.
func (c *Client) DiffUpload(
	ctx context.Context,
	srcPath, dstURI string,
	opts ...UploadOption,
) (*UploadResult, error) {
	cfg := defaultUploadConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	obj, err := c.ObjectFromURI(dstURI)
	if err != nil {
		return nil, err
	}

	filesystem := c.filesystem()
	info, err := filesystem.Stat(srcPath)
	if err != nil {
		return nil, errors.NewObjectError("diffUpload", obj.bucket, obj.key, err).
			WithMessage("stat source " + srcPath)
	}
	if info.IsDir() {
		return nil, errors.NewObjectError("diffUpload", obj.bucket, obj.key, errors.ErrInvalidInput).
			WithMessage("source " + srcPath + " is a directory")
	}

	// The size recorded here bounds the read below, so the committed tag
	// matches the bytes incorporated even if the file grows mid-run.
	totalSize := info.Size()
	start := time.Now()

	c.logger.Info("starting diff upload",
		"source", srcPath,
		"destination", obj.String(),
		"source_size", totalSize,
		"compress", cfg.Compress)

	// Plan: resume from the recorded logical size when the destination is
	// large enough to legally serve as a non-final part.
	resume, startingOffset, err := c.planRun(ctx, obj, cfg, totalSize)
	if err != nil {
		return nil, err
	}

	contentType := cfg.ContentType
	if contentType == "" {
		if cfg.Compress {
			contentType = "application/gzip"
		} else {
			contentType = c.detectContentType(srcPath)
		}
	}

	uploadID, err := obj.BeginUpload(ctx, contentType)
	if err != nil {
		return nil, err
	}

	// Scoped session: any non-success exit path below aborts the multipart
	// upload so no dangling session outlives a failed run.
	committed := false
	defer func() {
		if committed {
			return
		}
		if aerr := obj.AbortUpload(context.WithoutCancel(ctx), uploadID); aerr != nil {
			c.logger.Warn("failed to abort multipart upload",
				"destination", obj.String(),
				"upload_id", uploadID,
				"error", aerr)
		}
	}()

	parts := make([]Part, 0, 4)
	if resume {
		part, cerr := obj.CopyExistingAsPart(ctx, uploadID)
		if cerr != nil {
			return nil, cerr
		}
		parts = append(parts, part)
		c.logger.Info("reusing existing object as first part",
			"destination", obj.String(),
			"starting_offset", startingOffset)
	}

	bytesRead, bytesUploaded, parts, err := c.streamParts(ctx, obj, uploadID, srcPath, startingOffset, totalSize, cfg, parts)
	if err != nil {
		return nil, err
	}

	// Commit: only after the session assembles does the tag move.
	if err := obj.CompleteUpload(ctx, uploadID, parts); err != nil {
		return nil, err
	}
	committed = true

	logicalSize := startingOffset + bytesRead
	if err := obj.SetLogicalSize(ctx, logicalSize); err != nil {
		return nil, err
	}

	result := &UploadResult{
		Bucket:         obj.bucket,
		Key:            obj.key,
		Resumed:        resume,
		StartingOffset: startingOffset,
		BytesRead:      bytesRead,
		BytesUploaded:  bytesUploaded,
		LogicalSize:    logicalSize,
		Parts:          len(parts),
		Duration:       time.Since(start),
	}

	c.logger.Info("diff upload complete",
		"destination", obj.String(),
		"bytes_read", result.BytesRead,
		"logical_size", result.LogicalSize,
		"parts", result.Parts,
		"duration", result.Duration)

	return result, nil
}

// planRun decides the resume offset for a run. The destination is reusable
// when it exists and its physical size exceeds the resume threshold; below
// that an object cannot safely be a non-final part, so the run falls back to
// a full replace.
func (c *Client) planRun(
	ctx context.Context,
	obj *RemoteObject,
	cfg *UploadConfig,
	totalSize int64,
) (resume bool, startingOffset int64, err error) {
	exists, err := obj.Exists(ctx)
	if err != nil {
		return false, 0, err
	}
	if !exists {
		return false, 0, nil
	}

	physical, err := obj.PhysicalSize(ctx, false)
	if err != nil {
		return false, 0, err
	}
	if physical <= cfg.ResumeThreshold {
		return false, 0, nil
	}

	offset, err := obj.LogicalSize(ctx)
	if err != nil {
		return false, 0, err
	}

	if offset > totalSize {
		if !cfg.FullUploadOnTruncate {
			return false, 0, errors.NewObjectError("diffUpload", obj.bucket, obj.key, errors.ErrSourceTruncated).
				WithMessage("source has " + itoa(totalSize) + " bytes, " + itoa(offset) + " already uploaded")
		}
		c.logger.Warn("source shorter than uploaded size, re-uploading in full",
			"destination", obj.String(),
			"source_size", totalSize,
			"uploaded_size", offset)
		return false, 0, nil
	}

	return true, offset, nil
}

// streamParts reads the source from startingOffset, feeds it through the
// optional compressor into a bounded buffer, and flushes the buffer as parts.
// The final buffer window is uploaded unconditionally, even when empty: a
// multipart session needs at least one part, and only the last part may be
// smaller than the backend minimum.
func (c *Client) streamParts(
	ctx context.Context,
	obj *RemoteObject,
	uploadID, srcPath string,
	startingOffset, totalSize int64,
	cfg *UploadConfig,
	parts []Part,
) (bytesRead, bytesUploaded int64, _ []Part, err error) {
	file, err := c.filesystem().Open(srcPath)
	if err != nil {
		return 0, 0, nil, errors.NewObjectError("diffUpload", obj.bucket, obj.key, err).
			WithMessage("open source " + srcPath)
	}
	defer file.Close()

	if startingOffset > 0 {
		if seeker, ok := file.(io.Seeker); ok {
			_, err = seeker.Seek(startingOffset, io.SeekStart)
		} else {
			_, err = io.CopyN(io.Discard, file, startingOffset)
		}
		if err != nil {
			return 0, 0, nil, errors.NewObjectError("diffUpload", obj.bucket, obj.key, err).
				WithMessage("seek source to " + itoa(startingOffset))
		}
	}

	reader := io.LimitReader(file, totalSize-startingOffset)
	buf := &bytes.Buffer{}

	var sink io.Writer = buf
	var compressor *gzip.Writer
	if cfg.Compress {
		compressor = gzip.NewWriter(buf)
		sink = compressor
	}

	chunk := make([]byte, cfg.ReadChunkSize)
	for {
		n, rerr := reader.Read(chunk)
		if n > 0 {
			bytesRead += int64(n)
			if _, werr := sink.Write(chunk[:n]); werr != nil {
				return 0, 0, nil, errors.NewObjectError("diffUpload", obj.bucket, obj.key, werr).
					WithMessage("compress chunk")
			}

			if int64(buf.Len()) > cfg.PartFlushSize {
				size := buf.Len()
				part, perr := obj.UploadPart(ctx, uploadID, int32(len(parts)+1), buf)
				if perr != nil {
					return 0, 0, nil, perr
				}
				parts = append(parts, part)
				bytesUploaded += int64(size)
				c.logger.Debug("flushed part",
					"destination", obj.String(),
					"part", part.Number,
					"size", size)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return 0, 0, nil, errors.NewObjectError("diffUpload", obj.bucket, obj.key, rerr).
				WithMessage("read source " + srcPath)
		}
	}

	// Closing the compressor lands the gzip member trailer in the buffer.
	if compressor != nil {
		if cerr := compressor.Close(); cerr != nil {
			return 0, 0, nil, errors.NewObjectError("diffUpload", obj.bucket, obj.key, cerr).
				WithMessage("finalize compressor")
		}
	}

	size := buf.Len()
	part, err := obj.UploadPart(ctx, uploadID, int32(len(parts)+1), buf)
	if err != nil {
		return 0, 0, nil, err
	}
	parts = append(parts, part)
	bytesUploaded += int64(size)

	return bytesRead, bytesUploaded, parts, nil
}

// detectContentType determines the content type using mimetype where
// possible, falling back to extension-based lookup.
func (c *Client) detectContentType(path string) string {
	file, err := c.filesystem().Open(path)
	if err != nil {
		return detectContentTypeFromExtension(path)
	}
	defer file.Close()

	// Read first 512 bytes for content detection
	buf := make([]byte, 512)
	n, _ := file.Read(buf)
	if n > 0 {
		if mt := mimetype.Detect(buf[:n]); mt != nil {
			return mt.String()
		}
	}

	return detectContentTypeFromExtension(path)
}

// detectContentTypeFromExtension detects content type from the file extension.
func detectContentTypeFromExtension(path string) string {
	if ext := filepath.Ext(path); ext != "" {
		if byExt := mime.TypeByExtension(ext); byExt != "" {
			return byExt
		}
	}

	return defaultContentType
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
