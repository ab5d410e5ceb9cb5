// Package s3diff provides incremental uploads of growing files to S3.
// It wraps AWS SDK v2 multipart uploads to append only the bytes a
// destination object does not yet have, reusing the already-uploaded
// content via server-side copy instead of re-sending it.
//
// Each run records the number of uncompressed source bytes incorporated
// into the destination as an object tag. The next run reads that tag,
// copies the existing object as the first part of a new multipart upload,
// and streams only the source bytes past the recorded offset. Because
// gzip members concatenate into a valid stream, the same scheme works for
// compressed destinations: every run contributes an independent member.
//
// Key properties:
//   - Upload cost proportional to growth, not total file size
//   - Crash-safe: the resume tag moves only after a session commits
//   - Optional gzip compression of appended data
//   - Works against S3-compatible stores via custom endpoints
//
// Example usage:
//
//	client, err := s3diff.New(ctx)
//	if err != nil {
//	    return err
//	}
//
//	// Append new bytes of a growing log to its remote copy
//	result, err := client.DiffUpload(ctx, "/var/log/app.log", "s3://my-bucket/logs/app.log.gz",
//	    s3diff.WithCompression(true))
//	if err != nil {
//	    return err
//	}
//	fmt.Printf("uploaded %d bytes in %d parts\n", result.BytesUploaded, result.Parts)
package s3diff
