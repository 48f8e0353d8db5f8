// Package s3 provides a storage driver for Amazon S3 and S3-compatible
// services (MinIO, Ceph RGW, Cloudflare R2).
//
// Directories are synthesized from key prefixes: CreateDir stores an empty
// "path/" marker object and listings fold common prefixes into directory
// entries. Rename has no native S3 operation; wrap the driver in an
// EmulationLayer to get copy+delete semantics.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/gobeaver/storkit"
)

// minPartSize is the smallest part S3 accepts in a multipart upload,
// except for the last one.
const minPartSize = 5 << 20

// Driver provides an S3 implementation of storkit.Accessor.
type Driver struct {
	client *s3.Client
	bucket string
	prefix string
}

// Option configures the driver.
type Option func(*Driver)

// WithPrefix scopes all keys under the given prefix.
func WithPrefix(prefix string) Option {
	return func(d *Driver) {
		if prefix != "" && !strings.HasSuffix(prefix, "/") {
			prefix += "/"
		}
		d.prefix = prefix
	}
}

// New creates a new S3 driver over an existing client.
func New(client *s3.Client, bucket string, options ...Option) *Driver {
	d := &Driver{
		client: client,
		bucket: bucket,
	}
	for _, option := range options {
		option(d)
	}
	return d
}

// Info implements storkit.Accessor.
func (d *Driver) Info() storkit.Capability {
	return storkit.Capability{
		Stat:                 true,
		Read:                 true,
		ReadWithRange:        true,
		Write:                true,
		WriteWithContentType: true,
		WriteCanStream:       true,
		CreateDir:            true,
		Delete:               true,
		Copy:                 true,
		List:                 true,
		ListWithRecursive:    true,
		Presign:              true,
		MaxBatchSize:         1000,
		ListPageSize:         1000,
	}
}

// key maps a normalized storage path onto a bucket key.
func (d *Driver) key(p string) string {
	return d.prefix + p
}

// rel maps a bucket key back onto a storage path.
func (d *Driver) rel(key string) string {
	return strings.TrimPrefix(key, d.prefix)
}

// Stat implements storkit.Accessor. Directory stats succeed when either a
// marker object or any key under the prefix exists.
func (d *Driver) Stat(ctx context.Context, p string, opts storkit.StatOptions) (storkit.Metadata, error) {
	if p == "" {
		// The root always exists; probing the bucket costs a round trip
		// with no extra information.
		return storkit.Metadata{Mode: storkit.ModeDir}, nil
	}

	input := &s3.HeadObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.key(p)),
	}
	if opts.IfMatch != "" {
		input.IfMatch = aws.String(opts.IfMatch)
	}

	resp, err := d.client.HeadObject(ctx, input)
	if err == nil {
		meta := storkit.NewFileMetadata(aws.ToInt64(resp.ContentLength), aws.ToTime(resp.LastModified))
		meta.ETag = strings.Trim(aws.ToString(resp.ETag), `"`)
		meta.ContentType = aws.ToString(resp.ContentType)
		if len(resp.Metadata) > 0 {
			meta.UserMetadata = resp.Metadata
		}
		return meta, nil
	}

	mapped := mapError(storkit.OpStat, p, err)
	if mapped.Kind != storkit.KindNotFound {
		return storkit.Metadata{}, mapped
	}

	// No object: check for a synthesized directory.
	list, lerr := d.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(d.bucket),
		Prefix:  aws.String(d.key(p) + "/"),
		MaxKeys: aws.Int32(1),
	})
	if lerr != nil {
		return storkit.Metadata{}, mapError(storkit.OpStat, p, lerr)
	}
	if len(list.Contents) > 0 || len(list.CommonPrefixes) > 0 {
		return storkit.Metadata{Mode: storkit.ModeDir}, nil
	}
	return storkit.Metadata{}, mapped
}

// Read implements storkit.Accessor.
func (d *Driver) Read(ctx context.Context, p string, opts storkit.ReadOptions) (io.ReadCloser, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.key(p)),
	}
	if opts.IfMatch != "" {
		input.IfMatch = aws.String(opts.IfMatch)
	}
	if opts.Range != nil {
		input.Range = aws.String(httpRange(opts.Range))
	}

	resp, err := d.client.GetObject(ctx, input)
	if err != nil {
		return nil, mapError(storkit.OpRead, p, err)
	}
	return resp.Body, nil
}

// httpRange renders a ByteRange as an HTTP Range header value.
func httpRange(r *storkit.ByteRange) string {
	if r.Length < 0 {
		return fmt.Sprintf("bytes=%d-", r.Start)
	}
	return fmt.Sprintf("bytes=%d-%d", r.Start, r.Start+r.Length-1)
}

// Write implements storkit.Accessor with a single PutObject.
func (d *Driver) Write(ctx context.Context, p string, r io.Reader, opts storkit.WriteOptions) (storkit.Metadata, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return storkit.Metadata{}, storkit.WrapError(storkit.KindUnexpected, storkit.OpWrite, p, err)
	}

	input := &s3.PutObjectInput{
		Bucket:        aws.String(d.bucket),
		Key:           aws.String(d.key(p)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}
	if len(opts.UserMetadata) > 0 {
		input.Metadata = opts.UserMetadata
	}
	if !opts.Overwrite {
		input.IfNoneMatch = aws.String("*")
	}
	if opts.IfMatch != "" {
		input.IfMatch = aws.String(opts.IfMatch)
	}

	resp, err := d.client.PutObject(ctx, input)
	if err != nil {
		mapped := mapError(storkit.OpWrite, p, err)
		if !opts.Overwrite && mapped.Kind == storkit.KindConflict {
			return storkit.Metadata{}, storkit.NewError(storkit.KindAlreadyExists, storkit.OpWrite, p, "")
		}
		return storkit.Metadata{}, mapped
	}

	meta := storkit.NewFileMetadata(int64(len(data)), time.Now())
	meta.ETag = strings.Trim(aws.ToString(resp.ETag), `"`)
	meta.ContentType = opts.ContentType
	meta.UserMetadata = opts.UserMetadata
	return meta, nil
}

// Delete implements storkit.Accessor. S3 deletes are naturally idempotent;
// strict mode adds a head check so missing entries fail with NotFound.
func (d *Driver) Delete(ctx context.Context, p string, opts storkit.DeleteOptions) error {
	if !opts.Idempotent {
		if _, err := d.Stat(ctx, p, storkit.StatOptions{}); err != nil {
			if storkit.IsNotFound(err) {
				return storkit.NewError(storkit.KindNotFound, storkit.OpDelete, p, "")
			}
			return err
		}
	}

	_, err := d.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.key(p)),
	})
	if err != nil {
		return mapError(storkit.OpDelete, p, err)
	}
	return nil
}

// CreateDir implements storkit.Accessor with an empty marker object.
func (d *Driver) CreateDir(ctx context.Context, p string) error {
	key := d.key(p)
	if !strings.HasSuffix(key, "/") {
		key += "/"
	}
	_, err := d.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(d.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(nil),
		ContentType: aws.String("application/x-directory"),
	})
	if err != nil {
		return mapError(storkit.OpCreateDir, p, err)
	}
	return nil
}

// List implements storkit.Accessor over ListObjectsV2 pagination.
func (d *Driver) List(ctx context.Context, p string, opts storkit.ListOptions) (storkit.Pager, error) {
	prefix := d.key(p)
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(d.bucket),
		Prefix: aws.String(prefix),
	}
	if !opts.Recursive {
		input.Delimiter = aws.String("/")
	}
	if opts.PageSize > 0 {
		input.MaxKeys = aws.Int32(int32(opts.PageSize))
	}
	if opts.StartAfter != "" {
		input.StartAfter = aws.String(d.key(opts.StartAfter))
	}

	return &s3Pager{driver: d, path: p, listPrefix: prefix, input: input}, nil
}

// s3Pager issues one ListObjectsV2 call per page, carrying the
// continuation token between calls.
type s3Pager struct {
	driver     *Driver
	path       string
	listPrefix string
	input      *s3.ListObjectsV2Input
	token      *string
	done       bool
}

func (p *s3Pager) NextPage(ctx context.Context) ([]storkit.Entry, error) {
	if p.done {
		return nil, nil
	}
	p.input.ContinuationToken = p.token

	resp, err := p.driver.client.ListObjectsV2(ctx, p.input)
	if err != nil {
		return nil, mapError(storkit.OpList, p.path, err)
	}

	var entries []storkit.Entry
	for _, cp := range resp.CommonPrefixes {
		dirPath := strings.TrimSuffix(p.driver.rel(aws.ToString(cp.Prefix)), "/")
		if dirPath == "" {
			continue
		}
		entries = append(entries, storkit.Entry{
			Path:     dirPath,
			Metadata: storkit.Metadata{Mode: storkit.ModeDir},
		})
	}
	for _, obj := range resp.Contents {
		key := aws.ToString(obj.Key)
		if key == p.listPrefix {
			// The directory's own marker object.
			continue
		}
		rel := p.driver.rel(key)
		if strings.HasSuffix(key, "/") {
			entries = append(entries, storkit.Entry{
				Path:     strings.TrimSuffix(rel, "/"),
				Metadata: storkit.NewDirMetadata(aws.ToTime(obj.LastModified)),
			})
			continue
		}
		meta := storkit.NewFileMetadata(aws.ToInt64(obj.Size), aws.ToTime(obj.LastModified))
		meta.ETag = strings.Trim(aws.ToString(obj.ETag), `"`)
		entries = append(entries, storkit.Entry{Path: rel, Metadata: meta})
	}

	if aws.ToBool(resp.IsTruncated) {
		p.token = resp.NextContinuationToken
	} else {
		p.done = true
	}
	return entries, nil
}

func (p *s3Pager) Close() error {
	p.done = true
	return nil
}

// Rename implements storkit.Accessor. S3 has no native rename; the
// capability flag stays off and an EmulationLayer supplies copy+delete.
func (d *Driver) Rename(ctx context.Context, from, to string) error {
	return storkit.NewError(storkit.KindUnsupported, storkit.OpRename, from, "S3 has no native rename")
}

// Copy implements storkit.Accessor with the server-side CopyObject API.
func (d *Driver) Copy(ctx context.Context, from, to string) error {
	_, err := d.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(d.bucket),
		CopySource: aws.String(path.Join(d.bucket, d.key(from))),
		Key:        aws.String(d.key(to)),
	})
	if err != nil {
		return mapError(storkit.OpCopy, from, err)
	}
	return nil
}

// OpenWrite implements storkit.StreamWriter over multipart uploads. Small
// objects that never cross the part threshold fall back to one PutObject.
func (d *Driver) OpenWrite(ctx context.Context, p string, opts storkit.WriteOptions) (storkit.BlobWriter, error) {
	if !opts.Overwrite {
		_, err := d.Stat(ctx, p, storkit.StatOptions{})
		if err == nil {
			return nil, storkit.NewError(storkit.KindAlreadyExists, storkit.OpWrite, p, "")
		}
		if !storkit.IsNotFound(err) {
			return nil, err
		}
	}
	return &s3BlobWriter{driver: d, path: p, opts: opts}, nil
}

// s3BlobWriter stages parts of at least minPartSize and completes the
// multipart upload on Close.
type s3BlobWriter struct {
	driver *Driver
	path   string
	opts   storkit.WriteOptions

	buf      bytes.Buffer
	uploadID *string
	parts    []types.CompletedPart
	written  int64
	done     bool
}

func (w *s3BlobWriter) Write(p []byte) (int, error) {
	if w.done {
		return 0, storkit.NewError(storkit.KindClosed, storkit.OpWrite, w.path, "write on completed upload")
	}
	n, _ := w.buf.Write(p)
	w.written += int64(n)

	if w.buf.Len() >= minPartSize {
		if err := w.flushPart(context.Background()); err != nil {
			return n, err
		}
	}
	return n, nil
}

func (w *s3BlobWriter) ensureUpload(ctx context.Context) error {
	if w.uploadID != nil {
		return nil
	}
	input := &s3.CreateMultipartUploadInput{
		Bucket: aws.String(w.driver.bucket),
		Key:    aws.String(w.driver.key(w.path)),
	}
	if w.opts.ContentType != "" {
		input.ContentType = aws.String(w.opts.ContentType)
	}
	if len(w.opts.UserMetadata) > 0 {
		input.Metadata = w.opts.UserMetadata
	}
	resp, err := w.driver.client.CreateMultipartUpload(ctx, input)
	if err != nil {
		return mapError(storkit.OpWrite, w.path, err)
	}
	w.uploadID = resp.UploadId
	return nil
}

func (w *s3BlobWriter) flushPart(ctx context.Context) error {
	if err := w.ensureUpload(ctx); err != nil {
		return err
	}
	partNumber := int32(len(w.parts) + 1)
	resp, err := w.driver.client.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:     aws.String(w.driver.bucket),
		Key:        aws.String(w.driver.key(w.path)),
		UploadId:   w.uploadID,
		PartNumber: aws.Int32(partNumber),
		Body:       bytes.NewReader(w.buf.Bytes()),
	})
	if err != nil {
		return mapError(storkit.OpWrite, w.path, err)
	}
	w.parts = append(w.parts, types.CompletedPart{
		ETag:       resp.ETag,
		PartNumber: aws.Int32(partNumber),
	})
	w.buf.Reset()
	return nil
}

func (w *s3BlobWriter) Close() (storkit.Metadata, error) {
	if w.done {
		return storkit.Metadata{}, storkit.NewError(storkit.KindClosed, storkit.OpWrite, w.path, "upload already completed")
	}
	w.done = true
	ctx := context.Background()

	// Never went multipart: one PutObject covers it.
	if w.uploadID == nil {
		return w.driver.Write(ctx, w.path, bytes.NewReader(w.buf.Bytes()), w.opts)
	}

	if w.buf.Len() > 0 {
		if err := w.flushPart(ctx); err != nil {
			w.abort(ctx)
			return storkit.Metadata{}, err
		}
	}

	resp, err := w.driver.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(w.driver.bucket),
		Key:             aws.String(w.driver.key(w.path)),
		UploadId:        w.uploadID,
		MultipartUpload: &types.CompletedMultipartUpload{Parts: w.parts},
	})
	if err != nil {
		w.abort(ctx)
		return storkit.Metadata{}, mapError(storkit.OpWrite, w.path, err)
	}

	meta := storkit.NewFileMetadata(w.written, time.Now())
	meta.ETag = strings.Trim(aws.ToString(resp.ETag), `"`)
	meta.ContentType = w.opts.ContentType
	meta.UserMetadata = w.opts.UserMetadata
	return meta, nil
}

func (w *s3BlobWriter) Abort() error {
	if w.done {
		return nil
	}
	w.done = true
	w.buf.Reset()
	return w.abort(context.Background())
}

func (w *s3BlobWriter) abort(ctx context.Context) error {
	if w.uploadID == nil {
		return nil
	}
	_, err := w.driver.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(w.driver.bucket),
		Key:      aws.String(w.driver.key(w.path)),
		UploadId: w.uploadID,
	})
	if err != nil {
		return mapError(storkit.OpWrite, w.path, err)
	}
	return nil
}

// PresignRead implements storkit.CanPresign.
func (d *Driver) PresignRead(ctx context.Context, p string, expire time.Duration) (storkit.PresignedRequest, error) {
	presigner := s3.NewPresignClient(d.client)
	req, err := presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.key(p)),
	}, func(o *s3.PresignOptions) {
		o.Expires = expire
	})
	if err != nil {
		return storkit.PresignedRequest{}, mapError(storkit.OpPresign, p, err)
	}
	return presignedRequest(req, expire), nil
}

// PresignWrite implements storkit.CanPresign.
func (d *Driver) PresignWrite(ctx context.Context, p string, expire time.Duration) (storkit.PresignedRequest, error) {
	presigner := s3.NewPresignClient(d.client)
	req, err := presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.key(p)),
	}, func(o *s3.PresignOptions) {
		o.Expires = expire
	})
	if err != nil {
		return storkit.PresignedRequest{}, mapError(storkit.OpPresign, p, err)
	}
	return presignedRequest(req, expire), nil
}

func presignedRequest(req *v4.PresignedHTTPRequest, expire time.Duration) storkit.PresignedRequest {
	headers := make(map[string]string, len(req.SignedHeader))
	for k, v := range req.SignedHeader {
		if len(v) > 0 {
			headers[k] = v[0]
		}
	}
	return storkit.PresignedRequest{
		Method:  req.Method,
		URL:     req.URL,
		Headers: headers,
		Expires: time.Now().Add(expire),
	}
}

// mapError translates S3 failures into the shared taxonomy.
func mapError(op storkit.Op, p string, err error) *storkit.Error {
	var already *storkit.Error
	if errors.As(err, &already) {
		return already
	}

	var nsk *types.NoSuchKey
	var nsb *types.NoSuchBucket
	var notFound *types.NotFound
	if errors.As(err, &nsk) || errors.As(err, &nsb) || errors.As(err, &notFound) {
		return storkit.WrapError(storkit.KindNotFound, op, p, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			return storkit.WrapError(storkit.KindNotFound, op, p, err)
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return storkit.WrapError(storkit.KindPermissionDenied, op, p, err)
		case "SlowDown", "Throttling", "ThrottlingException", "TooManyRequests", "RequestLimitExceeded":
			return storkit.WrapError(storkit.KindRateLimited, op, p, err)
		case "PreconditionFailed", "ConditionalRequestConflict":
			return storkit.WrapError(storkit.KindConflict, op, p, err)
		case "RequestTimeout", "InternalError", "ServiceUnavailable":
			return storkit.WrapError(storkit.KindUnexpected, op, p, err).WithTemporary()
		}
	}
	return storkit.WrapError(storkit.KindUnexpected, op, p, err)
}

// Ensure Driver implements the accessor interfaces
var (
	_ storkit.Accessor     = (*Driver)(nil)
	_ storkit.StreamWriter = (*Driver)(nil)
	_ storkit.CanPresign   = (*Driver)(nil)
)
