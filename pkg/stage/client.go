package stage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"

	"github.com/stagelift/stagelift/pkg/catalog"
	"github.com/stagelift/stagelift/pkg/config"
	"github.com/stagelift/stagelift/pkg/log"
	"github.com/stagelift/stagelift/pkg/metrics"
	"github.com/stagelift/stagelift/pkg/task"
)

// ErrStageIO indicates a failed object-storage operation.
var ErrStageIO = errors.New("stage io failure")

// deleteBatchSize is the object-store limit per delete request.
const deleteBatchSize = 1000

// Bucket abstracts the object store holding the stage. Put is idempotent
// by key.
type Bucket interface {
	Name() string
	Put(ctx context.Context, key string, body []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, keys []string) error
}

// S3Bucket is the aws-sdk-go implementation of Bucket.
type S3Bucket struct {
	name string
	api  *s3.S3
}

// NewS3Bucket opens the named bucket with ambient AWS credentials.
func NewS3Bucket(name string) (*S3Bucket, error) {
	sess, err := session.NewSessionWithOptions(session.Options{
		SharedConfigState: session.SharedConfigEnable,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: opening aws session: %v", ErrStageIO, err)
	}
	return &S3Bucket{name: name, api: s3.New(sess)}, nil
}

// Name returns the bucket name.
func (b *S3Bucket) Name() string { return b.name }

// Put uploads one object.
func (b *S3Bucket) Put(ctx context.Context, key string, body []byte) error {
	_, err := b.api.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.name),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
	})
	if err != nil {
		return fmt.Errorf("%w: put s3://%s/%s: %v", ErrStageIO, b.name, key, err)
	}
	return nil
}

// Get downloads one object.
func (b *S3Bucket) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := b.api.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.name),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: get s3://%s/%s: %v", ErrStageIO, b.name, key, err)
	}
	defer out.Body.Close()
	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read s3://%s/%s: %v", ErrStageIO, b.name, key, err)
	}
	return body, nil
}

// List returns all keys under prefix.
func (b *S3Bucket) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(b.name),
		Prefix: aws.String(prefix),
	}
	err := b.api.ListObjectsV2PagesWithContext(ctx, input,
		func(page *s3.ListObjectsV2Output, _ bool) bool {
			for _, obj := range page.Contents {
				keys = append(keys, aws.StringValue(obj.Key))
			}
			return true
		})
	if err != nil {
		return nil, fmt.Errorf("%w: list s3://%s/%s: %v", ErrStageIO, b.name, prefix, err)
	}
	return keys, nil
}

// Delete removes the given keys in one request. Callers batch to the
// object-store limit.
func (b *S3Bucket) Delete(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	objects := make([]*s3.ObjectIdentifier, len(keys))
	for i, key := range keys {
		objects[i] = &s3.ObjectIdentifier{Key: aws.String(key)}
	}
	_, err := b.api.DeleteObjectsWithContext(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(b.name),
		Delete: &s3.Delete{Objects: objects},
	})
	if err != nil {
		return fmt.Errorf("%w: delete %d object(s) from s3://%s: %v", ErrStageIO, len(keys), b.name, err)
	}
	return nil
}

// Client stages encoded files for tables in a bucket. It satisfies the
// task.Stage interface.
type Client struct {
	bucket Bucket
	opts   EncodeOptions
	logger zerolog.Logger
}

// NewClient creates a stage client over the given bucket.
func NewClient(bucket Bucket) *Client {
	return &Client{
		bucket: bucket,
		logger: log.WithComponent("stage"),
	}
}

// WithEncodeOptions overrides the encoder bounds, primarily for tests.
func (c *Client) WithEncodeOptions(opts EncodeOptions) *Client {
	c.opts = opts
	return c
}

// Clean deletes every staged object under the table's prefix.
func (c *Client) Clean(ctx context.Context, table *catalog.Table) (string, error) {
	prefix := Prefix(table)
	keys, err := c.bucket.List(ctx, prefix)
	if err != nil {
		return "", err
	}
	for start := 0; start < len(keys); start += deleteBatchSize {
		end := min(start+deleteBatchSize, len(keys))
		if err := c.bucket.Delete(ctx, keys[start:end]); err != nil {
			return "", err
		}
	}
	metrics.FilesCleaned.WithLabelValues(table.SchemaName(), table.Name).Add(float64(len(keys)))
	message := fmt.Sprintf("Deleted %d file(s) from s3://%s/%s", len(keys), c.bucket.Name(), prefix)
	c.logger.Info().Str("table", table.URI()).Msg(message)
	return message, nil
}

// Upload encodes the row stream and stores each yielded file under the
// table's prefix for the given batch number.
func (c *Client) Upload(ctx context.Context, table *catalog.Table, batch int, rows task.RowReader, totalRows int, deadline task.Deadline) (string, error) {
	suffix := SuffixFor(table.Meta.FileFormat)
	encoder := NewEncoder(table, rows, c.opts)
	rowCount, fileCount, byteCount := 0, 0, 0
	for {
		file, err := encoder.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		key := Key(table, batch, file.FileNumber, suffix)
		if err := c.bucket.Put(ctx, key, file.Body); err != nil {
			return "", err
		}
		rowCount += file.RowCount
		fileCount = file.FileNumber
		byteCount += len(file.Body)
		metrics.RowsStaged.WithLabelValues(table.SchemaName(), table.Name).Add(float64(file.RowCount))
		metrics.BytesStaged.WithLabelValues(table.SchemaName(), table.Name).Add(float64(len(file.Body)))
		metrics.FilesStaged.WithLabelValues(table.SchemaName(), table.Name).Inc()
		c.logger.Info().
			Int("rows", file.RowCount).
			Str("size", file.Size()).
			Msgf("Uploaded s3://%s/%s", c.bucket.Name(), key)
		if totalRows > 0 {
			c.logger.Info().Msgf("Processed %.2f%% of rows using %.2f%% of available time.",
				100*float64(rowCount)/float64(totalRows), 100*relativeTime(deadline))
		}
	}
	message := fmt.Sprintf(
		"Task [%d] uploaded %s [%d file(s), %d rows] to s3://%s using %.2f%% of available time.",
		batch, formatSize(byteCount), fileCount, rowCount, c.bucket.Name(), 100*relativeTime(deadline))
	c.logger.Info().Msg(message)
	return message, nil
}

// Download fetches one staged file and, for csv files, decompresses it.
func (c *Client) Download(ctx context.Context, table *catalog.Table, batch, file int) ([]byte, error) {
	suffix := SuffixFor(table.Meta.FileFormat)
	key := Key(table, batch, file, suffix)
	c.logger.Info().Msgf("Downloading s3://%s/%s", c.bucket.Name(), key)
	body, err := c.bucket.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if suffix != SuffixCSV {
		return body, nil
	}
	reader, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: decompressing %s: %v", ErrStageIO, key, err)
	}
	defer reader.Close()
	plain, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("%w: decompressing %s: %v", ErrStageIO, key, err)
	}
	return plain, nil
}

// relativeTime reports the share of the worker time budget already spent.
func relativeTime(deadline task.Deadline) float64 {
	budget := float64(config.WorkerTimeoutMillis())
	var remaining float64
	if deadline != nil {
		remaining = float64(deadline.RemainingMillis())
	}
	return (budget - remaining) / budget
}
