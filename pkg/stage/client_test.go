package stage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagelift/stagelift/pkg/extract"
	"github.com/stagelift/stagelift/pkg/log"
)

func init() {
	log.Init(log.Config{Level: log.ErrorLevel})
}

// fakeBucket is an in-memory Bucket recording delete batch sizes.
type fakeBucket struct {
	mu          sync.Mutex
	objects     map[string][]byte
	deleteCalls []int
	failNextPut bool
}

func newFakeBucket() *fakeBucket {
	return &fakeBucket{objects: make(map[string][]byte)}
}

func (b *fakeBucket) Name() string { return "test-bucket" }

func (b *fakeBucket) Put(_ context.Context, key string, body []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failNextPut {
		return fmt.Errorf("%w: injected", ErrStageIO)
	}
	b.objects[key] = append([]byte(nil), body...)
	return nil
}

func (b *fakeBucket) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	body, ok := b.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: no such key %s", ErrStageIO, key)
	}
	return body, nil
}

func (b *fakeBucket) List(_ context.Context, prefix string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var keys []string
	for key := range b.objects {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (b *fakeBucket) Delete(_ context.Context, keys []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleteCalls = append(b.deleteCalls, len(keys))
	for _, key := range keys {
		delete(b.objects, key)
	}
	return nil
}

func TestClean(t *testing.T) {
	table := testTable(t, csvTableDoc)
	bucket := newFakeBucket()
	ctx := context.Background()

	require.NoError(t, bucket.Put(ctx, "schema0/table0/file1", []byte("x")))
	require.NoError(t, bucket.Put(ctx, "schema0/table0/file2", []byte("y")))
	require.NoError(t, bucket.Put(ctx, "schema0/other/file", []byte("z")))

	message, err := NewClient(bucket).Clean(ctx, table)
	require.NoError(t, err)
	assert.Equal(t, "Deleted 2 file(s) from s3://test-bucket/schema0/table0/", message)

	remaining, err := bucket.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"schema0/other/file"}, remaining, "other prefixes untouched")
}

func TestCleanBatchesDeletes(t *testing.T) {
	table := testTable(t, csvTableDoc)
	bucket := newFakeBucket()
	ctx := context.Background()

	for i := 0; i < 2500; i++ {
		require.NoError(t, bucket.Put(ctx, fmt.Sprintf("schema0/table0/file%04d", i), []byte("x")))
	}
	message, err := NewClient(bucket).Clean(ctx, table)
	require.NoError(t, err)
	assert.Equal(t, "Deleted 2500 file(s) from s3://test-bucket/schema0/table0/", message)
	assert.Equal(t, []int{1000, 1000, 500}, bucket.deleteCalls, "deletes run in batches of 1000")
}

func TestUpload(t *testing.T) {
	table := testTable(t, csvTableDoc)
	bucket := newFakeBucket()
	ctx := context.Background()

	client := NewClient(bucket).WithEncodeOptions(EncodeOptions{MaxFileSize: 10, BatchSize: 2})
	reader := extract.Rows([][]any{{"a", "b"}, {"c", "d"}, {"e", "f"}})
	message, err := client.Upload(ctx, table, 0, reader, 0, nil)
	require.NoError(t, err)
	assert.Contains(t, message, "2 file(s), 3 rows")

	keys, err := bucket.List(ctx, "schema0/table0/")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"schema0/table0/table0_b00_f01.csv.gz",
		"schema0/table0/table0_b00_f02.csv.gz",
	}, keys)
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	table := testTable(t, csvTableDoc)
	bucket := newFakeBucket()
	ctx := context.Background()

	client := NewClient(bucket)
	reader := extract.Rows([][]any{{"a", "b"}, {"c", "d"}})
	_, err := client.Upload(ctx, table, 3, reader, 0, nil)
	require.NoError(t, err)

	body, err := client.Download(ctx, table, 3, 1)
	require.NoError(t, err)
	assert.Equal(t, "a;b\nc;d\n", string(body), "download decompresses csv files")
}

func TestUploadDisjointBatchPrefixes(t *testing.T) {
	table := testTable(t, csvTableDoc)
	bucket := newFakeBucket()
	ctx := context.Background()
	client := NewClient(bucket)

	_, err := client.Upload(ctx, table, 0, extract.Rows([][]any{{"a", "b"}}), 0, nil)
	require.NoError(t, err)
	_, err = client.Upload(ctx, table, 1, extract.Rows([][]any{{"c", "d"}}), 0, nil)
	require.NoError(t, err)

	keys, err := bucket.List(ctx, "schema0/table0/")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"schema0/table0/table0_b00_f01.csv.gz",
		"schema0/table0/table0_b01_f01.csv.gz",
	}, keys, "parallel extract batches write disjoint keys")
}

func TestUploadPutFailure(t *testing.T) {
	table := testTable(t, csvTableDoc)
	bucket := newFakeBucket()
	bucket.failNextPut = true

	client := NewClient(bucket)
	_, err := client.Upload(context.Background(), table, 0, extract.Rows([][]any{{"a", "b"}}), 0, nil)
	assert.ErrorIs(t, err, ErrStageIO)
}
