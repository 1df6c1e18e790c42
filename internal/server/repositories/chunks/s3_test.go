package chunks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/dmitrijs2005/databazaar/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObject struct {
	body     []byte
	metadata map[string]string
}

// fakeS3 is an in-memory bucket. pageSize > 0 forces paginated listings.
type fakeS3 struct {
	mu       sync.Mutex
	objects  map[string]fakeObject
	pageSize int

	listErr     error
	deleteCalls int
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string]fakeObject)}
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = fakeObject{body: body, metadata: maps.Clone(in.Metadata)}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("no such key")}
	}
	return &s3.GetObjectOutput{
		Body:     io.NopCloser(bytes.NewReader(obj.body)),
		Metadata: maps.Clone(obj.metadata),
	}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) && k > aws.ToString(in.ContinuationToken) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	if f.pageSize > 0 && len(keys) > f.pageSize {
		keys = keys[:f.pageSize]
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(keys[len(keys)-1])
	}
	for _, k := range keys {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	return out, nil
}

func (f *fakeS3) DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++
	for _, id := range in.Delete.Objects {
		delete(f.objects, aws.ToString(id.Key))
	}
	return &s3.DeleteObjectsOutput{}, nil
}

func TestS3_ObjectLayout(t *testing.T) {
	fake := newFakeS3()
	r := NewS3RepositoryWithClient(fake, "bucket")

	require.NoError(t, r.Put(context.Background(), chunk(12, 3, "ct")))

	obj, ok := fake.objects["listings/12/chunks/0000000003"]
	require.True(t, ok, "object stored under unexpected key: %v", slices.Collect(maps.Keys(fake.objects)))
	assert.Equal(t, []byte("ct"), obj.body)
	assert.Equal(t, "03ab", obj.metadata["chunk-hash"])
}

func TestS3_PaginatedListing(t *testing.T) {
	fake := newFakeS3()
	fake.pageSize = 2
	r := NewS3RepositoryWithClient(fake, "bucket")
	ctx := context.Background()

	for i := range 5 {
		require.NoError(t, r.Put(ctx, chunk(1, i, fmt.Sprint(i))))
	}

	idx, err := r.Indices(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, idx)
}

func TestS3_DeleteBatches(t *testing.T) {
	fake := newFakeS3()
	r := NewS3RepositoryWithClient(fake, "bucket")
	ctx := context.Background()

	for i := range deleteBatchSize + 1 {
		fake.objects[objectKey(1, i)] = fakeObject{}
	}

	require.NoError(t, r.DeleteByListing(ctx, 1))
	assert.Equal(t, 2, fake.deleteCalls)
	assert.Empty(t, fake.objects)
}

func TestS3_DeleteEmptyListingSkipsCall(t *testing.T) {
	fake := newFakeS3()
	r := NewS3RepositoryWithClient(fake, "bucket")

	require.NoError(t, r.DeleteByListing(context.Background(), 1))
	assert.Zero(t, fake.deleteCalls)
}

func TestS3_ListError(t *testing.T) {
	fake := newFakeS3()
	fake.listErr = errors.New("unreachable")
	r := NewS3RepositoryWithClient(fake, "bucket")

	_, err := r.Indices(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3 list error")
	assert.NotErrorIs(t, err, common.ErrNotFound)
}

func TestS3_BadKeyInBucket(t *testing.T) {
	fake := newFakeS3()
	fake.objects["listings/1/chunks/garbage"] = fakeObject{}
	r := NewS3RepositoryWithClient(fake, "bucket")

	_, err := r.Indices(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected object key")
}

func TestNewS3Repository_AppliesOptions(t *testing.T) {
	origLoad := loadDefaultAWSConfig
	origNew := newS3ClientFromConfig
	t.Cleanup(func() {
		loadDefaultAWSConfig = origLoad
		newS3ClientFromConfig = origNew
	})

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		var lo awsconfig.LoadOptions
		for _, fn := range optFns {
			require.NoError(t, fn(&lo))
		}
		assert.Equal(t, "us-east-1", lo.Region)
		require.NotNil(t, lo.Credentials)
		creds, err := lo.Credentials.Retrieve(ctx)
		require.NoError(t, err)
		assert.Equal(t, "minioadmin", creds.AccessKeyID)
		return aws.Config{}, nil
	}

	var opts s3.Options
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		for _, fn := range optFns {
			fn(&opts)
		}
		return &s3.Client{}
	}

	r, err := NewS3Repository(context.Background(), S3Options{
		Region:       "us-east-1",
		User:         "minioadmin",
		Password:     "secret",
		BaseEndpoint: "http://127.0.0.1:9000",
		Bucket:       "assets",
	})
	require.NoError(t, err)
	assert.Equal(t, "assets", r.bucket)
	require.NotNil(t, opts.BaseEndpoint)
	assert.Equal(t, "http://127.0.0.1:9000", *opts.BaseEndpoint)
	assert.True(t, opts.UsePathStyle)
}

func TestNewS3Repository_LoadError(t *testing.T) {
	origLoad := loadDefaultAWSConfig
	t.Cleanup(func() { loadDefaultAWSConfig = origLoad })

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("load-fail")
	}

	_, err := NewS3Repository(context.Background(), S3Options{})
	require.EqualError(t, err, "load-fail")
}
