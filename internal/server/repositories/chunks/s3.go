package chunks

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path"
	"slices"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/dmitrijs2005/databazaar/internal/common"
	"github.com/dmitrijs2005/databazaar/internal/server/models"
)

const (
	hashMetadataKey = "chunk-hash"
	// S3 DeleteObjects accepts at most 1000 keys per call.
	deleteBatchSize = 1000
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// S3API is the subset of *s3.Client used by S3Repository.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// S3Options configures the connection to an S3-compatible endpoint.
type S3Options struct {
	Region       string
	User         string
	Password     string
	BaseEndpoint string
	Bucket       string
}

// S3Repository stores each chunk as one object under
// listings/<id>/chunks/<index>. The plaintext digest travels as object
// metadata.
type S3Repository struct {
	client S3API
	bucket string
}

// NewS3Repository builds a client with static credentials and path-style
// addressing, which MinIO requires.
func NewS3Repository(ctx context.Context, opts S3Options) (*S3Repository, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(opts.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			opts.User,
			opts.Password,
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if opts.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(opts.BaseEndpoint)
		}
		o.UsePathStyle = true
	})

	return NewS3RepositoryWithClient(client, opts.Bucket), nil
}

func NewS3RepositoryWithClient(client S3API, bucket string) *S3Repository {
	return &S3Repository{client: client, bucket: bucket}
}

func listingPrefix(listingID int64) string {
	return fmt.Sprintf("listings/%d/chunks/", listingID)
}

// objectKey zero-pads the index so lexical listing order is index order.
func objectKey(listingID int64, index int) string {
	return fmt.Sprintf("%s%010d", listingPrefix(listingID), index)
}

func (r *S3Repository) Put(ctx context.Context, c *models.Chunk) error {
	_, err := r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(r.bucket),
		Key:           aws.String(objectKey(c.ListingID, c.Index)),
		Body:          bytes.NewReader(c.Payload),
		ContentLength: aws.Int64(int64(len(c.Payload))),
		Metadata:      map[string]string{hashMetadataKey: hex.EncodeToString(c.Hash)},
	})
	if err != nil {
		return fmt.Errorf("s3 put error: %w", err)
	}
	return nil
}

func (r *S3Repository) Get(ctx context.Context, listingID int64, index int) (*models.Chunk, error) {
	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(objectKey(listingID, index)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("s3 get error: %w", err)
	}
	defer out.Body.Close()

	payload, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3 read error: %w", err)
	}

	hash, err := hex.DecodeString(out.Metadata[hashMetadataKey])
	if err != nil {
		return nil, fmt.Errorf("s3 metadata error: %w", err)
	}

	return &models.Chunk{ListingID: listingID, Index: index, Payload: payload, Hash: hash}, nil
}

func (r *S3Repository) keys(ctx context.Context, listingID int64) ([]string, error) {
	p := s3.NewListObjectsV2Paginator(r.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(r.bucket),
		Prefix: aws.String(listingPrefix(listingID)),
	})

	var keys []string
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3 list error: %w", err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

func (r *S3Repository) Indices(ctx context.Context, listingID int64) ([]int, error) {
	keys, err := r.keys(ctx, listingID)
	if err != nil {
		return nil, err
	}

	result := make([]int, 0, len(keys))
	for _, k := range keys {
		i, err := strconv.Atoi(path.Base(k))
		if err != nil {
			return nil, fmt.Errorf("unexpected object key %q: %w", k, err)
		}
		result = append(result, i)
	}
	slices.Sort(result)
	return result, nil
}

func (r *S3Repository) List(ctx context.Context, listingID int64) ([]*models.Chunk, error) {
	indices, err := r.Indices(ctx, listingID)
	if err != nil {
		return nil, err
	}

	result := make([]*models.Chunk, 0, len(indices))
	for _, i := range indices {
		c, err := r.Get(ctx, listingID, i)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, nil
}

func (r *S3Repository) DeleteByListing(ctx context.Context, listingID int64) error {
	keys, err := r.keys(ctx, listingID)
	if err != nil {
		return err
	}

	for batch := range slices.Chunk(keys, deleteBatchSize) {
		ids := make([]types.ObjectIdentifier, 0, len(batch))
		for _, k := range batch {
			ids = append(ids, types.ObjectIdentifier{Key: aws.String(k)})
		}

		out, err := r.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(r.bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return fmt.Errorf("s3 delete error: %w", err)
		}
		if len(out.Errors) > 0 {
			return fmt.Errorf("s3 delete error: %s: %s", aws.ToString(out.Errors[0].Key), aws.ToString(out.Errors[0].Message))
		}
	}
	return nil
}
