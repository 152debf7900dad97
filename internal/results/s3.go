package results

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/lattiam/ecswait/internal/awsutil"
	"github.com/lattiam/ecswait/internal/waiter"
	"github.com/lattiam/ecswait/pkg/logging"
)

// S3API is the part of the S3 client the store needs
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}

// S3Store keeps one JSON object per reference under a key prefix
type S3Store struct {
	client S3API
	bucket string
	prefix string
	now    func() time.Time
	logger *logging.Logger
}

// NewS3Store creates a store writing to bucket under prefix
func NewS3Store(client S3API, bucket, prefix string) *S3Store {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3Store{
		client: client,
		bucket: bucket,
		prefix: prefix,
		now:    time.Now,
		logger: logging.Results,
	}
}

// NewS3Client builds an S3 client for opts. Local endpoints use path
// style addressing.
func NewS3Client(ctx context.Context, opts awsutil.Options) (*s3.Client, error) {
	cfg, err := awsutil.LoadConfig(ctx, opts)
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint := awsutil.EndpointOverride(opts.Endpoint); endpoint != nil {
			o.BaseEndpoint = endpoint
		}
		if awsutil.IsLocalEndpoint(opts.Endpoint) {
			o.UsePathStyle = true
		}
	}), nil
}

// EnsureBucket creates the bucket when it does not exist
func (s *S3Store) EnsureBucket(ctx context.Context, region string, local bool) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err == nil {
		return nil
	}

	var noBucket *s3types.NoSuchBucket
	var notFound *s3types.NotFound
	if !errors.As(err, &noBucket) && !errors.As(err, &notFound) {
		return fmt.Errorf("failed to access S3 bucket: %w", err)
	}

	input := &s3.CreateBucketInput{Bucket: aws.String(s.bucket)}
	// us-east-1 and LocalStack reject an explicit location constraint
	if region != "" && region != "us-east-1" && !local {
		input.CreateBucketConfiguration = &s3types.CreateBucketConfiguration{
			LocationConstraint: s3types.BucketLocationConstraint(region),
		}
	}
	s.logger.Info("Creating result bucket %s", s.bucket)
	if _, err := s.client.CreateBucket(ctx, input); err != nil {
		return fmt.Errorf("failed to create S3 bucket: %w", err)
	}
	return nil
}

func (s *S3Store) objectKey(key string) string {
	return s.prefix + encodeKey(key) + recordFileExt
}

// Put implements Store
func (s *S3Store) Put(ctx context.Context, res waiter.Result) error {
	rec, err := NewRecord(res, s.now())
	if err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.objectKey(rec.Key)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to put result object: %w", err)
	}
	return nil
}

// Get implements Store
func (s *S3Store) Get(ctx context.Context, ref waiter.DeploymentReference) (*Record, error) {
	return s.read(ctx, s.objectKey(ref.Key()))
}

func (s *S3Store) read(ctx context.Context, key string) (*Record, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *s3types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get result object: %w", err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read result object: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result object %s: %w", key, err)
	}
	return &rec, nil
}

// List implements Store
func (s *S3Store) List(ctx context.Context) ([]*Record, error) {
	var out []*Record
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list result objects: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !strings.HasSuffix(key, recordFileExt) {
				continue
			}
			rec, err := s.read(ctx, key)
			if err != nil {
				s.logger.Warn("Skipping result object %s: %v", key, err)
				continue
			}
			out = append(out, rec)
		}
	}
	sortRecords(out)
	return out, nil
}

// Delete implements Store
func (s *S3Store) Delete(ctx context.Context, ref waiter.DeploymentReference) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(ref.Key())),
	})
	if err != nil {
		return fmt.Errorf("failed to delete result object: %w", err)
	}
	return nil
}

// Close implements Store
func (s *S3Store) Close() error {
	return nil
}
