package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

// S3 stores blobs in a bucket. Credentials come from the default AWS chain.
type S3 struct {
	bucket   string
	baseURL  string
	client   *s3.S3
	uploader *s3manager.Uploader
}

// NewS3 creates an S3 store. endpoint may be empty for AWS itself or point at
// an S3-compatible server, in which case path-style addressing is used.
func NewS3(bucket, region, endpoint string) (*S3, error) {
	cfg := aws.NewConfig()
	if region != "" {
		cfg = cfg.WithRegion(region)
	}
	if endpoint != "" {
		cfg = cfg.WithEndpoint(endpoint).WithS3ForcePathStyle(true)
	}

	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("error creating AWS session: %v", err)
	}

	baseURL := fmt.Sprintf("https://%s.s3.amazonaws.com", bucket)
	if endpoint != "" {
		baseURL = fmt.Sprintf("%s/%s", endpoint, bucket)
	} else if region != "" {
		baseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", bucket, region)
	}

	return &S3{
		bucket:   bucket,
		baseURL:  baseURL,
		client:   s3.New(sess),
		uploader: s3manager.NewUploader(sess),
	}, nil
}

// Put uploads r to the bucket.
func (s *S3) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	if key == "" {
		return "", ErrInvalidKey
	}

	_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        r,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("error uploading %s: %w", key, err)
	}
	return s.baseURL + "/" + escapeKey(key), nil
}

// Get streams the object from the bucket.
func (s *S3) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if aerr, ok := err.(awserr.Error); ok && aerr.Code() == s3.ErrCodeNoSuchKey {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("error getting %s: %w", key, err)
	}
	return out.Body, nil
}

// Delete removes the object.
func (s *S3) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("error deleting %s: %w", key, err)
	}
	return nil
}
