package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

// S3 stores blobs as objects in an S3 bucket, optionally under a key prefix.
type S3 struct {
	client   s3iface.S3API
	uploader *s3manager.Uploader
	bucket   string
	prefix   string
}

// NewS3 creates a store for bucket in region. Credentials come from the
// default AWS provider chain.
func NewS3(region, bucket, prefix string) (*S3, error) {
	if bucket == "" {
		return nil, fmt.Errorf("S3 bucket name is required")
	}

	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, fmt.Errorf("creating AWS session: %w", err)
	}

	client := s3.New(sess)
	return &S3{
		client:   client,
		uploader: s3manager.NewUploaderWithClient(client),
		bucket:   bucket,
		prefix:   strings.Trim(prefix, "/"),
	}, nil
}

// Put uploads data under key.
func (s *S3) Put(ctx context.Context, key string, data io.Reader) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
		Body:   data,
	})
	if err != nil {
		return fmt.Errorf("uploading blob %s: %w", key, err)
	}
	return nil
}

// Get downloads the object stored under key.
func (s *S3) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if isNotFound(err) {
		return nil, fmt.Errorf("getting blob %s: %w", key, ErrNotExist)
	}
	if err != nil {
		return nil, fmt.Errorf("getting blob %s: %w", key, err)
	}
	return out.Body, nil
}

// Delete removes the object stored under key. S3 deletes are idempotent, so
// the object is looked up first to report ErrNotExist like the other stores.
func (s *S3) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	_, err := s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if isNotFound(err) {
		return fmt.Errorf("deleting blob %s: %w", key, ErrNotExist)
	}
	if err != nil {
		return fmt.Errorf("checking blob %s: %w", key, err)
	}

	_, err = s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		return fmt.Errorf("deleting blob %s: %w", key, err)
	}
	return nil
}

// List returns every object under the store's prefix.
func (s *S3) List(ctx context.Context) ([]Object, error) {
	var objects []Object
	input := &s3.ListObjectsV2Input{Bucket: aws.String(s.bucket)}
	if s.prefix != "" {
		input.Prefix = aws.String(s.prefix + "/")
	}

	err := s.client.ListObjectsV2PagesWithContext(ctx, input, func(page *s3.ListObjectsV2Output, _ bool) bool {
		for _, obj := range page.Contents {
			key := strings.TrimPrefix(aws.StringValue(obj.Key), s.prefix+"/")
			if s.prefix == "" {
				key = aws.StringValue(obj.Key)
			}
			if ValidateKey(key) != nil {
				continue
			}
			objects = append(objects, Object{
				Key:     key,
				Size:    aws.Int64Value(obj.Size),
				ModTime: aws.TimeValue(obj.LastModified),
			})
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("listing blobs: %w", err)
	}
	return objects, nil
}

func (s *S3) objectKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + "/" + key
}

func isNotFound(err error) bool {
	var aerr awserr.Error
	if !errors.As(err, &aerr) {
		return false
	}
	switch aerr.Code() {
	case s3.ErrCodeNoSuchKey, "NotFound":
		return true
	}
	return false
}
