package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

var ErrNoBucket = errors.New("EXPORT_BUCKET not configured")

type S3PutAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Uploader stores exports as <prefix>dt=YYYY-MM-DD/<name>.
type S3Uploader struct {
	client S3PutAPI
	bucket string
	prefix string
}

func NewS3Uploader(client S3PutAPI, bucket, prefix string) *S3Uploader {
	return &S3Uploader{
		client: client,
		bucket: strings.TrimSpace(bucket),
		prefix: ensureTrailingSlash(strings.TrimSpace(prefix)),
	}
}

func (u *S3Uploader) Bucket() string { return u.bucket }

func (u *S3Uploader) Upload(ctx context.Context, name, contentType string, data []byte, now time.Time) (string, error) {
	if u == nil || u.bucket == "" {
		return "", ErrNoBucket
	}
	key := fmt.Sprintf("%sdt=%s/%s", u.prefix, now.UTC().Format("2006-01-02"), name)

	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		ACL:         s3types.ObjectCannedACLPrivate,
	})
	if err != nil {
		return "", fmt.Errorf("s3 putobject failed: %w", err)
	}
	return key, nil
}
