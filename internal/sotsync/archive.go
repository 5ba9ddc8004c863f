package sotsync

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Archive stores pushed profile snapshots.
type Archive interface {
	// Write stores data under name.
	Write(ctx context.Context, name string, data []byte) error
}

// S3Archive writes profile snapshots to an S3-compatible bucket.
type S3Archive struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Archive creates an S3 archive. If endpoint is non-empty,
// path-style addressing is enabled (for MinIO and similar).
func NewS3Archive(ctx context.Context, bucket, prefix, region, endpoint string) (*S3Archive, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var s3opts []func(*s3.Options)
	if endpoint != "" {
		s3opts = append(s3opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		})
	}

	return &S3Archive{
		client: s3.NewFromConfig(cfg, s3opts...),
		bucket: bucket,
		prefix: prefix,
	}, nil
}

// Write uploads data as <prefix><name>.
func (a *S3Archive) Write(ctx context.Context, name string, data []byte) error {
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(a.prefix + name),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("s3 put object: %w", err)
	}
	return nil
}

// snapshotName is the archive object name for a profile pushed at t.
func snapshotName(businessID string, t time.Time) string {
	return path.Join(businessID, t.UTC().Format("20060102T150405Z")+".json")
}
