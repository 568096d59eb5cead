// Package s3blob provides cold storage on S3-compatible object stores
// (AWS S3, iDrive e2, MinIO, Cloudflare R2) for archived trade history.
package s3blob

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ClientConfig selects the object store and bucket. Endpoint stays empty for
// real AWS S3; compatible providers set it, usually together with
// ForcePathStyle since most of them do not route buckets by subdomain.
type ClientConfig struct {
	Endpoint       string
	Region         string
	Bucket         string
	AccessKey      string
	SecretKey      string
	UseSSL         bool
	ForcePathStyle bool
}

// Client is the shared connection handle the reader and writer types build on.
type Client struct {
	s3     *s3.Client
	bucket string
}

// New builds an S3 client pinned to one bucket, with static credentials and
// an optional custom endpoint for compatible providers.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	switch {
	case cfg.Bucket == "":
		return nil, fmt.Errorf("s3blob: bucket name is required")
	case cfg.Region == "":
		return nil, fmt.Errorf("s3blob: region is required")
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("s3blob: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(withScheme(cfg.Endpoint, cfg.UseSSL))
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	return &Client{s3: client, bucket: cfg.Bucket}, nil
}

// Health verifies bucket access with a HeadBucket call.
func (c *Client) Health(ctx context.Context) error {
	if _, err := c.s3.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.bucket)}); err != nil {
		return fmt.Errorf("s3blob: health check failed for bucket %s: %w", c.bucket, err)
	}
	return nil
}

// Close satisfies the closer convention; the SDK's HTTP client needs no
// explicit teardown.
func (c *Client) Close() error { return nil }

// S3 exposes the raw SDK client to the sibling reader/writer types.
func (c *Client) S3() *s3.Client { return c.s3 }

// Bucket returns the pinned bucket name.
func (c *Client) Bucket() string { return c.bucket }

// withScheme prepends http(s):// when the endpoint is given bare.
func withScheme(endpoint string, useSSL bool) string {
	if strings.Contains(endpoint, "://") {
		return endpoint
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}
