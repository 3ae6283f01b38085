package prober

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Presigner signs GET URLs for s3://bucket/key sources so the engine can
// fetch objects with plain ranged HTTP requests.
type S3Presigner struct {
	client *s3.PresignClient
	ttl    time.Duration
}

func NewS3Presigner(ctx context.Context, profile, region string, ttl time.Duration) (*S3Presigner, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRetryMode(aws.RetryModeAdaptive),
	}
	if profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(profile))
	}
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("error loading AWS config: %w", err)
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &S3Presigner{
		client: s3.NewPresignClient(s3.NewFromConfig(cfg)),
		ttl:    ttl,
	}, nil
}

func (p *S3Presigner) PresignGetObject(ctx context.Context, bucket, key string) (string, error) {
	req, err := p.client.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(p.ttl))
	if err != nil {
		return "", err
	}
	return req.URL, nil
}
