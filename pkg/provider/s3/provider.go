package s3

import (
	"context"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/3leaps/casegen/pkg/provider"
)

// Provider writes exports as objects under Prefix in one bucket.
type Provider struct {
	client *s3.Client
	bucket string
	prefix string
}

var _ provider.Sink = (*Provider)(nil)

// New connects a sink to cfg.Bucket.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	awsCfg, err := LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, &provider.SinkError{Op: "connect", Sink: provider.ProviderS3, Location: "s3://" + cfg.Bucket, Err: err}
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.ForcePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return &Provider{client: client, bucket: cfg.Bucket, prefix: cfg.keyPrefix()}, nil
}

// Put uploads body. A negative size leaves the length to the SDK.
func (p *Provider) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	in := &s3.PutObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(p.objectKey(key)),
		Body:   body,
	}
	if size >= 0 {
		in.ContentLength = aws.Int64(size)
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	if _, err := p.client.PutObject(ctx, in); err != nil {
		return p.fail("put", key, err)
	}
	return nil
}

func (p *Provider) Head(ctx context.Context, key string) (*provider.ObjectMeta, error) {
	out, err := p.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(p.objectKey(key)),
	})
	if err != nil {
		return nil, p.fail("head", key, err)
	}
	return &provider.ObjectMeta{
		Key:          key,
		Size:         aws.ToInt64(out.ContentLength),
		LastModified: aws.ToTime(out.LastModified),
		ContentType:  aws.ToString(out.ContentType),
	}, nil
}

// Location is the s3:// URI of key.
func (p *Provider) Location(key string) string {
	return "s3://" + p.bucket + "/" + p.objectKey(key)
}

func (p *Provider) Close() error { return nil }

func (p *Provider) objectKey(key string) string {
	return p.prefix + strings.TrimLeft(key, "/")
}

func (p *Provider) fail(op, key string, err error) error {
	return &provider.SinkError{Op: op, Sink: provider.ProviderS3, Location: p.Location(key), Err: classify(err)}
}
