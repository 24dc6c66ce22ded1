// Package cloudtest runs export sink tests against a local moto S3 server.
//
// Files using it carry the cloudintegration build tag:
//
//	b := cloudtest.NewBucket(t)
//	sink, _ := s3.New(ctx, b.SinkConfig("exports"))
//	... export ...
//	data := b.Get("exports/test_cases_2026-10-15.xlsx")
package cloudtest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	sinks3 "github.com/3leaps/casegen/pkg/provider/s3"
)

// Moto accepts any static credentials.
const (
	accessKeyID     = "testing"
	secretAccessKey = "testing"
)

var (
	// Endpoint is the moto server, MOTO_ENDPOINT overrides it.
	Endpoint = envOr("MOTO_ENDPOINT", "http://localhost:5555")

	// Region is the region buckets are created in, MOTO_REGION overrides it.
	Region = envOr("MOTO_REGION", "us-east-1")

	shared     *s3.Client
	sharedOnce sync.Once
	sharedErr  error
)

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// SkipIfUnavailable skips t unless moto answers on Endpoint.
func SkipIfUnavailable(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, Endpoint+"/moto-api/", nil)
	if err == nil {
		var resp *http.Response
		if resp, err = http.DefaultClient.Do(req); err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
	}
	t.Skipf("moto server not available at %s", Endpoint)
}

func client(t *testing.T) *s3.Client {
	t.Helper()
	sharedOnce.Do(func() {
		cfg, err := config.LoadDefaultConfig(context.Background(),
			config.WithRegion(Region),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, "")),
		)
		if err != nil {
			sharedErr = fmt.Errorf("load config: %w", err)
			return
		}
		shared = s3.NewFromConfig(cfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(Endpoint)
			o.UsePathStyle = true
		})
	})
	if sharedErr != nil {
		t.Fatalf("moto client: %v", sharedErr)
	}
	return shared
}

// Bucket is a throwaway bucket removed when the test ends.
type Bucket struct {
	t    *testing.T
	c    *s3.Client
	Name string
}

// NewBucket creates a bucket named after the test.
func NewBucket(t *testing.T) *Bucket {
	t.Helper()
	SkipIfUnavailable(t)

	name := strings.NewReplacer("/", "-", "_", "-").Replace(strings.ToLower("casegen-" + t.Name()))
	if len(name) > 50 {
		name = name[:50]
	}
	name = fmt.Sprintf("%s-%d", strings.TrimRight(name, "-"), time.Now().UnixNano()%100000)

	b := &Bucket{t: t, c: client(t), Name: name}
	if _, err := b.c.CreateBucket(context.Background(), &s3.CreateBucketInput{Bucket: aws.String(name)}); err != nil {
		t.Fatalf("create bucket %s: %v", name, err)
	}
	t.Cleanup(b.remove)
	return b
}

// SinkConfig returns an export sink configuration writing under prefix.
func (b *Bucket) SinkConfig(prefix string) sinks3.Config {
	return sinks3.Config{
		Bucket:          b.Name,
		Prefix:          prefix,
		Endpoint:        Endpoint,
		Region:          Region,
		AccessKeyID:     accessKeyID,
		SecretAccessKey: secretAccessKey,
		ForcePathStyle:  true,
	}
}

// Put stores data under key, bypassing the sink.
func (b *Bucket) Put(key string, data []byte) {
	b.t.Helper()
	_, err := b.c.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(b.Name),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		b.t.Fatalf("put %s/%s: %v", b.Name, key, err)
	}
}

// Get returns the object stored under key.
func (b *Bucket) Get(key string) []byte {
	b.t.Helper()
	out, err := b.c.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(b.Name),
		Key:    aws.String(key),
	})
	if err != nil {
		b.t.Fatalf("get %s/%s: %v", b.Name, key, err)
	}
	defer func() { _ = out.Body.Close() }()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		b.t.Fatalf("read %s/%s: %v", b.Name, key, err)
	}
	return data
}

// Keys lists every key in the bucket, sorted.
func (b *Bucket) Keys() []string {
	b.t.Helper()
	var keys []string
	pages := s3.NewListObjectsV2Paginator(b.c, &s3.ListObjectsV2Input{Bucket: aws.String(b.Name)})
	for pages.HasMorePages() {
		page, err := pages.NextPage(context.Background())
		if err != nil {
			b.t.Fatalf("list %s: %v", b.Name, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	sort.Strings(keys)
	return keys
}

func (b *Bucket) remove() {
	ctx := context.Background()
	pages := s3.NewListObjectsV2Paginator(b.c, &s3.ListObjectsV2Input{Bucket: aws.String(b.Name)})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			b.t.Logf("cleanup: list %s: %v", b.Name, err)
			return
		}
		for _, obj := range page.Contents {
			if _, err := b.c.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(b.Name), Key: obj.Key}); err != nil {
				b.t.Logf("cleanup: delete %s: %v", aws.ToString(obj.Key), err)
			}
		}
	}
	if _, err := b.c.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(b.Name)}); err != nil {
		b.t.Logf("cleanup: delete bucket %s: %v", b.Name, err)
	}
}
