// Package minio resolves media references stored in S3-compatible object
// storage into short-lived presigned URLs.
//
// A media URL of the form "s3://bucket/key" or "minio://key" (default bucket)
// is presigned. Absolute http(s) URLs pass through unchanged.
package minio

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aretw0/flowchat/pkg/ports"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// DefaultExpiry is how long a presigned URL stays valid.
const DefaultExpiry = 15 * time.Minute

// Config holds the object storage connection settings.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	Expiry    time.Duration
}

// Resolver implements ports.MediaResolver.
type Resolver struct {
	client *minio.Client
	bucket string
	expiry time.Duration
}

var _ ports.MediaResolver = (*Resolver)(nil)

// New builds a resolver from cfg. Region is required so presigning stays
// offline; without it the client looks the bucket location up on first use.
func New(cfg Config) (*Resolver, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return NewFromClient(client, cfg.Bucket, cfg.Expiry), nil
}

// NewFromClient wraps an existing client.
func NewFromClient(client *minio.Client, bucket string, expiry time.Duration) *Resolver {
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	return &Resolver{client: client, bucket: bucket, expiry: expiry}
}

// Resolve returns a presigned GET URL for object references and raw otherwise.
func (r *Resolver) Resolve(ctx context.Context, raw string) (string, error) {
	bucket, key, ok := r.objectRef(raw)
	if !ok {
		return raw, nil
	}
	if bucket == "" {
		return "", fmt.Errorf("no bucket for media reference %q", raw)
	}
	if key == "" {
		return "", fmt.Errorf("empty object key in media reference %q", raw)
	}

	u, err := r.client.PresignedGetObject(ctx, bucket, key, r.expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign %s/%s: %w", bucket, key, err)
	}
	return u.String(), nil
}

// objectRef parses "s3://bucket/key" and "minio://key".
func (r *Resolver) objectRef(raw string) (bucket, key string, ok bool) {
	raw = strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(raw, "s3://"):
		rest := strings.TrimPrefix(raw, "s3://")
		bucket, key, _ = strings.Cut(rest, "/")
		return bucket, key, true
	case strings.HasPrefix(raw, "minio://"):
		return r.bucket, strings.TrimPrefix(raw, "minio://"), true
	default:
		return "", "", false
	}
}
