// Package storage turns attachment storage ids into URLs clients can fetch.
// Upload URL issuance lives outside this service.
package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var ErrEmptyStorageID = errors.New("storage: empty storage id")

// URLResolver maps a storage id to a retrievable URL.
type URLResolver interface {
	ResolveURL(ctx context.Context, storageID string) (string, error)
}

// PublicResolver joins the storage id onto a public base URL, e.g. a CDN.
type PublicResolver struct {
	base *url.URL
}

func NewPublicResolver(baseURL string) (*PublicResolver, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("storage: invalid public base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("storage: public base url %q must be absolute", baseURL)
	}
	return &PublicResolver{base: u}, nil
}

func (r *PublicResolver) ResolveURL(_ context.Context, storageID string) (string, error) {
	storageID = strings.Trim(strings.TrimSpace(storageID), "/")
	if storageID == "" {
		return "", ErrEmptyStorageID
	}
	return r.base.JoinPath(storageID).String(), nil
}

type S3Options struct {
	Bucket       string
	Prefix       string
	PresignTTL   time.Duration
	UsePathStyle bool
}

// S3Resolver issues presigned GET URLs for objects in one bucket.
type S3Resolver struct {
	presigner *s3.PresignClient
	bucket    string
	prefix    string
	ttl       time.Duration
}

func NewS3Resolver(ctx context.Context, opts S3Options) (*S3Resolver, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("storage: s3 bucket is required")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(
		ctx,
		awsconfig.WithRequestChecksumCalculation(aws.RequestChecksumCalculationWhenRequired),
	)
	if err != nil {
		return nil, fmt.Errorf("storage: load AWS config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = opts.UsePathStyle
	})
	ttl := opts.PresignTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &S3Resolver{
		presigner: s3.NewPresignClient(client),
		bucket:    opts.Bucket,
		prefix:    strings.Trim(strings.TrimSpace(opts.Prefix), "/"),
		ttl:       ttl,
	}, nil
}

func (r *S3Resolver) key(storageID string) string {
	if r.prefix != "" {
		return r.prefix + "/" + storageID
	}
	return storageID
}

func (r *S3Resolver) ResolveURL(ctx context.Context, storageID string) (string, error) {
	storageID = strings.Trim(strings.TrimSpace(storageID), "/")
	if storageID == "" {
		return "", ErrEmptyStorageID
	}
	key := r.key(storageID)
	resp, err := r.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: &r.bucket,
		Key:    &key,
	}, s3.WithPresignExpires(r.ttl))
	if err != nil {
		return "", fmt.Errorf("storage: presign: %w", err)
	}
	return resp.URL, nil
}
