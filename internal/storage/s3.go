// Package storage implements the blob-store port on S3-compatible object
// storage.
package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type S3Store struct {
	client     *s3.Client
	uploader   *manager.Uploader
	bucket     string
	region     string
	publicRead bool
	presignTTL time.Duration
}

func NewS3Store(ctx context.Context, region, bucket, endpoint string, publicRead bool, presignTTL time.Duration) (*S3Store, error) {
	cfg, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(region))
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Store{
		client:     client,
		uploader:   manager.NewUploader(client),
		bucket:     bucket,
		region:     region,
		publicRead: publicRead,
		presignTTL: presignTTL,
	}, nil
}

// Upload stores the object and returns its id (the key), a public URL when
// the bucket allows public reads, and a presigned view link.
func (s *S3Store) Upload(ctx context.Context, key, contentType string, r io.Reader) (string, string, string, error) {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        r,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", "", "", err
	}

	publicURL := ""
	if s.publicRead {
		publicURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, url.PathEscape(key))
	}
	viewLink, err := s.PresignURL(ctx, key)
	if err != nil {
		return "", "", "", err
	}
	if publicURL == "" {
		publicURL = viewLink
	}
	return key, publicURL, viewLink, nil
}

func (s *S3Store) PresignURL(ctx context.Context, key string) (string, error) {
	p := s3.NewPresignClient(s.client)
	req, err := p.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.presignTTL))
	if err != nil {
		return "", err
	}
	return req.URL, nil
}
