// Package storage manages the episode-scoped artifacts generated workers
// leave in object storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	log "github.com/sirupsen/logrus"

	"podcast-pipeline/internal/config"
)

// S3API is the subset of the S3 client the artifact store uses.
type S3API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Client lists, fetches and deletes artifacts under podcasts/<podcast>/<episode>/.
type Client struct {
	api    S3API
	bucket string
	prefix string
}

// New wraps an existing S3 API client.
func New(api S3API, bucket, prefix string) *Client {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Client{api: api, bucket: bucket, prefix: prefix}
}

// NewS3Client builds a Client backed by AWS S3 or an S3-compatible endpoint.
func NewS3Client(ctx context.Context, cfg config.Storage) (*Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return New(api, cfg.Bucket, cfg.Prefix), nil
}

// Bucket returns the bucket artifacts live in.
func (c *Client) Bucket() string { return c.bucket }

// Prefix returns the key prefix of an episode's artifacts.
func (c *Client) Prefix(podcastID, episodeID string) string {
	return fmt.Sprintf("%spodcasts/%s/%s/", c.prefix, podcastID, episodeID)
}

// List returns every artifact under the episode prefix. An empty prefix is
// not an error.
func (c *Client) List(ctx context.Context, podcastID, episodeID string) ([]Artifact, error) {
	paginator := s3.NewListObjectsV2Paginator(c.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(c.Prefix(podcastID, episodeID)),
	})

	artifacts := []Artifact{}
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			name := path.Base(key)
			artifacts = append(artifacts, Artifact{
				Key:          key,
				Name:         name,
				Size:         aws.ToInt64(obj.Size),
				LastModified: obj.LastModified,
				Category:     Categorize(name),
			})
		}
	}
	return artifacts, nil
}

// Fetch opens an artifact for reading. The caller closes the reader.
func (c *Client) Fetch(ctx context.Context, key string) (io.ReadCloser, error) {
	resp, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s: %w", key, err)
	}
	return resp.Body, nil
}

// FileError is a failed deletion of a single object.
type FileError struct {
	Key string
	Err error
}

func (e FileError) Error() string { return fmt.Sprintf("%s: %v", e.Key, e.Err) }

// DeleteReport accounts for a bulk deletion.
type DeleteReport struct {
	Deleted   int
	Errors    []FileError
	ListError error
}

// Success reports whether every targeted object was removed.
func (r DeleteReport) Success() bool {
	return r.ListError == nil && len(r.Errors) == 0
}

// Err folds the report into a single error, nil on success.
func (r DeleteReport) Err() error {
	if r.Success() {
		return nil
	}
	errs := make([]error, 0, len(r.Errors)+1)
	if r.ListError != nil {
		errs = append(errs, r.ListError)
	}
	for _, fe := range r.Errors {
		errs = append(errs, fe)
	}
	return errors.Join(errs...)
}

// DeleteByCategory removes the episode's artifacts whose name matches one of
// categories. Files are deleted one at a time; a failure is recorded and the
// loop moves on.
func (c *Client) DeleteByCategory(ctx context.Context, podcastID, episodeID string, categories ...Category) DeleteReport {
	want := make(map[Category]bool, len(categories))
	for _, cat := range categories {
		want[cat] = true
	}
	return c.deleteMatching(ctx, podcastID, episodeID, func(a Artifact) bool {
		return want[a.Category]
	})
}

// DeleteAll removes every artifact under the episode prefix.
func (c *Client) DeleteAll(ctx context.Context, podcastID, episodeID string) DeleteReport {
	return c.deleteMatching(ctx, podcastID, episodeID, func(Artifact) bool { return true })
}

func (c *Client) deleteMatching(ctx context.Context, podcastID, episodeID string, match func(Artifact) bool) DeleteReport {
	var report DeleteReport

	artifacts, err := c.List(ctx, podcastID, episodeID)
	if err != nil {
		report.ListError = err
		return report
	}

	for _, a := range artifacts {
		if !match(a) {
			continue
		}
		_, err := c.api.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(c.bucket),
			Key:    aws.String(a.Key),
		})
		if err != nil {
			log.WithFields(log.Fields{"episode_id": episodeID, "key": a.Key}).Warnf("failed to delete artifact: %v", err)
			report.Errors = append(report.Errors, FileError{Key: a.Key, Err: err})
			continue
		}
		report.Deleted++
	}

	log.WithFields(log.Fields{
		"podcast_id": podcastID,
		"episode_id": episodeID,
		"deleted":    report.Deleted,
		"failed":     len(report.Errors),
	}).Info("artifact deletion finished")
	return report
}
