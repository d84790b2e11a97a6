// Package blob implements the attachment object store backed by S3-compatible storage.
package blob

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/coldpath/mail-ingest/internal/email"
)

// StoreConfig holds the configuration for creating a Store.
type StoreConfig struct {
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	// Endpoint overrides the S3 endpoint for S3-compatible stores
	// (Cloudflare R2, MinIO). Empty means AWS.
	Endpoint string
}

// PutObjectAPI is the interface for the S3 PutObject operation.
// Used for testing with mock implementations.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Store writes email attachments to an object bucket and returns one
// reference key per attachment.
type Store struct {
	bucket string
	client PutObjectAPI

	// now is the clock used for key derivation; replaceable in tests.
	now func() time.Time
}

// New creates a Store with the given configuration.
func New(ctx context.Context, cfg StoreConfig) (*Store, error) {
	var opts []func(*awsconfig.LoadOptions) error

	opts = append(opts, awsconfig.WithRegion(cfg.Region))

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &Store{
		bucket: cfg.Bucket,
		client: client,
		now:    time.Now,
	}, nil
}

// NewWithClient creates a Store with a custom client, used for testing.
func NewWithClient(bucket string, client PutObjectAPI) *Store {
	return &Store{
		bucket: bucket,
		client: client,
		now:    time.Now,
	}
}

// Put writes every attachment to the bucket and returns the object keys in
// input order. Writes for one message run concurrently with an
// all-or-nothing join: the first failure cancels the remaining writes and
// fails the whole call. Already-written objects are not deleted.
func (s *Store) Put(ctx context.Context, mailbox string, attachments []email.Attachment) ([]string, error) {
	refs := make([]string, len(attachments))
	if len(attachments) == 0 {
		return refs, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	arrival := s.now().UTC()

	for i := range attachments {
		att := &attachments[i]
		key := s.objectKey(mailbox, arrival, att.Filename)
		refs[i] = key

		g.Go(func() error {
			_, err := s.client.PutObject(gctx, &s3.PutObjectInput{
				Bucket:      aws.String(s.bucket),
				Key:         aws.String(key),
				Body:        bytes.NewReader(att.Content),
				ContentType: aws.String(att.ContentType),
			})
			if err != nil {
				return fmt.Errorf("failed to store attachment %q: %w", att.Filename, err)
			}
			slog.Debug("stored attachment",
				"mailbox", mailbox,
				"key", key,
				"size", att.Size,
			)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return refs, nil
}

// objectKey derives {mailbox}/{year}/{month}/{suffix}-{filename}. Year and
// month come from the UTC arrival time, not the message's Date header, so
// objects group by ingestion date for bucket lifecycle rules.
func (s *Store) objectKey(mailbox string, arrival time.Time, filename string) string {
	suffix := uuid.New().String()[:8]
	return fmt.Sprintf("%s/%04d/%02d/%s-%s", mailbox, arrival.Year(), int(arrival.Month()), suffix, filename)
}
