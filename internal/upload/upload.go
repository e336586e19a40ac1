package upload

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"discback/internal/config"
	"discback/internal/logging"
	"discback/internal/services"
)

// ObjectPutter is the subset of the S3 client the uploader needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Result describes one uploaded object.
type Result struct {
	Key      string
	Bytes    int64
	Duration time.Duration
}

// Uploader puts local files under a key prefix in one bucket.
type Uploader struct {
	client ObjectPutter
	bucket string
	prefix string
	logger *slog.Logger
}

// NewClient builds an S3 client from the upload settings.
func NewClient(ctx context.Context, cfg config.Upload) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "upload", "load aws config", "", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})
	return client, nil
}

// New creates an Uploader. A nil logger discards output.
func New(client ObjectPutter, bucket, prefix string, logger *slog.Logger) *Uploader {
	return &Uploader{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		logger: logging.NewComponentLogger(logger, "upload"),
	}
}

// Key returns the object key used for a local file name below an optional
// sub-directory.
func (u *Uploader) Key(sub, name string) string {
	return path.Join(u.prefix, sub, filepath.Base(name))
}

// UploadImage puts a written ISO image.
func (u *Uploader) UploadImage(ctx context.Context, imagePath string) (Result, error) {
	return u.UploadFile(ctx, imagePath, u.Key("images", imagePath), "application/x-iso9660-image")
}

// UploadDigest puts a persisted digest map.
func (u *Uploader) UploadDigest(ctx context.Context, digestPath string) (Result, error) {
	return u.UploadFile(ctx, digestPath, u.Key("digests", digestPath), "application/json")
}

// UploadFile puts localPath at key.
func (u *Uploader) UploadFile(ctx context.Context, localPath, key, contentType string) (Result, error) {
	if u.client == nil {
		return Result{}, services.Wrap(services.ErrConfiguration, "upload", "put object", "client not configured", nil)
	}
	if u.bucket == "" {
		return Result{}, services.Wrap(services.ErrConfiguration, "upload", "put object", "bucket not configured", nil)
	}
	file, err := os.Open(localPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Result{}, services.Wrap(services.ErrNotFound, "upload", "open", localPath, err)
		}
		return Result{}, fmt.Errorf("open %s: %w", localPath, err)
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return Result{}, fmt.Errorf("stat %s: %w", localPath, err)
	}

	start := time.Now()
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          file,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(contentType),
	})
	elapsed := time.Since(start)
	if err != nil {
		return Result{}, services.Wrap(services.ErrExternalTool, "upload", "put object", fmt.Sprintf("s3://%s/%s", u.bucket, key), err)
	}

	u.logger.Info("object uploaded",
		logging.String(logging.FieldEventType, "upload_complete"),
		logging.String("bucket", u.bucket),
		logging.String("key", key),
		logging.Int64("bytes", info.Size()),
		logging.Duration("duration", elapsed),
	)
	return Result{Key: key, Bytes: info.Size(), Duration: elapsed}, nil
}
