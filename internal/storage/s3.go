package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	appConfig "alistmirror/config"
	"alistmirror/internal/models"
	"alistmirror/pkg/utils"
)

// S3Store mirrors into a bucket under an optional key prefix. Objects are
// written whole, so interrupted transfers restart from zero.
type S3Store struct {
	s3Client *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
	apiURL   string
}

func NewS3Store(ctx context.Context, cfg appConfig.S3Config, bucket, prefix string) (*S3Store, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.StaticCredentialsProvider{
			Value: aws.Credentials{
				AccessKeyID:     cfg.AccessKey,
				SecretAccessKey: cfg.SecretKey,
			},
		}))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Client *s3.Client
	if cfg.ApiURL != "" {
		s3Client = s3.NewFromConfig(awsConfig, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.ApiURL)
			o.UsePathStyle = true
		})
	} else {
		s3Client = s3.NewFromConfig(awsConfig)
	}

	return &S3Store{
		s3Client: s3Client,
		uploader: manager.NewUploader(s3Client),
		bucket:   bucket,
		prefix:   strings.Trim(prefix, "/"),
		apiURL:   cfg.ApiURL,
	}, nil
}

func (s *S3Store) key(name string) string {
	name = strings.TrimPrefix(path.Clean("/"+name), "/")
	if s.prefix == "" {
		return name
	}
	return s.prefix + "/" + name
}

// EnsureDir is a no-op: keys carry their directories.
func (s *S3Store) EnsureDir(context.Context, string) error { return nil }

func (s *S3Store) Size(ctx context.Context, name string) (int64, bool, error) {
	out, err := s.s3Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil {
		if isNotFound(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to head object %s: %w", s.key(name), err)
	}
	return aws.ToInt64(out.ContentLength), true, nil
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}

func (s *S3Store) Create(ctx context.Context, name string, offset int64) (io.WriteCloser, error) {
	if offset != 0 {
		return nil, ErrAppendUnsupported
	}

	pr, pw := io.Pipe()
	w := &uploadWriter{pw: pw, done: make(chan error, 1)}
	key := s.key(name)

	go func() {
		_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(key),
			Body:        pr,
			ContentType: aws.String(utils.DetectContentType(name)),
		})
		if err != nil {
			err = fmt.Errorf("failed to upload to S3: %w", err)
		}
		pr.CloseWithError(err)
		w.done <- err
	}()

	return w, nil
}

// uploadWriter feeds a multipart upload. Close waits for the upload to finish.
type uploadWriter struct {
	pw   *io.PipeWriter
	done chan error
}

func (w *uploadWriter) Write(p []byte) (int, error) {
	return w.pw.Write(p)
}

func (w *uploadWriter) Close() error {
	w.pw.Close()
	return <-w.done
}

// Abort cancels the upload so no partial object is left behind.
func (w *uploadWriter) Abort(cause error) error {
	w.pw.CloseWithError(cause)
	<-w.done
	return nil
}

func (s *S3Store) SupportsAppend() bool { return false }

func (s *S3Store) Stat(ctx context.Context) (*models.StoreInfo, error) {
	var objectCount int64
	var totalSize int64
	var lastModified time.Time

	input := &s3.ListObjectsV2Input{Bucket: aws.String(s.bucket)}
	if s.prefix != "" {
		input.Prefix = aws.String(s.prefix + "/")
	}
	paginator := s3.NewListObjectsV2Paginator(s.s3Client, input)

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}

		objectCount += int64(len(page.Contents))
		for _, obj := range page.Contents {
			totalSize += aws.ToInt64(obj.Size)
			if obj.LastModified != nil && obj.LastModified.After(lastModified) {
				lastModified = *obj.LastModified
			}
		}
	}

	return &models.StoreInfo{
		Destination:    s.Describe(),
		Kind:           "s3",
		ObjectCount:    objectCount,
		TotalSizeBytes: totalSize,
		TotalSizeHuman: utils.FormatBytes(totalSize),
		LastModified:   lastModified,
		APIEndpoint:    s.apiURL,
	}, nil
}

func (s *S3Store) Describe() string {
	if s.prefix == "" {
		return "s3://" + s.bucket
	}
	return "s3://" + s.bucket + "/" + s.prefix
}
