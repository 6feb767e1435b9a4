package s3_helper

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/danthegoodman1/adaptree/gologger"
	"github.com/danthegoodman1/adaptree/utils"
	"github.com/rs/zerolog"
)

var (
	logger = gologger.NewLogger()
)

type (
	// Config addresses one bucket. Empty fields fall back to the env.
	Config struct {
		Bucket   string
		Region   string
		Endpoint string
	}

	Client struct {
		bucket     string
		uploader   *s3manager.Uploader
		downloader *s3manager.Downloader
	}
)

func NewClient(cfg Config) (*Client, error) {
	if cfg.Bucket == "" {
		cfg.Bucket = utils.S3_BUCKET_NAME
	}
	if cfg.Region == "" {
		cfg.Region = utils.AWS_DEFAULT_REGION
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = utils.S3_ENDPOINT
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("no s3 bucket configured")
	}

	s3Config := &aws.Config{
		Region:      aws.String(cfg.Region),
		Credentials: credentials.NewEnvCredentials(),
	}
	if cfg.Endpoint != "" {
		s3Config.Endpoint = aws.String(cfg.Endpoint)
		s3Config.S3ForcePathStyle = aws.Bool(true)
	}

	s3Session, err := session.NewSession(s3Config)
	if err != nil {
		return nil, fmt.Errorf("error making new session: %w", err)
	}

	return &Client{
		bucket:     cfg.Bucket,
		uploader:   s3manager.NewUploader(s3Session),
		downloader: s3manager.NewDownloader(s3Session),
	}, nil
}

func (c *Client) WriteBytesToS3(ctx context.Context, fileName string, b []byte, contentType *string) (*s3manager.UploadOutput, error) {
	ctx = logger.WithContext(ctx)
	logger := zerolog.Ctx(ctx)

	input := &s3manager.UploadInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(fileName),
		Body:        bytes.NewReader(b),
		ContentType: contentType,
	}

	s := time.Now()
	output, err := c.uploader.UploadWithContext(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("error uploading to s3: %w", err)
	}

	d := time.Since(s)
	logger.Debug().Str("fileName", fileName).Int("bytes", len(b)).Int64("durationNS", d.Nanoseconds()).Str("durationHuman", d.String()).Msg("uploaded file to s3")

	return output, nil
}

func (c *Client) ReadBytesFromS3(ctx context.Context, fileName string) ([]byte, error) {
	ctx = logger.WithContext(ctx)
	logger := zerolog.Ctx(ctx)

	buf := &aws.WriteAtBuffer{}

	s := time.Now()
	_, err := c.downloader.DownloadWithContext(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(fileName),
	})
	if err != nil {
		return nil, fmt.Errorf("error downloading from s3: %w", err)
	}

	d := time.Since(s)
	logger.Debug().Str("fileName", fileName).Int64("durationNS", d.Nanoseconds()).Str("durationHuman", d.String()).Msg("downloaded file from s3")

	return buf.Bytes(), nil
}
