// Package mirror replicates locally persisted artifacts to S3. The local
// filesystem stays the source of truth; mirroring is best-effort and a
// failed upload never fails the cycle that produced the artifact.
package mirror

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "cseflow/config"
	"cseflow/logger"
)

// S3Mirror uploads artifacts under a key prefix in one bucket.
type S3Mirror struct {
	client *s3.Client
	bucket string
	prefix string
	log    *logger.Log
}

// NewS3Mirror builds the mirror from the storage configuration. Static
// credentials from the config take precedence; otherwise the default AWS
// chain applies.
func NewS3Mirror(cfg appconfig.S3Config, log *logger.Log) (*S3Mirror, error) {
	if log == nil {
		log = logger.GetLogger()
	}
	ctx := context.Background()

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	creds, err := awsCfg.Credentials.Retrieve(ctx)
	if err != nil || !creds.HasKeys() {
		return nil, fmt.Errorf("aws credentials not found")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})

	log.WithComponent("s3_mirror").WithFields(logger.Fields{
		"bucket":     cfg.Bucket,
		"region":     cfg.Region,
		"endpoint":   cfg.Endpoint,
		"path_style": cfg.PathStyle,
	}).Info("s3 mirror initialized")

	return &S3Mirror{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		log:    log,
	}, nil
}

// Upload copies one local artifact to s3://bucket/prefix/key. Errors are
// returned for logging by the caller; the local artifact is unaffected.
func (m *S3Mirror) Upload(ctx context.Context, key, localPath string) error {
	if m == nil {
		return nil
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("read artifact %s: %w", localPath, err)
	}

	fullKey := key
	if m.prefix != "" {
		fullKey = path.Join(m.prefix, key)
	}

	if _, err := m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(m.bucket),
		Key:         aws.String(fullKey),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	}); err != nil {
		return fmt.Errorf("upload %s: %w", fullKey, err)
	}

	m.log.WithComponent("s3_mirror").WithFields(logger.Fields{
		"key":   fullKey,
		"bytes": len(data),
	}).Debug("artifact mirrored")
	return nil
}
