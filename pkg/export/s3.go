package export

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/jobtrail/jobtrail/internal/errors"
	"github.com/jobtrail/jobtrail/pkg/drafts"
)

// S3Config configures an S3Store. Only Bucket is required. Credentials fall
// back to the default AWS chain when AccessKeyID is empty.
type S3Config struct {
	Bucket          string
	Prefix          string
	Region          string // default us-east-1
	Endpoint        string // S3-compatible endpoint such as MinIO
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	PathStyle       bool

	// HTTPClient overrides the SDK transport.
	HTTPClient *http.Client
}

// S3Store stores snapshots as objects in one bucket.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
	now    func() time.Time
}

// NewS3Store loads AWS configuration and returns a store for cfg.Bucket.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("J041")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, errors.New("J041").Wrap(err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.HTTPClient != nil {
			o.HTTPClient = cfg.HTTPClient
		}
		// S3-compatible stores reject the streaming checksum trailer.
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})
	return NewS3StoreFromClient(client, cfg.Bucket, cfg.Prefix), nil
}

// NewS3StoreFromClient wraps an existing client.
func NewS3StoreFromClient(client *s3.Client, bucket, prefix string) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: prefix, now: time.Now}
}

// Put implements Store.
func (s *S3Store) Put(ctx context.Context, key string, snap drafts.Snapshot) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	now := s.now()
	data, err := Encode(snap, now)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.objectKey(key)),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(ContentType),
		ContentLength: aws.Int64(int64(len(data))),
		Metadata: map[string]string{
			"drafts":   strconv.Itoa(len(snap)),
			"saved-at": now.UTC().Format(time.RFC3339),
		},
	})
	return err
}

// Get implements Store.
func (s *S3Store) Get(ctx context.Context, key string) (*Document, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if stderrors.As(err, &nsk) {
			return nil, notFound(key)
		}
		return nil, err
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

func (s *S3Store) objectKey(key string) string {
	return path.Join(s.prefix, key+".json")
}
