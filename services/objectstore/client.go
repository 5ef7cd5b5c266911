package objectstore

import (
	"context"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/pkg/errors"

	"github.com/customeros/feedsync/config"
	"github.com/customeros/feedsync/internal/tracing"
)

const defaultRegion = "us-east-1"

// ObjectClient is the subset of the S3 API used to read feeds.
type ObjectClient interface {
	GetObject(ctx context.Context, input *s3.GetObjectInput) (*s3.GetObjectOutput, error)
}

type s3Client struct {
	Config  *aws.Config
	Session *session.Session
	svc     *s3.S3
}

func NewS3Client(awsCfg *aws.Config) (ObjectClient, error) {
	s, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create object storage session")
	}
	return &s3Client{
		Config:  awsCfg,
		Session: s,
		svc:     s3.New(s),
	}, nil
}

func (c *s3Client) GetObject(ctx context.Context, input *s3.GetObjectInput) (*s3.GetObjectOutput, error) {
	span, ctx := tracing.StartTracerSpan(ctx, "s3Client.GetObject")
	defer span.Finish()
	span.SetTag("bucket", aws.StringValue(input.Bucket))
	span.SetTag("key", aws.StringValue(input.Key))

	return c.svc.GetObjectWithContext(ctx, input)
}

// awsConfig builds the client configuration for one key pair. An empty
// access key results in anonymous requests.
func awsConfig(cfg *config.S3Config, accessKeyID, accessKeySecret string) *aws.Config {
	region := cfg.Region
	if region == "" {
		region = defaultRegion
	}
	awsCfg := &aws.Config{
		Region:           aws.String(region),
		S3ForcePathStyle: aws.Bool(cfg.PathStyle),
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
	}
	if accessKeyID != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(accessKeyID, accessKeySecret, "")
	} else {
		awsCfg.Credentials = credentials.AnonymousCredentials
	}
	return awsCfg
}
