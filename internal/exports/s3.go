package exports

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type S3Archive struct {
	bucket string
	client *s3.Client
}

func NewS3Archive(
	ctx context.Context,
	region, endpoint, accessKey, secretKey, bucket string,
) (*S3Archive, error) {
	loadOpts := []func(*awsConfig.LoadOptions) error{
		awsConfig.WithRegion(region),
		awsConfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
	}

	cfg, err := awsConfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Archive{bucket: bucket, client: client}, nil
}

func (a *S3Archive) StoreCSV(ctx context.Context, objectKey string, payload []byte) error {
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(objectKey),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("text/csv"),
	})
	return err
}

// EnsureLifecyclePolicy expires archived exports after the given number
// of days so the bucket does not grow without bound.
func (a *S3Archive) EnsureLifecyclePolicy(ctx context.Context, expirationDays int, prefix string) error {
	if expirationDays < 1 {
		return fmt.Errorf("expirationDays must be >= 1")
	}

	filter := &types.LifecycleRuleFilter{}
	if prefix != "" {
		filter.Prefix = aws.String(prefix)
	}

	abortDays := int32(1)
	if expirationDays >= 7 {
		abortDays = 7
	} else if expirationDays > 1 {
		abortDays = int32(expirationDays)
	}

	_, err := a.client.PutBucketLifecycleConfiguration(ctx, &s3.PutBucketLifecycleConfigurationInput{
		Bucket: aws.String(a.bucket),
		LifecycleConfiguration: &types.BucketLifecycleConfiguration{
			Rules: []types.LifecycleRule{
				{
					ID:     aws.String("freedesk-expire-exports"),
					Status: types.ExpirationStatusEnabled,
					Filter: filter,
					Expiration: &types.LifecycleExpiration{
						Days: aws.Int32(int32(expirationDays)),
					},
					AbortIncompleteMultipartUpload: &types.AbortIncompleteMultipartUpload{
						DaysAfterInitiation: aws.Int32(abortDays),
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("put bucket lifecycle configuration: %w", err)
	}
	return nil
}

func (a *S3Archive) Close() error {
	return nil
}
