package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/Yulya9904/cars-insurance/internal/domain/providers"
	apperrors "github.com/Yulya9904/cars-insurance/pkg/errors"
)

// S3API is the subset of the S3 client used for attachments
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Provider keeps attachments in an S3 bucket, one prefix per record
type S3Provider struct {
	client S3API
	bucket string
}

// NewS3Provider creates a provider over an existing client
func NewS3Provider(client S3API, bucket string) *S3Provider {
	return &S3Provider{client: client, bucket: bucket}
}

var _ providers.AttachmentProvider = (*S3Provider)(nil)

// NewS3Client loads AWS configuration for region. A non-empty endpoint
// points the client at an S3-compatible service such as LocalStack.
func NewS3Client(ctx context.Context, region, endpoint string) (*s3.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// Folder returns the key prefix of a record's attachments
func (p *S3Provider) Folder(recordID int64) string {
	return recordFolder(recordID)
}

// List returns the attachment names under folder
func (p *S3Provider) List(ctx context.Context, folder string) ([]string, error) {
	prefix := strings.TrimSuffix(folder, "/") + "/"
	names := []string{}

	paginator := s3.NewListObjectsV2Paginator(p.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(p.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list attachments in %s: %w", folder, err)
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
			if name != "" && !strings.Contains(name, "/") {
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names, nil
}

// Store uploads r under a new uuid name. The conditional put refuses to
// replace an existing object.
func (p *S3Provider) Store(ctx context.Context, folder, filename string, r io.Reader) (string, error) {
	name := randomName(filename)
	_, err := p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(p.bucket),
		Key:                  aws.String(path.Join(folder, name)),
		Body:                 r,
		IfNoneMatch:          aws.String("*"),
		ServerSideEncryption: types.ServerSideEncryptionAes256,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload attachment %s: %w", name, err)
	}
	return name, nil
}

// Remove deletes one attachment
func (p *S3Provider) Remove(ctx context.Context, folder, name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	key := path.Join(folder, name)

	if _, err := p.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	}); err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && (apiErr.ErrorCode() == "NotFound" || apiErr.ErrorCode() == "NoSuchKey") {
			return apperrors.NewNotFoundError(fmt.Sprintf("attachment %s not found", name))
		}
		return fmt.Errorf("failed to look up attachment %s: %w", name, err)
	}

	if _, err := p.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("failed to remove attachment %s: %w", name, err)
	}
	return nil
}
