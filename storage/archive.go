package storage

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ArchiveConfig describes an S3-compatible bucket.
type ArchiveConfig struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
}

// objectAPI is the part of the S3 client the archive uses.
type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Archive stores backups of the audit log and the page database in a bucket.
type Archive struct {
	client   objectAPI
	bucket   string
	endpoint string
}

// NewArchive erstellt einen S3-Client für einen S3-kompatiblen Speicher.
func NewArchive(ctx context.Context, cfg ArchiveConfig) (*Archive, error) {
	resolver := aws.EndpointResolverWithOptionsFunc(
		func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{
				URL:               cfg.Endpoint,
				SigningRegion:     cfg.Region,
				HostnameImmutable: true,
			}, nil
		},
	)
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
		awsconfig.WithEndpointResolverWithOptions(resolver),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &Archive{client: s3.NewFromConfig(awsCfg), bucket: cfg.Bucket, endpoint: cfg.Endpoint}, nil
}

// Upload lädt data unter key hoch und gibt den Link zurück.
func (a *Archive) Upload(ctx context.Context, key string, data []byte) (string, error) {
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return fmt.Sprintf("%s/%s/%s", strings.TrimRight(a.endpoint, "/"), a.bucket, key), nil
}

// Rotate keeps the newest keep objects under prefix and deletes the rest. It returns the
// deleted keys; a failed delete is reported but does not stop the rotation.
func (a *Archive) Rotate(ctx context.Context, prefix string, keep int) ([]string, error) {
	out, err := a.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucket),
		Prefix: aws.String(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}

	var deleted []string
	var firstErr error
	for _, key := range expiredKeys(out.Contents, keep) {
		_, err := a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(a.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("delete %s: %w", key, err)
			}
			continue
		}
		deleted = append(deleted, key)
	}
	return deleted, firstErr
}

// expiredKeys returns every key except the keep most recently modified ones.
func expiredKeys(objects []types.Object, keep int) []string {
	if len(objects) <= keep {
		return nil
	}
	sorted := append([]types.Object(nil), objects...)
	sort.Slice(sorted, func(i, j int) bool {
		return aws.ToTime(sorted[i].LastModified).After(aws.ToTime(sorted[j].LastModified))
	})
	keys := make([]string, 0, len(sorted)-keep)
	for _, obj := range sorted[keep:] {
		keys = append(keys, aws.ToString(obj.Key))
	}
	return keys
}
