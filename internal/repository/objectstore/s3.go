package objectstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/splax/sitepress/internal/domain"
	"github.com/splax/sitepress/internal/repository"
)

type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Archive stores every artifact version as an immutable S3 object.
type Archive struct {
	client putObjectAPI
	bucket string
	prefix string
}

var _ repository.ArtifactArchive = (*Archive)(nil)

// New builds an S3 archive from the default AWS credential chain. A non-empty
// endpoint switches to path-style addressing for S3-compatible stores.
func New(ctx context.Context, region, endpoint, bucket, prefix string) (*Archive, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("archive bucket required")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return &Archive{client: client, bucket: bucket, prefix: normalizePrefix(prefix)}, nil
}

// Archive uploads the artifact HTML under <prefix><businessID>/v<version>.html.
func (a *Archive) Archive(ctx context.Context, artifact domain.SiteArtifact) error {
	key := ObjectKey(a.prefix, artifact)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        strings.NewReader(artifact.HTML),
		ContentType: aws.String("text/html; charset=utf-8"),
		Metadata: map[string]string{
			"business-id": artifact.BusinessID,
			"source":      artifact.Source,
			"version":     fmt.Sprintf("%d", artifact.Version),
		},
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

// ObjectKey returns the archive key of an artifact version.
func ObjectKey(prefix string, artifact domain.SiteArtifact) string {
	return fmt.Sprintf("%s%s/v%d.html", normalizePrefix(prefix), artifact.BusinessID, artifact.Version)
}

func normalizePrefix(prefix string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return "sites/"
	}
	return prefix + "/"
}
