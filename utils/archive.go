// utils/archive.go
package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"crm-gamification-system/models"
)

// R2Archive writes rollup snapshots to Cloudflare R2 as JSON objects, one
// per company and period. Configured entirely from the environment; a
// missing bucket name disables archiving.
type R2Archive struct {
	client *s3.Client
	bucket string
}

// NewR2Archive builds the archive client from R2_* env vars. Returns nil
// (archiving disabled) when R2_BUCKET_NAME is unset.
func NewR2Archive() (*R2Archive, error) {
	bucket := os.Getenv("R2_BUCKET_NAME")
	if bucket == "" {
		return nil, nil
	}
	accountID := os.Getenv("CLOUDFLARE_ACCOUNT_ID")
	accessKeyID := os.Getenv("R2_ACCESS_KEY_ID")
	accessKeySecret := os.Getenv("R2_ACCESS_KEY_SECRET")

	cfg, err := config.LoadDefaultConfig(context.TODO(),
		config.WithRegion("auto"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKeyID, accessKeySecret, "",
		)),
		config.WithEndpointResolver(aws.EndpointResolverFunc(
			func(service, region string) (aws.Endpoint, error) {
				return aws.Endpoint{
					URL: fmt.Sprintf("https://%s.r2.cloudflarestorage.com", accountID),
				}, nil
			}),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load R2 config: %w", err)
	}

	return &R2Archive{client: s3.NewFromConfig(cfg), bucket: bucket}, nil
}

// ArchiveSnapshot uploads one snapshot as JSON under
// rollups/<company>/<period>/<period_start>.json.
func (a *R2Archive) ArchiveSnapshot(ctx context.Context, companyID int64, period string, snapshot models.RollupSnapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	key := fmt.Sprintf("rollups/%d/%s/%s.json", companyID, period, snapshot.PeriodStart.Format("2006-01-02"))

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload to R2: %w", err)
	}
	return nil
}
