package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/sproutgrid/greenhouse-engine/internal/engine"
)

// S3Reporter exports per-tick evaluation summaries to an S3 bucket so
// operations can audit engine behavior without querying the engine.
type S3Reporter struct {
	svc    *s3.Client
	bucket string
}

// NewS3Reporter creates an S3-backed tick reporter.
func NewS3Reporter(ctx context.Context, region, bucket string) (*S3Reporter, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}
	return &S3Reporter{
		svc:    s3.NewFromConfig(cfg),
		bucket: bucket,
	}, nil
}

// ReportTick uploads one tick summary as JSON under reports/.
func (r *S3Reporter) ReportTick(ctx context.Context, summary engine.TickSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal tick summary: %w", err)
	}
	key := fmt.Sprintf("reports/%s.json", summary.StartedAt.UTC().Format("20060102T150405Z"))
	_, err = r.svc.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"uploaded-at": time.Now().Format(time.RFC3339),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}
	return nil
}

// ListReports lists exported summary keys, oldest first.
func (r *S3Reporter) ListReports(ctx context.Context) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(r.svc, &s3.ListObjectsV2Input{
		Bucket: aws.String(r.bucket),
		Prefix: aws.String("reports/"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}
