package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	"github.com/eyelink/client/internal/config"
)

// ErrUnavailable is returned when no bucket is configured.
var ErrUnavailable = errors.New("snapshot archive unavailable")

// Uploader is the subset of manager.Uploader used by Archive.
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// Archive stores captured pictures in an S3-compatible bucket so they can be referenced by URL.
type Archive struct {
	uploader Uploader
	bucket   string
	baseURL  string
	now      func() time.Time
}

// NewS3Archive configures an uploader for cfg. It returns ErrUnavailable when no bucket is set.
func NewS3Archive(ctx context.Context, cfg config.SnapshotConfig) (*Archive, error) {
	if !cfg.Enabled() {
		return nil, ErrUnavailable
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	endpoint := strings.TrimSpace(cfg.Endpoint)
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.LeavePartsOnError = false
	})
	return NewArchive(uploader, cfg.Bucket, cfg.PublicBaseURL), nil
}

// NewArchive wraps an existing uploader.
func NewArchive(uploader Uploader, bucket, publicBaseURL string) *Archive {
	return &Archive{
		uploader: uploader,
		bucket:   bucket,
		baseURL:  strings.TrimSuffix(publicBaseURL, "/"),
		now:      time.Now,
	}
}

// Put uploads one picture and returns its public URL, or the object key when no public base URL
// is configured.
func (a *Archive) Put(ctx context.Context, image []byte, contentType string) (string, error) {
	if a == nil || a.uploader == nil {
		return "", ErrUnavailable
	}
	if len(image) == 0 {
		return "", fmt.Errorf("snapshot archive: empty image")
	}

	key := a.key(contentType)
	input := &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(image),
		ContentType: aws.String(contentType),
	}
	if a.baseURL != "" {
		input.ACL = s3types.ObjectCannedACLPublicRead
	}

	if _, err := a.uploader.Upload(ctx, input); err != nil {
		return "", fmt.Errorf("snapshot archive upload %s: %w", key, err)
	}

	if a.baseURL == "" {
		return key, nil
	}
	return a.baseURL + "/" + key, nil
}

func (a *Archive) key(contentType string) string {
	ext := ".bin"
	if exts, _ := mime.ExtensionsByType(contentType); len(exts) > 0 {
		ext = exts[0]
	}
	switch contentType {
	case "image/jpeg":
		ext = ".jpg"
	case "image/png":
		ext = ".png"
	}
	return fmt.Sprintf("snapshots/%s/%s%s", a.now().UTC().Format("2006/01/02"), uuid.NewString(), ext)
}
