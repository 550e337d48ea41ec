package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/syncbridge/syncbridge/pkg/types"
)

// S3Config holds the configuration for the Source A object-storage backend.
type S3Config struct {
	Endpoint        string
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	ForcePathStyle  bool
	TargetRoot      string // key prefix under which files are tracked, e.g. "sync/"
}

// S3Adapter is the live Source A adapter over S3-compatible object storage.
// The object key doubles as the record id: keys are opaque and stable for
// the life of the object, which is all the id contract requires.
type S3Adapter struct {
	client *s3.Client
	bucket string
	root   string
}

// NewS3Adapter creates a live Source A adapter.
func NewS3Adapter(cfg S3Config) (*S3Adapter, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 adapter requires a bucket")
	}

	opts := []func(*s3.Options){
		func(o *s3.Options) {
			o.Region = cfg.Region
			o.Credentials = credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID, cfg.SecretAccessKey, "",
			)
			if cfg.ForcePathStyle {
				o.UsePathStyle = true
			}
			if cfg.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.Endpoint)
			}
		},
	}

	client := s3.New(s3.Options{}, opts...)

	root := strings.TrimPrefix(cfg.TargetRoot, "/")
	if root != "" && !strings.HasSuffix(root, "/") {
		root += "/"
	}

	return &S3Adapter{
		client: client,
		bucket: cfg.Bucket,
		root:   root,
	}, nil
}

// Side identifies this adapter as Source A.
func (a *S3Adapter) Side() types.Side { return types.SideA }

// List returns every object under the target root. With recursive=false only
// objects directly under the root are returned (no nested prefixes).
func (a *S3Adapter) List(ctx context.Context, recursive bool) ([]types.FileRecord, error) {
	var records []types.FileRecord

	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucket),
		Prefix: aws.String(a.root),
	}
	if !recursive {
		input.Delimiter = aws.String("/")
	}

	paginator := s3.NewListObjectsV2Paginator(a.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if strings.HasSuffix(key, "/") {
				continue // directory placeholder object
			}
			var modified time.Time
			if obj.LastModified != nil {
				modified = *obj.LastModified
			}
			name := path.Base(key)
			records = append(records, types.FileRecord{
				ID:         key,
				Name:       name,
				Path:       "/" + strings.TrimPrefix(key, a.root),
				Size:       aws.ToInt64(obj.Size),
				MimeType:   DetectMime(name),
				ModifiedAt: modified.UTC(),
			})
		}
	}

	return records, nil
}

// Upload stores the bytes under targetPath/name and returns the new record.
func (a *S3Adapter) Upload(ctx context.Context, data []byte, name, targetPath string) (*types.FileRecord, error) {
	rel := strings.TrimPrefix(JoinPath(targetPath, name), "/")
	key := a.root + rel

	mime := DetectMime(name)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(mime),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload %s: %w", key, err)
	}

	return &types.FileRecord{
		ID:         key,
		Name:       name,
		Path:       "/" + rel,
		Size:       int64(len(data)),
		MimeType:   mime,
		ModifiedAt: time.Now().UTC(),
	}, nil
}

// Download fetches the object bytes for an id.
func (a *S3Adapter) Download(ctx context.Context, id string) ([]byte, error) {
	resp, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(id),
	})
	if err != nil {
		var noKey *s3types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to download %s: %w", id, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object body for %s: %w", id, err)
	}
	return data, nil
}

// Delete removes the object. Returns false when the object was already gone.
func (a *S3Adapter) Delete(ctx context.Context, id string) (bool, error) {
	_, err := a.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(id),
	})
	if err != nil {
		var notFound *s3types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat %s before delete: %w", id, err)
	}

	_, err = a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(id),
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete %s: %w", id, err)
	}
	return true, nil
}

// HealthCheck probes the bucket. Any failure is reported as false.
func (a *S3Adapter) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(a.bucket),
	})
	return err == nil
}
