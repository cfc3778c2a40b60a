// Package objectstore keeps the decision model in S3 so every engine replica
// serves the same trained weights.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"civic_followup_engine/internal/classifier"
)

const maxModelSize = 8 << 20

type objectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type objectUploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3ModelStore implements classifier.ModelStore on a single S3 object.
type S3ModelStore struct {
	bucket   string
	key      string
	client   objectGetter
	uploader objectUploader
}

var _ classifier.ModelStore = (*S3ModelStore)(nil)

// NewS3ModelStore creates an S3ModelStore. Region and credentials come from
// the default AWS chain (AWS_REGION, AWS_PROFILE, AWS_ACCESS_KEY_ID and so on).
func NewS3ModelStore(ctx context.Context, bucket, key string) (*S3ModelStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket required")
	}
	if key == "" {
		return nil, fmt.Errorf("object key required")
	}
	cfg, err := awsConfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	return &S3ModelStore{
		bucket:   bucket,
		key:      key,
		client:   client,
		uploader: manager.NewUploader(client),
	}, nil
}

func (s *S3ModelStore) Location() string {
	return fmt.Sprintf("s3://%s/%s", s.bucket, s.key)
}

func (s *S3ModelStore) Load(ctx context.Context) (*classifier.Model, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		var noSuchKey *s3types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, classifier.ErrModelNotFound
		}
		return nil, fmt.Errorf("s3 get %s: %w", s.Location(), err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(io.LimitReader(out.Body, maxModelSize))
	if err != nil {
		return nil, fmt.Errorf("s3 read %s: %w", s.Location(), err)
	}
	return classifier.DecodeModel(data)
}

func (s *S3ModelStore) Save(ctx context.Context, m *classifier.Model) error {
	data, err := classifier.EncodeModel(m)
	if err != nil {
		return err
	}
	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(s.bucket),
		Key:                  aws.String(s.key),
		Body:                 bytes.NewReader(data),
		ContentType:          aws.String("application/json"),
		ServerSideEncryption: s3types.ServerSideEncryptionAes256,
	})
	if err != nil {
		return fmt.Errorf("s3 upload failed: %w", err)
	}
	return nil
}
