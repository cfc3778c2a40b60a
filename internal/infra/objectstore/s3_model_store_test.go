package objectstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civic_followup_engine/internal/classifier"
)

// memoryBucket stands in for both the S3 client and the upload manager.
type memoryBucket struct {
	objects map[string][]byte
	getErr  error
}

func (b *memoryBucket) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if b.getErr != nil {
		return nil, b.getErr
	}
	data, ok := b.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (b *memoryBucket) Upload(_ context.Context, in *s3.PutObjectInput, _ ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	b.objects[*in.Bucket+"/"+*in.Key] = data
	return &manager.UploadOutput{}, nil
}

func newMemoryStore() (*S3ModelStore, *memoryBucket) {
	bucket := &memoryBucket{objects: map[string][]byte{}}
	return &S3ModelStore{bucket: "models", key: "decision_model.json", client: bucket, uploader: bucket}, bucket
}

func TestS3ModelStore_RoundTrip(t *testing.T) {
	store, bucket := newMemoryStore()
	assert.Equal(t, "s3://models/decision_model.json", store.Location())

	_, err := store.Load(context.Background())
	assert.ErrorIs(t, err, classifier.ErrModelNotFound)

	cfg := classifier.DefaultTrainingConfig()
	cfg.Iterations = 50
	m, err := classifier.Train(cfg)
	require.NoError(t, err)

	require.NoError(t, store.Save(context.Background(), m))
	assert.Contains(t, bucket.objects, "models/decision_model.json")

	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, m.Weights, loaded.Weights)
	assert.Equal(t, m.Intercept, loaded.Intercept)
}

func TestS3ModelStore_CorruptObject(t *testing.T) {
	store, bucket := newMemoryStore()
	bucket.objects["models/decision_model.json"] = []byte(`{"version": 1}`)

	_, err := store.Load(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, classifier.ErrModelNotFound)
}

func TestS3ModelStore_TransportError(t *testing.T) {
	store, bucket := newMemoryStore()
	bucket.getErr = errors.New("connection refused")

	_, err := store.Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3://models/decision_model.json")
}
