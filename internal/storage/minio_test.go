package storage

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObjects struct {
	buckets map[string]bool
	objects map[string][]byte
	putErr  error
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{buckets: map[string]bool{}, objects: map[string][]byte{}}
}

func (f *fakeObjects) BucketExists(ctx context.Context, bucketName string) (bool, error) {
	return f.buckets[bucketName], nil
}

func (f *fakeObjects) MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error {
	f.buckets[bucketName] = true
	return nil
}

func (f *fakeObjects) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if f.putErr != nil {
		return minio.UploadInfo{}, f.putErr
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	f.objects[bucketName+"/"+objectName] = data
	return minio.UploadInfo{Bucket: bucketName, Key: objectName, Size: objectSize}, nil
}

func (f *fakeObjects) RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error {
	delete(f.objects, bucketName+"/"+objectName)
	return nil
}

func TestMinIOStore(t *testing.T) {
	fake := newFakeObjects()
	store := &MinIOStore{client: fake, bucket: "ponto"}
	ctx := context.Background()

	require.NoError(t, store.EnsureBucket(ctx))
	assert.True(t, fake.buckets["ponto"])
	require.NoError(t, store.Ping(ctx))

	ref, err := store.Put(ctx, "ana@x.com", []byte("jpeg"), "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "minio://ponto/enrollments/ana@x.com.jpg", ref)
	assert.Equal(t, []byte("jpeg"), fake.objects["ponto/enrollments/ana@x.com.jpg"])

	require.NoError(t, store.Delete(ctx, ref))
	assert.Empty(t, fake.objects)

	assert.Error(t, store.Delete(ctx, "minio://other/enrollments/x.jpg"))
}

func TestMinIOStore_PutError(t *testing.T) {
	fake := newFakeObjects()
	fake.putErr = errors.New("bucket unreachable")
	store := &MinIOStore{client: fake, bucket: "ponto"}

	_, err := store.Put(context.Background(), "ana@x.com", []byte("jpeg"), "image/png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "enrollments/ana@x.com.png")
}
