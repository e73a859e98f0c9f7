package s3

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/theapemachine/memorg/pkg/errors"
)

// Conn wraps a minio client pointed at one bucket.  Works against AWS S3,
// MinIO or any other S3-compatible endpoint.
type Conn struct {
	client *minio.Client
	bucket string
	retry  *errors.RetryConfig
}

// NewConn dials the endpoint and ensures the bucket exists.
func NewConn(ctx context.Context, endpoint, accessKey, secretKey, bucket string, secure bool) (*Conn, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
	})

	if err != nil {
		return nil, err
	}

	exists, err := client.BucketExists(ctx, bucket)

	if err != nil {
		return nil, err
	}

	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, err
		}
	}

	return &Conn{
		client: client,
		bucket: bucket,
		retry: &errors.RetryConfig{
			MaxAttempts:   3,
			InitialDelay:  100 * time.Millisecond,
			MaxDelay:      time.Second,
			BackoffFactor: 2,
		},
	}, nil
}

// Put writes an object under the given key, retrying transient failures so a
// session archive is not lost to a hiccup.
func (conn *Conn) Put(ctx context.Context, key string, body []byte) error {
	return errors.RetryWithBackoff(conn.retry, func() error {
		_, err := conn.client.PutObject(
			ctx, conn.bucket, key,
			bytes.NewReader(body), int64(len(body)),
			minio.PutObjectOptions{ContentType: "application/json"},
		)
		return err
	})
}

// Get reads an object by key.
func (conn *Conn) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := conn.client.GetObject(ctx, conn.bucket, key, minio.GetObjectOptions{})

	if err != nil {
		return nil, err
	}

	defer obj.Close()

	return io.ReadAll(obj)
}

// List returns the keys under a prefix.
func (conn *Conn) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string

	for obj := range conn.client.ListObjects(ctx, conn.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		keys = append(keys, obj.Key)
	}

	return keys, nil
}
