package datastore

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/danthegoodman1/adaptree/s3_helper"
)

type (
	// S3DataStore keeps zstd compressed blobs in a bucket under a key prefix.
	S3DataStore struct {
		client *s3_helper.Client
		prefix string
	}
)

func NewS3DataStore(client *s3_helper.Client, prefix string) *S3DataStore {
	return &S3DataStore{
		client: client,
		prefix: prefix,
	}
}

func (sds *S3DataStore) key(key string) string {
	return path.Join(sds.prefix, key+".zst")
}

func (sds *S3DataStore) Put(ctx context.Context, key string, b []byte) error {
	_, err := sds.client.WriteBytesToS3(ctx, sds.key(key), compress(b), aws.String("application/zstd"))
	if err != nil {
		return fmt.Errorf("error in WriteBytesToS3: %w", err)
	}
	return nil
}

func (sds *S3DataStore) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := sds.client.ReadBytesFromS3(ctx, sds.key(key))
	var aerr awserr.Error
	if errors.As(err, &aerr) && aerr.Code() == s3.ErrCodeNoSuchKey {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("error in ReadBytesFromS3: %w", err)
	}
	return decompress(b)
}

func (sds *S3DataStore) Shutdown(context.Context) error {
	return nil
}
