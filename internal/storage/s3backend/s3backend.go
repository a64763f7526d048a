// Package s3backend stores scan results in S3-compatible object storage.
// Every stored result is its own JSON object, so concurrent writers never
// conflict; redundant entries are removed by read-side deduplication.
package s3backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"
	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/yourorg/scanstore/internal/model"
	"github.com/yourorg/scanstore/internal/storage"
)

type Backend struct {
	mc     *minio.Client
	bucket string
	retry  retryer
}

func New(endpoint, accessKey, secretKey string, useSSL bool, bucket string) (*Backend, error) {
	mc, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, err
	}
	return &Backend{mc: mc, bucket: bucket, retry: newRetryer()}, nil
}

func packagePrefix(id model.Identifier) string {
	return "results/" + id.Coordinates() + "/"
}

func provenancePrefix(p model.KnownProvenance) string {
	return "provenance/" + model.ProvenanceDigest(p) + "/"
}

func (b *Backend) readPrefix(ctx context.Context, prefix string) ([]model.ScanResult, error) {
	var results []model.ScanResult
	for info := range b.mc.ListObjects(ctx, b.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if info.Err != nil {
			return nil, info.Err
		}
		r, err := b.getResult(ctx, info.Key)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, nil
}

func (b *Backend) getResult(ctx context.Context, key string) (model.ScanResult, error) {
	var data []byte
	err := b.retry.do(ctx, func() error {
		obj, err := b.mc.GetObject(ctx, b.bucket, key, minio.GetObjectOptions{})
		if err != nil {
			return err
		}
		defer obj.Close()
		data, err = io.ReadAll(obj)
		return err
	})
	if err != nil {
		return model.ScanResult{}, fmt.Errorf("get %s: %w", key, err)
	}
	var result model.ScanResult
	if err := json.Unmarshal(data, &result); err != nil {
		return model.ScanResult{}, fmt.Errorf("decode %s: %w", key, err)
	}
	return result, nil
}

func (b *Backend) putResult(ctx context.Context, prefix string, result model.ScanResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	key := prefix + uuid.NewString() + ".json"
	return b.retry.do(ctx, func() error {
		_, err := b.mc.PutObject(ctx, b.bucket, key, bytes.NewReader(data), int64(len(data)),
			minio.PutObjectOptions{ContentType: "application/json"})
		return err
	})
}

func (b *Backend) ReadPackage(ctx context.Context, id model.Identifier) ([]model.ScanResult, error) {
	return b.readPrefix(ctx, packagePrefix(id))
}

func (b *Backend) WritePackage(ctx context.Context, id model.Identifier, result model.ScanResult) error {
	return b.putResult(ctx, packagePrefix(id), result)
}

func (b *Backend) ReadProvenance(ctx context.Context, p model.KnownProvenance) ([]model.ScanResult, error) {
	return b.readPrefix(ctx, provenancePrefix(p))
}

func (b *Backend) WriteProvenance(ctx context.Context, p model.KnownProvenance, result model.ScanResult) error {
	if err := storage.ValidateProvenanceWrite(p); err != nil {
		return err
	}
	return b.putResult(ctx, provenancePrefix(p), result)
}
