// Package archive implements the optional cold-storage step of the
// expiry lifecycle (spec §4.J/Q): hard-deleted mappings may be written
// out to S3 from the rows the store returns as it deletes them. Grounded on the
// pack's own aws-sdk-go-v2/service/s3 usage; the spec leaves this step
// optional, so a NoOp implementation is the default.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/jordigilh/urlshort/internal/apierrors"
	"github.com/jordigilh/urlshort/internal/model"
)

// Archiver persists hard-deleted mappings somewhere durable; the expiry
// manager calls it with rows the store has already deleted.
type Archiver interface {
	Archive(ctx context.Context, mappings []model.Mapping) error
}

// NoOp discards archival requests; the default when no bucket is configured.
type NoOp struct{}

// Archive implements Archiver.
func (NoOp) Archive(context.Context, []model.Mapping) error { return nil }

// S3Archiver writes one JSON object per hard-delete batch to a bucket,
// keyed by the sweep timestamp.
type S3Archiver struct {
	client *s3.Client
	bucket string
	prefix string
	log    *zap.Logger
}

// NewS3Archiver builds an Archiver backed by an already-configured S3 client.
func NewS3Archiver(client *s3.Client, bucket, prefix string, log *zap.Logger) *S3Archiver {
	return &S3Archiver{client: client, bucket: bucket, prefix: prefix, log: log}
}

// Archive writes mappings as one JSON array object under
// <prefix>/<unix-nanos>.json.
func (a *S3Archiver) Archive(ctx context.Context, mappings []model.Mapping) error {
	if len(mappings) == 0 {
		return nil
	}
	raw, err := json.Marshal(mappings)
	if err != nil {
		return apierrors.Wrap(apierrors.KindFatal, "archive-marshal", err, "marshaling archive batch")
	}

	key := fmt.Sprintf("%s/%d.json", a.prefix, time.Now().UnixNano())
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(raw),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		a.log.Warn("archive upload failed", zap.String("key", key), zap.Error(err))
		return apierrors.Wrap(apierrors.KindDegradedDependency, "archive-put", err, "uploading archive batch")
	}
	return nil
}
