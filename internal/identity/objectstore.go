package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
)

// ObjectUsageSink buffers one rolling hour of UsageRecords in memory and
// flushes them as a single newline-delimited JSON object per hour. This
// trades durability for volume: a crash mid-hour loses that hour's buffer,
// which the "loss is tolerated" guarantee on UsageRecord already permits.
type ObjectUsageSink struct {
	client *minio.Client
	bucket string
	prefix string

	mu      sync.Mutex
	hourKey string
	buf     bytes.Buffer
}

// NewObjectUsageSink wires an S3-compatible client (minio-go) as the usage
// sink, for deployments that already archive operational data to object
// storage rather than local disk.
func NewObjectUsageSink(client *minio.Client, bucket, prefix string) *ObjectUsageSink {
	return &ObjectUsageSink{client: client, bucket: bucket, prefix: prefix}
}

func (s *ObjectUsageSink) keyFor(t time.Time) string {
	return fmt.Sprintf("%s/%04d/%02d/%02d/%02d.jsonl", s.prefix, t.Year(), t.Month(), t.Day(), t.Hour())
}

func (s *ObjectUsageSink) Append(ctx context.Context, rec UsageRecord) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	s.mu.Lock()
	key := s.keyFor(rec.Timestamp)
	if s.hourKey != "" && s.hourKey != key {
		if err := s.flushLocked(ctx); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	s.hourKey = key
	s.buf.Write(line)
	s.buf.WriteByte('\n')
	s.mu.Unlock()
	return nil
}

// Flush uploads the current in-memory buffer, if any, under its hour key.
func (s *ObjectUsageSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked(ctx)
}

func (s *ObjectUsageSink) flushLocked(ctx context.Context) error {
	if s.buf.Len() == 0 {
		return nil
	}
	data := append([]byte(nil), s.buf.Bytes()...)
	key := s.hourKey
	s.buf.Reset()

	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/x-ndjson"})
	return err
}
