package identity

import (
	"context"
	"encoding/json"
	"time"

	log "github.com/sirupsen/logrus"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// UsageRecord is an append-only, best-effort log entry written after each
// dispatched request. Loss is tolerated: callers write it from a detached
// goroutine and log (rather than propagate) any sink error.
type UsageRecord struct {
	Timestamp     time.Time `json:"timestamp"`
	Protocol      string    `json:"protocol"`
	Model         string    `json:"model"`
	IdentityEmail string    `json:"identity_email"`
	Success       bool      `json:"success"`
	UpstreamCode  int       `json:"upstream_status,omitempty"`
	ElapsedMs     int64     `json:"elapsed_ms"`
	ErrorCategory string    `json:"error_category,omitempty"`
}

// UsageSink accepts UsageRecords. Append must not block the caller for long;
// implementations that do I/O should buffer or run it off the request path.
type UsageSink interface {
	Append(ctx context.Context, rec UsageRecord) error
}

// FileUsageSink writes one JSON line per record to a lumberjack-rotated file,
// the default sink, kept in the same rotation idiom as the request logger so
// operators configure disk rotation policy in a single place.
type FileUsageSink struct {
	writer *lumberjack.Logger
}

// NewFileUsageSink opens (creating if needed) a rotated usage log at path.
func NewFileUsageSink(path string, maxSizeMB int) *FileUsageSink {
	if maxSizeMB <= 0 {
		maxSizeMB = 100
	}
	return &FileUsageSink{writer: &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	}}
}

func (s *FileUsageSink) Append(_ context.Context, rec UsageRecord) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	line = append(line, '\n')
	_, err = s.writer.Write(line)
	return err
}

// Close flushes and closes the underlying rotated file.
func (s *FileUsageSink) Close() error {
	return s.writer.Close()
}

// LogAndSwallow appends rec to sink, logging (not returning) any failure, in
// keeping with the "loss is tolerated" guarantee on usage records.
func LogAndSwallow(ctx context.Context, sink UsageSink, rec UsageRecord) {
	if sink == nil {
		return
	}
	if err := sink.Append(ctx, rec); err != nil {
		log.WithError(err).WithField("email", rec.IdentityEmail).Warn("usage record dropped")
	}
}
