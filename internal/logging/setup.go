// Package logging configures the shared logrus instance and carries the
// request-id correlation helpers used throughout the gateway. Grounded on
// the teacher's internal/logging/global_logger.go, reduced to a single
// rotating file (the teacher's log-directory-size cleaner is a separate
// background sweep this system doesn't need — lumberjack's own MaxBackups/
// MaxAge already bound disk usage, see DESIGN.md).
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/antigravity-proxy/gatewaycore/internal/config"
)

var setupOnce sync.Once

// Formatter renders "[timestamp] [request-id] [level] message key=val ...".
type Formatter struct{}

func (f *Formatter) Format(entry *log.Entry) ([]byte, error) {
	timestamp := entry.Time.Format("2006-01-02 15:04:05")
	reqID := "-"
	if id, ok := entry.Data["request_id"].(string); ok && id != "" {
		reqID = id
	}
	level := entry.Level.String()
	if level == "warning" {
		level = "warn"
	}

	var fields []string
	for k, v := range entry.Data {
		if k == "request_id" {
			continue
		}
		fields = append(fields, fmt.Sprintf("%s=%v", k, v))
	}
	fieldsStr := ""
	if len(fields) > 0 {
		fieldsStr = " " + strings.Join(fields, " ")
	}

	msg := strings.TrimRight(entry.Message, "\r\n")
	return []byte(fmt.Sprintf("[%s] [%s] [%-5s] %s%s\n", timestamp, reqID, level, msg, fieldsStr)), nil
}

// Setup configures the shared logrus instance and routes gin's own writer
// through it. Safe to call multiple times; the rotating file target is
// (re)configured every call so a hot-reloaded log directory takes effect.
func Setup(cfg config.LogConfig) error {
	var setupErr error
	setupOnce.Do(func() {
		log.SetFormatter(&Formatter{})
		gin.DefaultWriter = log.StandardLogger().Writer()
		gin.DefaultErrorWriter = log.StandardLogger().WriterLevel(log.ErrorLevel)
		gin.DebugPrintFunc = func(format string, values ...interface{}) {
			log.StandardLogger().Infof(strings.TrimRight(format, "\r\n"), values...)
		}
	})

	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Dir == "" {
		log.SetOutput(os.Stdout)
		return setupErr
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return fmt.Errorf("logging: create log dir: %w", err)
	}
	log.SetOutput(&lumberjack.Logger{
		Filename:   filepath.Join(cfg.Dir, "gateway.log"),
		MaxSize:    maxOr(cfg.MaxSizeMB, 100),
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	})
	return setupErr
}

func maxOr(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

// WithRequestIDField returns a logrus entry carrying request_id for
// correlated logging within a single request's lifecycle.
func WithRequestIDField(requestID string) *log.Entry {
	return log.WithField("request_id", requestID)
}
