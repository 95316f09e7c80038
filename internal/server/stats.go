package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"arena-server/internal/arena"
)

const (
	statsExt      = ".ast"
	statsFileMode = 0o666
)

// StatsRecord is a finished stats file handed to every sink.
type StatsRecord struct {
	Name    string // base file name, e.g. 16102026201500.ast
	Body    []byte
	Summary arena.Summary
}

// StatsSink is an extra destination for match results.
type StatsSink interface {
	Name() string
	Store(ctx context.Context, rec StatsRecord) error
}

// StatsWriter writes the summary of a finished match to the stats directory
// and then offers it to each configured sink.
type StatsWriter struct {
	dir     string
	logger  *slog.Logger
	metrics *Metrics
	sinks   []StatsSink
}

func NewStatsWriter(dir string, logger *slog.Logger, metrics *Metrics, sinks ...StatsSink) *StatsWriter {
	return &StatsWriter{dir: dir, logger: logger, metrics: metrics, sinks: sinks}
}

// StatsFileName names a stats file after the time the match ended.
func StatsFileName(t time.Time) string {
	return t.Format("02012006150405") + statsExt
}

// Write stores the summary and returns the path of the stats file. Sink
// failures are logged and never fail the write.
func (w *StatsWriter) Write(ctx context.Context, summary arena.Summary) (string, error) {
	body, err := json.Marshal(summary)
	if err != nil {
		return "", fmt.Errorf("encode stats: %w", err)
	}

	ended := summary.EndedAt
	if ended.IsZero() {
		ended = time.Now()
	}
	rec := StatsRecord{Name: StatsFileName(ended), Body: body, Summary: summary}

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("create stats dir: %w", err)
	}
	path := filepath.Join(w.dir, rec.Name)
	if err := os.WriteFile(path, body, statsFileMode); err != nil {
		return "", fmt.Errorf("write stats file: %w", err)
	}
	// WriteFile is subject to the umask
	if err := os.Chmod(path, statsFileMode); err != nil {
		w.logger.Warn("stats file permissions", "path", path, "err", err)
	}
	w.logger.Info("Stats written", "path", path)

	for _, sink := range w.sinks {
		if err := sink.Store(ctx, rec); err != nil {
			if w.metrics != nil {
				w.metrics.statsFailures.WithLabelValues(sink.Name()).Inc()
			}
			w.logger.Error("stats sink failed", "sink", sink.Name(), "err", err)
		}
	}
	return path, nil
}

// objectPutter is the part of the S3 client the archive needs.
type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archive uploads each stats file to a bucket under prefix.
type S3Archive struct {
	client objectPutter
	bucket string
	prefix string
}

func NewS3Archive(client objectPutter, bucket, prefix string) *S3Archive {
	return &S3Archive{client: client, bucket: bucket, prefix: prefix}
}

func (a *S3Archive) Name() string { return "s3" }

func (a *S3Archive) Store(ctx context.Context, rec StatsRecord) error {
	key := a.prefix + rec.Name
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(rec.Body),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"game-length": fmt.Sprintf("%d:%02d", rec.Summary.GameLength[0], rec.Summary.GameLength[1]),
		},
	})
	if err != nil {
		return fmt.Errorf("s3 upload %s: %w", key, err)
	}
	return nil
}
