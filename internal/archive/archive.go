// Package archive keeps a copy of every published leaderboard in
// S3-compatible object storage, optionally encrypted at rest.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/dukerupert/rollcall/internal/model"
)

// ErrSnapshotNotFound is returned by Fetch when no leaderboard was archived
// for the date.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// s3Client is the subset of the S3 API the archiver needs.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Config holds S3-compatible storage settings.
type Config struct {
	Endpoint   string
	Bucket     string
	Region     string
	AccessKey  string
	SecretKey  string
	Passphrase string
}

// Enabled reports whether enough is configured to upload.
func (c Config) Enabled() bool {
	return c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

// Snapshot is what gets archived for one published leaderboard.
type Snapshot struct {
	Date        string                   `json:"date"`
	PublishedAt time.Time                `json:"published_at"`
	Text        string                   `json:"text"`
	Entries     []model.LeaderboardEntry `json:"entries"`
	Records     []model.VoteRecord       `json:"records"`
	Skipped     int                      `json:"skipped_rows"`
}

// Archiver uploads snapshots.
type Archiver struct {
	client     s3Client
	bucket     string
	passphrase string
	logger     *slog.Logger
}

// New returns nil when cfg is not Enabled; a nil *Archiver is not usable, so
// callers check before wiring it.
func New(cfg Config, logger *slog.Logger) *Archiver {
	if !cfg.Enabled() {
		return nil
	}
	return &Archiver{
		client:     newS3Client(cfg),
		bucket:     cfg.Bucket,
		passphrase: cfg.Passphrase,
		logger:     logger,
	}
}

func newS3Client(cfg Config) *s3.Client {
	region := cfg.Region
	if region == "" {
		region = "auto"
	}
	opts := s3.Options{
		Region:       region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// Key returns the object key a snapshot for date is stored under.
func (a *Archiver) Key(date string) string {
	key := fmt.Sprintf("leaderboards/%s.json", date)
	if a.passphrase != "" {
		key += ".enc"
	}
	return key
}

// Archive uploads snap, overwriting an earlier snapshot for the same date.
func (a *Archiver) Archive(ctx context.Context, snap Snapshot) error {
	body, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	contentType := "application/json"
	if a.passphrase != "" {
		body, err = Seal(body, a.passphrase)
		if err != nil {
			return fmt.Errorf("seal snapshot: %w", err)
		}
		contentType = "application/octet-stream"
	}

	key := a.Key(snap.Date)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("upload snapshot: %w", err)
	}

	a.logger.Info("leaderboard archived", "key", key, "bytes", len(body))
	return nil
}

// Fetch downloads and decodes the snapshot for date.
func (a *Archiver) Fetch(ctx context.Context, date string) (*Snapshot, error) {
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.Key(date)),
	})
	if err != nil {
		var missing *types.NoSuchKey
		if errors.As(err, &missing) {
			return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, date)
		}
		return nil, fmt.Errorf("download snapshot: %w", err)
	}
	defer out.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(out.Body); err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	body := buf.Bytes()
	if a.passphrase != "" {
		body, err = Open(body, a.passphrase)
		if err != nil {
			return nil, fmt.Errorf("open snapshot: %w", err)
		}
	}

	var snap Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}
