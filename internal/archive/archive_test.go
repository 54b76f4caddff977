package archive

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/dukerupert/rollcall/internal/model"
)

type mockS3Client struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	putErr  error
}

func newMockS3() *mockS3Client {
	return &mockS3Client{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *mockS3Client) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, _ := io.ReadAll(input.Body)
	m.objects[*input.Key] = data
	m.types[*input.Key] = *input.ContentType
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3Client) GetObject(_ context.Context, input *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[*input.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func testArchiver(mock *mockS3Client, passphrase string) *Archiver {
	return &Archiver{
		client:     mock,
		bucket:     "rollcall",
		passphrase: passphrase,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func snapshot() Snapshot {
	return Snapshot{
		Date:        "2025-05-30",
		PublishedAt: time.Date(2025, 5, 30, 10, 0, 0, 0, time.UTC),
		Text:        "1. Alice: 4.0 punti\n",
		Entries:     []model.LeaderboardEntry{{Member: "Alice", TotalPoints: 4}},
	}
}

func TestNewDisabledWithoutCredentials(t *testing.T) {
	if a := New(Config{Bucket: "b"}, slog.Default()); a != nil {
		t.Error("expected nil archiver without keys")
	}
	if a := New(Config{Bucket: "b", AccessKey: "k", SecretKey: "s"}, slog.Default()); a == nil {
		t.Error("expected archiver with full config")
	}
}

func TestArchivePlain(t *testing.T) {
	mock := newMockS3()
	a := testArchiver(mock, "")

	if err := a.Archive(context.Background(), snapshot()); err != nil {
		t.Fatalf("archive: %v", err)
	}
	data, ok := mock.objects["leaderboards/2025-05-30.json"]
	if !ok {
		t.Fatalf("object missing; have %v", mock.objects)
	}
	if !bytes.Contains(data, []byte("Alice")) {
		t.Errorf("payload = %s", data)
	}
	if mock.types["leaderboards/2025-05-30.json"] != "application/json" {
		t.Errorf("content type = %q", mock.types["leaderboards/2025-05-30.json"])
	}
}

func TestArchiveEncryptedRoundTrip(t *testing.T) {
	mock := newMockS3()
	a := testArchiver(mock, "hunter2")

	if err := a.Archive(context.Background(), snapshot()); err != nil {
		t.Fatalf("archive: %v", err)
	}
	data, ok := mock.objects["leaderboards/2025-05-30.json.enc"]
	if !ok {
		t.Fatal("encrypted object missing")
	}
	if bytes.Contains(data, []byte("Alice")) {
		t.Error("encrypted payload contains plaintext")
	}

	got, err := a.Fetch(context.Background(), "2025-05-30")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(got.Entries) != 1 || got.Entries[0].Member != "Alice" {
		t.Errorf("entries = %+v", got.Entries)
	}
}

func TestArchiveUploadError(t *testing.T) {
	mock := newMockS3()
	mock.putErr = errors.New("bucket gone")
	a := testArchiver(mock, "")

	if err := a.Archive(context.Background(), snapshot()); err == nil {
		t.Fatal("expected error on upload failure")
	}
}

func TestFetchMissing(t *testing.T) {
	a := testArchiver(newMockS3(), "")
	_, err := a.Fetch(context.Background(), "2024-01-01")
	if !errors.Is(err, ErrSnapshotNotFound) {
		t.Fatalf("err = %v, want ErrSnapshotNotFound", err)
	}
}
