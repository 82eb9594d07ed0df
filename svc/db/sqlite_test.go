package db

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"clipd/pkg/domain"

	"github.com/pkg/errors"
)

func createTestDB(t *testing.T) *SQLite {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clips.db")
	s, err := NewSQLite(path)
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testClip(code string) *domain.Clip {
	return &domain.Clip{
		ShortCode: domain.ShortCodeFromString(code),
		Content:   "some content",
		PostedAt:  time.Now().UTC(),
	}
}

func TestInsertGetRoundTrip(t *testing.T) {
	s := createTestDB(t)
	ctx := context.Background()

	expires := time.Now().Add(time.Hour).UTC()
	in := &domain.Clip{
		ShortCode:    domain.ShortCodeFromString("abcd123412"),
		Content:      "líne one\nline two — with punctuation!\n",
		Title:        "a title",
		PasswordHash: "$argon2id$fake",
		PostedAt:     time.Now().UTC(),
		ExpiresAt:    &expires,
	}
	if err := s.Insert(ctx, in); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := s.Get(ctx, in.ShortCode)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Content != in.Content {
		t.Errorf("content mismatch: got %q, want %q", got.Content, in.Content)
	}
	if got.Title != in.Title {
		t.Errorf("title mismatch: got %q, want %q", got.Title, in.Title)
	}
	if got.PasswordHash != in.PasswordHash {
		t.Errorf("password hash mismatch: got %q", got.PasswordHash)
	}
	if !got.PostedAt.Equal(in.PostedAt) {
		t.Errorf("posted_at mismatch: got %v, want %v", got.PostedAt, in.PostedAt)
	}
	if got.ExpiresAt == nil || !got.ExpiresAt.Equal(expires) {
		t.Errorf("expires_at mismatch: got %v, want %v", got.ExpiresAt, expires)
	}
	if got.Hits != 0 {
		t.Errorf("fresh clip should have 0 hits, got %d", got.Hits)
	}
}

func TestInsertNilExpiry(t *testing.T) {
	s := createTestDB(t)
	ctx := context.Background()

	in := testClip("bbbb111122")
	if err := s.Insert(ctx, in); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	got, err := s.Get(ctx, in.ShortCode)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.ExpiresAt != nil {
		t.Fatalf("expected nil expires_at, got %v", got.ExpiresAt)
	}
}

func TestInsertConflict(t *testing.T) {
	s := createTestDB(t)
	ctx := context.Background()

	if err := s.Insert(ctx, testClip("cccc111122")); err != nil {
		t.Fatalf("first Insert failed: %v", err)
	}
	err := s.Insert(ctx, testClip("cccc111122"))
	if !errors.Is(err, domain.ErrCodeConflict) {
		t.Fatalf("expected ErrCodeConflict, got %v", err)
	}
}

func TestGetNotFound(t *testing.T) {
	s := createTestDB(t)
	_, err := s.Get(context.Background(), domain.ShortCodeFromString("nosuchcode"))
	if !errors.Is(err, domain.ErrClipNotFound) {
		t.Fatalf("expected ErrClipNotFound, got %v", err)
	}
}

func TestGetReturnsExpiredRecords(t *testing.T) {
	// Expiration filtering belongs to the service; the store hands back
	// whatever it has.
	s := createTestDB(t)
	ctx := context.Background()

	past := time.Now().Add(-time.Hour).UTC()
	in := testClip("dddd111122")
	in.ExpiresAt = &past
	if err := s.Insert(ctx, in); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	got, err := s.Get(ctx, in.ShortCode)
	if err != nil {
		t.Fatalf("Get should return expired records, got %v", err)
	}
	if got.ExpiresAt == nil || !got.ExpiresAt.Equal(past) {
		t.Fatalf("expires_at mismatch: got %v", got.ExpiresAt)
	}
}

func TestAddHits(t *testing.T) {
	s := createTestDB(t)
	ctx := context.Background()

	in := testClip("eeee111122")
	if err := s.Insert(ctx, in); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := s.AddHits(ctx, in.ShortCode, 3); err != nil {
		t.Fatalf("AddHits failed: %v", err)
	}
	if err := s.AddHits(ctx, in.ShortCode, 2); err != nil {
		t.Fatalf("AddHits failed: %v", err)
	}
	got, err := s.Get(ctx, in.ShortCode)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Hits != 5 {
		t.Fatalf("expected 5 hits, got %d", got.Hits)
	}
}

func TestAddHitsMissingClip(t *testing.T) {
	s := createTestDB(t)
	err := s.AddHits(context.Background(), domain.ShortCodeFromString("gone"), 1)
	if !errors.Is(err, domain.ErrClipNotFound) {
		t.Fatalf("expected ErrClipNotFound, got %v", err)
	}
}

func TestAddHitsConcurrent(t *testing.T) {
	s := createTestDB(t)
	ctx := context.Background()

	in := testClip("ffff111122")
	if err := s.Insert(ctx, in); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.AddHits(ctx, in.ShortCode, 1); err != nil {
				t.Errorf("AddHits failed: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := s.Get(ctx, in.ShortCode)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Hits != workers {
		t.Fatalf("lost updates: expected %d hits, got %d", workers, got.Hits)
	}
}

func TestDeleteExpired(t *testing.T) {
	s := createTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	expired := testClip("aaaa000011")
	expired.ExpiresAt = &past
	live := testClip("aaaa000022")
	live.ExpiresAt = &future
	forever := testClip("aaaa000033")

	for _, c := range []*domain.Clip{expired, live, forever} {
		if err := s.Insert(ctx, c); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	deleted, err := s.DeleteExpired(ctx, now)
	if err != nil {
		t.Fatalf("DeleteExpired failed: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deleted, got %d", deleted)
	}

	if _, err := s.Get(ctx, expired.ShortCode); !errors.Is(err, domain.ErrClipNotFound) {
		t.Errorf("expired clip should be gone, got %v", err)
	}
	if _, err := s.Get(ctx, live.ShortCode); err != nil {
		t.Errorf("live clip should survive: %v", err)
	}
	if _, err := s.Get(ctx, forever.ShortCode); err != nil {
		t.Errorf("never-expiring clip should survive: %v", err)
	}

	// Idempotent: nothing left to delete.
	deleted, err = s.DeleteExpired(ctx, now)
	if err != nil {
		t.Fatalf("second DeleteExpired failed: %v", err)
	}
	if deleted != 0 {
		t.Fatalf("expected 0 deleted on second pass, got %d", deleted)
	}
}
