package stores

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*miniredis.Miniredis, *redis.Client, *CodeStore) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, client, NewCodeStore(client, "otp:user:")
}

func TestCodeStoreRoundTrip(t *testing.T) {
	_, _, store := newTestStore(t)
	ctx := context.Background()

	created := time.Date(2025, 6, 1, 12, 0, 0, 123456789, time.UTC)
	rec := &CodeRecord{
		Subject:      "user|weird=chars@example.com",
		Code:         "482913",
		CreatedAt:    created,
		IsUsed:       false,
		ResendCount:  2,
		LastResendAt: created.Add(time.Minute),
	}

	if err := store.Save(ctx, rec, 5*time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := store.Get(ctx, rec.Subject)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Subject != rec.Subject {
		t.Fatalf("subject mismatch: %q vs %q", got.Subject, rec.Subject)
	}
	if got.Code != rec.Code {
		t.Fatalf("code mismatch: %q vs %q", got.Code, rec.Code)
	}
	if !got.CreatedAt.Equal(rec.CreatedAt) {
		t.Fatalf("created_at mismatch: %v vs %v", got.CreatedAt, rec.CreatedAt)
	}
	if got.ResendCount != 2 {
		t.Fatalf("resend_count mismatch: %d", got.ResendCount)
	}
	if !got.LastResendAt.Equal(rec.LastResendAt) {
		t.Fatalf("last_resend_at mismatch: %v", got.LastResendAt)
	}
	if !got.VerifiedAt.IsZero() {
		t.Fatalf("expected zero verified_at, got %v", got.VerifiedAt)
	}
}

func TestCodeStoreMissingKey(t *testing.T) {
	_, _, store := newTestStore(t)

	_, err := store.Get(context.Background(), "nobody")
	if !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestCodeStoreCorruptBlobReadsAsNotFound(t *testing.T) {
	_, rdb, store := newTestStore(t)
	ctx := context.Background()

	cases := []struct {
		name string
		blob string
	}{
		{"garbage", "not a record at all"},
		{"wrong version", "v2|subject=u|code=123456"},
		{"missing code", "v1|subject=u|created_at="},
		{"empty code", "v1|subject=u|code="},
		{"field without separator", "v1|subject=u|code=123456|oops"},
		{"bad resend count", "v1|subject=u|code=123456|resend_count=many"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := rdb.Set(ctx, "otp:user:u", tc.blob, 0).Err(); err != nil {
				t.Fatalf("raw set failed: %v", err)
			}
			if _, err := store.Get(ctx, "u"); !errors.Is(err, ErrRecordNotFound) {
				t.Fatalf("expected ErrRecordNotFound, got %v", err)
			}
		})
	}
}

func TestCodeStoreBadTimestampDecodesAsZero(t *testing.T) {
	_, rdb, store := newTestStore(t)
	ctx := context.Background()

	blob := "v1|subject=u|code=123456|created_at=yesterday|is_used=0|resend_count=0|last_resend_at=|verified_at="
	if err := rdb.Set(ctx, "otp:user:u", blob, 0).Err(); err != nil {
		t.Fatalf("raw set failed: %v", err)
	}

	rec, err := store.Get(ctx, "u")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !rec.CreatedAt.IsZero() {
		t.Fatalf("expected zero created_at for unparsable value, got %v", rec.CreatedAt)
	}
}

func TestCodeStoreSaveReplaces(t *testing.T) {
	_, _, store := newTestStore(t)
	ctx := context.Background()

	first := &CodeRecord{Subject: "u", Code: "111111", CreatedAt: time.Now().UTC()}
	if err := store.Save(ctx, first, time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	second := &CodeRecord{Subject: "u", Code: "222222", CreatedAt: time.Now().UTC()}
	if err := store.Save(ctx, second, time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := store.Get(ctx, "u")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Code != "222222" {
		t.Fatalf("expected replacement code, got %q", got.Code)
	}
}

func TestCodeStoreTTLExpiry(t *testing.T) {
	mr, _, store := newTestStore(t)
	ctx := context.Background()

	rec := &CodeRecord{Subject: "u", Code: "123456", CreatedAt: time.Now().UTC()}
	if err := store.Save(ctx, rec, time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	mr.FastForward(2 * time.Minute)
	if _, err := store.Get(ctx, "u"); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound after TTL expiry, got %v", err)
	}
}

func TestCodeStoreDeleteAbsentKey(t *testing.T) {
	_, _, store := newTestStore(t)

	if err := store.Delete(context.Background(), "nobody"); err != nil {
		t.Fatalf("expected no-op delete, got %v", err)
	}
}
