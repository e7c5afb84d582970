package stores

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const recordVersionV1 = "v1"

var (
	// ErrRecordNotFound indicates no usable record exists under the key.
	ErrRecordNotFound = errors.New("code record not found")
	// ErrRecordStoreUnavailable indicates the Redis backend failed.
	ErrRecordStoreUnavailable = errors.New("code record store unavailable")
)

// CodeRecord is the single live one-time-code record per subject.
type CodeRecord struct {
	Subject      string
	Code         string
	CreatedAt    time.Time
	IsUsed       bool
	ResendCount  int
	LastResendAt time.Time
	VerifiedAt   time.Time
}

// CodeStore persists CodeRecord blobs with a per-key TTL.
type CodeStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewCodeStore creates a code store under the given key prefix.
func NewCodeStore(redisClient redis.UniversalClient, prefix string) *CodeStore {
	if prefix == "" {
		prefix = "otp:user:"
	}
	return &CodeStore{redis: redisClient, prefix: prefix}
}

func (s *CodeStore) key(subject string) string {
	return s.prefix + subject
}

// Save writes the record under the subject key with the given TTL,
// replacing any previous record. There is at most one record per subject.
func (s *CodeStore) Save(ctx context.Context, rec *CodeRecord, ttl time.Duration) error {
	if err := s.redis.Set(ctx, s.key(rec.Subject), encodeCodeRecord(rec), ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRecordStoreUnavailable, err)
	}
	return nil
}

// Get loads the record for a subject. A missing key, a TTL-expired key, and a
// structurally corrupt blob all return ErrRecordNotFound.
func (s *CodeStore) Get(ctx context.Context, subject string) (*CodeRecord, error) {
	data, err := s.redis.Get(ctx, s.key(subject)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRecordStoreUnavailable, err)
	}

	rec, decErr := decodeCodeRecord(data)
	if decErr != nil {
		return nil, ErrRecordNotFound
	}
	return rec, nil
}

// Delete removes the record for a subject. Deleting an absent key is a no-op.
func (s *CodeStore) Delete(ctx context.Context, subject string) error {
	if err := s.redis.Del(ctx, s.key(subject)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRecordStoreUnavailable, err)
	}
	return nil
}

// encodeCodeRecord renders the v1 text blob:
//
//	v1|subject=<escaped>|code=123456|created_at=<RFC3339>|is_used=0|resend_count=0|last_resend_at=...|verified_at=...
//
// The subject is the only free-form field and is query-escaped so it cannot
// break the field delimiter. Zero timestamps encode as empty values.
func encodeCodeRecord(rec *CodeRecord) string {
	var b strings.Builder

	b.WriteString(recordVersionV1)
	b.WriteString("|subject=")
	b.WriteString(url.QueryEscape(rec.Subject))
	b.WriteString("|code=")
	b.WriteString(rec.Code)
	b.WriteString("|created_at=")
	b.WriteString(encodeTime(rec.CreatedAt))
	b.WriteString("|is_used=")
	if rec.IsUsed {
		b.WriteString("1")
	} else {
		b.WriteString("0")
	}
	b.WriteString("|resend_count=")
	b.WriteString(strconv.Itoa(rec.ResendCount))
	b.WriteString("|last_resend_at=")
	b.WriteString(encodeTime(rec.LastResendAt))
	b.WriteString("|verified_at=")
	b.WriteString(encodeTime(rec.VerifiedAt))

	return b.String()
}

func decodeCodeRecord(data string) (*CodeRecord, error) {
	fields := strings.Split(data, "|")
	if len(fields) < 2 || fields[0] != recordVersionV1 {
		return nil, errors.New("invalid code record version")
	}

	rec := &CodeRecord{}
	seen := map[string]bool{}

	for _, field := range fields[1:] {
		name, value, ok := strings.Cut(field, "=")
		if !ok {
			return nil, errors.New("malformed code record field")
		}
		seen[name] = true

		switch name {
		case "subject":
			subject, err := url.QueryUnescape(value)
			if err != nil {
				return nil, errors.New("malformed code record subject")
			}
			rec.Subject = subject
		case "code":
			rec.Code = value
		case "created_at":
			rec.CreatedAt = decodeTime(value)
		case "is_used":
			rec.IsUsed = value == "1"
		case "resend_count":
			n, err := strconv.Atoi(value)
			if err != nil {
				return nil, errors.New("malformed code record resend count")
			}
			rec.ResendCount = n
		case "last_resend_at":
			rec.LastResendAt = decodeTime(value)
		case "verified_at":
			rec.VerifiedAt = decodeTime(value)
		}
	}

	if !seen["subject"] || !seen["code"] || rec.Code == "" {
		return nil, errors.New("incomplete code record")
	}
	return rec, nil
}

func encodeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// decodeTime maps empty and unparsable values to the zero time; callers
// treat a zero created_at as expired rather than rejecting the record.
func decodeTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
