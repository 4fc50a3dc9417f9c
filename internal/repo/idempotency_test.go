package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/go-digest-backend/internal/domain"
)

func TestGetIdempotency_BlankKey(t *testing.T) {
	db := newDigestRepoDB(t, &domain.Idempotency{})
	if _, err := GetIdempotency(context.Background(), db, "   ", time.Now()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for blank key, got %v", err)
	}
}

func TestCreateAndGetIdempotency_RoundTrip(t *testing.T) {
	db := newDigestRepoDB(t, &domain.Idempotency{})

	rec, err := CreateIdempotency(context.Background(), db, "k1", "digest-1", 201, time.Hour)
	if err != nil {
		t.Fatalf("CreateIdempotency: %v", err)
	}
	if rec.ID == "" || rec.Key != "k1" || rec.DigestID != "digest-1" || rec.Status != 201 {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if !rec.ExpiresAt.After(rec.CreatedAt) {
		t.Fatalf("expiry not in the future: %+v", rec)
	}

	got, err := GetIdempotency(context.Background(), db, "k1", time.Now().UTC())
	if err != nil {
		t.Fatalf("GetIdempotency: %v", err)
	}
	if got.DigestID != "digest-1" {
		t.Fatalf("unexpected digest id: %+v", got)
	}
}

func TestGetIdempotency_ExpiredRecordIsInvisible(t *testing.T) {
	db := newDigestRepoDB(t, &domain.Idempotency{})

	if _, err := CreateIdempotency(context.Background(), db, "k1", "digest-1", 201, time.Hour); err != nil {
		t.Fatalf("CreateIdempotency: %v", err)
	}

	// Query as if far in the future: the record has lapsed.
	future := time.Now().UTC().Add(48 * time.Hour)
	if _, err := GetIdempotency(context.Background(), db, "k1", future); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for expired record, got %v", err)
	}
}

func TestCreateIdempotency_DuplicateKey(t *testing.T) {
	db := newDigestRepoDB(t, &domain.Idempotency{})

	if _, err := CreateIdempotency(context.Background(), db, "k1", "digest-1", 201, time.Hour); err != nil {
		t.Fatalf("first CreateIdempotency: %v", err)
	}
	if _, err := CreateIdempotency(context.Background(), db, "k1", "digest-2", 201, time.Hour); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}
