package shared

import (
	"context"
	"encoding/hex"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/blake2b"
)

var (
	// ErrIdempotencyMismatch indicates a key reused for a different request.
	ErrIdempotencyMismatch = Conflictf("idempotency key already used for a different request")
	// ErrIdempotencyInFlight indicates the original request has not finished.
	ErrIdempotencyInFlight = Conflictf("idempotent request still in progress")
)

// IdempotencyRecord is a stored request outcome.
type IdempotencyRecord struct {
	GroupID     int64
	Key         string
	Fingerprint string
	StatusCode  int
	Body        []byte
	CreatedAt   time.Time
}

// Completed reports whether a response has been stored.
func (r IdempotencyRecord) Completed() bool {
	return r.StatusCode > 0
}

// IdempotencyStore persists request keys and their responses.
type IdempotencyStore struct {
	pool *pgxpool.Pool
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(pool *pgxpool.Pool) *IdempotencyStore {
	return &IdempotencyStore{pool: pool}
}

// Fingerprint hashes the parts of a request that must match on replay.
func Fingerprint(method, path string, body []byte) string {
	h, _ := blake2b.New256(nil)
	_, _ = h.Write([]byte(method))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(path))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// Reserve claims key for the group. When the key already exists the stored
// record is returned with reserved=false.
func (s *IdempotencyStore) Reserve(ctx context.Context, groupID int64, key, fingerprint string) (IdempotencyRecord, bool, error) {
	if s == nil || s.pool == nil {
		return IdempotencyRecord{}, false, errors.New("idempotency store not initialised")
	}
	if key == "" {
		return IdempotencyRecord{}, false, errors.New("idempotency key required")
	}
	tag, err := s.pool.Exec(ctx, `INSERT INTO idempotency_keys (group_id, key, fingerprint, status_code, created_at)
VALUES ($1, $2, $3, 0, NOW()) ON CONFLICT (group_id, key) DO NOTHING`, groupID, key, fingerprint)
	if err != nil {
		return IdempotencyRecord{}, false, err
	}
	if tag.RowsAffected() == 1 {
		return IdempotencyRecord{GroupID: groupID, Key: key, Fingerprint: fingerprint}, true, nil
	}
	rec := IdempotencyRecord{GroupID: groupID, Key: key}
	err = s.pool.QueryRow(ctx, `SELECT fingerprint, status_code, COALESCE(response, ''::bytea), created_at FROM idempotency_keys WHERE group_id = $1 AND key = $2`, groupID, key).
		Scan(&rec.Fingerprint, &rec.StatusCode, &rec.Body, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// Cleaned up between insert and select; let the caller retry.
		return IdempotencyRecord{}, false, ErrIdempotencyInFlight
	}
	if err != nil {
		return IdempotencyRecord{}, false, err
	}
	return rec, false, nil
}

// Complete stores the response for a reserved key.
func (s *IdempotencyStore) Complete(ctx context.Context, groupID int64, key string, status int, body []byte) error {
	if s == nil || s.pool == nil {
		return nil
	}
	_, err := s.pool.Exec(ctx, `UPDATE idempotency_keys SET status_code = $3, response = $4 WHERE group_id = $1 AND key = $2`, groupID, key, status, body)
	return err
}

// Release removes a key, typically after a failed request so it can be retried.
func (s *IdempotencyStore) Release(ctx context.Context, groupID int64, key string) error {
	if s == nil || s.pool == nil {
		return nil
	}
	if key == "" {
		return errors.New("idempotency key required")
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE group_id = $1 AND key = $2`, groupID, key)
	return err
}

// Cleanup removes entries older than retention and reports how many went.
func (s *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, nil
	}
	cutoff := time.Now().Add(-olderThan)
	tag, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
