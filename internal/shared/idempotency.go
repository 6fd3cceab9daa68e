package shared

import (
	"fmt"
	"regexp"
	"strings"
)

// IdempotencyHeader carries the client-chosen key for ledger submissions.
const IdempotencyHeader = "Idempotency-Key"

// MaxIdempotencyKeyLen bounds the stored key.
const MaxIdempotencyKeyLen = 64

var idempotencyKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_.:-]+$`)

// ErrIdempotencyConflict indicates the key was claimed by a request that has not committed.
var ErrIdempotencyConflict = fmt.Errorf("idempotency key already in use: %w", ErrConflict)

// NormalizeIdempotencyKey trims raw. An empty key yields nil.
func NormalizeIdempotencyKey(raw string) (*string, error) {
	key := strings.TrimSpace(raw)
	if key == "" {
		return nil, nil
	}
	if len(key) > MaxIdempotencyKeyLen {
		return nil, Invalid("idempotencyKey", "must be at most %d characters", MaxIdempotencyKeyLen)
	}
	if !idempotencyKeyPattern.MatchString(key) {
		return nil, Invalid("idempotencyKey", "must contain only letters, digits and _.:-")
	}
	return &key, nil
}
