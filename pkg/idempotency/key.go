// Package idempotency makes retried POST requests safe: a request carrying an
// Idempotency-Key header runs once and later retries get the stored response.
package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// HeaderKey carries the client's idempotency key
const HeaderKey = "Idempotency-Key"

const maxKeyLength = 255

var (
	ErrKeyInvalid = errors.New("idempotency key may only contain letters, digits, '-' and '_'")
	ErrKeyTooLong = errors.New("idempotency key exceeds 255 characters")
)

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Record is one key's lock and, once the request finished, its response
type Record struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	Key         string             `bson:"key"`
	Service     string             `bson:"service"`
	Method      string             `bson:"method"`
	Path        string             `bson:"path"`
	Fingerprint string             `bson:"fingerprint"`

	// Token identifies the request holding the lock
	Token    string     `bson:"token"`
	LockedAt *time.Time `bson:"lockedAt,omitempty"`

	ResponseCode        int    `bson:"responseCode,omitempty"`
	ResponseBody        []byte `bson:"responseBody,omitempty"`
	ResponseContentType string `bson:"responseContentType,omitempty"`

	CreatedAt   time.Time  `bson:"createdAt"`
	CompletedAt *time.Time `bson:"completedAt,omitempty"`
	// ExpiresAt drives the TTL index
	ExpiresAt time.Time `bson:"expiresAt"`
}

func (r *Record) Completed() bool {
	return r.CompletedAt != nil
}

// Locked reports whether a request holds the key and took it less than
// timeout ago. Older locks belong to a request that died mid-flight.
func (r *Record) Locked(now time.Time, timeout time.Duration) bool {
	return r.CompletedAt == nil && r.LockedAt != nil && now.Sub(*r.LockedAt) < timeout
}

// NormalizeKey trims the header value and checks its format; an empty
// result means the request is not idempotent.
func NormalizeKey(raw string) (string, error) {
	key := strings.TrimSpace(raw)
	switch {
	case key == "":
		return "", nil
	case len(key) > maxKeyLength:
		return "", ErrKeyTooLong
	case !keyPattern.MatchString(key):
		return "", ErrKeyInvalid
	}
	return key, nil
}

// Fingerprint identifies a request by method, path and body, so a key reused
// for a different request is detected
func Fingerprint(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method + " " + path + "\n"))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
