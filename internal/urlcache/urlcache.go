// Package urlcache maps short opaque tokens to the URLs they stand for, so
// chat-platform button payloads never have to carry a full URL. Entries
// expire after a configurable TTL; register is idempotent for a URL that
// already has a live token.
package urlcache

import (
	"crypto/sha256"
	"database/sql"
	"encoding/base32"
	"fmt"
	"time"

	"doradura/internal/storage"
)

const tokenLength = 12

// Cache is the URL Cache repository: SQLite-backed token<->URL mapping.
type Cache struct {
	db  *storage.DB
	ttl time.Duration
}

// New creates a URL Cache using db for persistence and ttl as the entry
// lifetime applied to every newly registered token.
func New(db *storage.DB, ttl time.Duration) *Cache {
	return &Cache{db: db, ttl: ttl}
}

// Register returns a token for url. If a non-expired token already exists
// for this exact URL it is returned unchanged (idempotent); otherwise a new
// token is minted and persisted with a fresh TTL.
func (c *Cache) Register(url string) (string, error) {
	now := time.Now()

	var existing string
	err := c.db.Conn().QueryRow(`
		SELECT token FROM url_cache WHERE url = ? AND expires_at > ? LIMIT 1`,
		url, now).Scan(&existing)
	if err == nil {
		return existing, nil
	}
	if err != sql.ErrNoRows {
		return "", fmt.Errorf("urlcache: lookup failed: %w", err)
	}

	token := tokenFor(url, now)
	expiresAt := now.Add(c.ttl)

	_, err = c.db.Conn().Exec(`
		INSERT OR REPLACE INTO url_cache (token, url, created_at, expires_at)
		VALUES (?, ?, ?, ?)`,
		token, url, now, expiresAt)
	if err != nil {
		return "", fmt.Errorf("urlcache: insert failed: %w", err)
	}

	return token, nil
}

// Resolve returns the URL for token, and false if the token is unknown or
// its TTL has elapsed.
func (c *Cache) Resolve(token string) (string, bool, error) {
	var url string
	var expiresAt time.Time

	err := c.db.Conn().QueryRow(`
		SELECT url, expires_at FROM url_cache WHERE token = ?`, token).Scan(&url, &expiresAt)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("urlcache: lookup failed: %w", err)
	}

	if time.Now().After(expiresAt) {
		return "", false, nil
	}
	return url, true, nil
}

// Sweep deletes every entry whose TTL has elapsed, returning the count
// removed. cmd/doradura runs it on a ticker every quarter of the TTL.
func (c *Cache) Sweep() (int64, error) {
	res, err := c.db.Conn().Exec(`DELETE FROM url_cache WHERE expires_at <= ?`, time.Now())
	if err != nil {
		return 0, fmt.Errorf("urlcache: sweep failed: %w", err)
	}
	return res.RowsAffected()
}

// tokenFor derives a 12-char opaque token from the URL and the registration
// instant, so re-registering the same URL after expiry yields a fresh token
// rather than colliding with a stale, already-swept one.
func tokenFor(url string, at time.Time) string {
	h := sha256.New()
	h.Write([]byte(url))
	fmt.Fprintf(h, "|%d", at.UnixNano())
	sum := h.Sum(nil)
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(sum)[:tokenLength]
}
