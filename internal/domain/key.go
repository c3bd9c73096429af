package domain

import "time"

// SigningKey is a per-tenant HMAC secret used to sign session tokens.
type SigningKey struct {
	ID        int64
	TenantID  int64
	KID       string
	Secret    []byte
	Algorithm string
	IsActive  bool
	CreatedAt time.Time
}
