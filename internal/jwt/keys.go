package jwt

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/go-jose/go-jose/v4"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/voxline/voxline-agents/internal/domain"
	"github.com/voxline/voxline-agents/internal/repository"
)

// KeyManager ensures tenants always have an active signing key.
type KeyManager struct {
	repo repository.KeyRepository
}

// NewKeyManager creates a KeyManager.
func NewKeyManager(repo repository.KeyRepository) *KeyManager {
	return &KeyManager{repo: repo}
}

// EnsureSigningKey returns the tenant's active key, creating one if missing.
func (m *KeyManager) EnsureSigningKey(ctx context.Context, tenantID int64) (domain.SigningKey, error) {
	key, err := m.repo.GetActiveKey(ctx, tenantID)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.SigningKey{}, fmt.Errorf("ensure signing key: %w", err)
	}

	secret := make([]byte, 64)
	if _, randErr := rand.Read(secret); randErr != nil {
		return domain.SigningKey{}, fmt.Errorf("generate secret: %w", randErr)
	}

	key = domain.SigningKey{
		TenantID:  tenantID,
		KID:       uuid.NewString(),
		Secret:    secret,
		Algorithm: string(jose.HS256),
		IsActive:  true,
	}

	created, err := m.repo.CreateKey(ctx, key)
	if err != nil {
		// A concurrent caller may have created the key first.
		if existing, getErr := m.repo.GetActiveKey(ctx, tenantID); getErr == nil {
			return existing, nil
		}
		return domain.SigningKey{}, fmt.Errorf("persist signing key: %w", err)
	}

	return created, nil
}

// KeyByKID resolves a key for verification from the token's key ID header.
func (m *KeyManager) KeyByKID(ctx context.Context, kid string) (domain.SigningKey, error) {
	key, err := m.repo.GetKeyByKID(ctx, kid)
	if err != nil {
		return domain.SigningKey{}, fmt.Errorf("key by kid: %w", err)
	}
	return key, nil
}
