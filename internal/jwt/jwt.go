package jwt

import (
	"context"
	"fmt"
	"strconv"
	"time"

	gojose "github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"
	"github.com/google/uuid"

	"github.com/voxline/voxline-agents/internal/domain"
)

// Generator signs and validates session tokens.
type Generator struct {
	keys      *KeyManager
	issuer    string
	accessTTL time.Duration
}

// NewGenerator constructs a token generator.
func NewGenerator(manager *KeyManager, issuer string, accessTTL time.Duration) *Generator {
	return &Generator{keys: manager, issuer: issuer, accessTTL: accessTTL}
}

// SessionClaims is the custom JWT payload carried next to the standard set.
type SessionClaims struct {
	UserID   int64  `json:"user_id,string"`
	TenantID int64  `json:"tenant_id,string"`
	Role     string `json:"role"`
	Email    string `json:"email,omitempty"`
}

// Token is a signed session token plus the metadata the session store needs.
type Token struct {
	Value     string
	SessionID string
	ExpiresAt time.Time
}

// Generate produces a signed token for the user under the tenant's key.
func (g *Generator) Generate(ctx context.Context, user domain.User) (Token, error) {
	key, err := g.keys.EnsureSigningKey(ctx, user.TenantID)
	if err != nil {
		return Token{}, fmt.Errorf("ensure signing key: %w", err)
	}

	signer, err := gojose.NewSigner(
		gojose.SigningKey{Algorithm: gojose.SignatureAlgorithm(key.Algorithm), Key: key.Secret},
		(&gojose.SignerOptions{}).WithType("JWT").WithHeader("kid", key.KID),
	)
	if err != nil {
		return Token{}, fmt.Errorf("new signer: %w", err)
	}

	now := time.Now().UTC()
	expires := now.Add(g.accessTTL)
	sessionID := uuid.NewString()

	std := gojwt.Claims{
		ID:        sessionID,
		Subject:   strconv.FormatInt(user.ID, 10),
		Issuer:    g.issuer,
		IssuedAt:  gojwt.NewNumericDate(now),
		NotBefore: gojwt.NewNumericDate(now),
		Expiry:    gojwt.NewNumericDate(expires),
	}
	custom := SessionClaims{
		UserID:   user.ID,
		TenantID: user.TenantID,
		Role:     string(user.Role),
		Email:    user.Email,
	}

	value, err := gojwt.Signed(signer).Claims(std).Claims(custom).Serialize()
	if err != nil {
		return Token{}, fmt.Errorf("serialize jwt: %w", err)
	}

	return Token{Value: value, SessionID: sessionID, ExpiresAt: expires}, nil
}

// Verify checks the token signature and expiry and returns the embedded
// principal plus the session ID for revocation checks. Failures map onto
// the auth taxonomy: malformed, bad signature, and expired are distinct
// messages but all surface as 401.
func (g *Generator) Verify(ctx context.Context, token string) (domain.Principal, string, error) {
	parsed, err := gojwt.ParseSigned(token, []gojose.SignatureAlgorithm{gojose.HS256})
	if err != nil {
		return domain.Principal{}, "", domain.NewUnauthorized("Malformed token.")
	}
	if len(parsed.Headers) == 0 || parsed.Headers[0].KeyID == "" {
		return domain.Principal{}, "", domain.NewUnauthorized("Malformed token.")
	}

	key, err := g.keys.KeyByKID(ctx, parsed.Headers[0].KeyID)
	if err != nil {
		return domain.Principal{}, "", domain.NewUnauthorized("Invalid token signature.")
	}

	var std gojwt.Claims
	var custom SessionClaims
	if err := parsed.Claims(key.Secret, &std, &custom); err != nil {
		return domain.Principal{}, "", domain.NewUnauthorized("Invalid token signature.")
	}

	if err := std.Validate(gojwt.Expected{Issuer: g.issuer, Time: time.Now().UTC()}); err != nil {
		if err == gojwt.ErrExpired {
			return domain.Principal{}, "", domain.NewUnauthorized("Token expired.")
		}
		return domain.Principal{}, "", domain.NewUnauthorized("Invalid token claims.")
	}

	role := domain.Role(custom.Role)
	if custom.UserID == 0 || custom.TenantID == 0 || !role.Valid() {
		return domain.Principal{}, "", domain.NewUnauthorized("Invalid token claims.")
	}

	principal := domain.Principal{
		UserID:   custom.UserID,
		TenantID: custom.TenantID,
		Role:     role,
	}
	return principal, std.ID, nil
}
