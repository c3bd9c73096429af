package jwt_test

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/voxline/voxline-agents/internal/domain"
	customjwt "github.com/voxline/voxline-agents/internal/jwt"
)

func TestGeneratorRoundTrip(t *testing.T) {
	repo := &fakeKeyRepo{}
	manager := customjwt.NewKeyManager(repo)
	generator := customjwt.NewGenerator(manager, "voxline-agents", time.Hour)

	user := domain.User{ID: 99, TenantID: 7, Email: "dev@tenant", Role: domain.RoleDeveloper}

	token, err := generator.Generate(context.Background(), user)
	require.NoError(t, err)
	require.NotEmpty(t, token.Value)
	require.NotEmpty(t, token.SessionID)

	principal, sessionID, err := generator.Verify(context.Background(), token.Value)
	require.NoError(t, err)
	require.Equal(t, token.SessionID, sessionID)
	require.Equal(t, int64(99), principal.UserID)
	require.Equal(t, int64(7), principal.TenantID)
	require.Equal(t, domain.RoleDeveloper, principal.Role)
}

func TestGeneratorRejectsExpiredToken(t *testing.T) {
	repo := &fakeKeyRepo{}
	manager := customjwt.NewKeyManager(repo)
	generator := customjwt.NewGenerator(manager, "voxline-agents", -time.Minute)

	user := domain.User{ID: 1, TenantID: 1, Email: "dev@tenant", Role: domain.RoleAdmin}
	token, err := generator.Generate(context.Background(), user)
	require.NoError(t, err)

	_, _, err = generator.Verify(context.Background(), token.Value)
	require.Error(t, err)
	require.True(t, domain.IsCode(err, domain.CodeInvalidToken))
}

func TestGeneratorRejectsGarbage(t *testing.T) {
	repo := &fakeKeyRepo{}
	manager := customjwt.NewKeyManager(repo)
	generator := customjwt.NewGenerator(manager, "voxline-agents", time.Hour)

	_, _, err := generator.Verify(context.Background(), "not-a-token")
	require.True(t, domain.IsCode(err, domain.CodeInvalidToken))
}

func TestGeneratorRejectsForeignSignature(t *testing.T) {
	repoA := &fakeKeyRepo{}
	generatorA := customjwt.NewGenerator(customjwt.NewKeyManager(repoA), "voxline-agents", time.Hour)

	user := domain.User{ID: 4, TenantID: 2, Email: "dev@tenant", Role: domain.RoleDeveloper}
	token, err := generatorA.Generate(context.Background(), user)
	require.NoError(t, err)

	// A verifier with a different key store cannot resolve the kid.
	repoB := &fakeKeyRepo{}
	generatorB := customjwt.NewGenerator(customjwt.NewKeyManager(repoB), "voxline-agents", time.Hour)

	_, _, err = generatorB.Verify(context.Background(), token.Value)
	require.True(t, domain.IsCode(err, domain.CodeInvalidToken))
}

type fakeKeyRepo struct {
	key domain.SigningKey
}

func (f *fakeKeyRepo) GetActiveKey(ctx context.Context, tenantID int64) (domain.SigningKey, error) {
	if f.key.ID == 0 || f.key.TenantID != tenantID {
		return domain.SigningKey{}, pgx.ErrNoRows
	}
	return f.key, nil
}

func (f *fakeKeyRepo) GetKeyByKID(ctx context.Context, kid string) (domain.SigningKey, error) {
	if f.key.ID == 0 || f.key.KID != kid {
		return domain.SigningKey{}, pgx.ErrNoRows
	}
	return f.key, nil
}

func (f *fakeKeyRepo) CreateKey(ctx context.Context, key domain.SigningKey) (domain.SigningKey, error) {
	key.ID = 1
	f.key = key
	return key, nil
}
