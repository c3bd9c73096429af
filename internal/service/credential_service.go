package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/voxline/voxline-agents/internal/domain"
	"github.com/voxline/voxline-agents/internal/jwt"
	pw "github.com/voxline/voxline-agents/internal/password"
	"github.com/voxline/voxline-agents/internal/repository"
	"github.com/voxline/voxline-agents/internal/tenant"
)

// LoginResult is what a successful login hands back to the transport.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      domain.User
}

// CredentialService verifies and creates user credentials and issues
// session tokens.
type CredentialService struct {
	users     repository.UserRepository
	sessions  repository.SessionStore
	tokens    *jwt.Generator
	snowflake *snowflake.Node
	decoyHash string
	logger    *zap.Logger
	tracer    trace.Tracer
}

// NewCredentialService wires dependencies. The decoy hash is verified when
// a login names an unknown email, so both failure cases burn a comparable
// amount of time.
func NewCredentialService(users repository.UserRepository, sessions repository.SessionStore, tokens *jwt.Generator, node *snowflake.Node, logger *zap.Logger) (*CredentialService, error) {
	decoy, err := pw.Hash("decoy-" + node.Generate().String())
	if err != nil {
		return nil, err
	}
	return &CredentialService{
		users:     users,
		sessions:  sessions,
		tokens:    tokens,
		snowflake: node,
		decoyHash: decoy,
		logger:    logger,
		tracer:    otel.Tracer("github.com/voxline/voxline-agents/internal/service"),
	}, nil
}

// Register creates a user with a hashed password. TenantID zero means a
// fresh tenant is allocated for the new user.
func (s *CredentialService) Register(ctx context.Context, email, password string, role domain.Role, tenantID int64) (domain.User, error) {
	ctx, span := startSpan(ctx, s.tracer, "CredentialService.Register")
	defer span.End()

	normalized := strings.ToLower(strings.TrimSpace(email))
	if normalized == "" {
		return domain.User{}, domain.NewValidation("email is required")
	}
	if strings.TrimSpace(password) == "" {
		return domain.User{}, domain.NewValidation("password is required")
	}
	if !role.Valid() {
		return domain.User{}, domain.NewValidation("role must be ADMIN or DEVELOPER")
	}

	hash, err := pw.Hash(password)
	if err != nil {
		span.RecordError(err)
		return domain.User{}, domain.NewInternal(err)
	}

	if tenantID == 0 {
		tenantID = s.snowflake.Generate().Int64()
	}

	user := domain.User{
		ID:           s.snowflake.Generate().Int64(),
		TenantID:     tenantID,
		Email:        normalized,
		PasswordHash: hash,
		Role:         role,
	}

	created, err := s.users.Create(ctx, user)
	if err != nil {
		span.RecordError(err)
		return domain.User{}, err
	}

	audit(s.logger, "user.registered", "tenant_id", created.TenantID, "user_id", created.ID, "role", string(created.Role))
	return created, nil
}

// Login verifies the password and issues a signed session token. Unknown
// email and wrong password produce the same error.
func (s *CredentialService) Login(ctx context.Context, email, password string) (LoginResult, error) {
	ctx, span := startSpan(ctx, s.tracer, "CredentialService.Login")
	defer span.End()

	normalized := strings.ToLower(strings.TrimSpace(email))
	user, err := s.users.GetByEmail(ctx, normalized)
	if err != nil {
		// Burn the same hashing cost an existing user would.
		_, _ = pw.Verify(password, s.decoyHash)
		return LoginResult{}, domain.NewInvalidCredentials()
	}

	valid, err := pw.Verify(password, user.PasswordHash)
	if err != nil || !valid {
		return LoginResult{}, domain.NewInvalidCredentials()
	}

	token, err := s.tokens.Generate(ctx, user)
	if err != nil {
		span.RecordError(err)
		return LoginResult{}, domain.NewInternal(err)
	}

	ttl := time.Until(token.ExpiresAt)
	if err := s.sessions.Add(ctx, token.SessionID, ttl); err != nil {
		span.RecordError(err)
		return LoginResult{}, domain.NewInternal(err)
	}

	audit(s.logger, "user.login", "tenant_id", user.TenantID, "user_id", user.ID)
	return LoginResult{Token: token.Value, ExpiresAt: token.ExpiresAt, User: user}, nil
}

// Verify resolves a bearer token into a Principal, rejecting revoked
// sessions.
func (s *CredentialService) Verify(ctx context.Context, token string) (domain.Principal, error) {
	principal, sessionID, err := s.tokens.Verify(ctx, token)
	if err != nil {
		return domain.Principal{}, err
	}

	live, err := s.sessions.Exists(ctx, sessionID)
	if err != nil {
		return domain.Principal{}, domain.NewInternal(err)
	}
	if !live {
		return domain.Principal{}, domain.NewUnauthorized("Session revoked.")
	}
	return principal, nil
}

// Logout revokes the session behind the presented token. Revoking an
// already-dead token succeeds.
func (s *CredentialService) Logout(ctx context.Context, token string) error {
	_, sessionID, err := s.tokens.Verify(ctx, token)
	if err != nil {
		return nil
	}
	if err := s.sessions.Remove(ctx, sessionID); err != nil {
		return domain.NewInternal(err)
	}
	return nil
}

// GetUser loads the principal's own user row.
func (s *CredentialService) GetUser(ctx context.Context, p domain.Principal) (domain.User, error) {
	return s.users.GetByID(ctx, p.TenantID, p.UserID)
}

// ListUsers is admin-only and scoped to the principal's tenant.
func (s *CredentialService) ListUsers(ctx context.Context, p domain.Principal) ([]domain.User, error) {
	if err := tenant.RequireAdmin(p); err != nil {
		return nil, err
	}
	return s.users.List(ctx, p.TenantID)
}

// DeleteUser is admin-only. Admins cannot delete themselves.
func (s *CredentialService) DeleteUser(ctx context.Context, p domain.Principal, userID int64) error {
	if err := tenant.RequireAdmin(p); err != nil {
		return err
	}
	if userID == p.UserID {
		return domain.NewConflict("cannot delete the requesting user")
	}
	if err := s.users.Delete(ctx, p.TenantID, userID); err != nil {
		return err
	}
	audit(s.logger, "user.deleted", "tenant_id", p.TenantID, "user_id", userID, "deleted_by", p.UserID)
	return nil
}
