package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voxline/voxline-agents/internal/domain"
)

// PostgresKeyRepo implements KeyRepository over pgx. Key lookups stay on
// raw pgx errors (pgx.ErrNoRows) because the key manager drives its
// create-if-missing logic off them.
type PostgresKeyRepo struct {
	db *pgxpool.Pool
}

func NewPostgresKeyRepo(pool *pgxpool.Pool) *PostgresKeyRepo {
	return &PostgresKeyRepo{db: pool}
}

const keyColumns = `id, tenant_id, kid, secret, algorithm, is_active, created_at`

func (r *PostgresKeyRepo) GetActiveKey(ctx context.Context, tenantID int64) (domain.SigningKey, error) {
	row := r.db.QueryRow(ctx, `SELECT `+keyColumns+` FROM signing_keys WHERE tenant_id = $1 AND is_active = true`, tenantID)
	var key domain.SigningKey
	if err := row.Scan(&key.ID, &key.TenantID, &key.KID, &key.Secret, &key.Algorithm, &key.IsActive, &key.CreatedAt); err != nil {
		return domain.SigningKey{}, err
	}
	return key, nil
}

func (r *PostgresKeyRepo) GetKeyByKID(ctx context.Context, kid string) (domain.SigningKey, error) {
	row := r.db.QueryRow(ctx, `SELECT `+keyColumns+` FROM signing_keys WHERE kid = $1`, kid)
	var key domain.SigningKey
	if err := row.Scan(&key.ID, &key.TenantID, &key.KID, &key.Secret, &key.Algorithm, &key.IsActive, &key.CreatedAt); err != nil {
		return domain.SigningKey{}, err
	}
	return key, nil
}

const insertKeySQL = `INSERT INTO signing_keys (tenant_id, kid, secret, algorithm, is_active)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + keyColumns

func (r *PostgresKeyRepo) CreateKey(ctx context.Context, key domain.SigningKey) (domain.SigningKey, error) {
	row := r.db.QueryRow(ctx, insertKeySQL, key.TenantID, key.KID, key.Secret, key.Algorithm, key.IsActive)
	var created domain.SigningKey
	if err := row.Scan(&created.ID, &created.TenantID, &created.KID, &created.Secret, &created.Algorithm, &created.IsActive, &created.CreatedAt); err != nil {
		return domain.SigningKey{}, fmt.Errorf("insert signing key: %w", err)
	}
	return created, nil
}
