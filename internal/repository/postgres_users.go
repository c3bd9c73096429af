package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voxline/voxline-agents/internal/domain"
)

// PostgresUserRepo implements UserRepository over pgx.
type PostgresUserRepo struct {
	db *pgxpool.Pool
}

func NewPostgresUserRepo(pool *pgxpool.Pool) *PostgresUserRepo {
	return &PostgresUserRepo{db: pool}
}

const insertUserSQL = `INSERT INTO users (id, tenant_id, email, password_hash, role)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, tenant_id, email, password_hash, role, created_at`

func (r *PostgresUserRepo) Create(ctx context.Context, user domain.User) (domain.User, error) {
	row := r.db.QueryRow(ctx, insertUserSQL, user.ID, user.TenantID, user.Email, user.PasswordHash, string(user.Role))
	created, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.User{}, domain.NewConflict("email %q already registered", user.Email)
		}
		return domain.User{}, internal("create user", err)
	}
	return created, nil
}

const selectUserByEmailSQL = `SELECT id, tenant_id, email, password_hash, role, created_at
FROM users WHERE email = $1`

func (r *PostgresUserRepo) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	row := r.db.QueryRow(ctx, selectUserByEmailSQL, email)
	user, err := scanUser(row)
	if err != nil {
		if isNoRows(err) {
			return domain.User{}, domain.NewNotFound("user %q not found", email)
		}
		return domain.User{}, internal("get user by email", err)
	}
	return user, nil
}

const selectUserByIDSQL = `SELECT id, tenant_id, email, password_hash, role, created_at
FROM users WHERE tenant_id = $1 AND id = $2`

func (r *PostgresUserRepo) GetByID(ctx context.Context, tenantID, userID int64) (domain.User, error) {
	row := r.db.QueryRow(ctx, selectUserByIDSQL, tenantID, userID)
	user, err := scanUser(row)
	if err != nil {
		if isNoRows(err) {
			return domain.User{}, domain.NewNotFound("user %d not found", userID)
		}
		return domain.User{}, internal("get user by id", err)
	}
	return user, nil
}

const listUsersSQL = `SELECT id, tenant_id, email, password_hash, role, created_at
FROM users WHERE tenant_id = $1 ORDER BY created_at`

func (r *PostgresUserRepo) List(ctx context.Context, tenantID int64) ([]domain.User, error) {
	rows, err := r.db.Query(ctx, listUsersSQL, tenantID)
	if err != nil {
		return nil, internal("list users", err)
	}
	defer rows.Close()

	users := make([]domain.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, internal("scan user", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, internal("list users", err)
	}
	return users, nil
}

func (r *PostgresUserRepo) Delete(ctx context.Context, tenantID, userID int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM users WHERE tenant_id = $1 AND id = $2`, tenantID, userID)
	if err != nil {
		return internal("delete user", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFound("user %d not found", userID)
	}
	return nil
}

func scanUser(row pgx.Row) (domain.User, error) {
	var user domain.User
	var role string
	if err := row.Scan(&user.ID, &user.TenantID, &user.Email, &user.PasswordHash, &role, &user.CreatedAt); err != nil {
		return domain.User{}, err
	}
	user.Role = domain.Role(role)
	return user, nil
}
