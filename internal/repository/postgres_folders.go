package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voxline/voxline-agents/internal/domain"
)

// PostgresFolderRepo implements FolderRepository over pgx.
type PostgresFolderRepo struct {
	db *pgxpool.Pool
}

func NewPostgresFolderRepo(pool *pgxpool.Pool) *PostgresFolderRepo {
	return &PostgresFolderRepo{db: pool}
}

const insertFolderSQL = `INSERT INTO folders (id, tenant_id, name)
VALUES ($1, $2, $3)
RETURNING id, tenant_id, name, created_at`

func (r *PostgresFolderRepo) Create(ctx context.Context, folder domain.Folder) (domain.Folder, error) {
	row := r.db.QueryRow(ctx, insertFolderSQL, folder.ID, folder.TenantID, folder.Name)
	var created domain.Folder
	if err := row.Scan(&created.ID, &created.TenantID, &created.Name, &created.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return domain.Folder{}, domain.NewConflict("folder %q already exists", folder.Name)
		}
		return domain.Folder{}, internal("create folder", err)
	}
	return created, nil
}

func (r *PostgresFolderRepo) List(ctx context.Context, tenantID int64) ([]domain.Folder, error) {
	rows, err := r.db.Query(ctx, `SELECT id, tenant_id, name, created_at FROM folders WHERE tenant_id = $1 ORDER BY name`, tenantID)
	if err != nil {
		return nil, internal("list folders", err)
	}
	defer rows.Close()

	folders := make([]domain.Folder, 0)
	for rows.Next() {
		var folder domain.Folder
		if err := rows.Scan(&folder.ID, &folder.TenantID, &folder.Name, &folder.CreatedAt); err != nil {
			return nil, internal("scan folder", err)
		}
		folders = append(folders, folder)
	}
	if err := rows.Err(); err != nil {
		return nil, internal("list folders", err)
	}
	return folders, nil
}

func (r *PostgresFolderRepo) Delete(ctx context.Context, tenantID, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM folders WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return internal("delete folder", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFound("folder %d not found", id)
	}
	return nil
}
