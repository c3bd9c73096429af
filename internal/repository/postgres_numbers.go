package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voxline/voxline-agents/internal/domain"
)

// PostgresPhoneNumberRepo implements PhoneNumberRepository over pgx.
type PostgresPhoneNumberRepo struct {
	db *pgxpool.Pool
}

func NewPostgresPhoneNumberRepo(pool *pgxpool.Pool) *PostgresPhoneNumberRepo {
	return &PostgresPhoneNumberRepo{db: pool}
}

const numberColumns = `id, tenant_id, number, description, is_available, agent_id, assigned_role, webhook_url, created_at, updated_at`

const insertNumberSQL = `INSERT INTO phone_numbers (id, tenant_id, number, description, is_available)
VALUES ($1, $2, $3, $4, true)
RETURNING ` + numberColumns

func (r *PostgresPhoneNumberRepo) Create(ctx context.Context, number domain.PhoneNumber) (domain.PhoneNumber, error) {
	row := r.db.QueryRow(ctx, insertNumberSQL, number.ID, number.TenantID, number.Number, number.Description)
	created, err := scanNumber(row)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.PhoneNumber{}, domain.NewConflict("number %q already exists", number.Number)
		}
		return domain.PhoneNumber{}, internal("create phone number", err)
	}
	return created, nil
}

const selectNumberSQL = `SELECT ` + numberColumns + ` FROM phone_numbers WHERE tenant_id = $1 AND id = $2`

func (r *PostgresPhoneNumberRepo) Get(ctx context.Context, tenantID, id int64) (domain.PhoneNumber, error) {
	row := r.db.QueryRow(ctx, selectNumberSQL, tenantID, id)
	number, err := scanNumber(row)
	if err != nil {
		if isNoRows(err) {
			return domain.PhoneNumber{}, domain.NewNotFound("phone number %d not found", id)
		}
		return domain.PhoneNumber{}, internal("get phone number", err)
	}
	return number, nil
}

const listNumbersSQL = `SELECT ` + numberColumns + ` FROM phone_numbers WHERE tenant_id = $1 ORDER BY number`

func (r *PostgresPhoneNumberRepo) List(ctx context.Context, tenantID int64) ([]domain.PhoneNumber, error) {
	return r.queryNumbers(ctx, listNumbersSQL, tenantID)
}

const listNumbersByAgentSQL = `SELECT ` + numberColumns + ` FROM phone_numbers WHERE agent_id = $1 ORDER BY number`

func (r *PostgresPhoneNumberRepo) ListByAgent(ctx context.Context, agentID int64) ([]domain.PhoneNumber, error) {
	return r.queryNumbers(ctx, listNumbersByAgentSQL, agentID)
}

func (r *PostgresPhoneNumberRepo) queryNumbers(ctx context.Context, sql string, arg any) ([]domain.PhoneNumber, error) {
	rows, err := r.db.Query(ctx, sql, arg)
	if err != nil {
		return nil, internal("list phone numbers", err)
	}
	defer rows.Close()

	numbers := make([]domain.PhoneNumber, 0)
	for rows.Next() {
		number, err := scanNumber(rows)
		if err != nil {
			return nil, internal("scan phone number", err)
		}
		numbers = append(numbers, number)
	}
	if err := rows.Err(); err != nil {
		return nil, internal("list phone numbers", err)
	}
	return numbers, nil
}

// Bound numbers cannot be deleted; the guard lives in the statement so the
// check and the delete act on the same row version.
const deleteNumberSQL = `DELETE FROM phone_numbers WHERE tenant_id = $1 AND id = $2 AND is_available = true`

func (r *PostgresPhoneNumberRepo) Delete(ctx context.Context, tenantID, id int64) error {
	tag, err := r.db.Exec(ctx, deleteNumberSQL, tenantID, id)
	if err != nil {
		return internal("delete phone number", err)
	}
	if tag.RowsAffected() == 0 {
		number, getErr := r.Get(ctx, tenantID, id)
		if getErr != nil {
			return getErr
		}
		return numberConflict(number)
	}
	return nil
}

// assignNumberSQL is the compare-and-swap the exclusivity invariant rests
// on: the row is taken only if it is free or already held by the same
// agent, in a single statement.
const assignNumberSQL = `UPDATE phone_numbers SET
is_available = false, agent_id = $3, assigned_role = $4, webhook_url = $5, updated_at = now()
WHERE tenant_id = $1 AND id = $2 AND (is_available = true OR agent_id = $3)
RETURNING ` + numberColumns

// releaseRoleSQL frees any other number holding the same role for the
// agent, keeping at most one binding per (agent, role).
const releaseRoleSQL = `UPDATE phone_numbers SET
is_available = true, agent_id = NULL, assigned_role = NULL, webhook_url = NULL, updated_at = now()
WHERE agent_id = $1 AND assigned_role = $2 AND id <> $3`

// Assign commits the role release and the bind in one transaction so a
// reader never observes two numbers holding the same role for an agent,
// and a failure leaves the previous binding intact.
func (r *PostgresPhoneNumberRepo) Assign(ctx context.Context, tenantID, numberID, agentID int64, role domain.NumberRole, webhookURL string) (domain.PhoneNumber, error) {
	var number domain.PhoneNumber
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, releaseRoleSQL, agentID, string(role), numberID); err != nil {
			return internal("release role binding", err)
		}
		row := tx.QueryRow(ctx, assignNumberSQL, tenantID, numberID, agentID, string(role), webhookURL)
		scanned, err := scanNumber(row)
		if err != nil {
			if isNoRows(err) {
				current, getErr := scanNumber(tx.QueryRow(ctx, selectNumberSQL, tenantID, numberID))
				if getErr != nil {
					if isNoRows(getErr) {
						return domain.NewNotFound("phone number %d not found", numberID)
					}
					return internal("get phone number", getErr)
				}
				return numberConflict(current)
			}
			return internal("assign phone number", err)
		}
		number = scanned
		return nil
	})
	if err != nil {
		return domain.PhoneNumber{}, err
	}
	return number, nil
}

// numberConflict reports why a guarded statement matched no rows. The row
// can be released between that statement and the re-read, so the holder
// may already be gone.
func numberConflict(number domain.PhoneNumber) error {
	if number.AgentID != nil {
		return domain.NewConflict("number %q is bound to agent %d", number.Number, *number.AgentID)
	}
	return domain.NewConflict("number %q changed concurrently", number.Number)
}

const releaseNumberSQL = `UPDATE phone_numbers SET
is_available = true, agent_id = NULL, assigned_role = NULL, webhook_url = NULL, updated_at = now()
WHERE id = $1`

func (r *PostgresPhoneNumberRepo) Release(ctx context.Context, numberID int64) error {
	if _, err := r.db.Exec(ctx, releaseNumberSQL, numberID); err != nil {
		return internal("release phone number", err)
	}
	return nil
}

const releaseAllSQL = `UPDATE phone_numbers SET
is_available = true, agent_id = NULL, assigned_role = NULL, webhook_url = NULL, updated_at = now()
WHERE agent_id = $1`

func (r *PostgresPhoneNumberRepo) ReleaseAll(ctx context.Context, agentID int64) error {
	if _, err := r.db.Exec(ctx, releaseAllSQL, agentID); err != nil {
		return internal("release agent phone numbers", err)
	}
	return nil
}

func scanNumber(row pgx.Row) (domain.PhoneNumber, error) {
	var number domain.PhoneNumber
	var role *string
	if err := row.Scan(
		&number.ID, &number.TenantID, &number.Number, &number.Description, &number.IsAvailable,
		&number.AgentID, &role, &number.WebhookURL, &number.CreatedAt, &number.UpdatedAt,
	); err != nil {
		return domain.PhoneNumber{}, err
	}
	if role != nil {
		r := domain.NumberRole(*role)
		number.AssignedRole = &r
	}
	return number, nil
}
