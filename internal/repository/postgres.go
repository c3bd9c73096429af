package repository

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/voxline/voxline-agents/internal/domain"
)

// Compile-time interface assertions.
var (
	_ UserRepository        = (*PostgresUserRepo)(nil)
	_ AgentRepository       = (*PostgresAgentRepo)(nil)
	_ PhoneNumberRepository = (*PostgresPhoneNumberRepo)(nil)
	_ FolderRepository      = (*PostgresFolderRepo)(nil)
	_ KeyRepository         = (*PostgresKeyRepo)(nil)
)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func internal(op string, err error) error {
	return domain.NewInternal(fmt.Errorf("%s: %w", op, err))
}
