package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"docshare/internal/user/model"
	"docshare/pkg/apperror"
	"docshare/pkg/dbx"
	"docshare/pkg/logger"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, user *model.User) error {
	query :=
		`INSERT INTO users (id, email, username, password_hash, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.db.ExecContext(ctx, query,
		user.ID, user.Email, user.Username, user.PasswordHash, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return fmt.Errorf("%s: %w", dbx.ConstraintName(err), apperror.ErrDuplicate)
		}
		logger.Sugar.Errorf("Failed to create user %s: %v", user.Username, err)
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) FindByLogin(ctx context.Context, login string) (*model.User, error) {
	query :=
		`SELECT id, email, username, password_hash, created_at, updated_at FROM users
		 WHERE email = $1 OR username = $2
		 ORDER BY (email = $1) DESC
		 LIMIT 1`

	return r.scanOne(r.db.QueryRowContext(ctx, query, strings.ToLower(login), login))
}

func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	query :=
		`SELECT id, email, username, password_hash, created_at, updated_at FROM users
		 WHERE email = $1`

	return r.scanOne(r.db.QueryRowContext(ctx, query, strings.ToLower(email)))
}

func (r *PostgresRepository) FindByID(ctx context.Context, id string) (*model.User, error) {
	query :=
		`SELECT id, email, username, password_hash, created_at, updated_at FROM users
		 WHERE id = $1`

	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) scanOne(row *sql.Row) (*model.User, error) {
	u := &model.User{}
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.ErrNotFound
		}
		logger.Sugar.Errorf("Failed to load user: %v", err)
		return nil, fmt.Errorf("db error: %w", err)
	}
	return u, nil
}
