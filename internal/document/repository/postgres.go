package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"docshare/internal/document/model"
	"docshare/pkg/apperror"
	"docshare/pkg/dbx"
	"docshare/pkg/logger"
)

const documentColumns = `id, owner_id, title, content, is_public, public_token, locked_by, locked_at, created_at, updated_at`

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, doc *model.Document) error {
	query :=
		`INSERT INTO documents (id, owner_id, title, content, is_public, public_token, locked_by, locked_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.db.ExecContext(ctx, query,
		doc.ID, doc.OwnerID, doc.Title, doc.Content, doc.IsPublic, doc.PublicToken,
		doc.LockedBy, doc.LockedAt, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		logger.Sugar.Errorf("Failed to create document: %v", err)
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) FindByID(ctx context.Context, id string) (*model.Document, error) {
	return r.load(ctx, r.db, id, false)
}

func (r *PostgresRepository) ListByMember(ctx context.Context, userID string) ([]*model.Document, error) {
	query :=
		`SELECT ` + documentColumns + ` FROM documents
		 WHERE owner_id = $1
		    OR id IN (SELECT document_id FROM document_editors WHERE user_id = $1)
		 ORDER BY updated_at DESC, id`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		logger.Sugar.Errorf("Failed to get documents for user %s: %v", userID, err)
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	docs := []*model.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			logger.Sugar.Errorf("Failed to scan document row: %v", err)
			return nil, fmt.Errorf("db error: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return docs, nil
}

func (r *PostgresRepository) FindPublic(ctx context.Context, token string) (*model.Document, error) {
	query :=
		`SELECT ` + documentColumns + ` FROM documents
		 WHERE public_token = $1 AND is_public`

	doc, err := scanDocument(r.db.QueryRowContext(ctx, query, token))
	if err != nil {
		return nil, mapScanError(err, "public document")
	}
	return doc, nil
}

func (r *PostgresRepository) Update(ctx context.Context, id string, fn func(doc *model.Document) error) (*model.Document, error) {
	var updated *model.Document
	err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		doc, err := r.load(ctx, tx, id, true)
		if err != nil {
			return err
		}
		before := append([]string(nil), doc.EditorIDs...)

		if err := fn(doc); err != nil {
			return err
		}
		if err := saveDocument(ctx, tx, doc); err != nil {
			return err
		}
		if err := syncEditors(ctx, tx, doc.ID, before, doc.EditorIDs); err != nil {
			return err
		}
		updated = doc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string, check func(doc *model.Document) error) error {
	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		doc, err := r.load(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if err := check(doc); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id); err != nil {
			logger.Sugar.Errorf("Failed to delete doc %s: %v", id, err)
			return fmt.Errorf("db error: %w", err)
		}
		return nil
	})
}

func (r *PostgresRepository) load(ctx context.Context, q dbx.DBTX, id string, forUpdate bool) (*model.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	doc, err := scanDocument(q.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, mapScanError(err, "document "+id)
	}

	editors, err := loadEditors(ctx, q, id)
	if err != nil {
		return nil, err
	}
	doc.EditorIDs = editors
	return doc, nil
}

func loadEditors(ctx context.Context, q dbx.DBTX, docID string) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT user_id FROM document_editors WHERE document_id = $1 ORDER BY added_at, user_id`, docID)
	if err != nil {
		logger.Sugar.Errorf("Failed to get editors for doc %s: %v", docID, err)
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	editors := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		editors = append(editors, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return editors, nil
}

func saveDocument(ctx context.Context, tx dbx.DBTX, doc *model.Document) error {
	query :=
		`UPDATE documents
		 SET title = $2, content = $3, is_public = $4, public_token = $5,
		     locked_by = $6, locked_at = $7, updated_at = $8
		 WHERE id = $1`

	_, err := tx.ExecContext(ctx, query,
		doc.ID, doc.Title, doc.Content, doc.IsPublic, doc.PublicToken,
		doc.LockedBy, doc.LockedAt, doc.UpdatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return fmt.Errorf("%s: %w", dbx.ConstraintName(err), apperror.ErrDuplicate)
		}
		logger.Sugar.Errorf("Failed to update doc %s: %v", doc.ID, err)
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// syncEditors applies the difference between the loaded and mutated editor
// sets.
func syncEditors(ctx context.Context, tx dbx.DBTX, docID string, before, after []string) error {
	old := make(map[string]bool, len(before))
	for _, id := range before {
		old[id] = true
	}
	keep := make(map[string]bool, len(after))
	for _, id := range after {
		keep[id] = true
		if old[id] {
			continue
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO document_editors (document_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, docID, id)
		if err != nil {
			logger.Sugar.Errorf("Failed to add editor %s to doc %s: %v", id, docID, err)
			return fmt.Errorf("db error: %w", err)
		}
	}
	for _, id := range before {
		if keep[id] {
			continue
		}
		_, err := tx.ExecContext(ctx,
			`DELETE FROM document_editors WHERE document_id = $1 AND user_id = $2`, docID, id)
		if err != nil {
			logger.Sugar.Errorf("Failed to remove editor %s from doc %s: %v", id, docID, err)
			return fmt.Errorf("db error: %w", err)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*model.Document, error) {
	var (
		doc         model.Document
		publicToken sql.NullString
		lockedBy    sql.NullString
		lockedAt    sql.NullTime
	)
	err := row.Scan(&doc.ID, &doc.OwnerID, &doc.Title, &doc.Content, &doc.IsPublic,
		&publicToken, &lockedBy, &lockedAt, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if publicToken.Valid {
		doc.PublicToken = &publicToken.String
	}
	if lockedBy.Valid {
		doc.LockedBy = &lockedBy.String
	}
	if lockedAt.Valid {
		doc.LockedAt = &lockedAt.Time
	}
	return &doc, nil
}

func mapScanError(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperror.NotFound("Not found")
	}
	logger.Sugar.Errorf("Failed to load %s: %v", what, err)
	return fmt.Errorf("db error: %w", err)
}
