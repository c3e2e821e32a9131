package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/alfredjeanlab/refguard/internal/model"
	"github.com/alfredjeanlab/refguard/internal/store"
)

// documentColumns is the column list used for SELECT statements on the documents table.
const documentColumns = `id, data, created_at, updated_at`

// uniqueViolation is the SQLSTATE for a unique constraint violation.
const uniqueViolation = "23505"

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func queryInsertDocument(ctx context.Context, db executor, collection string, doc *model.Document) error {
	data, err := encodeFields(doc.Fields)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	_, err = db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`,
		collection, doc.ID, data, now, now,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("insert into %s: %w: %s", collection, store.ErrDuplicateID, doc.ID)
		}
		return err
	}
	doc.CreatedAt, doc.UpdatedAt = now, now
	return nil
}

func queryReplaceDocument(ctx context.Context, db executor, collection string, doc *model.Document) error {
	data, err := encodeFields(doc.Fields)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	res, err := db.ExecContext(ctx, `
		UPDATE documents SET data = $3, updated_at = $4
		WHERE collection = $1 AND id = $2`,
		collection, doc.ID, data, now,
	)
	if err != nil {
		return err
	}
	if err := requireRow(res); err != nil {
		return err
	}
	doc.UpdatedAt = now
	return nil
}

// queryGetDocument returns nil, nil when the row does not exist. With lock
// set the row is selected FOR UPDATE.
func queryGetDocument(ctx context.Context, db executor, collection, id string, lock bool) (*model.Document, error) {
	q := `SELECT ` + documentColumns + ` FROM documents WHERE collection = $1 AND id = $2`
	if lock {
		q += ` FOR UPDATE`
	}
	doc, err := scanDocument(db.QueryRowContext(ctx, q, collection, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func queryDeleteDocument(ctx context.Context, db executor, collection, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM documents WHERE collection = $1 AND id = $2`, collection, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func queryListDocuments(ctx context.Context, db executor, collection string) ([]*model.Document, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE collection = $1 ORDER BY id`, collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDocuments(rows)
}

func queryCollections(ctx context.Context, db executor) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT DISTINCT collection FROM documents ORDER BY collection`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
