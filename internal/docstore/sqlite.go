package docstore

import (
	"context"
	"database/sql"
	"fmt"
)

// SQLite implements Store on a single documents table.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db}
}

func (s *SQLite) Query(ctx context.Context, recordType string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, record_type, body FROM records WHERE record_type = ? ORDER BY id
	`, recordType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		var r Record
		var body string
		if err := rows.Scan(&r.ID, &r.Type, &body); err != nil {
			return nil, err
		}
		r.Body = []byte(body)
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

func (s *SQLite) BatchUpsert(ctx context.Context, recs []Record) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert tx: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO records (id, record_type, body)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			record_type = excluded.record_type,
			body = excluded.body,
			updated_at = CURRENT_TIMESTAMP
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range recs {
		if r.ID == "" {
			tx.Rollback()
			return fmt.Errorf("upsert %s record with empty id", r.Type)
		}
		if _, err := stmt.ExecContext(ctx, r.ID, r.Type, string(r.Body)); err != nil {
			tx.Rollback()
			return fmt.Errorf("upsert record %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLite) BatchDelete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete tx: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `DELETE FROM records WHERE id = ?`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare delete: %w", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			tx.Rollback()
			return fmt.Errorf("delete record %s: %w", id, err)
		}
	}
	return tx.Commit()
}
