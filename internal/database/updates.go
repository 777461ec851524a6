package database

import (
	"context"
	"database/sql"

	"dyndnsd/internal/model"
)

// LogUpdate appends one row to the update history. Entries are never
// mutated afterwards; they only disappear when their record is
// hard-deleted.
func (s *Store) LogUpdate(ctx context.Context, entry model.UpdateEntry) error {
	return s.exec(ctx,
		`INSERT INTO dns_updates (record_id, old_ip, new_ip, status, error_message)
		 VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, NULLIF($5, ''))`,
		entry.RecordID, entry.OldIP, entry.NewIP, entry.Status, entry.ErrorMessage,
	)
}

// ListUpdates returns update history newest first. recordID 0 means
// all records.
func (s *Store) ListUpdates(ctx context.Context, recordID int64, limit int) ([]model.UpdateEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT id, record_id, old_ip, new_ip, status, error_message, created_at
	          FROM dns_updates`
	args := []any{limit}
	if recordID != 0 {
		query += " WHERE record_id = $2"
		args = append(args, recordID)
	}
	query += " ORDER BY created_at DESC LIMIT $1"

	var entries []model.UpdateEntry
	err := s.withConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var e model.UpdateEntry
			var oldIP, newIP, errMsg sql.NullString
			if err := rows.Scan(&e.ID, &e.RecordID, &oldIP, &newIP, &e.Status, &errMsg, &e.CreatedAt); err != nil {
				return err
			}
			e.OldIP = oldIP.String
			e.NewIP = newIP.String
			e.ErrorMessage = errMsg.String
			entries = append(entries, e)
		}
		return rows.Err()
	})
	return entries, err
}
