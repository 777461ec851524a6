package database

import (
	"context"
	"database/sql"
	"errors"

	"dyndnsd/internal/model"
)

func (s *Store) GetIPState(ctx context.Context, recordID int64) (*model.IPState, error) {
	st := &model.IPState{}
	err := s.withConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		return conn.QueryRowContext(ctx,
			`SELECT record_id, ip_address, last_checked_at, last_changed_at
			 FROM ip_addresses WHERE record_id = $1`, recordID,
		).Scan(&st.RecordID, &st.Address, &st.LastCheckedAt, &st.LastChangedAt)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return st, nil
}

// SaveIPState upserts the single IP row for a record. last_checked_at
// is always refreshed; last_changed_at is bumped only when changed is
// set, so unchanged cycles stay observable without faking changes.
func (s *Store) SaveIPState(ctx context.Context, recordID int64, address string, changed bool) error {
	if changed {
		return s.exec(ctx,
			`INSERT INTO ip_addresses (record_id, ip_address)
			 VALUES ($1, $2)
			 ON CONFLICT (record_id) DO UPDATE
			 SET ip_address = $2, last_checked_at = NOW(), last_changed_at = NOW()`,
			recordID, address)
	}
	return s.exec(ctx,
		`INSERT INTO ip_addresses (record_id, ip_address)
		 VALUES ($1, $2)
		 ON CONFLICT (record_id) DO UPDATE
		 SET ip_address = $2, last_checked_at = NOW()`,
		recordID, address)
}
