package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"dyndnsd/internal/model"
)

const recordColumns = "id, zone_id, name, type, provider_record_id, ttl, enabled, managed, sync_status, last_synced_at, created_at, updated_at"

func scanRecord(row interface{ Scan(...any) error }) (*model.Record, error) {
	r := &model.Record{}
	var providerRecordID sql.NullString
	var lastSyncedAt sql.NullTime
	if err := row.Scan(&r.ID, &r.ZoneID, &r.Name, &r.Type, &providerRecordID, &r.TTL,
		&r.Enabled, &r.Managed, &r.SyncStatus, &lastSyncedAt, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.ProviderRecordID = providerRecordID.String
	if lastSyncedAt.Valid {
		t := lastSyncedAt.Time
		r.LastSyncedAt = &t
	}
	return r, nil
}

func (s *Store) GetRecord(ctx context.Context, id int64) (*model.Record, error) {
	var rec *model.Record
	err := s.withConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		r, err := scanRecord(conn.QueryRowContext(ctx,
			"SELECT "+recordColumns+" FROM records WHERE id = $1", id))
		rec = r
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

func (s *Store) GetRecordByNameAndType(ctx context.Context, zoneID int64, name, recordType string) (*model.Record, error) {
	var rec *model.Record
	err := s.withConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		r, err := scanRecord(conn.QueryRowContext(ctx,
			"SELECT "+recordColumns+" FROM records WHERE zone_id = $1 AND name = $2 AND type = $3",
			zoneID, name, recordType))
		rec = r
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

func (s *Store) listRecords(ctx context.Context, query string, args ...any) ([]model.Record, error) {
	var records []model.Record
	err := s.withConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			r, err := scanRecord(rows)
			if err != nil {
				return err
			}
			records = append(records, *r)
		}
		return rows.Err()
	})
	return records, err
}

// ListRecords returns a zone's records; with enabledOnly only those
// the engine actively manages this cycle.
func (s *Store) ListRecords(ctx context.Context, zoneID int64, enabledOnly bool) ([]model.Record, error) {
	query := "SELECT " + recordColumns + " FROM records WHERE zone_id = $1"
	if enabledOnly {
		query += " AND enabled"
	}
	return s.listRecords(ctx, query+" ORDER BY name, type", zoneID)
}

func (s *Store) ListOrphanedRecords(ctx context.Context) ([]model.Record, error) {
	return s.listRecords(ctx,
		"SELECT "+recordColumns+" FROM records WHERE sync_status = $1 ORDER BY zone_id, name",
		model.SyncStatusOrphaned)
}

func (s *Store) AddRecord(ctx context.Context, rec model.Record) (int64, error) {
	if rec.TTL <= 0 {
		rec.TTL = 3600
	}
	if rec.SyncStatus == "" {
		rec.SyncStatus = model.SyncStatusLocalOnly
	}
	var id int64
	err := s.withConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		return conn.QueryRowContext(ctx,
			`INSERT INTO records (zone_id, name, type, provider_record_id, ttl, enabled, managed, sync_status)
			 VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8) RETURNING id`,
			rec.ZoneID, rec.Name, rec.Type, rec.ProviderRecordID, rec.TTL,
			rec.Enabled, rec.Managed, rec.SyncStatus,
		).Scan(&id)
	})
	return id, err
}

// UpdateRecord applies the non-nil fields of upd. The record's zone,
// name and type are identity and cannot be changed here.
func (s *Store) UpdateRecord(ctx context.Context, id int64, upd model.RecordUpdate) error {
	var sets []string
	var args []any
	add := func(col string, val any) {
		args = append(args, val)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if upd.ClearProviderRecordID {
		sets = append(sets, "provider_record_id = NULL")
	} else if upd.ProviderRecordID != nil {
		add("provider_record_id", *upd.ProviderRecordID)
	}
	if upd.TTL != nil {
		add("ttl", *upd.TTL)
	}
	if upd.Enabled != nil {
		add("enabled", *upd.Enabled)
	}
	if upd.Managed != nil {
		add("managed", *upd.Managed)
	}
	if upd.SyncStatus != nil {
		add("sync_status", *upd.SyncStatus)
	}
	if upd.LastSyncedAt != nil {
		add("last_synced_at", *upd.LastSyncedAt)
	}
	if len(sets) == 0 {
		return nil
	}

	sets = append(sets, "updated_at = NOW()")
	args = append(args, id)
	query := fmt.Sprintf("UPDATE records SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))
	return s.exec(ctx, query, args...)
}

// DeleteRecord hard-deletes the record; IP state and update history
// cascade. Disabling a record goes through UpdateRecord instead.
func (s *Store) DeleteRecord(ctx context.Context, id int64) error {
	return s.exec(ctx, "DELETE FROM records WHERE id = $1", id)
}
