package database

import (
	"context"
	"database/sql"
	"time"

	"dyndnsd/internal/model"
)

// MarkRecordSynced persists the outcome of a confirmed provider
// update in one transaction: new IP with a change bump, a success
// entry in the update history and sync_status back to synced.
func (s *Store) MarkRecordSynced(ctx context.Context, recordID int64, oldIP, newIP string, syncedAt time.Time) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO ip_addresses (record_id, ip_address)
			 VALUES ($1, $2)
			 ON CONFLICT (record_id) DO UPDATE
			 SET ip_address = $2, last_checked_at = NOW(), last_changed_at = NOW()`,
			recordID, newIP); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO dns_updates (record_id, old_ip, new_ip, status)
			 VALUES ($1, NULLIF($2, ''), $3, $4)`,
			recordID, oldIP, newIP, model.UpdateStatusSuccess); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE records SET sync_status = $1, last_synced_at = $2, updated_at = NOW() WHERE id = $3`,
			model.SyncStatusSynced, syncedAt, recordID)
		return err
	})
}

// MarkRecordOrphaned records a provider-confirmed absence in one
// transaction: provider ID cleared, status orphaned and a failure
// entry in the update history. The record stays for recreation on a
// later cycle.
func (s *Store) MarkRecordOrphaned(ctx context.Context, recordID int64, oldIP, newIP, reason string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE records SET provider_record_id = NULL, sync_status = $1, updated_at = NOW() WHERE id = $2`,
			model.SyncStatusOrphaned, recordID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO dns_updates (record_id, old_ip, new_ip, status, error_message)
			 VALUES ($1, NULLIF($2, ''), $3, $4, $5)`,
			recordID, oldIP, newIP, model.UpdateStatusFailed, reason)
		return err
	})
}
