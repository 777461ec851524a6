package engine

import (
	"context"
	"errors"
	"fmt"

	"dyndnsd/internal/model"
	"dyndnsd/internal/provider"
)

// DisableRecord deletes the record's remote copy, then clears its
// provider ID and parks it as local_only. The local row is kept for
// its audit history; disabling never hard-deletes.
func (e *Engine) DisableRecord(ctx context.Context, recordID int64) error {
	rec, err := e.store.GetRecord(ctx, recordID)
	if err != nil {
		return fmt.Errorf("load record %d: %w", recordID, err)
	}
	if rec == nil {
		return fmt.Errorf("record %d does not exist", recordID)
	}

	if rec.ProviderRecordID != "" {
		zone, err := e.store.GetZone(ctx, rec.ZoneID)
		if err != nil {
			return fmt.Errorf("load zone %d: %w", rec.ZoneID, err)
		}
		if zone != nil && zone.ProviderZoneID != "" {
			client, err := e.clientForZone(ctx, zone.ID)
			if err != nil {
				return err
			}
			err = client.DeleteRecord(ctx, zone.ProviderZoneID, rec.ProviderRecordID)
			// An already-absent remote copy reaches the same end state.
			if err != nil && !errors.Is(err, provider.ErrRecordNotFound) {
				return fmt.Errorf("delete remote record %s: %w", rec.Name, err)
			}
		}
	}

	disabled := false
	localOnly := model.SyncStatusLocalOnly
	if err := e.store.UpdateRecord(ctx, recordID, model.RecordUpdate{
		Enabled:               &disabled,
		ClearProviderRecordID: true,
		SyncStatus:            &localOnly,
	}); err != nil {
		return fmt.Errorf("persist disable for record %s: %w", rec.Name, err)
	}

	e.log.Info("record disabled", "record", rec.Name, "type", rec.Type)
	return nil
}
