package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/miekg/dns"

	"dyndnsd/internal/model"
	"dyndnsd/internal/provider"
)

// Placeholder content for records created before a real address is
// known for that family. Never written once a real address exists.
const (
	placeholderIPv4 = "0.0.0.0"
	placeholderIPv6 = "::"
)

func matchKey(name, recordType string) string {
	return dns.CanonicalName(name) + "|" + recordType
}

// syncZone reconciles the zone's provider identifiers: resolve and
// persist the provider zone ID, match provider records against local
// ones by canonical name and type, backfill provider record IDs, and
// create-then-refetch any local records the provider does not have.
// This runs before any record write for the zone.
func (e *Engine) syncZone(ctx context.Context, wz *workZone, ipv4, ipv6 string) error {
	client, err := e.clientForZone(ctx, wz.zone.ID)
	if err != nil {
		return err
	}

	providerZones, err := client.Zones(ctx)
	if err != nil {
		return fmt.Errorf("fetch zones: %w", err)
	}

	var providerZoneID string
	for _, pz := range providerZones {
		if dns.CanonicalName(pz.Name) == dns.CanonicalName(wz.zone.Name) {
			providerZoneID = pz.ID
			break
		}
	}
	if providerZoneID == "" {
		return fmt.Errorf("zone %s: %w", wz.zone.Name, provider.ErrZoneNotFound)
	}

	if err := e.store.UpdateZone(ctx, wz.zone.ID, model.ZoneUpdate{ProviderZoneID: &providerZoneID}); err != nil {
		return fmt.Errorf("persist provider zone ID: %w", err)
	}
	wz.zone.ProviderZoneID = providerZoneID

	providerRecords, err := client.ZoneRecords(ctx, providerZoneID)
	if err != nil {
		return fmt.Errorf("fetch zone records: %w", err)
	}

	localRecords, err := e.store.ListRecords(ctx, wz.zone.ID, false)
	if err != nil {
		return fmt.Errorf("load local records: %w", err)
	}

	missing := e.matchRecords(ctx, localRecords, providerRecords)
	e.log.Info("zone provider IDs synced", "zone", wz.zone.Name,
		"matched", len(localRecords)-len(missing), "missing", len(missing))

	if len(missing) == 0 {
		return nil
	}

	specs := buildCreateSpecs(missing, ipv4, ipv6, e.defaultTTL)
	if len(specs) == 0 {
		return nil
	}

	if err := client.CreateRecords(ctx, providerZoneID, specs); err != nil {
		return fmt.Errorf("create missing records: %w", err)
	}
	e.log.Info("created missing records at provider", "zone", wz.zone.Name, "count", len(specs))

	// One refetch to pick up the freshly assigned identifiers.
	providerRecords, err = client.ZoneRecords(ctx, providerZoneID)
	if err != nil {
		return fmt.Errorf("refetch after create: %w", err)
	}
	stillMissing := e.matchRecords(ctx, missing, providerRecords)
	for _, rec := range stillMissing {
		e.log.Info("newly created record still not found at provider",
			"record", rec.Name, "type", rec.Type)
	}
	return nil
}

// matchRecords backfills provider record IDs for every local record
// with a provider counterpart and returns the ones left unmatched.
func (e *Engine) matchRecords(ctx context.Context, local []model.Record, remote []provider.Record) []model.Record {
	index := make(map[string]provider.Record, len(remote))
	for _, pr := range remote {
		index[matchKey(pr.Name, pr.Type)] = pr
	}

	var missing []model.Record
	now := time.Now()
	for _, rec := range local {
		pr, ok := index[matchKey(rec.Name, rec.Type)]
		if !ok {
			missing = append(missing, rec)
			continue
		}
		synced := model.SyncStatusSynced
		providerID := pr.ID
		if err := e.store.UpdateRecord(ctx, rec.ID, model.RecordUpdate{
			ProviderRecordID: &providerID,
			SyncStatus:       &synced,
			LastSyncedAt:     &now,
		}); err != nil {
			e.log.Error(err, "failed to backfill provider record ID", "record", rec.Name)
			missing = append(missing, rec)
		}
	}
	return missing
}

func buildCreateSpecs(records []model.Record, ipv4, ipv6 string, defaultTTL int) []provider.RecordSpec {
	var specs []provider.RecordSpec
	for _, rec := range records {
		var content string
		switch rec.Type {
		case "A":
			content = ipv4
			if content == "" {
				content = placeholderIPv4
			}
		case "AAAA":
			content = ipv6
			if content == "" {
				content = placeholderIPv6
			}
		default:
			continue
		}
		ttl := rec.TTL
		if ttl <= 0 {
			ttl = defaultTTL
		}
		specs = append(specs, provider.RecordSpec{
			Name:     rec.Name,
			Type:     rec.Type,
			Content:  content,
			TTL:      ttl,
			Disabled: !rec.Enabled,
		})
	}
	return specs
}
