package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"dyndnsd/internal/model"
	"dyndnsd/internal/provider"
)

// Store is the slice of the persistent store the engine needs. The
// engine only ever works on in-memory copies and writes results back
// through these methods.
type Store interface {
	ListEnabledZones(ctx context.Context) ([]model.Zone, error)
	GetZone(ctx context.Context, id int64) (*model.Zone, error)
	UpdateZone(ctx context.Context, id int64, upd model.ZoneUpdate) error
	ListRecords(ctx context.Context, zoneID int64, enabledOnly bool) ([]model.Record, error)
	GetRecord(ctx context.Context, id int64) (*model.Record, error)
	UpdateRecord(ctx context.Context, id int64, upd model.RecordUpdate) error
	GetIPState(ctx context.Context, recordID int64) (*model.IPState, error)
	SaveIPState(ctx context.Context, recordID int64, address string, changed bool) error
	LogUpdate(ctx context.Context, entry model.UpdateEntry) error
	MarkRecordSynced(ctx context.Context, recordID int64, oldIP, newIP string, syncedAt time.Time) error
	MarkRecordOrphaned(ctx context.Context, recordID int64, oldIP, newIP, reason string) error
	GetCredentialByZone(ctx context.Context, zoneID int64) (*model.Credential, error)
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
	Close() error
}

// Provider is the remote DNS API surface the engine converges against.
type Provider interface {
	Zones(ctx context.Context) ([]provider.Zone, error)
	ZoneRecords(ctx context.Context, zoneID string) ([]provider.Record, error)
	CreateRecords(ctx context.Context, zoneID string, specs []provider.RecordSpec) error
	UpdateRecord(ctx context.Context, zoneID, recordID, content string, ttl int) error
	DeleteRecord(ctx context.Context, zoneID, recordID string) error
}

// Probe detects current public addresses; either may be absent.
type Probe interface {
	Detect(ctx context.Context) (ipv4, ipv6 string, err error)
}

// ClientFactory builds a provider client from a zone's credential.
type ClientFactory func(cred *model.Credential) Provider

const (
	settingLastIPv4 = "last_ipv4"
	settingLastIPv6 = "last_ipv6"
)

// Engine reconciles local desired state against the provider in a
// load, diff, converge, finalize cycle. It is not safe for concurrent
// cycles; scheduled and manual runs must be serialized by the caller.
type Engine struct {
	store      Store
	probe      Probe
	newClient  ClientFactory
	log        logr.Logger
	defaultTTL int

	// Per-zone provider clients, cached so HTTP clients are not
	// rebuilt every call.
	clients map[int64]Provider

	lastIPv4 string
	lastIPv6 string
	loaded   bool
}

type Options struct {
	DefaultTTL int
}

func New(log logr.Logger, store Store, probe Probe, newClient ClientFactory, opts Options) *Engine {
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = 3600
	}
	return &Engine{
		store:      store,
		probe:      probe,
		newClient:  newClient,
		log:        log,
		defaultTTL: opts.DefaultTTL,
		clients:    make(map[int64]Provider),
	}
}

type workRecord struct {
	record      model.Record
	oldIP       string
	newIP       string
	needsUpdate bool
	skip        bool
}

type workZone struct {
	zone    model.Zone
	records []*workRecord
}

type workingSet struct {
	ipv4  string
	ipv6  string
	zones []*workZone
}

// RunCycle executes one reconciliation cycle. It is idempotent: with
// no IP change and no provider drift a second run produces only
// last-checked refreshes. Returns false when the cycle could not
// complete; partially applied record writes from the converge phase
// remain committed.
func (e *Engine) RunCycle(ctx context.Context) bool {
	ws, err := e.load(ctx)
	if err != nil {
		e.log.Error(err, "cycle aborted in load phase")
		return false
	}

	e.diff(ws)

	succeeded, failed, err := e.converge(ctx, ws)
	if err != nil {
		e.log.Error(err, "cycle aborted in converge phase")
		return false
	}
	if succeeded > 0 || failed > 0 {
		e.log.Info("record updates", "succeeded", succeeded, "failed", failed)
	}

	if err := e.finalize(ctx, ws); err != nil {
		e.log.Error(err, "finalize phase failed")
		return false
	}
	return true
}

// ForceReconcile runs a cycle after proactively re-syncing every
// enabled zone's provider identifiers, trading extra API calls for
// stronger consistency when drift is suspected.
func (e *Engine) ForceReconcile(ctx context.Context) bool {
	zones, err := e.store.ListEnabledZones(ctx)
	if err != nil {
		e.log.Error(err, "forced reconciliation failed to list zones")
		return false
	}

	ipv4, ipv6, err := e.probe.Detect(ctx)
	if err != nil {
		e.log.Error(err, "forced reconciliation failed to detect addresses")
		return false
	}

	for i := range zones {
		wz := &workZone{zone: zones[i]}
		if err := e.syncZone(ctx, wz, ipv4, ipv6); err != nil {
			e.log.Error(err, "zone sync failed", "zone", zones[i].Name)
		}
	}
	return e.RunCycle(ctx)
}

// Cleanup releases the store's connections and drops cached clients.
func (e *Engine) Cleanup() {
	e.clients = make(map[int64]Provider)
	if err := e.store.Close(); err != nil {
		e.log.Error(err, "failed to close store")
	}
}

// load detects current addresses and snapshots desired state plus
// cached IP state from the store. Zero detected addresses fails the
// cycle outright.
func (e *Engine) load(ctx context.Context) (*workingSet, error) {
	ipv4, ipv6, err := e.probe.Detect(ctx)
	if err != nil {
		return nil, fmt.Errorf("address detection: %w", err)
	}
	if ipv4 == "" && ipv6 == "" {
		return nil, errors.New("no IP addresses detected, nothing to reconcile")
	}

	if !e.loaded {
		e.lastIPv4, _ = e.store.GetSetting(ctx, settingLastIPv4)
		e.lastIPv6, _ = e.store.GetSetting(ctx, settingLastIPv6)
		e.loaded = true
	}
	if ipv4 != e.lastIPv4 && ipv4 != "" {
		e.log.Info("IPv4 address changed", "from", e.lastIPv4, "to", ipv4)
	}
	if ipv6 != e.lastIPv6 && ipv6 != "" {
		e.log.Info("IPv6 address changed", "from", e.lastIPv6, "to", ipv6)
	}

	zones, err := e.store.ListEnabledZones(ctx)
	if err != nil {
		return nil, fmt.Errorf("load zones: %w", err)
	}

	ws := &workingSet{ipv4: ipv4, ipv6: ipv6}
	for i := range zones {
		wz := &workZone{zone: zones[i]}
		records, err := e.store.ListRecords(ctx, zones[i].ID, true)
		if err != nil {
			return nil, fmt.Errorf("load records for zone %s: %w", zones[i].Name, err)
		}
		for j := range records {
			wr := &workRecord{record: records[j]}
			state, err := e.store.GetIPState(ctx, records[j].ID)
			if err != nil {
				return nil, fmt.Errorf("load IP state for record %s: %w", records[j].Name, err)
			}
			if state != nil {
				wr.oldIP = state.Address
			}
			wz.records = append(wz.records, wr)
		}
		ws.zones = append(ws.zones, wz)
	}
	return ws, nil
}

// diff decides per record whether a provider write is needed. A
// record without a provider ID always needs one: the engine cannot
// trust a mapping it has never confirmed, even if the cached IP
// already matches.
func (e *Engine) diff(ws *workingSet) {
	needed := 0
	total := 0
	for _, wz := range ws.zones {
		for _, wr := range wz.records {
			total++
			switch wr.record.Type {
			case "A":
				wr.newIP = ws.ipv4
			case "AAAA":
				wr.newIP = ws.ipv6
			default:
				e.log.V(1).Info("skipping unmanaged record type", "record", wr.record.Name, "type", wr.record.Type)
				wr.skip = true
				continue
			}
			if wr.newIP == "" {
				e.log.V(1).Info("skipping record, no address detected for family",
					"record", wr.record.Name, "type", wr.record.Type)
				wr.skip = true
				continue
			}

			if wr.record.ProviderRecordID == "" {
				wr.needsUpdate = true
				needed++
				e.log.Info("record missing provider ID, will re-sync and update",
					"record", wr.record.Name, "type", wr.record.Type)
				continue
			}
			if wr.oldIP != wr.newIP {
				wr.needsUpdate = true
				needed++
				e.log.Info("record needs update", "record", wr.record.Name,
					"type", wr.record.Type, "from", wr.oldIP, "to", wr.newIP)
			}
		}
	}
	if needed > 0 {
		e.log.Info("diff complete", "records", total, "need_update", needed)
	}
}

// converge performs zone-level provider-ID sync where needed, then
// the record writes. Each record is isolated: one failure never
// aborts the others.
func (e *Engine) converge(ctx context.Context, ws *workingSet) (succeeded, failed int, err error) {
	for _, wz := range ws.zones {
		if !zoneNeedsSync(wz) {
			continue
		}
		if err := e.syncZone(ctx, wz, ws.ipv4, ws.ipv6); err != nil {
			e.log.Error(err, "zone sync failed", "zone", wz.zone.Name)
			continue
		}
		// Refresh working copies so backfilled provider IDs are seen.
		for _, wr := range wz.records {
			fresh, err := e.store.GetRecord(ctx, wr.record.ID)
			if err != nil {
				return succeeded, failed, fmt.Errorf("refresh record %s: %w", wr.record.Name, err)
			}
			if fresh != nil {
				wr.record = *fresh
			}
		}
	}

	for _, wz := range ws.zones {
		for _, wr := range wz.records {
			if wr.skip {
				continue
			}
			if !wr.needsUpdate {
				// Keep staleness observable without a change bump.
				if err := e.store.SaveIPState(ctx, wr.record.ID, wr.newIP, false); err != nil {
					e.log.Error(err, "failed to refresh last-checked timestamp", "record", wr.record.Name)
				}
				continue
			}
			if e.updateRecord(ctx, wz, wr) {
				succeeded++
			} else {
				failed++
			}
		}
	}
	return succeeded, failed, nil
}

// updateRecord issues one provider update and persists the outcome.
// Reports whether the record converged.
func (e *Engine) updateRecord(ctx context.Context, wz *workZone, wr *workRecord) bool {
	rec := wr.record

	fail := func(reason string) bool {
		e.log.Error(errors.New(reason), "record update failed",
			"zone", wz.zone.Name, "record", rec.Name, "type", rec.Type)
		if err := e.store.LogUpdate(ctx, model.UpdateEntry{
			RecordID:     rec.ID,
			OldIP:        wr.oldIP,
			NewIP:        wr.newIP,
			Status:       model.UpdateStatusFailed,
			ErrorMessage: reason,
		}); err != nil {
			e.log.Error(err, "failed to log update failure", "record", rec.Name)
		}
		return false
	}

	if rec.ProviderRecordID == "" {
		return fail("missing provider record ID after zone sync")
	}
	if wz.zone.ProviderZoneID == "" {
		return fail("zone has no provider zone ID")
	}

	client, err := e.clientForZone(ctx, wz.zone.ID)
	if err != nil {
		return fail(err.Error())
	}

	ttl := rec.TTL
	if ttl <= 0 {
		ttl = e.defaultTTL
	}

	err = client.UpdateRecord(ctx, wz.zone.ProviderZoneID, rec.ProviderRecordID, wr.newIP, ttl)
	switch {
	case err == nil:
		if err := e.store.MarkRecordSynced(ctx, rec.ID, wr.oldIP, wr.newIP, time.Now()); err != nil {
			e.log.Error(err, "failed to persist update result", "record", rec.Name)
			return false
		}
		e.log.Info("record updated", "record", rec.Name, "type", rec.Type,
			"from", wr.oldIP, "to", wr.newIP)
		return true

	case errors.Is(err, provider.ErrRecordNotFound):
		// Provider confirmed absence: orphan it for recreation on a
		// later cycle. Ambiguous failures never reach this branch.
		if storeErr := e.store.MarkRecordOrphaned(ctx, rec.ID, wr.oldIP, wr.newIP, err.Error()); storeErr != nil {
			e.log.Error(storeErr, "failed to mark record orphaned", "record", rec.Name)
			return false
		}
		e.log.Info("record orphaned at provider, will be recreated next cycle",
			"record", rec.Name, "type", rec.Type)
		return false

	default:
		return fail(err.Error())
	}
}

// finalize snapshots detected addresses for the next cycle's change
// detection. Converge-phase writes stay committed even if this fails.
func (e *Engine) finalize(ctx context.Context, ws *workingSet) error {
	if err := e.store.SetSetting(ctx, settingLastIPv4, ws.ipv4); err != nil {
		return fmt.Errorf("save last IPv4: %w", err)
	}
	if err := e.store.SetSetting(ctx, settingLastIPv6, ws.ipv6); err != nil {
		return fmt.Errorf("save last IPv6: %w", err)
	}
	e.lastIPv4 = ws.ipv4
	e.lastIPv6 = ws.ipv6
	return nil
}

func zoneNeedsSync(wz *workZone) bool {
	for _, wr := range wz.records {
		if wr.needsUpdate && wr.record.ProviderRecordID == "" {
			return true
		}
	}
	return false
}

// clientForZone returns the zone's cached provider client, building
// one from the zone's credential on first use.
func (e *Engine) clientForZone(ctx context.Context, zoneID int64) (Provider, error) {
	if client, ok := e.clients[zoneID]; ok {
		return client, nil
	}

	cred, err := e.store.GetCredentialByZone(ctx, zoneID)
	if err != nil {
		return nil, fmt.Errorf("load credential for zone %d: %w", zoneID, err)
	}
	if cred == nil || !cred.Enabled {
		return nil, fmt.Errorf("no usable credential configured for zone %d", zoneID)
	}

	client := e.newClient(cred)
	e.clients[zoneID] = client
	return client, nil
}
