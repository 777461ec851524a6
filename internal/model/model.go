package model

import "time"

// SyncStatus tracks how a local record relates to its provider copy.
type SyncStatus string

const (
	SyncStatusSynced    SyncStatus = "synced"
	SyncStatusLocalOnly SyncStatus = "local_only"
	SyncStatusOrphaned  SyncStatus = "orphaned"
	// SyncStatusConflict is reserved for manual conflict resolution and
	// is never assigned by the reconciliation engine.
	SyncStatusConflict SyncStatus = "conflict"
)

const (
	UpdateStatusSuccess = "success"
	UpdateStatusFailed  = "failed"
)

// Zone is a managed root domain. ProviderZoneID is empty until the
// first provider sync resolves it.
type Zone struct {
	ID             int64
	Name           string
	ProviderZoneID string
	Enabled        bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Record is a single A or AAAA entry within a zone, unique per
// (zone, name, type). ProviderRecordID is empty when the provider
// mapping is unknown or lost.
type Record struct {
	ID               int64
	ZoneID           int64
	Name             string
	Type             string
	ProviderRecordID string
	TTL              int
	Enabled          bool
	Managed          bool
	SyncStatus       SyncStatus
	LastSyncedAt     *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IPState is the address last written for a record, at most one row
// per record.
type IPState struct {
	RecordID      int64
	Address       string
	LastCheckedAt time.Time
	LastChangedAt time.Time
}

// UpdateEntry is one row of the append-only update history.
type UpdateEntry struct {
	ID           int64
	RecordID     int64
	OldIP        string
	NewIP        string
	Status       string
	ErrorMessage string
	CreatedAt    time.Time
}

// Credential is the per-zone DynDNS API credential. APIKey is held in
// plaintext only on loaded copies; it is encrypted at rest.
type Credential struct {
	ID          int64
	ZoneID      int64
	BulkID      string
	APIKey      string
	UpdateURL   string
	Description string
	Domains     []string
	Enabled     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ZoneUpdate lists the mutable zone fields. Nil pointers leave the
// column untouched; Clear flags set a nullable column back to NULL.
type ZoneUpdate struct {
	Name                *string
	ProviderZoneID      *string
	ClearProviderZoneID bool
	Enabled             *bool
}

// RecordUpdate lists the mutable record fields. Identity columns
// (zone, name, type) are deliberately not updatable through this path.
type RecordUpdate struct {
	ProviderRecordID      *string
	ClearProviderRecordID bool
	TTL                   *int
	Enabled               *bool
	Managed               *bool
	SyncStatus            *SyncStatus
	LastSyncedAt          *time.Time
}
