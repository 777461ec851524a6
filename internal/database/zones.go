package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"dyndnsd/internal/model"
)

const zoneColumns = "id, name, provider_zone_id, enabled, created_at, updated_at"

func scanZone(row interface{ Scan(...any) error }) (*model.Zone, error) {
	z := &model.Zone{}
	var providerZoneID sql.NullString
	if err := row.Scan(&z.ID, &z.Name, &providerZoneID, &z.Enabled, &z.CreatedAt, &z.UpdatedAt); err != nil {
		return nil, err
	}
	z.ProviderZoneID = providerZoneID.String
	return z, nil
}

func (s *Store) GetZone(ctx context.Context, id int64) (*model.Zone, error) {
	var zone *model.Zone
	err := s.withConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		z, err := scanZone(conn.QueryRowContext(ctx,
			"SELECT "+zoneColumns+" FROM zones WHERE id = $1", id))
		zone = z
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return zone, err
}

func (s *Store) GetZoneByName(ctx context.Context, name string) (*model.Zone, error) {
	var zone *model.Zone
	err := s.withConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		z, err := scanZone(conn.QueryRowContext(ctx,
			"SELECT "+zoneColumns+" FROM zones WHERE name = $1", name))
		zone = z
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return zone, err
}

func (s *Store) listZones(ctx context.Context, query string) ([]model.Zone, error) {
	var zones []model.Zone
	err := s.withConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, query)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			z, err := scanZone(rows)
			if err != nil {
				return err
			}
			zones = append(zones, *z)
		}
		return rows.Err()
	})
	return zones, err
}

func (s *Store) ListZones(ctx context.Context) ([]model.Zone, error) {
	return s.listZones(ctx, "SELECT "+zoneColumns+" FROM zones ORDER BY name")
}

func (s *Store) ListEnabledZones(ctx context.Context) ([]model.Zone, error) {
	return s.listZones(ctx, "SELECT "+zoneColumns+" FROM zones WHERE enabled ORDER BY name")
}

func (s *Store) AddZone(ctx context.Context, name, providerZoneID string, enabled bool) (int64, error) {
	var id int64
	err := s.withConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		return conn.QueryRowContext(ctx,
			`INSERT INTO zones (name, provider_zone_id, enabled) VALUES ($1, NULLIF($2, ''), $3) RETURNING id`,
			name, providerZoneID, enabled,
		).Scan(&id)
	})
	return id, err
}

// UpdateZone applies the non-nil fields of upd. Identity columns stay
// untouched unless explicitly listed in ZoneUpdate.
func (s *Store) UpdateZone(ctx context.Context, id int64, upd model.ZoneUpdate) error {
	var sets []string
	var args []any
	add := func(col string, val any) {
		args = append(args, val)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if upd.Name != nil {
		add("name", *upd.Name)
	}
	if upd.ClearProviderZoneID {
		sets = append(sets, "provider_zone_id = NULL")
	} else if upd.ProviderZoneID != nil {
		add("provider_zone_id", *upd.ProviderZoneID)
	}
	if upd.Enabled != nil {
		add("enabled", *upd.Enabled)
	}
	if len(sets) == 0 {
		return nil
	}

	sets = append(sets, "updated_at = NOW()")
	args = append(args, id)
	query := fmt.Sprintf("UPDATE zones SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))
	return s.exec(ctx, query, args...)
}

// DeleteZone removes the zone; records, IP state, update history and
// credentials cascade.
func (s *Store) DeleteZone(ctx context.Context, id int64) error {
	return s.exec(ctx, "DELETE FROM zones WHERE id = $1", id)
}
