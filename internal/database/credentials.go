package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"dyndnsd/internal/model"
)

const credentialColumns = "id, zone_id, bulk_id, api_key, update_url, description, domains, enabled, created_at, updated_at"

func (s *Store) scanCredential(row interface{ Scan(...any) error }) (*model.Credential, error) {
	c := &model.Credential{}
	var updateURL, description sql.NullString
	var domainsJSON []byte
	if err := row.Scan(&c.ID, &c.ZoneID, &c.BulkID, &c.APIKey, &updateURL,
		&description, &domainsJSON, &c.Enabled, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.UpdateURL = updateURL.String
	c.Description = description.String
	if len(domainsJSON) > 0 {
		if err := json.Unmarshal(domainsJSON, &c.Domains); err != nil {
			return nil, fmt.Errorf("decode credential domains: %w", err)
		}
	}
	return c, nil
}

// decryptCredential replaces the stored ciphertext with the plaintext
// secret. A decryption failure makes the credential read as absent so
// callers treat the zone as unconfigured instead of using a garbled
// secret.
func (s *Store) decryptCredential(c *model.Credential) *model.Credential {
	plaintext, err := s.vault.Decrypt(c.APIKey)
	if err != nil {
		s.log.Error(err, "failed to decrypt credential secret", "zone_id", c.ZoneID, "bulk_id", c.BulkID)
		return nil
	}
	c.APIKey = plaintext
	return c
}

func (s *Store) getCredential(ctx context.Context, query string, arg any) (*model.Credential, error) {
	var cred *model.Credential
	err := s.withConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		c, err := s.scanCredential(conn.QueryRowContext(ctx, query, arg))
		cred = c
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.decryptCredential(cred), nil
}

func (s *Store) GetCredentialByZone(ctx context.Context, zoneID int64) (*model.Credential, error) {
	return s.getCredential(ctx,
		"SELECT "+credentialColumns+" FROM dyndns_config WHERE zone_id = $1", zoneID)
}

func (s *Store) GetCredentialByBulkID(ctx context.Context, bulkID string) (*model.Credential, error) {
	return s.getCredential(ctx,
		"SELECT "+credentialColumns+" FROM dyndns_config WHERE bulk_id = $1", bulkID)
}

// SetCredential inserts or replaces a zone's credential, encrypting
// the secret before it reaches the database.
func (s *Store) SetCredential(ctx context.Context, cred model.Credential) error {
	encrypted, err := s.vault.Encrypt(cred.APIKey)
	if err != nil {
		return fmt.Errorf("encrypt credential secret: %w", err)
	}

	if cred.Domains == nil {
		cred.Domains = []string{}
	}
	domainsJSON, err := json.Marshal(cred.Domains)
	if err != nil {
		return fmt.Errorf("encode credential domains: %w", err)
	}

	return s.exec(ctx,
		`INSERT INTO dyndns_config (zone_id, bulk_id, api_key, update_url, description, domains, enabled)
		 VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7)
		 ON CONFLICT (zone_id) DO UPDATE
		 SET bulk_id = $2, api_key = $3, update_url = NULLIF($4, ''),
		     description = NULLIF($5, ''), domains = $6, enabled = $7, updated_at = NOW()`,
		cred.ZoneID, cred.BulkID, encrypted, cred.UpdateURL, cred.Description,
		domainsJSON, cred.Enabled,
	)
}

func (s *Store) SetCredentialEnabled(ctx context.Context, zoneID int64, enabled bool) error {
	return s.exec(ctx,
		"UPDATE dyndns_config SET enabled = $1, updated_at = NOW() WHERE zone_id = $2",
		enabled, zoneID)
}

func (s *Store) DeleteCredential(ctx context.Context, zoneID int64) error {
	return s.exec(ctx, "DELETE FROM dyndns_config WHERE zone_id = $1", zoneID)
}
