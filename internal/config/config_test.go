package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const minimalConfig = `
database:
  dsn: postgres://dyndnsd@localhost/dyndnsd
provider:
  base_url: https://dns.example.net/v1
`

func TestLoad_AppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Database.PoolSize != 5 {
		t.Errorf("expected default pool size 5, got %d", cfg.Database.PoolSize)
	}
	if cfg.Database.AcquireTimeout != 10*time.Second {
		t.Errorf("unexpected acquire timeout %v", cfg.Database.AcquireTimeout)
	}
	if cfg.Encryption.KeyFile != "dyndnsd.key" {
		t.Errorf("unexpected key file %q", cfg.Encryption.KeyFile)
	}
	if !cfg.Network.IPv4Enabled || !cfg.Network.IPv6Enabled {
		t.Error("both IP families should default to enabled")
	}
	if cfg.Daemon.Interval != 60*time.Second {
		t.Errorf("unexpected daemon interval %v", cfg.Daemon.Interval)
	}
	if cfg.DNS.DefaultTTL != 3600 {
		t.Errorf("unexpected default TTL %d", cfg.DNS.DefaultTTL)
	}
}

func TestLoad_Overrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
database:
  dsn: postgres://dyndnsd@localhost/dyndnsd
  pool_size: 12
provider:
  base_url: https://dns.example.net/v1
  timeout: 5s
network:
  ipv6_enabled: false
daemon:
  interval: 5m
dns:
  default_ttl: 300
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Database.PoolSize != 12 {
		t.Errorf("expected pool size 12, got %d", cfg.Database.PoolSize)
	}
	if cfg.Provider.Timeout != 5*time.Second {
		t.Errorf("expected provider timeout 5s, got %v", cfg.Provider.Timeout)
	}
	if cfg.Network.IPv6Enabled {
		t.Error("ipv6_enabled: false was not honored")
	}
	if !cfg.Network.IPv4Enabled {
		t.Error("ipv4_enabled default lost on partial network section")
	}
	if cfg.Daemon.Interval != 5*time.Minute {
		t.Errorf("expected 5m interval, got %v", cfg.Daemon.Interval)
	}
	if cfg.DNS.DefaultTTL != 300 {
		t.Errorf("expected TTL 300, got %d", cfg.DNS.DefaultTTL)
	}
}

func TestLoad_Validation(t *testing.T) {
	cases := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing dsn",
			content: "provider:\n  base_url: https://dns.example.net\n",
			wantErr: "database.dsn",
		},
		{
			name:    "missing base url",
			content: "database:\n  dsn: postgres://localhost/d\n",
			wantErr: "provider.base_url",
		},
		{
			name: "zero pool",
			content: `
database:
  dsn: postgres://localhost/d
  pool_size: -1
provider:
  base_url: https://dns.example.net
`,
			wantErr: "pool_size",
		},
		{
			name: "both families disabled",
			content: minimalConfig + `
network:
  ipv4_enabled: false
  ipv6_enabled: false
`,
			wantErr: "ipv4_enabled",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.content))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error %q does not mention %q", err, tc.wantErr)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	if _, err := Load(writeConfig(t, "database: [not a map")); err == nil {
		t.Fatal("expected parse error")
	}
}
