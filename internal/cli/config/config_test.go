package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sample = `
baseURL: http://localhost:8080
jwtSecret: local
profiles:
  staging:
    baseURL: https://judge.staging.example
    timeout: 30s
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "judgectl.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadProfiles(t *testing.T) {
	path := writeConfig(t, sample)

	tests := []struct {
		name    string
		profile string
		base    string
		timeout time.Duration
		wantErr string
	}{
		{name: "default", base: "http://localhost:8080", timeout: DefaultTimeout},
		{name: "staging", profile: "staging", base: "https://judge.staging.example", timeout: 30 * time.Second},
		{name: "unknown", profile: "prod", wantErr: "known: staging"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg, err := Load(path, tt.profile)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if cfg.BaseURL != tt.base || cfg.Timeout != tt.timeout {
				t.Fatalf("unexpected config %+v", cfg)
			}
			if cfg.JWTSecret != "local" {
				t.Fatalf("profile without a secret should keep the top level one")
			}
		})
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"), "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BaseURL != DefaultBaseURL || cfg.TokenStatePath != DefaultTokenStatePath || cfg.WatchInterval != DefaultWatchInterval {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestValidateBaseURL(t *testing.T) {
	for _, ok := range []string{"http://127.0.0.1:8080", "https://judge.example"} {
		if err := ValidateBaseURL(ok); err != nil {
			t.Fatalf("%s: %v", ok, err)
		}
	}
	for _, bad := range []string{"127.0.0.1:8080", "ftp://judge", "http://"} {
		if err := ValidateBaseURL(bad); err == nil {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}
