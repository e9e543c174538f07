package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTempFile(t, `
environment: test
storage:
  type: memory
vendors:
  - id: 1
    name: quandl_wiki
    source: quandl_wiki
    weight: 3
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 10*time.Second {
		t.Errorf("Server.ReadTimeout = %v, want 10s", cfg.Server.ReadTimeout)
	}
	if cfg.Validator.Workers != 4 {
		t.Errorf("Validator.Workers = %d, want 4", cfg.Validator.Workers)
	}
	if cfg.Validator.PricePrecision == nil || *cfg.Validator.PricePrecision != 6 {
		t.Errorf("Validator.PricePrecision = %v, want 6", cfg.Validator.PricePrecision)
	}
	if cfg.Validator.DeleteRetry.MaxAttempts != 5 {
		t.Errorf("Validator.DeleteRetry.MaxAttempts = %d, want 5", cfg.Validator.DeleteRetry.MaxAttempts)
	}
	if cfg.Symbology.ActivityWindowDays != 730 {
		t.Errorf("Symbology.ActivityWindowDays = %d, want 730", cfg.Symbology.ActivityWindowDays)
	}
	if cfg.Symbology.SyntheticMin != 1_000_000 || cfg.Symbology.SyntheticMax != 2_000_000 {
		t.Errorf("synthetic range = [%d, %d)", cfg.Symbology.SyntheticMin, cfg.Symbology.SyntheticMax)
	}
	if len(cfg.Symbology.Sources) != len(DefaultSources()) {
		t.Errorf("Symbology.Sources = %d entries, want defaults", len(cfg.Symbology.Sources))
	}
	if len(cfg.Exchanges) == 0 {
		t.Error("Exchanges should default to the canonical table")
	}
	v, ok := cfg.Vendor("quandl_wiki")
	if !ok {
		t.Fatal("vendor quandl_wiki not found")
	}
	if v.Weight == nil || *v.Weight != 3 {
		t.Errorf("vendor weight = %v, want 3", v.Weight)
	}
	if v.Calls != 2000 || v.Period != 10*time.Minute {
		t.Errorf("vendor rate = %d/%v, want 2000/10m", v.Calls, v.Period)
	}
	yahoo, ok := cfg.Source("yahoo")
	if !ok || len(yahoo.Suffixes) == 0 {
		t.Error("yahoo source should carry the default suffix table")
	}
}

func TestLoadKeepsZeroPrecision(t *testing.T) {
	path := writeTempFile(t, `
storage:
  type: memory
validator:
  price_precision: 0
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Validator.PricePrecision == nil || *cfg.Validator.PricePrecision != 0 {
		t.Errorf("Validator.PricePrecision = %v, want 0", cfg.Validator.PricePrecision)
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	path := writeTempFile(t, "environment: test\n")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("VALIDATOR_WORKERS", "8")
	t.Setenv("STORAGE_TYPE", "memory")

	cfg, err := LoadWithEnv(path)
	if err != nil {
		t.Fatalf("LoadWithEnv failed: %v", err)
	}
	if !cfg.Kafka.Enabled || len(cfg.Kafka.Brokers) != 2 {
		t.Errorf("Kafka = %+v, want enabled with 2 brokers", cfg.Kafka.Brokers)
	}
	if cfg.Validator.Workers != 8 {
		t.Errorf("Validator.Workers = %d, want 8", cfg.Validator.Workers)
	}
	if cfg.Storage.Type != "memory" {
		t.Errorf("Storage.Type = %q, want memory", cfg.Storage.Type)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "bad storage type",
			yaml:    "storage:\n  type: mongo\n",
			wantErr: "Type",
		},
		{
			name: "vendor uses consensus id",
			yaml: `
consensus:
  vendor_id: 7
vendors:
  - id: 7
    name: yahoo
`,
			wantErr: "reserved consensus id",
		},
		{
			name: "duplicate vendor id",
			yaml: `
vendors:
  - id: 1
    name: a
  - id: 1
    name: b
`,
			wantErr: "used by both",
		},
		{
			name: "unknown allow list",
			yaml: `
symbology:
  sources:
    - name: x
      rule: ticker
      allow_list: nowhere
`,
			wantErr: "unknown allow_list",
		},
		{
			name: "exchange qualified without column",
			yaml: `
symbology:
  sources:
    - name: x
      rule: exchange_qualified
`,
			wantErr: "column is required",
		},
		{
			name: "unknown rule",
			yaml: `
symbology:
  sources:
    - name: x
      rule: regex
`,
			wantErr: "Rule",
		},
		{
			name:    "inverted synthetic range",
			yaml:    "symbology:\n  synthetic_min: 5\n  synthetic_max: 4\n",
			wantErr: "synthetic_min",
		},
		{
			name:    "kafka without brokers",
			yaml:    "kafka:\n  enabled: true\n",
			wantErr: "kafka.brokers",
		},
		{
			name:    "pipeline unknown vendor",
			yaml:    "pipeline:\n  vendors: [nobody]\n",
			wantErr: "unknown vendor",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}
