package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/arenax/settlement-engine/internal/model"
)

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Guard.CooldownMs != 120_000 {
		t.Errorf("cooldown = %d, want 120000", cfg.Guard.CooldownMs)
	}
	if cfg.Guard.VelocityThreshold != 50_000 {
		t.Errorf("velocity threshold = %d, want 50000", cfg.Guard.VelocityThreshold)
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engine.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
min_payout = 5

[guard]
cooldown_ms = 30000
velocity_threshold = 25000

[house_rates]
DAILY = "0.15"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.MinPayout != 5 {
		t.Errorf("min_payout = %d, want 5", cfg.MinPayout)
	}
	if cfg.Guard.CooldownMs != 30_000 || cfg.Guard.VelocityThreshold != 25_000 {
		t.Errorf("guard = %+v, want 30000/25000", cfg.Guard)
	}
	if !cfg.HouseRates[model.TypeDaily].Equal(decimal.NewFromFloat(0.15)) {
		t.Errorf("daily house rate = %s, want 0.15", cfg.HouseRates[model.TypeDaily])
	}
	// Untouched keys keep their defaults.
	if !cfg.HouseRates[model.TypeWeekly].Equal(decimal.NewFromFloat(0.08)) {
		t.Errorf("weekly house rate = %s, want default 0.08", cfg.HouseRates[model.TypeWeekly])
	}
	if len(cfg.Tiers) != 5 {
		t.Errorf("tiers = %d, want default 5", len(cfg.Tiers))
	}
}

func TestLoadRejectsInvalidOverride(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "house rate at or above one",
			body: "[house_rates]\nDAILY = \"1.0\"\n",
			want: "house rate",
		},
		{
			name: "zero cooldown",
			body: "[guard]\ncooldown_ms = 0\n",
			want: "cooldown_ms",
		},
		{
			name: "tier gap",
			body: `
[[tiers]]
name = "SMALL"
min = 10
max = 20

[[tiers]]
name = "BIG"
min = 30
max = 100
`,
			want: "gap or overlap",
		},
		{
			name: "percentile bands not ending at 100",
			body: `
[[percentile_bands]]
max = 10
percent = 50
label = "TOP_10"

[[percentile_bands]]
max = 40
percent = 50
label = "TOP_40"
`,
			want: "end at 100",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil {
				t.Fatal("invalid config accepted")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/engine.toml"); err == nil {
		t.Fatal("missing file accepted")
	}
}
