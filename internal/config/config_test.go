package config

import (
	"os"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	os.Unsetenv("FLOWRADAR_THRESHOLDS_WHALE_ORDER_USD")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Thresholds.WhaleOrderUSD != 50_000 {
		t.Errorf("whale threshold = %v, want default 50000", cfg.Thresholds.WhaleOrderUSD)
	}
	if cfg.ListenAddr != ":8000" {
		t.Errorf("listen addr = %q, want default :8000", cfg.ListenAddr)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	os.Setenv("FLOWRADAR_THRESHOLDS_WHALE_ORDER_USD", "75000")
	defer os.Unsetenv("FLOWRADAR_THRESHOLDS_WHALE_ORDER_USD")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Thresholds.WhaleOrderUSD != 75_000 {
		t.Errorf("whale threshold = %v, want overridden 75000", cfg.Thresholds.WhaleOrderUSD)
	}
}
