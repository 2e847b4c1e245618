package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.MaxConcurrent != 2 {
		t.Errorf("MaxConcurrent = %d, want %d", cfg.MaxConcurrent, 2)
	}
	if cfg.InterDispatchDelayMs != 3000 {
		t.Errorf("InterDispatchDelayMs = %d, want %d", cfg.InterDispatchDelayMs, 3000)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want %d", cfg.MaxRetries, 3)
	}
	if cfg.RateLimitFreeSecs != 30 || cfg.RateLimitPremiumSecs != 10 || cfg.RateLimitVipSecs != 5 {
		t.Errorf("rate limit defaults = %d/%d/%d, want 30/10/5",
			cfg.RateLimitFreeSecs, cfg.RateLimitPremiumSecs, cfg.RateLimitVipSecs)
	}
	if cfg.URLCacheTTLSecs != 1800 {
		t.Errorf("URLCacheTTLSecs = %d, want %d", cfg.URLCacheTTLSecs, 1800)
	}
	if cfg.ProxyMinHealth != 0.5 {
		t.Errorf("ProxyMinHealth = %v, want %v", cfg.ProxyMinHealth, 0.5)
	}
}

func TestLoad_NonExistentFile(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() should not error for missing file: %v", err)
	}
	if cfg.MaxConcurrent != 2 {
		t.Errorf("should return defaults, got MaxConcurrent = %d", cfg.MaxConcurrent)
	}
}

func TestLoad_ValidConfig(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, "settings.json")

	data := `{
		"maxConcurrent": 4,
		"maxRetries": 5,
		"urlCacheTtlSecs": 900
	}`
	os.WriteFile(filePath, []byte(data), 0644)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.MaxConcurrent != 4 {
		t.Errorf("MaxConcurrent = %d, want %d", cfg.MaxConcurrent, 4)
	}
	if cfg.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d, want %d", cfg.MaxRetries, 5)
	}
	if cfg.URLCacheTTLSecs != 900 {
		t.Errorf("URLCacheTTLSecs = %d, want %d", cfg.URLCacheTTLSecs, 900)
	}
}

func TestLoad_CorruptedFile(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, "settings.json")

	os.WriteFile(filePath, []byte("not valid json {{{"), 0644)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() should not error for corrupted file: %v", err)
	}
	if cfg.MaxConcurrent != 2 {
		t.Errorf("corrupted file should return defaults, got MaxConcurrent = %d", cfg.MaxConcurrent)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, "settings.json")

	data := `{"maxConcurrent": 2, "proxyMinHealth": 0.5}`
	os.WriteFile(filePath, []byte(data), 0644)

	t.Setenv("MAX_CONCURRENT", "8")
	t.Setenv("PROXY_MIN_HEALTH", "0.75")
	t.Setenv("DORADURA_DATA_DIR", "/tmp/doradura-data")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.MaxConcurrent != 8 {
		t.Errorf("MaxConcurrent = %d, want %d (env override)", cfg.MaxConcurrent, 8)
	}
	if cfg.ProxyMinHealth != 0.75 {
		t.Errorf("ProxyMinHealth = %v, want %v (env override)", cfg.ProxyMinHealth, 0.75)
	}
	if cfg.DataDir != "/tmp/doradura-data" {
		t.Errorf("DataDir = %q, want %q", cfg.DataDir, "/tmp/doradura-data")
	}
}

func TestLoad_InvalidEnvIntIgnored(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("MAX_CONCURRENT", "not-a-number")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.MaxConcurrent != 2 {
		t.Errorf("an unparsable env override should be ignored, got MaxConcurrent = %d", cfg.MaxConcurrent)
	}
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.filePath = filepath.Join(dir, "settings.json")
	cfg.MaxConcurrent = 9

	if err := cfg.Save(); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	data, err := os.ReadFile(cfg.filePath)
	if err != nil {
		t.Fatalf("failed to read saved file: %v", err)
	}

	var saved Config
	json.Unmarshal(data, &saved)
	if saved.MaxConcurrent != 9 {
		t.Errorf("saved MaxConcurrent = %d, want %d", saved.MaxConcurrent, 9)
	}
}

func TestConfig_ThreadSafety(t *testing.T) {
	cfg := Default()
	cfg.filePath = filepath.Join(t.TempDir(), "settings.json")

	done := make(chan struct{})

	go func() {
		for i := 0; i < 100; i++ {
			cfg.Get()
		}
		close(done)
	}()

	for i := 0; i < 100; i++ {
		cfg.mu.Lock()
		cfg.MaxRetries = i % 5
		cfg.mu.Unlock()
	}

	<-done
}

func TestTimeoutHelpers(t *testing.T) {
	cfg := Default()
	if cfg.MetadataTimeout().Seconds() != 30 {
		t.Errorf("MetadataTimeout() = %v, want 30s", cfg.MetadataTimeout())
	}
	if cfg.InterDispatchDelay().Milliseconds() != 3000 {
		t.Errorf("InterDispatchDelay() = %v, want 3000ms", cfg.InterDispatchDelay())
	}
	if cfg.PollInterval().Milliseconds() != 100 {
		t.Errorf("PollInterval() = %v, want 100ms", cfg.PollInterval())
	}
	if cfg.URLCacheTTL().Seconds() != 1800 {
		t.Errorf("URLCacheTTL() = %v, want 1800s", cfg.URLCacheTTL())
	}
}
