package engineconfig

import (
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("DefaultConfig is invalid: %v", err)
	}
}

func TestFromEnvOverridesDefaults(t *testing.T) {
	t.Setenv(EnvCacheDir, "/var/cache/vdfetch")
	t.Setenv(EnvMaxConcurrentChunks, "16")
	t.Setenv(EnvHTTPRetries, "7")
	t.Setenv(EnvHTTPTimeoutMS, "5000")
	t.Setenv(EnvHTTPBackoffMS, "250")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.CacheDir != "/var/cache/vdfetch" {
		t.Errorf("CacheDir = %q, want /var/cache/vdfetch", cfg.CacheDir)
	}
	if cfg.MaxConcurrentChunks != 16 {
		t.Errorf("MaxConcurrentChunks = %d, want 16", cfg.MaxConcurrentChunks)
	}
	if cfg.HTTPRetries != 7 {
		t.Errorf("HTTPRetries = %d, want 7", cfg.HTTPRetries)
	}
	if cfg.HTTPTimeout != 5*time.Second {
		t.Errorf("HTTPTimeout = %v, want 5s", cfg.HTTPTimeout)
	}
	if cfg.HTTPBackoff != 250*time.Millisecond {
		t.Errorf("HTTPBackoff = %v, want 250ms", cfg.HTTPBackoff)
	}
}

func TestFromEnvLeavesUnsetFieldsDefault(t *testing.T) {
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	def := DefaultConfig()
	if cfg.CloseDrainTimeout != def.CloseDrainTimeout {
		t.Errorf("CloseDrainTimeout = %v, want default %v", cfg.CloseDrainTimeout, def.CloseDrainTimeout)
	}
}

func TestFromEnvRejectsMalformedInt(t *testing.T) {
	t.Setenv(EnvMaxConcurrentChunks, "not-a-number")
	if _, err := FromEnv(); err == nil {
		t.Fatal("FromEnv accepted a malformed integer")
	}
}

func TestValidateRejectsBadFields(t *testing.T) {
	cases := []func(*Config){
		func(c *Config) { c.CacheDir = "" },
		func(c *Config) { c.MaxConcurrentChunks = 0 },
		func(c *Config) { c.HTTPRetries = -1 },
		func(c *Config) { c.HTTPTimeout = 0 },
		func(c *Config) { c.HTTPBackoff = 0 },
		func(c *Config) { c.HTTPMaxBackoff = time.Millisecond; c.HTTPBackoff = time.Second },
	}
	for i, mutate := range cases {
		cfg := DefaultConfig()
		mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("case %d: Validate accepted invalid config %+v", i, cfg)
		}
	}
}
