package redis

import (
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	valid := Config{
		Addr:        "localhost:6379",
		DB:          0,
		DialTimeout: 5 * time.Second,
		PingTimeout: 2 * time.Second,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() err=%v", err)
	}

	invalid := valid
	invalid.Addr = ""
	if err := invalid.Validate(); err == nil {
		t.Fatalf("Validate() expected error for empty addr")
	}

	invalid = valid
	invalid.DB = -1
	if err := invalid.Validate(); err == nil {
		t.Fatalf("Validate() expected error for negative db")
	}
}

func TestConfigFromEnv_Defaults(t *testing.T) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv() err=%v", err)
	}
	if cfg.Addr != "localhost:6379" {
		t.Fatalf("Addr=%q, want localhost:6379", cfg.Addr)
	}
	if cfg.DialTimeout != 5*time.Second {
		t.Fatalf("DialTimeout=%v, want 5s", cfg.DialTimeout)
	}
}
