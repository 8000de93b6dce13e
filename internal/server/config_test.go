package server

import (
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	for _, k := range []string{
		"CK_SYNC_LISTEN_ADDR", "CK_SYNC_DB_PATH", "CK_SYNC_SHUTDOWN_TIMEOUT",
		"CK_SYNC_LOG_FORMAT", "CK_SYNC_LOG_LEVEL", "CK_SYNC_MAX_BODY_BYTES",
	} {
		t.Setenv(k, "")
	}

	cfg := LoadConfig()
	if cfg.ListenAddr != ":8787" {
		t.Errorf("listen addr: got %q", cfg.ListenAddr)
	}
	if cfg.MaxBodyBytes != 4<<20 {
		t.Errorf("max body: got %d", cfg.MaxBodyBytes)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("shutdown timeout: got %s", cfg.ShutdownTimeout)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("CK_SYNC_LISTEN_ADDR", "127.0.0.1:9999")
	t.Setenv("CK_SYNC_SHUTDOWN_TIMEOUT", "5s")
	t.Setenv("CK_SYNC_MAX_BODY_BYTES", "1024")

	cfg := LoadConfig()
	if cfg.ListenAddr != "127.0.0.1:9999" {
		t.Errorf("listen addr: got %q", cfg.ListenAddr)
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Errorf("shutdown timeout: got %s", cfg.ShutdownTimeout)
	}
	if cfg.MaxBodyBytes != 1024 {
		t.Errorf("max body: got %d", cfg.MaxBodyBytes)
	}
}

func TestLoadConfig_BadMaxBodyBytesIgnored(t *testing.T) {
	t.Setenv("CK_SYNC_MAX_BODY_BYTES", "not-a-number")
	if got := LoadConfig().MaxBodyBytes; got != 4<<20 {
		t.Errorf("max body: got %d, want default", got)
	}
}
