package connection

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/msgr-protocol/msgr-go/pkg/wire"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.HostType != wire.PeerTypeClient {
		t.Fatalf("host type = %v, want CLIENT", cfg.HostType)
	}
	if !cfg.Features.Contains(wire.RequiredFeatures) {
		t.Fatal("default features miss the required set")
	}
	if cfg.KeepAlive.Interval != DefaultKeepAliveInterval {
		t.Fatalf("keepalive interval = %v", cfg.KeepAlive.Interval)
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conn.yaml")
	data := `
entity: store.a
host_type: 2
keepalive:
  interval: 2s
  timeout: 7s
backoff:
  initial: 50ms
  max: 5s
limits:
  max_data_len: 1048576
receive_queue_depth: 16
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Entity != "store.a" || cfg.HostType != wire.PeerTypeStore {
		t.Fatalf("identity not loaded: %+v", cfg)
	}
	if cfg.KeepAlive.Interval != 2*time.Second || cfg.KeepAlive.Timeout != 7*time.Second {
		t.Fatalf("keepalive not loaded: %+v", cfg.KeepAlive)
	}
	if cfg.Backoff.Initial != 50*time.Millisecond || cfg.Backoff.Max != 5*time.Second {
		t.Fatalf("backoff not loaded: %+v", cfg.Backoff)
	}
	if cfg.Limits.MaxDataLen != 1<<20 {
		t.Fatalf("limits not loaded: %+v", cfg.Limits)
	}
	if cfg.ReceiveQueueDepth != 16 {
		t.Fatalf("queue depth = %d", cfg.ReceiveQueueDepth)
	}
	// untouched fields keep their defaults
	if cfg.Features != wire.SupportedFeatures {
		t.Fatalf("features = %#x, want defaults", uint64(cfg.Features))
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
