package netcodecfg

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"netcode/netcode/codec"
)

type mockErrorResolver struct{}

func (mockErrorResolver) Resolve() (string, error) { return "", errors.New("resolve error") }

type mockValidResolver struct{ path string }

func (r mockValidResolver) Resolve() (string, error) { return r.path, nil }

func testConfigPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "server_configuration.json")
}

func TestNewManagerResolveError(t *testing.T) {
	if _, err := NewManager(mockErrorResolver{}); err == nil {
		t.Fatal("expected error from NewManager due to resolve failure, got nil")
	}
}

func TestManagerWritesDefaultOnFirstUse(t *testing.T) {
	path := testConfigPath(t)
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected file not to exist before NewManager")
	}

	manager, err := NewManager(mockValidResolver{path: path})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected default config file to be written, got: %v", err)
	}

	cfg, err := manager.Configuration()
	if err != nil {
		t.Fatalf("Configuration: %v", err)
	}
	if !reflect.DeepEqual(cfg, DefaultServerConfig()) {
		t.Errorf("expected default config %+v, got %+v", DefaultServerConfig(), cfg)
	}
}

func TestManagerInjectPrivateKeyPersists(t *testing.T) {
	path := testConfigPath(t)
	manager, err := NewManager(mockValidResolver{path: path})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	var key [codec.KeyBytes]byte
	for i := range key {
		key[i] = byte(i)
	}

	if err := manager.InjectPrivateKey(key); err != nil {
		t.Fatalf("InjectPrivateKey: %v", err)
	}

	cfg, err := manager.Configuration()
	if err != nil {
		t.Fatalf("Configuration: %v", err)
	}
	want := "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"
	if cfg.PrivateKeyHex != want {
		t.Errorf("PrivateKeyHex = %q, want %q", cfg.PrivateKeyHex, want)
	}
}

func TestManagerConfigurationCaches(t *testing.T) {
	path := testConfigPath(t)
	manager, err := NewManager(mockValidResolver{path: path})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	first, err := manager.Configuration()
	if err != nil {
		t.Fatalf("Configuration: %v", err)
	}

	// Mutate the file directly; the cached read should still see the old
	// value until the TTL expires.
	if err := os.WriteFile(path, []byte(`{"ProtocolID":999}`), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	second, err := manager.Configuration()
	if err != nil {
		t.Fatalf("Configuration: %v", err)
	}
	if second.ProtocolID != first.ProtocolID {
		t.Errorf("expected cached ProtocolID %d, got %d", first.ProtocolID, second.ProtocolID)
	}
}
