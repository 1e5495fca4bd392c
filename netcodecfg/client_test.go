package netcodecfg

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestClientManagerWritesDefaultOnFirstUse(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client_configuration.json")
	manager, err := NewClientManager(mockValidResolver{path: path})
	if err != nil {
		t.Fatalf("NewClientManager: %v", err)
	}

	if _, statErr := os.Stat(path); statErr != nil {
		t.Fatalf("expected default config file to be written, got: %v", statErr)
	}

	cfg, err := manager.Configuration()
	if err != nil {
		t.Fatalf("Configuration: %v", err)
	}
	if !reflect.DeepEqual(cfg, DefaultClientConfig()) {
		t.Errorf("expected default config %+v, got %+v", DefaultClientConfig(), cfg)
	}
}

func TestClientManagerResolveError(t *testing.T) {
	if _, err := NewClientManager(mockErrorResolver{}); err == nil {
		t.Fatal("expected error from NewClientManager due to resolve failure, got nil")
	}
}
