package netcodecfg

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ClientConfig is the on-disk shape of a client's configuration: where to
// find the connect token it was handed out of band, and timing overrides.
type ClientConfig struct {
	ConnectTokenPath     string        `json:"ConnectTokenPath"`
	OverallTimeout       time.Duration `json:"OverallTimeout"`
	PerAttemptTimeout    time.Duration `json:"PerAttemptTimeout"`
}

// DefaultClientConfig returns the configuration a fresh install writes out.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		ConnectTokenPath:  "connect_token.bin",
		OverallTimeout:    10 * time.Second,
		PerAttemptTimeout: 5 * time.Second,
	}
}

// DefaultClientResolver mirrors DefaultServerResolver for the client side.
type DefaultClientResolver struct{}

func (DefaultClientResolver) Resolve() (string, error) {
	return filepath.Join(string(os.PathSeparator), "etc", "netcode", "client_configuration.json"), nil
}

// ClientConfigManager loads and persists a client's configuration.
type ClientConfigManager interface {
	Configuration() (*ClientConfig, error)
}

// ClientManager is the concrete ClientConfigManager.
type ClientManager struct {
	path string
}

// NewClientManager resolves the configuration path, writing a default file
// on first use.
func NewClientManager(resolver Resolver) (*ClientManager, error) {
	path, err := resolver.Resolve()
	if err != nil {
		return nil, fmt.Errorf("netcodecfg: resolving path: %w", err)
	}

	m := &ClientManager{path: path}

	if _, statErr := os.Stat(path); statErr != nil {
		jsonContent, marshalErr := json.MarshalIndent(DefaultClientConfig(), "", "\t")
		if marshalErr != nil {
			return nil, marshalErr
		}
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, err
		}
		if err := os.WriteFile(path, jsonContent, 0600); err != nil {
			return nil, fmt.Errorf("netcodecfg: writing default config: %w", err)
		}
	}

	return m, nil
}

func (m *ClientManager) Configuration() (*ClientConfig, error) {
	fileBytes, err := os.ReadFile(m.path)
	if err != nil {
		return nil, fmt.Errorf("netcodecfg: reading %s: %w", m.path, err)
	}
	var cfg ClientConfig
	if err := json.Unmarshal(fileBytes, &cfg); err != nil {
		return nil, fmt.Errorf("netcodecfg: parsing %s: %w", m.path, err)
	}
	return &cfg, nil
}
