// Package netcodecfg provides JSON-backed configuration for the server and
// client binaries: protocol id, private key, bind/dial addresses, and the
// handshake/keep-alive timing knobs the state machines need. It follows the
// resolver -> reader -> manager split the rest of the ecosystem uses for
// on-disk JSON config, with a short-TTL read cache so a busy server does not
// restat its config file on every connection attempt.
package netcodecfg

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"netcode/netcode/codec"
)

// ServerConfig is the on-disk shape of a server's configuration.
type ServerConfig struct {
	ProtocolID         uint64            `json:"ProtocolID"`
	BindAddress        string            `json:"BindAddress"`
	PrivateKeyHex      string            `json:"PrivateKeyHex"`
	MaxClients         int               `json:"MaxClients"`
	KeepAliveInterval  time.Duration     `json:"KeepAliveInterval"`
	ConnectionTimeout  time.Duration     `json:"ConnectionTimeout"`
}

// DefaultServerConfig returns the configuration a fresh install writes out.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ProtocolID:        0x4E455443,
		BindAddress:       "0.0.0.0:40000",
		PrivateKeyHex:     "",
		MaxClients:        256,
		KeepAliveInterval: 100 * time.Millisecond,
		ConnectionTimeout: 5 * time.Second,
	}
}

// Resolver locates the configuration file on disk.
type Resolver interface {
	Resolve() (string, error)
}

// DefaultServerResolver places the config alongside the other ecosystem
// daemons under /etc.
type DefaultServerResolver struct{}

func (DefaultServerResolver) Resolve() (string, error) {
	return filepath.Join(string(os.PathSeparator), "etc", "netcode", "server_configuration.json"), nil
}

type serverReader struct {
	path string
}

func (r serverReader) read() (*ServerConfig, error) {
	fileBytes, err := os.ReadFile(r.path)
	if err != nil {
		return nil, fmt.Errorf("netcodecfg: reading %s: %w", r.path, err)
	}
	var cfg ServerConfig
	if err := json.Unmarshal(fileBytes, &cfg); err != nil {
		return nil, fmt.Errorf("netcodecfg: parsing %s: %w", r.path, err)
	}
	return &cfg, nil
}

type ttlServerReader struct {
	reader         serverReader
	ttl            time.Duration
	cache          *ServerConfig
	cacheExpiresAt time.Time
}

func (t *ttlServerReader) read() (*ServerConfig, error) {
	if t.cache != nil && time.Now().Before(t.cacheExpiresAt) {
		return t.cache, nil
	}
	cfg, err := t.reader.read()
	if err != nil {
		return nil, err
	}
	t.cache = cfg
	t.cacheExpiresAt = time.Now().Add(t.ttl)
	return cfg, nil
}

type serverWriter struct {
	path string
}

func (w serverWriter) write(cfg ServerConfig) error {
	jsonContent, err := json.MarshalIndent(cfg, "", "\t")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(w.path), 0700); err != nil {
		return err
	}
	return os.WriteFile(w.path, jsonContent, 0600)
}

// ServerConfigManager loads, caches, and persists a server's configuration.
type ServerConfigManager interface {
	Configuration() (*ServerConfig, error)
	InjectPrivateKey(key [codec.KeyBytes]byte) error
}

// Manager is the concrete ServerConfigManager.
type Manager struct {
	resolver Resolver
	writer   serverWriter
	reader   *ttlServerReader
}

// NewManager resolves the configuration path, writing a default file on
// first use, and wraps reads in a 15-minute cache.
func NewManager(resolver Resolver) (*Manager, error) {
	path, err := resolver.Resolve()
	if err != nil {
		return nil, fmt.Errorf("netcodecfg: resolving path: %w", err)
	}

	m := &Manager{
		resolver: resolver,
		writer:   serverWriter{path: path},
		reader:   &ttlServerReader{reader: serverReader{path: path}, ttl: 15 * time.Minute},
	}

	if _, statErr := os.Stat(path); statErr != nil {
		if err := m.writer.write(*DefaultServerConfig()); err != nil {
			return nil, fmt.Errorf("netcodecfg: writing default config: %w", err)
		}
	}

	return m, nil
}

func (m *Manager) Configuration() (*ServerConfig, error) {
	return m.reader.read()
}

// InjectPrivateKey persists a newly generated server private key, bypassing
// the read cache so the next Configuration call observes it immediately.
func (m *Manager) InjectPrivateKey(key [codec.KeyBytes]byte) error {
	cfg, err := m.Configuration()
	if err != nil {
		return err
	}
	cfg.PrivateKeyHex = fmt.Sprintf("%x", key)
	if err := m.writer.write(*cfg); err != nil {
		return err
	}
	m.reader.cache = cfg
	m.reader.cacheExpiresAt = time.Now().Add(m.reader.ttl)
	return nil
}
