// Package credentials persists backend login tokens in credentials.toml so a
// token obtained by "chatchain login" survives between invocations. Message
// chains are never written here.
package credentials

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/chatchain/pkg/dotdir"
)

const (
	credentialsFile = "credentials.toml"

	currentVersion = 0
)

// Manager manages reading and writing credentials.toml in the .chatchain/ directory.
type Manager struct {
	ddm        *dotdir.Manager
	targetPath string
}

// NewManager creates a new credentials Manager. If override is non-empty it is
// used as the .chatchain/ directory; otherwise the standard dotdir resolution
// applies.
func NewManager(override string) (*Manager, error) {
	mgr := &Manager{}
	mgr.ddm = dotdir.NewManager()

	target, err := mgr.ddm.Target(override)
	if err != nil {
		return nil, err
	}

	mgr.targetPath = filepath.Join(target, credentialsFile)

	return mgr, nil
}

// Load reads credentials.toml from the target directory.
// Returns an empty Credentials if the file does not exist.
func (m *Manager) Load() (*Credentials, error) {
	data, err := os.ReadFile(m.targetPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return empty(), nil
		}
		return nil, fmt.Errorf("reading credentials: %w", err)
	}

	creds := &Credentials{}
	if err := toml.Unmarshal(data, creds); err != nil {
		return nil, fmt.Errorf("parsing credentials: %w", err)
	}

	if creds.Version != currentVersion {
		return nil, fmt.Errorf("unsupported credentials version %d (expected %d)", creds.Version, currentVersion)
	}

	if creds.Backends == nil {
		creds.Backends = make(map[string]BackendCredential)
	}

	return creds, nil
}

// Save writes credentials to credentials.toml with 0600 permissions. The
// file is replaced atomically.
func (m *Manager) Save(creds *Credentials) error {
	if creds == nil {
		return errors.New("cannot save nil credentials")
	}

	var buf bytes.Buffer
	encoder := toml.NewEncoder(&buf)
	if err := encoder.Encode(creds); err != nil {
		return fmt.Errorf("encoding credentials: %w", err)
	}

	return writeAtomic(m.targetPath, buf.Bytes())
}

// writeAtomic replaces path with data through a temp file in the same
// directory, so a concurrent reader sees either the old or the new file and
// never a truncated one.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+credentialsFile+".*")
	if err != nil {
		return fmt.Errorf("creating temp credentials file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing credentials: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("setting credentials permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing credentials: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replacing credentials: %w", err)
	}

	return nil
}

// SetToken stores the token issued to username by backend.
func (m *Manager) SetToken(backend, username, token string) error {
	creds, err := m.Load()
	if err != nil {
		return err
	}

	creds.Backends[Key(backend)] = BackendCredential{Token: token, Username: username}

	return m.Save(creds)
}

// Token returns the stored token for backend.
// Returns an empty string if no token is stored.
func (m *Manager) Token(backend string) (string, error) {
	creds, err := m.Load()
	if err != nil {
		return "", err
	}

	return creds.Token(backend), nil
}

// Clear deletes the stored token for backend. Clearing a backend with no
// stored token is not an error.
func (m *Manager) Clear(backend string) error {
	creds, err := m.Load()
	if err != nil {
		return err
	}

	if _, ok := creds.Backends[Key(backend)]; !ok {
		return nil
	}
	delete(creds.Backends, Key(backend))

	return m.Save(creds)
}

// ListBackends returns the backends that have a stored token, sorted.
func (m *Manager) ListBackends() ([]string, error) {
	creds, err := m.Load()
	if err != nil {
		return nil, err
	}

	backends := make([]string, 0, len(creds.Backends))
	for name := range creds.Backends {
		backends = append(backends, name)
	}

	sort.Strings(backends)

	return backends, nil
}

// GetTarget returns the resolved path to the credentials file.
func (m *Manager) GetTarget() string {
	return m.targetPath
}

// Token returns the token stored for backend, empty if there is none.
func (c *Credentials) Token(backend string) string {
	if c == nil {
		return ""
	}
	return c.Backends[Key(backend)].Token
}

// Key normalizes a backend URL into the map key used in credentials.toml.
func Key(backend string) string {
	return strings.TrimRight(strings.TrimSpace(backend), "/")
}

func empty() *Credentials {
	return &Credentials{
		Version:  currentVersion,
		Backends: make(map[string]BackendCredential),
	}
}
