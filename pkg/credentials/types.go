package credentials

// Credentials represents the stored login tokens in credentials.toml.
type Credentials struct {
	Version  int                          `toml:"version"`
	Backends map[string]BackendCredential `toml:"backends"`
}

// BackendCredential holds the token issued by one backend, keyed by the
// backend's base URL.
type BackendCredential struct {
	Token    string `toml:"token"`
	Username string `toml:"username,omitempty"`
}
