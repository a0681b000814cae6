package config

const (
	defaultBackendURL  = "http://localhost:9593"
	defaultTimeout     = "30s"
	defaultReadTimeout = "2m"

	defaultChain = "default"

	defaultServeListen = ":9593"
	defaultServeQuota  = 100

	defaultEventsTopic = "chatchain.turns"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Backend: BackendConfig{
			URL:         defaultBackendURL,
			Timeout:     defaultTimeout,
			ReadTimeout: defaultReadTimeout,
		},
		Chat: ChatConfig{
			DefaultChain: defaultChain,
		},
		Serve: ServeConfig{
			Listen: defaultServeListen,
			Quota:  defaultServeQuota,
		},
		Events: EventsConfig{
			KafkaTopic: defaultEventsTopic,
		},
	}
}
