package config

import (
	"fmt"
	"strconv"
	"time"
)

// Config represents the persistent chatchain configuration stored as
// config.toml in the .chatchain/ directory. The TOML layout uses sections for
// logical grouping.
type Config struct {
	Version int           `toml:"version"`
	Backend BackendConfig `toml:"backend"`
	Chat    ChatConfig    `toml:"chat"`
	Log     LogConfig     `toml:"log"`
	Serve   ServeConfig   `toml:"serve"`
	Events  EventsConfig  `toml:"events"`
}

// BackendConfig holds settings for reaching the remote chat backend.
// Timeouts are Go duration strings such as "30s" or "2m".
type BackendConfig struct {
	URL         string `toml:"url,omitempty"`
	Timeout     string `toml:"timeout,omitempty"`
	ReadTimeout string `toml:"read_timeout,omitempty"`
}

// ChatConfig holds settings for the send and chat commands.
type ChatConfig struct {
	DefaultChain string `toml:"default_chain,omitempty"`
	SystemPrompt string `toml:"system_prompt,omitempty"`

	// Plain prints answers verbatim instead of rendering them as markdown.
	Plain bool `toml:"plain,omitempty"`

	// Strict fails a stream on its first malformed payload line.
	Strict bool `toml:"strict,omitempty"`
}

// LogConfig holds logger output settings.
type LogConfig struct {
	JSON   bool `toml:"json,omitempty"`
	Pretty bool `toml:"pretty,omitempty"`

	// File additionally receives every record as JSON lines.
	File string `toml:"file,omitempty"`
}

// ServeConfig holds settings for the development backend started by
// "chatchain serve".
type ServeConfig struct {
	Listen string `toml:"listen,omitempty"`
	Quota  uint   `toml:"quota"`
}

// EventsConfig holds settings for publishing turn events. Publishing is off
// while KafkaBrokers is empty.
type EventsConfig struct {
	// KafkaBrokers is a comma separated list of host:port addresses.
	KafkaBrokers string `toml:"kafka_brokers,omitempty"`
	KafkaTopic   string `toml:"kafka_topic,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"backend.url": {
		get: func(c *Config) string { return c.Backend.URL },
		set: func(c *Config, v string) error { c.Backend.URL = v; return nil },
	},
	"backend.timeout": {
		get: func(c *Config) string { return c.Backend.Timeout },
		set: durationSetter("backend.timeout", func(c *Config, v string) { c.Backend.Timeout = v }),
	},
	"backend.read_timeout": {
		get: func(c *Config) string { return c.Backend.ReadTimeout },
		set: durationSetter("backend.read_timeout", func(c *Config, v string) { c.Backend.ReadTimeout = v }),
	},
	"chat.default_chain": {
		get: func(c *Config) string { return c.Chat.DefaultChain },
		set: func(c *Config, v string) error { c.Chat.DefaultChain = v; return nil },
	},
	"chat.system_prompt": {
		get: func(c *Config) string { return c.Chat.SystemPrompt },
		set: func(c *Config, v string) error { c.Chat.SystemPrompt = v; return nil },
	},
	"chat.plain": {
		get: func(c *Config) string { return strconv.FormatBool(c.Chat.Plain) },
		set: boolSetter("chat.plain", func(c *Config, b bool) { c.Chat.Plain = b }),
	},
	"chat.strict": {
		get: func(c *Config) string { return strconv.FormatBool(c.Chat.Strict) },
		set: boolSetter("chat.strict", func(c *Config, b bool) { c.Chat.Strict = b }),
	},
	"log.json": {
		get: func(c *Config) string { return strconv.FormatBool(c.Log.JSON) },
		set: boolSetter("log.json", func(c *Config, b bool) { c.Log.JSON = b }),
	},
	"log.pretty": {
		get: func(c *Config) string { return strconv.FormatBool(c.Log.Pretty) },
		set: boolSetter("log.pretty", func(c *Config, b bool) { c.Log.Pretty = b }),
	},
	"log.file": {
		get: func(c *Config) string { return c.Log.File },
		set: func(c *Config, v string) error { c.Log.File = v; return nil },
	},
	"serve.listen": {
		get: func(c *Config) string { return c.Serve.Listen },
		set: func(c *Config, v string) error { c.Serve.Listen = v; return nil },
	},
	"serve.quota": {
		get: func(c *Config) string { return strconv.FormatUint(uint64(c.Serve.Quota), 10) },
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for serve.quota: %w", err)
			}
			c.Serve.Quota = uint(n)
			return nil
		},
	},
	"events.kafka_brokers": {
		get: func(c *Config) string { return c.Events.KafkaBrokers },
		set: func(c *Config, v string) error { c.Events.KafkaBrokers = v; return nil },
	},
	"events.kafka_topic": {
		get: func(c *Config) string { return c.Events.KafkaTopic },
		set: func(c *Config, v string) error { c.Events.KafkaTopic = v; return nil },
	},
}

func boolSetter(key string, apply func(c *Config, b bool)) func(c *Config, v string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid value for %s: %w", key, err)
		}
		apply(c, b)
		return nil
	}
}

func durationSetter(key string, apply func(c *Config, v string)) func(c *Config, v string) error {
	return func(c *Config, v string) error {
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("invalid value for %s: %w", key, err)
		}
		apply(c, v)
		return nil
	}
}
