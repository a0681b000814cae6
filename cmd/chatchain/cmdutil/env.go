// Package cmdutil resolves the configuration, logger, credentials and
// backend session shared by the chatchain subcommands.
package cmdutil

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/chatchain/pkg/backend"
	"github.com/papercomputeco/chatchain/pkg/config"
	"github.com/papercomputeco/chatchain/pkg/credentials"
	"github.com/papercomputeco/chatchain/pkg/eventstream"
	"github.com/papercomputeco/chatchain/pkg/eventstream/kafka"
	"github.com/papercomputeco/chatchain/pkg/eventstream/nop"
	"github.com/papercomputeco/chatchain/pkg/logger"
	"github.com/papercomputeco/chatchain/pkg/session"
	"github.com/papercomputeco/chatchain/pkg/sse"
)

// BackendFlags are the registry keys every command talking to the backend
// registers and binds.
var BackendFlags = []string{config.FlagBackendURL, config.FlagTimeout, config.FlagReadTimeout}

// AddBackendFlags registers the backend connection flags on cmd. Their
// values are read back through viper once bound.
func AddBackendFlags(cmd *cobra.Command) {
	var (
		url                  string
		timeout, readTimeout time.Duration
	)
	config.AddStringFlag(cmd, config.Registry, config.FlagBackendURL, &url)
	config.AddDurationFlag(cmd, config.Registry, config.FlagTimeout, &timeout)
	config.AddDurationFlag(cmd, config.Registry, config.FlagReadTimeout, &readTimeout)
}

// Env is the resolved runtime environment of one command invocation.
type Env struct {
	ConfigDir string
	Viper     *viper.Viper
	Logger    *slog.Logger
	Creds     *credentials.Manager

	command   string
	publisher eventstream.Publisher
	logFile   *os.File
}

// Load resolves config (flag > env > config.toml > default) for the given
// registry keys, builds the logger and opens the credentials store. When
// log.file is set the logger also appends JSON records to that file; Close
// releases it.
func Load(cmd *cobra.Command, flagKeys ...string) (*Env, error) {
	configDir, _ := cmd.Flags().GetString("config-dir")
	debug, _ := cmd.Flags().GetBool("debug")

	v, err := config.InitViper(configDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	config.BindRegisteredFlags(v, cmd, config.Registry, flagKeys)

	log := logger.New(
		logger.WithWriter(cmd.ErrOrStderr()),
		logger.WithDebug(debug),
		logger.WithSource(debug),
		logger.WithJSON(v.GetBool("log.json")),
		logger.WithPretty(v.GetBool("log.pretty")),
	)

	var logFile *os.File
	if path := v.GetString("log.file"); path != "" {
		logFile, err = os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		log = logger.Multi(log, logger.New(
			logger.WithWriter(logFile),
			logger.WithDebug(debug),
			logger.WithSource(debug),
			logger.WithJSON(true),
		))
	}

	creds, err := credentials.NewManager(configDir)
	if err != nil {
		if logFile != nil {
			logFile.Close()
		}
		return nil, fmt.Errorf("loading credentials: %w", err)
	}

	return &Env{
		ConfigDir: configDir,
		Viper:     v,
		Logger:    log,
		Creds:     creds,
		command:   cmd.Name(),
		logFile:   logFile,
	}, nil
}

// BackendURL returns the resolved backend URL.
func (e *Env) BackendURL() string {
	return e.Viper.GetString("backend.url")
}

// Client builds a backend client from the resolved configuration.
func (e *Env) Client() (*backend.Client, error) {
	return backend.NewClient(backend.Config{
		BaseURL:     e.BackendURL(),
		Timeout:     e.Viper.GetDuration("backend.timeout"),
		ReadTimeout: e.Viper.GetDuration("backend.read_timeout"),
		Logger:      e.Logger.With("component", "backend"),
	})
}

// Session builds a session against the configured backend, seeded with the
// stored token for that backend if there is one.
func (e *Env) Session() (*session.Session, error) {
	client, err := e.Client()
	if err != nil {
		return nil, err
	}

	token, err := e.Creds.Token(e.BackendURL())
	if err != nil {
		return nil, err
	}

	assembler := sse.NewAssembler(
		sse.WithLogger(e.Logger.With("component", "stream")),
		sse.WithStrict(e.Viper.GetBool("chat.strict")),
	)

	pub, err := e.Publisher()
	if err != nil {
		return nil, err
	}

	return session.New(client,
		session.WithLogger(e.Logger),
		session.WithToken(token),
		session.WithAssembler(assembler),
		session.WithPublisher(pub, eventstream.EventSource{Backend: e.BackendURL(), Client: e.command}),
	), nil
}

// Publisher returns the turn event publisher: Kafka when events.kafka_brokers
// is set, a no-op otherwise. It is created once per Env.
func (e *Env) Publisher() (eventstream.Publisher, error) {
	if e.publisher != nil {
		return e.publisher, nil
	}

	brokers := kafka.ParseBrokers(e.Viper.GetString("events.kafka_brokers"))
	if len(brokers) == 0 {
		e.publisher = nop.NewPublisher()
		return e.publisher, nil
	}

	pub, err := kafka.NewPublisher(kafka.Config{
		Brokers: brokers,
		Topic:   e.Viper.GetString("events.kafka_topic"),
		Logger:  e.Logger.With("component", "events"),
	})
	if err != nil {
		return nil, fmt.Errorf("creating event publisher: %w", err)
	}
	e.Logger.Debug("publishing turn events", "brokers", brokers, "topic", e.Viper.GetString("events.kafka_topic"))

	e.publisher = pub
	return e.publisher, nil
}

// Close flushes and releases the event publisher and closes the log file.
func (e *Env) Close() error {
	var errs []error
	if e.publisher != nil {
		errs = append(errs, e.publisher.Close())
	}
	if e.logFile != nil {
		errs = append(errs, e.logFile.Close())
	}
	return errors.Join(errs...)
}

// WatchToken keeps the session token in step with credentials.toml until
// ctx is done, so a login or logout in another terminal takes effect
// without a restart. It blocks.
func (e *Env) WatchToken(ctx context.Context, sess *session.Session) {
	backendURL := e.BackendURL()
	err := e.Creds.Watch(ctx, func(creds *credentials.Credentials) {
		token := creds.Token(backendURL)
		if token != sess.Token() {
			sess.SetToken(token)
			e.Logger.Debug("token reloaded from credentials", "backend", backendURL, "logged_in", token != "")
		}
	})
	if err != nil {
		e.Logger.Warn("not watching credentials", "error", err)
	}
}
