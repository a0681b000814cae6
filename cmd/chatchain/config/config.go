// Package configcmder provides the config command for managing persistent
// chatchain configuration stored in the .chatchain/ directory.
package configcmder

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatchain/pkg/cliui"
	"github.com/papercomputeco/chatchain/pkg/config"
)

const configLongDesc string = `Manage persistent chatchain configuration.

Configuration is stored as config.toml in the .chatchain/ directory and
provides default values for command flags. CLI flags and CHATCHAIN_*
environment variables always take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  backend.url, backend.timeout, backend.read_timeout,
  chat.default_chain, chat.system_prompt, chat.plain, chat.strict,
  log.json, log.pretty,
  serve.listen, serve.quota

Use subcommands to get, set, or list configuration values:
  chatchain config set <key> <value>    Set a configuration value
  chatchain config get <key>            Get a configuration value
  chatchain config list                 List all configuration values

Examples:
  chatchain config set backend.url https://chat.example.com
  chatchain config set chat.system_prompt "Answer briefly."
  chatchain config get backend.read_timeout
  chatchain config list`

const configShortDesc string = "Manage persistent chatchain configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

// completeKeys offers config keys for the first positional argument.
func completeKeys(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}

func checkKey(key string) error {
	if !config.IsValidConfigKey(key) {
		return fmt.Errorf("unknown config key: %q\n\nValid keys: %s",
			key, strings.Join(config.ValidConfigKeys(), ", "))
	}
	return nil
}

func openConfiger(w io.Writer, configDir string) (*config.Configer, error) {
	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if target := cfger.GetTarget(); target != "" {
		fmt.Fprintf(w, "\n  %s %s\n\n",
			cliui.KeyStyle.Render("Config file:"),
			cliui.DimStyle.Render(target),
		)
	} else {
		fmt.Fprintf(w, "\n  %s\n\n", cliui.DimStyle.Render("No config file found. Using defaults."))
	}

	return cfger, nil
}
