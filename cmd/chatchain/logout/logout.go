// Package logoutcmder provides the logout command.
package logoutcmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatchain/cmd/chatchain/cmdutil"
	"github.com/papercomputeco/chatchain/pkg/cliui"
	"github.com/papercomputeco/chatchain/pkg/config"
)

const logoutLongDesc string = `Forget the stored token for a backend.

Only the local credentials.toml entry is removed; the backend is not
contacted.

Examples:
  chatchain logout
  chatchain logout --all`

const logoutShortDesc string = "Forget the stored backend token"

func NewLogoutCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "logout",
		Short: logoutShortDesc,
		Long:  logoutLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := cmdutil.Load(cmd, config.FlagBackendURL)
			if err != nil {
				return err
			}

			backends := []string{env.BackendURL()}
			if all {
				backends, err = env.Creds.ListBackends()
				if err != nil {
					return err
				}
			}

			for _, b := range backends {
				if err := env.Creds.Clear(b); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s Logged out of %s\n", cliui.SuccessMark, cliui.DimStyle.Render(b))
			}
			return nil
		},
	}

	var url string
	config.AddStringFlag(cmd, config.Registry, config.FlagBackendURL, &url)
	cmd.Flags().BoolVar(&all, "all", false, "Forget tokens for every backend")

	return cmd
}
