// Package quotacmder provides the quota command.
package quotacmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatchain/cmd/chatchain/cmdutil"
	"github.com/papercomputeco/chatchain/pkg/cliui"
)

const quotaLongDesc string = `Show the remaining quota reported by the backend.

The value is printed exactly as the backend sent it.

Examples:
  chatchain quota`

const quotaShortDesc string = "Show the remaining backend quota"

func NewQuotaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quota",
		Short: quotaShortDesc,
		Long:  quotaLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := cmdutil.Load(cmd, cmdutil.BackendFlags...)
			if err != nil {
				return err
			}
			defer env.Close()

			sess, err := env.Session()
			if err != nil {
				return err
			}

			var quota string
			err = cliui.Step(cmd.ErrOrStderr(), "Fetching quota", func() error {
				quota, err = sess.CheckQuota(cmd.Context())
				return err
			})
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), quota)
			return nil
		},
	}

	cmdutil.AddBackendFlags(cmd)

	return cmd
}
