// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"idkeeper/cli/internal/httperrors"
)

// logoutCmd ends the session: the keychain item is removed right away and
// the token is revoked at the provider on a best-effort basis.
var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored session and revoke its token",
	Long: `The logout command removes the session from the OS keychain and the cached
account profile. The provider is asked to revoke the token; this is best-effort
and never prevents the local logout.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), appOptions{discover: true})
		if err != nil {
			return err
		}
		defer a.close(cfg.Session.RequestTimeout.Duration)

		if err := a.ctrl.LoadError(); err != nil {
			return httperrors.Explain(err, "reading the stored session", httperrors.HostOf(cfg.ServiceURL))
		}
		st := a.ctrl.State()
		if !st.LoggedIn() {
			if a.profile != nil {
				_ = a.profile.Clear()
			}
			printNotLoggedIn()
			return nil
		}

		a.ctrl.Logout()
		pterm.Success.Printf("Logged out %s\n", displayName(st.Session.Identifier, st.Info))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(logoutCmd)
}

