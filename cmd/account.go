package cmd

import (
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"idkeeper/cli/internal/httperrors"
)

// accountCmd fetches fresh account details for the stored session.
var accountCmd = &cobra.Command{
	Use:     "account",
	Aliases: []string{"me"},
	Short:   "Fetch and show account details from the provider",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), appOptions{discover: true})
		if err != nil {
			return err
		}
		defer a.close(time.Second)

		host := httperrors.HostOf(cfg.ServiceURL)
		if err := a.ctrl.LoadError(); err != nil {
			return httperrors.Explain(err, "reading the stored session", host)
		}
		if !a.ctrl.State().LoggedIn() {
			printNotLoggedIn()
			return nil
		}

		st, err := checkSession(cmd.Context(), a.ctrl, a.ctrl.RefreshAccountInformation, "Fetching account")
		if err != nil {
			return err
		}
		switch {
		case !st.LoggedIn():
			pterm.Warning.Println("The provider rejected the stored session; it has been removed.")
			printNotLoggedIn()
			return nil
		case st.Info == nil:
			pterm.Warning.Printf("Could not reach %s.\n", host)
			return nil
		}
		return renderAccount(st.Session.Identifier, st.Info)
	},
}

func init() {
	rootCmd.AddCommand(accountCmd)
}
