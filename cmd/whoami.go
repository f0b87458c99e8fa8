package cmd

import (
	"context"
	"os"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"idkeeper/cli/internal/httperrors"
	"idkeeper/cli/internal/session"
)

var whoamiCheck bool

// whoamiCmd shows the stored account. With --check the session is validated
// against the provider first.
var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the current account",
	Long: `The whoami command shows the account the stored session belongs to. Without
flags it answers from the keychain and the cached profile, so it works offline.
With --check the session is validated with the provider; a rejected session is
removed.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), appOptions{discover: whoamiCheck})
		if err != nil {
			return err
		}
		defer a.close(time.Second)

		host := httperrors.HostOf(cfg.ServiceURL)
		if err := a.ctrl.LoadError(); err != nil {
			return httperrors.Explain(err, "reading the stored session", host)
		}
		st := a.ctrl.State()
		if !st.LoggedIn() {
			printNotLoggedIn()
			return nil
		}

		if whoamiCheck && !flagOffline {
			st, err = checkSession(cmd.Context(), a.ctrl, a.ctrl.Revalidate, "Validating session")
			if err != nil {
				return err
			}
			if !st.LoggedIn() {
				pterm.Warning.Println("The provider rejected the stored session; it has been removed.")
				printNotLoggedIn()
				return nil
			}
		}

		info := st.Info
		var validated time.Time
		if info == nil && a.profile != nil {
			if p, ok, err := a.profile.Load(); err == nil && ok && p.Identifier == st.Session.Identifier {
				info, validated = p.Info, p.ValidatedAt
			}
		}
		pterm.Printf("👤 Current user: %s\n", displayName(st.Session.Identifier, info))
		switch {
		case st.Info != nil:
			pterm.Println("   Session validated just now.")
		case whoamiCheck && !flagOffline:
			pterm.Warning.Printf("Could not reach %s; showing the last known details.\n", host)
		case !validated.IsZero():
			pterm.Printf("   Last validated %s.\n", validated.Local().Format(time.DateTime))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(whoamiCmd)
	whoamiCmd.Flags().BoolVar(&whoamiCheck, "check", false, "Validate the session with the provider")
}

// checkSession runs trigger and waits for the provider call it started to
// settle, then returns the resulting state.
func checkSession(ctx context.Context, ctrl *session.Controller, trigger func() error, text string) (session.State, error) {
	if err := trigger(); err != nil {
		return session.State{}, err
	}
	stop := startInlineSpinner(os.Stdout, text, spinnerFrames, 120*time.Millisecond)
	err := ctrl.Wait(ctx)
	stop()
	if err != nil {
		return session.State{}, err
	}
	return ctrl.State(), nil
}
