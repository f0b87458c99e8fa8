// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	apperrors "idkeeper/cli/internal/errors"
	"idkeeper/cli/internal/eventbus"
	"idkeeper/cli/internal/httperrors"
	"idkeeper/cli/internal/loginflow"
	"idkeeper/cli/internal/session"
	"idkeeper/cli/internal/terminal"
)

const pastedRedirect = "idkeeper://login/callback"

var (
	loginEmail      string
	loginIdentifier string
	loginNoBrowser  bool
	loginPaste      bool
	loginTokenStdin bool
	loginForce      bool
)

// loginCmd opens the provider login page and hands the result to the
// session controller. The redirect is caught on a localhost listener, or
// pasted back with --paste.
var loginCmd = &cobra.Command{
	Use:     "login",
	Aliases: []string{"auth"},
	Short:   "Sign in via the browser and store the session",
	Long: `The login command opens the identity provider's login page. When the provider
redirects back, the session token is validated and stored in the OS keychain.

By default the redirect is received on a temporary localhost listener. Use --paste
to copy the redirect URL back by hand, or --token-stdin to supply a token directly.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
		defer cancel()

		a, err := newApp(ctx, appOptions{discover: true})
		if err != nil {
			return err
		}
		defer a.close(5 * time.Second)

		host := httperrors.HostOf(cfg.ServiceURL)
		if err := a.ctrl.LoadError(); err != nil {
			return httperrors.Explain(err, "reading the stored session", host)
		}
		if st := a.ctrl.State(); st.LoggedIn() && !loginForce {
			pterm.Printf("Already logged in as %s\n", displayName(st.Session.Identifier, st.Info))
			pterm.Println("   Use --force to sign in again.")
			return nil
		}

		res, err := obtainAuthorization(ctx, a)
		if err != nil {
			return err
		}

		sub := a.ctrl.Subscribe()
		defer sub.Unsubscribe()
		if err := a.ctrl.Start(ctx, a.monitor()); err != nil {
			return err
		}
		if err := a.ctrl.SubmitAuthorizationResult(res.Token, res.Identifier); err != nil {
			return httperrors.Explain(err, "saving the session", host)
		}

		stop := startInlineSpinner(os.Stdout, "Validating session", spinnerFrames, 120*time.Millisecond)
		st, err := awaitLogin(ctx, a.ctrl, sub, res.Token)
		stop()
		if err != nil {
			return httperrors.Explain(err, "logging in", host)
		}

		pterm.Success.Printf("Logged in as %s\n", displayName(st.Session.Identifier, st.Info))
		if st.Degraded {
			pterm.Warning.Println("The provider could not be reached; the session will be validated once it is.")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)
	f := loginCmd.Flags()
	f.StringVar(&loginEmail, "email", "", "Prefill the provider's login form")
	f.StringVar(&loginIdentifier, "identifier", "", "Account identifier for --token-stdin (defaults to --email)")
	f.BoolVar(&loginNoBrowser, "no-browser", false, "Print the login URL without opening a browser")
	f.BoolVar(&loginPaste, "paste", false, "Paste the redirect URL instead of listening on localhost")
	f.BoolVar(&loginTokenStdin, "token-stdin", false, "Read a session token from stdin instead of using the browser")
	f.BoolVar(&loginForce, "force", false, "Sign in again even when a session exists")
}

// obtainAuthorization runs the external part of the login and returns what
// the provider handed back.
func obtainAuthorization(ctx context.Context, a *app) (loginflow.Result, error) {
	if loginTokenStdin {
		id := loginIdentifier
		if id == "" {
			id = loginEmail
		}
		if id == "" {
			return loginflow.Result{}, apperrors.New(apperrors.InvalidInput, "--token-stdin needs --identifier or --email")
		}
		tok, err := terminal.ReadSecret("Session token: ")
		if err != nil {
			return loginflow.Result{}, err
		}
		return loginflow.Result{Token: tok, Identifier: id}, nil
	}

	redirect := pastedRedirect
	var lb *loginflow.Loopback
	if !loginPaste {
		var err error
		if lb, err = loginflow.NewLoopback(log); err != nil {
			return loginflow.Result{}, err
		}
		defer lb.Close()
		redirect = lb.RedirectURL()
	}

	req, err := loginflow.NewRequest(cfg.ServiceURL, a.endpoints.Login, redirect, loginEmail)
	if err != nil {
		return loginflow.Result{}, err
	}
	pterm.Println("Open this link to complete login:")
	pterm.Printf("%s\n\n", req.URL.String())
	if !loginNoBrowser {
		if err := openBrowser(req.URL.String()); err != nil {
			log.Debug().Err(err).Msg("could not open a browser")
		}
	}

	var raw string
	if lb != nil {
		stop := startInlineSpinner(os.Stdout, "Waiting for the browser", spinnerFrames, 120*time.Millisecond)
		raw, err = lb.Wait(ctx)
		stop()
		if errors.Is(err, context.DeadlineExceeded) {
			return loginflow.Result{}, errors.New("login timed out waiting for the browser")
		}
	} else {
		const prompt = "Paste the redirect URL: "
		raw, err = terminal.ReadSecret(prompt)
		if err == nil && terminal.IsInteractive() {
			terminal.ClearPreviousLines(len(prompt))
		}
	}
	if err != nil {
		return loginflow.Result{}, err
	}
	return req.ParseCallback(raw)
}

// awaitLogin blocks until the submitted token is the live session or the
// controller reports why it is not.
func awaitLogin(ctx context.Context, ctrl *session.Controller, sub *eventbus.Subscription[session.Event], token string) (session.State, error) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		if st := ctrl.State(); st.Status == session.LoggedIn && st.Session != nil && st.Session.Token == token {
			return st, nil
		}
		select {
		case <-ctx.Done():
			return session.State{}, ctx.Err()
		case ev, ok := <-sub.C():
			if !ok {
				return session.State{}, errors.New("session controller stopped")
			}
			if err := loginFailure(ev); err != nil {
				return session.State{}, err
			}
		case <-ticker.C:
		}
	}
}

// loginFailure maps a terminal event to an error, or nil when ev does not
// end the login.
func loginFailure(ev session.Event) error {
	switch {
	case ev.Kind == session.SessionLoginFailed:
		switch ev.FailureReason {
		case session.FailureUnauthorized:
			return apperrors.New(apperrors.Unauthorized, "the provider rejected the login")
		case session.FailureStoreUnavailable:
			return apperrors.New(apperrors.Unavailable, "the session could not be stored")
		case session.FailureTimeout:
			return apperrors.New(apperrors.Network, "timeout waiting for the provider")
		}
		return errors.New("login " + ev.Reason())
	case ev.Kind == session.SessionClosed:
		return apperrors.New(apperrors.Unauthorized, "session closed: "+ev.Reason())
	}
	return nil
}
