package cmd

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"idkeeper/cli/internal/backend"
	"idkeeper/cli/internal/credstore"
	"idkeeper/cli/internal/keychain"
	"idkeeper/cli/internal/manifest"
	"idkeeper/cli/internal/profile"
	"idkeeper/cli/internal/reachability"
	"idkeeper/cli/internal/session"
)

// app bundles everything a subcommand needs to talk to the session controller.
type app struct {
	ctrl      *session.Controller
	endpoints manifest.HTTPEndpoints
	manifest  *manifest.Manifest
	profile   *profile.Cache

	followDone chan struct{}
}

type appOptions struct {
	// discover fetches the provider manifest when enabled in config.
	discover bool
	metrics  session.Recorder
}

// newApp wires config into a ready controller: keychain, credential store,
// provider endpoints and account service. The profile cache follows events
// until close.
func newApp(ctx context.Context, opts appOptions) (*app, error) {
	ring, err := keychain.NewManager(keychain.Config{
		ServiceName: cfg.Keyring.Service,
		Backends:    cfg.Keyring.Backends,
		FileDir:     cfg.Keyring.FileDir,
	})
	if err != nil {
		return nil, err
	}

	a := &app{endpoints: configEndpoints()}
	if opts.discover && cfg.Discovery && !flagOffline {
		dctx, cancel := context.WithTimeout(ctx, cfg.Session.RequestTimeout.Duration)
		a.endpoints, a.manifest, err = manifest.Resolve(dctx, &http.Client{}, cfg.ServiceURL, a.endpoints)
		cancel()
		if err != nil {
			log.Warn().Err(err).Msg("endpoint discovery failed, using configured paths")
		}
	}

	api := backend.New(cfg.ServiceURL, a.endpoints, backend.Options{
		Timeout: cfg.Session.RequestTimeout.Duration,
		Logger:  log,
	})
	a.ctrl, err = session.NewController(session.Options{
		Store:              credstore.New(ring, cfg.Keyring.AccessGroup),
		Service:            api,
		Logger:             log,
		Metrics:            opts.metrics,
		StalenessThreshold: cfg.Session.StalenessThreshold.Duration,
		StrictLogin:        !cfg.Session.OptimisticLogin,
		LoginTimeout:       cfg.Session.LoginTimeout.Duration,
		RequestTimeout:     cfg.Session.RequestTimeout.Duration,
	})
	if err != nil {
		return nil, err
	}

	if a.profile, err = profile.Default(); err != nil {
		log.Debug().Err(err).Msg("profile cache disabled")
	} else {
		sub := a.ctrl.Subscribe()
		a.followDone = make(chan struct{})
		go func() {
			defer close(a.followDone)
			if err := a.profile.Follow(context.Background(), sub); err != nil {
				log.Debug().Err(err).Msg("profile cache not updated")
			}
		}()
	}
	return a, nil
}

// monitor returns the reachability source selected by config.
func (a *app) monitor() reachability.Monitor {
	if flagOffline {
		return reachability.NewManual(false)
	}
	target := cfg.Reachability.Target
	switch cfg.Reachability.Mode {
	case "grpc":
		g := reachability.NewGRPC(target, log)
		if target == "" && a.manifest != nil {
			g.Target = a.manifest.GRPCAddress()
			g.Plaintext = a.manifest.Plaintext()
		}
		if g.Target == "" {
			g.Target = hostOf(cfg.ServiceURL)
		}
		return g
	case "none":
		return reachability.NewManual(true)
	}
	if target == "" {
		target = strings.TrimRight(cfg.ServiceURL, "/") + a.endpoints.Health
	}
	return reachability.NewProbe(target, cfg.Reachability.Interval.Duration, log)
}

// close waits up to grace for background provider calls, such as a logout
// revocation, then stops the controller and flushes the profile cache.
func (a *app) close(grace time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := a.ctrl.Wait(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		log.Debug().Err(err).Msg("waiting for provider calls")
	}
	a.ctrl.Close()
	if a.followDone != nil {
		<-a.followDone
	}
}

func configEndpoints() manifest.HTTPEndpoints {
	return manifest.HTTPEndpoints{
		Login:    cfg.Endpoints.Login,
		Validate: cfg.Endpoints.Validate,
		Account:  cfg.Endpoints.Account,
		Revoke:   cfg.Endpoints.Revoke,
	}
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}
