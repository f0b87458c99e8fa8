// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"idkeeper/cli/internal/eventstream"
	"idkeeper/cli/internal/journal"
	"idkeeper/cli/internal/metrics"
	"idkeeper/cli/internal/session"
)

var (
	watchJournalDSN  string
	watchMetricsAddr string
	watchEventsAddr  string
)

// watchCmd keeps the controller running: connectivity changes trigger
// validation and every session event is printed until interrupted.
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the session validated and print session events",
	Long: `The watch command runs the session controller in the foreground. Whenever the
provider becomes reachable again the stored session is validated, and every
session event is printed.

Events can also be written to a PostgreSQL table (--journal-dsn) and controller
activity exposed as Prometheus metrics (--metrics-addr). Local applications can
follow the session over a WebSocket served on --events-addr at /events.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if watchJournalDSN == "" {
			watchJournalDSN = cfg.JournalDSN
		}
		if watchMetricsAddr == "" {
			watchMetricsAddr = cfg.MetricsAddr
		}
		if watchEventsAddr == "" {
			watchEventsAddr = cfg.EventsAddr
		}

		var (
			rec *metrics.Recorder
			reg *prometheus.Registry
		)
		if watchMetricsAddr != "" {
			reg = prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			var err error
			if rec, err = metrics.New(reg); err != nil {
				return err
			}
		}

		opts := appOptions{discover: true}
		if rec != nil {
			opts.metrics = rec
		}
		a, err := newApp(ctx, opts)
		if err != nil {
			return err
		}
		defer a.close(cfg.Session.RequestTimeout.Duration)
		if err := a.ctrl.LoadError(); err != nil {
			pterm.Warning.Printf("Stored session unavailable: %v\n", err)
		}

		g, gctx := errgroup.WithContext(ctx)

		if watchJournalDSN != "" {
			j, err := journal.Open(ctx, watchJournalDSN, journal.WithLogger(log))
			if err != nil {
				return err
			}
			defer j.Close()
			sub := a.ctrl.Subscribe()
			g.Go(func() error { return j.Run(gctx, sub) })
			pterm.Info.Printf("Journaling events (run %s)\n", j.RunID())
		}

		// Both endpoints share one server when given the same address.
		muxes := map[string]*http.ServeMux{}
		mux := func(addr string) *http.ServeMux {
			if muxes[addr] == nil {
				muxes[addr] = http.NewServeMux()
			}
			return muxes[addr]
		}
		if reg != nil {
			mux(watchMetricsAddr).Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
			pterm.Info.Printf("Serving metrics on %s/metrics\n", watchMetricsAddr)
		}
		if watchEventsAddr != "" {
			mux(watchEventsAddr).Handle("/events", eventstream.NewHandler(a.ctrl, log))
			pterm.Info.Printf("Streaming events on ws://%s/events\n", watchEventsAddr)
		}
		for addr, m := range muxes {
			serve(gctx, g, addr, m)
		}

		sub := a.ctrl.Subscribe()
		g.Go(func() error {
			defer sub.Unsubscribe()
			for {
				select {
				case <-gctx.Done():
					return nil
				case ev, ok := <-sub.C():
					if !ok {
						return nil
					}
					printEvent(ev)
				}
			}
		})

		if err := a.ctrl.Start(gctx, a.monitor()); err != nil {
			return err
		}
		printWatchState(a.ctrl.State())

		err = g.Wait()
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVar(&watchJournalDSN, "journal-dsn", "", "PostgreSQL DSN receiving session events")
	watchCmd.Flags().StringVar(&watchMetricsAddr, "metrics-addr", "", "Listen address for Prometheus metrics, e.g. :9464")
	watchCmd.Flags().StringVar(&watchEventsAddr, "events-addr", "", "Listen address for the WebSocket event stream, e.g. 127.0.0.1:9465")
}

// serve runs an HTTP server in g and shuts it down when ctx ends.
func serve(ctx context.Context, g *errgroup.Group, addr string, h http.Handler) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})
}

func printWatchState(st session.State) {
	if !st.LoggedIn() {
		pterm.Info.Println("Not logged in; waiting for events. Press Ctrl+C to stop.")
		return
	}
	pterm.Info.Printf("Watching session for %s (%s). Press Ctrl+C to stop.\n",
		displayName(st.Session.Identifier, st.Info), st.Status)
}
