// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package reachability

import (
	"context"
	"crypto/tls"
	"net"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// GRPC follows the connectivity state of a gRPC channel to the provider.
// READY counts as reachable; TRANSIENT_FAILURE and SHUTDOWN as unreachable.
// An idle channel is asked to reconnect so the state keeps being observed.
type GRPC struct {
	Target string
	// Plaintext disables TLS, for local providers.
	Plaintext bool
	Options   []grpc.DialOption
	Logger    zerolog.Logger
}

// NewGRPC watches target, adding port 443 when none is given.
func NewGRPC(target string, logger zerolog.Logger) *GRPC {
	return &GRPC{Target: target, Logger: logger}
}

func (g *GRPC) dialOptions() ([]grpc.DialOption, string) {
	host := g.Target
	if h, _, err := net.SplitHostPort(g.Target); err == nil {
		host = h
	}
	target := g.Target
	if _, _, err := net.SplitHostPort(g.Target); err != nil {
		target = net.JoinHostPort(g.Target, "443")
	}

	creds := insecure.NewCredentials()
	if !g.Plaintext {
		creds = credentials.NewTLS(&tls.Config{ServerName: host, MinVersion: tls.VersionTLS12})
	}
	opts := append([]grpc.DialOption{grpc.WithTransportCredentials(creds)}, g.Options...)
	return opts, target
}

// Watch opens a channel and reports its state until ctx ends.
func (g *GRPC) Watch(ctx context.Context) <-chan Transition {
	em := newEmitter()
	go func() {
		defer close(em.out)

		opts, target := g.dialOptions()
		conn, err := grpc.NewClient(target, opts...)
		if err != nil {
			g.Logger.Warn().Err(err).Str("target", target).Msg("cannot create grpc channel")
			if em.observe(ctx, false) {
				<-ctx.Done()
			}
			return
		}
		defer conn.Close()

		conn.Connect()
		state := conn.GetState()
		for {
			switch state {
			case connectivity.Ready:
				if !em.observe(ctx, true) {
					return
				}
			case connectivity.TransientFailure, connectivity.Shutdown:
				if !em.observe(ctx, false) {
					return
				}
			case connectivity.Idle:
				conn.Connect()
			}
			if !conn.WaitForStateChange(ctx, state) {
				return
			}
			state = conn.GetState()
			g.Logger.Debug().Stringer("state", state).Msg("grpc channel state")
		}
	}()
	return em.out
}
