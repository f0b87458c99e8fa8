// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"context"
	"net/http"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"idkeeper/cli/internal/manifest"
	"idkeeper/cli/internal/version"
)

var versionProvider bool

// versionCmd prints the CLI version and, with --provider, what the identity
// provider's manifest advertises.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		pterm.Printf("idkeeper %s\n", version.Version)
		if !versionProvider {
			return nil
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		m, err := manifest.Get(ctx, &http.Client{}, cfg.ServiceURL)
		if err != nil {
			pterm.Printf("provider %s: unknown (%v)\n", cfg.ServiceURL, err)
			return nil
		}
		pterm.Printf("provider %s: manifest v%d, issuer %s\n", cfg.ServiceURL, m.Version, m.Issuer)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVar(&versionProvider, "provider", false, "Also query the provider manifest")
}
