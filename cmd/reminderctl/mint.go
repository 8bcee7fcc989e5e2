package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tinywideclouds/go-reminder-service/reminderservice"
	"github.com/tinywideclouds/go-reminder-service/reminderservice/config"
)

type mintOutput struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// mintCommand prints a fresh provider bearer credential.
func mintCommand(opts *options) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Mint a provider bearer credential",
		Long:  "Mint a bearer credential for FCM using the configured service account and credential mode. Nothing is cached.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := opts.logger(cmd)
			cfg, err := opts.loadConfig(logger)
			if err != nil {
				return err
			}

			sa, err := reminderservice.LoadServiceAccount(cfg.Credential, cfg.Provider.ProjectID)
			if err != nil {
				return err
			}
			credCfg := cfg.Credential
			credCfg.Cache = config.CredentialCacheNone
			source, err := reminderservice.NewCredentialSource(cmd.Context(), credCfg, sa, nil, logger)
			if err != nil {
				return err
			}

			a, err := source.Bearer(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return json.NewEncoder(out).Encode(mintOutput{Token: a.Token, ExpiresAt: a.ExpiresAt.UTC()})
			}
			_, err = fmt.Fprintln(out, a.Token)
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the token and its expiry as JSON")
	return cmd
}
