package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tinywideclouds/go-reminder-service/internal/metrics"
	"github.com/tinywideclouds/go-reminder-service/internal/notify"
	"github.com/tinywideclouds/go-reminder-service/pkg/dispatch"
	"github.com/tinywideclouds/go-reminder-service/reminderservice"
)

// sendCommand runs one notification request in-process against the configured store and provider.
func sendCommand(opts *options) *cobra.Command {
	var (
		notificationType string
		userID           string
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send one notification to a user's devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := notify.Request{Type: dispatch.NotificationType(notificationType), UserID: userID}
			if err := req.Validate(); err != nil {
				return err
			}

			ctx := cmd.Context()
			logger := opts.logger(cmd)
			cfg, err := opts.loadConfig(logger)
			if err != nil {
				return err
			}

			backends, err := reminderservice.OpenBackends(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer backends.Close()

			sa, err := reminderservice.LoadServiceAccount(cfg.Credential, cfg.Provider.ProjectID)
			if err != nil {
				return err
			}
			source, err := reminderservice.NewCredentialSource(ctx, cfg.Credential, sa, backends.TokenCache, logger)
			if err != nil {
				return err
			}
			sender, err := reminderservice.NewSender(ctx, cfg.Provider, source, nil, logger)
			if err != nil {
				return err
			}
			recorder, err := metrics.NewDispatchMetrics(nil)
			if err != nil {
				return err
			}

			handler := reminderservice.NewHandler(backends.Store, sender, source, cfg.Dispatch, recorder, logger)
			resp, err := handler.Handle(ctx, req)
			if err != nil {
				return fmt.Errorf("send failed: %w", err)
			}
			return writeSendOutput(cmd, resp)
		},
	}
	cmd.Flags().StringVar(&notificationType, "type", string(dispatch.TypeMealReminder), "Notification type (meal_reminder or weekly_report)")
	cmd.Flags().StringVar(&userID, "user", "", "Recipient user id")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func writeSendOutput(cmd *cobra.Command, resp notify.Response) error {
	body, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	var out map[string]any
	if err := json.Unmarshal(body, &out); err != nil {
		return err
	}
	if len(resp.Summary.Failures) > 0 {
		out["failures"] = resp.Summary.Failures
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
