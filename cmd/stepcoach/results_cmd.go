// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ManuGH/stepcoach/internal/results"
)

func newResultsCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{Use: "results", Short: "Read durable game results"}

	var (
		user   string
		limit  int
		export string
		asJSON bool
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List a user's results, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(user) == "" {
				return errors.New("--user is required")
			}
			cfg, _, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			store, err := results.Open(cmd.Context(), cfg.Results)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			list, err := store.ListByUser(cmd.Context(), user, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if export != "" {
				if err := results.ExportJSON(cmd.Context(), export, list); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(out, "exported %d results to %s\n", len(list), export)
				return nil
			}
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(list)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "SESSION\tSONG\tSTATUS\tENDED\tLEVEL\tSCORE\tREASON")
			for _, s := range list {
				reason, score := "-", "-"
				if s.InterruptReason != nil {
					reason = *s.InterruptReason
				}
				if s.FinalScore != nil {
					score = fmt.Sprintf("%.2f", *s.FinalScore)
				}
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
					s.SessionID, s.SongID, s.Status, s.EndedAt.Format("2006-01-02 15:04:05"),
					s.Level, score, reason)
			}
			return tw.Flush()
		},
	}
	list.Flags().StringVar(&user, "user", "", "user id")
	list.Flags().IntVar(&limit, "limit", results.DefaultListLimit, "maximum number of results")
	list.Flags().StringVar(&export, "export", "", "write the results as JSON to this file instead of printing")
	list.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")

	var full bool
	verify := &cobra.Command{
		Use:   "verify",
		Short: "Check the integrity of a sqlite results database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if cfg.Results.Backend != results.BackendSQLite {
				return fmt.Errorf("verify supports the sqlite backend only, configured: %s", cfg.Results.Backend)
			}
			store, err := results.OpenSQLite(cmd.Context(), cfg.Results.Path)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			issues, err := store.Verify(cmd.Context(), full)
			if err != nil {
				return err
			}
			if len(issues) > 0 {
				for _, issue := range issues {
					_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "  -", issue)
				}
				return fmt.Errorf("%s: %d integrity problems", cfg.Results.Path, len(issues))
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "✓ %s is healthy\n", cfg.Results.Path)
			return nil
		},
	}
	verify.Flags().BoolVar(&full, "full", false, "run integrity_check instead of quick_check")

	cmd.AddCommand(list, verify)
	return cmd
}
