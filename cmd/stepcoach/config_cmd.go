// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ManuGH/stepcoach/internal/config"
	"github.com/ManuGH/stepcoach/internal/timeline"
)

const redacted = "***"

func newConfigCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Inspect the effective configuration"}

	validate := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and the song catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, err := loadConfig(*configPath)
			if err != nil {
				return fmt.Errorf("configuration error in %s: %w", displayPath(path), err)
			}
			cat := timeline.NewCatalog(cfg.Catalog.Dir, cfg.Catalog.CacheTTL)
			defer func() { _ = cat.Close() }()
			ids, err := cat.Load(cmd.Context())
			if err != nil {
				return fmt.Errorf("song catalog %s: %w", cfg.Catalog.Dir, err)
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "✓ %s is valid\n", displayPath(path))
			_, _ = fmt.Fprintf(out, "✓ %d songs in %s\n", len(ids), cfg.Catalog.Dir)
			return nil
		},
	}

	var format string
	dump := &cobra.Command{
		Use:   "dump",
		Short: "Print the effective configuration with secrets redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			cfg = redact(cfg)
			out := cmd.OutOrStdout()
			switch strings.ToLower(format) {
			case "yaml", "":
				enc := yaml.NewEncoder(out)
				enc.SetIndent(2)
				if err := enc.Encode(cfg); err != nil {
					return err
				}
				return enc.Close()
			case "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(cfg)
			default:
				return fmt.Errorf("unknown format %q (use yaml or json)", format)
			}
		},
	}
	dump.Flags().StringVar(&format, "format", "yaml", "output format: yaml or json")

	cmd.AddCommand(validate, dump)
	return cmd
}

func redact(cfg config.AppConfig) config.AppConfig {
	if cfg.Store.Redis.Password != "" {
		cfg.Store.Redis.Password = redacted
	}
	if cfg.Results.DSN != "" {
		cfg.Results.DSN = redacted
	}
	return cfg
}

func displayPath(path string) string {
	if path == "" {
		return "environment and defaults"
	}
	return path
}
