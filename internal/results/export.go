// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package results

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/renameio/v2"

	"github.com/ManuGH/stepcoach/internal/domain/game/model"
	"github.com/ManuGH/stepcoach/internal/log"
)

// ExportJSON writes summaries to path as an indented JSON array. The file
// is fsynced and renamed into place, so readers never see a partial export.
func ExportJSON(ctx context.Context, path string, summaries []model.GameResultSummary) error {
	if summaries == nil {
		summaries = []model.GameResultSummary{}
	}
	pending, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("results: create pending export: %w", err)
	}
	defer func() {
		if err := pending.Cleanup(); err != nil {
			logger := log.WithComponentFromContext(ctx, "results")
			logger.Debug().Err(err).Msg("cleanup pending export")
		}
	}()

	enc := json.NewEncoder(pending)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summaries); err != nil {
		return fmt.Errorf("results: write export: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("results: replace export: %w", err)
	}
	return nil
}
