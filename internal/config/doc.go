// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads daemon configuration.
//
// Precedence is defaults, then the YAML file (unknown keys are errors),
// then STEPCOACH_* environment variables. The merged result is validated
// as a whole; a failed reload keeps the previous configuration.
package config
