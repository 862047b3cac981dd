// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import "regexp"

var idRe = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,128}$`)

// IsSafeID returns true if the ID is safe to embed in store keys and URLs.
func IsSafeID(id string) bool {
	return idRe.MatchString(id)
}
