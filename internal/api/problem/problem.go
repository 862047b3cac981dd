// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package problem writes RFC 7807 problem details.
package problem

import (
	"encoding/json"
	"net/http"

	"github.com/ManuGH/stepcoach/internal/log"
)

// JSONKeyRequestID is the extension member carrying the request id.
const JSONKeyRequestID = "requestId"

// Write writes an application/problem+json response.
//
//   - problemType: machine identifier such as "session/not_found"
//   - title: short human label
//   - code: stable machine code such as "SESSION_NOT_FOUND"
//   - detail: explanation of this occurrence
//
// extra members are added at top level; reserved names are ignored.
func Write(w http.ResponseWriter, r *http.Request, status int, problemType, title, code, detail string, extra map[string]any) {
	res := map[string]any{
		"type":   problemType,
		"title":  title,
		"status": status,
		"code":   code,
	}
	if detail != "" {
		res["detail"] = detail
	}
	if r != nil {
		res["instance"] = r.URL.EscapedPath()
		if reqID := log.RequestIDFromContext(r.Context()); reqID != "" {
			res[JSONKeyRequestID] = reqID
		}
	}
	for k, v := range extra {
		switch k {
		case "type", "title", "status", "detail", "instance", "code", JSONKeyRequestID:
			log.L().Warn().Str("key", k).Str("problem_type", problemType).Msg("ignoring reserved key in problem extras")
			continue
		}
		res[k] = v
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(res); err != nil {
		log.L().Error().Err(err).Str("type", problemType).Int("status", status).Msg("failed to encode problem response")
	}
}
