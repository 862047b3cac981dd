// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the application.
const (
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"
	HTTPURLKey        = "http.url"

	SessionIDKey  = "session.id"
	SongIDKey     = "song.id"
	VerseKey      = "session.verse"
	ActionCodeKey = "action.code"

	ScorerEndpointKey = "scorer.endpoint"
	ScorerFramesKey   = "scorer.frames"
	ScorerJudgmentKey = "scorer.judgment"

	ErrorTypeKey = "error.type"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route, url string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.String(HTTPURLKey, url),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// SessionAttributes identify the game session a span belongs to.
func SessionAttributes(sessionID, songID string, verse int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(SessionIDKey, sessionID),
		attribute.String(SongIDKey, songID),
		attribute.Int(VerseKey, verse),
	}
}

// ScorerAttributes describe one scorer request.
func ScorerAttributes(endpoint string, actionCode, frames int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(ScorerEndpointKey, endpoint),
		attribute.Int(ActionCodeKey, actionCode),
		attribute.Int(ScorerFramesKey, frames),
	}
}

// ErrorAttributes classifies a failed span.
func ErrorAttributes(errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool("error", true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
