// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package scorer talks to the motion-analysis service that judges one
// action window at a time.
package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/ManuGH/stepcoach/internal/domain/game/ports"
	"github.com/ManuGH/stepcoach/internal/log"
	"github.com/ManuGH/stepcoach/internal/resilience"
	"github.com/ManuGH/stepcoach/internal/telemetry"
)

const (
	framesPath = "/api/ai/brandnew/analyze"
	posesPath  = "/api/ai/brandnew/analyze-pose"

	// MaxJudgment is the top grade the service returns.
	MaxJudgment = 3

	maxResponseBytes = 64 << 10
)

// ErrRejected marks a 4xx answer. It does not count against the breaker.
var ErrRejected = errors.New("scorer rejected request")

// Options configures the HTTP scorer.
type Options struct {
	BaseURL          string        `yaml:"baseURL" env:"BASE_URL"`
	Timeout          time.Duration `yaml:"timeout" env:"TIMEOUT"`
	RateLimit        rate.Limit    `yaml:"rateLimit" env:"RATE_LIMIT"`
	RateLimitBurst   int           `yaml:"rateLimitBurst" env:"RATE_LIMIT_BURST"`
	BreakerThreshold int           `yaml:"breakerThreshold" env:"BREAKER_THRESHOLD"`
	BreakerReset     time.Duration `yaml:"breakerReset" env:"BREAKER_RESET"`
}

const (
	defaultTimeout        = 5 * time.Second
	defaultRateLimit      = 20
	defaultRateLimitBurst = 40
	defaultBreakerReset   = 15 * time.Second
)

func normalizeOptions(opts Options) Options {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = defaultRateLimit
	}
	if opts.RateLimitBurst <= 0 {
		opts.RateLimitBurst = defaultRateLimitBurst
	}
	if opts.BreakerThreshold <= 0 {
		opts.BreakerThreshold = 5
	}
	if opts.BreakerReset <= 0 {
		opts.BreakerReset = defaultBreakerReset
	}
	return opts
}

// Client is a ports.Scorer backed by the motion-analysis HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
	tracer  trace.Tracer
}

// NewClient validates opts and returns a client.
func NewClient(opts Options) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	u, err := url.Parse(trimmed)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("scorer base url %q: must be an absolute http(s) url", opts.BaseURL)
	}
	nopts := normalizeOptions(opts)

	transport := &http.Transport{
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: nopts.Timeout,
		TLSHandshakeTimeout:   5 * time.Second,
	}
	return &Client{
		baseURL: trimmed,
		http: &http.Client{
			Timeout:   nopts.Timeout,
			Transport: otelhttp.NewTransport(transport),
		},
		limiter: rate.NewLimiter(nopts.RateLimit, nopts.RateLimitBurst),
		breaker: resilience.NewCircuitBreaker("scorer", nopts.BreakerThreshold, nopts.BreakerReset,
			resilience.WithFailurePredicate(func(err error) bool {
				return !errors.Is(err, ErrRejected) && !errors.Is(err, context.Canceled)
			})),
		tracer: telemetry.Tracer("stepcoach.scorer"),
	}, nil
}

type analyzeRequest struct {
	ActionCode int           `json:"actionCode"`
	ActionName string        `json:"actionName,omitempty"`
	FrameCount int           `json:"frameCount"`
	Frames     []string      `json:"frames,omitempty"`
	PoseFrames [][][]float64 `json:"poseFrames,omitempty"`
}

type analyzeResponse struct {
	ActionCode        *int     `json:"actionCode"`
	Judgment          *int     `json:"judgment"`
	PredictedLabel    string   `json:"predictedLabel"`
	Confidence        float64  `json:"confidence"`
	TargetProbability *float64 `json:"targetProbability"`
}

// Score posts the window's evidence and maps the 0..3 grade onto [0,1].
// Pose evidence is preferred when both kinds are present.
func (c *Client) Score(ctx context.Context, req ports.ScoreRequest) (float64, error) {
	body := analyzeRequest{ActionCode: req.ActionCode, ActionName: req.ActionName}
	path := framesPath
	if len(req.Poses) > 0 {
		path = posesPath
		body.PoseFrames = make([][][]float64, 0, len(req.Poses))
		for _, p := range req.Poses {
			body.PoseFrames = append(body.PoseFrames, p.Landmarks)
		}
		body.FrameCount = len(req.Poses)
	} else {
		if len(req.Frames) == 0 {
			return 0, fmt.Errorf("%w: no evidence", ErrRejected)
		}
		body.Frames = make([]string, 0, len(req.Frames))
		for _, f := range req.Frames {
			body.Frames = append(body.Frames, f.Data)
		}
		body.FrameCount = len(req.Frames)
	}

	ctx, span := c.tracer.Start(ctx, "scorer.analyze", trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(telemetry.ScorerAttributes(path, req.ActionCode, body.FrameCount)...)
	defer span.End()

	if err := c.limiter.Wait(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rate limited")
		return 0, fmt.Errorf("scorer rate limit: %w", err)
	}

	var out analyzeResponse
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.post(ctx, path, body, &out)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}

	if out.Judgment == nil || *out.Judgment < 0 || *out.Judgment > MaxJudgment {
		err := errors.New("scorer returned invalid judgment")
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}
	if out.ActionCode != nil && *out.ActionCode != req.ActionCode {
		log.L().Debug().
			Str(log.FieldSessionID, req.SessionID).
			Int(log.FieldActionCode, req.ActionCode).
			Int("returned_action_code", *out.ActionCode).
			Str("predicted", out.PredictedLabel).
			Msg("scorer echoed a different action code")
	}
	v := float64(*out.Judgment) / MaxJudgment
	span.SetAttributes(telemetry.HTTPAttributes(http.MethodPost, path, c.baseURL+path, http.StatusOK)...)
	span.SetStatus(codes.Ok, "")
	return v, nil
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode scorer request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("scorer request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read scorer response: %w", err)
	}
	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("scorer status %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode scorer response: %w", err)
	}
	return nil
}

// BreakerState exposes the breaker for health reporting.
func (c *Client) BreakerState() resilience.State {
	return c.breaker.State()
}

var _ ports.Scorer = (*Client)(nil)
