// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/stepcoach/internal/domain/game/lifecycle"
	"github.com/ManuGH/stepcoach/internal/domain/game/manager"
	"github.com/ManuGH/stepcoach/internal/domain/game/model"
	"github.com/ManuGH/stepcoach/internal/domain/game/ports"
	"github.com/ManuGH/stepcoach/internal/log"
)

// Message types on the session socket that are not bus events.
const (
	wsTypeFrame = "frame"
	wsTypePose  = "pose"
	wsTypeAck   = "ACK"
	wsTypeError = "ERROR"
)

// wsInbound is one evidence unit sent by the device.
type wsInbound struct {
	Type      string      `json:"type"`
	Timestamp *float64    `json:"timestamp"`
	Frame     string      `json:"frame,omitempty"`
	Landmarks [][]float64 `json:"landmarks,omitempty"`
	SongID    string      `json:"songId,omitempty"`
}

type wsOutbound struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Data      any    `json:"data,omitempty"`
}

type wsErrorData struct {
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

var errSessionEnded = errors.New("session ended")

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if len(s.cfg.AllowedOrigins) == 0 {
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// handleSessionWS relays the session's bus events to the device and
// accepts evidence on the same socket. The socket closes after the
// terminal event.
func (s *Server) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	sid := chi.URLParam(r, "id")
	if s.deps.Bus == nil {
		writeProblem(w, r, errUnsupportedFeat.status, errUnsupportedFeat.typ, errUnsupportedFeat.code, "event bus not configured")
		return
	}
	ctx := log.ContextWithSessionID(r.Context(), sid)
	p, err := s.deps.Games.Snapshot(ctx, sid)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if p.State.IsTerminal() {
		s.writeError(w, r, lifecycle.ErrStaleSession)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered the client.
		return
	}
	defer func() { _ = conn.Close() }()
	conn.SetReadLimit(s.cfg.WSReadLimit)

	sub, err := s.deps.Bus.Subscribe(ctx, ports.SessionTopic(sid))
	if err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscribe failed"), time.Now().Add(time.Second))
		return
	}
	defer func() { _ = sub.Close() }()

	logger := log.WithComponentFromContext(ctx, "ws")
	logger.Info().Str(log.FieldEvent, "ws.connected").Msg("session socket connected")

	out := make(chan wsOutbound, 32)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer func() { _ = conn.SetReadDeadline(time.Now()) }()
		return s.wsWriteLoop(gctx, conn, sid, sub, out)
	})
	g.Go(func() error {
		return s.wsReadLoop(gctx, conn, sid, out)
	})

	err = g.Wait()
	switch {
	case err == nil, errors.Is(err, errSessionEnded), websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		logger.Info().Str(log.FieldEvent, "ws.closed").Msg("session socket closed")
	default:
		logger.Debug().Err(err).Str(log.FieldEvent, "ws.closed").Msg("session socket closed with error")
	}
}

func (s *Server) wsWriteLoop(ctx context.Context, conn *websocket.Conn, sid string, sub ports.Subscription, out <-chan wsOutbound) error {
	ping := time.NewTicker(s.cfg.WSPingInterval)
	defer ping.Stop()

	write := func(msg any) error {
		_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WSWriteTimeout))
		return conn.WriteJSON(msg)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.C():
			if !ok {
				return errSessionEnded
			}
			if err := write(wsOutbound{Type: ev.Type, SessionID: ev.SessionID, Data: json.RawMessage(ev.Data)}); err != nil {
				return err
			}
			if ev.Type == ports.EventGameCompleted || ev.Type == ports.EventGameInterrupted {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, strings.ToLower(ev.Type)),
					time.Now().Add(s.cfg.WSWriteTimeout))
				return errSessionEnded
			}
		case msg := <-out:
			if msg.SessionID == "" {
				msg.SessionID = sid
			}
			if err := write(msg); err != nil {
				return err
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.cfg.WSWriteTimeout)); err != nil {
				return err
			}
		}
	}
}

func (s *Server) wsReadLoop(ctx context.Context, conn *websocket.Conn, sid string, out chan<- wsOutbound) error {
	readWait := 3 * s.cfg.WSPingInterval
	_ = conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readWait))
	})

	send := func(msg wsOutbound) error {
		select {
		case out <- msg:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	for {
		typ, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(readWait))
		if typ != websocket.TextMessage {
			if err := send(wsOutbound{Type: wsTypeError, Data: wsErrorData{Code: "INVALID_REQUEST", Detail: "text frames only"}}); err != nil {
				return err
			}
			continue
		}

		ack, err := s.ingestWS(ctx, sid, data)
		if err != nil {
			e := classify(err)
			if err := send(wsOutbound{Type: wsTypeError, Data: wsErrorData{Code: e.code, Detail: err.Error()}}); err != nil {
				return err
			}
			continue
		}
		if err := send(wsOutbound{Type: wsTypeAck, Data: ack}); err != nil {
			return err
		}
	}
}

func (s *Server) ingestWS(ctx context.Context, sid string, data []byte) (manager.Ack, error) {
	var in wsInbound
	if err := json.Unmarshal(data, &in); err != nil {
		return manager.Ack{}, errors.Join(lifecycle.ErrInvalidRequest, err)
	}
	if in.Timestamp == nil {
		return manager.Ack{}, errors.Join(lifecycle.ErrInvalidRequest, errors.New("timestamp is required"))
	}
	switch in.Type {
	case wsTypeFrame:
		return s.deps.Games.IngestFrame(ctx, sid, in.SongID, model.FrameSample{At: *in.Timestamp, Data: in.Frame})
	case wsTypePose:
		return s.deps.Games.IngestPose(ctx, sid, in.SongID, model.PoseSample{At: *in.Timestamp, Landmarks: in.Landmarks})
	default:
		return manager.Ack{}, errors.Join(lifecycle.ErrInvalidRequest, errors.New("type must be frame or pose"))
	}
}
