// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package host

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/openchoreo/statepatch/internal/logging"
)

// WebSocketConfig tunes a WebSocketServer.
type WebSocketConfig struct {
	// HeartbeatInterval is how often the server pings each client.
	HeartbeatInterval time.Duration
	// HeartbeatTimeout closes a connection that has not answered a ping.
	HeartbeatTimeout time.Duration
	// MaxMessageSize limits a single batch message in bytes.
	MaxMessageSize int64
}

// replyMessage is written back for every batch message.
type replyMessage struct {
	Outcome *Outcome `json:"outcome,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// WebSocketServer accepts batches over WebSocket connections. Each text
// message is one batch; the outcome is written back on the same connection.
type WebSocketServer struct {
	dispatcher Dispatcher
	config     WebSocketConfig
	upgrader   websocket.Upgrader
	logger     *slog.Logger

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
	wg    sync.WaitGroup
}

// NewWebSocketServer creates a WebSocketServer submitting to d.
func NewWebSocketServer(d Dispatcher, config WebSocketConfig, logger *slog.Logger) *WebSocketServer {
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = 30 * time.Second
	}
	if config.HeartbeatTimeout <= 0 {
		config.HeartbeatTimeout = 2 * config.HeartbeatInterval
	}
	if config.MaxMessageSize <= 0 {
		config.MaxMessageSize = maxLineSize
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &WebSocketServer{
		dispatcher: d,
		config:     config,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: logger.With("component", "websocket-source"),
		conns:  make(map[*websocket.Conn]struct{}),
	}
}

func (s *WebSocketServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("failed to upgrade connection", "error", err)
		return
	}
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.forget(conn)
		s.handleConnection(r.Context(), conn, r.RemoteAddr)
	}()
}

// Shutdown sends a close frame to every open connection and waits for their
// handlers to return, or for ctx to end.
func (s *WebSocketServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	deadline := time.Now().Add(time.Second)
	for conn := range s.conns {
		if err := conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
			_ = conn.Close()
		}
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		for conn := range s.conns {
			_ = conn.Close()
		}
		s.mu.Unlock()
		return ctx.Err()
	}
}

func (s *WebSocketServer) forget(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

func (s *WebSocketServer) handleConnection(ctx context.Context, conn *websocket.Conn, remote string) {
	defer conn.Close()
	// the request context ends when the handler returns, not with the connection
	ctx = context.WithoutCancel(ctx)

	var writeMu sync.Mutex
	conn.SetReadLimit(s.config.MaxMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(s.config.HeartbeatTimeout)); err != nil {
		s.logger.Warn("failed to set initial read deadline", "remote", remote, "error", err)
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.config.HeartbeatTimeout))
	})

	done := make(chan struct{})
	defer close(done)
	go s.ping(conn, &writeMu, remote, done)

	s.logger.Info("client connected", "remote", remote)
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket error", "remote", remote, "error", err)
			} else {
				s.logger.Info("client disconnected", "remote", remote)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		if err := conn.SetReadDeadline(time.Now().Add(s.config.HeartbeatTimeout)); err != nil {
			s.logger.Debug("failed to extend read deadline", "remote", remote, "error", err)
		}

		reply := s.process(ctx, data)
		payload, err := json.Marshal(reply)
		if err != nil {
			s.logger.Error("failed to encode reply", "remote", remote, "error", err)
			continue
		}

		writeMu.Lock()
		err = conn.WriteMessage(websocket.TextMessage, payload)
		writeMu.Unlock()
		if err != nil {
			s.logger.Warn("failed to write reply", "remote", remote, "error", err)
			return
		}
	}
}

func (s *WebSocketServer) process(ctx context.Context, data []byte) replyMessage {
	b, err := DecodeBatch(data)
	if err != nil {
		return replyMessage{Error: err.Error()}
	}
	outcome, err := s.dispatcher.Submit(ctx, b)
	if err != nil && !errors.Is(err, ErrSinkFailed) {
		return replyMessage{Error: err.Error()}
	}
	return replyMessage{Outcome: outcome}
}

func (s *WebSocketServer) ping(conn *websocket.Conn, writeMu *sync.Mutex, remote string, done <-chan struct{}) {
	ticker := time.NewTicker(s.config.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second))
			writeMu.Unlock()
			if err != nil {
				s.logger.Debug("failed to send ping", "remote", remote, "error", err)
				return
			}
		}
	}
}
