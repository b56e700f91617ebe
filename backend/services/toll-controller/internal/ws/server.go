package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"tollbooth/backend/services/toll-controller/internal/http/middleware"
	"tollbooth/backend/services/toll-controller/internal/service"
)

// StatusReader supplies the snapshot sent on connect.
type StatusReader interface {
	Snapshot() service.StatusSnapshot
}

// Server upgrades HTTP connections to status streams.
type Server struct {
	ctx          context.Context
	hub          *Hub
	status       StatusReader
	logger       *zap.Logger
	writeTimeout time.Duration
	upgrader     websocket.Upgrader
}

// NewServer builds ws server. Connections close when ctx ends.
func NewServer(ctx context.Context, hub *Hub, status StatusReader, writeTimeout time.Duration, logger *zap.Logger) *Server {
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &Server{
		ctx:          ctx,
		hub:          hub,
		status:       status,
		logger:       logger,
		writeTimeout: writeTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// HandleStatus is the HTTP handler for /ws/status.
func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(s.ctx)
	client := NewClient(uuid.NewString(), conn, s.writeTimeout, s.logger, func(id string) {
		s.hub.Remove(id)
		cancel()
	})

	// Registered before the snapshot is read, so a change in between is still broadcast.
	s.hub.Add(client)
	if data, err := json.Marshal(s.status.Snapshot()); err == nil {
		client.Send(data)
	}

	go client.Start(ctx)

	fields := []zap.Field{zap.String("client_id", client.ID())}
	if operator, ok := middleware.OperatorFromContext(r.Context()); ok {
		fields = append(fields, zap.String("operator", operator))
	}
	s.logger.Info("status client connected", fields...)
}
