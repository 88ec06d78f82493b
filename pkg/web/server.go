// Package web provides a realtime dashboard for a live voice session:
// current state over REST and websocket, turn metrics, and the camera
// snapshot feed.
package web

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/studiokit/voicelive/pkg/hub"
	"github.com/studiokit/voicelive/pkg/session"
)

// SessionView is the dashboard's snapshot of the session.
type SessionView struct {
	Kind      string  `json:"kind"`
	State     string  `json:"state"`
	SessionID string  `json:"session_id,omitempty"`
	Speaking  bool    `json:"speaking"`
	Listening bool    `json:"listening"`
	Volume    float64 `json:"volume"`
	Turns     int64   `json:"turns"`
}

// TurnView is one completed conversation turn.
type TurnView struct {
	Kind              string `json:"kind"`
	Time              string `json:"time"`
	FirstAudioLatency string `json:"first_audio_latency"`
	AudioChunksIn     int    `json:"audio_chunks_in"`
	AudioChunksOut    int    `json:"audio_chunks_out"`
	ToolCalls         int    `json:"tool_calls"`
	Interrupted       bool   `json:"interrupted"`
}

// Server is the dashboard server.
type Server struct {
	app    *fiber.App
	port   string
	logger *slog.Logger

	controller *session.Controller

	stateHub    *hub.Hub
	snapshotHub *hub.Hub

	turnsMu sync.RWMutex
	turns   []TurnView
}

// NewServer creates a dashboard server bound to a session controller.
func NewServer(port string, controller *session.Controller, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		port:        port,
		logger:      logger.With("component", "web"),
		controller:  controller,
		stateHub:    hub.New("state", logger),
		snapshotHub: hub.New("snapshots", logger),
		turns:       make([]TurnView, 0, 100),
	}

	app := fiber.New(fiber.Config{
		AppName:               "voicelive dashboard",
		DisableStartupMessage: true,
	})

	// CORS for local development.
	app.Use(cors.New())

	app.Static("/", "./web")

	api := app.Group("/api")
	api.Get("/state", s.handleState)
	api.Get("/turns", s.handleTurns)
	api.Post("/text", s.handleSendText)
	api.Post("/disconnect", s.handleDisconnect)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/state", websocket.New(s.handleStateWS))
	app.Get("/ws/snapshots", websocket.New(s.handleSnapshotWS))

	s.app = app
	return s
}

// Start runs the hubs and blocks serving HTTP.
func (s *Server) Start() error {
	s.logger.Info("dashboard listening", "addr", "http://localhost:"+s.port)

	go s.stateHub.Run()
	go s.snapshotHub.Run()

	return s.app.Listen(":" + s.port)
}

// StartAsync starts the server in a goroutine.
func (s *Server) StartAsync() {
	go func() {
		if err := s.Start(); err != nil {
			s.logger.Error("dashboard server failed", "error", err)
		}
	}()
}

// PublishState broadcasts the current session snapshot.
func (s *Server) PublishState() {
	s.stateHub.BroadcastJSON(s.view())
}

// RecordTurn stores a completed turn and broadcasts it.
func (s *Server) RecordTurn(m session.Metrics) {
	entry := TurnView{
		Kind:              "turn",
		Time:              time.Now().Format("15:04:05"),
		FirstAudioLatency: m.FirstAudioLatency.String(),
		AudioChunksIn:     m.AudioChunksIn,
		AudioChunksOut:    m.AudioChunksOut,
		ToolCalls:         m.ToolCalls,
		Interrupted:       m.Interrupted,
	}

	s.turnsMu.Lock()
	s.turns = append(s.turns, entry)
	if len(s.turns) > 100 {
		s.turns = s.turns[1:]
	}
	s.turnsMu.Unlock()

	s.stateHub.BroadcastJSON(entry)
}

// PublishSnapshot broadcasts a camera snapshot to the feed.
func (s *Server) PublishSnapshot(jpegData []byte) {
	s.snapshotHub.BroadcastBinary(jpegData)
}

// view assembles the current session snapshot.
func (s *Server) view() SessionView {
	return SessionView{
		Kind:      "state",
		State:     string(s.controller.State()),
		SessionID: s.controller.SessionID(),
		Speaking:  s.controller.IsSpeaking(),
		Listening: s.controller.IsListening(),
		Volume:    s.controller.Volume(),
		Turns:     s.controller.Turns(),
	}
}

// Shutdown gracefully stops the server and its hubs.
func (s *Server) Shutdown() error {
	s.stateHub.Stop()
	s.snapshotHub.Stop()
	return s.app.Shutdown()
}
