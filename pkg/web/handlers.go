package web

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/studiokit/voicelive/pkg/hub"
)

// handleState returns the current session snapshot.
func (s *Server) handleState(c *fiber.Ctx) error {
	return c.JSON(s.view())
}

// handleTurns returns recent completed turns.
func (s *Server) handleTurns(c *fiber.Ctx) error {
	s.turnsMu.RLock()
	defer s.turnsMu.RUnlock()
	return c.JSON(s.turns)
}

// SendTextRequest is the body for injecting a text turn.
type SendTextRequest struct {
	Text string `json:"text"`
}

// handleSendText injects a user text turn into the live session.
func (s *Server) handleSendText(c *fiber.Ctx) error {
	var req SendTextRequest
	if err := c.BodyParser(&req); err != nil || req.Text == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "text is required",
		})
	}

	if err := s.controller.SendText(req.Text); err != nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(fiber.Map{"sent": true})
}

// handleDisconnect tears the session down.
func (s *Server) handleDisconnect(c *fiber.Ctx) error {
	if err := s.controller.Disconnect(); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(fiber.Map{"state": string(s.controller.State())})
}

// handleStateWS streams state and turn updates to the client.
func (s *Server) handleStateWS(c *websocket.Conn) {
	// Current snapshot first, then live updates.
	c.WriteJSON(s.view())
	hub.NewClient(s.stateHub, c).Run()
}

// handleSnapshotWS streams camera snapshots to the client.
func (s *Server) handleSnapshotWS(c *websocket.Conn) {
	hub.NewClient(s.snapshotHub, c).Run()
}
