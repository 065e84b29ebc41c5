package web

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/teslashibe/go-steadyscan/pkg/hub"
	"github.com/teslashibe/go-steadyscan/pkg/stability"
)

// handleStatus returns the server summary
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.Status())
}

// handleGetEvents returns recent session events
func (s *Server) handleGetEvents(c *fiber.Ctx) error {
	return c.JSON(s.Events())
}

// handleGetConfig returns the stability config applied to new sessions
func (s *Server) handleGetConfig(c *fiber.Ctx) error {
	return c.JSON(s.cameras.StabilityConfig())
}

// handlePutConfig replaces the stability config for new sessions.
// Omitted fields keep their current value.
func (s *Server) handlePutConfig(c *fiber.Ctx) error {
	cfg := s.cameras.StabilityConfig()
	if err := c.BodyParser(&cfg); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	if err := s.cameras.SetStabilityConfig(cfg); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	s.logger.Info("stability config updated",
		"history_size", cfg.HistorySize,
		"threshold", cfg.Threshold,
	)
	return c.JSON(cfg)
}

// handleEventsWS streams session events, starting with the buffered backlog
func (s *Server) handleEventsWS(c *websocket.Conn) {
	var backlog []hub.Message
	for _, e := range s.Events() {
		msg, err := hub.EncodeJSON(e)
		if err != nil {
			continue
		}
		backlog = append(backlog, msg)
	}

	hub.NewClient(s.eventHub, c, backlog...).Run()
}

// handlePreviewWS streams tagged JPEG previews of incoming camera frames
func (s *Server) handlePreviewWS(c *websocket.Conn) {
	hub.NewClient(s.previewHub, c).Run()
}

// handleListPresets returns the named stability configs
func (s *Server) handleListPresets(c *fiber.Ctx) error {
	return c.JSON(stability.Presets())
}

// handleApplyPreset applies a named stability config to new sessions
func (s *Server) handleApplyPreset(c *fiber.Ctx) error {
	name := c.Params("name")
	cfg, ok := stability.Preset(name)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "unknown preset: " + name,
		})
	}

	if err := s.cameras.SetStabilityConfig(cfg); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	s.logger.Info("stability preset applied", "preset", name)
	return c.JSON(cfg)
}
