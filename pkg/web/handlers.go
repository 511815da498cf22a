package web

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/voxcart/voxcart/pkg/engine"
	"github.com/voxcart/voxcart/pkg/transcribe"
)

// StartConversationRequest is the body for POST /api/conversations.
type StartConversationRequest struct {
	UserID string `json:"user_id"`
}

// TextTurnRequest is the body for POST /api/text.
type TextTurnRequest struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	Query          string `json:"query"`
	Audio          bool   `json:"audio"`
}

func (s *Server) handleStartConversation(c *fiber.Ctx) error {
	var req StartConversationRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	state, err := s.engine.StartConversation(c.Context(), req.UserID)
	if err != nil {
		return s.turnError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"conversation_id": state.ID,
		"user_id":         state.UserID,
		"voice":           state.Voice,
	})
}

// handleVoiceTurn accepts raw audio bytes as the request body. The format
// and user id travel as query parameters.
func (s *Server) handleVoiceTurn(c *fiber.Ctx) error {
	conversationID := c.Params("id")
	userID := c.Query("user_id")
	format := c.Query("format", "wav")

	audio := c.Body()
	result, err := s.engine.ProcessVoiceTurn(c.Context(), conversationID, userID, audio, format)
	if err != nil {
		return s.turnError(c, err)
	}
	return c.JSON(result)
}

func (s *Server) handleTextTurn(c *fiber.Ctx) error {
	var req TextTurnRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	result, err := s.engine.ProcessTextTurn(c.Context(), req.ConversationID, req.UserID, req.Query, req.Audio)
	if err != nil {
		return s.turnError(c, err)
	}
	return c.JSON(result)
}

func (s *Server) handleEndConversation(c *fiber.Ctx) error {
	if err := s.engine.EndConversation(c.Context(), c.Params("id")); err != nil {
		return s.turnError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleHistory(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	entries, err := s.engine.History(c.Context(), c.Params("id"), limit)
	if err != nil {
		return s.turnError(c, err)
	}
	return c.JSON(fiber.Map{
		"user_id": c.Params("id"),
		"entries": entries,
	})
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	return c.JSON(fiber.Map{
		"status":    "ok",
		"breakers":  s.engine.BreakerStates(),
		"in_flight": s.engine.InFlight(),
		"providers": s.engine.ProviderHealth(ctx),
		"observers": s.events.ClientCount(),
	})
}

// turnError maps engine errors to HTTP status codes.
func (s *Server) turnError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, engine.ErrUserRequired):
		return badRequest(c, err.Error())
	case errors.Is(err, transcribe.ErrEmptyAudio),
		errors.Is(err, transcribe.ErrAudioTooShort),
		errors.Is(err, transcribe.ErrAudioTooLarge):
		return badRequest(c, err.Error())
	case errors.Is(err, engine.ErrNoUsableInput):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": err.Error(),
		})
	default:
		s.logger.Error("request failed", "path", c.Path(), "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal error",
		})
	}
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}
