package api

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/rbright/nexa/internal/api/repository"
	"github.com/rbright/nexa/internal/feedback"
)

func notFound(message string) *Error {
	return &Error{Status: fiber.StatusNotFound, Message: message}
}

// rejection maps client-side validation and missing rows to HTTP errors.
func rejection(err error) error {
	var verr *feedback.ValidationError
	switch {
	case errors.As(err, &verr):
		return badRequest("%s", verr.Message)
	case errors.Is(err, repository.ErrSuggestionNotFound):
		return notFound("Suggestion not found")
	case errors.Is(err, repository.ErrNotFound):
		return notFound("Feedback not found")
	}
	return err
}

func (s *Server) createSuggestion(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), requestTimeout)
	defer cancel()

	var in feedback.CommandSuggestion
	if err := c.BodyParser(&in); err != nil {
		return badRequest("invalid suggestion body: %v", err)
	}
	suggestion, err := feedback.NormalizeSuggestion(in)
	if err != nil {
		return rejection(err)
	}
	suggestion.ID = s.newID()
	suggestion.Timestamp = s.now().UnixMilli()

	stored, err := s.store.CreateSuggestion(ctx, suggestion)
	if err != nil {
		return err
	}
	s.logger.Info("command suggestion recorded",
		"request_id", requestIDFrom(c),
		"id", stored.ID,
		"category", stored.Category,
	)
	return c.Status(fiber.StatusCreated).JSON(stored)
}

func (s *Server) listSuggestions(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), requestTimeout)
	defer cancel()

	filter := feedback.SuggestionFilter{
		Category: strings.TrimSpace(c.Query("category")),
		Status:   feedback.SuggestionStatus(strings.TrimSpace(c.Query("status"))),
		Priority: c.QueryInt("priority"),
	}
	if filter.Status != "" {
		if err := feedback.ValidateStatus(filter.Status); err != nil {
			return rejection(err)
		}
	}
	found, err := s.store.Suggestions(ctx, filter)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"suggestions": found, "total": len(found)})
}

func (s *Server) voteSuggestion(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), requestTimeout)
	defer cancel()

	var in struct {
		Vote int `json:"vote"`
	}
	if err := c.BodyParser(&in); err != nil {
		return badRequest("invalid vote body: %v", err)
	}
	if err := feedback.ValidateVote(in.Vote); err != nil {
		return rejection(err)
	}
	updated, err := s.store.Vote(ctx, c.Params("id"), in.Vote)
	if err != nil {
		return rejection(err)
	}
	return c.JSON(updated)
}

func (s *Server) updateSuggestionStatus(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), requestTimeout)
	defer cancel()

	var in struct {
		Status feedback.SuggestionStatus `json:"status"`
		Notes  string                    `json:"notes"`
	}
	if err := c.BodyParser(&in); err != nil {
		return badRequest("invalid status body: %v", err)
	}
	if err := feedback.ValidateStatus(in.Status); err != nil {
		return rejection(err)
	}
	updated, err := s.store.UpdateSuggestionStatus(ctx, c.Params("id"), in.Status, strings.TrimSpace(in.Notes))
	if err != nil {
		return rejection(err)
	}
	s.logger.Info("command suggestion reviewed",
		"request_id", requestIDFrom(c),
		"id", updated.ID,
		"status", string(updated.Status),
	)
	return c.JSON(updated)
}

func (s *Server) resolveFeedback(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), requestTimeout)
	defer cancel()

	var in struct {
		Resolution string `json:"resolution"`
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&in); err != nil {
			return badRequest("invalid resolution body: %v", err)
		}
	}
	record, err := s.store.Resolve(ctx, c.Params("id"), strings.TrimSpace(in.Resolution))
	if err != nil {
		return rejection(err)
	}
	return c.JSON(record.Item)
}
