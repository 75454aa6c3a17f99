package api

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/rbright/nexa/internal/feedback"
)

type createFeedbackResponse struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (s *Server) createFeedback(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), requestTimeout)
	defer cancel()

	var item feedback.Item
	if err := c.BodyParser(&item); err != nil {
		return badRequest("invalid feedback body: %v", err)
	}
	item.Command = strings.TrimSpace(item.Command)
	item.SessionID = strings.TrimSpace(item.SessionID)
	if err := s.validator.StructCtx(ctx, item); err != nil {
		return validationError(err)
	}
	if item.Confidence < 0 || item.Confidence > 1 {
		return badRequest("confidence must be within [0, 1]")
	}
	if item.ID == "" {
		item.ID = s.newID()
	}
	if item.Timestamp == 0 {
		item.Timestamp = s.now().UnixMilli()
	}
	if item.UserAgent == "" {
		item.UserAgent = c.Get(fiber.HeaderUserAgent)
	}

	record, created, err := s.store.Create(ctx, item)
	if err != nil {
		return err
	}
	if !created {
		return c.Status(fiber.StatusOK).JSON(createFeedbackResponse{
			ID:      record.ID,
			Status:  "duplicate",
			Message: "Feedback already recorded",
		})
	}
	s.logger.Info("feedback recorded",
		"request_id", requestIDFrom(c),
		"id", record.ID,
		"session_id", record.SessionID,
		"rating", record.Rating,
	)
	return c.Status(fiber.StatusCreated).JSON(createFeedbackResponse{
		ID:      record.ID,
		Status:  "received",
		Message: "Feedback received",
	})
}

// validationError answers with the messages the feedback client reports for
// the same checks.
func validationError(err error) *Error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return badRequest("invalid feedback: %v", err)
	}
	for _, fe := range fieldErrs {
		if fe.Tag() == "required" {
			return badRequest("%s", feedback.MessageMissingFields)
		}
	}
	return badRequest("%s", feedback.MessageRatingRange)
}

func (s *Server) sessionFeedback(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), requestTimeout)
	defer cancel()

	sessionID := strings.TrimSpace(c.Params("id"))
	if sessionID == "" {
		return badRequest("session id is required")
	}
	records, err := s.store.BySession(ctx, sessionID)
	if err != nil {
		return err
	}
	items := make([]feedback.Item, 0, len(records))
	for _, record := range records {
		items = append(items, record.Item)
	}
	return c.JSON(feedback.SessionFeedback{Feedback: items, Total: len(items)})
}

func (s *Server) analytics(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), requestTimeout)
	defer cancel()

	out, err := s.store.Analytics(ctx)
	if err != nil {
		return err
	}
	return c.JSON(out)
}

func (s *Server) suggestions(c *fiber.Ctx) error {
	command := strings.TrimSpace(c.Query("command"))
	if command == "" {
		return badRequest("command is required")
	}
	found := s.suggester.Suggest(command, suggestionLimit)
	out := make([]feedback.Suggestion, 0, len(found))
	for _, sg := range found {
		out = append(out, feedback.Suggestion{
			Original:   sg.Original,
			Suggested:  sg.Suggested,
			Confidence: sg.Confidence,
			Category:   sg.Category,
		})
	}
	return c.JSON(fiber.Map{"suggestions": out})
}

// dayBounds converts inclusive YYYY-MM-DD dates to a half-open millisecond range.
func dayBounds(filters feedback.ExportFilters) (int64, int64, error) {
	from := int64(0)
	to := int64(1<<63 - 1)
	if start := strings.TrimSpace(filters.StartDate); start != "" {
		day, err := time.Parse(time.DateOnly, start)
		if err != nil {
			return 0, 0, badRequest("startDate must be YYYY-MM-DD")
		}
		from = day.UnixMilli()
	}
	if end := strings.TrimSpace(filters.EndDate); end != "" {
		day, err := time.Parse(time.DateOnly, end)
		if err != nil {
			return 0, 0, badRequest("endDate must be YYYY-MM-DD")
		}
		to = day.AddDate(0, 0, 1).UnixMilli()
	}
	if from >= to {
		return 0, 0, badRequest("startDate must not be after endDate")
	}
	return from, to, nil
}
