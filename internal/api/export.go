package api

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/rbright/nexa/internal/api/repository"
	"github.com/rbright/nexa/internal/feedback"
)

type exportRequest struct {
	Format  string                 `json:"format"`
	Filters feedback.ExportFilters `json:"filters"`
}

var csvHeader = []string{"id", "sessionId", "command", "rating", "comment", "confidence", "timestamp", "userAgent"}

func (s *Server) export(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), requestTimeout)
	defer cancel()

	var req exportRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest("invalid export body: %v", err)
		}
	}
	format := strings.ToLower(strings.TrimSpace(req.Format))
	if format == "" {
		format = "json"
	}
	if format != "json" && format != "csv" {
		return badRequest("format must be json or csv")
	}
	from, to, err := dayBounds(req.Filters)
	if err != nil {
		return err
	}

	records, err := s.store.Range(ctx, from, to)
	if err != nil {
		return err
	}
	filename := "voice-feedback." + format
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, filename))

	if format == "json" {
		return c.JSON(fiber.Map{"feedback": records, "total": len(records)})
	}
	payload, err := encodeCSV(ctx, records)
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	return c.Send(payload)
}

func encodeCSV(ctx context.Context, records []repository.Record) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}
	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row := []string{
			r.ID,
			r.SessionID,
			r.Command,
			strconv.Itoa(r.Rating),
			r.Comment,
			strconv.FormatFloat(r.Confidence, 'f', -1, 64),
			strconv.FormatInt(r.Timestamp, 10),
			r.UserAgent,
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}
