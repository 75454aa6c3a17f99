package feedback

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// SessionFeedback is the feedback recorded for one voice session.
type SessionFeedback struct {
	Feedback []Item `json:"feedback"`
	Total    int    `json:"total"`
}

// Analytics aggregates every stored rating on the server.
type Analytics struct {
	AverageRating      float64        `json:"averageRating"`
	TotalFeedback      int            `json:"totalFeedback"`
	RatingDistribution map[string]int `json:"ratingDistribution"`
	CommonIssues       []string       `json:"commonIssues"`
	Trends             Trends         `json:"trends"`
	ImprovementAreas   []AreaCount    `json:"improvementAreas"`

	TotalSuggestions    int            `json:"totalSuggestions"`
	SuggestionsByStatus map[string]int `json:"suggestionsByStatus"`
}

// Suggestion proposes a grammar phrase for a misheard command.
type Suggestion struct {
	Original   string  `json:"original"`
	Suggested  string  `json:"suggested"`
	Confidence float64 `json:"confidence"`
	Category   string  `json:"category"`
}

// ExportFilters bounds an export by inclusive YYYY-MM-DD dates.
type ExportFilters struct {
	StartDate string `json:"startDate,omitempty"`
	EndDate   string `json:"endDate,omitempty"`
}

// BySession fetches the feedback recorded for sessionID.
func (c *Client) BySession(ctx context.Context, sessionID string) (SessionFeedback, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return SessionFeedback{}, &ValidationError{Message: "session id is required"}
	}
	var out SessionFeedback
	if err := c.getJSON(ctx, pathSession+url.PathEscape(sessionID), nil, &out); err != nil {
		return SessionFeedback{}, err
	}
	if out.Feedback == nil {
		out.Feedback = []Item{}
	}
	return out, nil
}

// Analytics fetches server-side rating aggregates.
func (c *Client) Analytics(ctx context.Context) (Analytics, error) {
	var out Analytics
	if err := c.getJSON(ctx, pathAnalytics, nil, &out); err != nil {
		return Analytics{}, err
	}
	return out, nil
}

// Suggestions asks the server for grammar phrases close to command.
func (c *Client) Suggestions(ctx context.Context, command string) ([]Suggestion, error) {
	var out struct {
		Suggestions []Suggestion `json:"suggestions"`
	}
	if err := c.getJSON(ctx, pathSuggestions, url.Values{"command": {command}}, &out); err != nil {
		return nil, err
	}
	if out.Suggestions == nil {
		return []Suggestion{}, nil
	}
	return out.Suggestions, nil
}

// Export downloads stored feedback encoded as format ("json" or "csv").
func (c *Client) Export(ctx context.Context, format string, filters ExportFilters) ([]byte, error) {
	body, err := json.Marshal(struct {
		Format  string        `json:"format"`
		Filters ExportFilters `json:"filters"`
	}{Format: format, Filters: filters})
	if err != nil {
		return nil, fmt.Errorf("encode export request: %w", err)
	}
	return c.do(ctx, http.MethodPost, pathExport, nil, body)
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	payload, err := c.do(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
