package feedback

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// SuggestionStatus tracks a user suggestion through review.
type SuggestionStatus string

const (
	SuggestionPending     SuggestionStatus = "pending"
	SuggestionReviewed    SuggestionStatus = "reviewed"
	SuggestionImplemented SuggestionStatus = "implemented"
	SuggestionRejected    SuggestionStatus = "rejected"
)

// Valid reports whether s is a known status.
func (s SuggestionStatus) Valid() bool {
	switch s {
	case SuggestionPending, SuggestionReviewed, SuggestionImplemented, SuggestionRejected:
		return true
	}
	return false
}

const (
	DefaultSuggestionPriority = 3

	MessageSuggestionFields = "Missing required fields: suggestedCommand, expectedAction, category"
	MessagePriorityRange    = "Priority must be between 1 and 5"
	MessageVoteValue        = "Vote must be 1 or -1"
	MessageUnknownStatus    = "Status must be one of pending, reviewed, implemented, rejected"
)

// CommandSuggestion is a phrase a user wants the grammar to learn.
type CommandSuggestion struct {
	ID             string           `json:"id,omitempty"`
	Phrase         string           `json:"suggestedCommand" validate:"required"`
	ExpectedAction string           `json:"expectedAction" validate:"required"`
	Category       string           `json:"category" validate:"required"`
	Description    string           `json:"description,omitempty"`
	Priority       int              `json:"priority" validate:"min=0,max=5"`
	Status         SuggestionStatus `json:"status,omitempty"`
	Votes          int              `json:"votes"`
	Tags           []string         `json:"tags"`
	Timestamp      int64            `json:"timestamp"`

	LastVotedAt     int64  `json:"lastVotedAt,omitempty"`
	StatusNotes     string `json:"statusNotes,omitempty"`
	StatusUpdatedAt int64  `json:"statusUpdatedAt,omitempty"`
}

// SuggestionFilter narrows a suggestion listing. Zero fields match everything.
type SuggestionFilter struct {
	Category string
	Status   SuggestionStatus
	Priority int
}

// Matches reports whether s passes every set field of f.
func (f SuggestionFilter) Matches(s CommandSuggestion) bool {
	switch {
	case f.Category != "" && s.Category != f.Category:
		return false
	case f.Status != "" && s.Status != f.Status:
		return false
	case f.Priority != 0 && s.Priority != f.Priority:
		return false
	}
	return true
}

func (f SuggestionFilter) query() url.Values {
	values := url.Values{}
	if f.Category != "" {
		values.Set("category", f.Category)
	}
	if f.Status != "" {
		values.Set("status", string(f.Status))
	}
	if f.Priority != 0 {
		values.Set("priority", strconv.Itoa(f.Priority))
	}
	return values
}

// NormalizeSuggestion trims s, validates it and fills the defaults a new
// suggestion starts with: pending status, no votes, priority 3 and tags.
func NormalizeSuggestion(s CommandSuggestion) (CommandSuggestion, error) {
	s.Phrase = strings.TrimSpace(s.Phrase)
	s.ExpectedAction = strings.TrimSpace(s.ExpectedAction)
	s.Category = strings.TrimSpace(s.Category)
	s.Description = strings.TrimSpace(s.Description)

	if err := validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				if fe.Tag() == "required" {
					return CommandSuggestion{}, &ValidationError{Message: MessageSuggestionFields}
				}
			}
			return CommandSuggestion{}, &ValidationError{Message: MessagePriorityRange}
		}
		return CommandSuggestion{}, &ValidationError{Message: err.Error()}
	}
	if s.Priority == 0 {
		s.Priority = DefaultSuggestionPriority
	}
	s.Status = SuggestionPending
	s.Votes = 0
	s.Tags = SuggestionTags(s)
	return s, nil
}

// SuggestionTags labels high priority and detailed suggestions.
func SuggestionTags(s CommandSuggestion) []string {
	tags := []string{}
	if s.Priority >= 4 {
		tags = append(tags, "high-priority")
	}
	if len(s.Description) > 100 {
		tags = append(tags, "detailed-suggestion")
	}
	return tags
}

// ValidateVote accepts a single up or down vote.
func ValidateVote(vote int) error {
	if vote != 1 && vote != -1 {
		return &ValidationError{Message: MessageVoteValue}
	}
	return nil
}

// ValidateStatus rejects statuses outside the review workflow.
func ValidateStatus(status SuggestionStatus) error {
	if !status.Valid() {
		return &ValidationError{Message: MessageUnknownStatus}
	}
	return nil
}

// SortSuggestions orders by votes, then newest first.
func SortSuggestions(suggestions []CommandSuggestion) {
	sort.SliceStable(suggestions, func(i, j int) bool {
		if suggestions[i].Votes != suggestions[j].Votes {
			return suggestions[i].Votes > suggestions[j].Votes
		}
		return suggestions[i].Timestamp > suggestions[j].Timestamp
	})
}

// SubmitSuggestion validates s and posts it to the feedback API.
func (c *Client) SubmitSuggestion(ctx context.Context, s CommandSuggestion) (CommandSuggestion, error) {
	s, err := NormalizeSuggestion(s)
	if err != nil {
		return CommandSuggestion{}, err
	}
	if s.Timestamp == 0 {
		s.Timestamp = c.now().UnixMilli()
	}
	var out CommandSuggestion
	if err := c.sendJSON(ctx, http.MethodPost, pathProposals, s, &out); err != nil {
		return CommandSuggestion{}, err
	}
	return out, nil
}

// Vote adds an up (1) or down (-1) vote to the suggestion with id.
func (c *Client) Vote(ctx context.Context, id string, vote int) (CommandSuggestion, error) {
	if err := ValidateVote(vote); err != nil {
		return CommandSuggestion{}, err
	}
	path, err := suggestionPath(id, "vote")
	if err != nil {
		return CommandSuggestion{}, err
	}
	var out CommandSuggestion
	if err := c.sendJSON(ctx, http.MethodPost, path, map[string]int{"vote": vote}, &out); err != nil {
		return CommandSuggestion{}, err
	}
	return out, nil
}

// CommandSuggestions lists submitted suggestions matching filter, most voted first.
func (c *Client) CommandSuggestions(ctx context.Context, filter SuggestionFilter) ([]CommandSuggestion, error) {
	var out struct {
		Suggestions []CommandSuggestion `json:"suggestions"`
	}
	if err := c.getJSON(ctx, pathProposals, filter.query(), &out); err != nil {
		return nil, err
	}
	if out.Suggestions == nil {
		return []CommandSuggestion{}, nil
	}
	return out.Suggestions, nil
}

// UpdateSuggestionStatus moves a suggestion through review with optional notes.
func (c *Client) UpdateSuggestionStatus(ctx context.Context, id string, status SuggestionStatus, notes string) (CommandSuggestion, error) {
	if err := ValidateStatus(status); err != nil {
		return CommandSuggestion{}, err
	}
	path, err := suggestionPath(id, "status")
	if err != nil {
		return CommandSuggestion{}, err
	}
	body := struct {
		Status SuggestionStatus `json:"status"`
		Notes  string           `json:"notes,omitempty"`
	}{Status: status, Notes: notes}
	var out CommandSuggestion
	if err := c.sendJSON(ctx, http.MethodPut, path, body, &out); err != nil {
		return CommandSuggestion{}, err
	}
	return out, nil
}

// Resolve marks the stored feedback item with id as handled.
func (c *Client) Resolve(ctx context.Context, id, resolution string) (Item, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Item{}, &ValidationError{Message: "feedback id is required"}
	}
	body := map[string]string{"resolution": strings.TrimSpace(resolution)}
	var out Item
	if err := c.sendJSON(ctx, http.MethodPost, pathFeedback+"/"+url.PathEscape(id)+"/resolve", body, &out); err != nil {
		return Item{}, err
	}
	return out, nil
}

func suggestionPath(id, action string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", &ValidationError{Message: "suggestion id is required"}
	}
	return pathProposals + "/" + url.PathEscape(id) + "/" + action, nil
}

func (c *Client) sendJSON(ctx context.Context, method, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", path, err)
	}
	payload, err := c.do(ctx, method, path, nil, body)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
