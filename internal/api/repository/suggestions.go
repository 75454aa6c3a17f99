package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/rbright/nexa/internal/feedback"
)

// ErrSuggestionNotFound is returned when no suggestion row matches.
var ErrSuggestionNotFound = errors.New("suggestion not found")

type suggestionDB struct {
	ID             string `db:"id"`
	Phrase         string `db:"phrase"`
	ExpectedAction string `db:"expected_action"`
	Category       string `db:"category"`
	Description    string `db:"description"`
	Priority       int    `db:"priority"`
	Status         string `db:"status"`
	Votes          int    `db:"votes"`
	Tags           string `db:"tags"`
	SubmittedAt    int64  `db:"submitted_at"`

	LastVotedAt     int64  `db:"last_voted_at"`
	StatusNotes     string `db:"status_notes"`
	StatusUpdatedAt int64  `db:"status_updated_at"`
}

func (s suggestionDB) suggestion() feedback.CommandSuggestion {
	out := feedback.CommandSuggestion{
		ID:              s.ID,
		Phrase:          s.Phrase,
		ExpectedAction:  s.ExpectedAction,
		Category:        s.Category,
		Description:     s.Description,
		Priority:        s.Priority,
		Status:          feedback.SuggestionStatus(s.Status),
		Votes:           s.Votes,
		Tags:            []string{},
		Timestamp:       s.SubmittedAt,
		LastVotedAt:     s.LastVotedAt,
		StatusNotes:     s.StatusNotes,
		StatusUpdatedAt: s.StatusUpdatedAt,
	}
	if s.Tags != "" {
		_ = json.UnmarshalFromString(s.Tags, &out.Tags)
	}
	return out
}

// CreateSuggestion stores a normalized suggestion. The caller assigns ID and Timestamp.
func (r *Repository) CreateSuggestion(ctx context.Context, s feedback.CommandSuggestion) (feedback.CommandSuggestion, error) {
	tags, err := json.MarshalToString(s.Tags)
	if err != nil {
		return feedback.CommandSuggestion{}, fmt.Errorf("encode suggestion tags: %w", err)
	}
	row := suggestionDB{
		ID:             s.ID,
		Phrase:         s.Phrase,
		ExpectedAction: s.ExpectedAction,
		Category:       s.Category,
		Description:    s.Description,
		Priority:       s.Priority,
		Status:         string(s.Status),
		Votes:          s.Votes,
		Tags:           tags,
		SubmittedAt:    s.Timestamp,
	}
	query, args, err := sqlx.Named(queryCreateSuggestion, row)
	if err != nil {
		return feedback.CommandSuggestion{}, fmt.Errorf("build create suggestion query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...); err != nil {
		return feedback.CommandSuggestion{}, fmt.Errorf("insert suggestion %q: %w", s.ID, err)
	}
	return row.suggestion(), nil
}

// Suggestion loads one suggestion by id.
func (r *Repository) Suggestion(ctx context.Context, id string) (feedback.CommandSuggestion, error) {
	rows, err := r.selectSuggestions(ctx, queryGetSuggestion, map[string]any{"id": id})
	if err != nil {
		return feedback.CommandSuggestion{}, err
	}
	if len(rows) == 0 {
		return feedback.CommandSuggestion{}, ErrSuggestionNotFound
	}
	return rows[0], nil
}

// Suggestions lists suggestions matching filter, most voted first and then newest.
func (r *Repository) Suggestions(ctx context.Context, filter feedback.SuggestionFilter) ([]feedback.CommandSuggestion, error) {
	all, err := r.selectSuggestions(ctx, querySelectSuggestions, map[string]any{})
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, s := range all {
		if filter.Matches(s) {
			out = append(out, s)
		}
	}
	feedback.SortSuggestions(out)
	return out, nil
}

// Vote adds vote to the suggestion's tally and stamps the vote time.
func (r *Repository) Vote(ctx context.Context, id string, vote int) (feedback.CommandSuggestion, error) {
	arg := map[string]any{"id": id, "vote": vote, "now": r.now().UnixMilli()}
	if err := r.execOne(ctx, queryVote, arg, ErrSuggestionNotFound); err != nil {
		return feedback.CommandSuggestion{}, fmt.Errorf("vote on suggestion %q: %w", id, err)
	}
	return r.Suggestion(ctx, id)
}

// UpdateSuggestionStatus records a review decision with its notes.
func (r *Repository) UpdateSuggestionStatus(ctx context.Context, id string, status feedback.SuggestionStatus, notes string) (feedback.CommandSuggestion, error) {
	arg := map[string]any{"id": id, "status": string(status), "notes": notes, "now": r.now().UnixMilli()}
	if err := r.execOne(ctx, queryUpdateSuggestionStatus, arg, ErrSuggestionNotFound); err != nil {
		return feedback.CommandSuggestion{}, fmt.Errorf("update suggestion %q: %w", id, err)
	}
	return r.Suggestion(ctx, id)
}

func (r *Repository) selectSuggestions(ctx context.Context, namedQuery string, arg map[string]any) ([]feedback.CommandSuggestion, error) {
	query, args, err := sqlx.Named(namedQuery, arg)
	if err != nil {
		return nil, fmt.Errorf("build suggestion query: %w", err)
	}
	var rows []suggestionDB
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("select suggestions: %w", err)
	}
	out := make([]feedback.CommandSuggestion, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.suggestion())
	}
	return out, nil
}
