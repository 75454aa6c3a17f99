// Package repository persists voice feedback for the feedback HTTP service.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	jsoniter "github.com/json-iterator/go"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/rbright/nexa/internal/feedback"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// ErrNotFound is returned when no feedback row matches.
var ErrNotFound = errors.New("feedback not found")

// trendWindow covers the two weeks compared by analytics trends.
const trendWindow = 14 * 24 * time.Hour

// Record is a stored feedback item plus the server receive time.
type Record struct {
	feedback.Item
	CreatedAt int64 `json:"createdAt"`
}

type recordDB struct {
	ID         string  `db:"id"`
	Command    string  `db:"command"`
	Rating     int     `db:"rating"`
	Comment    string  `db:"comment"`
	Confidence float64 `db:"confidence"`
	SessionID  string  `db:"session_id"`
	Timestamp  int64   `db:"submitted_at"`
	UserAgent  string  `db:"user_agent"`
	Context    string  `db:"context"`
	CreatedAt  int64   `db:"created_at"`

	ExpectedAction string `db:"expected_action"`
	Resolution     string `db:"resolution"`
	ResolvedAt     int64  `db:"resolved_at"`
}

func (r recordDB) record() Record {
	item := feedback.Item{
		ID:         r.ID,
		Command:    r.Command,
		Rating:     r.Rating,
		Comment:    r.Comment,
		Confidence: r.Confidence,
		SessionID:  r.SessionID,
		Timestamp:  r.Timestamp,
		UserAgent:  r.UserAgent,

		ExpectedAction: r.ExpectedAction,
		Resolution:     r.Resolution,
		ResolvedAt:     r.ResolvedAt,
	}
	if r.Context != "" && r.Context != "{}" {
		var ctx map[string]any
		if err := json.Unmarshal([]byte(r.Context), &ctx); err == nil {
			item.Context = ctx
		}
	}
	return Record{Item: item, CreatedAt: r.CreatedAt}
}

// Repository stores feedback in SQLite or Postgres.
type Repository struct {
	db     *sqlx.DB
	driver string
	logger *slog.Logger
	now    func() time.Time
}

// Open connects to dsn with driver and creates the schema.
func Open(ctx context.Context, logger *slog.Logger, driver, dsn string) (*Repository, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("feedback database dsn is empty")
	}

	switch driver {
	case DriverSQLite:
		if dir := filepath.Dir(dsn); dir != "." && !strings.HasPrefix(dsn, "file:") {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, fmt.Errorf("create feedback database dir: %w", err)
			}
		}
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported feedback database driver %q", driver)
	}

	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect %s feedback database: %w", driver, err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate feedback database: %w", err)
		}
	}
	logger.Debug("feedback database ready", "driver", driver)
	return &Repository{db: db, driver: driver, logger: logger, now: time.Now}, nil
}

// Close releases the database handle.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Ping checks connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Create stores item. An item whose ID already exists is left untouched and
// returned with created=false, so queued resubmissions stay idempotent.
func (r *Repository) Create(ctx context.Context, item feedback.Item) (Record, bool, error) {
	contextJSON := "{}"
	if len(item.Context) > 0 {
		encoded, err := json.Marshal(item.Context)
		if err != nil {
			return Record{}, false, fmt.Errorf("encode feedback context: %w", err)
		}
		contextJSON = string(encoded)
	}

	row := recordDB{
		ID:         item.ID,
		Command:    item.Command,
		Rating:     item.Rating,
		Comment:    item.Comment,
		Confidence: item.Confidence,
		SessionID:  item.SessionID,
		Timestamp:  item.Timestamp,
		UserAgent:  item.UserAgent,
		Context:    contextJSON,
		CreatedAt:  r.now().UnixMilli(),

		ExpectedAction: strings.TrimSpace(item.ExpectedAction),
	}

	query, args, err := sqlx.Named(queryCreate, row)
	if err != nil {
		return Record{}, false, fmt.Errorf("build create feedback query: %w", err)
	}
	result, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return Record{}, false, fmt.Errorf("insert feedback %q: %w", item.ID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return Record{}, false, fmt.Errorf("insert feedback %q: %w", item.ID, err)
	}
	if affected == 0 {
		existing, err := r.Get(ctx, item.ID)
		if err != nil {
			return Record{}, false, err
		}
		return existing, false, nil
	}
	return row.record(), true, nil
}

// Get loads one record by id.
func (r *Repository) Get(ctx context.Context, id string) (Record, error) {
	rows, err := r.selectRecords(ctx, queryGet, map[string]any{"id": id})
	if err != nil {
		return Record{}, err
	}
	if len(rows) == 0 {
		return Record{}, ErrNotFound
	}
	return rows[0], nil
}

// Resolve marks the record with id as handled. Resolving again replaces the note.
func (r *Repository) Resolve(ctx context.Context, id, resolution string) (Record, error) {
	arg := map[string]any{"id": id, "resolution": resolution, "resolved_at": r.now().UnixMilli()}
	if err := r.execOne(ctx, queryResolve, arg, ErrNotFound); err != nil {
		return Record{}, fmt.Errorf("resolve feedback %q: %w", id, err)
	}
	return r.Get(ctx, id)
}

// execOne runs a named update and reports missing when no row changed.
func (r *Repository) execOne(ctx context.Context, namedQuery string, arg map[string]any, missing error) error {
	query, args, err := sqlx.Named(namedQuery, arg)
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	result, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return missing
	}
	return nil
}

// BySession lists the records of one voice session, oldest first.
func (r *Repository) BySession(ctx context.Context, sessionID string) ([]Record, error) {
	return r.selectRecords(ctx, queryBySession, map[string]any{"session_id": sessionID})
}

// Range lists records with from <= timestamp < to, in Unix milliseconds.
func (r *Repository) Range(ctx context.Context, from, to int64) ([]Record, error) {
	return r.selectRecords(ctx, queryRange, map[string]any{"from": from, "to": to})
}

func (r *Repository) selectRecords(ctx context.Context, namedQuery string, arg map[string]any) ([]Record, error) {
	query, args, err := sqlx.Named(namedQuery, arg)
	if err != nil {
		return nil, fmt.Errorf("build feedback query: %w", err)
	}
	var rows []recordDB
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return []Record{}, nil
		}
		return nil, fmt.Errorf("select feedback: %w", err)
	}
	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.record())
	}
	return out, nil
}

// Analytics aggregates every stored rating.
func (r *Repository) Analytics(ctx context.Context) (feedback.Analytics, error) {
	var counts []struct {
		Rating int `db:"rating"`
		Total  int `db:"total"`
	}
	if err := r.db.SelectContext(ctx, &counts, queryRatingCounts); err != nil {
		return feedback.Analytics{}, fmt.Errorf("count feedback ratings: %w", err)
	}

	out := feedback.Analytics{RatingDistribution: map[string]int{}, CommonIssues: []string{}}
	for rating := 1; rating <= 5; rating++ {
		out.RatingDistribution[strconv.Itoa(rating)] = 0
	}
	sum := 0
	for _, c := range counts {
		out.RatingDistribution[strconv.Itoa(c.Rating)] += c.Total
		out.TotalFeedback += c.Total
		sum += c.Rating * c.Total
	}
	if out.TotalFeedback > 0 {
		out.AverageRating = math.Round(float64(sum)/float64(out.TotalFeedback)*100) / 100
	}

	var comments []string
	if err := r.db.SelectContext(ctx, &comments, queryComments); err != nil {
		return feedback.Analytics{}, fmt.Errorf("load feedback comments: %w", err)
	}
	items := make([]feedback.Item, 0, len(comments))
	for _, comment := range comments {
		items = append(items, feedback.Item{Comment: comment})
	}
	out.CommonIssues = feedback.CommonIssues(items)

	now := r.now()
	recent, err := r.Range(ctx, now.Add(-trendWindow).UnixMilli(), math.MaxInt64)
	if err != nil {
		return feedback.Analytics{}, err
	}
	recentItems := make([]feedback.Item, 0, len(recent))
	for _, record := range recent {
		recentItems = append(recentItems, record.Item)
	}
	out.Trends = feedback.WeeklyTrends(recentItems, now)

	var expected []string
	if err := r.db.SelectContext(ctx, &expected, queryExpectedActions); err != nil {
		return feedback.Analytics{}, fmt.Errorf("load expected actions: %w", err)
	}
	wanted := make([]feedback.Item, 0, len(expected))
	for _, action := range expected {
		wanted = append(wanted, feedback.Item{ExpectedAction: action})
	}
	out.ImprovementAreas = feedback.ImprovementAreas(wanted)

	var statuses []struct {
		Status string `db:"status"`
		Total  int    `db:"total"`
	}
	if err := r.db.SelectContext(ctx, &statuses, querySuggestionStatusCounts); err != nil {
		return feedback.Analytics{}, fmt.Errorf("count suggestions: %w", err)
	}
	out.SuggestionsByStatus = map[string]int{}
	for _, st := range statuses {
		out.SuggestionsByStatus[st.Status] = st.Total
		out.TotalSuggestions += st.Total
	}
	return out, nil
}
