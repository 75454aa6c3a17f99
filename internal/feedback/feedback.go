// Package feedback submits voice command ratings to the remote feedback API
// and keeps an offline queue that is retried when the service is reachable.
package feedback

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"
	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/rbright/nexa/internal/storage"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// QueueKey holds the JSON array of items waiting to be synced.
const QueueKey = "voice_feedback_queue"

const (
	MessageMissingFields = "Missing required fields: command, rating, sessionId"
	MessageRatingRange   = "Rating must be between 1 and 5"
	MessageNetworkError  = "Network error"
)

const (
	pathFeedback    = "/api/voice/feedback"
	pathSession     = "/api/voice/feedback/session/"
	pathAnalytics   = "/api/voice/feedback/analytics"
	pathExport      = "/api/voice/feedback/export"
	pathSuggestions = "/api/voice/suggestions"
	pathProposals   = "/api/voice/command-suggestions"
)

// Item is one rating for a processed voice command.
type Item struct {
	ID         string         `json:"id,omitempty"`
	Command    string         `json:"command" validate:"required"`
	Rating     int            `json:"rating" validate:"required,min=1,max=5"`
	Comment    string         `json:"comment,omitempty"`
	Confidence float64        `json:"confidence"`
	SessionID  string         `json:"sessionId" validate:"required"`
	Timestamp  int64          `json:"timestamp"`
	UserAgent  string         `json:"userAgent,omitempty"`
	Context    map[string]any `json:"context,omitempty"`

	// ExpectedAction is what the user wanted instead of what ran.
	ExpectedAction string `json:"expectedAction,omitempty"`
	Resolution     string `json:"resolution,omitempty"`
	ResolvedAt     int64  `json:"resolvedAt,omitempty"`
}

// Resolved reports whether the item was marked handled.
func (i Item) Resolved() bool { return i.ResolvedAt > 0 }

// ValidationError reports an item rejected before any network call.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// StatusError is a non-2xx answer from the feedback API.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("feedback api status %d: %s", e.Status, e.Message)
}

var validate = validator.New()

// Validate checks the required fields and the rating range.
func Validate(item Item) error {
	err := validate.Struct(item)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &ValidationError{Message: err.Error()}
	}
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			return &ValidationError{Message: MessageMissingFields}
		}
	}
	return &ValidationError{Message: MessageRatingRange}
}

// SubmitResult mirrors the JSON shape returned to callers of Submit.
type SubmitResult struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
	Status  int            `json:"status,omitempty"`
	Offline bool           `json:"offline,omitempty"`
}

// SyncResult counts one pass over the offline queue.
type SyncResult struct {
	Success bool `json:"success"`
	Synced  int  `json:"synced"`
	Failed  int  `json:"failed"`
}

// Options configures a Client.
type Options struct {
	Endpoint        string
	Timeout         time.Duration
	UserAgent       string
	SyncConcurrency int
	HTTPClient      *http.Client
}

// Client talks to the feedback API and owns the offline queue.
type Client struct {
	logger      *slog.Logger
	store       storage.Store
	http        *http.Client
	base        *url.URL
	userAgent   string
	concurrency int
	now         func() time.Time
	newID       func() string

	mu     sync.Mutex // guards the queue document
	syncMu sync.Mutex // one sync pass at a time
}

// New validates the endpoint and returns a client backed by store.
func New(logger *slog.Logger, store storage.Store, opts Options) (*Client, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if store == nil {
		return nil, errors.New("feedback store is nil")
	}
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(opts.Endpoint), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse feedback endpoint: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("feedback endpoint %q must be an http(s) URL", opts.Endpoint)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	concurrency := opts.SyncConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = "nexa"
	}

	entropy := ulid.Monotonic(rand.Reader, 0)
	var idMu sync.Mutex
	return &Client{
		logger:      logger,
		store:       store,
		http:        httpClient,
		base:        base,
		userAgent:   userAgent,
		concurrency: concurrency,
		now:         time.Now,
		newID: func() string {
			idMu.Lock()
			defer idMu.Unlock()
			return ulid.MustNew(ulid.Now(), entropy).String()
		},
	}, nil
}

// Submit validates and posts one item. Transport failures queue the item
// for a later Sync; HTTP error statuses are reported without queueing.
func (c *Client) Submit(ctx context.Context, item Item) SubmitResult {
	if err := Validate(item); err != nil {
		return SubmitResult{Error: err.Error()}
	}
	if item.Timestamp == 0 {
		item.Timestamp = c.now().UnixMilli()
	}
	if item.UserAgent == "" {
		item.UserAgent = c.userAgent
	}

	data, err := c.post(ctx, item)
	if err == nil {
		return SubmitResult{Success: true, Data: data}
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		c.logger.Warn("feedback rejected", "status", statusErr.Status, "error", statusErr.Message)
		return SubmitResult{Error: statusErr.Message, Status: statusErr.Status}
	}

	c.logger.Warn("feedback api unreachable; queueing", "error", err.Error())
	if qerr := c.enqueue(ctx, item); qerr != nil {
		c.logger.Error("queue feedback failed", "error", qerr.Error())
	}
	return SubmitResult{Error: MessageNetworkError, Offline: true}
}

// Sync posts every queued item independently. Synced items leave the queue;
// failed ones stay for the next pass.
func (c *Client) Sync(ctx context.Context) SyncResult {
	c.syncMu.Lock()
	defer c.syncMu.Unlock()

	pending, err := c.snapshot(ctx)
	if err != nil {
		c.logger.Error("read feedback queue failed", "error", err.Error())
		return SyncResult{}
	}
	if len(pending) == 0 {
		return SyncResult{Success: true}
	}

	synced := make([]bool, len(pending))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, item := range pending {
		g.Go(func() error {
			if _, err := c.post(gctx, item); err != nil {
				c.logger.Warn("sync queued feedback failed", "id", item.ID, "error", err.Error())
				return nil
			}
			synced[i] = true
			return nil
		})
	}
	_ = g.Wait()

	done := make(map[string]struct{}, len(pending))
	for i, ok := range synced {
		if ok {
			done[pending[i].ID] = struct{}{}
		}
	}
	if err := c.dequeue(ctx, done); err != nil {
		c.logger.Error("update feedback queue failed", "error", err.Error())
	}

	result := SyncResult{Synced: len(done), Failed: len(pending) - len(done)}
	result.Success = result.Failed == 0
	c.logger.Info("feedback queue synced", "synced", result.Synced, "failed", result.Failed)
	return result
}

// QueuedCount returns the number of items awaiting sync. Unreadable queues count as empty.
func (c *Client) QueuedCount(ctx context.Context) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	items, err := c.loadQueue(ctx)
	if err != nil {
		return 0
	}
	return len(items)
}

// Run syncs the queue every interval until ctx is done.
func (c *Client) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("feedback sync interval must be positive")
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if c.QueuedCount(ctx) == 0 {
				continue
			}
			c.Sync(ctx)
		}
	}
}

func (c *Client) post(ctx context.Context, item Item) (map[string]any, error) {
	body, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("encode feedback: %w", err)
	}
	resp, err := c.do(ctx, http.MethodPost, pathFeedback, nil, body)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(resp)) == 0 {
		return map[string]any{}, nil
	}
	var data map[string]any
	if err := json.Unmarshal(resp, &data); err != nil {
		return nil, fmt.Errorf("decode feedback response: %w", err)
	}
	return data, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte) ([]byte, error) {
	target := c.base.JoinPath(path)
	target.RawQuery = query.Encode()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("build feedback request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(resp.StatusCode, payload)
	}
	return payload, nil
}

func statusError(status int, payload []byte) *StatusError {
	var body struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(payload, &body)
	message := strings.TrimSpace(body.Error)
	if message == "" {
		message = http.StatusText(status)
	}
	return &StatusError{Status: status, Message: message}
}

func (c *Client) enqueue(ctx context.Context, item Item) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	items, err := c.loadQueue(ctx)
	if err != nil {
		c.logger.Warn("feedback queue is corrupt; starting empty", "error", err.Error())
		items = nil
	}
	if item.ID == "" {
		item.ID = c.newID()
	}
	items = append(items, item)
	return c.saveQueue(ctx, items)
}

// snapshot returns the queue with every item carrying an id, persisting
// ids assigned to legacy entries so dequeue can match them.
func (c *Client) snapshot(ctx context.Context) ([]Item, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	items, err := c.loadQueue(ctx)
	if err != nil {
		return nil, err
	}
	assigned := false
	for i := range items {
		if items[i].ID == "" {
			items[i].ID = c.newID()
			assigned = true
		}
	}
	if assigned {
		if err := c.saveQueue(ctx, items); err != nil {
			return nil, err
		}
	}
	return items, nil
}

func (c *Client) dequeue(ctx context.Context, done map[string]struct{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	items, err := c.loadQueue(ctx)
	if err != nil {
		return err
	}
	remaining := items[:0]
	for _, item := range items {
		if _, ok := done[item.ID]; !ok {
			remaining = append(remaining, item)
		}
	}
	if len(remaining) == 0 {
		return c.store.Remove(ctx, QueueKey)
	}
	return c.saveQueue(ctx, remaining)
}

func (c *Client) loadQueue(ctx context.Context) ([]Item, error) {
	raw, ok, err := c.store.Get(ctx, QueueKey)
	if err != nil {
		return nil, fmt.Errorf("read feedback queue: %w", err)
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var items []Item
	if err := json.UnmarshalFromString(raw, &items); err != nil {
		return nil, fmt.Errorf("decode feedback queue: %w", err)
	}
	return items, nil
}

func (c *Client) saveQueue(ctx context.Context, items []Item) error {
	encoded, err := json.MarshalToString(items)
	if err != nil {
		return fmt.Errorf("encode feedback queue: %w", err)
	}
	if err := c.store.Set(ctx, QueueKey, encoded); err != nil {
		return fmt.Errorf("write feedback queue: %w", err)
	}
	return nil
}
