// Package api serves the voice feedback HTTP API and the live session state feed.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	jsoniter "github.com/json-iterator/go"
	"golang.org/x/time/rate"

	"github.com/rbright/nexa/internal/api/repository"
	"github.com/rbright/nexa/internal/feedback"
	"github.com/rbright/nexa/internal/interpreter"
	"github.com/rbright/nexa/internal/session"
)

const (
	bodyLimit       = 1 << 20
	requestTimeout  = 10 * time.Second
	shutdownTimeout = 5 * time.Second
	suggestionLimit = 5
)

// FeedbackStore persists feedback items and user command suggestions.
type FeedbackStore interface {
	Create(ctx context.Context, item feedback.Item) (repository.Record, bool, error)
	BySession(ctx context.Context, sessionID string) ([]repository.Record, error)
	Range(ctx context.Context, from, to int64) ([]repository.Record, error)
	Analytics(ctx context.Context) (feedback.Analytics, error)
	Resolve(ctx context.Context, id, resolution string) (repository.Record, error)

	CreateSuggestion(ctx context.Context, s feedback.CommandSuggestion) (feedback.CommandSuggestion, error)
	Suggestions(ctx context.Context, filter feedback.SuggestionFilter) ([]feedback.CommandSuggestion, error)
	Vote(ctx context.Context, id string, vote int) (feedback.CommandSuggestion, error)
	UpdateSuggestionStatus(ctx context.Context, id string, status feedback.SuggestionStatus, notes string) (feedback.CommandSuggestion, error)
}

// Suggester ranks grammar phrases close to an utterance.
type Suggester interface {
	Suggest(utterance string, limit int) []interpreter.Suggestion
}

// StateSource publishes voice session snapshots.
type StateSource interface {
	Subscribe() (<-chan session.State, func())
}

// Options configures a Server. States may be nil when the service runs
// outside the daemon.
type Options struct {
	Store          FeedbackStore
	Suggester      Suggester
	States         StateSource
	RateLimit      float64
	RateBurst      int
	AllowedOrigins []string
}

// Server is the fiber application plus its dependencies.
type Server struct {
	app       *fiber.App
	logger    *slog.Logger
	validator *validator.Validate
	store     FeedbackStore
	suggester Suggester
	states    StateSource
	limiter   *rateLimiter
	now       func() time.Time
	newID     func() string
}

// New builds the routes. Store and Suggester are required.
func New(logger *slog.Logger, opts Options) (*Server, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.Store == nil {
		return nil, errors.New("api feedback store is nil")
	}
	if opts.Suggester == nil {
		return nil, errors.New("api suggester is nil")
	}
	limit := opts.RateLimit
	if limit <= 0 {
		limit = 10
	}
	burst := opts.RateBurst
	if burst <= 0 {
		burst = 20
	}

	s := &Server{
		logger:    logger,
		validator: validator.New(),
		store:     opts.Store,
		suggester: opts.Suggester,
		states:    opts.States,
		limiter:   newRateLimiter(rate.Limit(limit), burst),
		now:       time.Now,
		newID:     newULID,
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "nexa feedback",
		BodyLimit:             bodyLimit,
		StrictRouting:         true,
		CaseSensitive:         true,
		DisableStartupMessage: true,
		JSONEncoder:           jsoniter.Marshal,
		JSONDecoder:           jsoniter.Unmarshal,
		ErrorHandler:          s.handleError,
	})
	s.app.Use(recover.New())
	s.app.Use(s.requestID)
	s.app.Use(s.logRequest)
	if len(opts.AllowedOrigins) > 0 {
		s.app.Use(cors.New(cors.Config{
			AllowOrigins: strings.Join(opts.AllowedOrigins, ","),
			AllowMethods: "GET,POST,PUT,OPTIONS",
		}))
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	voice := s.app.Group("/api/voice")

	fb := voice.Group("/feedback", s.rateLimit)
	fb.Post("", s.createFeedback)
	fb.Get("/session/:id", s.sessionFeedback)
	fb.Get("/analytics", s.analytics)
	fb.Post("/export", s.export)
	fb.Post("/:id/resolve", s.resolveFeedback)

	proposals := voice.Group("/command-suggestions", s.rateLimit)
	proposals.Post("", s.createSuggestion)
	proposals.Get("", s.listSuggestions)
	proposals.Post("/:id/vote", s.voteSuggestion)
	proposals.Put("/:id/status", s.updateSuggestionStatus)

	voice.Get("/suggestions", s.rateLimit, s.suggestions)
	voice.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	if s.states != nil {
		voice.Use("/state", s.requireUpgrade)
		voice.Get("/state", s.stateFeed())
	}
}

// App exposes the fiber application for tests and embedding.
func (s *Server) App() *fiber.App {
	return s.app
}

// Serve accepts connections on listener until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.app.Listener(listener)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.app.ShutdownWithContext(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	}
}

// ListenAndServe binds addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	s.logger.Info("feedback api listening", "addr", listener.Addr().String())
	return s.Serve(ctx, listener)
}
