// Package executor dispatches interpreted commands to side effects and contains their failures.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rbright/nexa/internal/grammar"
	"github.com/rbright/nexa/internal/interpreter"
)

const (
	lowConfidenceMessage = "Command confidence too low. Please try again."
	emptySearchMessage   = "What would you like to search for?"
)

// Outcome is the structured result of one execution.
type Outcome struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Action  grammar.Action `json:"action"`
}

// Navigator opens a route of the application.
type Navigator interface {
	Navigate(ctx context.Context, path string) error
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(context.Context, string) error

func (f NavigatorFunc) Navigate(ctx context.Context, path string) error {
	return f(ctx, path)
}

// Searcher runs a search for a spoken query.
type Searcher interface {
	Search(ctx context.Context, query string) error
}

// SearcherFunc adapts a function to Searcher.
type SearcherFunc func(context.Context, string) error

func (f SearcherFunc) Search(ctx context.Context, query string) error {
	return f(ctx, query)
}

// SystemHandler runs a system operation such as logout.
type SystemHandler interface {
	Run(ctx context.Context, op string) error
}

// SystemFunc adapts a function to SystemHandler.
type SystemFunc func(context.Context, string) error

func (f SystemFunc) Run(ctx context.Context, op string) error {
	return f(ctx, op)
}

// Exporter starts a data export.
type Exporter interface {
	Export(ctx context.Context, kind string) error
}

// ExporterFunc adapts a function to Exporter.
type ExporterFunc func(context.Context, string) error

func (f ExporterFunc) Export(ctx context.Context, kind string) error {
	return f(ctx, kind)
}

// Effects bundles the side-effect capabilities. Only Navigator is required.
type Effects struct {
	Navigator Navigator
	Searcher  Searcher
	System    SystemHandler
	Exporter  Exporter
}

// Options tunes gating and effect bounding.
type Options struct {
	MinConfidence float64
	Timeout       time.Duration
	Labels        func(target string) string
}

// DefaultOptions returns the stock gate and timeout.
func DefaultOptions() Options {
	return Options{MinConfidence: 0.5, Timeout: 5 * time.Second}
}

var createRoutes = map[string]string{
	"invoice": "/invoices/new",
	"client":  "/clients/new",
	"report":  "/reports/new",
}

var systemMessages = map[string]string{
	"logout":         "Logging out...",
	"stop-listening": "Stopping voice recognition",
	"voice-settings": "Opening voice settings",
	"repeat":         "Repeating the last response",
}

// Executor performs interpreted commands.
type Executor struct {
	logger *slog.Logger
	opts   Options
}

// New constructs an executor.
func New(logger *slog.Logger, opts Options) *Executor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOptions().Timeout
	}
	return &Executor{logger: logger, opts: opts}
}

// Execute runs cmd against effects. It never panics and never returns an error;
// every failure is reported through the outcome.
func (e *Executor) Execute(ctx context.Context, cmd interpreter.Command, effects Effects) Outcome {
	if cmd.Action == grammar.ActionUnknown || cmd.Action == "" {
		return fail(cmd, "Command not recognized: "+cmd.RawInput)
	}
	if cmd.Confidence < e.opts.MinConfidence {
		return fail(cmd, lowConfidenceMessage)
	}

	switch cmd.Action {
	case grammar.ActionNavigate:
		return e.navigate(ctx, cmd, effects)
	case grammar.ActionCreate:
		return e.create(ctx, cmd, effects)
	case grammar.ActionSearch:
		return e.search(ctx, cmd, effects)
	case grammar.ActionExport:
		return e.export(ctx, cmd, effects)
	case grammar.ActionHelp:
		return e.help(ctx, cmd, effects)
	case grammar.ActionSystem:
		return e.system(ctx, cmd, effects)
	default:
		return fail(cmd, fmt.Sprintf("Unsupported action: %s", cmd.Action))
	}
}

func (e *Executor) navigate(ctx context.Context, cmd interpreter.Command, effects Effects) Outcome {
	if cmd.Target == "" {
		return fail(cmd, "Failed to navigate: no destination")
	}
	if err := e.goTo(ctx, effects, cmd.Target); err != nil {
		return fail(cmd, "Failed to navigate: "+err.Error())
	}
	if cmd.Target == grammar.BackTarget {
		return succeed(cmd, "Went back to the previous page")
	}
	return succeed(cmd, "Navigated to "+e.label(cmd.Target))
}

func (e *Executor) create(ctx context.Context, cmd interpreter.Command, effects Effects) Outcome {
	route, ok := createRoutes[cmd.Type]
	if !ok {
		return fail(cmd, fmt.Sprintf("Cannot create %q", cmd.Type))
	}
	if err := e.goTo(ctx, effects, route); err != nil {
		return fail(cmd, "Failed to navigate: "+err.Error())
	}
	return succeed(cmd, fmt.Sprintf("Opening new %s form", cmd.Type))
}

func (e *Executor) search(ctx context.Context, cmd interpreter.Command, effects Effects) Outcome {
	query := strings.TrimSpace(cmd.Query)
	if query == "" {
		return fail(cmd, emptySearchMessage)
	}
	if effects.Searcher != nil {
		err := e.run(ctx, func(ctx context.Context) error {
			return effects.Searcher.Search(ctx, query)
		})
		if err != nil {
			return fail(cmd, "Failed to search: "+err.Error())
		}
	}
	return succeed(cmd, "Searching for: "+query)
}

func (e *Executor) export(ctx context.Context, cmd interpreter.Command, effects Effects) Outcome {
	if effects.Exporter == nil {
		return fail(cmd, "Export is not available")
	}
	err := e.run(ctx, func(ctx context.Context) error {
		return effects.Exporter.Export(ctx, cmd.Type)
	})
	if err != nil {
		return fail(cmd, "Failed to export: "+err.Error())
	}
	return succeed(cmd, "Exporting "+cmd.Type)
}

func (e *Executor) help(ctx context.Context, cmd interpreter.Command, effects Effects) Outcome {
	topic := cmd.Type
	if topic == "" {
		topic = "general"
	}

	route, message := "/help/"+topic, "Opening help for "+topic
	switch topic {
	case "general":
		route, message = "/help", "Opening help center"
	case "commands":
		route, message = "/voice", "Showing voice commands"
	}

	if err := e.goTo(ctx, effects, route); err != nil {
		return fail(cmd, "Failed to open help: "+err.Error())
	}
	return succeed(cmd, message)
}

func (e *Executor) system(ctx context.Context, cmd interpreter.Command, effects Effects) Outcome {
	if effects.System == nil {
		return fail(cmd, "System command not available: "+cmd.Type)
	}
	err := e.run(ctx, func(ctx context.Context) error {
		return effects.System.Run(ctx, cmd.Type)
	})
	if err != nil {
		return fail(cmd, "System command failed: "+err.Error())
	}
	if msg, ok := systemMessages[cmd.Type]; ok {
		return succeed(cmd, msg)
	}
	return succeed(cmd, "Running "+cmd.Type)
}

func (e *Executor) goTo(ctx context.Context, effects Effects, path string) error {
	if effects.Navigator == nil {
		return errors.New("navigation is not available")
	}
	return e.run(ctx, func(ctx context.Context) error {
		return effects.Navigator.Navigate(ctx, path)
	})
}

// run invokes fn under the effect timeout and converts panics to errors.
func (e *Executor) run(ctx context.Context, fn func(context.Context) error) error {
	runCtx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("voice command effect panicked", "panic", fmt.Sprint(r))
				done <- fmt.Errorf("%v", r)
			}
		}()
		done <- fn(runCtx)
	}()

	select {
	case err := <-done:
		return err
	case <-runCtx.Done():
		return runCtx.Err()
	}
}

func (e *Executor) label(target string) string {
	if e.opts.Labels != nil {
		if label := e.opts.Labels(target); label != "" {
			return label
		}
	}
	label := strings.Trim(target, "/")
	label = strings.NewReplacer("/", " ", "-", " ", "_", " ").Replace(label)
	if label == "" {
		return "home"
	}
	return label
}

func succeed(cmd interpreter.Command, message string) Outcome {
	return Outcome{Success: true, Message: message, Action: cmd.Action}
}

func fail(cmd interpreter.Command, message string) Outcome {
	action := cmd.Action
	if action == "" {
		action = grammar.ActionUnknown
	}
	return Outcome{Success: false, Message: message, Action: action}
}
