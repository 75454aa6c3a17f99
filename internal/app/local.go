package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rbright/nexa/internal/analytics"
	"github.com/rbright/nexa/internal/audio"
	"github.com/rbright/nexa/internal/cli"
	"github.com/rbright/nexa/internal/config"
	"github.com/rbright/nexa/internal/feedback"
	"github.com/rbright/nexa/internal/grammar"
	"github.com/rbright/nexa/internal/version"
)

func (r Runner) commandDevices(ctx context.Context) int {
	devices, err := audio.ListDevices(ctx)
	if err != nil {
		return r.fail(err)
	}
	if len(devices) == 0 {
		fmt.Fprintln(r.Stdout, "no audio devices found")
		return 1
	}

	for _, device := range devices {
		defaultMark := " "
		if device.Default {
			defaultMark = "*"
		}
		availability := "yes"
		if !device.Available {
			availability = "no"
		}
		muted := "no"
		if device.Muted {
			muted = "yes"
		}
		fmt.Fprintf(
			r.Stdout,
			"%s id=%s | description=%q | state=%s | available=%s | muted=%s\n",
			defaultMark,
			device.ID,
			device.Description,
			device.State,
			availability,
			muted,
		)
	}

	return 0
}

func (r Runner) commandInterpret(cfg config.Config, text string) int {
	in, err := newInterpreter(cfg.Interpreter)
	if err != nil {
		return r.fail(err)
	}
	return r.printJSON(in.Interpret(text))
}

func (r Runner) commandGrammar(cfg config.Config, category string) int {
	g, err := loadGrammar(cfg.Interpreter)
	if err != nil {
		return r.fail(err)
	}

	defs := g.All()
	if category = strings.ToLower(strings.TrimSpace(category)); category != "" {
		defs = g.ByCategory(grammar.Category(category))
		if len(defs) == 0 {
			return r.fail(fmt.Errorf("no commands in category %q", category))
		}
	}

	fmt.Fprintf(r.Stdout, "grammar %s\n", g.Version)
	w := tabwriter.NewWriter(r.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCATEGORY\tACTION\tTARGET\tPHRASES")
	for _, def := range defs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", def.ID, def.Category, def.Action, def.Target, strings.Join(def.Phrases, ", "))
	}
	if err := w.Flush(); err != nil {
		return r.fail(err)
	}
	if category == "" && len(g.SearchTriggers) > 0 {
		fmt.Fprintf(r.Stdout, "search triggers: %s\n", strings.Join(g.SearchTriggers, ", "))
	}
	return 0
}

func (r Runner) commandAnalytics(ctx context.Context, cfg config.Config, logger *slog.Logger, parsed cli.Parsed) int {
	store, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return r.fail(err)
	}
	defer func() { _ = store.Close() }()
	tracker := newTracker(logger, store, cfg.Analytics)

	switch parsed.Command {
	case cli.CommandAnalyticsSummary:
		return r.printJSON(tracker.Summary(ctx))
	case cli.CommandAnalyticsExport:
		data, err := tracker.Export(ctx, analytics.Format(parsed.Format))
		if err != nil {
			return r.fail(err)
		}
		if parsed.Output == "" {
			fmt.Fprintln(r.Stdout, strings.TrimRight(string(data), "\n"))
			return 0
		}
		if err := os.WriteFile(parsed.Output, data, 0o600); err != nil {
			return r.fail(fmt.Errorf("write export: %w", err))
		}
		fmt.Fprintf(r.Stdout, "exported analytics to %s\n", parsed.Output)
		return 0
	case cli.CommandAnalyticsImport:
		data, err := r.readInput(parsed.Input)
		if err != nil {
			return r.fail(err)
		}
		if err := tracker.Import(ctx, data); err != nil {
			return r.fail(err)
		}
		fmt.Fprintln(r.Stdout, "analytics imported")
		return 0
	case cli.CommandAnalyticsClear:
		if err := tracker.Clear(ctx); err != nil {
			return r.fail(err)
		}
		fmt.Fprintln(r.Stdout, "analytics cleared")
		return 0
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

func (r Runner) readInput(path string) ([]byte, error) {
	if path == "-" {
		if r.Stdin == nil {
			return nil, errors.New("stdin is not available")
		}
		return io.ReadAll(r.Stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", path, err)
	}
	return data, nil
}

func (r Runner) commandFeedback(ctx context.Context, cfg config.Config, logger *slog.Logger, parsed cli.Parsed) int {
	store, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return r.fail(err)
	}
	defer func() { _ = store.Close() }()

	client, err := newFeedbackClient(logger, store, cfg.Feedback)
	if err != nil {
		return r.fail(err)
	}

	switch parsed.Command {
	case cli.CommandFeedbackSubmit:
		args := parsed.Feedback
		result := client.Submit(ctx, feedback.Item{
			Command:    strings.TrimSpace(args.Command),
			Rating:     args.Rating,
			Comment:    args.Comment,
			Confidence: args.Confidence,
			SessionID:  strings.TrimSpace(args.SessionID),
			Timestamp:  time.Now().UnixMilli(),
			UserAgent:  version.UserAgent(),
		})
		if code := r.printJSON(result); code != 0 {
			return code
		}
		if result.Success || result.Offline {
			return 0
		}
		return 1
	case cli.CommandFeedbackSync:
		result := client.Sync(ctx)
		if code := r.printJSON(result); code != 0 {
			return code
		}
		if result.Success {
			return 0
		}
		return 1
	case cli.CommandFeedbackCount:
		fmt.Fprintln(r.Stdout, client.QueuedCount(ctx))
		return 0
	case cli.CommandFeedbackSuggest:
		return r.commandSuggest(ctx, cfg, logger, client, parsed.Text)
	case cli.CommandFeedbackPropose, cli.CommandFeedbackList, cli.CommandFeedbackVote,
		cli.CommandFeedbackReview, cli.CommandFeedbackResolve:
		out, err := proposalRequest(ctx, client, parsed)
		if err != nil {
			return r.fail(err)
		}
		return r.printJSON(out)
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

// proposalRequest runs one command suggestion subcommand against the feedback API.
func proposalRequest(ctx context.Context, client *feedback.Client, parsed cli.Parsed) (any, error) {
	args := parsed.Proposal
	switch parsed.Command {
	case cli.CommandFeedbackPropose:
		return client.SubmitSuggestion(ctx, feedback.CommandSuggestion{
			Phrase:         parsed.Text,
			ExpectedAction: args.Action,
			Category:       args.Category,
			Description:    args.Description,
			Priority:       args.Priority,
		})
	case cli.CommandFeedbackList:
		return client.CommandSuggestions(ctx, feedback.SuggestionFilter{
			Category: strings.TrimSpace(args.Category),
			Status:   feedback.SuggestionStatus(strings.TrimSpace(args.Status)),
			Priority: args.Priority,
		})
	case cli.CommandFeedbackVote:
		vote := 1
		if args.Down {
			vote = -1
		}
		return client.Vote(ctx, parsed.Text, vote)
	case cli.CommandFeedbackReview:
		status := feedback.SuggestionStatus(strings.TrimSpace(args.Status))
		return client.UpdateSuggestionStatus(ctx, parsed.Text, status, args.Notes)
	default:
		return client.Resolve(ctx, parsed.Text, args.Notes)
	}
}

// commandSuggest asks the feedback API and falls back to the local grammar
// when the service cannot be reached.
func (r Runner) commandSuggest(ctx context.Context, cfg config.Config, logger *slog.Logger, client *feedback.Client, text string) int {
	suggestions, err := client.Suggestions(ctx, text)
	if err != nil {
		var statusErr *feedback.StatusError
		if errors.As(err, &statusErr) {
			return r.fail(err)
		}
		logger.Warn("remote suggestions unavailable", "error", err.Error())
		in, buildErr := newInterpreter(cfg.Interpreter)
		if buildErr != nil {
			return r.fail(buildErr)
		}
		suggestions = suggestions[:0]
		for _, s := range in.Suggest(text, 5) {
			suggestions = append(suggestions, feedback.Suggestion(s))
		}
	}

	if len(suggestions) == 0 {
		fmt.Fprintln(r.Stdout, "no suggestions")
		return 0
	}
	for _, s := range suggestions {
		fmt.Fprintf(r.Stdout, "%s\t%.2f\t%s\n", s.Suggested, s.Confidence, s.Category)
	}
	return 0
}
