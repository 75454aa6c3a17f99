// Package app dispatches parsed commands to the daemon, the control socket, or local data.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	jsoniter "github.com/json-iterator/go"

	"github.com/rbright/nexa/internal/cli"
	"github.com/rbright/nexa/internal/config"
	"github.com/rbright/nexa/internal/doctor"
	"github.com/rbright/nexa/internal/logging"
	"github.com/rbright/nexa/internal/version"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type Runner struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdin: os.Stdin, Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText("nexa"))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText(parsed.HelpPath))
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	cfgLoaded, err := config.Load(parsed.ConfigPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	logRuntime, err := logging.New(cfgLoaded.Config.Log)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	for _, w := range cfgLoaded.Warnings {
		msg := w.Message
		if w.Line > 0 {
			msg = fmt.Sprintf("line %d: %s", w.Line, w.Message)
		}
		fmt.Fprintf(r.Stderr, "warning: %s\n", msg)
		logger.Warn("config warning", "line", w.Line, "message", w.Message)
	}

	logger.Info("command start",
		"command", parsed.Command,
		"config", cfgLoaded.Path,
		"log", logRuntime.Path,
	)

	cfg := cfgLoaded.Config
	switch parsed.Command {
	case cli.CommandDoctor:
		report := doctor.Run(ctx, cfgLoaded)
		fmt.Fprintln(r.Stdout, report.String())
		if report.OK() {
			return 0
		}
		return 1
	case cli.CommandDevices:
		return r.commandDevices(ctx)
	case cli.CommandStatus:
		return r.commandStatus(ctx)
	case cli.CommandStart, cli.CommandStop, cli.CommandToggle:
		return r.forwardOrFail(ctx, string(parsed.Command))
	case cli.CommandSend:
		return r.commandSend(ctx, parsed.Text, parsed.Confidence)
	case cli.CommandInterpret:
		return r.commandInterpret(cfg, parsed.Text)
	case cli.CommandGrammar:
		return r.commandGrammar(cfg, parsed.Category)
	case cli.CommandAnalyticsSummary, cli.CommandAnalyticsExport, cli.CommandAnalyticsImport, cli.CommandAnalyticsClear:
		return r.commandAnalytics(ctx, cfg, logger, parsed)
	case cli.CommandFeedbackSubmit, cli.CommandFeedbackSync, cli.CommandFeedbackCount, cli.CommandFeedbackSuggest,
		cli.CommandFeedbackPropose, cli.CommandFeedbackList, cli.CommandFeedbackVote, cli.CommandFeedbackReview,
		cli.CommandFeedbackResolve:
		return r.commandFeedback(ctx, cfg, logger, parsed)
	case cli.CommandServe:
		return r.commandServe(ctx, cfg, logger, parsed.Listen)
	case cli.CommandRun:
		return r.commandRun(ctx, cfg, logger)
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

func (r Runner) fail(err error) int {
	fmt.Fprintf(r.Stderr, "error: %v\n", err)
	return 1
}

func (r Runner) printJSON(v any) int {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return r.fail(err)
	}
	fmt.Fprintln(r.Stdout, string(data))
	return 0
}
