// Package cli parses nexa command lines into a Parsed request for the app runner.
package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

type Command string

const (
	CommandRun              Command = "run"
	CommandStart            Command = "start"
	CommandStop             Command = "stop"
	CommandToggle           Command = "toggle"
	CommandStatus           Command = "status"
	CommandSend             Command = "send"
	CommandInterpret        Command = "interpret"
	CommandGrammar          Command = "grammar"
	CommandAnalyticsSummary Command = "analytics summary"
	CommandAnalyticsExport  Command = "analytics export"
	CommandAnalyticsImport  Command = "analytics import"
	CommandAnalyticsClear   Command = "analytics clear"
	CommandFeedbackSubmit   Command = "feedback submit"
	CommandFeedbackSync     Command = "feedback sync"
	CommandFeedbackCount    Command = "feedback count"
	CommandFeedbackSuggest  Command = "feedback suggest"
	CommandFeedbackPropose  Command = "feedback propose"
	CommandFeedbackList     Command = "feedback proposals"
	CommandFeedbackVote     Command = "feedback vote"
	CommandFeedbackReview   Command = "feedback review"
	CommandFeedbackResolve  Command = "feedback resolve"
	CommandServe            Command = "serve"
	CommandDevices          Command = "devices"
	CommandDoctor           Command = "doctor"
	CommandVersion          Command = "version"
	CommandHelp             Command = "help"
)

// Parsed is one resolved invocation.
type Parsed struct {
	Command    Command
	ConfigPath string
	ShowHelp   bool
	// HelpPath is the command path whose help was requested, e.g. "nexa analytics".
	HelpPath string

	// Text is the joined positional text for send, interpret and feedback
	// suggest|propose, or the target id for feedback vote|review|resolve.
	Text string
	// Confidence applies to send.
	Confidence float64
	// Category filters grammar output.
	Category string
	// Format and Output apply to analytics export.
	Format string
	Output string
	// Input applies to analytics import; "-" reads stdin.
	Input string
	// Listen overrides server.listen for serve.
	Listen string
	// Feedback carries the feedback submit flags.
	Feedback FeedbackArgs
	// Proposal carries the flags of the command suggestion subcommands.
	Proposal ProposalArgs
}

// FeedbackArgs are the flags of feedback submit.
type FeedbackArgs struct {
	Command    string
	Rating     int
	Comment    string
	SessionID  string
	Confidence float64
}

// ProposalArgs are the flags of feedback propose, proposals, vote, review and resolve.
type ProposalArgs struct {
	Action      string
	Category    string
	Description string
	Priority    int
	Status      string
	Notes       string
	Down        bool
}

const binaryName = "nexa"

// Parse resolves args without running anything. Errors are usage errors.
func Parse(args []string) (Parsed, error) {
	parsed := Parsed{Command: CommandHelp, ShowHelp: true, HelpPath: binaryName}
	root := newRoot(&parsed)
	if args == nil {
		// cobra falls back to os.Args for a nil slice.
		args = []string{}
	}
	root.SetArgs(args)

	if err := root.Execute(); err != nil {
		return Parsed{}, err
	}
	return parsed, nil
}

// HelpText renders usage for the command at path, or for the root command.
func HelpText(path string) string {
	root := newRoot(&Parsed{})
	cmd := root
	if fields := strings.Fields(path); len(fields) > 1 {
		if found, _, err := root.Find(fields[1:]); err == nil {
			cmd = found
		}
	}

	var b bytes.Buffer
	if cmd.Long != "" {
		b.WriteString(cmd.Long)
		b.WriteString("\n\n")
	}
	b.WriteString(cmd.UsageString())
	return b.String()
}

func newRoot(parsed *Parsed) *cobra.Command {
	var showVersion bool

	root := &cobra.Command{
		Use:   binaryName,
		Short: "Voice command assistant for the business web app",
		Long: `nexa listens for a wake word, recognizes spoken commands, and opens the
matching page of the web app. The daemon is started with "nexa run"; the
other commands talk to it over its control socket or work on local data.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if showVersion {
				set(parsed, CommandVersion)
				return nil
			}
			showHelp(parsed, cmd)
			return nil
		},
	}
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetHelpFunc(func(cmd *cobra.Command, _ []string) {
		showHelp(parsed, cmd)
	})
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().StringVar(&parsed.ConfigPath, "config", "", "config file path (default: $XDG_CONFIG_HOME/nexa/config.jsonc)")
	root.Flags().BoolVar(&showVersion, "version", false, "show version")

	root.AddCommand(
		leaf(parsed, CommandRun, "Run the voice assistant daemon"),
		leaf(parsed, CommandStart, "Start a listening session in the running daemon"),
		leaf(parsed, CommandStop, "Stop the active listening session"),
		leaf(parsed, CommandToggle, "Enable or disable the voice assistant"),
		leaf(parsed, CommandStatus, "Print the current voice session state"),
		sendCommand(parsed),
		textCommand(parsed, CommandInterpret, "interpret <text>", "Classify text against the command grammar"),
		grammarCommand(parsed),
		analyticsCommand(parsed),
		feedbackCommand(parsed),
		serveCommand(parsed),
		leaf(parsed, CommandDevices, "List available input devices"),
		leaf(parsed, CommandDoctor, "Run configuration and environment checks"),
		leaf(parsed, CommandVersion, "Print version information"),
	)
	return root
}

func set(parsed *Parsed, command Command) {
	parsed.Command = command
	parsed.ShowHelp = false
	parsed.HelpPath = ""
}

func showHelp(parsed *Parsed, cmd *cobra.Command) {
	parsed.Command = CommandHelp
	parsed.ShowHelp = true
	parsed.HelpPath = cmd.CommandPath()
}

// leaf builds an argument-less subcommand named after the last word of command.
func leaf(parsed *Parsed, command Command, short string) *cobra.Command {
	fields := strings.Fields(string(command))
	return &cobra.Command{
		Use:   fields[len(fields)-1],
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			set(parsed, command)
			return nil
		},
	}
}

func textCommand(parsed *Parsed, command Command, use, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			text := strings.Join(strings.Fields(strings.Join(args, " ")), " ")
			if text == "" {
				return fmt.Errorf("%s requires text", command)
			}
			set(parsed, command)
			parsed.Text = text
			return nil
		},
	}
}

func sendCommand(parsed *Parsed) *cobra.Command {
	cmd := textCommand(parsed, CommandSend, "send <text>", "Process text as a spoken command in the running daemon")
	cmd.Flags().Float64Var(&parsed.Confidence, "confidence", 1, "recognition confidence reported with the text")
	run := cmd.RunE
	cmd.RunE = func(c *cobra.Command, args []string) error {
		if parsed.Confidence < 0 || parsed.Confidence > 1 {
			return errors.New("--confidence must be within [0, 1]")
		}
		return run(c, args)
	}
	return cmd
}

func grammarCommand(parsed *Parsed) *cobra.Command {
	cmd := leaf(parsed, CommandGrammar, "List the command grammar")
	cmd.Flags().StringVar(&parsed.Category, "category", "", "only list one category (navigation, action, help, system)")
	return cmd
}

func analyticsCommand(parsed *Parsed) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analytics",
		Short: "Inspect and manage local command analytics",
	}

	export := leaf(parsed, CommandAnalyticsExport, "Export analytics as json or csv")
	export.Flags().StringVar(&parsed.Format, "format", "json", "export format: json or csv")
	export.Flags().StringVarP(&parsed.Output, "output", "o", "", "write to file instead of stdout")
	exportRun := export.RunE
	export.RunE = func(c *cobra.Command, args []string) error {
		parsed.Format = strings.ToLower(strings.TrimSpace(parsed.Format))
		if parsed.Format != "json" && parsed.Format != "csv" {
			return fmt.Errorf("unsupported export format %q (use json or csv)", parsed.Format)
		}
		return exportRun(c, args)
	}

	importCmd := &cobra.Command{
		Use:   "import <file|->",
		Short: "Replace analytics with a previously exported json document",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			set(parsed, CommandAnalyticsImport)
			parsed.Input = args[0]
			return nil
		},
	}

	cmd.AddCommand(
		leaf(parsed, CommandAnalyticsSummary, "Print the analytics summary"),
		export,
		importCmd,
		leaf(parsed, CommandAnalyticsClear, "Delete all analytics"),
	)
	return cmd
}

func feedbackCommand(parsed *Parsed) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feedback",
		Short: "Submit feedback and manage the offline queue",
	}

	submit := leaf(parsed, CommandFeedbackSubmit, "Rate a voice command")
	flags := submit.Flags()
	flags.StringVar(&parsed.Feedback.Command, "command", "", "the command that was spoken")
	flags.IntVar(&parsed.Feedback.Rating, "rating", 0, "rating from 1 to 5")
	flags.StringVar(&parsed.Feedback.Comment, "comment", "", "optional comment")
	flags.StringVar(&parsed.Feedback.SessionID, "session", "cli", "voice session id")
	flags.Float64Var(&parsed.Feedback.Confidence, "confidence", 1, "recognition confidence of the command")

	cmd.AddCommand(
		submit,
		leaf(parsed, CommandFeedbackSync, "Send queued feedback to the feedback API"),
		leaf(parsed, CommandFeedbackCount, "Print the number of queued feedback items"),
		textCommand(parsed, CommandFeedbackSuggest, "suggest <text>", "Ask the feedback API for command suggestions"),
	)
	cmd.AddCommand(proposalCommands(parsed)...)
	return cmd
}

func proposalCommands(parsed *Parsed) []*cobra.Command {
	args := &parsed.Proposal

	propose := textCommand(parsed, CommandFeedbackPropose, "propose <phrase>", "Suggest a new voice command phrase")
	flags := propose.Flags()
	flags.StringVar(&args.Action, "action", "", "what the phrase should do")
	flags.StringVar(&args.Category, "category", "", "command category")
	flags.StringVar(&args.Description, "description", "", "optional details")
	flags.IntVar(&args.Priority, "priority", 0, "priority from 1 to 5 (default 3)")

	list := leaf(parsed, CommandFeedbackList, "List submitted command suggestions, most voted first")
	flags = list.Flags()
	flags.StringVar(&args.Category, "category", "", "only this category")
	flags.StringVar(&args.Status, "status", "", "only this status")
	flags.IntVar(&args.Priority, "priority", 0, "only this priority")

	vote := idCommand(parsed, CommandFeedbackVote, "vote <id>", "Upvote a command suggestion")
	vote.Flags().BoolVar(&args.Down, "down", false, "downvote instead")

	review := idCommand(parsed, CommandFeedbackReview, "review <id>", "Set the review status of a command suggestion")
	flags = review.Flags()
	flags.StringVar(&args.Status, "status", "", "pending, reviewed, implemented or rejected")
	flags.StringVar(&args.Notes, "notes", "", "review notes")
	run := review.RunE
	review.RunE = func(c *cobra.Command, positional []string) error {
		if strings.TrimSpace(args.Status) == "" {
			return errors.New("review requires --status")
		}
		return run(c, positional)
	}

	resolve := idCommand(parsed, CommandFeedbackResolve, "resolve <id>", "Mark stored feedback as resolved")
	resolve.Flags().StringVar(&args.Notes, "resolution", "", "resolution notes")

	return []*cobra.Command{propose, list, vote, review, resolve}
}

func idCommand(parsed *Parsed, command Command, use, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			if id == "" {
				return fmt.Errorf("%s requires an id", command)
			}
			set(parsed, command)
			parsed.Text = id
			return nil
		},
	}
}

func serveCommand(parsed *Parsed) *cobra.Command {
	cmd := leaf(parsed, CommandServe, "Serve the feedback HTTP API")
	cmd.Flags().StringVar(&parsed.Listen, "listen", "", "listen address (default: server.listen)")
	return cmd
}
