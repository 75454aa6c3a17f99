package effects

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/rbright/nexa/internal/config"
	"github.com/rbright/nexa/internal/executor"
)

// System operations handled by Browser.
const (
	OpLogout        = "logout"
	OpVoiceSettings = "voice-settings"
)

// Application routes opened for non-navigation commands.
const (
	searchPath        = "/search"
	exportPath        = "/export"
	logoutPath        = "/logout"
	voiceSettingsPath = "/settings/voice"
)

// ErrUnsupportedOperation is returned for system operations Browser cannot run.
var ErrUnsupportedOperation = errors.New("unsupported system operation")

// Browser opens application routes with the configured open command.
type Browser struct {
	logger *slog.Logger
	base   *url.URL
	open   []string
	logout []string
	run    func(ctx context.Context, argv []string, input string) error
}

// NewBrowser validates the base URL and commands from cfg.
func NewBrowser(logger *slog.Logger, nav config.NavigationConfig, sys config.SystemConfig) (*Browser, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	base, err := url.Parse(strings.TrimSpace(nav.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("parse navigation base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("navigation base url %q is not absolute", nav.BaseURL)
	}
	if len(nav.Open.Argv) == 0 {
		return nil, fmt.Errorf("navigation open command is empty")
	}
	return &Browser{
		logger: logger,
		base:   base,
		open:   nav.Open.Argv,
		logout: sys.Logout.Argv,
		run:    runArgv,
	}, nil
}

// Effects exposes every capability of b to the executor.
func (b *Browser) Effects() executor.Effects {
	return executor.Effects{
		Navigator: b,
		Searcher:  b,
		System:    b,
		Exporter:  b,
	}
}

// URL resolves an application path against the base URL, keeping any base path prefix.
func (b *Browser) URL(path string) (string, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("parse route %q: %w", path, err)
	}
	if ref.IsAbs() {
		return "", fmt.Errorf("route %q must be relative", path)
	}
	target := *b.base
	target.Path = strings.TrimRight(b.base.Path, "/") + "/" + strings.TrimLeft(ref.Path, "/")
	target.RawPath = ""
	target.RawQuery = ref.RawQuery
	target.Fragment = ref.Fragment
	return target.String(), nil
}

// Navigate opens path.
func (b *Browser) Navigate(ctx context.Context, path string) error {
	target, err := b.URL(path)
	if err != nil {
		return err
	}
	b.logger.Debug("opening route", "url", target)
	if err := b.run(ctx, expandArgv(b.open, target), ""); err != nil {
		return fmt.Errorf("open %s: %w", target, err)
	}
	return nil
}

// Search opens the search route for query.
func (b *Browser) Search(ctx context.Context, query string) error {
	return b.Navigate(ctx, searchPath+"?"+url.Values{"q": {query}}.Encode())
}

// Export opens the export route for kind.
func (b *Browser) Export(ctx context.Context, kind string) error {
	return b.Navigate(ctx, exportPath+"?"+url.Values{"type": {kind}}.Encode())
}

// Run handles logout and voice-settings.
func (b *Browser) Run(ctx context.Context, op string) error {
	switch op {
	case OpLogout:
		if len(b.logout) > 0 {
			b.logger.Info("running logout command", "command", b.logout[0])
			return b.run(ctx, b.logout, "")
		}
		return b.Navigate(ctx, logoutPath)
	case OpVoiceSettings:
		return b.Navigate(ctx, voiceSettingsPath)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedOperation, op)
	}
}
