package config

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"unicode"
)

// PlaceholderURL marks where navigation.open_cmd receives the route URL.
const PlaceholderURL = "{url}"

var placeholderPattern = regexp.MustCompile(`\{[a-z_]+\}`)

// commandPlaceholders lists the substitutions each command key accepts.
var commandPlaceholders = map[string][]string{
	"navigation.open_cmd": {PlaceholderURL},
	"system.logout_cmd":   nil,
	"speech.speak_cmd":    nil,
}

// parseCommand splits raw into argv and rejects placeholders the key does
// not substitute. A blank or "#"-prefixed value disables the command.
func parseCommand(key, raw string) (CommandConfig, error) {
	argv, err := splitCommandLine(raw)
	if err != nil {
		return CommandConfig{}, fmt.Errorf("invalid %s: %w", key, err)
	}
	allowed := commandPlaceholders[key]
	for _, arg := range argv {
		for _, found := range placeholderPattern.FindAllString(arg, -1) {
			if !slices.Contains(allowed, found) {
				return CommandConfig{}, fmt.Errorf("invalid %s: unknown placeholder %s", key, found)
			}
		}
	}
	return CommandConfig{Raw: raw, Argv: argv}, nil
}

func mustParseCommand(key, raw string) CommandConfig {
	cmd, err := parseCommand(key, raw)
	if err != nil {
		panic(err)
	}
	return cmd
}

// splitCommandLine tokenizes a shell-like command line. Quotes group words,
// a backslash escapes the next rune, and nothing is expanded.
func splitCommandLine(input string) ([]string, error) {
	input = strings.TrimSpace(input)
	if input == "" || strings.HasPrefix(input, "#") {
		return nil, nil
	}

	var (
		argv    []string
		word    strings.Builder
		inWord  bool
		quote   rune
		escaped bool
	)
	for _, r := range input {
		switch {
		case escaped:
			word.WriteRune(r)
			escaped = false
		case r == '\\' && quote != '\'':
			escaped = true
			inWord = true
		case quote != 0 && r == quote:
			quote = 0
		case quote != 0:
			word.WriteRune(r)
		case r == '\'' || r == '"':
			quote = r
			inWord = true
		case unicode.IsSpace(r):
			if inWord {
				argv = append(argv, word.String())
				word.Reset()
				inWord = false
			}
		default:
			word.WriteRune(r)
			inWord = true
		}
	}

	switch {
	case escaped:
		return nil, fmt.Errorf("unterminated escape sequence in command: %q", input)
	case quote != 0:
		return nil, fmt.Errorf("unterminated quote in command: %q", input)
	}
	if inWord {
		argv = append(argv, word.String())
	}
	return argv, nil
}
