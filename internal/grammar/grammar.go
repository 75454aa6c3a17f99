// Package grammar holds the versioned, read-only table of voice command intents.
package grammar

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Category groups commands for help displays. It carries no matching semantics.
type Category string

const (
	CategoryNavigation Category = "navigation"
	CategoryAction     Category = "action"
	CategoryHelp       Category = "help"
	CategorySystem     Category = "system"
)

// Action is the intent a definition maps to.
type Action string

const (
	ActionNavigate Action = "navigate"
	ActionCreate   Action = "create"
	ActionSearch   Action = "search"
	ActionExport   Action = "export"
	ActionHelp     Action = "help"
	ActionSystem   Action = "system"
	ActionUnknown  Action = "unknown"
)

// BackTarget is the navigation target for "previous page".
const BackTarget = "back"

// Definition is one command intent with its canonical phrases.
type Definition struct {
	ID                   string   `yaml:"id"`
	Category             Category `yaml:"category"`
	Action               Action   `yaml:"action"`
	Phrases              []string `yaml:"phrases"`
	Target               string   `yaml:"target"`
	Label                string   `yaml:"label"`
	RequiresConfirmation bool     `yaml:"requires_confirmation"`
}

// Primary returns the first canonical phrase.
func (d Definition) Primary() string {
	if len(d.Phrases) == 0 {
		return ""
	}
	return d.Phrases[0]
}

// Grammar is the full flat command table.
type Grammar struct {
	Version        string       `yaml:"version"`
	SearchTriggers []string     `yaml:"search_triggers"`
	Commands       []Definition `yaml:"commands"`
}

//go:embed commands.yaml
var embedded []byte

var loadDefault = sync.OnceValues(func() (Grammar, error) {
	return Load(embedded)
})

// Default returns the built-in grammar.
func Default() Grammar {
	g, err := loadDefault()
	if err != nil {
		panic(fmt.Sprintf("embedded grammar is invalid: %v", err))
	}
	return g
}

// LoadFile reads a grammar override from disk.
func LoadFile(path string) (Grammar, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Grammar{}, fmt.Errorf("read grammar %q: %w", path, err)
	}
	g, err := Load(content)
	if err != nil {
		return Grammar{}, fmt.Errorf("grammar %q: %w", path, err)
	}
	return g, nil
}

// Load decodes and validates a YAML grammar document.
func Load(content []byte) (Grammar, error) {
	var g Grammar
	if err := yaml.Unmarshal(content, &g); err != nil {
		return Grammar{}, fmt.Errorf("decode grammar: %w", err)
	}
	normalize(&g)
	if err := validate(g); err != nil {
		return Grammar{}, err
	}
	return g, nil
}

// All returns every definition in grammar order.
func (g Grammar) All() []Definition {
	out := make([]Definition, len(g.Commands))
	for i, d := range g.Commands {
		out[i] = clone(d)
	}
	return out
}

// ByCategory returns the definitions of one category in grammar order.
func (g Grammar) ByCategory(category Category) []Definition {
	out := make([]Definition, 0)
	for _, d := range g.Commands {
		if d.Category == category {
			out = append(out, clone(d))
		}
	}
	return out
}

// Lookup finds a definition by id.
func (g Grammar) Lookup(id string) (Definition, bool) {
	for _, d := range g.Commands {
		if d.ID == id {
			return clone(d), true
		}
	}
	return Definition{}, false
}

// LabelFor returns the human-readable label registered for a navigation target.
func (g Grammar) LabelFor(target string) string {
	for _, d := range g.Commands {
		if d.Action == ActionNavigate && d.Target == target && d.Label != "" {
			return d.Label
		}
	}
	return ""
}

func clone(d Definition) Definition {
	d.Phrases = append([]string(nil), d.Phrases...)
	return d
}

func normalize(g *Grammar) {
	for i := range g.SearchTriggers {
		g.SearchTriggers[i] = normalizePhrase(g.SearchTriggers[i])
	}
	for i := range g.Commands {
		d := &g.Commands[i]
		d.ID = strings.TrimSpace(d.ID)
		d.Target = strings.TrimSpace(d.Target)
		for j := range d.Phrases {
			d.Phrases[j] = normalizePhrase(d.Phrases[j])
		}
	}
}

func normalizePhrase(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func validate(g Grammar) error {
	if strings.TrimSpace(g.Version) == "" {
		return errors.New("grammar version must not be empty")
	}
	if len(g.Commands) == 0 {
		return errors.New("grammar has no commands")
	}

	seen := make(map[string]struct{}, len(g.Commands))
	for i, d := range g.Commands {
		if d.ID == "" {
			return fmt.Errorf("command %d has an empty id", i)
		}
		if _, dup := seen[d.ID]; dup {
			return fmt.Errorf("duplicate command id %q", d.ID)
		}
		seen[d.ID] = struct{}{}

		switch d.Category {
		case CategoryNavigation, CategoryAction, CategoryHelp, CategorySystem:
		default:
			return fmt.Errorf("command %q has unknown category %q", d.ID, d.Category)
		}

		switch d.Action {
		case ActionNavigate:
			if d.Target != BackTarget && !strings.HasPrefix(d.Target, "/") {
				return fmt.Errorf("command %q navigate target must start with '/' or be %q", d.ID, BackTarget)
			}
		case ActionCreate, ActionExport, ActionHelp, ActionSystem:
			if d.Target == "" {
				return fmt.Errorf("command %q must declare a target", d.ID)
			}
		default:
			return fmt.Errorf("command %q has unsupported action %q", d.ID, d.Action)
		}

		if len(d.Phrases) == 0 {
			return fmt.Errorf("command %q has no phrases", d.ID)
		}
		for _, p := range d.Phrases {
			if p == "" {
				return fmt.Errorf("command %q has an empty phrase", d.ID)
			}
		}
	}

	for _, trigger := range g.SearchTriggers {
		if trigger == "" {
			return errors.New("search trigger must not be empty")
		}
	}
	return nil
}
