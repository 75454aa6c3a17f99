package grammar

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultCoversRequiredIntents(t *testing.T) {
	g := Default()
	require.NotEmpty(t, g.Version)

	required := map[string]struct {
		action Action
		target string
	}{
		"nav.dashboard":   {ActionNavigate, "/dashboard"},
		"nav.clients":     {ActionNavigate, "/clients"},
		"nav.invoices":    {ActionNavigate, "/invoices"},
		"nav.reports":     {ActionNavigate, "/reports"},
		"nav.settings":    {ActionNavigate, "/settings"},
		"create.invoice":  {ActionCreate, "invoice"},
		"create.client":   {ActionCreate, "client"},
		"export.data":     {ActionExport, "data"},
		"help.general":    {ActionHelp, "general"},
		"help.invoices":   {ActionHelp, "invoices"},
		"system.logout":   {ActionSystem, "logout"},
		"system.stop":     {ActionSystem, "stop-listening"},
		"help.commands":   {ActionHelp, "commands"},
		"nav.back":        {ActionNavigate, BackTarget},
		"create.report":   {ActionCreate, "report"},
		"export.invoices": {ActionExport, "invoices"},
	}
	for id, want := range required {
		def, ok := g.Lookup(id)
		require.True(t, ok, id)
		require.Equal(t, want.action, def.Action, id)
		require.Equal(t, want.target, def.Target, id)
	}

	require.Contains(t, g.SearchTriggers, "search")
	require.Contains(t, g.SearchTriggers, "find")
}

func TestByCategoryPreservesOrder(t *testing.T) {
	g := Default()
	nav := g.ByCategory(CategoryNavigation)
	require.NotEmpty(t, nav)
	require.Equal(t, "nav.dashboard", nav[0].ID)
	for _, d := range nav {
		require.Equal(t, CategoryNavigation, d.Category)
	}

	total := 0
	for _, c := range []Category{CategoryNavigation, CategoryAction, CategoryHelp, CategorySystem} {
		total += len(g.ByCategory(c))
	}
	require.Equal(t, len(g.All()), total)
}

func TestAccessorsReturnCopies(t *testing.T) {
	g := Default()
	all := g.All()
	all[0].Phrases[0] = "mutated"

	def, ok := g.Lookup(all[0].ID)
	require.True(t, ok)
	require.NotEqual(t, "mutated", def.Phrases[0])
}

func TestLabelFor(t *testing.T) {
	g := Default()
	require.Equal(t, "dashboard", g.LabelFor("/dashboard"))
	require.Equal(t, "", g.LabelFor("/nowhere"))
}

func TestLoadNormalizesPhrases(t *testing.T) {
	g, err := Load([]byte(`
version: "1"
commands:
  - id: nav.home
    category: navigation
    action: navigate
    target: /home
    phrases: ["  Go   HOME "]
`))
	require.NoError(t, err)
	require.Equal(t, "go home", g.Commands[0].Primary())
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{name: "missing version", content: "commands: []", wantErr: "version"},
		{name: "no commands", content: `version: "1"`, wantErr: "no commands"},
		{
			name: "duplicate id",
			content: `
version: "1"
commands:
  - {id: a, category: help, action: help, target: general, phrases: [help]}
  - {id: a, category: help, action: help, target: general, phrases: [help me]}
`,
			wantErr: "duplicate command id",
		},
		{
			name: "bad category",
			content: `
version: "1"
commands:
  - {id: a, category: fun, action: help, target: general, phrases: [help]}
`,
			wantErr: "unknown category",
		},
		{
			name: "bad navigate target",
			content: `
version: "1"
commands:
  - {id: a, category: navigation, action: navigate, target: dashboard, phrases: [dashboard]}
`,
			wantErr: "must start with '/'",
		},
		{
			name: "no phrases",
			content: `
version: "1"
commands:
  - {id: a, category: help, action: help, target: general}
`,
			wantErr: "no phrases",
		},
		{
			name: "unsupported action",
			content: `
version: "1"
commands:
  - {id: a, category: help, action: dance, target: general, phrases: [dance]}
`,
			wantErr: "unsupported action",
		},
		{name: "bad yaml", content: "version: [", wantErr: "decode grammar"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load([]byte(tc.content))
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grammar.yaml")
	require.NoError(t, os.WriteFile(path, embedded, 0o600))

	g, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, Default().Version, g.Version)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "read grammar")
}
