package executor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/nexa/internal/grammar"
	"github.com/rbright/nexa/internal/interpreter"
)

type recordingNavigator struct {
	calls atomic.Int32
	last  atomic.Value
	err   error
}

func (n *recordingNavigator) Navigate(_ context.Context, path string) error {
	n.calls.Add(1)
	n.last.Store(path)
	return n.err
}

func (n *recordingNavigator) path() string {
	v, _ := n.last.Load().(string)
	return v
}

func newTestExecutor() *Executor {
	return New(nil, DefaultOptions())
}

func TestExecuteLowConfidenceInvokesNoEffects(t *testing.T) {
	nav := &recordingNavigator{}
	var searches, systems, exports atomic.Int32
	effects := Effects{
		Navigator: nav,
		Searcher:  SearcherFunc(func(context.Context, string) error { searches.Add(1); return nil }),
		System:    SystemFunc(func(context.Context, string) error { systems.Add(1); return nil }),
		Exporter:  ExporterFunc(func(context.Context, string) error { exports.Add(1); return nil }),
	}

	commands := []interpreter.Command{
		{Action: grammar.ActionNavigate, Target: "/dashboard", Confidence: 0.49},
		{Action: grammar.ActionCreate, Type: "invoice", Confidence: 0.1},
		{Action: grammar.ActionSearch, Query: "bob", Confidence: 0.3},
		{Action: grammar.ActionSystem, Type: "logout", Confidence: 0.2},
		{Action: grammar.ActionExport, Type: "data", Confidence: 0},
		{Action: grammar.ActionHelp, Type: "general", Confidence: 0.4999},
	}

	exec := newTestExecutor()
	for _, cmd := range commands {
		got := exec.Execute(context.Background(), cmd, effects)
		require.False(t, got.Success)
		require.Equal(t, "Command confidence too low. Please try again.", got.Message)
		require.Equal(t, cmd.Action, got.Action)
	}

	require.Zero(t, nav.calls.Load())
	require.Zero(t, searches.Load())
	require.Zero(t, systems.Load())
	require.Zero(t, exports.Load())
}

func TestExecuteUnknown(t *testing.T) {
	nav := &recordingNavigator{}
	got := newTestExecutor().Execute(context.Background(), interpreter.Command{
		Action:   grammar.ActionUnknown,
		RawInput: "purple monkey",
	}, Effects{Navigator: nav})

	require.Equal(t, Outcome{Success: false, Message: "Command not recognized: purple monkey", Action: grammar.ActionUnknown}, got)
	require.Zero(t, nav.calls.Load())
}

func TestExecuteNavigate(t *testing.T) {
	nav := &recordingNavigator{}
	exec := New(nil, Options{MinConfidence: 0.5, Timeout: time.Second, Labels: grammar.Default().LabelFor})

	got := exec.Execute(context.Background(), interpreter.Command{
		Action: grammar.ActionNavigate, Target: "/dashboard", Confidence: 0.95,
	}, Effects{Navigator: nav})

	require.True(t, got.Success)
	require.Equal(t, "Navigated to dashboard", got.Message)
	require.Equal(t, grammar.ActionNavigate, got.Action)
	require.Equal(t, "/dashboard", nav.path())
}

func TestExecuteNavigateBack(t *testing.T) {
	nav := &recordingNavigator{}
	got := newTestExecutor().Execute(context.Background(), interpreter.Command{
		Action: grammar.ActionNavigate, Target: grammar.BackTarget, Confidence: 0.9,
	}, Effects{Navigator: nav})

	require.True(t, got.Success)
	require.Equal(t, "Went back to the previous page", got.Message)
	require.Equal(t, grammar.BackTarget, nav.path())
}

func TestExecuteNavigateHumanizesUnlabeledTargets(t *testing.T) {
	got := newTestExecutor().Execute(context.Background(), interpreter.Command{
		Action: grammar.ActionNavigate, Target: "/voice-settings/advanced", Confidence: 0.9,
	}, Effects{Navigator: &recordingNavigator{}})

	require.Equal(t, "Navigated to voice settings advanced", got.Message)
}

func TestExecuteContainsNavigatorError(t *testing.T) {
	nav := &recordingNavigator{err: errors.New("router offline")}
	got := newTestExecutor().Execute(context.Background(), interpreter.Command{
		Action: grammar.ActionNavigate, Target: "/x", Confidence: 0.9,
	}, Effects{Navigator: nav})

	require.False(t, got.Success)
	require.Equal(t, "Failed to navigate: router offline", got.Message)
	require.Equal(t, grammar.ActionNavigate, got.Action)
}

func TestExecuteContainsPanics(t *testing.T) {
	effects := Effects{
		Navigator: NavigatorFunc(func(context.Context, string) error { panic("boom") }),
		System:    SystemFunc(func(context.Context, string) error { panic("system exploded") }),
	}
	exec := newTestExecutor()

	got := exec.Execute(context.Background(), interpreter.Command{
		Action: grammar.ActionNavigate, Target: "/x", Confidence: 0.9,
	}, effects)
	require.False(t, got.Success)
	require.Contains(t, got.Message, "boom")

	got = exec.Execute(context.Background(), interpreter.Command{
		Action: grammar.ActionSystem, Type: "logout", Confidence: 0.9,
	}, effects)
	require.False(t, got.Success)
	require.Contains(t, got.Message, "system exploded")
}

func TestExecuteBoundsHungEffects(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	nav := NavigatorFunc(func(ctx context.Context, _ string) error {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	})
	exec := New(nil, Options{MinConfidence: 0.5, Timeout: 20 * time.Millisecond})

	start := time.Now()
	got := exec.Execute(context.Background(), interpreter.Command{
		Action: grammar.ActionNavigate, Target: "/slow", Confidence: 0.9,
	}, Effects{Navigator: nav})

	require.False(t, got.Success)
	require.Contains(t, got.Message, context.DeadlineExceeded.Error())
	require.Less(t, time.Since(start), time.Second)
}

func TestExecuteCreate(t *testing.T) {
	tests := []struct {
		kind    string
		path    string
		message string
	}{
		{kind: "invoice", path: "/invoices/new", message: "Opening new invoice form"},
		{kind: "client", path: "/clients/new", message: "Opening new client form"},
		{kind: "report", path: "/reports/new", message: "Opening new report form"},
	}

	for _, tc := range tests {
		t.Run(tc.kind, func(t *testing.T) {
			nav := &recordingNavigator{}
			got := newTestExecutor().Execute(context.Background(), interpreter.Command{
				Action: grammar.ActionCreate, Type: tc.kind, Confidence: 0.9,
			}, Effects{Navigator: nav})

			require.Equal(t, Outcome{Success: true, Message: tc.message, Action: grammar.ActionCreate}, got)
			require.Equal(t, tc.path, nav.path())
		})
	}

	nav := &recordingNavigator{}
	got := newTestExecutor().Execute(context.Background(), interpreter.Command{
		Action: grammar.ActionCreate, Type: "spaceship", Confidence: 0.9,
	}, Effects{Navigator: nav})
	require.False(t, got.Success)
	require.Zero(t, nav.calls.Load())
}

func TestExecuteSearch(t *testing.T) {
	var seen atomic.Value
	effects := Effects{
		Navigator: &recordingNavigator{},
		Searcher: SearcherFunc(func(_ context.Context, q string) error {
			seen.Store(q)
			return nil
		}),
	}
	exec := newTestExecutor()

	got := exec.Execute(context.Background(), interpreter.Command{
		Action: grammar.ActionSearch, Query: "John Doe", Confidence: 0.9,
	}, effects)
	require.Equal(t, Outcome{Success: true, Message: "Searching for: John Doe", Action: grammar.ActionSearch}, got)
	require.Equal(t, "John Doe", seen.Load())

	got = exec.Execute(context.Background(), interpreter.Command{
		Action: grammar.ActionSearch, Query: "invoice 42", Confidence: 0.9,
	}, Effects{Navigator: &recordingNavigator{}})
	require.True(t, got.Success)

	got = exec.Execute(context.Background(), interpreter.Command{
		Action: grammar.ActionSearch, Query: "  ", Confidence: 0.9,
	}, effects)
	require.False(t, got.Success)
	require.Equal(t, "What would you like to search for?", got.Message)
}

func TestExecuteExport(t *testing.T) {
	var kind atomic.Value
	exporter := ExporterFunc(func(_ context.Context, k string) error {
		kind.Store(k)
		return nil
	})
	exec := newTestExecutor()

	got := exec.Execute(context.Background(), interpreter.Command{
		Action: grammar.ActionExport, Type: "invoices", Confidence: 0.9,
	}, Effects{Navigator: &recordingNavigator{}, Exporter: exporter})
	require.Equal(t, Outcome{Success: true, Message: "Exporting invoices", Action: grammar.ActionExport}, got)
	require.Equal(t, "invoices", kind.Load())

	got = exec.Execute(context.Background(), interpreter.Command{
		Action: grammar.ActionExport, Type: "invoices", Confidence: 0.9,
	}, Effects{Navigator: &recordingNavigator{}})
	require.False(t, got.Success)
}

func TestExecuteHelp(t *testing.T) {
	tests := []struct {
		topic   string
		path    string
		message string
	}{
		{topic: "general", path: "/help", message: "Opening help center"},
		{topic: "", path: "/help", message: "Opening help center"},
		{topic: "commands", path: "/voice", message: "Showing voice commands"},
		{topic: "invoices", path: "/help/invoices", message: "Opening help for invoices"},
	}

	for _, tc := range tests {
		t.Run("topic_"+tc.topic, func(t *testing.T) {
			nav := &recordingNavigator{}
			got := newTestExecutor().Execute(context.Background(), interpreter.Command{
				Action: grammar.ActionHelp, Type: tc.topic, Confidence: 0.9,
			}, Effects{Navigator: nav})
			require.True(t, got.Success)
			require.Equal(t, tc.message, got.Message)
			require.Equal(t, tc.path, nav.path())
		})
	}
}

func TestExecuteSystem(t *testing.T) {
	var ops atomic.Value
	system := SystemFunc(func(_ context.Context, op string) error {
		ops.Store(op)
		return nil
	})
	exec := newTestExecutor()

	got := exec.Execute(context.Background(), interpreter.Command{
		Action: grammar.ActionSystem, Type: "logout", Confidence: 0.95,
	}, Effects{Navigator: &recordingNavigator{}, System: system})
	require.Equal(t, Outcome{Success: true, Message: "Logging out...", Action: grammar.ActionSystem}, got)
	require.Equal(t, "logout", ops.Load())

	got = exec.Execute(context.Background(), interpreter.Command{
		Action: grammar.ActionSystem, Type: "stop-listening", Confidence: 0.95,
	}, Effects{Navigator: &recordingNavigator{}, System: system})
	require.Equal(t, "Stopping voice recognition", got.Message)

	got = exec.Execute(context.Background(), interpreter.Command{
		Action: grammar.ActionSystem, Type: "logout", Confidence: 0.95,
	}, Effects{Navigator: &recordingNavigator{}})
	require.False(t, got.Success)

	got = exec.Execute(context.Background(), interpreter.Command{
		Action: grammar.ActionSystem, Type: "logout", Confidence: 0.95,
	}, Effects{System: SystemFunc(func(context.Context, string) error { return errors.New("denied") })})
	require.False(t, got.Success)
	require.Equal(t, "System command failed: denied", got.Message)
}

func TestExecuteEndToEndWithInterpreter(t *testing.T) {
	in := interpreter.New(grammar.Default(), interpreter.DefaultThresholds())
	nav := &recordingNavigator{}

	got := newTestExecutor().Execute(context.Background(), in.Interpret("create new invoice"), Effects{Navigator: nav})
	require.True(t, got.Success)
	require.Equal(t, "/invoices/new", nav.path())

	got = newTestExecutor().Execute(context.Background(), in.Interpret("dashbord"), Effects{Navigator: nav})
	require.True(t, got.Success)
	require.Equal(t, "/dashboard", nav.path())
}
