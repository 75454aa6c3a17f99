package analytics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/nexa/internal/storage"
)

type failingStore struct {
	storage.Store
	getErr error
	setErr error
}

func (f failingStore) Get(ctx context.Context, key string) (string, bool, error) {
	if f.getErr != nil {
		return "", false, f.getErr
	}
	return f.Store.Get(ctx, key)
}

func (f failingStore) Set(ctx context.Context, key, value string) error {
	if f.setErr != nil {
		return f.setErr
	}
	return f.Store.Set(ctx, key, value)
}

func newTestTracker(store storage.Store) *Tracker {
	tr := New(nil, store, DefaultLimits())
	base := time.UnixMilli(1_700_000_000_000)
	var mu sync.Mutex
	tick := 0
	tr.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return tr
}

func TestGetDegradesOnCorruptOrMissingData(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	tr := newTestTracker(store)

	require.Equal(t, emptyData(), tr.Get(ctx))

	require.NoError(t, store.Set(ctx, StorageKey, "{not json"))
	got := tr.Get(ctx)
	require.Equal(t, Data{Commands: []CommandRecord{}, Errors: []ErrorRecord{}, Sessions: []SessionRecord{}}, got)

	require.NoError(t, store.Set(ctx, StorageKey, `{"commands":null}`))
	require.Equal(t, emptyData(), tr.Get(ctx))

	broken := newTestTracker(failingStore{Store: store, getErr: errors.New("disk gone")})
	require.Equal(t, emptyData(), broken.Get(ctx))
	require.Equal(t, 0, broken.Summary(ctx).TotalCommands)
}

func TestTrackCommandRecoversFromCorruptData(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	require.NoError(t, store.Set(ctx, StorageKey, "garbage"))
	tr := newTestTracker(store)

	require.NoError(t, tr.TrackCommand(ctx, CommandRecord{Command: "go to dashboard", Success: true, SessionID: "s1"}))
	data := tr.Get(ctx)
	require.Len(t, data.Commands, 1)
	require.NotZero(t, data.Commands[0].Timestamp)
}

func TestTrackCommandEvictsOldest(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()

	seed := Data{Commands: make([]CommandRecord, 1000)}
	for i := range seed.Commands {
		seed.Commands[i] = CommandRecord{Command: "seed", Timestamp: int64(i + 1)}
	}
	encoded, err := json.MarshalToString(seed)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, StorageKey, encoded))

	tr := newTestTracker(store)
	require.NoError(t, tr.TrackCommand(ctx, CommandRecord{Command: "newest", Timestamp: 5000}))

	data := tr.Get(ctx)
	require.LessOrEqual(t, len(data.Commands), 500)
	require.Len(t, data.Commands, 500)
	require.Equal(t, "newest", data.Commands[len(data.Commands)-1].Command)
	require.Equal(t, int64(502), data.Commands[0].Timestamp)
}

func TestCapsApplyToErrorsAndSessions(t *testing.T) {
	ctx := context.Background()
	tr := New(nil, storage.NewMemory(), Limits{Commands: 2, Errors: 2, Sessions: 1})

	for i := range 4 {
		require.NoError(t, tr.TrackError(ctx, ErrorRecord{Type: "network", SessionID: "s", Timestamp: int64(i + 1)}))
		require.NoError(t, tr.TrackSession(ctx, SessionRecord{SessionID: string(rune('a' + i))}))
	}

	data := tr.Get(ctx)
	require.Len(t, data.Errors, 2)
	require.Equal(t, int64(3), data.Errors[0].Timestamp)
	require.Len(t, data.Sessions, 1)
	require.Equal(t, "d", data.Sessions[0].SessionID)
}

func TestConcurrentTrackingLosesNoUpdates(t *testing.T) {
	ctx := context.Background()
	tr := New(nil, storage.NewMemory(), DefaultLimits())

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = tr.TrackCommand(ctx, CommandRecord{Command: "help", Success: true})
		}()
		go func() {
			defer wg.Done()
			_ = tr.TrackError(ctx, ErrorRecord{Type: "no-speech"})
		}()
	}
	wg.Wait()

	data := tr.Get(ctx)
	require.Len(t, data.Commands, 50)
	require.Len(t, data.Errors, 50)
}

func TestSummary(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(storage.NewMemory())

	require.NoError(t, tr.TrackCommand(ctx, CommandRecord{Command: "go to dashboard", Confidence: 0.9, Success: true, ResponseTime: 100}))
	require.NoError(t, tr.TrackCommand(ctx, CommandRecord{Command: "go to dashboard", Confidence: 0.7, Success: true, ResponseTime: 300}))
	require.NoError(t, tr.TrackCommand(ctx, CommandRecord{Command: "xyzzy", Confidence: 0.2, Success: false, ResponseTime: 200}))
	require.NoError(t, tr.TrackError(ctx, ErrorRecord{Type: "network"}))
	require.NoError(t, tr.TrackRecognitionFailure(ctx, "s1", "no-speech", 0))
	require.NoError(t, tr.TrackRecognitionFailure(ctx, "s1", "aborted", 0))
	require.NoError(t, tr.TrackError(ctx, ErrorRecord{}))
	require.NoError(t, tr.TrackSession(ctx, SessionRecord{SessionID: "s1", StartTime: 1000, EndTime: 4000}))

	s := tr.Summary(ctx)
	require.Equal(t, 3, s.TotalCommands)
	require.Equal(t, 2, s.SuccessfulCommands)
	require.Equal(t, 1, s.FailedCommands)
	require.InDelta(t, 2.0/3.0, s.SuccessRate, 1e-9)
	require.InDelta(t, 0.6, s.AverageConfidence, 1e-9)
	require.InDelta(t, 200, s.AverageResponseTime, 1e-9)
	require.Equal(t, 1, s.TotalSessions)
	require.Equal(t, 4, s.TotalErrors)
	require.Equal(t, map[string]int{"go to dashboard": 2, "xyzzy": 1}, s.CommandFrequency)
	require.Equal(t, []ErrorCount{
		{Type: "recognition_error", Count: 2},
		{Type: "network", Count: 1},
		{Type: "unknown", Count: 1},
	}, s.MostCommonErrors)

	require.Equal(t, int64(3000), tr.Get(ctx).Sessions[0].Duration)
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(storage.NewMemory())

	require.NoError(t, tr.TrackSessionEnd(ctx, "manual"))
	require.Empty(t, tr.Get(ctx).Sessions)

	require.NoError(t, tr.TrackSessionStart(ctx, SessionStart{SessionID: "s1", Trigger: "wake-word"}))
	current, ok := tr.CurrentSession(ctx)
	require.True(t, ok)
	require.Equal(t, "s1", current.SessionID)

	require.NoError(t, tr.TrackCommand(ctx, CommandRecord{Command: "help", Confidence: 0.9, Success: true, SessionID: "s1"}))
	require.NoError(t, tr.TrackCommand(ctx, CommandRecord{Command: "xyzzy", Confidence: 0.1, Success: false, SessionID: "s1"}))
	require.NoError(t, tr.TrackCommand(ctx, CommandRecord{Command: "help", Confidence: 0.9, Success: true, SessionID: "other"}))
	require.NoError(t, tr.TrackRecognitionFailure(ctx, "s1", "no-speech", 0))

	require.NoError(t, tr.TrackSessionEnd(ctx, "timeout"))
	_, ok = tr.CurrentSession(ctx)
	require.False(t, ok)

	sessions := tr.Get(ctx).Sessions
	require.Len(t, sessions, 1)
	got := sessions[0]
	require.Equal(t, "s1", got.SessionID)
	require.Equal(t, "wake-word", got.Trigger)
	require.Equal(t, "timeout", got.Reason)
	require.Equal(t, 2, got.CommandCount)
	require.Equal(t, 1, got.FailureCount)
	require.InDelta(t, 0.5, got.SuccessRate, 1e-9)
	require.InDelta(t, 0.5, got.AverageConfidence, 1e-9)
	require.Positive(t, got.Duration)

	require.Error(t, tr.TrackSessionStart(ctx, SessionStart{}))
}

func TestDetailedAndForPeriod(t *testing.T) {
	ctx := context.Background()
	tr := New(nil, storage.NewMemory(), DefaultLimits())
	now := time.UnixMilli(1_700_000_000_000)
	tr.now = func() time.Time { return now }

	old := now.Add(-10 * 24 * time.Hour).UnixMilli()
	recent := now.Add(-time.Hour).UnixMilli()
	require.NoError(t, tr.TrackCommand(ctx, CommandRecord{Command: "old", Timestamp: old}))
	require.NoError(t, tr.TrackCommand(ctx, CommandRecord{Command: "recent", Timestamp: recent}))
	require.NoError(t, tr.TrackError(ctx, ErrorRecord{Type: "network", Timestamp: old}))

	day := tr.ForPeriod(ctx, PeriodDay)
	require.Len(t, day.Commands, 1)
	require.Equal(t, "recent", day.Commands[0].Command)
	require.Empty(t, day.Errors)
	require.Equal(t, 2, day.Summary.TotalCommands)

	month := tr.ForPeriod(ctx, PeriodMonth)
	require.Len(t, month.Commands, 2)
	require.Len(t, month.Errors, 1)

	all := tr.ForPeriod(ctx, PeriodAll)
	require.Len(t, all.Commands, 2)

	limited := tr.Detailed(ctx, Filter{Limit: 1, SkipErrors: true})
	require.Len(t, limited.Commands, 1)
	require.Equal(t, "recent", limited.Commands[0].Command)
	require.Nil(t, limited.Errors)
}

func TestExportImportClear(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(storage.NewMemory())

	require.NoError(t, tr.TrackCommand(ctx, CommandRecord{Command: "search for Acme, Inc", Action: "search", Confidence: 0.9, Success: true, SessionID: "s1", ResponseTime: 12, Timestamp: 42}))
	require.NoError(t, tr.TrackError(ctx, ErrorRecord{Type: "network", Error: "offline", SessionID: "s1", Timestamp: 43}))

	exported, err := tr.Export(ctx, FormatJSON)
	require.NoError(t, err)

	csvOut, err := tr.Export(ctx, FormatCSV)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(csvOut)), "\n")
	require.Equal(t, "COMMANDS", lines[0])
	require.Equal(t, "Timestamp,Session ID,Command,Action,Success,Confidence,Response Time", lines[1])
	require.Equal(t, `42,s1,"search for Acme, Inc",search,true,0.9,12`, lines[2])
	require.Contains(t, string(csvOut), "ERRORS\nTimestamp,Session ID,Type,Error,Command\n43,s1,network,offline,\n")

	_, err = tr.Export(ctx, Format("xml"))
	require.ErrorContains(t, err, "unsupported export format")

	require.NoError(t, tr.Clear(ctx))
	require.Equal(t, emptyData(), tr.Get(ctx))

	require.NoError(t, tr.Import(ctx, exported))
	data := tr.Get(ctx)
	require.Len(t, data.Commands, 1)
	require.Equal(t, "search for Acme, Inc", data.Commands[0].Command)
	require.Len(t, data.Errors, 1)

	require.Error(t, tr.Import(ctx, []byte("nope")))
}

func TestTrackReportsWriteFailures(t *testing.T) {
	tr := New(nil, failingStore{Store: storage.NewMemory(), setErr: errors.New("read-only")}, DefaultLimits())
	err := tr.TrackCommand(context.Background(), CommandRecord{Command: "help"})
	require.ErrorContains(t, err, "read-only")
}
