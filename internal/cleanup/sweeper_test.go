package cleanup

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/codebuildervaibhav/podcast-summarizer/internal/storage"
	"github.com/codebuildervaibhav/podcast-summarizer/internal/types"
)

type memStore struct {
	summaries map[string]*types.Summary
	failOn    string
	updates   []types.StatusChange
}

func newMemStore(summaries ...types.Summary) *memStore {
	m := &memStore{summaries: map[string]*types.Summary{}}
	for i := range summaries {
		s := summaries[i]
		m.summaries[s.ID] = &s
	}
	return m
}

func (m *memStore) ListSummariesByStatus(_ context.Context, statuses ...types.Status) ([]types.Summary, error) {
	var out []types.Summary
	for _, s := range m.summaries {
		for _, st := range statuses {
			if s.Status == st {
				out = append(out, *s)
			}
		}
	}
	return out, nil
}

func (m *memStore) CountSummariesByStatus(context.Context) (map[types.Status]int, error) {
	counts := map[types.Status]int{}
	for _, s := range m.summaries {
		counts[s.Status]++
	}
	return counts, nil
}

func (m *memStore) UpdateSummaryStatus(_ context.Context, id string, change types.StatusChange) (bool, error) {
	if id == m.failOn {
		return false, &types.DatabaseError{Code: types.ErrCodeQueryFailed, Operation: "updateSummaryStatus", Err: errors.New("disk I/O error")}
	}
	s := m.summaries[id]
	if s.Status != change.From {
		return false, nil
	}
	m.updates = append(m.updates, change)
	s.Status = change.To
	s.ErrorMessage = change.Message
	return true, nil
}

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestSweeper(t *testing.T, store Store) *Sweeper {
	t.Helper()
	s := NewSweeper(store, DefaultThresholds(), time.Minute, zaptest.NewLogger(t))
	s.now = func() time.Time { return testNow }
	return s
}

func TestSweepTimesOutStalledSummaries(t *testing.T) {
	store := newMemStore(
		types.Summary{ID: "stalled", Status: types.StatusFetchingTranscript, UpdatedAt: testNow.Add(-3 * time.Hour)},
		types.Summary{ID: "recent", Status: types.StatusFetchingTranscript, UpdatedAt: testNow.Add(-30 * time.Minute)},
		types.Summary{ID: "queued", Status: types.StatusInQueue, UpdatedAt: testNow.Add(-90 * time.Minute)},
		types.Summary{ID: "generating", Status: types.StatusGeneratingSummary, UpdatedAt: testNow.Add(-3 * time.Hour)},
		types.Summary{ID: "done", Status: types.StatusCompleted, UpdatedAt: testNow.Add(-48 * time.Hour)},
	)
	sweeper := newTestSweeper(t, store)

	result, err := sweeper.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if result.Checked != 4 || result.TimedOut != 2 || result.Errors != 0 {
		t.Errorf("unexpected result: %+v", result)
	}

	if got := store.summaries["stalled"]; got.Status != types.StatusFailed ||
		got.ErrorMessage != "Summary processing timed out while in FETCHING_TRANSCRIPT status" {
		t.Errorf("stalled summary = %s %q", got.Status, got.ErrorMessage)
	}
	if got := store.summaries["queued"]; got.Status != types.StatusFailed {
		t.Errorf("queued summary past 1h should time out, got %s", got.Status)
	}
	if got := store.summaries["recent"]; got.Status != types.StatusFetchingTranscript {
		t.Errorf("recent summary was touched: %s", got.Status)
	}
	if got := store.summaries["generating"]; got.Status != types.StatusGeneratingSummary {
		t.Errorf("generating summary within 4h was touched: %s", got.Status)
	}
	if got := store.summaries["done"]; got.Status != types.StatusCompleted {
		t.Errorf("terminal summary was touched: %s", got.Status)
	}
}

func TestSweepContinuesAfterErrors(t *testing.T) {
	store := newMemStore(
		types.Summary{ID: "broken", Status: types.StatusInQueue, UpdatedAt: testNow.Add(-5 * time.Hour)},
		types.Summary{ID: "stalled", Status: types.StatusInQueue, UpdatedAt: testNow.Add(-5 * time.Hour)},
	)
	store.failOn = "broken"
	sweeper := newTestSweeper(t, store)

	result, err := sweeper.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if result.Errors != 1 || result.TimedOut != 1 {
		t.Errorf("unexpected result: %+v", result)
	}
	if store.summaries["stalled"].Status != types.StatusFailed {
		t.Error("sweep stopped at the first error")
	}
}

func TestHealth(t *testing.T) {
	store := newMemStore(
		types.Summary{ID: "ok", Status: types.StatusInQueue, UpdatedAt: testNow.Add(-10 * time.Minute)},
		types.Summary{ID: "risky", Status: types.StatusInQueue, UpdatedAt: testNow.Add(-50 * time.Minute)},
		types.Summary{ID: "stalled", Status: types.StatusGeneratingSummary, UpdatedAt: testNow.Add(-5 * time.Hour)},
		types.Summary{ID: "done", Status: types.StatusCompleted, UpdatedAt: testNow.Add(-5 * time.Hour)},
	)
	sweeper := newTestSweeper(t, store)

	report, err := sweeper.Health(context.Background())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if report.AtRisk != 1 || report.Stalled != 1 || report.Healthy {
		t.Errorf("unexpected report: %+v", report)
	}
	if report.Counts[types.StatusInQueue] != 2 || report.Counts[types.StatusCompleted] != 1 {
		t.Errorf("unexpected counts: %v", report.Counts)
	}
	if report.LastSweep != nil {
		t.Error("no sweep has run yet")
	}

	if _, err := sweeper.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	report, _ = sweeper.Health(context.Background())
	if report.LastSweep == nil || report.LastSweep.TimedOut != 1 {
		t.Errorf("last sweep not reported: %+v", report.LastSweep)
	}
}

func TestThresholdsFallBackToDefault(t *testing.T) {
	th := Thresholds{InQueue: 10 * time.Minute, Default: 3 * time.Hour}
	if got := th.For(types.StatusInQueue); got != 10*time.Minute {
		t.Errorf("InQueue = %v", got)
	}
	if got := th.For(types.StatusGeneratingSummary); got != 3*time.Hour {
		t.Errorf("unset status should use Default, got %v", got)
	}
	if got := (Thresholds{}).For(types.StatusFetchingTranscript); got != DefaultTimeout {
		t.Errorf("zero thresholds = %v", got)
	}
}

func TestSweepAgainstDatabase(t *testing.T) {
	db, err := storage.NewDB(storage.DriverSQLite, filepath.Join(t.TempDir(), "sweep.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	defer db.Close()
	ctx := context.Background()

	podcast := &types.Podcast{URL: "https://youtu.be/dQw4w9WgXcQ", Platform: types.PlatformYouTube}
	if err := db.CreatePodcast(ctx, podcast); err != nil {
		t.Fatalf("CreatePodcast: %v", err)
	}
	old := &types.Summary{PodcastID: podcast.ID}
	if err := db.CreateSummary(ctx, old); err != nil {
		t.Fatalf("CreateSummary: %v", err)
	}
	fresh := &types.Summary{PodcastID: podcast.ID}
	if err := db.CreateSummary(ctx, fresh); err != nil {
		t.Fatalf("CreateSummary: %v", err)
	}

	if _, err := db.UpdateSummaryStatus(ctx, fresh.ID, types.StatusChange{From: types.StatusInQueue, To: types.StatusFetchingTranscript}); err != nil {
		t.Fatalf("UpdateSummaryStatus: %v", err)
	}

	sweeper := NewSweeper(db, Thresholds{InQueue: time.Hour, FetchingTranscript: 4 * time.Hour}, time.Minute, zaptest.NewLogger(t))
	base := time.Now()
	sweeper.now = func() time.Time { return base.Add(3 * time.Hour) }

	result, err := sweeper.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if result.TimedOut != 1 {
		t.Fatalf("timed out %d, want 1", result.TimedOut)
	}

	got, err := db.GetSummary(ctx, old.ID)
	if err != nil {
		t.Fatalf("GetSummary: %v", err)
	}
	if got.Status != types.StatusFailed || got.ErrorMessage != "Summary processing timed out while in IN_QUEUE status" {
		t.Errorf("unexpected summary: %s %q", got.Status, got.ErrorMessage)
	}
	if last := got.StatusHistory[len(got.StatusHistory)-1]; last.Status != types.StatusFailed {
		t.Errorf("history not updated: %v", got.StatusHistory)
	}
}
