package queue

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/codebuildervaibhav/podcast-summarizer/internal/matcher"
	"github.com/codebuildervaibhav/podcast-summarizer/internal/storage"
	"github.com/codebuildervaibhav/podcast-summarizer/internal/summary"
	"github.com/codebuildervaibhav/podcast-summarizer/internal/types"
)

const (
	youtubeURL = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"
	spotifyURL = "https://open.spotify.com/episode/4rOoJ6Egrf8K2IrywzwOMk"
)

type fakeMetadata struct{}

func (fakeMetadata) Lookup(_ context.Context, rawURL string) (*types.Metadata, error) {
	if strings.Contains(rawURL, "spotify") {
		return &types.Metadata{ID: "4rOoJ6Egrf8K2IrywzwOMk", Platform: types.PlatformSpotify, Title: "Scaling Postgres", ShowName: "Data Hour", Duration: 3000}, nil
	}
	return &types.Metadata{ID: "dQw4w9WgXcQ", Platform: types.PlatformYouTube, Title: "Queues in Practice", ShowName: "Systems Talk", Duration: 1800}, nil
}

type fakeResolver struct {
	mu    sync.Mutex
	calls []string
	text  string
	err   error
}

func (f *fakeResolver) Resolve(_ context.Context, rawURL string) (*types.TranscriptResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, rawURL)
	if f.err != nil {
		return nil, f.err
	}
	return &types.TranscriptResult{Text: f.text, Available: true, Source: types.SourceScrape}, nil
}

type fakeGenerator struct {
	mu     sync.Mutex
	calls  int
	inputs []summary.Input
	chunks []string
	err    error
}

func (f *fakeGenerator) Generate(_ context.Context, in summary.Input, onChunk func(string) error) error {
	f.mu.Lock()
	f.calls++
	f.inputs = append(f.inputs, in)
	f.mu.Unlock()
	for _, c := range f.chunks {
		if err := onChunk(c); err != nil {
			return err
		}
	}
	return f.err
}

type fakeArchiver struct {
	archived []*types.Summary
	err      error
}

func (f *fakeArchiver) Name() string { return "fake" }

func (f *fakeArchiver) Archive(_ context.Context, _ *types.Podcast, s *types.Summary) (string, error) {
	f.archived = append(f.archived, s)
	return "/tmp/" + s.ID + ".md", f.err
}

type harness struct {
	db        *storage.DB
	broker    *MemoryBroker
	submitter *Submitter
	resolver  *fakeResolver
	generator *fakeGenerator
	archiver  *fakeArchiver
	processor *Processor
}

func newHarness(t *testing.T, videoMatcher VideoMatcher) *harness {
	t.Helper()
	db, err := storage.NewDB(storage.DriverSQLite, filepath.Join(t.TempDir(), "queue.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := zaptest.NewLogger(t)
	h := &harness{
		db:        db,
		broker:    NewMemoryBroker(10),
		resolver:  &fakeResolver{text: "welcome to the show, today we talk about queues"},
		generator: &fakeGenerator{chunks: []string{"## Overview\n", "Queues ", "are useful."}},
		archiver:  &fakeArchiver{},
	}
	h.submitter = NewSubmitter(db, fakeMetadata{}, h.broker, logger)
	h.processor = NewProcessor(db, h.resolver, videoMatcher, h.generator, []Archiver{h.archiver}, logger)
	return h
}

// submit creates a summary and returns the job the submitter published
func (h *harness) submit(t *testing.T, url string) (*types.Summary, *Job) {
	t.Helper()
	ctx := context.Background()
	sum, err := h.submitter.Submit(ctx, url, "")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	d, err := h.broker.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	job, err := ParseJob(d.Body)
	if err != nil {
		t.Fatalf("ParseJob: %v", err)
	}
	return sum, job
}

func (h *harness) summary(t *testing.T, id string) *types.Summary {
	t.Helper()
	s, err := h.db.GetSummary(context.Background(), id)
	if err != nil {
		t.Fatalf("GetSummary: %v", err)
	}
	return s
}

func historyStatuses(s *types.Summary) []types.Status {
	out := make([]types.Status, len(s.StatusHistory))
	for i, e := range s.StatusHistory {
		out[i] = e.Status
	}
	return out
}

func equalStatuses(a, b []types.Status) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestProcessYouTubeToCompleted(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	sum, job := h.submit(t, youtubeURL)

	if err := h.processor.Process(ctx, job); err != nil {
		t.Fatalf("Process: %v", err)
	}

	got := h.summary(t, sum.ID)
	if got.Status != types.StatusCompleted {
		t.Fatalf("status = %s (%s)", got.Status, got.ErrorMessage)
	}
	if got.SummaryText != "## Overview\nQueues are useful." {
		t.Errorf("SummaryText = %q", got.SummaryText)
	}
	want := []types.Status{types.StatusInQueue, types.StatusFetchingTranscript, types.StatusGeneratingSummary, types.StatusCompleted}
	if !equalStatuses(historyStatuses(got), want) {
		t.Errorf("history = %v, want %v", historyStatuses(got), want)
	}
	if got.CompletedAt == nil {
		t.Error("completed_at not set")
	}

	podcast, err := h.db.GetPodcast(ctx, job.Data.PodcastID)
	if err != nil {
		t.Fatalf("GetPodcast: %v", err)
	}
	if !podcast.HasTranscript || podcast.Transcript != h.resolver.text {
		t.Errorf("transcript not stored: %+v", podcast)
	}
	if len(h.generator.inputs) != 1 || h.generator.inputs[0].Title != "Queues in Practice" {
		t.Errorf("generator inputs = %+v", h.generator.inputs)
	}
	if len(h.archiver.archived) != 1 || h.archiver.archived[0].Status != types.StatusCompleted {
		t.Errorf("archiver should receive the completed summary, got %+v", h.archiver.archived)
	}
}

func TestProcessReplayIsIdempotent(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	sum, job := h.submit(t, youtubeURL)

	for i := 0; i < 3; i++ {
		if err := h.processor.Process(ctx, job); err != nil {
			t.Fatalf("Process #%d: %v", i, err)
		}
	}

	got := h.summary(t, sum.ID)
	if got.Status != types.StatusCompleted || len(got.StatusHistory) != 4 {
		t.Errorf("replays changed the summary: %s %v", got.Status, historyStatuses(got))
	}
	if h.generator.calls != 1 || len(h.resolver.calls) != 1 {
		t.Errorf("replays reran the pipeline: generate=%d resolve=%d", h.generator.calls, len(h.resolver.calls))
	}
	if got.SummaryText != "## Overview\nQueues are useful." {
		t.Errorf("text duplicated by replay: %q", got.SummaryText)
	}
}

func TestProcessReusesCachedTranscript(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	_, first := h.submit(t, youtubeURL)
	if err := h.processor.Process(ctx, first); err != nil {
		t.Fatalf("Process: %v", err)
	}
	second, job := h.submit(t, youtubeURL)
	if job.Data.PodcastID != first.Data.PodcastID {
		t.Fatalf("second submission created a new podcast")
	}
	if err := h.processor.Process(ctx, job); err != nil {
		t.Fatalf("Process: %v", err)
	}

	if len(h.resolver.calls) != 1 {
		t.Errorf("resolver called %d times, want 1", len(h.resolver.calls))
	}
	if got := h.summary(t, second.ID); got.Status != types.StatusCompleted {
		t.Errorf("second summary status = %s", got.Status)
	}
}

func TestProcessTranscriptFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.resolver.err = &types.TranscriptError{Code: types.ErrCodeAllSourcesFailed, URL: youtubeURL, Causes: []error{errors.New("supadata: boom")}}
	sum, job := h.submit(t, youtubeURL)

	if err := h.processor.Process(context.Background(), job); err != nil {
		t.Fatalf("Process: %v", err)
	}
	got := h.summary(t, sum.ID)
	if got.Status != types.StatusFailed || !strings.Contains(got.ErrorMessage, "supadata: boom") {
		t.Errorf("unexpected summary: %s %q", got.Status, got.ErrorMessage)
	}
	if got.FailedAt == nil {
		t.Error("failed_at not set")
	}
	if h.generator.calls != 0 {
		t.Error("generator must not run without a transcript")
	}
}

func TestProcessStreamErrorKeepsPartialText(t *testing.T) {
	h := newHarness(t, nil)
	h.generator.chunks = []string{"## Overview\n", "Half"}
	h.generator.err = errors.New("connection reset")
	sum, job := h.submit(t, youtubeURL)

	if err := h.processor.Process(context.Background(), job); err != nil {
		t.Fatalf("Process: %v", err)
	}
	got := h.summary(t, sum.ID)
	if got.Status != types.StatusFailed || !strings.Contains(got.ErrorMessage, "connection reset") {
		t.Errorf("unexpected summary: %s %q", got.Status, got.ErrorMessage)
	}
	if got.SummaryText != "## Overview\nHalf" {
		t.Errorf("partial text lost: %q", got.SummaryText)
	}
	if len(h.archiver.archived) != 0 {
		t.Error("failed summaries must not be archived")
	}
}

func TestProcessInterruptedGenerationFails(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	sum, job := h.submit(t, youtubeURL)

	// Simulate a worker that died mid-stream.
	for _, change := range []types.StatusChange{
		{From: types.StatusInQueue, To: types.StatusFetchingTranscript},
		{From: types.StatusFetchingTranscript, To: types.StatusGeneratingSummary},
	} {
		if _, err := h.db.UpdateSummaryStatus(ctx, sum.ID, change); err != nil {
			t.Fatalf("UpdateSummaryStatus: %v", err)
		}
	}
	if err := h.db.AppendSummary(ctx, sum.ID, types.SummaryChunk{Text: "## Over", Status: types.StatusGeneratingSummary}); err != nil {
		t.Fatalf("AppendSummary: %v", err)
	}

	if err := h.processor.Process(ctx, job); err != nil {
		t.Fatalf("Process: %v", err)
	}
	got := h.summary(t, sum.ID)
	if got.Status != types.StatusFailed || got.ErrorMessage != interruptedMessage {
		t.Errorf("unexpected summary: %s %q", got.Status, got.ErrorMessage)
	}
	if got.SummaryText != "## Over" {
		t.Errorf("partial text should be kept, got %q", got.SummaryText)
	}
	if h.generator.calls != 0 {
		t.Error("interrupted summary must not be regenerated")
	}
}

type fakeSearch struct {
	ids    map[string][]string
	videos map[string]types.Metadata
}

func (f *fakeSearch) Search(_ context.Context, query string, _ int) ([]string, error) {
	return f.ids[query], nil
}

func (f *fakeSearch) VideoDetails(_ context.Context, ids ...string) ([]types.Metadata, error) {
	var out []types.Metadata
	for _, id := range ids {
		if v, ok := f.videos[id]; ok {
			out = append(out, v)
		}
	}
	return out, nil
}

type unusedEpisodes struct{}

func (unusedEpisodes) GetInfo(context.Context, string) (*types.Metadata, error) {
	return nil, errors.New("episode metadata comes from the podcast record")
}

func TestProcessSpotifyNoMatchFails(t *testing.T) {
	search := &fakeSearch{
		ids: map[string][]string{"Scaling Postgres Data Hour podcast": {"noise000001"}},
		videos: map[string]types.Metadata{
			"noise000001": {ID: "noise000001", Title: "Cooking with cast iron", ShowName: "Kitchen", Duration: 600},
		},
	}
	h := newHarness(t, nil)
	h.processor.matcher = matcher.New(unusedEpisodes{}, search, h.db, zaptest.NewLogger(t))

	sum, job := h.submit(t, spotifyURL)
	if err := h.processor.Process(context.Background(), job); err != nil {
		t.Fatalf("Process: %v", err)
	}

	got := h.summary(t, sum.ID)
	if got.Status != types.StatusFailed || got.ErrorMessage != NoMatchMessage {
		t.Errorf("unexpected summary: %s %q", got.Status, got.ErrorMessage)
	}
	if !equalStatuses(historyStatuses(got), []types.Status{types.StatusInQueue, types.StatusFailed}) {
		t.Errorf("history = %v", historyStatuses(got))
	}
	if len(h.resolver.calls) != 0 {
		t.Error("resolver must not run without a match")
	}

	failed, err := h.db.ListFailedYouTubeSearches(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListFailedYouTubeSearches: %v", err)
	}
	if len(failed) != 1 || failed[0].SpotifyURL != spotifyURL || failed[0].BestVideoID != "noise000001" {
		t.Errorf("failed search not recorded: %+v", failed)
	}
}

func TestProcessSpotifyMatchUsesYouTubeTranscript(t *testing.T) {
	search := &fakeSearch{
		ids: map[string][]string{"Scaling Postgres Data Hour podcast": {"match000001"}},
		videos: map[string]types.Metadata{
			"match000001": {ID: "match000001", Title: "Scaling Postgres", ShowName: "Data Hour", Duration: 3000},
		},
	}
	h := newHarness(t, nil)
	h.processor.matcher = matcher.New(unusedEpisodes{}, search, h.db, zaptest.NewLogger(t))

	sum, job := h.submit(t, spotifyURL)
	if err := h.processor.Process(context.Background(), job); err != nil {
		t.Fatalf("Process: %v", err)
	}

	if got := h.summary(t, sum.ID); got.Status != types.StatusCompleted {
		t.Fatalf("status = %s (%s)", got.Status, got.ErrorMessage)
	}
	wantURL := "https://www.youtube.com/watch?v=match000001"
	if len(h.resolver.calls) != 1 || h.resolver.calls[0] != wantURL {
		t.Errorf("resolver calls = %v, want %s", h.resolver.calls, wantURL)
	}
	podcast, _ := h.db.GetPodcast(context.Background(), job.Data.PodcastID)
	if podcast.YouTubeURL != wantURL {
		t.Errorf("youtube_url = %q", podcast.YouTubeURL)
	}
}

func TestProcessTerminalSummaryIsNoop(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	sum, job := h.submit(t, youtubeURL)

	if _, err := h.db.UpdateSummaryStatus(ctx, sum.ID, types.StatusChange{From: types.StatusInQueue, To: types.StatusFailed, Message: "timed out"}); err != nil {
		t.Fatalf("UpdateSummaryStatus: %v", err)
	}
	if err := h.processor.Process(ctx, job); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(h.resolver.calls) != 0 {
		t.Error("terminal summary was processed")
	}
}

func TestProcessMissingSummaryIsValidationError(t *testing.T) {
	h := newHarness(t, nil)
	job := testJob(testSummaryID)
	var validation *types.ValidationError
	if err := h.processor.Process(context.Background(), job); !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestRetryRequeuesFailedSummary(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.resolver.err = &types.TranscriptError{Code: types.ErrCodeAllSourcesFailed, URL: youtubeURL}
	sum, job := h.submit(t, youtubeURL)
	if err := h.processor.Process(ctx, job); err != nil {
		t.Fatalf("Process: %v", err)
	}

	h.resolver.err = nil
	retried, err := h.submitter.Retry(ctx, sum.ID)
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if retried.Status != types.StatusInQueue || retried.ErrorMessage != "" {
		t.Errorf("retry did not reset summary: %+v", retried)
	}

	d, err := h.broker.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	retryJob, err := ParseJob(d.Body)
	if err != nil {
		t.Fatalf("ParseJob: %v", err)
	}
	if err := h.processor.Process(ctx, retryJob); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got := h.summary(t, sum.ID); got.Status != types.StatusCompleted {
		t.Errorf("status after retry = %s", got.Status)
	}

	var validation *types.ValidationError
	if _, err := h.submitter.Retry(ctx, sum.ID); !errors.As(err, &validation) {
		t.Errorf("retrying a COMPLETED summary should fail validation, got %v", err)
	}
}

func TestSubmitRejectsUnsupportedURL(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.submitter.Submit(context.Background(), "https://vimeo.com/12345", "")
	var platformErr *types.PlatformError
	if !errors.As(err, &platformErr) || platformErr.Code != types.ErrCodeInvalidURL {
		t.Fatalf("expected INVALID_URL, got %v", err)
	}
	if n, _ := h.broker.Len(context.Background()); n != 0 {
		t.Error("invalid submission enqueued a job")
	}
}

func TestSubmitNormalizesSpotifyURI(t *testing.T) {
	h := newHarness(t, nil)
	_, job := h.submit(t, "spotify:episode:4rOoJ6Egrf8K2IrywzwOMk")
	if job.Data.URL != spotifyURL || job.Data.Platform != types.PlatformSpotify {
		t.Errorf("unexpected job data: %+v", job.Data)
	}
}
