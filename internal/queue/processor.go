package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/codebuildervaibhav/podcast-summarizer/internal/platform"
	"github.com/codebuildervaibhav/podcast-summarizer/internal/summary"
	"github.com/codebuildervaibhav/podcast-summarizer/internal/types"
)

// NoMatchMessage is recorded when a Spotify episode has no YouTube counterpart
const NoMatchMessage = "unable to find a video transcript to summarize"

const interruptedMessage = "summary generation was interrupted"

// Store is the persistence the processor needs
type Store interface {
	GetSummary(ctx context.Context, id string) (*types.Summary, error)
	UpdateSummaryStatus(ctx context.Context, id string, change types.StatusChange) (bool, error)
	AppendSummary(ctx context.Context, id string, chunk types.SummaryChunk) error
	GetPodcast(ctx context.Context, id string) (*types.Podcast, error)
	UpdatePodcast(ctx context.Context, id string, update types.PodcastUpdate) error
}

// TranscriptResolver fetches a transcript for a podcast URL
type TranscriptResolver interface {
	Resolve(ctx context.Context, rawURL string) (*types.TranscriptResult, error)
}

// VideoMatcher finds the YouTube upload of a Spotify episode
type VideoMatcher interface {
	Match(ctx context.Context, spotifyURL string, episode *types.Metadata) (*types.MatchCandidate, error)
}

// SummaryGenerator streams a summary of a transcript
type SummaryGenerator interface {
	Generate(ctx context.Context, in summary.Input, onChunk func(string) error) error
}

// Archiver stores a copy of a completed summary
type Archiver interface {
	Name() string
	Archive(ctx context.Context, podcast *types.Podcast, summary *types.Summary) (string, error)
}

// Processor drives a summary through its lifecycle. Every status write is
// conditional on the status read, so processing the same job twice is safe.
type Processor struct {
	store     Store
	resolver  TranscriptResolver
	matcher   VideoMatcher
	generator SummaryGenerator
	archivers []Archiver
	logger    *zap.Logger
}

// NewProcessor creates a processor. matcher may be nil, in which case Spotify
// episodes are resolved through the Spotify transcript source directly.
func NewProcessor(store Store, resolver TranscriptResolver, matcher VideoMatcher, generator SummaryGenerator, archivers []Archiver, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		store:     store,
		resolver:  resolver,
		matcher:   matcher,
		generator: generator,
		archivers: archivers,
		logger:    logger.With(zap.String("component", "processor")),
	}
}

// Process runs one job. Failures of the pipeline itself are recorded on the
// summary as FAILED and nil is returned; the returned error is reserved for
// problems worth redelivering (database errors, shutdown) and for
// ValidationErrors, which never succeed on redelivery.
func (p *Processor) Process(ctx context.Context, job *Job) error {
	log := p.logger.With(zap.String("summary_id", job.Data.SummaryID), zap.String("url", job.Data.URL))

	sum, err := p.store.GetSummary(ctx, job.Data.SummaryID)
	if errors.Is(err, types.ErrNotFound) {
		return &types.ValidationError{Errors: []string{"summary " + job.Data.SummaryID + " does not exist"}}
	}
	if err != nil {
		return err
	}
	if sum.Status.IsTerminal() {
		log.Info("summary already finished, skipping", zap.String("status", string(sum.Status)))
		return nil
	}

	podcast, err := p.store.GetPodcast(ctx, job.Data.PodcastID)
	if errors.Is(err, types.ErrNotFound) {
		return &types.ValidationError{Errors: []string{"podcast " + job.Data.PodcastID + " does not exist"}}
	}
	if err != nil {
		return err
	}

	status := sum.Status
	fresh := false

	if status == types.StatusInQueue {
		if podcast.Platform == types.PlatformSpotify && podcast.YouTubeURL == "" && !podcast.HasTranscript && p.matcher != nil {
			matched, err := p.matchVideo(ctx, podcast)
			if err != nil {
				if isRedeliverable(ctx, err) {
					return err
				}
				return p.fail(ctx, sum.ID, status, fmt.Sprintf("failed to match Spotify episode: %v", err))
			}
			if !matched {
				return p.fail(ctx, sum.ID, status, NoMatchMessage)
			}
		}

		if ok, err := p.advance(ctx, sum.ID, status, types.StatusFetchingTranscript); err != nil || !ok {
			return err
		}
		status = types.StatusFetchingTranscript
	}

	if status == types.StatusFetchingTranscript {
		if !podcast.HasTranscript {
			if err := p.fetchTranscript(ctx, podcast); err != nil {
				if isRedeliverable(ctx, err) {
					return err
				}
				return p.fail(ctx, sum.ID, status, err.Error())
			}
		} else {
			log.Debug("reusing cached transcript")
		}

		if ok, err := p.advance(ctx, sum.ID, status, types.StatusGeneratingSummary); err != nil || !ok {
			return err
		}
		status = types.StatusGeneratingSummary
		fresh = true
	}

	if status != types.StatusGeneratingSummary {
		return nil
	}

	if !fresh && sum.SummaryText != "" {
		// A previous delivery streamed part of the summary and died.
		log.Warn("found partially generated summary, failing it")
		return p.fail(ctx, sum.ID, status, interruptedMessage)
	}

	if err := p.generate(ctx, sum.ID, podcast); err != nil {
		var dbErr *types.DatabaseError
		switch {
		case errors.As(err, &dbErr) && dbErr.Code == types.ErrCodeConflict:
			log.Info("summary changed status while streaming, stopping", zap.Error(err))
			return nil
		case isRedeliverable(ctx, err):
			return err
		}
		return p.fail(ctx, sum.ID, status, fmt.Sprintf("failed to generate summary: %v", err))
	}

	ok, err := p.advance(ctx, sum.ID, status, types.StatusCompleted)
	if err != nil || !ok {
		return err
	}
	log.Info("summary completed")

	p.archive(ctx, podcast, sum.ID)
	return nil
}

// Fail marks the job's summary FAILED from whatever non-terminal status it
// is in. The worker calls it once redelivery attempts are exhausted.
func (p *Processor) Fail(ctx context.Context, job *Job, cause error) error {
	sum, err := p.store.GetSummary(ctx, job.Data.SummaryID)
	if err != nil {
		return err
	}
	if sum.Status.IsTerminal() {
		return nil
	}
	return p.fail(ctx, sum.ID, sum.Status, fmt.Sprintf("processing failed: %v", cause))
}

func (p *Processor) matchVideo(ctx context.Context, podcast *types.Podcast) (bool, error) {
	episode := &types.Metadata{
		ID:       platform.ExtractSpotifyEpisodeID(podcast.URL),
		Platform: types.PlatformSpotify,
		Title:    podcast.Title,
		ShowName: podcast.ShowName,
		Duration: podcast.Duration,
	}
	match, err := p.matcher.Match(ctx, podcast.URL, episode)
	if err != nil {
		return false, err
	}
	if match == nil {
		return false, nil
	}

	youtubeURL := platform.YouTubeWatchURL(match.Video.ID)
	if err := p.store.UpdatePodcast(ctx, podcast.ID, types.PodcastUpdate{YouTubeURL: &youtubeURL}); err != nil {
		return false, err
	}
	podcast.YouTubeURL = youtubeURL

	p.logger.Info("matched spotify episode to youtube",
		zap.String("podcast_id", podcast.ID),
		zap.String("video_id", match.Video.ID),
		zap.Float64("score", match.Score),
		zap.String("query", match.Query))
	return true, nil
}

func (p *Processor) fetchTranscript(ctx context.Context, podcast *types.Podcast) error {
	target := podcast.URL
	if podcast.YouTubeURL != "" {
		target = podcast.YouTubeURL
	}

	result, err := p.resolver.Resolve(ctx, target)
	if err != nil {
		return err
	}
	if result == nil || strings.TrimSpace(result.Text) == "" {
		return &types.TranscriptError{Code: types.ErrCodeNoTranscript, URL: target}
	}

	has := true
	if err := p.store.UpdatePodcast(ctx, podcast.ID, types.PodcastUpdate{Transcript: &result.Text, HasTranscript: &has}); err != nil {
		return err
	}
	podcast.Transcript = result.Text
	podcast.HasTranscript = true

	p.logger.Info("transcript stored",
		zap.String("podcast_id", podcast.ID),
		zap.String("source", string(result.Source)),
		zap.Int("chars", len(result.Text)))
	return nil
}

func (p *Processor) generate(ctx context.Context, summaryID string, podcast *types.Podcast) error {
	var text strings.Builder
	return p.generator.Generate(ctx, summary.Input{
		Title:      podcast.Title,
		ShowName:   podcast.ShowName,
		Transcript: podcast.Transcript,
	}, func(chunk string) error {
		text.WriteString(chunk)
		return p.store.AppendSummary(ctx, summaryID, types.SummaryChunk{
			Text:   text.String(),
			Status: types.StatusGeneratingSummary,
		})
	})
}

func (p *Processor) archive(ctx context.Context, podcast *types.Podcast, summaryID string) {
	if len(p.archivers) == 0 {
		return
	}
	sum, err := p.store.GetSummary(ctx, summaryID)
	if err != nil {
		p.logger.Warn("failed to load summary for archiving", zap.String("summary_id", summaryID), zap.Error(err))
		return
	}
	for _, a := range p.archivers {
		location, err := a.Archive(ctx, podcast, sum)
		if err != nil {
			p.logger.Warn("failed to archive summary",
				zap.String("archive", a.Name()),
				zap.String("summary_id", summaryID),
				zap.Error(err))
			continue
		}
		p.logger.Info("summary archived", zap.String("archive", a.Name()), zap.String("location", location))
	}
}

func (p *Processor) advance(ctx context.Context, id string, from, to types.Status) (bool, error) {
	applied, err := p.store.UpdateSummaryStatus(ctx, id, types.StatusChange{From: from, To: to})
	if err != nil {
		return false, err
	}
	if !applied {
		p.logger.Info("status already moved on, stopping",
			zap.String("summary_id", id),
			zap.String("expected", string(from)),
			zap.String("target", string(to)))
	}
	return applied, nil
}

func (p *Processor) fail(ctx context.Context, id string, from types.Status, message string) error {
	applied, err := p.store.UpdateSummaryStatus(ctx, id, types.StatusChange{From: from, To: types.StatusFailed, Message: message})
	if err != nil {
		return err
	}
	if applied {
		p.logger.Warn("summary failed",
			zap.String("summary_id", id),
			zap.String("status", string(from)),
			zap.String("reason", message))
	}
	return nil
}

// isRedeliverable reports errors that another attempt may get past
func isRedeliverable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	var dbErr *types.DatabaseError
	return errors.As(err, &dbErr) && dbErr.Code == types.ErrCodeQueryFailed
}
