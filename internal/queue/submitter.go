package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/codebuildervaibhav/podcast-summarizer/internal/platform"
	"github.com/codebuildervaibhav/podcast-summarizer/internal/types"
)

// SubmitStore is the persistence the submitter needs
type SubmitStore interface {
	FindPodcastByURL(ctx context.Context, url string) (*types.Podcast, error)
	CreatePodcast(ctx context.Context, p *types.Podcast) error
	GetPodcast(ctx context.Context, id string) (*types.Podcast, error)
	CreateSummary(ctx context.Context, s *types.Summary) error
	GetSummary(ctx context.Context, id string) (*types.Summary, error)
	UpdateSummaryStatus(ctx context.Context, id string, change types.StatusChange) (bool, error)
}

// MetadataLookup resolves platform metadata for a URL
type MetadataLookup interface {
	Lookup(ctx context.Context, rawURL string) (*types.Metadata, error)
}

// Submitter creates summary requests and enqueues their jobs
type Submitter struct {
	store    SubmitStore
	metadata MetadataLookup
	broker   Broker
	logger   *zap.Logger
}

// NewSubmitter creates a submitter
func NewSubmitter(store SubmitStore, metadata MetadataLookup, broker Broker, logger *zap.Logger) *Submitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Submitter{
		store:    store,
		metadata: metadata,
		broker:   broker,
		logger:   logger.With(zap.String("component", "submitter")),
	}
}

// Submit registers a summary request for rawURL. The podcast record is
// shared by every request for the same URL, so a stored transcript is reused.
func (s *Submitter) Submit(ctx context.Context, rawURL, userID string) (*types.Summary, error) {
	rawURL = normalizeURL(strings.TrimSpace(rawURL))
	userID = strings.TrimSpace(userID)
	if userID != "" {
		if _, err := uuid.Parse(userID); err != nil {
			return nil, &types.ValidationError{Errors: []string{"user_id must be a UUID"}}
		}
	}

	plat, err := platform.DetectPlatform(rawURL)
	if err != nil {
		return nil, err
	}

	podcast, err := s.store.FindPodcastByURL(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if podcast == nil {
		meta, err := s.metadata.Lookup(ctx, rawURL)
		if err != nil {
			return nil, err
		}
		podcast = &types.Podcast{
			URL:          rawURL,
			Platform:     plat,
			Title:        meta.Title,
			ShowName:     meta.ShowName,
			ThumbnailURL: meta.ThumbnailURL,
			Duration:     meta.Duration,
		}
		if err := s.store.CreatePodcast(ctx, podcast); err != nil {
			return nil, err
		}
		s.logger.Info("podcast created", zap.String("podcast_id", podcast.ID), zap.String("title", podcast.Title))
	}

	sum := &types.Summary{PodcastID: podcast.ID, UserID: userID}
	if err := s.store.CreateSummary(ctx, sum); err != nil {
		return nil, err
	}

	if err := s.enqueue(ctx, sum, podcast); err != nil {
		return nil, err
	}
	return sum, nil
}

// Retry requeues a FAILED summary with a new job
func (s *Submitter) Retry(ctx context.Context, summaryID string) (*types.Summary, error) {
	sum, err := s.store.GetSummary(ctx, summaryID)
	if err != nil {
		return nil, err
	}
	if !types.CanRetry(sum.Status) {
		return nil, notRetryable(sum.Status)
	}

	applied, err := s.store.UpdateSummaryStatus(ctx, sum.ID, types.StatusChange{
		From:    sum.Status,
		To:      types.StatusInQueue,
		Message: "retry requested",
	})
	if err != nil {
		return nil, err
	}
	if !applied {
		current, err := s.store.GetSummary(ctx, summaryID)
		if err != nil {
			return nil, err
		}
		return nil, notRetryable(current.Status)
	}

	podcast, err := s.store.GetPodcast(ctx, sum.PodcastID)
	if err != nil {
		return nil, err
	}
	sum, err = s.store.GetSummary(ctx, summaryID)
	if err != nil {
		return nil, err
	}
	if err := s.enqueue(ctx, sum, podcast); err != nil {
		return nil, err
	}
	s.logger.Info("summary retried", zap.String("summary_id", sum.ID))
	return sum, nil
}

func (s *Submitter) enqueue(ctx context.Context, sum *types.Summary, podcast *types.Podcast) error {
	job := NewJob(sum, podcast)
	if err := job.Validate(); err != nil {
		return err
	}

	if err := s.broker.Publish(ctx, job); err != nil {
		s.logger.Error("failed to enqueue job", zap.String("summary_id", sum.ID), zap.Error(err))
		// Nothing will pick the summary up, so it must not stay IN_QUEUE.
		if _, ferr := s.store.UpdateSummaryStatus(context.WithoutCancel(ctx), sum.ID, types.StatusChange{
			From:    types.StatusInQueue,
			To:      types.StatusFailed,
			Message: "failed to enqueue job",
		}); ferr != nil {
			err = errors.Join(err, ferr)
		}
		return fmt.Errorf("failed to enqueue job: %w", err)
	}

	s.logger.Info("job enqueued",
		zap.String("summary_id", sum.ID),
		zap.String("podcast_id", podcast.ID),
		zap.String("platform", string(podcast.Platform)))
	return nil
}

// normalizeURL turns spotify: URIs and scheme-less links into https URLs
func normalizeURL(raw string) string {
	if strings.HasPrefix(raw, "spotify:") {
		if id := platform.ExtractSpotifyEpisodeID(raw); id != "" {
			return platform.SpotifyEpisodeURL(id)
		}
		return raw
	}
	if raw != "" && !strings.Contains(raw, "://") {
		return "https://" + raw
	}
	return raw
}

func notRetryable(status types.Status) error {
	return &types.ValidationError{Errors: []string{fmt.Sprintf("summary is %s; only FAILED summaries can be retried", status)}}
}
