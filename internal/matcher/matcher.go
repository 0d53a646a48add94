// Package matcher finds the YouTube upload of a Spotify episode so its
// transcript can be fetched from YouTube.
package matcher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/codebuildervaibhav/podcast-summarizer/internal/platform"
	"github.com/codebuildervaibhav/podcast-summarizer/internal/types"
)

// DefaultMaxResults is the number of search results scored per query
const DefaultMaxResults = 5

// VideoSearcher searches YouTube and enriches results with full details
type VideoSearcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]string, error)
	VideoDetails(ctx context.Context, ids ...string) ([]types.Metadata, error)
}

// FailedSearchLogger records searches that produced no valid match
type FailedSearchLogger interface {
	LogFailedYouTubeSearch(ctx context.Context, record *types.FailedSearch) error
}

// Matcher cross-references Spotify episodes against YouTube search results
type Matcher struct {
	episodes   platform.InfoGetter
	videos     VideoSearcher
	failures   FailedSearchLogger
	maxResults int
	logger     *zap.Logger
}

// New creates a matcher. failures may be nil.
func New(episodes platform.InfoGetter, videos VideoSearcher, failures FailedSearchLogger, logger *zap.Logger) *Matcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Matcher{
		episodes:   episodes,
		videos:     videos,
		failures:   failures,
		maxResults: DefaultMaxResults,
		logger:     logger.With(zap.String("component", "matcher")),
	}
}

// FindMatch returns the best YouTube match for a Spotify episode URL, or nil
// when no candidate reaches MatchThreshold.
func (m *Matcher) FindMatch(ctx context.Context, spotifyURL string) (*types.MatchCandidate, error) {
	episode, err := m.episodes.GetInfo(ctx, spotifyURL)
	if err != nil {
		return nil, err
	}
	return m.Match(ctx, spotifyURL, episode)
}

// Match searches for episode using each query in turn and returns the best
// valid candidate of the first query that has one. Later queries are not run.
func (m *Matcher) Match(ctx context.Context, spotifyURL string, episode *types.Metadata) (*types.MatchCandidate, error) {
	queries := BuildQueries(episode.Title, episode.ShowName)

	var overall *types.MatchCandidate
	for _, query := range queries {
		candidates, err := m.candidates(ctx, query, episode)
		if err != nil {
			return nil, err
		}

		best := bestCandidate(candidates)
		if best == nil {
			continue
		}
		if overall == nil || best.Score > overall.Score {
			overall = best
		}
		if best.Score >= MatchThreshold {
			m.logger.Info("youtube match found",
				zap.String("episode", episode.ID),
				zap.String("video", best.Video.ID),
				zap.String("query", query),
				zap.Float64("score", best.Score))
			return best, nil
		}
	}

	m.logFailure(ctx, spotifyURL, episode, queries, overall)
	return nil, nil
}

// candidates runs one search and scores every enriched result, keeping the
// search result order.
func (m *Matcher) candidates(ctx context.Context, query string, episode *types.Metadata) ([]types.MatchCandidate, error) {
	ids, err := m.videos.Search(ctx, query, m.maxResults)
	if err != nil {
		return nil, fmt.Errorf("youtube search %q: %w", query, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	videos, err := m.videos.VideoDetails(ctx, ids...)
	if err != nil {
		return nil, fmt.Errorf("youtube video details: %w", err)
	}

	scored := make([]types.MatchCandidate, 0, len(videos))
	for _, video := range videos {
		scored = append(scored, types.MatchCandidate{
			Video: video,
			Score: Score(*episode, video),
			Query: query,
		})
	}
	return scored, nil
}

// bestCandidate returns the highest scoring candidate; ties keep the earliest
func bestCandidate(candidates []types.MatchCandidate) *types.MatchCandidate {
	var best *types.MatchCandidate
	for i := range candidates {
		if best == nil || candidates[i].Score > best.Score {
			best = &candidates[i]
		}
	}
	return best
}

func (m *Matcher) logFailure(ctx context.Context, spotifyURL string, episode *types.Metadata, queries []string, best *types.MatchCandidate) {
	record := &types.FailedSearch{
		ID:               uuid.New().String(),
		SpotifyEpisodeID: episode.ID,
		SpotifyURL:       spotifyURL,
		Title:            episode.Title,
		ShowName:         episode.ShowName,
		Duration:         episode.Duration,
		Queries:          queries,
		CreatedAt:        time.Now().UTC(),
	}
	if best != nil {
		record.BestScore = best.Score
		record.BestVideoID = best.Video.ID
	}

	m.logger.Info("no youtube match above threshold",
		zap.String("episode", episode.ID),
		zap.Strings("queries", queries),
		zap.Float64("best_score", record.BestScore))

	if m.failures == nil {
		return
	}
	if err := m.failures.LogFailedYouTubeSearch(ctx, record); err != nil {
		m.logger.Warn("failed to log failed youtube search", zap.String("episode", episode.ID), zap.Error(err))
	}
}

// BuildQueries returns the search queries for an episode in the order they are
// tried, without duplicates. Show-based queries are skipped when show is empty.
func BuildQueries(title, show string) []string {
	title = strings.TrimSpace(title)
	show = strings.TrimSpace(show)

	var candidates []string
	if show != "" {
		candidates = append(candidates, fmt.Sprintf("%s %s podcast", title, show))
	}
	candidates = append(candidates, fmt.Sprintf("%s podcast", title))
	if show != "" {
		candidates = append(candidates, fmt.Sprintf("%s podcast %s", show, title))
	}

	seen := make(map[string]bool, len(candidates))
	queries := make([]string, 0, len(candidates))
	for _, q := range candidates {
		q = strings.Join(strings.Fields(q), " ")
		key := strings.ToLower(q)
		if q == "" || seen[key] {
			continue
		}
		seen[key] = true
		queries = append(queries, q)
	}
	return queries
}
