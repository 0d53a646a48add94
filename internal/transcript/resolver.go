package transcript

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/codebuildervaibhav/podcast-summarizer/internal/platform"
	"github.com/codebuildervaibhav/podcast-summarizer/internal/types"
)

// Resolver races the configured sources for a video and returns the first
// non-empty transcript.
type Resolver struct {
	sources []Source
	spotify Source
	logger  *zap.Logger
}

// NewResolver orders sources for env. spotify may be nil, in which case
// Spotify URLs never resolve.
func NewResolver(env string, sources []Source, spotify Source, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		sources: ordered(env, sources),
		spotify: spotify,
		logger:  logger.With(zap.String("component", "transcript")),
	}
}

// Sources lists the active YouTube sources in priority order
func (r *Resolver) Sources() []types.TranscriptSource {
	names := make([]types.TranscriptSource, len(r.sources))
	for i, src := range r.sources {
		names[i] = src.Name()
	}
	return names
}

// Resolve fetches the transcript for a YouTube or Spotify URL. Spotify URLs go
// to the single Spotify source; YouTube URLs race every configured source.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) (*types.TranscriptResult, error) {
	if platform.IsSpotifyURL(rawURL) {
		episodeID := platform.ExtractSpotifyEpisodeID(rawURL)
		if episodeID == "" {
			return nil, &types.TranscriptError{Code: types.ErrCodeInvalidURL, URL: rawURL}
		}
		if r.spotify == nil {
			return nil, &types.TranscriptError{Code: types.ErrCodeNoTranscript, URL: rawURL}
		}
		return r.race(ctx, rawURL, episodeID, []Source{r.spotify})
	}

	videoID := platform.ExtractYouTubeVideoID(rawURL)
	if videoID == "" {
		return nil, &types.TranscriptError{Code: types.ErrCodeInvalidURL, URL: rawURL}
	}
	return r.race(ctx, rawURL, videoID, r.sources)
}

type attempt struct {
	index  int
	result *types.TranscriptResult
	err    error
}

func (a attempt) succeeded() bool {
	return a.err == nil && a.result != nil && strings.TrimSpace(a.result.Text) != ""
}

// race launches every source at once. The first non-empty result wins; results
// that are already waiting when it arrives are compared by priority so near-ties
// go to the preferred source. Losers are cancelled and their results dropped.
func (r *Resolver) race(ctx context.Context, rawURL, id string, sources []Source) (*types.TranscriptResult, error) {
	if len(sources) == 0 {
		return nil, &types.TranscriptError{Code: types.ErrCodeNoTranscript, URL: rawURL}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	start := time.Now()
	results := make(chan attempt, len(sources))
	for i, src := range sources {
		go func(i int, src Source) {
			a := attempt{index: i}
			defer func() {
				if rec := recover(); rec != nil {
					r.logger.Error("transcript source panicked",
						zap.String("source", string(src.Name())),
						zap.Any("panic", rec),
						zap.ByteString("stack", debug.Stack()))
					a.result, a.err = nil, fmt.Errorf("panic: %v", rec)
				}
				results <- a
			}()
			a.result, a.err = src.GetTranscript(ctx, id)
		}(i, src)
	}

	causes := make([]error, len(sources))
	for received := 0; received < len(sources); received++ {
		a := <-results
		if !a.succeeded() {
			causes[a.index] = r.failure(sources[a.index], id, a)
			continue
		}

		winner := a
	drain:
		for {
			select {
			case b := <-results:
				if b.succeeded() && b.index < winner.index {
					winner = b
				}
			default:
				break drain
			}
		}

		result := *winner.result
		result.Available = true
		if result.Source == "" {
			result.Source = sources[winner.index].Name()
		}
		r.logger.Info("transcript resolved",
			zap.String("id", id),
			zap.String("source", string(result.Source)),
			zap.Int("chars", len(result.Text)),
			zap.Duration("elapsed", time.Since(start)))
		return &result, nil
	}

	return nil, &types.TranscriptError{Code: types.ErrCodeAllSourcesFailed, URL: rawURL, Causes: causes}
}

// failure converts an unsuccessful attempt into its diagnostic cause
func (r *Resolver) failure(src Source, id string, a attempt) error {
	name := string(src.Name())
	if a.err == nil {
		r.logger.Debug("transcript source had no transcript", zap.String("source", name), zap.String("id", id))
		return fmt.Errorf("%s: %w", name, ErrUnavailable)
	}
	r.logger.Warn("transcript source failed", zap.String("source", name), zap.String("id", id), zap.Error(a.err))
	return fmt.Errorf("%s: %w", name, a.err)
}
