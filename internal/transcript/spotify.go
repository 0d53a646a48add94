package transcript

import (
	"context"
	"strings"

	"github.com/codebuildervaibhav/podcast-summarizer/internal/platform"
	"github.com/codebuildervaibhav/podcast-summarizer/internal/types"
)

// SpotifySource is the only transcript source for Spotify episodes. Spotify has
// no public transcript API, so it returns the episode's show notes; episodes
// without notes have no transcript.
type SpotifySource struct {
	episodes platform.InfoGetter
}

// NewSpotifySource creates a Spotify source backed by an episode metadata client
func NewSpotifySource(episodes platform.InfoGetter) *SpotifySource {
	return &SpotifySource{episodes: episodes}
}

func (s *SpotifySource) Name() types.TranscriptSource {
	return types.SourceSpotify
}

func (s *SpotifySource) GetTranscript(ctx context.Context, episodeID string) (*types.TranscriptResult, error) {
	meta, err := s.episodes.GetInfo(ctx, episodeID)
	if err != nil {
		return nil, err
	}

	text := strings.TrimSpace(meta.Description)
	if text == "" {
		return nil, nil
	}
	return &types.TranscriptResult{Text: text, Available: true, Source: types.SourceSpotify}, nil
}
