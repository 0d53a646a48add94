package transcript

import (
	"context"
	"fmt"
	"io"
	"strings"

	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/codebuildervaibhav/podcast-summarizer/internal/types"
)

// OfficialAPISource downloads captions through the YouTube Data API. Caption
// downloads require an OAuth client (see googleauth).
type OfficialAPISource struct {
	service *youtube.Service
}

// NewOfficialAPISource creates a captions source; pass option.WithHTTPClient
// with an OAuth-authorized client.
func NewOfficialAPISource(ctx context.Context, opts ...option.ClientOption) (*OfficialAPISource, error) {
	srv, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create YouTube service: %w", err)
	}
	return &OfficialAPISource{service: srv}, nil
}

func (s *OfficialAPISource) Name() types.TranscriptSource {
	return types.SourceOfficial
}

func (s *OfficialAPISource) GetTranscript(ctx context.Context, videoID string) (*types.TranscriptResult, error) {
	list, err := s.service.Captions.List([]string{"snippet"}, videoID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("captions.list: %w", err)
	}

	items := list.Items
	i := preferredTrack(len(items),
		func(i int) string {
			if items[i].Snippet == nil {
				return ""
			}
			return items[i].Snippet.Language
		},
		func(i int) bool { return items[i].Snippet != nil && strings.EqualFold(items[i].Snippet.TrackKind, "asr") },
	)
	if i < 0 {
		return nil, nil
	}

	resp, err := s.service.Captions.Download(items[i].Id).Tfmt("vtt").Context(ctx).Download()
	if err != nil {
		return nil, fmt.Errorf("captions.download: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read captions: %w", err)
	}

	text := CleanVTT(string(body))
	if text == "" {
		return nil, nil
	}
	return &types.TranscriptResult{Text: text, Available: true, Source: types.SourceOfficial}, nil
}
