package transcript

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/codebuildervaibhav/podcast-summarizer/internal/types"
)

const defaultSupadataBaseURL = "https://api.supadata.ai/v1"

// SupadataSource fetches transcripts from the Supadata aggregation API
type SupadataSource struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewSupadataSource creates a Supadata source. An empty baseURL uses the public API.
func NewSupadataSource(apiKey, baseURL string, httpClient *http.Client) *SupadataSource {
	if baseURL == "" {
		baseURL = defaultSupadataBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &SupadataSource{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

func (s *SupadataSource) Name() types.TranscriptSource {
	return types.SourceAggregator
}

type supadataResponse struct {
	Content string `json:"content"`
	Lang    string `json:"lang"`
}

func (s *SupadataSource) GetTranscript(ctx context.Context, videoID string) (*types.TranscriptResult, error) {
	endpoint := fmt.Sprintf("%s/youtube/transcript?videoId=%s&text=true", s.baseURL, url.QueryEscape(videoID))

	body, status, err := getText(ctx, s.httpClient, endpoint, map[string]string{
		"x-api-key": s.apiKey,
		"Accept":    "application/json",
	})
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && status == http.StatusNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("supadata request failed: %w", err)
	}

	var resp supadataResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return nil, fmt.Errorf("failed to decode supadata response: %w", err)
	}

	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return nil, nil
	}
	return &types.TranscriptResult{Text: text, Available: true, Source: types.SourceAggregator}, nil
}
