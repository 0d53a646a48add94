package transcript

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/codebuildervaibhav/podcast-summarizer/internal/types"
)

const (
	defaultWatchBaseURL = "https://www.youtube.com"
	playerResponseVar   = "ytInitialPlayerResponse"
)

type captionTrack struct {
	BaseURL      string `json:"baseUrl"`
	LanguageCode string `json:"languageCode"`
	Kind         string `json:"kind"`
}

type playerResponse struct {
	Captions *struct {
		PlayerCaptionsTracklistRenderer struct {
			CaptionTracks []captionTrack `json:"captionTracks"`
		} `json:"playerCaptionsTracklistRenderer"`
	} `json:"captions"`
}

// pickCaptionTrack applies the English track preference to scraped tracks
func pickCaptionTrack(tracks []captionTrack) (captionTrack, bool) {
	i := preferredTrack(len(tracks),
		func(i int) string { return tracks[i].LanguageCode },
		func(i int) bool { return tracks[i].Kind == "asr" },
	)
	if i < 0 {
		return captionTrack{}, false
	}
	return tracks[i], true
}

// vttURL asks the timedtext endpoint for WebVTT output
func vttURL(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("fmt", "vtt")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ScrapeSource reads caption tracks from the public watch page
type ScrapeSource struct {
	baseURL    string
	httpClient *http.Client
}

// NewScrapeSource creates a watch-page scraper. An empty baseURL uses youtube.com.
func NewScrapeSource(baseURL string, httpClient *http.Client) *ScrapeSource {
	if baseURL == "" {
		baseURL = defaultWatchBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &ScrapeSource{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

func (s *ScrapeSource) Name() types.TranscriptSource {
	return types.SourceScrape
}

func (s *ScrapeSource) GetTranscript(ctx context.Context, videoID string) (*types.TranscriptResult, error) {
	page, _, err := getText(ctx, s.httpClient, s.baseURL+"/watch?v="+url.QueryEscape(videoID), map[string]string{
		"Accept":          "text/html,application/xhtml+xml",
		"Accept-Language": "en-US,en;q=0.9",
	})
	if err != nil {
		return nil, fmt.Errorf("watch page: %w", err)
	}

	player, err := parsePlayerResponse(page)
	if err != nil {
		return nil, err
	}
	if player.Captions == nil {
		return nil, nil
	}

	track, ok := pickCaptionTrack(player.Captions.PlayerCaptionsTracklistRenderer.CaptionTracks)
	if !ok {
		return nil, nil
	}

	captionsURL, err := vttURL(track.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid caption track URL: %w", err)
	}
	vtt, _, err := getText(ctx, s.httpClient, captionsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("caption track: %w", err)
	}

	text := CleanVTT(vtt)
	if text == "" {
		return nil, nil
	}
	return &types.TranscriptResult{Text: text, Available: true, Source: types.SourceScrape}, nil
}

// parsePlayerResponse finds the inline script assigning ytInitialPlayerResponse
// and decodes the assigned object.
func parsePlayerResponse(page string) (*playerResponse, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("failed to parse watch page: %w", err)
	}

	var raw []byte
	doc.Find("script").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		script := sel.Text()
		idx := strings.Index(script, playerResponseVar)
		if idx < 0 {
			return true
		}
		brace := strings.Index(script[idx:], "{")
		if brace < 0 {
			return true
		}
		raw = extractJSON([]byte(script[idx+brace:]))
		return raw == nil
	})
	if raw == nil {
		return nil, errors.New("ytInitialPlayerResponse not found in watch page")
	}

	var player playerResponse
	if err := json.Unmarshal(raw, &player); err != nil {
		return nil, fmt.Errorf("decode ytInitialPlayerResponse: %w", err)
	}
	return &player, nil
}

// extractJSON returns the balanced JSON object at the start of data, honoring
// string literals and escapes, or nil when the object is not terminated.
func extractJSON(data []byte) []byte {
	if len(data) == 0 || data[0] != '{' {
		return nil
	}
	depth := 0
	inString := false
	escaped := false
	for i, c := range data {
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return data[:i+1]
			}
		}
	}
	return nil
}
