package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/codebuildervaibhav/podcast-summarizer/internal/types"
)

const (
	defaultSpotifyTokenURL = "https://accounts.spotify.com/api/token"
	defaultSpotifyBaseURL  = "https://api.spotify.com/v1"

	// Tokens are refreshed this long before they expire.
	spotifyTokenRefreshBuffer = 5 * time.Minute
)

// SpotifyConfig holds Spotify Web API credentials
type SpotifyConfig struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	BaseURL      string
	Market       string
}

// SpotifyClient fetches episode metadata from the Spotify Web API
type SpotifyClient struct {
	httpClient *http.Client
	baseURL    string
	market     string
}

// credentialsSource fetches a fresh client-credentials token on every call;
// caching is left to the ReuseTokenSource wrapping it.
type credentialsSource struct {
	ctx context.Context
	cfg *clientcredentials.Config
}

func (s credentialsSource) Token() (*oauth2.Token, error) {
	return s.cfg.Token(s.ctx)
}

// NewSpotifyClient creates a new Spotify client. The context is used for token
// requests; an *http.Client stored under oauth2.HTTPClient is honored.
func NewSpotifyClient(ctx context.Context, cfg SpotifyConfig) *SpotifyClient {
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaultSpotifyTokenURL
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultSpotifyBaseURL
	}
	if cfg.Market == "" {
		cfg.Market = "US"
	}

	ccfg := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	ts := oauth2.ReuseTokenSourceWithExpiry(nil, credentialsSource{ctx: ctx, cfg: ccfg}, spotifyTokenRefreshBuffer)

	return &SpotifyClient{
		httpClient: oauth2.NewClient(ctx, ts),
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		market:     cfg.Market,
	}
}

type spotifyEpisode struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	HTMLDescription string `json:"html_description"`
	DurationMS      int    `json:"duration_ms"`
	Images          []struct {
		URL string `json:"url"`
	} `json:"images"`
	Show struct {
		Name string `json:"name"`
	} `json:"show"`
}

// GetInfo resolves a Spotify episode URL or bare episode ID to its metadata.
// Description holds the show notes rendered to plain text.
func (c *SpotifyClient) GetInfo(ctx context.Context, urlOrID string) (*types.Metadata, error) {
	episodeID := ExtractSpotifyEpisodeID(urlOrID)
	if episodeID == "" && IsSpotifyEpisodeID(urlOrID) {
		episodeID = urlOrID
	}
	if episodeID == "" {
		return nil, types.NewPlatformError(types.PlatformSpotify, types.ErrCodeInvalidURL,
			"could not extract episode ID from "+urlOrID, nil)
	}

	endpoint := fmt.Sprintf("%s/episodes/%s?market=%s", c.baseURL, url.PathEscape(episodeID), url.QueryEscape(c.market))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, types.NewPlatformError(types.PlatformSpotify, types.ErrCodeAPIError, "failed to build request", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, types.NewPlatformError(types.PlatformSpotify, types.ErrCodeAPIError, "episode request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		perr := types.NewPlatformError(types.PlatformSpotify, types.ErrCodeVideoNotFound, "episode not found", nil)
		perr.Context = map[string]any{"episode_id": episodeID}
		return nil, perr
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		perr := types.NewPlatformError(types.PlatformSpotify, types.ErrCodeAPIError,
			fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
		perr.Context = map[string]any{"episode_id": episodeID, "body": strings.TrimSpace(string(body))}
		return nil, perr
	}

	var ep spotifyEpisode
	if err := json.NewDecoder(resp.Body).Decode(&ep); err != nil {
		return nil, types.NewPlatformError(types.PlatformSpotify, types.ErrCodeAPIError, "failed to decode episode", err)
	}

	meta := &types.Metadata{
		ID:          episodeID,
		Platform:    types.PlatformSpotify,
		Title:       ep.Name,
		ShowName:    ep.Show.Name,
		Duration:    ep.DurationMS / 1000,
		Description: ep.Description,
	}
	if len(ep.Images) > 0 {
		meta.ThumbnailURL = ep.Images[0].URL
	}
	if ep.HTMLDescription != "" {
		if text, err := htmlToText(ep.HTMLDescription); err == nil && text != "" {
			meta.Description = text
		}
	}
	return meta, nil
}

// htmlToText flattens show-notes HTML into paragraphs of plain text
func htmlToText(fragment string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return "", err
	}

	var parts []string
	doc.Find("p, li").Each(func(_ int, s *goquery.Selection) {
		if text := strings.Join(strings.Fields(s.Text()), " "); text != "" {
			parts = append(parts, text)
		}
	})
	if len(parts) == 0 {
		return strings.Join(strings.Fields(doc.Text()), " "), nil
	}
	return strings.Join(parts, "\n"), nil
}
