package platform

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"

	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/codebuildervaibhav/podcast-summarizer/internal/types"
)

// YouTubeConfig holds YouTube Data API settings
type YouTubeConfig struct {
	APIKey            string
	RequestsPerSecond float64
	Burst             int
}

// YouTubeClient fetches video metadata and search results from the YouTube Data API
type YouTubeClient struct {
	service *youtube.Service
	limiter *rate.Limiter
}

// NewYouTubeClient creates a new YouTube Data API client. Extra options are
// appended after the API key (tests pass an endpoint and HTTP client).
func NewYouTubeClient(ctx context.Context, cfg YouTubeConfig, opts ...option.ClientOption) (*YouTubeClient, error) {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 5
	}

	clientOpts := append([]option.ClientOption{option.WithAPIKey(cfg.APIKey)}, opts...)
	srv, err := youtube.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create YouTube service: %w", err)
	}

	return &YouTubeClient{
		service: srv,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
	}, nil
}

// GetInfo resolves a YouTube URL or bare video ID to its metadata
func (c *YouTubeClient) GetInfo(ctx context.Context, urlOrID string) (*types.Metadata, error) {
	videoID := ExtractYouTubeVideoID(urlOrID)
	if videoID == "" && IsYouTubeVideoID(urlOrID) {
		videoID = urlOrID
	}
	if videoID == "" {
		return nil, types.NewPlatformError(types.PlatformYouTube, types.ErrCodeInvalidURL,
			"could not extract video ID from "+urlOrID, nil)
	}

	videos, err := c.VideoDetails(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if len(videos) == 0 {
		perr := types.NewPlatformError(types.PlatformYouTube, types.ErrCodeVideoNotFound, "video not found", nil)
		perr.Context = map[string]any{"video_id": videoID}
		return nil, perr
	}
	return &videos[0], nil
}

// VideoDetails fetches metadata for the given video IDs. Results follow the
// order of ids; IDs the API does not return are omitted.
func (c *YouTubeClient) VideoDetails(ctx context.Context, ids ...string) ([]types.Metadata, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := c.service.Videos.List([]string{"snippet", "contentDetails", "statistics"}).
		Id(ids...).
		Context(ctx).
		Do()
	if err != nil {
		return nil, youtubeAPIError("videos.list", err)
	}

	byID := make(map[string]types.Metadata, len(resp.Items))
	for _, item := range resp.Items {
		byID[item.Id] = videoMetadata(item)
	}

	videos := make([]types.Metadata, 0, len(ids))
	for _, id := range ids {
		if meta, ok := byID[id]; ok {
			videos = append(videos, meta)
		}
	}
	return videos, nil
}

// Search returns up to maxResults video IDs for a query, in relevance order
func (c *YouTubeClient) Search(ctx context.Context, query string, maxResults int) ([]string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := c.service.Search.List([]string{"id"}).
		Q(query).
		Type("video").
		MaxResults(int64(maxResults)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, youtubeAPIError("search.list", err)
	}

	ids := make([]string, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.Id != nil && item.Id.VideoId != "" {
			ids = append(ids, item.Id.VideoId)
		}
	}
	return ids, nil
}

func videoMetadata(item *youtube.Video) types.Metadata {
	meta := types.Metadata{
		ID:       item.Id,
		Platform: types.PlatformYouTube,
	}
	if item.Snippet != nil {
		meta.Title = item.Snippet.Title
		meta.ShowName = item.Snippet.ChannelTitle
		meta.Description = item.Snippet.Description
		meta.ThumbnailURL = bestThumbnail(item.Snippet.Thumbnails)
	}
	if item.ContentDetails != nil {
		meta.Duration = ParseDuration(item.ContentDetails.Duration)
	}
	if item.Statistics != nil {
		meta.ViewCount = item.Statistics.ViewCount
	}
	return meta
}

func bestThumbnail(t *youtube.ThumbnailDetails) string {
	if t == nil {
		return ""
	}
	for _, thumb := range []*youtube.Thumbnail{t.Maxres, t.High, t.Medium, t.Default} {
		if thumb != nil && thumb.Url != "" {
			return thumb.Url
		}
	}
	return ""
}

func youtubeAPIError(op string, err error) error {
	code := types.ErrCodeAPIError
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
		code = types.ErrCodeVideoNotFound
	}
	return types.NewPlatformError(types.PlatformYouTube, code, op+" failed", err)
}

var durationRE = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)

// ParseDuration converts an ISO-8601 duration such as PT1H2M3S to seconds.
// Every component is optional; malformed input yields 0.
func ParseDuration(iso string) int {
	m := durationRE.FindStringSubmatch(iso)
	if m == nil {
		return 0
	}
	seconds := 0
	for i, unit := range []int{86400, 3600, 60, 1} {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return 0
		}
		seconds += n * unit
	}
	return seconds
}
