package platform

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/codebuildervaibhav/podcast-summarizer/internal/types"
)

// An 11-character video ID that is not followed by another ID character.
const youtubeIDPattern = `([a-zA-Z0-9_-]{11})(?:[^a-zA-Z0-9_-]|$)`

var youtubeURLPatterns = []*regexp.Regexp{
	// https://www.youtube.com/watch?v={ID}&t=42s, also when v is not the first parameter
	regexp.MustCompile(`youtube(?:-nocookie)?\.com/watch\?(?:[^#]*?&)?v=` + youtubeIDPattern),
	// https://youtu.be/{ID}
	regexp.MustCompile(`youtu\.be/` + youtubeIDPattern),
	// https://www.youtube.com/embed/{ID}
	regexp.MustCompile(`youtube(?:-nocookie)?\.com/embed/` + youtubeIDPattern),
	// https://www.youtube.com/shorts/{ID}
	regexp.MustCompile(`youtube\.com/shorts/` + youtubeIDPattern),
	// https://www.youtube.com/v/{ID} and /e/{ID}
	regexp.MustCompile(`youtube\.com/[ve]/` + youtubeIDPattern),
	// https://www.youtube.com/live/{ID}
	regexp.MustCompile(`youtube\.com/live/` + youtubeIDPattern),
	// https://www.youtube.com/ytscreeningroom?v={ID}
	regexp.MustCompile(`youtube\.com/ytscreeningroom\?(?:[^#]*?&)?v=` + youtubeIDPattern),
}

var (
	bareYouTubeIDRE  = regexp.MustCompile(`^[a-zA-Z0-9_-]{11}$`)
	spotifyEpisodeRE = regexp.MustCompile(`(?:episode/|spotify:episode:)([a-zA-Z0-9]+)`)
	bareSpotifyIDRE  = regexp.MustCompile(`^[a-zA-Z0-9]{22}$`)
)

// ExtractYouTubeVideoID returns the video ID embedded in a YouTube URL, or ""
// when the URL is not a recognizable YouTube video link.
func ExtractYouTubeVideoID(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	for _, re := range youtubeURLPatterns {
		if matches := re.FindStringSubmatch(rawURL); len(matches) > 1 {
			return matches[1]
		}
	}
	return ""
}

// ExtractSpotifyEpisodeID returns the episode ID following "episode/" in a
// Spotify URL (or a spotify:episode: URI), or "".
func ExtractSpotifyEpisodeID(rawURL string) string {
	if matches := spotifyEpisodeRE.FindStringSubmatch(strings.TrimSpace(rawURL)); len(matches) > 1 {
		return matches[1]
	}
	return ""
}

// IsYouTubeVideoID reports whether s is a bare YouTube video ID
func IsYouTubeVideoID(s string) bool {
	return bareYouTubeIDRE.MatchString(s)
}

// IsSpotifyEpisodeID reports whether s is a bare Spotify episode ID
func IsSpotifyEpisodeID(s string) bool {
	return bareSpotifyIDRE.MatchString(s)
}

// YouTubeWatchURL builds the canonical watch URL for a video ID
func YouTubeWatchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}

// SpotifyEpisodeURL builds the canonical episode URL for an episode ID
func SpotifyEpisodeURL(episodeID string) string {
	return "https://open.spotify.com/episode/" + episodeID
}

// DetectPlatform determines the hosting platform from the URL host
func DetectPlatform(rawURL string) (types.Platform, error) {
	rawURL = strings.TrimSpace(rawURL)
	if strings.HasPrefix(rawURL, "spotify:") {
		return types.PlatformSpotify, nil
	}

	host := hostOf(rawURL)
	switch host {
	case "youtube.com", "youtu.be", "youtube-nocookie.com":
		return types.PlatformYouTube, nil
	case "open.spotify.com", "spotify.com", "spotify.link":
		return types.PlatformSpotify, nil
	}

	return "", types.NewPlatformError("", types.ErrCodeInvalidURL, "unsupported URL: "+rawURL, nil)
}

// IsSpotifyURL reports whether the URL host belongs to Spotify
func IsSpotifyURL(rawURL string) bool {
	p, err := DetectPlatform(rawURL)
	return err == nil && p == types.PlatformSpotify
}

// hostOf returns the lowercased host without common subdomain prefixes
func hostOf(rawURL string) string {
	if !strings.Contains(rawURL, "://") {
		rawURL = "https://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	for _, prefix := range []string{"www.", "m.", "music."} {
		host = strings.TrimPrefix(host, prefix)
	}
	return host
}
